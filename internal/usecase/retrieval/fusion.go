package retrieval

import (
	"sort"

	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
)

// rrfK is the reciprocal-rank-fusion smoothing constant. Larger values
// flatten the contribution difference between adjacent ranks.
const rrfK = 60

// mergeByScore combines result lists that share one scoring scale:
// concatenate, keep the highest score per node ID, sort descending,
// truncate. No rank normalization happens here, so callers must only
// merge lists produced by the same embedding space.
func mergeByScore(lists [][]node.Node, topK int) []node.Node {
	best := make(map[string]node.Node)
	for _, list := range lists {
		for _, n := range list {
			cur, ok := best[n.ID()]
			if !ok || n.Score() > cur.Score() {
				best[n.ID()] = n
			}
		}
	}

	out := make([]node.Node, 0, len(best))
	for _, n := range best {
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score() != out[j].Score() {
			return out[i].Score() > out[j].Score()
		}
		return out[i].ID() < out[j].ID()
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// fuseRRF combines result lists from different scoring scales with
// reciprocal rank fusion: a node at 1-indexed rank r contributes
// 1/(rrfK+r), summed across lists. Ties break by the node's best rank
// across all lists, then by ID, so the output is a pure function of the
// unordered set of input lists.
func fuseRRF(lists [][]node.Node, topK int) []node.Node {
	type entry struct {
		n        node.Node
		score    float64
		bestRank int
	}

	acc := make(map[string]*entry)
	for _, list := range lists {
		for i, n := range list {
			rank := i + 1
			e, ok := acc[n.ID()]
			if !ok {
				e = &entry{n: n, bestRank: rank}
				acc[n.ID()] = e
			}
			e.score += 1.0 / float64(rrfK+rank)
			// Keep the instance from the list where the node ranked best,
			// so the surviving copy is list-order independent.
			if rank < e.bestRank || (rank == e.bestRank && n.Score() > e.n.Score()) {
				e.bestRank = rank
				e.n = n
			}
		}
	}

	entries := make([]*entry, 0, len(acc))
	for _, e := range acc {
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		if entries[i].bestRank != entries[j].bestRank {
			return entries[i].bestRank < entries[j].bestRank
		}
		return entries[i].n.ID() < entries[j].n.ID()
	})

	out := make([]node.Node, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.n.WithScore(e.score))
	}
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
