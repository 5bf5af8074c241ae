// Package repository adapts the database store to the retrieval domain:
// per-index retrievers over FT.SEARCH and a hash-backed node fetcher.
package repository

import (
	"sort"
	"strings"

	"github.com/lumenkb/ragd/internal/db"
	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
)

// Hash field names of the node storage schema. FieldVector holds the raw
// embedding blob and is never returned to callers.
const (
	FieldContent = "__content"
	FieldVector  = "vector"
)

// returnFields lists every hash field a search should hand back. Naming
// them explicitly keeps the embedding blob out of the reply.
func returnFields() []string {
	return []string{
		FieldContent,
		node.MetaSourceID,
		node.MetaNodeType,
		node.MetaIsContext,
		node.MetaPrevID,
		node.MetaNextID,
		node.MetaTitle,
		node.MetaExtra,
	}
}

// entryToNode converts one search hit into a domain node. The storage key
// prefix is stripped to recover the node ID; the content field is lifted
// out and everything else becomes metadata.
func entryToNode(e db.SearchEntry, keyPrefix string, src node.Source) node.Node {
	id := strings.TrimPrefix(e.Key, keyPrefix)

	content := e.Fields[FieldContent]
	meta := make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		if k == FieldContent || k == FieldVector {
			continue
		}
		meta[k] = v
	}

	return node.New(id, content, meta, e.Score, src)
}

// sortNodesDesc orders nodes by score descending, breaking ties by node ID
// so equal-score results are deterministic.
func sortNodesDesc(nodes []node.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Score() != nodes[j].Score() {
			return nodes[i].Score() > nodes[j].Score()
		}
		return nodes[i].ID() < nodes[j].ID()
	})
}

// applyCutoff keeps nodes whose score passes the inclusive threshold.
// A zero cutoff passes everything.
func applyCutoff(nodes []node.Node, cutoff float64) []node.Node {
	if cutoff <= 0 {
		return nodes
	}
	out := nodes[:0]
	for _, n := range nodes {
		if n.Score() >= cutoff {
			out = append(out, n)
		}
	}
	return out
}
