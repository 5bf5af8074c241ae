// Package postprocess refines a fused node list before answer synthesis.
// Processors are pure list transformations: safe on empty input, no
// assumption about which upstream processor ran, new slices out.
package postprocess

import (
	"context"
	"fmt"
	"sort"

	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
)

// Processor transforms a ranked node list. A processor failure aborts the
// whole chain: partial enrichment would mislead downstream citations.
type Processor interface {
	Name() string
	Process(ctx context.Context, query string, nodes []node.Node) ([]node.Node, error)
}

// Run applies processors in order. The first failure stops the chain and is
// returned wrapped with the failing processor's name.
func Run(ctx context.Context, query string, nodes []node.Node, procs []Processor) ([]node.Node, error) {
	out := nodes
	for _, p := range procs {
		var err error
		out, err = p.Process(ctx, query, out)
		if err != nil {
			return nil, fmt.Errorf("postprocess %s: %w", p.Name(), err)
		}
	}
	return out, nil
}

// ScoreCutoff drops nodes below an inclusive minimum score.
type ScoreCutoff struct {
	cutoff float64
}

// NewScoreCutoff creates a score cutoff processor. A cutoff of 0 passes everything.
func NewScoreCutoff(cutoff float64) *ScoreCutoff {
	return &ScoreCutoff{cutoff: cutoff}
}

// Name implements Processor.
func (*ScoreCutoff) Name() string { return "score_cutoff" }

// Process implements Processor.
func (p *ScoreCutoff) Process(_ context.Context, _ string, nodes []node.Node) ([]node.Node, error) {
	if p.cutoff <= 0 {
		return nodes, nil
	}
	out := make([]node.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Score() >= p.cutoff {
			out = append(out, n)
		}
	}
	return out, nil
}

// TopK truncates the list to its first k entries.
type TopK struct {
	k int
}

// NewTopK creates a truncation processor.
func NewTopK(k int) *TopK {
	return &TopK{k: k}
}

// Name implements Processor.
func (*TopK) Name() string { return "top_k" }

// Process implements Processor.
func (p *TopK) Process(_ context.Context, _ string, nodes []node.Node) ([]node.Node, error) {
	if p.k <= 0 || len(nodes) <= p.k {
		return nodes, nil
	}
	out := make([]node.Node, p.k)
	copy(out, nodes[:p.k])
	return out, nil
}

// sortByScore orders nodes by descending score, breaking ties by ID for
// deterministic output.
func sortByScore(nodes []node.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Score() != nodes[j].Score() {
			return nodes[i].Score() > nodes[j].Score()
		}
		return nodes[i].ID() < nodes[j].ID()
	})
}
