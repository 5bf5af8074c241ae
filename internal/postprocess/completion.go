package postprocess

import (
	"context"
	"fmt"

	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
)

// Annotation keys written by RelationRebuild and read by Completion.
const (
	metaPrevInResults = "__prev_in_results"
	metaNextInResults = "__next_in_results"
)

// NodeFetcher reads stored nodes by identifier. Missing ids are simply
// absent from the returned map.
type NodeFetcher interface {
	Fetch(ctx context.Context, ids []string) (map[string]node.Node, error)
}

// RelationRebuild restores the adjacency view over a fused result list:
// it marks, per node, whether its prev/next neighbors were themselves
// retrieved, so Completion does not refetch or duplicate text that is
// already in the list. QA nodes carry no chain and are left untouched.
type RelationRebuild struct{}

// NewRelationRebuild creates the relation rebuild processor.
func NewRelationRebuild() *RelationRebuild {
	return &RelationRebuild{}
}

// Name implements Processor.
func (*RelationRebuild) Name() string { return "relation_rebuild" }

// Process implements Processor.
func (*RelationRebuild) Process(_ context.Context, _ string, nodes []node.Node) ([]node.Node, error) {
	if len(nodes) == 0 {
		return nodes, nil
	}
	present := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		present[n.ID()] = struct{}{}
	}

	out := make([]node.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Meta(node.MetaNodeType) == node.TypeQA {
			out = append(out, n)
			continue
		}
		if prev := n.Meta(node.MetaPrevID); prev != "" {
			if _, ok := present[prev]; ok {
				n = n.WithMeta(metaPrevInResults, "true")
			}
		}
		if next := n.Meta(node.MetaNextID); next != "" {
			if _, ok := present[next]; ok {
				n = n.WithMeta(metaNextInResults, "true")
			}
		}
		out = append(out, n)
	}
	return out, nil
}

// Completion expands short text chunks with neighboring context chunks until
// a length bound is reached. Neighbors already present in the result list
// are skipped. Content grows; scores and order do not change.
type Completion struct {
	fetcher NodeFetcher
	maxLen  int
}

// DefaultMaxContentLength bounds completed chunk content in runes.
const DefaultMaxContentLength = 2000

// NewCompletion creates the length-bounded completion processor.
func NewCompletion(fetcher NodeFetcher, maxLen int) *Completion {
	if maxLen <= 0 {
		maxLen = DefaultMaxContentLength
	}
	return &Completion{fetcher: fetcher, maxLen: maxLen}
}

// Name implements Processor.
func (*Completion) Name() string { return "completion" }

// Process implements Processor.
func (p *Completion) Process(ctx context.Context, _ string, nodes []node.Node) ([]node.Node, error) {
	if len(nodes) == 0 {
		return nodes, nil
	}

	out := make([]node.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Meta(node.MetaNodeType) != node.TypeText {
			out = append(out, n)
			continue
		}
		completed, err := p.complete(ctx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, completed)
	}
	return out, nil
}

// complete walks the next chain first (forward context reads better), then
// the prev chain, appending neighbor content until maxLen.
func (p *Completion) complete(ctx context.Context, n node.Node) (node.Node, error) {
	content := []rune(n.Content())
	if len(content) >= p.maxLen {
		return n, nil
	}

	after, err := p.walk(ctx, n.Meta(node.MetaNextID), n.Meta(metaNextInResults) == "true", node.MetaNextID, p.maxLen-len(content))
	if err != nil {
		return node.Node{}, err
	}
	content = append(content, after...)

	if remaining := p.maxLen - len(content); remaining > 0 {
		before, err := p.walk(ctx, n.Meta(node.MetaPrevID), n.Meta(metaPrevInResults) == "true", node.MetaPrevID, remaining)
		if err != nil {
			return node.Node{}, err
		}
		content = append(before, content...)
	}

	return n.WithContent(string(content)), nil
}

// walk follows a neighbor chain in one direction collecting content up to
// budget runes. The first hop is skipped when the neighbor is already in the
// result list.
func (p *Completion) walk(ctx context.Context, startID string, startInResults bool, dir string, budget int) ([]rune, error) {
	var collected []rune
	id := startID
	skip := startInResults

	for id != "" && len(collected) < budget {
		fetched, err := p.fetcher.Fetch(ctx, []string{id})
		if err != nil {
			return nil, fmt.Errorf("fetch neighbor %s: %w", id, err)
		}
		neighbor, ok := fetched[id]
		if !ok {
			break
		}
		if !skip {
			text := []rune(neighbor.Content())
			if len(collected)+len(text) > budget {
				text = text[:budget-len(collected)]
			}
			if dir == node.MetaNextID {
				collected = append(collected, text...)
			} else {
				collected = append(text, collected...)
			}
		}
		skip = false
		id = neighbor.Meta(dir)
	}
	return collected, nil
}
