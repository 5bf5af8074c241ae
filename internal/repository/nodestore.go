package repository

import (
	"context"
	"fmt"

	"github.com/lumenkb/ragd/internal/db"
	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
)

// NodeStore fetches stored nodes by ID for post-processors that need to
// walk prev/next chains beyond the search results.
type NodeStore struct {
	reader    db.NodeReader
	keyPrefix string
}

// NewNodeStore creates a node fetcher over hash storage.
func NewNodeStore(reader db.NodeReader, keyPrefix string) *NodeStore {
	return &NodeStore{reader: reader, keyPrefix: keyPrefix}
}

// Fetch loads the given node IDs in one round-trip. Missing IDs are
// silently absent from the result map.
func (s *NodeStore) Fetch(ctx context.Context, ids []string) (map[string]node.Node, error) {
	if len(ids) == 0 {
		return map[string]node.Node{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.keyPrefix + id
	}

	hashes, err := s.reader.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch nodes: %w", err)
	}

	out := make(map[string]node.Node, len(ids))
	for i, fields := range hashes {
		if len(fields) == 0 {
			continue
		}
		content := fields[FieldContent]
		meta := make(map[string]string, len(fields))
		for k, v := range fields {
			if k == FieldContent || k == FieldVector {
				continue
			}
			meta[k] = v
		}
		out[ids[i]] = node.New(ids[i], content, meta, 0, node.SourceVector)
	}
	return out, nil
}
