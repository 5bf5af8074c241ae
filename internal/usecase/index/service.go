// Package index manages the FT indexes the retrieval pipeline searches:
// two vector indexes (document chunks, QA pairs) and one full-text index.
package index

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lumenkb/ragd/internal/compensate"
	"github.com/lumenkb/ragd/internal/db"
	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
	"github.com/lumenkb/ragd/internal/logger"
	"github.com/lumenkb/ragd/internal/repository"
)

// Config names the indexes and their key prefixes. The keyword index
// shares the chunk prefix: it is a text view over the same hashes.
type Config struct {
	ChunkIndex   string
	ChunkPrefix  string
	QAIndex      string
	QAPrefix     string
	KeywordIndex string // empty disables keyword search
	VectorDim    int
	HNSWM        int
	HNSWEFConst  int
}

// Service creates and drops the retrieval indexes.
type Service struct {
	mgr db.IndexManager
	cfg Config
}

// New creates an index admin service.
func New(mgr db.IndexManager, cfg Config) *Service {
	return &Service{mgr: mgr, cfg: cfg}
}

// EnsureIndexes creates any missing index. If a creation fails midway, the
// indexes created by this call are dropped again so a retry starts clean.
func (s *Service) EnsureIndexes(ctx context.Context) error {
	log := logger.FromContext(ctx)

	defs, err := s.definitions(ctx)
	if err != nil {
		return err
	}

	var undo compensate.List
	for _, def := range defs {
		exists, err := s.mgr.IndexExists(ctx, def.Name)
		if err != nil {
			undo.Run(ctx)
			return fmt.Errorf("probe index %s: %w", def.Name, err)
		}
		if exists {
			continue
		}

		if err := s.mgr.CreateIndex(ctx, def); err != nil {
			if errors.Is(err, db.ErrIndexExists) {
				continue
			}
			undo.Run(ctx)
			return fmt.Errorf("create index %s: %w", def.Name, err)
		}
		log.Info("created index", zap.String("index", def.Name))

		name := def.Name
		undo.Add("drop index "+name, func(ctx context.Context) error {
			return s.mgr.DropIndex(ctx, name)
		})
	}
	return nil
}

// DropIndexes removes all managed indexes. Missing indexes are not an error.
func (s *Service) DropIndexes(ctx context.Context) error {
	defs, err := s.definitions(ctx)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if err := s.mgr.DropIndex(ctx, def.Name); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
			return fmt.Errorf("drop index %s: %w", def.Name, err)
		}
	}
	return nil
}

// KeywordEnabled reports whether the deployment has a keyword index.
func (s *Service) KeywordEnabled(ctx context.Context) bool {
	return s.cfg.KeywordIndex != "" && s.mgr.SupportsTextSearch(ctx)
}

func (s *Service) definitions(ctx context.Context) ([]*db.IndexDefinition, error) {
	var defs []*db.IndexDefinition

	chunk, err := s.vectorDefinition(s.cfg.ChunkIndex, s.cfg.ChunkPrefix)
	if err != nil {
		return nil, err
	}
	defs = append(defs, chunk)

	qa, err := s.vectorDefinition(s.cfg.QAIndex, s.cfg.QAPrefix)
	if err != nil {
		return nil, err
	}
	defs = append(defs, qa)

	if s.KeywordEnabled(ctx) {
		kw, err := db.NewIndex(s.cfg.KeywordIndex).
			Prefix(s.cfg.ChunkPrefix).
			Text(repository.FieldContent).
			Tag(node.MetaSourceID).
			Tag(node.MetaNodeType).
			Tag(node.MetaIsContext).
			Build()
		if err != nil {
			return nil, err
		}
		defs = append(defs, kw)
	}
	return defs, nil
}

func (s *Service) vectorDefinition(name, prefix string) (*db.IndexDefinition, error) {
	return db.NewIndex(name).
		Prefix(prefix).
		VectorHNSW(repository.FieldVector, s.cfg.VectorDim, db.DistanceCosine, s.cfg.HNSWM, s.cfg.HNSWEFConst).
		Tag(node.MetaSourceID).
		Tag(node.MetaNodeType).
		Tag(node.MetaIsContext).
		Tag(node.MetaPrevID).
		Tag(node.MetaNextID).
		Tag(node.MetaTitle).
		Tag(node.MetaExtra).
		Build()
}
