// Package retrieval orchestrates multi-source retrieval: filter merging,
// parallel per-index fetch, two-level rank fusion, and the post-processor
// chain that prepares nodes for answer synthesis.
package retrieval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumenkb/ragd/internal/domain"
	"github.com/lumenkb/ragd/internal/domain/retrieval/filter"
	"github.com/lumenkb/ragd/internal/domain/retrieval/mode"
	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
	"github.com/lumenkb/ragd/internal/domain/retrieval/request"
	"github.com/lumenkb/ragd/internal/logger"
	"github.com/lumenkb/ragd/internal/metrics"
	"github.com/lumenkb/ragd/internal/plugin"
	"github.com/lumenkb/ragd/internal/postprocess"
)

// Result is the outcome of one retrieval: the final ranked node list plus
// the prompt constraints contributed by active plugins, in plugin order.
type Result struct {
	Nodes             []node.Node
	PromptConstraints []string
}

// Service runs the retrieval pipeline.
type Service struct {
	vector      []Retriever // same-scale sub-index retrievers (chunk, QA)
	keyword     Retriever   // nil when no full-text index is configured
	plugins     *plugin.Registry
	access      AccessRecorder // nil disables audit
	allowedKeys map[string]struct{}
}

// New creates a retrieval service. allowedKeys lists the metadata keys user
// filters may constrain; predicates over other keys are silently pruned.
func New(vector []Retriever, keyword Retriever, registry *plugin.Registry, access AccessRecorder, allowedKeys []string) *Service {
	allowed := make(map[string]struct{}, len(allowedKeys))
	for _, k := range allowedKeys {
		allowed[k] = struct{}{}
	}
	return &Service{
		vector:      vector,
		keyword:     keyword,
		plugins:     registry,
		access:      access,
		allowedKeys: allowed,
	}
}

// Retrieve executes one retrieval request end to end.
func (s *Service) Retrieve(ctx context.Context, req *request.Request) (*Result, error) {
	start := time.Now()

	res, err := s.retrieve(ctx, req)

	status := "ok"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	metrics.RetrievalRequestsTotal.WithLabelValues(string(req.Mode()), status).Inc()
	metrics.RetrievalDuration.WithLabelValues(string(req.Mode())).Observe(time.Since(start).Seconds())
	if res != nil {
		metrics.RetrievalResultCount.WithLabelValues(string(req.Mode())).Observe(float64(len(res.Nodes)))
	}

	if s.access != nil {
		entry := domain.AccessEntry{
			RequestID:  logger.RequestIDFromContext(ctx),
			Operation:  "retrieve",
			Query:      req.Query(),
			Mode:       string(req.Mode()),
			FileCount:  len(req.FileIDs()),
			DurationMS: time.Since(start).Milliseconds(),
			Error:      errMsg,
			At:         time.Now(),
		}
		if res != nil {
			for _, n := range res.Nodes {
				entry.ResultIDs = append(entry.ResultIDs, n.ID())
			}
		}
		s.access.Record(entry)
	}

	return res, err
}

func (s *Service) retrieve(ctx context.Context, req *request.Request) (*Result, error) {
	// No candidate documents means an empty result, not "match all".
	// Short-circuit before any plugin or backend work.
	if len(req.FileIDs()) == 0 {
		return &Result{Nodes: []node.Node{}}, nil
	}

	plugins, err := s.plugins.Resolve(req.Plugins())
	if err != nil {
		return nil, err
	}

	merged, err := s.mergeFilters(req, plugins)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidFilter, err)
	}

	retrievers, err := s.selectRetrievers(req.Mode())
	if err != nil {
		return nil, err
	}

	lists, err := s.fetchAll(ctx, retrievers, req, merged)
	if err != nil {
		return nil, err
	}

	fused := s.fuse(req, retrievers, lists)

	procs := buildProcessors(req, plugins)
	nodes, err := postprocess.Run(ctx, req.Query(), fused, procs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPostprocessFailed, err)
	}
	if nodes == nil {
		nodes = []node.Node{}
	}

	return &Result{
		Nodes:             nodes,
		PromptConstraints: promptConstraints(plugins),
	}, nil
}

// mergeFilters combines the four filter origins into one AND group:
// normalized user filters, entity scoping, built-in policy, and per-plugin
// contributions. A singular key constrained by more than one origin fails
// here, before any backend call.
func (s *Service) mergeFilters(req *request.Request, plugins []plugin.Plugin) (filter.Filters, error) {
	user, err := filter.Normalize(req.Filters(), s.allowedKeys)
	if err != nil {
		return filter.Filters{}, err
	}

	scoping, err := filter.NewList(node.MetaSourceID, filter.IN, req.FileIDs())
	if err != nil {
		return filter.Filters{}, err
	}
	sources := []filter.Source{
		{Name: "scoping", Filters: []filter.Filter{scoping}},
	}

	// Built-in policy: image nodes stay out of recall unless the image
	// recognition plugin is active, in which case the plugin widens the
	// node_type constraint itself.
	if !plugin.Active(plugins, plugin.NameImageOCR) {
		noImages, err := filter.NewList(node.MetaNodeType, filter.NIN, []string{node.TypeImage})
		if err != nil {
			return filter.Filters{}, err
		}
		sources = append(sources, filter.Source{Name: "builtin", Filters: []filter.Filter{noImages}})
	}

	for _, p := range plugins {
		fc, ok := p.(plugin.FilterContributor)
		if !ok {
			continue
		}
		if fs := fc.RetrievalFilters(); len(fs) > 0 {
			sources = append(sources, filter.Source{Name: "plugin:" + p.Name(), Filters: fs})
		}
	}

	return filter.Merge(user, sources...)
}

// selectRetrievers picks the ranked-list sources for the requested mode.
func (s *Service) selectRetrievers(m mode.Mode) ([]Retriever, error) {
	switch m {
	case mode.Semantic:
		if len(s.vector) == 0 {
			return nil, fmt.Errorf("%w: no vector index configured", domain.ErrUnsupportedMode)
		}
		return s.vector, nil
	case mode.Keyword:
		if s.keyword == nil {
			return nil, domain.ErrKeywordSearchNotSupported
		}
		return []Retriever{s.keyword}, nil
	case mode.Fusion:
		if len(s.vector) == 0 {
			return nil, fmt.Errorf("%w: no vector index configured", domain.ErrUnsupportedMode)
		}
		rs := make([]Retriever, 0, len(s.vector)+1)
		rs = append(rs, s.vector...)
		// Fusion degrades to vector-only when no full-text index exists.
		if s.keyword != nil {
			rs = append(rs, s.keyword)
		}
		return rs, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedMode, m)
}

// fetchAll queries every retriever concurrently. Results land in a slice
// indexed by retriever position, so the outcome is identical to sequential
// execution. Individual failures are tolerated; all failing is an error.
func (s *Service) fetchAll(ctx context.Context, retrievers []Retriever, req *request.Request, filters filter.Filters) ([][]node.Node, error) {
	log := logger.FromContext(ctx)

	type outcome struct {
		nodes []node.Node
		err   error
	}
	outcomes := make([]outcome, len(retrievers))

	var wg sync.WaitGroup
	for i, r := range retrievers {
		i, r := i, r
		wg.Add(1)
		go func() {
			defer wg.Done()
			nodes, err := r.Retrieve(ctx, req.Query(), filters, req.TopK(), req.ScoreCutoff())
			outcomes[i] = outcome{nodes: nodes, err: err}
		}()
	}
	wg.Wait()

	lists := make([][]node.Node, len(retrievers))
	var firstErr error
	failed := 0
	for i, o := range outcomes {
		if o.err != nil {
			failed++
			if firstErr == nil {
				firstErr = o.err
			}
			log.Warn("retriever failed",
				zap.String("retriever", retrievers[i].Name()),
				zap.Error(o.err))
			metrics.RetrieverErrorsTotal.WithLabelValues(retrievers[i].Name()).Inc()
			continue
		}
		lists[i] = o.nodes
	}

	if failed == len(retrievers) {
		return nil, fmt.Errorf("%w: %w", domain.ErrNoRetrievableContent, firstErr)
	}
	return lists, nil
}

// fuse runs the two fusion levels. Level 1 merges the same-scale vector
// lists by raw score; level 2 folds in the keyword list with RRF. Failed
// retrievers contribute empty lists and simply drop out.
func (s *Service) fuse(req *request.Request, retrievers []Retriever, lists [][]node.Node) []node.Node {
	var vectorLists, keywordLists [][]node.Node
	for i, r := range retrievers {
		if len(lists[i]) == 0 {
			continue
		}
		if r.Source() == node.SourceKeyword {
			keywordLists = append(keywordLists, lists[i])
		} else {
			vectorLists = append(vectorLists, lists[i])
		}
	}

	switch req.Mode() {
	case mode.Keyword:
		if len(keywordLists) == 0 {
			return []node.Node{}
		}
		return keywordLists[0]
	case mode.Semantic:
		return mergeByScore(vectorLists, req.TopK())
	}

	level1 := mergeByScore(vectorLists, req.TopK())
	if len(keywordLists) == 0 {
		return level1
	}
	rrfInput := append([][]node.Node{level1}, keywordLists...)
	return fuseRRF(rrfInput, req.TopK())
}

// buildProcessors concatenates plugin processors in plugin order, then the
// defaults, so final truncation is deterministic regardless of which
// plugins ran. The raw-score cutoff only makes sense before RRF rescoring,
// so in fusion mode it is enforced at the retriever level instead.
func buildProcessors(req *request.Request, plugins []plugin.Plugin) []postprocess.Processor {
	var procs []postprocess.Processor
	for _, p := range plugins {
		if pc, ok := p.(plugin.ProcessorContributor); ok {
			procs = append(procs, pc.Processors()...)
		}
	}
	if req.Mode() != mode.Fusion {
		procs = append(procs, postprocess.NewScoreCutoff(req.ScoreCutoff()))
	}
	procs = append(procs, postprocess.NewTopK(req.TopK()))
	return procs
}

func promptConstraints(plugins []plugin.Plugin) []string {
	var out []string
	for _, p := range plugins {
		if pp, ok := p.(plugin.PromptConstraintProvider); ok {
			if c := pp.PromptConstraint(); c != "" {
				out = append(out, c)
			}
		}
	}
	return out
}
