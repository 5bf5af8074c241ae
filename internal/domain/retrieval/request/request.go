package request

import (
	"fmt"

	"github.com/lumenkb/ragd/internal/domain/retrieval/filter"
	"github.com/lumenkb/ragd/internal/domain/retrieval/mode"
)

// Retrieval parameter limits.
const (
	// MaxQueryLength is the maximum allowed query length.
	MaxQueryLength = 4096
	DefaultTopK    = 10
	MaxTopK        = 500
)

// PluginSpec is the declarative per-request configuration of one plugin:
// name, on/off status, and free-form parameters. Plugin instances are built
// from specs at request start and discarded at request end.
type PluginSpec struct {
	Name    string
	Enabled bool
	Params  map[string]string
}

// Request is a validated retrieval query.
type Request struct {
	query       string
	fileIDs     []string
	retMode     mode.Mode
	filters     filter.Filters
	topK        int
	scoreCutoff float64
	plugins     []PluginSpec
}

// New validates and normalizes retrieval parameters.
// Defaults: mode=fusion, topK=10. An empty fileIDs set is legal and means
// "retrieve nothing", never "match all".
func New(
	query string,
	fileIDs []string,
	m mode.Mode,
	filters filter.Filters,
	topK int,
	scoreCutoff float64,
	plugins []PluginSpec,
) (Request, error) {
	if query == "" {
		return Request{}, fmt.Errorf("query is required")
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars)", MaxQueryLength)
	}
	if m == "" {
		m = mode.Fusion
	}
	if !m.IsValid() {
		return Request{}, fmt.Errorf("invalid retrieval mode: %q", m)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	if scoreCutoff < 0 || scoreCutoff > 1 {
		return Request{}, fmt.Errorf("score cutoff must be between 0 and 1")
	}
	for _, p := range plugins {
		if p.Name == "" {
			return Request{}, fmt.Errorf("plugin name is required")
		}
	}

	ids := make([]string, len(fileIDs))
	copy(ids, fileIDs)

	specs := make([]PluginSpec, len(plugins))
	copy(specs, plugins)

	return Request{
		query:       query,
		fileIDs:     ids,
		retMode:     m,
		filters:     filters,
		topK:        topK,
		scoreCutoff: scoreCutoff,
		plugins:     specs,
	}, nil
}

// Query returns the query text.
func (r *Request) Query() string { return r.query }

// FileIDs returns the candidate document scope.
func (r *Request) FileIDs() []string { return r.fileIDs }

// Mode returns the retrieval strategy.
func (r *Request) Mode() mode.Mode { return r.retMode }

// Filters returns the user-supplied filter tree.
func (r *Request) Filters() filter.Filters { return r.filters }

// TopK returns the number of candidates to retrieve per index.
func (r *Request) TopK() int { return r.topK }

// ScoreCutoff returns the inclusive minimum backend score (0 disables).
func (r *Request) ScoreCutoff() float64 { return r.scoreCutoff }

// Plugins returns the ordered plugin specs.
func (r *Request) Plugins() []PluginSpec { return r.plugins }
