// Package plugin resolves per-request retrieval/generation behaviors from
// declarative specs. Each plugin may contribute metadata filters, ordered
// post-processing steps, and prompt constraints for answer synthesis.
package plugin

import (
	"fmt"

	"github.com/lumenkb/ragd/internal/domain"
	"github.com/lumenkb/ragd/internal/domain/retrieval/filter"
	"github.com/lumenkb/ragd/internal/domain/retrieval/request"
	"github.com/lumenkb/ragd/internal/postprocess"
)

// Built-in plugin names.
const (
	NameCompletion = "completion"
	NameRerank     = "rerank"
	NameImageOCR   = "image_ocr"
)

// Plugin is a named, per-request behavior unit. Capabilities are expressed
// by additionally implementing FilterContributor, ProcessorContributor,
// or PromptConstraintProvider.
type Plugin interface {
	Name() string
}

// FilterContributor yields retrieval-time metadata predicates.
type FilterContributor interface {
	RetrievalFilters() []filter.Filter
}

// ProcessorContributor yields ordered post-processing steps.
type ProcessorContributor interface {
	Processors() []postprocess.Processor
}

// PromptConstraintProvider yields an instruction appended to the synthesis prompt.
type PromptConstraintProvider interface {
	PromptConstraint() string
}

// Deps carries the process-wide collaborators plugins may need. Constructed
// once at startup and shared; plugins themselves hold no persistent state.
type Deps struct {
	Nodes  postprocess.NodeFetcher
	Rerank postprocess.RerankScorer
	Vision postprocess.ImageDescriber
}

// Factory builds a plugin instance from its request spec.
type Factory func(spec request.PluginSpec, deps Deps) (Plugin, error)

// Registry maps plugin names to factories.
type Registry struct {
	deps      Deps
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in plugins registered.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{
		deps:      deps,
		factories: make(map[string]Factory),
	}
	r.Register(NameCompletion, newCompletion)
	r.Register(NameRerank, newRerank)
	r.Register(NameImageOCR, newImageOCR)
	return r
}

// Register adds a plugin factory under a name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Resolve builds the enabled plugins for a request, preserving spec order.
// Unknown names and duplicate names fail before any backend call. A spec
// with Enabled=false suppresses that name entirely: no instance, no filters,
// no processors.
func (r *Registry) Resolve(specs []request.PluginSpec) ([]Plugin, error) {
	seen := make(map[string]struct{}, len(specs))
	plugins := make([]Plugin, 0, len(specs))

	for _, spec := range specs {
		if _, dup := seen[spec.Name]; dup {
			return nil, fmt.Errorf("%w: %q", domain.ErrDuplicatePlugin, spec.Name)
		}
		seen[spec.Name] = struct{}{}

		f, ok := r.factories[spec.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedPlugin, spec.Name)
		}
		if !spec.Enabled {
			continue
		}
		p, err := f(spec, r.deps)
		if err != nil {
			return nil, fmt.Errorf("plugin %q: %w", spec.Name, err)
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}

// Active reports whether a plugin with the given name is among the resolved set.
func Active(plugins []Plugin, name string) bool {
	for _, p := range plugins {
		if p.Name() == name {
			return true
		}
	}
	return false
}
