package plugin

import (
	"fmt"
	"strconv"

	"github.com/lumenkb/ragd/internal/domain/retrieval/filter"
	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
	"github.com/lumenkb/ragd/internal/domain/retrieval/request"
	"github.com/lumenkb/ragd/internal/postprocess"
)

// Completion expands short retrieved chunks with neighboring context.
// Its retrieval constraint keeps context-only chunks out of direct recall:
// they re-enter through the completion walk instead of competing for rank.
type Completion struct {
	maxLen  int
	fetcher postprocess.NodeFetcher
}

func newCompletion(spec request.PluginSpec, deps Deps) (Plugin, error) {
	maxLen, err := intParam(spec.Params, "max_length", postprocess.DefaultMaxContentLength)
	if err != nil {
		return nil, err
	}
	if deps.Nodes == nil {
		return nil, fmt.Errorf("completion requires a node fetcher")
	}
	return &Completion{maxLen: maxLen, fetcher: deps.Nodes}, nil
}

// Name implements Plugin.
func (*Completion) Name() string { return NameCompletion }

// RetrievalFilters implements FilterContributor.
func (*Completion) RetrievalFilters() []filter.Filter {
	f, _ := filter.NewString(node.MetaIsContext, filter.EQ, "false")
	return []filter.Filter{f}
}

// Processors implements ProcessorContributor. Relation rebuild must run
// before completion so already-retrieved neighbors are not duplicated.
func (p *Completion) Processors() []postprocess.Processor {
	return []postprocess.Processor{
		postprocess.NewRelationRebuild(),
		postprocess.NewCompletion(p.fetcher, p.maxLen),
	}
}

// Rerank re-scores fused candidates with a cross-encoder.
type Rerank struct {
	topN   int
	scorer postprocess.RerankScorer
}

func newRerank(spec request.PluginSpec, deps Deps) (Plugin, error) {
	topN, err := intParam(spec.Params, "top_n", 0)
	if err != nil {
		return nil, err
	}
	if deps.Rerank == nil {
		return nil, fmt.Errorf("rerank requires a scorer client")
	}
	return &Rerank{topN: topN, scorer: deps.Rerank}, nil
}

// Name implements Plugin.
func (*Rerank) Name() string { return NameRerank }

// Processors implements ProcessorContributor.
func (p *Rerank) Processors() []postprocess.Processor {
	return []postprocess.Processor{postprocess.NewRerank(p.scorer, p.topN)}
}

// ImageOCR widens recall to image nodes and turns the ones relevant to the
// query into text descriptions before synthesis.
type ImageOCR struct {
	describer postprocess.ImageDescriber
}

func newImageOCR(_ request.PluginSpec, deps Deps) (Plugin, error) {
	if deps.Vision == nil {
		return nil, fmt.Errorf("image_ocr requires a vision describer")
	}
	return &ImageOCR{describer: deps.Vision}, nil
}

// Name implements Plugin.
func (*ImageOCR) Name() string { return NameImageOCR }

// RetrievalFilters implements FilterContributor. Without this plugin the
// built-in policy excludes image nodes entirely.
func (*ImageOCR) RetrievalFilters() []filter.Filter {
	f, _ := filter.NewList(node.MetaNodeType, filter.Any,
		[]string{node.TypeText, node.TypeQA, node.TypeImage})
	return []filter.Filter{f}
}

// Processors implements ProcessorContributor.
func (p *ImageOCR) Processors() []postprocess.Processor {
	return []postprocess.Processor{postprocess.NewImageDescription(p.describer)}
}

// PromptConstraint implements PromptConstraintProvider.
func (*ImageOCR) PromptConstraint() string {
	return "Some context fragments are descriptions of images from the source documents. " +
		"Treat them as factual content and cite them like any other fragment."
}

func intParam(params map[string]string, key string, def int) (int, error) {
	raw, ok := params[key]
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parameter %q must be an integer: %w", key, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("parameter %q must be non-negative", key)
	}
	return v, nil
}
