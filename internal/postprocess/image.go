package postprocess

import (
	"context"
	"fmt"

	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
)

// ImageDescriber turns an image reference into text relevant to the query.
// relevant=false means the model judged the image unrelated to the query.
type ImageDescriber interface {
	Describe(ctx context.Context, query, imageRef string) (text string, relevant bool, err error)
}

// ImageDescription replaces image-node content (an image reference) with a
// model-generated description, and drops image nodes the model scored
// irrelevant to the query. Text and QA nodes pass through untouched.
type ImageDescription struct {
	describer ImageDescriber
}

// NewImageDescription creates the image description processor.
func NewImageDescription(describer ImageDescriber) *ImageDescription {
	return &ImageDescription{describer: describer}
}

// Name implements Processor.
func (*ImageDescription) Name() string { return "image_description" }

// Process implements Processor.
func (p *ImageDescription) Process(ctx context.Context, query string, nodes []node.Node) ([]node.Node, error) {
	out := make([]node.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Meta(node.MetaNodeType) != node.TypeImage {
			out = append(out, n)
			continue
		}
		text, relevant, err := p.describer.Describe(ctx, query, n.Content())
		if err != nil {
			return nil, fmt.Errorf("describe image %s: %w", n.ID(), err)
		}
		if !relevant {
			continue
		}
		out = append(out, n.WithContent(text))
	}
	return out, nil
}
