package answer

import (
	"fmt"
	"strings"

	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
)

const systemPrompt = `You are a knowledge-base assistant. Answer the question using only the numbered context fragments provided. Cite the fragments you used as [n] after the sentences they support. If the context does not contain the answer, say so instead of guessing.`

// buildPrompt assembles the system and user messages. Fragments are
// numbered from 1 in ranked order; those numbers are the citation keys the
// model is asked to emit, so the caller must keep the same node order when
// resolving citations.
func buildPrompt(query string, nodes []node.Node, constraints []string) (system, user string) {
	var sys strings.Builder
	sys.WriteString(systemPrompt)
	for _, c := range constraints {
		sys.WriteString("\n")
		sys.WriteString(c)
	}

	var b strings.Builder
	b.WriteString("Context:\n")
	for i, n := range nodes {
		title := n.Meta(node.MetaTitle)
		if title != "" {
			fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, title, n.Content())
		} else {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, n.Content())
		}
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)

	return sys.String(), b.String()
}
