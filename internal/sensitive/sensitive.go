// Package sensitive flags configured words in generated answers so clients
// can mask or review them before display.
package sensitive

import (
	"sort"
	"strings"
)

// Span marks one occurrence of a flagged word. Offsets are byte positions
// into the scanned text.
type Span struct {
	Word  string `json:"word"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Scanner finds configured words in text, case-insensitively.
type Scanner struct {
	words []string
}

// NewScanner creates a scanner over a word list. Empty entries are dropped.
func NewScanner(words []string) *Scanner {
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			kept = append(kept, w)
		}
	}
	return &Scanner{words: kept}
}

// Scan returns every occurrence of every configured word, in text order.
func (s *Scanner) Scan(text string) []Span {
	if len(s.words) == 0 || text == "" {
		return nil
	}

	lower := strings.ToLower(text)
	var spans []Span
	for _, w := range s.words {
		needle := strings.ToLower(w)
		for from := 0; ; {
			i := strings.Index(lower[from:], needle)
			if i < 0 {
				break
			}
			start := from + i
			spans = append(spans, Span{Word: w, Start: start, End: start + len(needle)})
			from = start + len(needle)
		}
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}
