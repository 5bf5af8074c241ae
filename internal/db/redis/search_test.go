package redis

import (
	"strings"
	"testing"

	"github.com/lumenkb/ragd/internal/domain/retrieval/filter"
)

func leafString(t *testing.T, key string, op filter.Operator, v string) filter.Filter {
	t.Helper()
	f, err := filter.NewString(key, op, v)
	if err != nil {
		t.Fatalf("NewString: %v", err)
	}
	return f
}

func leafList(t *testing.T, key string, op filter.Operator, vs []string) filter.Filter {
	t.Helper()
	f, err := filter.NewList(key, op, vs)
	if err != nil {
		t.Fatalf("NewList: %v", err)
	}
	return f
}

func leafNumber(t *testing.T, key string, op filter.Operator, v float64) filter.Filter {
	t.Helper()
	f, err := filter.NewNumber(key, op, v)
	if err != nil {
		t.Fatalf("NewNumber: %v", err)
	}
	return f
}

func group(t *testing.T, cond filter.Condition, nodes ...filter.Node) filter.Filters {
	t.Helper()
	g, err := filter.NewGroup(cond, nodes...)
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	return g
}

func TestCompileFilters(t *testing.T) {
	tests := []struct {
		name string
		in   filter.Filters
		want string
	}{
		{
			name: "empty group is pass-through",
			in:   filter.Filters{},
			want: "",
		},
		{
			name: "eq tag",
			in:   group(t, filter.CondAnd, leafString(t, "node_type", filter.EQ, "text")),
			want: "@node_type:{text}",
		},
		{
			name: "ne tag",
			in:   group(t, filter.CondAnd, leafString(t, "node_type", filter.NE, "qa")),
			want: "-@node_type:{qa}",
		},
		{
			name: "in list",
			in:   group(t, filter.CondAnd, leafList(t, "source_id", filter.IN, []string{"f1", "f2"})),
			want: "@source_id:{f1 | f2}",
		},
		{
			name: "nin list",
			in:   group(t, filter.CondAnd, leafList(t, "node_type", filter.NIN, []string{"image"})),
			want: "-@node_type:{image}",
		},
		{
			name: "all list",
			in:   group(t, filter.CondAnd, leafList(t, "extra", filter.All, []string{"a", "b"})),
			want: "(@extra:{a} @extra:{b})",
		},
		{
			name: "numeric range",
			in: group(t, filter.CondAnd,
				leafNumber(t, "chunk_seq", filter.GTE, 2),
				leafNumber(t, "chunk_seq2", filter.LT, 10),
			),
			want: "@chunk_seq:[2 +inf] @chunk_seq2:[-inf (10]",
		},
		{
			name: "numeric eq",
			in:   group(t, filter.CondAnd, leafNumber(t, "chunk_seq", filter.EQ, 3)),
			want: "@chunk_seq:[3 3]",
		},
		{
			name: "or group",
			in: group(t, filter.CondOr,
				leafString(t, "a", filter.EQ, "1"),
				leafString(t, "b", filter.EQ, "2"),
			),
			want: "(@a:{1} | @b:{2})",
		},
		{
			name: "nested group under and",
			in: group(t, filter.CondAnd,
				leafString(t, "a", filter.EQ, "1"),
				group(t, filter.CondOr,
					leafString(t, "b", filter.EQ, "2"),
					leafString(t, "c", filter.EQ, "3"),
				),
			),
			want: "@a:{1} (@b:{2} | @c:{3})",
		},
		{
			name: "tag value escaping",
			in:   group(t, filter.CondAnd, leafString(t, "title", filter.EQ, "a-b c")),
			want: `@title:{a\-b\ c}`,
		},
		{
			name: "contains wildcard",
			in:   group(t, filter.CondAnd, leafString(t, "title", filter.Contains, "intro")),
			want: "@title:{*intro*}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compileFilters(tt.in)
			if got != tt.want {
				t.Errorf("compileFilters() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompileFilters_TextMatchEscapes(t *testing.T) {
	in := group(t, filter.CondAnd, leafString(t, "extra", filter.TextMatch, "hello|world"))
	got := compileFilters(in)
	if !strings.Contains(got, `\|`) {
		t.Errorf("text match must escape query syntax, got %q", got)
	}
}
