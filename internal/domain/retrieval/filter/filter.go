package filter

import (
	"errors"
	"fmt"
)

// ExtraKey is the one metadata key that may carry several independent
// predicates in a single request. It is an open attribute bag; every other
// key must be singly constrained so AND/OR combination across fusion sources
// stays unambiguous.
const ExtraKey = "extra"

// MaxFiltersPerGroup is the maximum number of direct members per filter group.
const MaxFiltersPerGroup = 32

// ErrDuplicateKey signals that a singular key is constrained more than once
// across the whole filter tree or across merge sources.
var ErrDuplicateKey = errors.New("duplicate filter key")

// Operator is a metadata predicate operator.
type Operator string

// Supported predicate operators.
const (
	EQ        Operator = "eq"
	NE        Operator = "ne"
	GT        Operator = "gt"
	LT        Operator = "lt"
	GTE       Operator = "gte"
	LTE       Operator = "lte"
	IN        Operator = "in"
	NIN       Operator = "nin"
	Any       Operator = "any"
	All       Operator = "all"
	TextMatch Operator = "text_match"
	Contains  Operator = "contains"
	Exclude   Operator = "exclude"
)

// IsValid checks if the operator is one of the supported values.
func (o Operator) IsValid() bool {
	switch o {
	case EQ, NE, GT, LT, GTE, LTE, IN, NIN, Any, All, TextMatch, Contains, Exclude:
		return true
	}
	return false
}

// RequiresList reports whether the operator takes an array value.
func (o Operator) RequiresList() bool {
	switch o {
	case IN, NIN, Any, All, Exclude:
		return true
	}
	return false
}

// RequiresNumber reports whether the operator takes a numeric value.
func (o Operator) RequiresNumber() bool {
	switch o {
	case GT, LT, GTE, LTE:
		return true
	}
	return false
}

// Node is a member of a filter group: either a single Filter predicate
// or a nested Filters group.
type Node interface {
	isNode()
}

// Filter is a single metadata predicate.
type Filter struct {
	key     string
	op      Operator
	str     string
	num     float64
	numeric bool
	list    []string
}

func (Filter) isNode() {}

// NewString creates a predicate over a string value (EQ, NE, TEXT_MATCH, CONTAINS).
func NewString(key string, op Operator, value string) (Filter, error) {
	if err := validateKeyOp(key, op); err != nil {
		return Filter{}, err
	}
	if op.RequiresList() {
		return Filter{}, fmt.Errorf("operator %q requires an array value for key %q", op, key)
	}
	if op.RequiresNumber() {
		return Filter{}, fmt.Errorf("operator %q requires a numeric value for key %q", op, key)
	}
	return Filter{key: key, op: op, str: value}, nil
}

// NewNumber creates a numeric comparison predicate (EQ, NE, GT, LT, GTE, LTE).
func NewNumber(key string, op Operator, value float64) (Filter, error) {
	if err := validateKeyOp(key, op); err != nil {
		return Filter{}, err
	}
	switch op {
	case EQ, NE, GT, LT, GTE, LTE:
	default:
		return Filter{}, fmt.Errorf("operator %q does not take a numeric value for key %q", op, key)
	}
	return Filter{key: key, op: op, num: value, numeric: true, str: formatNumber(value)}, nil
}

// NewList creates a predicate over an array value (IN, NIN, ANY, ALL, EXCLUDE).
func NewList(key string, op Operator, values []string) (Filter, error) {
	if err := validateKeyOp(key, op); err != nil {
		return Filter{}, err
	}
	if !op.RequiresList() {
		return Filter{}, fmt.Errorf("operator %q does not take an array value for key %q", op, key)
	}
	if len(values) == 0 {
		return Filter{}, fmt.Errorf("operator %q requires a non-empty array for key %q", op, key)
	}
	out := make([]string, len(values))
	copy(out, values)
	return Filter{key: key, op: op, list: out}, nil
}

func validateKeyOp(key string, op Operator) error {
	if key == "" {
		return errors.New("filter key is required")
	}
	if !op.IsValid() {
		return fmt.Errorf("unknown filter operator %q for key %q", op, key)
	}
	return nil
}

// Key returns the metadata field name.
func (f Filter) Key() string { return f.key }

// Operator returns the predicate operator.
func (f Filter) Operator() Operator { return f.op }

// Str returns the scalar value (string form for numerics).
func (f Filter) Str() string { return f.str }

// Num returns the numeric value for comparison operators.
func (f Filter) Num() float64 { return f.num }

// IsNumber reports whether the predicate value is numeric.
func (f Filter) IsNumber() bool { return f.numeric }

// List returns the array value for list operators.
func (f Filter) List() []string { return f.list }

// Condition combines the members of a filter group.
type Condition string

// Group combinators.
const (
	CondAnd Condition = "and"
	CondOr  Condition = "or"
)

// IsValid checks if the condition is one of the supported values.
func (c Condition) IsValid() bool { return c == CondAnd || c == CondOr }

// Filters is a boolean group of predicates and nested groups. The tree is
// acyclic by construction. An empty group is a pass-through, never an
// exclude-all.
type Filters struct {
	condition Condition
	nodes     []Node
}

func (Filters) isNode() {}

// NewGroup validates and creates a filter group. Order of members is
// preserved; it matters for readable query construction, not semantics.
func NewGroup(cond Condition, nodes ...Node) (Filters, error) {
	if cond == "" {
		cond = CondAnd
	}
	if !cond.IsValid() {
		return Filters{}, fmt.Errorf("unknown filter condition %q", cond)
	}
	if len(nodes) > MaxFiltersPerGroup {
		return Filters{}, fmt.Errorf("too many filters in group (max %d)", MaxFiltersPerGroup)
	}
	out := make([]Node, len(nodes))
	copy(out, nodes)
	return Filters{condition: cond, nodes: out}, nil
}

// Condition returns the group combinator (AND when unset).
func (f Filters) Condition() Condition {
	if f.condition == "" {
		return CondAnd
	}
	return f.condition
}

// Nodes returns the group members.
func (f Filters) Nodes() []Node { return f.nodes }

// IsEmpty reports whether the group has no members.
func (f Filters) IsEmpty() bool { return len(f.nodes) == 0 }

// Leaves flattens the tree and returns every predicate, ignoring group
// boundaries, in depth-first order.
func (f Filters) Leaves() []Filter {
	var out []Filter
	var walk func(g Filters)
	walk = func(g Filters) {
		for _, n := range g.nodes {
			switch v := n.(type) {
			case Filter:
				out = append(out, v)
			case Filters:
				walk(v)
			}
		}
	}
	walk(f)
	return out
}

func formatNumber(v float64) string {
	return fmt.Sprintf("%g", v)
}
