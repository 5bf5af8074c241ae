package filter

import (
	"fmt"
	"sort"
	"strings"
)

// Normalize prunes predicates whose key is not in allowedKeys, drops groups
// that become empty, and rejects trees that constrain a singular key more
// than once. Structure and order of the surviving members are preserved, so
// Normalize(Normalize(f)) == Normalize(f).
func Normalize(f Filters, allowedKeys map[string]struct{}) (Filters, error) {
	pruned := prune(f, allowedKeys)
	if err := checkDuplicateKeys(pruned.Leaves()); err != nil {
		return Filters{}, err
	}
	return pruned, nil
}

// Source is a named set of predicates contributed by one filter origin
// (entity scoping, built-in policy, a plugin).
type Source struct {
	Name    string
	Filters []Filter
}

// Merge combines the user filter tree with predicate sources into a single
// AND group. A singular key constrained by more than one origin is a hard
// error: silent override would produce wrong result sets, so the collision
// surfaces before any backend call.
func Merge(user Filters, sources ...Source) (Filters, error) {
	type origin struct {
		name string
		f    Filter
	}
	var all []origin
	for _, f := range user.Leaves() {
		all = append(all, origin{name: "user", f: f})
	}
	for _, src := range sources {
		for _, f := range src.Filters {
			all = append(all, origin{name: src.Name, f: f})
		}
	}

	byKey := make(map[string][]string)
	for _, o := range all {
		if o.f.Key() == ExtraKey {
			continue
		}
		byKey[o.f.Key()] = append(byKey[o.f.Key()], o.name)
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(byKey[k]) > 1 {
			return Filters{}, fmt.Errorf("%w: key %q constrained by %s",
				ErrDuplicateKey, k, strings.Join(byKey[k], ", "))
		}
	}

	var nodes []Node
	if !user.IsEmpty() {
		nodes = append(nodes, user)
	}
	for _, src := range sources {
		for _, f := range src.Filters {
			nodes = append(nodes, f)
		}
	}
	return NewGroup(CondAnd, nodes...)
}

// prune removes disallowed keys and empty nested groups. A nil allowedKeys
// set allows everything.
func prune(f Filters, allowed map[string]struct{}) Filters {
	kept := make([]Node, 0, len(f.nodes))
	for _, n := range f.nodes {
		switch v := n.(type) {
		case Filter:
			if allowed == nil {
				kept = append(kept, v)
				continue
			}
			if _, ok := allowed[v.Key()]; ok {
				kept = append(kept, v)
			}
		case Filters:
			sub := prune(v, allowed)
			if !sub.IsEmpty() {
				kept = append(kept, sub)
			}
		}
	}
	return Filters{condition: f.Condition(), nodes: kept}
}

// checkDuplicateKeys rejects any singular key constrained more than once
// across the whole tree. ExtraKey is exempt.
func checkDuplicateKeys(leaves []Filter) error {
	seen := make(map[string]int, len(leaves))
	for _, f := range leaves {
		if f.Key() == ExtraKey {
			continue
		}
		seen[f.Key()]++
		if seen[f.Key()] > 1 {
			return fmt.Errorf("%w: key %q occurs %d times", ErrDuplicateKey, f.Key(), seen[f.Key()])
		}
	}
	return nil
}
