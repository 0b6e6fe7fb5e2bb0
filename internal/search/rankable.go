// Package search aggregates leaves from many sources into one ranked,
// deduplicated result stream for a query.
package search

import (
	"iter"

	"quarry/internal/catalog"
)

// Rankable pairs an object with the string it matched on and its rank for
// one query. Identity is the object's key; the rank never takes part in it.
type Rankable struct {
	Value  string
	Object catalog.Object
	Rank   float64
}

// Key returns the identity of the backing object.
func (r Rankable) Key() string { return r.Object.Key() }

// Leaf returns the backing leaf, or nil for actions.
func (r Rankable) Leaf() catalog.Leaf {
	l, _ := r.Object.(catalog.Leaf)
	return l
}

// Action returns the backing action, or nil for leaves.
func (r Rankable) Action() catalog.Action {
	a, _ := r.Object.(catalog.Action)
	return a
}

func (r Rankable) valid() bool {
	if l, ok := r.Object.(catalog.Leaf); ok {
		return l.IsValid()
	}
	return true
}

// Result is the ranked outcome of one search. Items that stop being valid
// between ranking and consumption are skipped when iterated.
type Result struct {
	Key   string
	items []Rankable
}

// Len is the number of ranked items, including any that may later turn out
// invalid.
func (r *Result) Len() int { return len(r.items) }

// Best returns the highest ranked valid item.
func (r *Result) Best() (Rankable, bool) {
	for _, it := range r.items {
		if it.valid() {
			return it, true
		}
	}
	return Rankable{}, false
}

// All yields the valid items in rank order. Callers may stop early.
func (r *Result) All() iter.Seq[Rankable] {
	return func(yield func(Rankable) bool) {
		for _, it := range r.items {
			if !it.valid() {
				continue
			}
			if !yield(it) {
				return
			}
		}
	}
}

// Take collects at most n valid items; n <= 0 means all of them.
func (r *Result) Take(n int) []Rankable {
	var out []Rankable
	for it := range r.All() {
		out = append(out, it)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}
