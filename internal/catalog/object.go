// Package catalog defines the object model shared by every catalog provider:
// leaves (items), actions applied to them, and the sources that produce them.
//
// Concrete providers implement the small interfaces below; optional
// capabilities (forced reloads, lexical ordering, live attachments,
// serialization) are expressed as separate interfaces discovered with a type
// assertion on the unwrapped source.
package catalog

import (
	"context"
	"strings"
)

// LeafType is a hierarchical, dot separated type tag. "file.directory" is a
// "file", and every type is an AnyType.
type LeafType string

// AnyType accepts every leaf type.
const AnyType LeafType = ""

// Is reports whether t is other or a subtype of other.
func (t LeafType) Is(other LeafType) bool {
	if other == AnyType || t == other {
		return true
	}
	return strings.HasPrefix(string(t), string(other)+".")
}

// TypeMatches reports whether t is accepted by the declared list.
// An empty list accepts everything.
func TypeMatches(t LeafType, accepted []LeafType) bool {
	if len(accepted) == 0 {
		return true
	}
	for _, a := range accepted {
		if t.Is(a) {
			return true
		}
	}
	return false
}

// TypesIntersect reports whether any provided type can satisfy any wanted
// type. Either side being empty means "unrestricted".
func TypesIntersect(provided, wanted []LeafType) bool {
	if len(provided) == 0 || len(wanted) == 0 {
		return true
	}
	for _, p := range provided {
		for _, w := range wanted {
			if p.Is(w) || w.Is(p) {
				return true
			}
		}
	}
	return false
}

// Object is anything that can appear in a pane: leaves and actions.
type Object interface {
	Name() string
	// Key is the identity used for equality, deduplication and learning.
	Key() string
}

// Leaf is a concrete catalog item.
type Leaf interface {
	Object
	Type() LeafType
	Value() any
	Aliases() []string
	Description() string
	HasContent() bool
	ContentSource(alternate bool) Source
	Actions() []Action
	IsValid() bool
}

// Action is an operation applicable to a leaf, optionally with a second
// leaf (the indirect object).
type Action interface {
	Object
	ItemTypes() []LeafType
	ObjectTypes() []LeafType
	ValidForItem(item Leaf) bool
	ValidObject(obj, forItem Leaf) bool
	RequiresObject() bool
	// IsFactory reports that Activate returns a Source to browse into.
	IsFactory() bool
	Activate(ctx context.Context, item, iobj Leaf) (Source, error)
}

// AsyncAction marks actions that must run on a background worker.
type AsyncAction interface {
	IsAsync() bool
}

// ObjectSourcer lets an action supply its own indirect object catalog.
type ObjectSourcer interface {
	ObjectSource(forItem Leaf) Source
}

// Source is a provider of leaves.
type Source interface {
	Object
	Items(ctx context.Context) ([]Leaf, error)
	// IsDynamic sources are never cached nor rescanned.
	IsDynamic() bool
	Provides() []LeafType
	// Parent returns nil when the source has no parent.
	Parent() Source
}

// ForcedSource provides a distinct "always live" reload path.
type ForcedSource interface {
	ItemsForced(ctx context.Context) ([]Leaf, error)
}

// LexicalSource asks for its items to be ordered by collation when browsed.
type LexicalSource interface {
	ShouldSortLexically() bool
}

// Composite sources are searched through their members.
type Composite interface {
	Subsources() []Source
}

// Versioned sources declare the schema of their cached snapshot.
type Versioned interface {
	SchemaVersion() int
}

// RescanRequester accepts out of band rescan demands.
type RescanRequester interface {
	RegisterRescan(src Source, force bool)
}

// Attacher sources own live state (watches, handles) that is not part of
// their durable snapshot and is re-established after every load.
type Attacher interface {
	Attach(r RescanRequester) error
	Detach()
}

// TextSource turns the raw query text itself into leaves.
type TextSource interface {
	Object
	TextItems(ctx context.Context, text string) ([]Leaf, error)
	// Rank is the fixed base rank given to produced leaves.
	Rank() float64
	Provides() []LeafType
}

// Unwrap strips catalog wrappers such as *Indexed.
func Unwrap(src Source) Source {
	for {
		ix, ok := src.(*Indexed)
		if !ok {
			return src
		}
		src = ix.Source
	}
}

// HasParent reports whether src can be browsed up.
func HasParent(src Source) bool {
	return src != nil && src.Parent() != nil
}

// ShouldSortLexically reports the lexical ordering preference of src.
func ShouldSortLexically(src Source) bool {
	ls, ok := Unwrap(src).(LexicalSource)
	return ok && ls.ShouldSortLexically()
}

// Subsources returns the members of a composite source, or nil.
func Subsources(src Source) []Source {
	if c, ok := Unwrap(src).(Composite); ok {
		return c.Subsources()
	}
	return nil
}

// SchemaVersion returns the declared snapshot schema, defaulting to 1.
func SchemaVersion(src Source) int {
	if v, ok := Unwrap(src).(Versioned); ok {
		return v.SchemaVersion()
	}
	return 1
}

// IsAsync reports whether action asked to run off the interactive domain.
func IsAsync(action Action) bool {
	a, ok := action.(AsyncAction)
	return ok && a.IsAsync()
}
