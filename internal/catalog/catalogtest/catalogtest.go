// Package catalogtest provides in-memory sources and actions for tests.
package catalogtest

import (
	"context"
	"sync"
	"sync/atomic"

	"quarry/internal/catalog"
)

// LeafType is the type of leaves built by Leaves.
const LeafType catalog.LeafType = "test"

// Leaf builds a test leaf whose key is derived from name.
func Leaf(name string) *catalog.BaseLeaf {
	return catalog.NewLeaf(LeafType, "test:"+name, name, name)
}

// Leaves builds one test leaf per name.
func Leaves(names ...string) []catalog.Leaf {
	out := make([]catalog.Leaf, 0, len(names))
	for _, n := range names {
		out = append(out, Leaf(n))
	}
	return out
}

// Names returns the display names of objects, in order.
func Names[T catalog.Object](objs []T) []string {
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.Name())
	}
	return out
}

// Source is a configurable fake source. Its fields may be changed between
// calls; enumeration is counted.
type Source struct {
	SourceName string
	SourceKey  string
	Dynamic    bool
	Lexical    bool
	Types      []catalog.LeafType
	ParentSrc  catalog.Source
	Version    int

	mu     sync.Mutex
	leaves []catalog.Leaf
	err    error
	panics bool

	calls  atomic.Int32
	forced atomic.Int32
}

// NewSource creates a fake source over leaves.
func NewSource(name string, leaves ...catalog.Leaf) *Source {
	return &Source{SourceName: name, SourceKey: "test-source:" + name, leaves: leaves}
}

// SetLeaves replaces what the next enumeration returns.
func (s *Source) SetLeaves(leaves ...catalog.Leaf) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves = leaves
}

// Fail makes enumeration return err (nil clears it).
func (s *Source) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Panic makes enumeration panic.
func (s *Source) Panic(p bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panics = p
}

// Calls returns how many times the source was enumerated.
func (s *Source) Calls() int { return int(s.calls.Load()) }

// ForcedCalls returns how many enumerations went through ItemsForced.
func (s *Source) ForcedCalls() int { return int(s.forced.Load()) }

func (s *Source) Name() string                 { return s.SourceName }
func (s *Source) Key() string                  { return s.SourceKey }
func (s *Source) IsDynamic() bool              { return s.Dynamic }
func (s *Source) Provides() []catalog.LeafType { return s.Types }
func (s *Source) Parent() catalog.Source       { return s.ParentSrc }
func (s *Source) ShouldSortLexically() bool    { return s.Lexical }

// SchemaVersion defaults to 1.
func (s *Source) SchemaVersion() int {
	if s.Version == 0 {
		return 1
	}
	return s.Version
}

func (s *Source) Items(ctx context.Context) ([]catalog.Leaf, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panics {
		panic("catalogtest: source " + s.SourceName + " panicked")
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]catalog.Leaf, len(s.leaves))
	copy(out, s.leaves)
	return out, nil
}

func (s *Source) ItemsForced(ctx context.Context) ([]catalog.Leaf, error) {
	s.forced.Add(1)
	return s.Items(ctx)
}

// Action is a recording fake action.
type Action struct {
	ActionName string
	Items      []catalog.LeafType
	Objects    []catalog.LeafType
	NeedsObj   bool
	Factory    catalog.Source
	Async      bool
	Err        error
	// ObjSource, when set, is offered as the indirect object catalog.
	ObjSource catalog.Source

	mu    sync.Mutex
	calls []Call
}

// Call records one activation.
type Call struct {
	Item catalog.Leaf
	Obj  catalog.Leaf
}

// NewAction creates an action accepting every item type.
func NewAction(name string) *Action {
	return &Action{ActionName: name}
}

// Calls returns the recorded activations.
func (a *Action) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Call, len(a.calls))
	copy(out, a.calls)
	return out
}

func (a *Action) Name() string                    { return a.ActionName }
func (a *Action) Key() string                     { return "test-action:" + a.ActionName }
func (a *Action) ItemTypes() []catalog.LeafType   { return a.Items }
func (a *Action) ObjectTypes() []catalog.LeafType { return a.Objects }
func (a *Action) RequiresObject() bool            { return a.NeedsObj }
func (a *Action) IsFactory() bool                 { return a.Factory != nil }
func (a *Action) IsAsync() bool                   { return a.Async }

func (a *Action) ValidObject(obj, forItem catalog.Leaf) bool {
	return catalog.TypeMatches(obj.Type(), a.Objects)
}

func (a *Action) ValidForItem(item catalog.Leaf) bool {
	return catalog.TypeMatches(item.Type(), a.Items)
}

// ObjectSource returns ObjSource, which may be nil.
func (a *Action) ObjectSource(forItem catalog.Leaf) catalog.Source {
	return a.ObjSource
}

func (a *Action) Activate(ctx context.Context, item, iobj catalog.Leaf) (catalog.Source, error) {
	a.mu.Lock()
	a.calls = append(a.calls, Call{Item: item, Obj: iobj})
	a.mu.Unlock()
	if a.Err != nil {
		return nil, a.Err
	}
	return a.Factory, nil
}

// TextSource echoes the query back as a leaf.
type TextSource struct {
	BaseRank float64
}

func (t *TextSource) Name() string                 { return "Echo" }
func (t *TextSource) Key() string                  { return "test-text:echo" }
func (t *TextSource) Rank() float64                { return t.BaseRank }
func (t *TextSource) Provides() []catalog.LeafType { return []catalog.LeafType{"text"} }

func (t *TextSource) TextItems(ctx context.Context, text string) ([]catalog.Leaf, error) {
	return []catalog.Leaf{catalog.NewLeaf("text", "text:"+text, text, text)}, nil
}

// ContentLeaf is a leaf that can be browsed into.
type ContentLeaf struct {
	*catalog.BaseLeaf
	Content   catalog.Source
	Alternate catalog.Source
	Acts      []catalog.Action
	Invalid   atomic.Bool
}

// NewContentLeaf creates a browsable test leaf.
func NewContentLeaf(name string, content catalog.Source, actions ...catalog.Action) *ContentLeaf {
	return &ContentLeaf{BaseLeaf: Leaf(name), Content: content, Acts: actions}
}

func (l *ContentLeaf) HasContent() bool          { return l.Content != nil }
func (l *ContentLeaf) Actions() []catalog.Action { return l.Acts }
func (l *ContentLeaf) IsValid() bool             { return !l.Invalid.Load() }

func (l *ContentLeaf) ContentSource(alternate bool) catalog.Source {
	if alternate && l.Alternate != nil {
		return l.Alternate
	}
	return l.Content
}
