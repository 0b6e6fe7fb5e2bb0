package catalog

import (
	"context"
	"sync"
)

// BaseLeaf implements Leaf with inert defaults. Concrete leaves embed it
// and override what they need.
type BaseLeaf struct {
	typ   LeafType
	key   string
	name  string
	value any

	mu      sync.RWMutex
	aliases []string
}

// NewLeaf creates a plain leaf.
func NewLeaf(typ LeafType, key, name string, value any) *BaseLeaf {
	return &BaseLeaf{typ: typ, key: key, name: name, value: value}
}

func (l *BaseLeaf) Name() string                        { return l.name }
func (l *BaseLeaf) Key() string                         { return l.key }
func (l *BaseLeaf) Type() LeafType                      { return l.typ }
func (l *BaseLeaf) Value() any                          { return l.value }
func (l *BaseLeaf) Description() string                 { return "" }
func (l *BaseLeaf) HasContent() bool                    { return false }
func (l *BaseLeaf) ContentSource(alternate bool) Source { return nil }
func (l *BaseLeaf) Actions() []Action                   { return nil }
func (l *BaseLeaf) IsValid() bool                       { return true }

// Aliases returns a copy of the alternate names.
func (l *BaseLeaf) Aliases() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.aliases))
	copy(out, l.aliases)
	return out
}

// AddAlias records an alternate name. Used when grouping merges leaves that
// share an identity; duplicates and the primary name are ignored.
func (l *BaseLeaf) AddAlias(alias string) {
	if alias == "" || alias == l.name {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.aliases {
		if a == alias {
			return
		}
	}
	l.aliases = append(l.aliases, alias)
}

// SourceLeaf exposes a source as a browsable leaf.
type SourceLeaf struct {
	*BaseLeaf
	source Source
}

// SourceType is the leaf type of SourceLeaf.
const SourceType LeafType = "source"

// NewSourceLeaf wraps src.
func NewSourceLeaf(src Source) *SourceLeaf {
	return &SourceLeaf{
		BaseLeaf: NewLeaf(SourceType, "source:"+src.Key(), src.Name(), src),
		source:   src,
	}
}

func (l *SourceLeaf) HasContent() bool                    { return true }
func (l *SourceLeaf) ContentSource(alternate bool) Source { return l.source }

// Source returns the wrapped source.
func (l *SourceLeaf) Source() Source { return l.source }

// ListSource serves a fixed list of leaves.
type ListSource struct {
	name      string
	key       string
	leaves    []Leaf
	provides  []LeafType
	dynamic   bool
	lexically bool
}

// NewListSource creates a source over leaves.
func NewListSource(name, key string, leaves []Leaf, provides ...LeafType) *ListSource {
	return &ListSource{name: name, key: key, leaves: leaves, provides: provides}
}

// SetDynamic marks the source as never cacheable.
func (s *ListSource) SetDynamic(dynamic bool) *ListSource {
	s.dynamic = dynamic
	return s
}

// SetLexical requests collation ordering while browsing.
func (s *ListSource) SetLexical(lexical bool) *ListSource {
	s.lexically = lexical
	return s
}

func (s *ListSource) Name() string              { return s.name }
func (s *ListSource) Key() string               { return s.key }
func (s *ListSource) IsDynamic() bool           { return s.dynamic }
func (s *ListSource) Provides() []LeafType      { return s.provides }
func (s *ListSource) Parent() Source            { return nil }
func (s *ListSource) ShouldSortLexically() bool { return s.lexically }

func (s *ListSource) Items(ctx context.Context) ([]Leaf, error) {
	out := make([]Leaf, len(s.leaves))
	copy(out, s.leaves)
	return out, nil
}
