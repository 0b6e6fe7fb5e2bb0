package catalog

import (
	"context"
)

// MultiSource composes several sources into one catalog. It is always
// dynamic: its members carry their own caches.
type MultiSource struct {
	name    string
	key     string
	sources []Source
}

// NewMultiSource composes sources.
func NewMultiSource(name, key string, sources ...Source) *MultiSource {
	return &MultiSource{name: name, key: key, sources: sources}
}

func (m *MultiSource) Name() string         { return m.name }
func (m *MultiSource) Key() string          { return m.key }
func (m *MultiSource) IsDynamic() bool      { return true }
func (m *MultiSource) Parent() Source       { return nil }
func (m *MultiSource) Subsources() []Source { return m.sources }

// Provides is the union of the members' types, or nil when any member is
// unrestricted.
func (m *MultiSource) Provides() []LeafType {
	var out []LeafType
	seen := make(map[LeafType]bool)
	for _, src := range m.sources {
		provided := src.Provides()
		if len(provided) == 0 {
			return nil
		}
		for _, t := range provided {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// Items concatenates the members' leaves. A failing member is skipped.
func (m *MultiSource) Items(ctx context.Context) ([]Leaf, error) {
	var out []Leaf
	for _, src := range m.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		leaves, err := LeavesOf(ctx, src, false)
		if err != nil {
			continue
		}
		out = append(out, leaves...)
	}
	return out, nil
}

// SourcesSource lists catalog sources themselves, which makes the catalog
// browsable.
type SourcesSource struct {
	sources []Source
}

// NewSourcesSource lists sources.
func NewSourcesSource(sources ...Source) *SourcesSource {
	return &SourcesSource{sources: sources}
}

func (s *SourcesSource) Name() string         { return "Catalog Index" }
func (s *SourcesSource) Key() string          { return "catalog:sources" }
func (s *SourcesSource) IsDynamic() bool      { return true }
func (s *SourcesSource) Parent() Source       { return nil }
func (s *SourcesSource) Provides() []LeafType { return []LeafType{SourceType} }

// ShouldSortLexically orders the source list by name.
func (s *SourcesSource) ShouldSortLexically() bool { return true }

func (s *SourcesSource) Items(ctx context.Context) ([]Leaf, error) {
	out := make([]Leaf, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, NewSourceLeaf(src))
	}
	return out, nil
}
