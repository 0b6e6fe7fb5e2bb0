// Package registry owns every catalog source, their on-disk snapshots and
// the composed catalog root.
package registry

import (
	"context"
	"strings"
	"sync"

	"quarry/internal/catalog"
	"quarry/internal/errors"
	"quarry/internal/log"

	"golang.org/x/sync/errgroup"
)

const (
	rootName = "Catalog"
	rootKey  = "catalog:root"

	defaultLoadWorkers = 4
)

// Registry is the single owner of the catalog sources.
type Registry struct {
	cacheDir    string
	codecs      *catalog.Codecs
	logger      log.Logging
	loadWorkers int

	mu          sync.RWMutex
	sources     []*catalog.Indexed
	textSources []catalog.TextSource
	actions     []catalog.Action
	root        catalog.Source
	attached    []catalog.Attacher
}

// New creates an empty registry caching into cacheDir.
func New(cacheDir string, logger log.Logging) *Registry {
	return &Registry{
		cacheDir:    cacheDir,
		codecs:      catalog.NewCodecs(),
		logger:      logger,
		loadWorkers: defaultLoadWorkers,
	}
}

// RegisterLeafCodec installs the cache decoder for a leaf type.
func (r *Registry) RegisterLeafCodec(typ catalog.LeafType, fn catalog.DecodeFunc) {
	r.codecs.Register(typ, fn)
}

// CacheDir is where snapshots live.
func (r *Registry) CacheDir() string { return r.cacheDir }

// Add registers toplevel sources. A source whose key is already known is
// ignored.
func (r *Registry) Add(sources ...catalog.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, src := range sources {
		if r.lookup(src.Key()) != nil {
			continue
		}
		r.sources = append(r.sources, catalog.Index(src))
	}
	r.root = nil
}

// AddTextSources registers text sources.
func (r *Registry) AddTextSources(sources ...catalog.TextSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.textSources = append(r.textSources, sources...)
}

// AddActions registers actions offered for every leaf they accept, on top of
// the leaf's own actions.
func (r *Registry) AddActions(actions ...catalog.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, actions...)
}

// Sources returns the toplevel sources.
func (r *Registry) Sources() []catalog.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]catalog.Source, len(r.sources))
	for i, ix := range r.sources {
		out[i] = ix
	}
	return out
}

// TextSources returns the registered text sources.
func (r *Registry) TextSources() []catalog.TextSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]catalog.TextSource, len(r.textSources))
	copy(out, r.textSources)
	return out
}

// Cacheable returns every indexed non-dynamic source, including the
// indexed members of composite sources.
func (r *Registry) Cacheable() []*catalog.Indexed {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*catalog.Indexed
	seen := make(map[string]bool)
	var walk func(src catalog.Source)
	walk = func(src catalog.Source) {
		if subs := catalog.Subsources(src); len(subs) > 0 {
			for _, sub := range subs {
				walk(sub)
			}
			return
		}
		ix, ok := src.(*catalog.Indexed)
		if !ok || ix.IsDynamic() || seen[ix.Key()] {
			return
		}
		seen[ix.Key()] = true
		out = append(out, ix)
	}
	for _, ix := range r.sources {
		walk(ix)
	}
	return out
}

// Root is the composed catalog: every toplevel source plus a source listing
// the sources themselves. It is rebuilt only when the source set changes.
func (r *Registry) Root() catalog.Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.root == nil {
		members := make([]catalog.Source, 0, len(r.sources)+1)
		for _, ix := range r.sources {
			members = append(members, ix)
		}
		members = append(members, catalog.NewSourcesSource(members...))
		r.root = catalog.NewMultiSource(rootName, rootKey, members...)
	}
	return r.root
}

// RootForTypes is a flat catalog of the sources that can provide one of
// types, or that declare no restriction.
func (r *Registry) RootForTypes(types []catalog.LeafType) catalog.Source {
	if len(types) == 0 {
		return r.Root()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var members []catalog.Source
	for _, ix := range r.sources {
		if catalog.TypesIntersect(ix.Provides(), types) {
			members = append(members, ix)
		}
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return catalog.NewMultiSource(rootName, rootKey+":"+strings.Join(names, ","), members...)
}

// Canonical returns the registered instance of src when there is one, so
// browsing into a source shares its index.
func (r *Registry) Canonical(src catalog.Source) catalog.Source {
	if src == nil {
		return nil
	}
	for _, ix := range r.Cacheable() {
		if ix.Key() == src.Key() {
			return ix
		}
	}
	return src
}

// ActionsFor lists the actions applicable to leaf: its own first, then the
// registry-wide ones that accept it.
func (r *Registry) ActionsFor(leaf catalog.Leaf) []catalog.Action {
	if leaf == nil {
		return nil
	}
	r.mu.RLock()
	global := make([]catalog.Action, len(r.actions))
	copy(global, r.actions)
	r.mu.RUnlock()

	var out []catalog.Action
	seen := make(map[string]bool)
	for _, a := range append(leaf.Actions(), global...) {
		if seen[a.Key()] {
			continue
		}
		if !catalog.TypeMatches(leaf.Type(), a.ItemTypes()) || !a.ValidForItem(leaf) {
			continue
		}
		seen[a.Key()] = true
		out = append(out, a)
	}
	return out
}

// Load restores every cacheable source from its snapshot. Sources whose
// snapshot is missing, corrupt or from another schema are rescanned live
// and returned as misses. Stale cache files are purged first.
func (r *Registry) Load(ctx context.Context) ([]catalog.Source, error) {
	if n, err := r.PurgeStale(); err != nil {
		r.logger.With(log.F("error", err)).Warn("Could not purge stale cache files")
	} else if n > 0 {
		r.logger.With(log.F("removed", n)).Info("Purged stale cache files")
	}

	var (
		mu     sync.Mutex
		misses []catalog.Source
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.loadWorkers)

	for _, ix := range r.Cacheable() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			logger := r.logger.With(log.F("source", ix.Name()))

			leaves, err := r.readCache(ix)
			if err == nil {
				ix.Restore(leaves)
				logger.With(log.F("items", len(leaves))).Debug("Loaded source from cache")
				return nil
			}
			if errors.KindOf(err) == errors.CacheMiss {
				logger.Debug("No cached snapshot")
			} else {
				logger.With(log.F("error", err)).Info("Discarding cached snapshot")
			}

			mu.Lock()
			misses = append(misses, ix)
			mu.Unlock()

			if _, err := ix.Rescan(gctx, true); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.With(log.F("error", err)).Warn("Source failed to load")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return misses, err
	}
	return misses, nil
}

// Save writes the snapshot of every cacheable source. Failures are logged
// and the first one is returned; the remaining sources are still written.
func (r *Registry) Save(ctx context.Context) error {
	var first error
	saved := 0
	for _, ix := range r.Cacheable() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.writeCache(ix); err != nil {
			r.logger.With(log.F("source", ix.Name()), log.F("error", err)).Warn("Could not save source cache")
			if first == nil {
				first = err
			}
			continue
		}
		saved++
	}
	r.logger.With(log.F("sources", saved)).Debug("Saved source caches")
	return first
}

// Attach re-establishes the live state of every source that has any, after
// its snapshot is in place.
func (r *Registry) Attach(req catalog.RescanRequester) {
	cacheable := r.Cacheable()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ix := range cacheable {
		a, ok := catalog.Unwrap(ix).(catalog.Attacher)
		if !ok {
			continue
		}
		if err := a.Attach(req); err != nil {
			r.logger.With(log.F("source", ix.Name()), log.F("error", err)).Warn("Could not attach source")
			continue
		}
		r.attached = append(r.attached, a)
	}
}

// Detach releases the live state taken by Attach.
func (r *Registry) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attached {
		a.Detach()
	}
	r.attached = nil
}

// lookup finds a toplevel source by key. Caller holds mu.
func (r *Registry) lookup(key string) *catalog.Indexed {
	for _, ix := range r.sources {
		if ix.Key() == key {
			return ix
		}
	}
	return nil
}
