package catalog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"quarry/internal/errors"
)

// Indexed holds the indexed leaf snapshot of a cacheable source. A rescan
// builds a new slice and swaps it in atomically, so readers never observe a
// partially updated collection.
type Indexed struct {
	Source

	leaves  atomic.Pointer[[]Leaf]
	scanned atomic.Int64
	gen     atomic.Uint64
	scanMu  sync.Mutex
}

// Index wraps src unless it already is indexed.
func Index(src Source) *Indexed {
	if ix, ok := src.(*Indexed); ok {
		return ix
	}
	return &Indexed{Source: src}
}

// Leaves returns the indexed items, scanning on first use or when force is
// set. Dynamic sources are always queried live.
func (s *Indexed) Leaves(ctx context.Context, force bool) ([]Leaf, error) {
	if s.Source.IsDynamic() {
		return safeItems(ctx, s.Source, false)
	}
	if !force {
		if p := s.leaves.Load(); p != nil {
			return *p, nil
		}
	}
	return s.Rescan(ctx, force)
}

// Rescan reloads the source and replaces the snapshot. Concurrent rescans of
// the same source are serialized.
func (s *Indexed) Rescan(ctx context.Context, force bool) ([]Leaf, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	items, err := safeItems(ctx, s.Source, force)
	if err != nil {
		return nil, err
	}
	s.Replace(items)
	return items, nil
}

// Replace installs a new snapshot and stamps the scan time.
func (s *Indexed) Replace(items []Leaf) {
	snapshot := make([]Leaf, len(items))
	copy(snapshot, items)
	s.leaves.Store(&snapshot)
	s.gen.Add(1)
	s.scanned.Store(time.Now().UnixNano())
}

// Restore installs a snapshot read from the cache without marking the source
// as freshly scanned.
func (s *Indexed) Restore(items []Leaf) {
	snapshot := make([]Leaf, len(items))
	copy(snapshot, items)
	s.leaves.Store(&snapshot)
	s.gen.Add(1)
}

// Snapshot returns the current snapshot and whether one exists.
func (s *Indexed) Snapshot() ([]Leaf, bool) {
	p := s.leaves.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

// Generation changes every time a new snapshot is installed.
func (s *Indexed) Generation() uint64 {
	return s.gen.Load()
}

// LastScan returns when the source was last scanned live.
func (s *Indexed) LastScan() time.Time {
	ns := s.scanned.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// LeavesOf returns the items of any source, going through the index when
// there is one.
func LeavesOf(ctx context.Context, src Source, force bool) ([]Leaf, error) {
	if ix, ok := src.(*Indexed); ok {
		return ix.Leaves(ctx, force)
	}
	return safeItems(ctx, src, force)
}

// safeItems enumerates src and turns a panicking provider into an error.
func safeItems(ctx context.Context, src Source, force bool) (items []Leaf, err error) {
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = errors.NewSourceError("source panicked", src.Name(), errors.SourcePanicked, fmt.Errorf("%v", r))
		}
	}()

	if force {
		if fs, ok := src.(ForcedSource); ok {
			items, err = fs.ItemsForced(ctx)
		} else {
			items, err = src.Items(ctx)
		}
	} else {
		items, err = src.Items(ctx)
	}
	if err != nil {
		return nil, errors.NewSourceError("source enumeration failed", src.Name(), errors.SourceEnumerationFailed, err)
	}
	return items, nil
}
