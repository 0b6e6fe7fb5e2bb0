// Package learning records which objects the user picks after typing which
// queries, and turns that history into a bounded ranking bonus.
package learning

import (
	"context"
	"sort"
	"strings"
	"sync"

	"quarry/internal/log"
)

// Bonus weights. Each category saturates at its weight; the prefix category
// is never worth less than plain usage.
const (
	ExactWeight  = 50.0
	PrefixWeight = 30.0
	UsageWeight  = 20.0

	// MaxBonus bounds Bonus for any object and query.
	MaxBonus = ExactWeight + PrefixWeight
)

// Mnemonic is the usage history of one object.
type Mnemonic struct {
	Count   int            `json:"count"`
	Queries map[string]int `json:"queries,omitempty"`
}

func (m *Mnemonic) clone() *Mnemonic {
	out := &Mnemonic{Count: m.Count, Queries: make(map[string]int, len(m.Queries))}
	for q, n := range m.Queries {
		out.Queries[q] = n
	}
	return out
}

// Repository loads and stores the whole mnemonic map at once.
type Repository interface {
	Load(ctx context.Context) (map[string]*Mnemonic, error)
	Save(ctx context.Context, mnemonics map[string]*Mnemonic) error
	Close() error
}

// Entry pairs an object key with its history.
type Entry struct {
	Key      string
	Mnemonic Mnemonic
}

// Stats summarizes the store.
type Stats struct {
	Objects int
	Hits    int
	Queries int
}

// Store is the in-memory learning store. Counters only ever grow.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Mnemonic
	repo    Repository
	logger  log.Logging
}

// NewStore creates a store persisted through repo. A nil repo keeps
// everything in memory.
func NewStore(repo Repository, logger log.Logging) *Store {
	return &Store{
		entries: make(map[string]*Mnemonic),
		repo:    repo,
		logger:  logger,
	}
}

// Load replaces the in-memory state with the repository contents.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	loaded, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Mnemonic, len(loaded))
	for key, m := range loaded {
		if m == nil {
			continue
		}
		if m.Queries == nil {
			m.Queries = make(map[string]int)
		}
		s.entries[key] = m
	}
	s.logger.With(log.F("objects", len(s.entries))).Debug("Loaded learning store")
	return nil
}

// Save writes the whole map through the repository.
func (s *Store) Save(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	s.mu.RLock()
	snapshot := make(map[string]*Mnemonic, len(s.entries))
	for key, m := range s.entries {
		snapshot[key] = m.clone()
	}
	s.mu.RUnlock()

	if err := s.repo.Save(ctx, snapshot); err != nil {
		return err
	}
	s.logger.With(log.F("objects", len(snapshot))).Debug("Saved learning store")
	return nil
}

// Close releases the repository.
func (s *Store) Close() error {
	if s.repo == nil {
		return nil
	}
	return s.repo.Close()
}

// RecordHit notes that key was chosen after typing query.
func (s *Store) RecordHit(key, query string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.entries[key]
	if !ok {
		m = &Mnemonic{Queries: make(map[string]int)}
		s.entries[key] = m
	}
	m.Count++
	if query != "" {
		m.Queries[normalize(query)]++
	}
}

// Bonus returns the usage bonus of key for query.
//
// With an empty query only the total activation count matters. Otherwise
// activations under exactly this query and under queries that are a prefix
// of it each contribute weight * (1 - 1/(n+1)).
func (s *Store) Bonus(key, query string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.entries[key]
	if !ok {
		return 0
	}
	if query == "" {
		return UsageWeight * saturate(m.Count)
	}

	q := normalize(query)
	exact := m.Queries[q]
	prefix := 0
	for recorded, n := range m.Queries {
		if recorded != q && strings.HasPrefix(q, recorded) {
			prefix += n
		}
	}
	return ExactWeight*saturate(exact) + PrefixWeight*saturate(prefix)
}

// Get returns a copy of the history of key.
func (s *Store) Get(key string) (Mnemonic, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.entries[key]
	if !ok {
		return Mnemonic{}, false
	}
	return *m.clone(), true
}

// Count returns the total number of activations of key.
func (s *Store) Count(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.entries[key]; ok {
		return m.Count
	}
	return 0
}

// Stats summarizes the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st Stats
	st.Objects = len(s.entries)
	for _, m := range s.entries {
		st.Hits += m.Count
		st.Queries += len(m.Queries)
	}
	return st
}

// Top returns the n most used objects, most used first.
func (s *Store) Top(n int) []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for key, m := range s.entries {
		out = append(out, Entry{Key: key, Mnemonic: *m.clone()})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Mnemonic.Count != out[j].Mnemonic.Count {
			return out[i].Mnemonic.Count > out[j].Mnemonic.Count
		}
		return out[i].Key < out[j].Key
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func saturate(n int) float64 {
	if n <= 0 {
		return 0
	}
	return 1 - 1/float64(n+1)
}

func normalize(query string) string {
	return strings.ToLower(query)
}
