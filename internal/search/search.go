package search

import (
	"context"
	"sort"
	"strings"
	"sync"

	"quarry/internal/catalog"
	"quarry/internal/errors"
	"quarry/internal/learning"
	"quarry/internal/log"
	"quarry/internal/relevance"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const (
	// ExactBoost lifts whole-string matches above any partial match plus the
	// largest learning bonus.
	ExactBoost = learning.MaxBonus

	scoreScale    = 100.0
	aliasDiscount = 0.95

	defaultCacheSize = 128
	// checkEvery is how many candidates are scored between cancellation checks.
	checkEvery = 256
)

// Bonuser supplies usage bonuses.
type Bonuser interface {
	Bonus(key, query string) float64
}

// Request describes one search.
type Request struct {
	Key         string
	Sources     []catalog.Source
	TextSources []catalog.TextSource
	// Items are extra objects ranked alongside source leaves (actions).
	Items []catalog.Object
	// Filter drops objects before ranking. Nil keeps everything.
	Filter func(catalog.Object) bool
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithLanguage sets the collation language used for tie-breaks and lexical
// ordering.
func WithLanguage(tag language.Tag) Option {
	return func(s *Searcher) { s.lang = tag }
}

// WithCacheSize bounds the number of narrowing cache entries.
func WithCacheSize(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

// narrowed remembers which leaves of a source matched a query, so a longer
// query typed next can start from that subset.
type narrowed struct {
	query  string
	stamp  uint64
	leaves []catalog.Leaf
}

// Searcher ranks catalog objects. It is safe for concurrent use; the
// narrowing cache is shared by all searches.
type Searcher struct {
	learn     Bonuser
	logger    log.Logging
	lang      language.Tag
	cacheSize int
	cache     *lru.Cache[string, narrowed]

	collMu sync.Mutex
	coll   *collate.Collator
}

// New creates a Searcher. learn may be nil.
func New(learn Bonuser, logger log.Logging, opts ...Option) *Searcher {
	s := &Searcher{
		learn:     learn,
		logger:    logger,
		lang:      language.English,
		cacheSize: defaultCacheSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	cache, err := lru.New[string, narrowed](s.cacheSize)
	if err != nil {
		cache, _ = lru.New[string, narrowed](defaultCacheSize)
	}
	s.cache = cache
	s.coll = collate.New(s.lang, collate.IgnoreCase)
	return s
}

// Invalidate drops everything the narrowing cache knows.
func (s *Searcher) Invalidate() {
	s.cache.Purge()
}

// Search ranks the request. A cancelled context abandons the search with
// errors.ErrSuperseded and leaves the narrowing cache untouched.
func (s *Searcher) Search(ctx context.Context, req Request) (*Result, error) {
	query := req.Key
	pending := make(map[string]narrowed)

	var ranked []Rankable
	for _, src := range flatten(req.Sources) {
		if ctx.Err() != nil {
			return nil, errors.ErrSuperseded
		}
		items, err := s.rankSource(ctx, src, query, req.Filter, pending)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.ErrSuperseded
			}
			s.logger.With(log.F("source", src.Name()), log.F("error", err)).
				Warn("Source contributed nothing to search")
			continue
		}
		ranked = append(ranked, items...)
	}

	if query != "" {
		for _, ts := range req.TextSources {
			ranked = append(ranked, s.rankText(ctx, ts, query, req.Filter)...)
		}
	}

	objs := make([]catalog.Object, 0, len(req.Items))
	for _, obj := range req.Items {
		if req.Filter == nil || req.Filter(obj) {
			objs = append(objs, obj)
		}
	}
	ranked = append(ranked, s.rankObjects(objs, query)...)

	if ctx.Err() != nil {
		return nil, errors.ErrSuperseded
	}

	ranked = dedup(ranked)
	s.sort(ranked, query != "")

	// Only a search that ran to completion may teach the cache.
	if ctx.Err() != nil {
		return nil, errors.ErrSuperseded
	}
	for key, n := range pending {
		s.cache.Add(key, n)
	}
	return &Result{Key: req.Key, items: ranked}, nil
}

// rankSource ranks the leaves of one non-composite source.
func (s *Searcher) rankSource(ctx context.Context, src catalog.Source, query string, filter func(catalog.Object) bool, pending map[string]narrowed) ([]Rankable, error) {
	leaves, stamp, cacheable, err := s.candidates(ctx, src, query)
	if err != nil {
		return nil, err
	}

	if query == "" {
		if catalog.ShouldSortLexically(src) {
			leaves = s.lexical(leaves)
		}
		out := make([]Rankable, 0, len(leaves))
		for _, leaf := range leaves {
			if filter != nil && !filter(leaf) {
				continue
			}
			out = append(out, Rankable{Value: leaf.Name(), Object: leaf, Rank: s.bonus(leaf.Key(), "")})
		}
		return out, nil
	}

	var (
		out     []Rankable
		matched []catalog.Leaf
	)
	for i, leaf := range leaves {
		if i%checkEvery == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		value, score, exact := scoreLeaf(leaf, query)
		if score <= 0 {
			continue
		}
		matched = append(matched, leaf)
		if filter != nil && !filter(leaf) {
			continue
		}
		out = append(out, Rankable{Value: value, Object: leaf, Rank: s.rank(leaf.Key(), query, score, exact)})
	}

	if cacheable {
		pending[src.Key()] = narrowed{query: strings.ToLower(query), stamp: stamp, leaves: matched}
	}
	return out, nil
}

// candidates returns the leaves worth scoring: the narrowed set from the
// previous query when this one extends it, otherwise the full source. The
// stamp identifies the snapshot the leaves came from; cacheable is false
// when a concurrent rescan makes that unknowable.
func (s *Searcher) candidates(ctx context.Context, src catalog.Source, query string) ([]catalog.Leaf, uint64, bool, error) {
	before, indexed := cacheStamp(src)
	if indexed && query != "" {
		if n, hit := s.cache.Get(src.Key()); hit && n.stamp == before && strings.HasPrefix(strings.ToLower(query), n.query) {
			return n.leaves, before, true, nil
		}
	}
	leaves, err := catalog.LeavesOf(ctx, src, false)
	if err != nil {
		return nil, 0, false, err
	}
	after, indexed := cacheStamp(src)
	stable := after == before || (before == 0 && after == 1)
	return leaves, after, indexed && stable && after > 0, nil
}

func (s *Searcher) rankText(ctx context.Context, ts catalog.TextSource, query string, filter func(catalog.Object) bool) []Rankable {
	leaves, err := safeText(ctx, ts, query)
	if err != nil {
		s.logger.With(log.F("source", ts.Name()), log.F("error", err)).
			Warn("Text source contributed nothing to search")
		return nil
	}
	out := make([]Rankable, 0, len(leaves))
	for _, leaf := range leaves {
		if filter != nil && !filter(leaf) {
			continue
		}
		out = append(out, Rankable{Value: leaf.Name(), Object: leaf, Rank: ts.Rank()})
	}
	return out
}

func (s *Searcher) rankObjects(objs []catalog.Object, query string) []Rankable {
	out := make([]Rankable, 0, len(objs))
	for _, obj := range objs {
		if query == "" {
			out = append(out, Rankable{Value: obj.Name(), Object: obj, Rank: s.bonus(obj.Key(), "")})
			continue
		}
		var (
			value string
			score float64
			exact bool
		)
		if leaf, ok := obj.(catalog.Leaf); ok {
			value, score, exact = scoreLeaf(leaf, query)
		} else {
			value, score, exact = obj.Name(), relevance.Score(obj.Name(), query), relevance.IsExact(obj.Name(), query)
		}
		if score <= 0 {
			continue
		}
		out = append(out, Rankable{Value: value, Object: obj, Rank: s.rank(obj.Key(), query, score, exact)})
	}
	return out
}

func (s *Searcher) rank(key, query string, score float64, exact bool) float64 {
	rank := score*scoreScale + s.bonus(key, query)
	if exact {
		rank += ExactBoost
	}
	return rank
}

func (s *Searcher) bonus(key, query string) float64 {
	if s.learn == nil {
		return 0
	}
	return s.learn.Bonus(key, query)
}

// sort orders by descending rank. Equal ranks keep merge order when browsing
// and fall back to collation order of the matched value when searching.
func (s *Searcher) sort(items []Rankable, collated bool) {
	if !collated {
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Rank > items[j].Rank
		})
		return
	}
	s.collMu.Lock()
	defer s.collMu.Unlock()
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Rank != items[j].Rank {
			return items[i].Rank > items[j].Rank
		}
		return s.coll.CompareString(items[i].Value, items[j].Value) < 0
	})
}

func (s *Searcher) lexical(leaves []catalog.Leaf) []catalog.Leaf {
	out := make([]catalog.Leaf, len(leaves))
	copy(out, leaves)
	s.collMu.Lock()
	defer s.collMu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		return s.coll.CompareString(out[i].Name(), out[j].Name()) < 0
	})
	return out
}

// scoreLeaf scores the name and every alias. An alias wins only when it
// beats the name after a small discount; an exact alias counts in full.
func scoreLeaf(leaf catalog.Leaf, query string) (value string, score float64, exact bool) {
	value = leaf.Name()
	score = relevance.Score(value, query)
	if relevance.IsExact(value, query) {
		return value, score, true
	}
	for _, alias := range leaf.Aliases() {
		if relevance.IsExact(alias, query) {
			return alias, 1.0, true
		}
		if as := relevance.Score(alias, query) * aliasDiscount; as > score {
			value, score = alias, as
		}
	}
	return value, score, false
}

// dedup keeps the first occurrence of every object key, in merge order.
func dedup(items []Rankable) []Rankable {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		key := it.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

// flatten expands composite sources into their members, depth first.
func flatten(sources []catalog.Source) []catalog.Source {
	var out []catalog.Source
	for _, src := range sources {
		if subs := catalog.Subsources(src); len(subs) > 0 {
			out = append(out, flatten(subs)...)
			continue
		}
		out = append(out, src)
	}
	return out
}

// cacheStamp identifies the snapshot a narrowed set was computed from. Only
// indexed, non-dynamic sources can be narrowed.
func cacheStamp(src catalog.Source) (uint64, bool) {
	ix, ok := src.(*catalog.Indexed)
	if !ok || ix.IsDynamic() {
		return 0, false
	}
	return ix.Generation(), true
}

func safeText(ctx context.Context, ts catalog.TextSource, text string) (leaves []catalog.Leaf, err error) {
	defer func() {
		if r := recover(); r != nil {
			leaves = nil
			err = errors.NewSourceError("text source panicked", ts.Name(), errors.SourcePanicked, errors.Newf("%v", r))
		}
	}()
	return ts.TextItems(ctx, text)
}
