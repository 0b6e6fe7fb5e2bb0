package search

import (
	"context"
	"fmt"
	"testing"

	"quarry/internal/catalog"
	"quarry/internal/catalog/catalogtest"
	"quarry/internal/errors"
	"quarry/internal/learning"
	"quarry/internal/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(items []Rankable) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Object.Name())
	}
	return out
}

func alphaSource() *catalogtest.Source {
	return catalogtest.NewSource("greek", catalogtest.Leaves("Alpha", "beta", "ALPHABET")...)
}

func search(t *testing.T, s *Searcher, key string, sources ...catalog.Source) []Rankable {
	t.Helper()
	res, err := s.Search(context.Background(), Request{Key: key, Sources: sources})
	require.NoError(t, err)
	return res.Take(0)
}

func TestEmptyQueryKeepsSourceOrder(t *testing.T) {
	s := New(nil, log.Discard())
	items := search(t, s, "", catalog.Index(alphaSource()))

	assert.Equal(t, []string{"Alpha", "beta", "ALPHABET"}, names(items))
	for _, it := range items {
		assert.Equal(t, items[0].Rank, it.Rank)
	}
}

func TestEmptyQueryLexicalSource(t *testing.T) {
	src := alphaSource()
	src.Lexical = true
	s := New(nil, log.Discard())

	items := search(t, s, "", catalog.Index(src))
	assert.Equal(t, []string{"Alpha", "ALPHABET", "beta"}, names(items))
}

func TestQueryRanksByRelevance(t *testing.T) {
	s := New(nil, log.Discard())
	items := search(t, s, "alp", catalog.Index(alphaSource()))

	require.Len(t, items, 2)
	assert.Equal(t, []string{"Alpha", "ALPHABET"}, names(items))
	assert.Greater(t, items[0].Rank, items[1].Rank)
	assert.Greater(t, items[1].Rank, 0.0)
}

func TestNarrowingMatchesColdSearch(t *testing.T) {
	src := catalog.Index(alphaSource())
	warm := New(nil, log.Discard())
	search(t, warm, "a", src)
	assert.Equal(t, 1, warm.cache.Len())
	narrowedResult := search(t, warm, "al", src)

	cold := New(nil, log.Discard())
	coldResult := search(t, cold, "al", src)

	assert.Equal(t, names(coldResult), names(narrowedResult))
	for i := range coldResult {
		assert.Equal(t, coldResult[i].Rank, narrowedResult[i].Rank)
	}
}

func TestNarrowingIgnoresNonAppendEdits(t *testing.T) {
	src := catalog.Index(alphaSource())
	s := New(nil, log.Discard())

	assert.Len(t, search(t, s, "alp", src), 2)
	// "b" does not extend "alp"; the narrowed set must not be reused.
	assert.Equal(t, []string{"beta", "ALPHABET"}, names(search(t, s, "b", src)))
}

func TestNarrowingInvalidatedByRescan(t *testing.T) {
	fake := alphaSource()
	src := catalog.Index(fake)
	s := New(nil, log.Discard())
	assert.Len(t, search(t, s, "a", src), 3)

	fake.SetLeaves(catalogtest.Leaves("Alpine", "Gamma")...)
	_, err := src.Rescan(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, []string{"Alpine"}, names(search(t, s, "al", src)))
}

func TestCancelledSearchDoesNotTouchCache(t *testing.T) {
	s := New(nil, log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Search(ctx, Request{Key: "a", Sources: []catalog.Source{catalog.Index(alphaSource())}})
	require.Error(t, err)
	assert.True(t, errors.IsSuperseded(err))
	assert.Equal(t, 0, s.cache.Len())
}

func TestDeduplicatesAcrossSources(t *testing.T) {
	shared := catalogtest.Leaf("Alpha")
	a := catalogtest.NewSource("a", shared, catalogtest.Leaf("Alps"))
	b := catalogtest.NewSource("b", catalogtest.Leaf("Alpha"))
	s := New(nil, log.Discard())

	for _, key := range []string{"", "al"} {
		items := search(t, s, key, catalog.Index(a), catalog.Index(b))
		seen := map[string]int{}
		for _, it := range items {
			seen[it.Key()]++
		}
		for k, n := range seen {
			assert.Equal(t, 1, n, "key %s for query %q", k, key)
		}
		assert.Len(t, items, 2)
	}
}

func TestDedupKeepsFirstOccurrence(t *testing.T) {
	first := catalog.NewLeaf("test", "same", "Alpha", nil)
	second := catalog.NewLeaf("test", "same", "Alpha copy", nil)
	s := New(nil, log.Discard())

	items := search(t, s, "",
		catalog.Index(catalogtest.NewSource("one", first)),
		catalog.Index(catalogtest.NewSource("two", second)))
	require.Len(t, items, 1)
	assert.Same(t, first, items[0].Object)
}

func TestExactMatchBeatsLearnedPartial(t *testing.T) {
	store := learning.NewStore(nil, log.Discard())
	for i := 0; i < 500; i++ {
		store.RecordHit("test:ALPHABET", "alpha")
		store.RecordHit("test:ALPHABET", "alp")
		store.RecordHit("test:ALPHABET", "a")
	}
	s := New(store, log.Discard())

	items := search(t, s, "alpha", catalog.Index(alphaSource()))
	require.Len(t, items, 2)
	assert.Equal(t, "Alpha", items[0].Object.Name())
}

func TestLearningReordersPartialMatches(t *testing.T) {
	store := learning.NewStore(nil, log.Discard())
	store.RecordHit("test:ALPHABET", "al")
	s := New(store, log.Discard())

	items := search(t, s, "alp", catalog.Index(alphaSource()))
	assert.Equal(t, []string{"ALPHABET", "Alpha"}, names(items))
}

func TestFailingSourcesAreSkipped(t *testing.T) {
	bad := catalogtest.NewSource("bad")
	bad.Fail(fmt.Errorf("permission denied"))
	boom := catalogtest.NewSource("boom")
	boom.Panic(true)
	s := New(nil, log.Discard())

	items := search(t, s, "alp", catalog.Index(bad), catalog.Index(boom), catalog.Index(alphaSource()))
	assert.Equal(t, []string{"Alpha", "ALPHABET"}, names(items))
}

func TestCompositeSourcesAreSearchedThroughMembers(t *testing.T) {
	root := catalog.NewMultiSource("root", "root",
		catalog.Index(alphaSource()),
		catalog.Index(catalogtest.NewSource("more", catalogtest.Leaf("Alpaca"))))
	s := New(nil, log.Discard())

	items := search(t, s, "alp", root)
	assert.ElementsMatch(t, []string{"Alpha", "ALPHABET", "Alpaca"}, names(items))
	assert.Equal(t, 2, s.cache.Len())
}

func TestInvalidItemsSkippedAtEmission(t *testing.T) {
	gone := catalogtest.NewContentLeaf("Alps", nil)
	src := catalogtest.NewSource("s", gone, catalogtest.Leaf("Alphabet"))
	s := New(nil, log.Discard())

	res, err := s.Search(context.Background(), Request{Key: "alp", Sources: []catalog.Source{src}})
	require.NoError(t, err)
	best, ok := res.Best()
	require.True(t, ok)
	assert.Equal(t, "Alps", best.Object.Name())

	gone.Invalid.Store(true)
	best, ok = res.Best()
	require.True(t, ok)
	assert.Equal(t, "Alphabet", best.Object.Name())
	assert.Equal(t, []string{"Alphabet"}, names(res.Take(0)))
	assert.Equal(t, 2, res.Len())
}

func TestEarlyStop(t *testing.T) {
	s := New(nil, log.Discard())
	res, err := s.Search(context.Background(), Request{Sources: []catalog.Source{alphaSource()}})
	require.NoError(t, err)

	count := 0
	for range res.All() {
		count++
		break
	}
	assert.Equal(t, 1, count)
	assert.Len(t, res.Take(2), 2)
}

func TestAliasMatch(t *testing.T) {
	term := catalog.NewLeaf("app", "app:term", "Terminal", nil)
	term.AddAlias("Console")
	s := New(nil, log.Discard())

	items := search(t, s, "cons", catalogtest.NewSource("apps", term))
	require.Len(t, items, 1)
	assert.Equal(t, "Console", items[0].Value)

	items = search(t, s, "console", catalogtest.NewSource("apps", term))
	require.Len(t, items, 1)
	assert.GreaterOrEqual(t, items[0].Rank, ExactBoost+scoreScale)
}

func TestTextSourcesOnlyWithQuery(t *testing.T) {
	s := New(nil, log.Discard())
	ts := &catalogtest.TextSource{BaseRank: 10}

	res, err := s.Search(context.Background(), Request{TextSources: []catalog.TextSource{ts}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())

	res, err = s.Search(context.Background(), Request{Key: "hello world", TextSources: []catalog.TextSource{ts}})
	require.NoError(t, err)
	best, ok := res.Best()
	require.True(t, ok)
	assert.Equal(t, "hello world", best.Value)
	assert.Equal(t, 10.0, best.Rank)
}

func TestFilterAndActions(t *testing.T) {
	open := catalogtest.NewAction("Open")
	reveal := catalogtest.NewAction("Reveal")
	s := New(nil, log.Discard())

	res, err := s.Search(context.Background(), Request{
		Key:   "op",
		Items: []catalog.Object{open, reveal},
	})
	require.NoError(t, err)
	best, ok := res.Best()
	require.True(t, ok)
	assert.Same(t, open, best.Action())
	assert.Nil(t, best.Leaf())

	res, err = s.Search(context.Background(), Request{
		Items:  []catalog.Object{open, reveal},
		Filter: func(o catalog.Object) bool { return o.Name() != "Open" },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Reveal"}, names(res.Take(0)))
}

func TestTiesBrokenByCollation(t *testing.T) {
	s := New(nil, log.Discard())
	items := search(t, s, "x", catalogtest.NewSource("s", catalogtest.Leaves("xb", "xa")...))
	assert.Equal(t, []string{"xa", "xb"}, names(items))
}
