package learning

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"quarry/internal/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBonusUnknownObject(t *testing.T) {
	s := NewStore(nil, log.Discard())
	assert.Equal(t, 0.0, s.Bonus("file:/nope", ""))
	assert.Equal(t, 0.0, s.Bonus("file:/nope", "no"))
}

func TestBonusIsBoundedAndIncreasing(t *testing.T) {
	s := NewStore(nil, log.Discard())

	prev := 0.0
	for i := 0; i < 50; i++ {
		s.RecordHit("app:term", "term")
		b := s.Bonus("app:term", "term")
		assert.Greater(t, b, prev, "bonus must grow with usage (hit %d)", i+1)
		assert.Less(t, b, MaxBonus)
		prev = b
	}
}

func TestBonusCategories(t *testing.T) {
	s := NewStore(nil, log.Discard())
	s.RecordHit("app:term", "te")

	// One hit under exactly this query saturates to half the exact weight.
	assert.InDelta(t, ExactWeight*0.5, s.Bonus("app:term", "te"), 1e-9)
	// "te" is a prefix of "term".
	assert.InDelta(t, PrefixWeight*0.5, s.Bonus("app:term", "term"), 1e-9)
	// Unrelated query earns nothing.
	assert.Equal(t, 0.0, s.Bonus("app:term", "xyz"))
	// Browsing uses the total count only.
	assert.InDelta(t, UsageWeight*0.5, s.Bonus("app:term", ""), 1e-9)
}

func TestPrefixBonusNotBelowUsage(t *testing.T) {
	s := NewStore(nil, log.Discard())
	for i := 0; i < 3; i++ {
		s.RecordHit("k", "a")
	}
	assert.GreaterOrEqual(t, s.Bonus("k", "ab"), s.Bonus("k", ""))
}

func TestQueriesAreCaseInsensitive(t *testing.T) {
	s := NewStore(nil, log.Discard())
	s.RecordHit("k", "Alp")
	assert.Equal(t, s.Bonus("k", "alp"), s.Bonus("k", "ALP"))
	assert.Greater(t, s.Bonus("k", "alp"), 0.0)
}

func TestRecordHitWithoutQuery(t *testing.T) {
	s := NewStore(nil, log.Discard())
	s.RecordHit("k", "")
	s.RecordHit("", "ignored")

	m, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, m.Count)
	assert.Empty(t, m.Queries)
	assert.Equal(t, 1, s.Count("k"))
	assert.Equal(t, 0, s.Count("missing"))
	assert.Equal(t, 1, s.Stats().Objects)
}

func TestTopAndStats(t *testing.T) {
	s := NewStore(nil, log.Discard())
	s.RecordHit("b", "x")
	s.RecordHit("a", "x")
	s.RecordHit("a", "y")
	s.RecordHit("c", "")

	top := s.Top(2)
	require.Len(t, top, 2)
	assert.Equal(t, "a", top[0].Key)
	assert.Equal(t, "b", top[1].Key)

	st := s.Stats()
	assert.Equal(t, 3, st.Objects)
	assert.Equal(t, 4, st.Hits)
	assert.Equal(t, 3, st.Queries)
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore(nil, log.Discard())
	s.RecordHit("k", "q")
	m, _ := s.Get("k")
	m.Queries["q"] = 100
	m.Count = 100

	again, _ := s.Get("k")
	assert.Equal(t, 1, again.Count)
	assert.Equal(t, 1, again.Queries["q"])
}

func roundTrip(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	s := NewStore(repo, log.Discard())
	require.NoError(t, s.Load(ctx))
	s.RecordHit("file:/a", "al")
	s.RecordHit("file:/a", "al")
	s.RecordHit("file:/a", "")
	s.RecordHit("file:/b", "be")
	require.NoError(t, s.Save(ctx))

	loaded := NewStore(repo, log.Discard())
	require.NoError(t, loaded.Load(ctx))

	a, ok := loaded.Get("file:/a")
	require.True(t, ok)
	assert.Equal(t, 3, a.Count)
	assert.Equal(t, map[string]int{"al": 2}, a.Queries)

	b, ok := loaded.Get("file:/b")
	require.True(t, ok)
	assert.Equal(t, 1, b.Count)
	assert.Equal(t, s.Bonus("file:/b", "be"), loaded.Bonus("file:/b", "be"))
}

func TestFileRepositoryRoundTrip(t *testing.T) {
	roundTrip(t, NewFileRepository(filepath.Join(t.TempDir(), "learning.json")))
}

func TestFileRepositoryMissingFile(t *testing.T) {
	repo := NewFileRepository(filepath.Join(t.TempDir(), "absent", "learning.json"))
	m, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestSQLiteRepositoryRoundTrip(t *testing.T) {
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "learning.db"), log.Discard())
	require.NoError(t, err)
	defer repo.Close()
	roundTrip(t, repo)
}

func TestSQLiteRepositoryInMemory(t *testing.T) {
	repo, err := NewSQLiteRepository("", log.Discard())
	require.NoError(t, err)
	defer repo.Close()

	m, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestFileRepositoryRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learning.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "mnemonics": {}}`), 0o644))

	_, err := NewFileRepository(path).Load(context.Background())
	assert.Error(t, err)
}

func TestFileRepositoryClosed(t *testing.T) {
	ctx := context.Background()
	repo := NewFileRepository(filepath.Join(t.TempDir(), "learning.json"))
	require.NoError(t, repo.Close())

	_, err := repo.Load(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, repo.Save(ctx, map[string]*Mnemonic{}), ErrClosed)
}

func TestFileRepositoryWriteFailureKeepsCause(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := NewFileRepository(filepath.Join(blocker, "learning.json")).Save(context.Background(), map[string]*Mnemonic{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write learning file")
}
