package sources_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"quarry/internal/catalog"
	"quarry/internal/catalog/catalogtest"
	"quarry/internal/log"
	"quarry/internal/organize"
	"quarry/internal/sources"
	"quarry/internal/watch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(filepath.Base(path)), 0o644))
}

// tree creates:
//
//	docs/report.pdf  docs/notes.md  docs/.secret  docs/old.tmp
//	docs/sub/deep.md docs/sub/inner/deeper.md
func tree(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "docs")
	for _, p := range []string{"report.pdf", "notes.md", ".secret", "old.tmp", "sub/deep.md", "sub/inner/deeper.md"} {
		touch(t, filepath.Join(root, p))
	}
	return root
}

func items(t *testing.T, src catalog.Source) []string {
	t.Helper()
	leaves, err := src.Items(context.Background())
	require.NoError(t, err)
	return catalogtest.Names(leaves)
}

func TestDirectorySourceDepthAndFilters(t *testing.T) {
	root := tree(t)

	tests := []struct {
		name string
		opts sources.DirectoryOptions
		want []string
	}{
		{"top level", sources.DirectoryOptions{}, []string{"notes.md", "old.tmp", "report.pdf", "sub"}},
		{"hidden", sources.DirectoryOptions{ShowHidden: true}, []string{".secret", "notes.md", "old.tmp", "report.pdf", "sub"}},
		{"depth one", sources.DirectoryOptions{Depth: 1}, []string{"notes.md", "old.tmp", "report.pdf", "sub", "deep.md", "inner"}},
		{"depth two", sources.DirectoryOptions{Depth: 2}, []string{"notes.md", "old.tmp", "report.pdf", "sub", "deep.md", "inner", "deeper.md"}},
		{"include", sources.DirectoryOptions{Depth: 1, Include: []string{"*.md"}}, []string{"notes.md", "sub", "deep.md", "inner"}},
		{"exclude", sources.DirectoryOptions{Exclude: []string{"*.tmp", "sub"}}, []string{"notes.md", "report.pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := sources.NewDirectorySource(root, tt.opts, nil)
			assert.ElementsMatch(t, tt.want, items(t, src))
		})
	}
}

func TestDirectorySourceMissing(t *testing.T) {
	src := sources.NewDirectorySource(filepath.Join(t.TempDir(), "gone"), sources.DirectoryOptions{}, nil)
	_, err := src.Items(context.Background())
	assert.Error(t, err)
}

func TestDirectorySourceIdentity(t *testing.T) {
	root := tree(t)
	plain := sources.NewDirectorySource(root, sources.DirectoryOptions{}, nil)
	hidden := sources.NewDirectorySource(root, sources.DirectoryOptions{ShowHidden: true}, nil)

	assert.Equal(t, "docs", plain.Name())
	assert.NotEqual(t, plain.Key(), hidden.Key())
	assert.Equal(t, plain.Key(), sources.NewDirectorySource(root+"/", sources.DirectoryOptions{}, nil).Key())
	assert.False(t, plain.IsDynamic())
	assert.True(t, catalog.ShouldSortLexically(plain))
	assert.Equal(t, 2, catalog.SchemaVersion(plain))

	parent := plain.Parent()
	require.NotNil(t, parent)
	assert.Equal(t, filepath.Dir(root), parent.(*sources.DirectorySource).Path())
	assert.Nil(t, sources.NewDirectorySource("/", sources.DirectoryOptions{}, nil).Parent())
}

func TestCompilePatterns(t *testing.T) {
	globs, err := sources.CompilePatterns([]string{"*.md", "[abc"})
	assert.Error(t, err)
	assert.Len(t, globs, 1)
}

func TestFileLeaf(t *testing.T) {
	root := tree(t)
	file := sources.NewFileLeaf(filepath.Join(root, "notes.md"), false)
	dir := sources.NewFileLeaf(filepath.Join(root, "sub"), true)

	assert.Equal(t, sources.FileType, file.Type())
	assert.True(t, dir.Type().Is(sources.FileType))
	assert.Equal(t, "file:"+filepath.Join(root, "notes.md"), file.Key())
	assert.Equal(t, root, file.Description())
	assert.False(t, file.HasContent())
	assert.Nil(t, file.ContentSource(false))
	assert.True(t, file.IsValid())

	require.True(t, dir.HasContent())
	assert.ElementsMatch(t, []string{"deep.md", "inner"}, items(t, dir.ContentSource(false)))

	require.NoError(t, os.Remove(filepath.Join(root, "notes.md")))
	assert.False(t, file.IsValid())
}

func TestCodecRoundTrip(t *testing.T) {
	codecs := catalog.NewCodecs()
	for typ, fn := range sources.Codecs() {
		codecs.Register(typ, fn)
	}
	file := sources.NewFileLeaf("/tmp/a.txt", false)
	file.AddAlias("alpha")
	in := []catalog.Leaf{
		file,
		sources.NewFileLeaf("/tmp/dir", true),
		sources.NewURLLeaf("https://go.dev", "Go"),
	}

	records, err := codecs.Encode(in)
	require.NoError(t, err)
	out, err := codecs.Decode(records)
	require.NoError(t, err)

	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i].Key(), out[i].Key())
		assert.Equal(t, in[i].Name(), out[i].Name())
		assert.Equal(t, in[i].Type(), out[i].Type())
	}
	assert.Equal(t, []string{"alpha"}, out[0].Aliases())

	_, err = codecs.Encode([]catalog.Leaf{sources.NewTextLeaf("x")})
	assert.Error(t, err, "text leaves are never cached")
}

type requests struct {
	mu   sync.Mutex
	keys []string
	hit  chan struct{}
}

func (r *requests) RegisterRescan(src catalog.Source, force bool) {
	r.mu.Lock()
	r.keys = append(r.keys, src.Key())
	r.mu.Unlock()
	select {
	case r.hit <- struct{}{}:
	default:
	}
}

func TestDirectorySourceAttach(t *testing.T) {
	root := tree(t)
	w, err := watch.New(log.Discard())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	src := sources.NewDirectorySource(root, sources.DirectoryOptions{Watch: true}, w)
	req := &requests{hit: make(chan struct{}, 1)}
	require.NoError(t, src.Attach(req))
	assert.Contains(t, w.Directories(), root)

	touch(t, filepath.Join(root, "new.txt"))
	select {
	case <-req.hit:
	case <-time.After(5 * time.Second):
		t.Fatal("change did not request a rescan")
	}
	req.mu.Lock()
	assert.Equal(t, src.Key(), req.keys[0])
	req.mu.Unlock()

	src.Detach()
	assert.NotContains(t, w.Directories(), root)
}

func TestAttachWithoutWatchIsNoop(t *testing.T) {
	src := sources.NewDirectorySource(t.TempDir(), sources.DirectoryOptions{}, nil)
	assert.NoError(t, src.Attach(&requests{}))
	src.Detach()
}

func TestBookmarkSource(t *testing.T) {
	src := sources.NewBookmarkSource([]sources.Bookmark{
		{Name: "Go", URL: "https://go.dev"},
		{URL: "https://example.org"},
	})
	leaves, err := src.Items(context.Background())
	require.NoError(t, err)
	require.Len(t, leaves, 2)
	assert.Equal(t, "Go", leaves[0].Name())
	assert.Equal(t, "https://go.dev", leaves[0].Description())
	assert.Equal(t, "https://example.org", leaves[1].Name())
	assert.Empty(t, leaves[1].Description())
}

func TestLooksLikeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://go.dev/doc", "https://go.dev/doc", true},
		{"http://localhost:8080", "http://localhost:8080", true},
		{"www.example.org", "https://www.example.org", true},
		{"notes.md", "", false},
		{"hello world", "", false},
		{"https://", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := sources.LooksLikeURL(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTextSources(t *testing.T) {
	ctx := context.Background()

	plain, err := sources.PlainTextSource{}.TextItems(ctx, "hello")
	require.NoError(t, err)
	require.Len(t, plain, 1)
	assert.Equal(t, sources.TextType, plain[0].Type())
	assert.Equal(t, "hello", plain[0].(*sources.TextLeaf).Text())

	none, err := sources.PlainTextSource{}.TextItems(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, none)

	urls, err := sources.URLTextSource{}.TextItems(ctx, "www.go.dev")
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.Equal(t, "https://www.go.dev", urls[0].(*sources.URLLeaf).URL())
	assert.Greater(t, sources.URLTextSource{}.Rank(), sources.PlainTextSource{}.Rank())

	assert.Equal(t, "2 lines", sources.NewTextLeaf("a\nb").Description())
}

func TestTransferActions(t *testing.T) {
	root := tree(t)
	org := organize.New(organize.Options{}, log.Discard())
	move := sources.NewMoveToAction(org)
	cp := sources.NewCopyToAction(org)

	notes := sources.NewFileLeaf(filepath.Join(root, "notes.md"), false)
	sub := sources.NewFileLeaf(filepath.Join(root, "sub"), true)
	inner := sources.NewFileLeaf(filepath.Join(root, "sub", "inner"), true)
	docs := sources.NewFileLeaf(root, true)

	assert.True(t, move.RequiresObject())
	assert.True(t, move.ValidObject(sub, notes))
	assert.False(t, move.ValidObject(docs, notes), "already in that folder")
	assert.False(t, move.ValidObject(inner, sub), "cannot move into itself")
	assert.False(t, move.ValidObject(notes, sub), "object must be a folder")

	_, err := cp.Activate(context.Background(), notes, sub)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "sub", "notes.md"))
	assert.FileExists(t, filepath.Join(root, "notes.md"))

	_, err = move.Activate(context.Background(), notes, inner)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "sub", "inner", "notes.md"))
	assert.NoFileExists(t, filepath.Join(root, "notes.md"))

	_, err = move.Activate(context.Background(), notes, inner)
	assert.Error(t, err, "source is gone")
}

func TestRenameToAction(t *testing.T) {
	root := tree(t)
	rename := sources.NewRenameToAction(organize.New(organize.Options{}, log.Discard()))
	report := sources.NewFileLeaf(filepath.Join(root, "report.pdf"), false)

	objs := rename.ObjectSource(report)
	assert.True(t, objs.IsDynamic())
	assert.Equal(t, []string{"report.pdf"}, items(t, objs))

	assert.False(t, rename.ValidObject(sources.NewTextLeaf("report.pdf"), report))
	assert.False(t, rename.ValidObject(sources.NewTextLeaf("a/b"), report))
	assert.False(t, rename.ValidObject(sources.NewURLLeaf("https://x.org", ""), report))
	assert.True(t, rename.ValidObject(sources.NewTextLeaf("final.pdf"), report))

	_, err := rename.Activate(context.Background(), report, sources.NewTextLeaf("final.pdf"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "final.pdf"))
}

func TestFactoryActions(t *testing.T) {
	root := tree(t)
	open := sources.NewOpenFolderAction()
	reveal := sources.NewRevealAction()
	assert.True(t, open.IsFactory())
	assert.True(t, reveal.IsFactory())

	src, err := open.Activate(context.Background(), sources.NewFileLeaf(filepath.Join(root, "sub"), true), nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"deep.md", "inner"}, items(t, src))

	src, err = reveal.Activate(context.Background(), sources.NewFileLeaf(filepath.Join(root, "notes.md"), false), nil)
	require.NoError(t, err)
	assert.Equal(t, root, src.(*sources.DirectorySource).Path())
}

func TestRescanAction(t *testing.T) {
	req := &requests{hit: make(chan struct{}, 1)}
	rescan := sources.NewRescanAction(req)
	assert.True(t, catalog.IsAsync(rescan))

	cached := catalog.NewSourceLeaf(sources.NewBookmarkSource(nil))
	dynamic := catalog.NewSourceLeaf(catalog.NewListSource("live", "live", nil).SetDynamic(true))
	assert.True(t, rescan.ValidForItem(cached))
	assert.False(t, rescan.ValidForItem(dynamic))
	assert.False(t, rescan.ValidForItem(sources.NewTextLeaf("x")))

	_, err := rescan.Activate(context.Background(), cached, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"bookmarks"}, req.keys)
}
