package sources

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"quarry/internal/catalog"
	"quarry/internal/watch"

	"github.com/gobwas/glob"
)

const directorySchema = 2

// DirectoryOptions controls what a DirectorySource indexes.
type DirectoryOptions struct {
	// Depth is how many levels below the root are listed. Zero lists only
	// the root's entries.
	Depth int
	// Include patterns must match the name of a file for it to be listed.
	// Directories are always listed.
	Include []string
	// Exclude patterns hide files and directories.
	Exclude    []string
	ShowHidden bool
	// Watch rescans the source when the root directory changes.
	Watch bool
}

// DirectorySource indexes the contents of a directory.
type DirectorySource struct {
	path    string
	opts    DirectoryOptions
	include []glob.Glob
	exclude []glob.Glob
	watcher *watch.Watcher

	mu     sync.Mutex
	cancel func()
}

var (
	_ catalog.Source        = (*DirectorySource)(nil)
	_ catalog.Attacher      = (*DirectorySource)(nil)
	_ catalog.Versioned     = (*DirectorySource)(nil)
	_ catalog.LexicalSource = (*DirectorySource)(nil)
)

// NewDirectorySource creates a source for path. Patterns that fail to
// compile are ignored; use CompilePatterns to validate them first. watcher
// may be nil.
func NewDirectorySource(path string, opts DirectoryOptions, watcher *watch.Watcher) *DirectorySource {
	include, _ := CompilePatterns(opts.Include)
	exclude, _ := CompilePatterns(opts.Exclude)
	return &DirectorySource{
		path:    filepath.Clean(path),
		opts:    opts,
		include: include,
		exclude: exclude,
		watcher: watcher,
	}
}

// CompilePatterns compiles glob patterns, returning the ones that compiled
// and the first error.
func CompilePatterns(patterns []string) ([]glob.Glob, error) {
	var (
		out   []glob.Glob
		first error
	)
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			if first == nil {
				first = fmt.Errorf("invalid pattern %q: %w", p, err)
			}
			continue
		}
		out = append(out, g)
	}
	return out, first
}

func (s *DirectorySource) Name() string                 { return filepath.Base(s.path) }
func (s *DirectorySource) IsDynamic() bool              { return false }
func (s *DirectorySource) Provides() []catalog.LeafType { return []catalog.LeafType{FileType} }
func (s *DirectorySource) SchemaVersion() int           { return directorySchema }
func (s *DirectorySource) ShouldSortLexically() bool    { return true }

// Path returns the indexed directory.
func (s *DirectorySource) Path() string { return s.path }

// Key identifies the directory together with the options that change its
// contents.
func (s *DirectorySource) Key() string {
	key := fmt.Sprintf("dir:%s:%d", s.path, s.opts.Depth)
	if s.opts.ShowHidden {
		key += ":hidden"
	}
	if len(s.opts.Include) > 0 || len(s.opts.Exclude) > 0 {
		key += ":" + strings.Join(s.opts.Include, ",") + "!" + strings.Join(s.opts.Exclude, ",")
	}
	return key
}

// Parent is the enclosing directory, or nil at the filesystem root.
func (s *DirectorySource) Parent() catalog.Source {
	parent := filepath.Dir(s.path)
	if parent == s.path {
		return nil
	}
	return NewDirectorySource(parent, DirectoryOptions{ShowHidden: s.opts.ShowHidden}, nil)
}

// Items walks the directory down to the configured depth.
func (s *DirectorySource) Items(ctx context.Context) ([]catalog.Leaf, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", s.path)
	}

	var leaves []catalog.Leaf
	err = filepath.WalkDir(s.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.path {
				return err
			}
			// Unreadable entries below the root are skipped.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == s.path {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := d.Name()
		if !s.visible(name, d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		leaves = append(leaves, NewFileLeaf(path, d.IsDir()))

		if d.IsDir() && s.depthOf(path) >= s.opts.Depth {
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return leaves, nil
}

func (s *DirectorySource) visible(name string, isDir bool) bool {
	if !s.opts.ShowHidden && strings.HasPrefix(name, ".") {
		return false
	}
	for _, g := range s.exclude {
		if g.Match(name) {
			return false
		}
	}
	if isDir || len(s.include) == 0 {
		return true
	}
	for _, g := range s.include {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// depthOf counts the levels between the root and path; direct children
// are at depth 0.
func (s *DirectorySource) depthOf(path string) int {
	rel, err := filepath.Rel(s.path, path)
	if err != nil {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator))
}

// Attach subscribes to changes of the root directory. Every change asks r
// for a plain rescan, which coalesces bursts of notifications.
func (s *DirectorySource) Attach(r catalog.RescanRequester) error {
	if s.watcher == nil || !s.opts.Watch {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	cancel, err := s.watcher.Watch(s.path, func(watch.Change) {
		r.RegisterRescan(s, false)
	})
	if err != nil {
		return err
	}
	s.cancel = cancel
	return nil
}

// Detach drops the watch.
func (s *DirectorySource) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
