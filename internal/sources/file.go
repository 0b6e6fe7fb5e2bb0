// Package sources holds the built-in catalog providers: indexed directories,
// bookmarks and the text sources, plus the file actions that operate on them.
package sources

import (
	"encoding/json"
	"os"
	"path/filepath"

	"quarry/internal/catalog"
)

// Leaf types provided by this package.
const (
	FileType      catalog.LeafType = "file"
	DirectoryType catalog.LeafType = "file.directory"
	URLType       catalog.LeafType = "url"
	TextType      catalog.LeafType = "text"
)

// FileLeaf is a file or directory on disk.
type FileLeaf struct {
	*catalog.BaseLeaf
	path  string
	isDir bool
}

type fileData struct {
	Path string `json:"path"`
	Dir  bool   `json:"dir,omitempty"`
}

// NewFileLeaf creates a leaf for path.
func NewFileLeaf(path string, isDir bool) *FileLeaf {
	typ := FileType
	if isDir {
		typ = DirectoryType
	}
	name := filepath.Base(path)
	return &FileLeaf{
		BaseLeaf: catalog.NewLeaf(typ, "file:"+path, name, path),
		path:     path,
		isDir:    isDir,
	}
}

// Path returns the absolute path of the leaf.
func (l *FileLeaf) Path() string { return l.path }

// IsDir reports whether the leaf is a directory.
func (l *FileLeaf) IsDir() bool { return l.isDir }

func (l *FileLeaf) Description() string { return filepath.Dir(l.path) }
func (l *FileLeaf) HasContent() bool    { return l.isDir }

// ContentSource lists the directory. The alternate view includes hidden
// files.
func (l *FileLeaf) ContentSource(alternate bool) catalog.Source {
	if !l.isDir {
		return nil
	}
	return NewDirectorySource(l.path, DirectoryOptions{ShowHidden: alternate}, nil)
}

// IsValid reports whether the file still exists with the same kind.
func (l *FileLeaf) IsValid() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		return false
	}
	return info.IsDir() == l.isDir
}

// Record implements catalog.Durable.
func (l *FileLeaf) Record() (catalog.LeafRecord, error) {
	return catalog.RecordOf(l, fileData{Path: l.path, Dir: l.isDir})
}

func decodeFile(rec catalog.LeafRecord) (catalog.Leaf, error) {
	var d fileData
	if err := json.Unmarshal(rec.Data, &d); err != nil {
		return nil, err
	}
	return NewFileLeaf(d.Path, d.Dir), nil
}

// Codecs lists the cache decoders for the durable leaves of this package.
func Codecs() map[catalog.LeafType]catalog.DecodeFunc {
	return map[catalog.LeafType]catalog.DecodeFunc{
		FileType:      decodeFile,
		DirectoryType: decodeFile,
		URLType:       decodeURL,
	}
}

// FilePath returns the path behind leaf, if it is a file leaf.
func FilePath(leaf catalog.Leaf) (string, bool) {
	if fl, ok := leaf.(*FileLeaf); ok {
		return fl.path, true
	}
	return "", false
}
