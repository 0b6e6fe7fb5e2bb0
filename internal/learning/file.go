package learning

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"quarry/internal/errors"
	"quarry/pkg/atomicfile"
)

const fileFormatVersion = 1

// Compile-time check that FileRepository implements Repository.
var _ Repository = (*FileRepository)(nil)

// ErrClosed is returned by a FileRepository used after Close.
var ErrClosed = errors.New("learning file is closed")

type mnemonicFile struct {
	Version   int                  `json:"version"`
	Mnemonics map[string]*Mnemonic `json:"mnemonics"`
}

// FileRepository keeps the mnemonic map in a single JSON file.
type FileRepository struct {
	path   string
	mu     sync.Mutex
	closed bool
}

// NewFileRepository stores mnemonics at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// Load reads the file. A missing file is an empty store.
func (r *FileRepository) Load(_ context.Context) (map[string]*Mnemonic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Mnemonic{}, nil
		}
		return nil, errors.Wrapf(err, "read learning file %s", r.path)
	}

	var f mnemonicFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "unmarshal learning file %s", r.path)
	}
	if f.Version != fileFormatVersion {
		return nil, errors.Newf("learning file %s: unsupported version %d", r.path, f.Version)
	}
	if f.Mnemonics == nil {
		f.Mnemonics = map[string]*Mnemonic{}
	}
	return f.Mnemonics, nil
}

// Save rewrites the file atomically.
func (r *FileRepository) Save(_ context.Context, mnemonics map[string]*Mnemonic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	err := atomicfile.WriteJSON(r.path, mnemonicFile{Version: fileFormatVersion, Mnemonics: mnemonics})
	return errors.Wrap(err, "write learning file")
}

// Close makes further loads and saves fail with ErrClosed.
func (r *FileRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
