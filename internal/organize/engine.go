// Package organize moves, copies and renames files on behalf of catalog
// actions, resolving name collisions with a configurable strategy.
package organize

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"quarry/internal/log"
)

// Collision strategies.
const (
	CollisionRename    = "rename"
	CollisionSkip      = "skip"
	CollisionOverwrite = "overwrite"
)

// Options configure an Engine.
type Options struct {
	Collision string
	Backup    bool
	DryRun    bool
}

// Engine handles file operations
type Engine struct {
	mu        sync.Mutex // serializes collision checks with the write that follows
	collision string
	backup    bool
	dryRun    bool
	logger    log.Logging
}

// New creates an Engine. An empty collision strategy means rename.
func New(opts Options, logger log.Logging) *Engine {
	if opts.Collision == "" {
		opts.Collision = CollisionRename
	}
	return &Engine{
		collision: opts.Collision,
		backup:    opts.Backup,
		dryRun:    opts.DryRun,
		logger:    logger,
	}
}

// SetDryRun sets whether operations should be performed or just simulated
func (e *Engine) SetDryRun(dryRun bool) {
	e.dryRun = dryRun
}

// IsDryRun returns whether the engine is in dry run mode
func (e *Engine) IsDryRun() bool {
	return e.dryRun
}

// MoveFile moves src to dest and returns where it ended up. An empty result
// with a nil error means the collision strategy skipped the move.
func (e *Engine) MoveFile(src, dest string) (string, error) {
	cleanSrc := filepath.Clean(src)
	cleanDest := filepath.Clean(dest)
	if cleanSrc == cleanDest {
		e.logger.With(log.F("path", src)).Debug("Source and destination are the same, skipping")
		return cleanDest, nil
	}

	if _, err := os.Lstat(cleanSrc); err != nil {
		return "", fmt.Errorf("source file error: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cleanDest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create destination directory: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dryRun {
		e.logger.Info("Would move %s -> %s", src, cleanDest)
		return cleanDest, nil
	}

	finalDest, err := e.handleCollision(cleanSrc, cleanDest)
	if err != nil || finalDest == "" {
		return "", err
	}
	if e.backup {
		if err := e.createBackup(finalDest); err != nil {
			return "", fmt.Errorf("backup failed: %w", err)
		}
	}

	if err := os.Rename(cleanSrc, finalDest); err != nil {
		return "", fmt.Errorf("failed to move file: %w", err)
	}
	e.logger.With(log.F("from", src), log.F("to", finalDest)).Info("Moved file")
	return finalDest, nil
}

// CopyFile copies src (a file or a directory tree) to dest.
func (e *Engine) CopyFile(src, dest string) (string, error) {
	cleanSrc := filepath.Clean(src)
	cleanDest := filepath.Clean(dest)
	if cleanSrc == cleanDest {
		return "", fmt.Errorf("cannot copy %s onto itself", src)
	}
	info, err := os.Stat(cleanSrc)
	if err != nil {
		return "", fmt.Errorf("source file error: %w", err)
	}
	if info.IsDir() && strings.HasPrefix(cleanDest, cleanSrc+string(filepath.Separator)) {
		return "", fmt.Errorf("cannot copy %s into itself", src)
	}
	if err := os.MkdirAll(filepath.Dir(cleanDest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create destination directory: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dryRun {
		e.logger.Info("Would copy %s -> %s", src, cleanDest)
		return cleanDest, nil
	}

	finalDest, err := e.handleCollision(cleanSrc, cleanDest)
	if err != nil || finalDest == "" {
		return "", err
	}
	if e.backup {
		if err := e.createBackup(finalDest); err != nil {
			return "", fmt.Errorf("backup failed: %w", err)
		}
	}

	if info.IsDir() {
		err = copyTree(cleanSrc, finalDest)
	} else {
		err = copyRegular(cleanSrc, finalDest, info.Mode().Perm())
	}
	if err != nil {
		return "", fmt.Errorf("failed to copy file: %w", err)
	}
	e.logger.With(log.F("from", src), log.F("to", finalDest)).Info("Copied file")
	return finalDest, nil
}

// MoveInto moves src into directory dir, keeping its base name.
func (e *Engine) MoveInto(src, dir string) (string, error) {
	return e.MoveFile(src, filepath.Join(dir, filepath.Base(src)))
}

// CopyInto copies src into directory dir, keeping its base name.
func (e *Engine) CopyInto(src, dir string) (string, error) {
	return e.CopyFile(src, filepath.Join(dir, filepath.Base(src)))
}

// Rename gives src a new base name in the same directory.
func (e *Engine) Rename(src, newName string) (string, error) {
	if newName == "" || strings.ContainsRune(newName, filepath.Separator) || newName == "." || newName == ".." {
		return "", fmt.Errorf("invalid file name %q", newName)
	}
	return e.MoveFile(src, filepath.Join(filepath.Dir(src), newName))
}

// handleCollision implements collision resolution strategies.
// It returns the final destination path and an error if any.
// If the file should be skipped, it returns an empty string and nil error.
func (e *Engine) handleCollision(src, dest string) (string, error) {
	_, err := os.Lstat(dest)
	if os.IsNotExist(err) {
		return dest, nil
	}
	if err != nil {
		return "", fmt.Errorf("error checking destination %s: %w", dest, err)
	}

	logger := e.logger.With(log.F("destination", dest), log.F("strategy", e.collision))
	switch e.collision {
	case CollisionSkip:
		logger.Info("Destination exists, skipping %s", src)
		return "", nil
	case CollisionOverwrite:
		logger.Warn("Overwriting existing destination")
		return dest, nil
	case CollisionRename:
		return e.findUniqueDestName(dest)
	default:
		return "", fmt.Errorf("unknown collision strategy: %s", e.collision)
	}
}

// findUniqueDestName finds a unique filename by adding counter to the basename
func (e *Engine) findUniqueDestName(originalPath string) (string, error) {
	ext := filepath.Ext(originalPath)
	base := strings.TrimSuffix(originalPath, ext)

	for counter := 1; counter <= 1000; counter++ {
		newName := fmt.Sprintf("%s_(%d)%s", base, counter, ext)
		if _, err := os.Lstat(newName); os.IsNotExist(err) {
			e.logger.With(log.F("destination", newName)).Debug("Renamed destination due to collision")
			return newName, nil
		}
	}
	return "", fmt.Errorf("failed to find unique name for %s after 1000 attempts", originalPath)
}

// createBackup creates a backup of the destination file if it exists
func (e *Engine) createBackup(dest string) error {
	info, err := os.Stat(dest)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}

	backupPath := fmt.Sprintf("%s.bak.%d", dest, time.Now().Unix())
	if err := copyRegular(dest, backupPath, info.Mode().Perm()); err != nil {
		return err
	}
	e.logger.With(log.F("backup", backupPath)).Info("Created backup")
	return nil
}

func copyRegular(src, dest string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode().IsRegular():
			return copyRegular(path, target, info.Mode().Perm())
		default:
			// Symlinks and special files are not copied.
			return nil
		}
	})
}
