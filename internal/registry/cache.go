package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"quarry/internal/catalog"
	"quarry/internal/errors"
	"quarry/internal/log"
	"quarry/pkg/atomicfile"

	"github.com/gobwas/glob"
)

// CacheVersion is the format number embedded in cache file names. Files
// written under any other number are deleted at startup.
const CacheVersion = 2

var (
	cacheFilePattern = glob.MustCompile("quarry-v*-*.json")
	cacheFileVersion = regexp.MustCompile(`^quarry-v(\d+)-`)
)

// cacheFile is the on-disk snapshot of one source.
type cacheFile struct {
	Format int                  `json:"format"`
	Key    string               `json:"key"`
	Name   string               `json:"name"`
	Schema int                  `json:"schema"`
	Saved  time.Time            `json:"saved"`
	Leaves []catalog.LeafRecord `json:"leaves"`
}

// CacheName returns the cache file name of a source key.
func CacheName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("quarry-v%d-%s.json", CacheVersion, hex.EncodeToString(sum[:8]))
}

func (r *Registry) cachePath(src catalog.Source) string {
	return filepath.Join(r.cacheDir, CacheName(src.Key()))
}

// readCache loads the snapshot of src. Any problem is a CacheError that
// errors.IsCacheMiss recognizes.
func (r *Registry) readCache(src catalog.Source) ([]catalog.Leaf, error) {
	path := r.cachePath(src)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewCacheError("no cached snapshot", path, errors.CacheMiss, err)
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.NewCacheError("corrupt cache file", path, errors.CacheCorrupt, err)
	}
	if f.Format != CacheVersion || f.Key != src.Key() {
		return nil, errors.NewCacheError("cache file belongs elsewhere", path, errors.CacheCorrupt, nil)
	}
	if want := catalog.SchemaVersion(src); f.Schema != want {
		return nil, errors.NewCacheError(
			fmt.Sprintf("schema version %d, source wants %d", f.Schema, want),
			path, errors.CacheVersionMismatch, nil)
	}

	leaves, err := r.codecs.Decode(f.Leaves)
	if err != nil {
		return nil, errors.NewCacheError("undecodable cache file", path, errors.CacheCorrupt, err)
	}
	return leaves, nil
}

// writeCache stores the current snapshot of ix.
func (r *Registry) writeCache(ix *catalog.Indexed) error {
	leaves, ok := ix.Snapshot()
	if !ok {
		return nil
	}
	path := r.cachePath(ix)
	records, err := r.codecs.Encode(leaves)
	if err != nil {
		return errors.NewCacheError("cannot encode snapshot", path, errors.CacheWriteFailed, err)
	}
	f := cacheFile{
		Format: CacheVersion,
		Key:    ix.Key(),
		Name:   ix.Name(),
		Schema: catalog.SchemaVersion(ix),
		Saved:  time.Now().UTC(),
		Leaves: records,
	}
	if err := atomicfile.WriteJSON(path, f); err != nil {
		return errors.NewCacheError("cannot write cache file", path, errors.CacheWriteFailed, err)
	}
	return nil
}

// PurgeStale deletes cache files written under another CacheVersion.
func (r *Registry) PurgeStale() (int, error) {
	entries, err := os.ReadDir(r.cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !cacheFilePattern.Match(e.Name()) {
			continue
		}
		m := cacheFileVersion.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if v, err := strconv.Atoi(m[1]); err == nil && v == CacheVersion {
			continue
		}
		if err := os.Remove(filepath.Join(r.cacheDir, e.Name())); err != nil {
			r.logger.With(log.F("file", e.Name()), log.F("error", err)).Warn("Could not remove stale cache file")
			continue
		}
		removed++
	}
	return removed, nil
}
