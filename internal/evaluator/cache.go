package evaluator

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const cacheDirName = "celoeval"

// diskCache stores JSON values under a root directory and expires them by
// file modification time. A zero ttl disables reads.
type diskCache struct {
	root string
	ttl  time.Duration
}

func newDiskCache(ttl time.Duration) (*diskCache, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return nil, err
	}
	return &diskCache{root: filepath.Join(dir, cacheDirName), ttl: ttl}, nil
}

func (c *diskCache) path(elem ...string) string {
	return filepath.Join(append([]string{c.root}, elem...)...)
}

func (c *diskCache) put(data any, elem ...string) error {
	p := c.path(elem...)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return os.WriteFile(p, b, 0o644)
}

// get reports a hit only for a present, fresh and decodable entry. Misses
// and expired entries are not errors.
func (c *diskCache) get(target any, elem ...string) (bool, error) {
	if c.ttl <= 0 {
		return false, nil
	}

	p := c.path(elem...)
	stat, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if time.Since(stat.ModTime()) > c.ttl {
		return false, nil
	}

	b, err := os.ReadFile(p)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, target); err != nil {
		return false, err
	}

	return true, nil
}
