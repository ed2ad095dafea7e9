// Package store persists the ticket listing as a single JSON file.
//
// Readers never observe a partially written file: Replace writes a sibling
// "<path>.tmp", syncs it, and renames it over the canonical path.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"nestdesk/internal/tickets/models"
	platformsync "nestdesk/pkg/platform/sync"
)

var (
	// ErrCacheUnavailable means the file is missing, unreadable, or not decodable.
	ErrCacheUnavailable = errors.New("ticket cache unavailable")
	// ErrCacheWrite means the temp write or the atomic replace failed.
	ErrCacheWrite = errors.New("ticket cache write failed")
)

const tmpSuffix = ".tmp"

// Writers across FileCache values are serialized per path.
var defaultLocks = platformsync.NewShardedMutex(0)

// FileCache is a file-backed record store.
type FileCache struct {
	path  string
	locks *platformsync.ShardedMutex

	// beforeRename runs after the temp file is durable and before it is
	// renamed into place. Tests use it to simulate a crash.
	beforeRename func() error
}

type Option func(*FileCache)

// WithLocks overrides the process-wide per-path lock set.
func WithLocks(locks *platformsync.ShardedMutex) Option {
	return func(c *FileCache) {
		c.locks = locks
	}
}

// New returns a FileCache for path. The file need not exist yet.
func New(path string, opts ...Option) *FileCache {
	c := &FileCache{
		path:  filepath.Clean(path),
		locks: defaultLocks,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the canonical cache file path.
func (c *FileCache) Path() string {
	return c.path
}

// Load reads every record in the cache. The file holds either a JSON array
// of records or an object with an "items" array.
func (c *FileCache) Load(ctx context.Context) (models.Records, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}

	records, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrCacheUnavailable, c.path, err)
	}
	return records, nil
}

func decode(data []byte) (models.Records, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}

	switch data[0] {
	case '[':
		var records models.Records
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
		return records, nil
	case '{':
		var doc struct {
			Items *models.Records `json:"items"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		if doc.Items == nil {
			return nil, errors.New(`object without "items" array`)
		}
		return *doc.Items, nil
	default:
		return nil, fmt.Errorf("unexpected top-level token %q", data[0])
	}
}

// Replace atomically swaps the cache contents for records. The previous
// content is discarded, never merged.
func (c *FileCache) Replace(ctx context.Context, records models.Records) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if records == nil {
		records = models.Records{}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("%w: encoding records: %w", ErrCacheWrite, err)
	}

	return c.locks.WithLock(c.path, func() error {
		if err := c.writeAtomic(data); err != nil {
			return fmt.Errorf("%w: %w", ErrCacheWrite, err)
		}
		return nil
	})
}

func (c *FileCache) writeAtomic(data []byte) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmpPath := c.path + tmpSuffix
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary cache file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temporary cache file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temporary cache file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temporary cache file: %w", err)
	}

	if c.beforeRename != nil {
		if err := c.beforeRename(); err != nil {
			os.Remove(tmpPath)
			return err
		}
	}

	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming cache file into place: %w", err)
	}

	// Make the rename durable.
	if parent, err := os.Open(dir); err == nil {
		_ = parent.Sync()
		parent.Close()
	}
	return nil
}
