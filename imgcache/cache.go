// Package imgcache keeps a deduplicated collection of images on disk.
//
// Images are stored as files named 0, 1, 2, ... inside the cache directory,
// next to a LastUpdateFile with the time of the most recent append. The
// in-memory index (count, perceptual hashes, update time) is rebuilt from disk
// by Init and is only changed by AddImage afterwards.
package imgcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	// Decoders for the formats image search results usually come in.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const DefaultMaxAge = 24 * time.Hour

type state struct {
	// seconds since UNIX epoch
	updated     uint64
	count       uint32
	generation  uint32
	initialized bool
	hashes      map[string]struct{}
}

type Cache struct {
	dir    string
	maxAge time.Duration
	hasher Hasher
	now    func() time.Time
	intN   func(n int) int

	mu    sync.RWMutex
	state state
}

// Stats is a point-in-time view of the cache index. DiskDuplicates counts
// stored files whose hash was already taken by another file when Init scanned
// the directory; AddImage never adds to it.
type Stats struct {
	Initialized    bool      `json:"initialized"`
	Stale          bool      `json:"stale"`
	Count          uint32    `json:"count"`
	Generation     uint32    `json:"generation"`
	Hashes         int       `json:"hashes"`
	DiskDuplicates int       `json:"disk_duplicates"`
	Updated        time.Time `json:"updated"`
}

type Option func(*Cache)

// WithMaxAge sets how long after the last append the cache counts as stale.
func WithMaxAge(maxAge time.Duration) Option {
	return func(c *Cache) {
		c.maxAge = maxAge
	}
}

func WithHasher(hasher Hasher) Option {
	return func(c *Cache) {
		c.hasher = hasher
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithRand replaces the index picker used by RandomImage. intN must return a
// value in [0, n).
func WithRand(intN func(n int) int) Option {
	return func(c *Cache) {
		c.intN = intN
	}
}

func New(dir string, opts ...Option) *Cache {
	c := &Cache{
		dir:    dir,
		maxAge: DefaultMaxAge,
		hasher: DifferenceHasher{},
		now:    time.Now,
		intN:   rand.IntN,
		state: state{
			hashes: make(map[string]struct{}),
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Init scans the cache directory and builds the in-memory index. It must be
// called exactly once before AddImage.
//
// Files put into the directory by hand may repeat a picture that is already
// stored. Such files keep their index and are served like any other, but the
// hash set holds one entry for them, so Count exceeds the number of hashes;
// Stats reports the difference as DiskDuplicates.
func (c *Cache) Init(ctx context.Context) error {
	slog.Info("imgcache: Initialising cache", "dir", c.dir)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.initialized {
		slog.Error("imgcache: Cache already initialised")
		sentry.CaptureException(ErrInitializationRace)

		return ErrInitializationRace
	}

	if _, err := os.Stat(c.dir); err != nil {
		slog.Info("imgcache: Cannot find cache dir. Trying to create", "error", err)

		if err := os.MkdirAll(c.dir, dirPerm); err != nil {
			return errors.Join(ErrStorage, err)
		}
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return errors.Join(ErrStorage, err)
	}

	hashes := make(map[string]struct{}, len(entries))
	indices := make(map[uint64]struct{}, len(entries))

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := entry.Name()

		if name == LastUpdateFile {
			continue
		}

		if strings.HasSuffix(name, tmpSuffix) {
			slog.Warn("imgcache: Removing unfinished write", "file", name)

			if err := os.Remove(filepath.Join(c.dir, name)); err != nil {
				return errors.Join(ErrStorage, err)
			}

			continue
		}

		idx, err := strconv.ParseUint(name, 10, 32)
		if err != nil || entry.IsDir() || strconv.FormatUint(idx, 10) != name {
			return errors.Join(ErrStorage, fmt.Errorf("unexpected entry %q in cache dir", name))
		}

		raw, err := os.ReadFile(filepath.Join(c.dir, name))
		if err != nil {
			return errors.Join(ErrStorage, err)
		}

		hash, err := c.hash(raw)
		if err != nil {
			return errors.Join(ErrStorage, fmt.Errorf("image %q: %w", name, err))
		}

		if _, ok := hashes[hash]; ok {
			slog.Warn("imgcache: Duplicate image found on disk", "file", name, "hash", hash)
		}

		hashes[hash] = struct{}{}
		indices[idx] = struct{}{}
	}

	count := uint32(len(indices))
	for idx := range indices {
		if idx >= uint64(count) {
			return errors.Join(ErrStorage, fmt.Errorf("image indices are not contiguous: found %d with %d images", idx, count))
		}
	}

	updated, err := readTimestamp(c.timestampPath())
	if err != nil {
		slog.Warn("imgcache: Failed to read update time", "error", err)

		if count > 0 {
			slog.Info("imgcache: Defaulting update time to now")
			updated = c.nowSeconds()
		} else {
			slog.Info("imgcache: Defaulting update time to zero")
			updated = 0
		}

		if err := writeTimestamp(c.timestampPath(), updated); err != nil {
			return errors.Join(ErrStorage, err)
		}
	}

	c.state.updated = updated
	c.state.count = count
	c.state.hashes = hashes
	c.state.initialized = true

	slog.Info("imgcache: Cache initialised", "count", count, "hashes", len(hashes), "updated", updated)

	return nil
}

// RandomImage returns the bytes of a uniformly chosen stored image.
func (c *Cache) RandomImage(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state.count == 0 {
		return nil, ErrEmptyCache
	}

	idx := uint32(c.intN(int(c.state.count)))

	data, err := os.ReadFile(c.imagePath(idx))
	if err != nil {
		slog.Error("imgcache: Cannot read cached image", "index", idx, "error", err)
		sentry.CaptureException(err)

		return nil, errors.Join(ErrStorage, err)
	}

	return data, nil
}

// AddImage stores data unless a perceptually identical image is already
// cached. It reports whether a new file was written; a duplicate is not an
// error.
func (c *Cache) AddImage(ctx context.Context, data []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.RLock()
	initialized := c.state.initialized
	c.mu.RUnlock()

	if !initialized {
		slog.Warn("imgcache: Attempted to update uninitialised cache")

		return false, ErrUninitialized
	}

	// Decoding and hashing touch no shared state and stay outside the lock.
	hash, err := c.hash(data)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	slog.Debug("imgcache: Start updating cache", "generation", c.state.generation)

	if _, ok := c.state.hashes[hash]; ok {
		slog.Info("imgcache: Image already cached", "hash", hash)

		return false, nil
	}

	idx := c.state.count
	path := c.imagePath(idx)

	if err := writeFileAtomic(path, data); err != nil {
		slog.Error("imgcache: Cannot write image", "index", idx, "error", err)
		sentry.CaptureException(err)

		return false, errors.Join(ErrStorage, err)
	}

	updated := c.nowSeconds()

	if err := writeTimestamp(c.timestampPath(), updated); err != nil {
		slog.Error("imgcache: Cannot persist update time", "error", err)
		sentry.CaptureException(err)

		// keep the file count in line with the index
		_ = os.Remove(path)

		return false, errors.Join(ErrStorage, err)
	}

	c.state.hashes[hash] = struct{}{}
	c.state.updated = updated
	c.state.count++
	c.state.generation++

	slog.Info("imgcache: Cache updated", "index", idx, "generation", c.state.generation, "hash", hash)

	return true, nil
}

// IsStale reports whether the cache needs new images: it was never
// initialised, holds nothing, or was last appended to more than maxAge ago.
func (c *Cache) IsStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.isStaleLocked()
}

func (c *Cache) Count() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state.count
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Initialized:    c.state.initialized,
		Stale:          c.isStaleLocked(),
		Count:          c.state.count,
		Generation:     c.state.generation,
		Hashes:         len(c.state.hashes),
		DiskDuplicates: int(c.state.count) - len(c.state.hashes),
		Updated:        time.Unix(int64(c.state.updated), 0),
	}
}

func (c *Cache) isStaleLocked() bool {
	if !c.state.initialized || c.state.count == 0 {
		return true
	}

	return c.now().Sub(time.Unix(int64(c.state.updated), 0)) >= c.maxAge
}

func (c *Cache) hash(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", errors.Join(ErrDecode, err)
	}

	hash, err := c.hasher.Hash(img)
	if err != nil {
		return "", errors.Join(ErrDecode, err)
	}

	return hash, nil
}

func (c *Cache) nowSeconds() uint64 {
	return uint64(c.now().Unix())
}

func (c *Cache) imagePath(idx uint32) string {
	return filepath.Join(c.dir, strconv.FormatUint(uint64(idx), 10))
}

func (c *Cache) timestampPath() string {
	return filepath.Join(c.dir, LastUpdateFile)
}
