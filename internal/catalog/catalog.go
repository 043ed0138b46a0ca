// Package catalog holds the intrinsics snapshot currently being browsed.
//
// Loads go through two caches before falling back to XML parsing: an
// in-memory LRU of recent snapshots and the on-disk snapshot store, both
// keyed by the content digest of the data file. Concurrent loads of the
// same path share one parse.
package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/cache"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/errors"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/intrinsics"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/snapshot"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/logging"
)

// Where a snapshot came from.
const (
	SourceXML    = "xml"
	SourceDisk   = "disk-cache"
	SourceMemory = "memory"
)

// Info describes the most recent successful load.
type Info struct {
	LoadID     string    `json:"load_id"`
	Path       string    `json:"path"`
	Key        string    `json:"key"`
	Source     string    `json:"source"`
	Version    string    `json:"version"`
	Date       string    `json:"date"`
	Intrinsics int       `json:"intrinsics"`
	LoadedAt   time.Time `json:"loaded_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Options configures a Store. Nil caches are disabled.
type Options struct {
	Memory *cache.SnapshotCache
	Disk   *snapshot.Store
}

// Store is safe for concurrent use. Readers get the snapshot pointer and
// never block a reload for longer than the swap.
type Store struct {
	mu        sync.RWMutex
	current   *intrinsics.ParseResult
	info      Info
	loaded    bool
	listeners []func(Info)

	group  singleflight.Group
	memory *cache.SnapshotCache
	disk   *snapshot.Store
}

type loadResult struct {
	res  *intrinsics.ParseResult
	info Info
}

// New creates an empty store.
func New(opts Options) *Store {
	return &Store{memory: opts.Memory, disk: opts.Disk}
}

// OnLoad registers fn to run after every successful load.
func (s *Store) OnLoad(fn func(Info)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Load makes the database at path current. On failure the previous
// snapshot stays in place and the error is an *errors.OpenError or
// *errors.FormatError.
func (s *Store) Load(ctx context.Context, path string) (Info, error) {
	if path == "" {
		return Info{}, errors.NewValidation("path", "no data file given")
	}
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	ch := s.group.DoChan(path, func() (any, error) {
		return s.load(path)
	})
	select {
	case <-ctx.Done():
		return Info{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Info{}, r.Err
		}
		return r.Val.(loadResult).info, nil
	}
}

// Reload loads the current data file again.
func (s *Store) Reload(ctx context.Context) (Info, error) {
	s.mu.RLock()
	path := s.info.Path
	s.mu.RUnlock()
	if path == "" {
		return Info{}, errors.NewValidation("path", "nothing loaded yet")
	}
	return s.Load(ctx, path)
}

func (s *Store) load(path string) (loadResult, error) {
	start := time.Now()
	loadID := uuid.NewString()

	data, err := intrinsics.ReadFile(path)
	if err != nil {
		logging.CatalogError(path, "read", err, "load_id", loadID)
		return loadResult{}, err
	}
	key := snapshot.Key(data)

	res, source := s.lookup(key)
	if res == nil {
		res, err = intrinsics.LoadBytes(data, path)
		if err != nil {
			logging.CatalogError(path, "parse", err, "load_id", loadID)
			return loadResult{}, err
		}
		source = SourceXML
		if err := s.disk.Put(key, path, res); err != nil {
			logging.Warn("snapshot_write_failed", "path", path, "error", err.Error())
		}
	}
	if s.memory != nil {
		s.memory.Put(key, res)
	}

	info := Info{
		LoadID:     loadID,
		Path:       path,
		Key:        key,
		Source:     source,
		Version:    res.Version,
		Date:       res.Date,
		Intrinsics: res.Len(),
		LoadedAt:   time.Now().UTC(),
		DurationMS: time.Since(start).Milliseconds(),
	}

	s.mu.Lock()
	s.current = res
	s.info = info
	s.loaded = true
	listeners := append([]func(Info){}, s.listeners...)
	s.mu.Unlock()

	logging.CatalogLoaded(loadID, path, source, info.Intrinsics, time.Since(start),
		"version", res.Version, "date", res.Date)
	for _, fn := range listeners {
		fn(info)
	}
	return loadResult{res: res, info: info}, nil
}

// lookup consults the memory cache, then the disk store.
func (s *Store) lookup(key string) (*intrinsics.ParseResult, string) {
	if s.memory != nil {
		if res, ok := s.memory.Get(key); ok {
			return res, SourceMemory
		}
	}
	res, ok, err := s.disk.Get(key)
	if err != nil {
		logging.Warn("snapshot_read_failed", "key", key, "error", err.Error())
		return nil, ""
	}
	if ok {
		return res, SourceDisk
	}
	return nil, ""
}

// Current returns the loaded snapshot, or nil before the first load.
func (s *Store) Current() *intrinsics.ParseResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Info describes the current snapshot. ok is false before the first load.
func (s *Store) Info() (info Info, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info, s.loaded
}

// Stats reports the memory cache statistics.
func (s *Store) Stats() cache.Stats {
	if s.memory == nil {
		return cache.Stats{}
	}
	return s.memory.Stats()
}
