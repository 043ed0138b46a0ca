// Package snapshot persists parsed intrinsics databases on disk so that a
// second start with the same data file skips XML parsing.
//
// Entries are keyed by the BLAKE3 digest of the raw data file and stored
// as msgpack. Writes go through a temp file and a rename, so readers never
// observe a half-written entry.
package snapshot

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/errors"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/intrinsics"
)

// SchemaVersion is bumped whenever the stored layout changes. Entries with
// another version are treated as misses.
const SchemaVersion uint16 = 1

const (
	appName   = "iguide"
	entryDir  = "snapshots"
	entryExt  = ".mp"
	structTag = "json"
)

// Store is an on-disk snapshot cache. It is safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// payload is the stored envelope around a snapshot.
type payload struct {
	Schema uint16                  `json:"schema"`
	Key    string                  `json:"key"`
	Source string                  `json:"source"`
	Result *intrinsics.ParseResult `json:"result"`
}

// DefaultDir returns $XDG_CACHE_HOME/iguide, falling back to ~/.cache/iguide.
func DefaultDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, appName), nil
}

// Open returns a store rooted at dir, creating it when needed. An empty dir
// selects DefaultDir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, errors.NewIO("resolve cache dir", "", err)
		}
		dir = d
	}
	if err := os.MkdirAll(filepath.Join(dir, entryDir), 0o755); err != nil {
		return nil, errors.NewIO("create cache dir", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Key returns the content key for raw data file bytes.
func Key(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *Store) pathFor(key string) string {
	return filepath.Join(s.dir, entryDir, key+entryExt)
}

func validKey(key string) bool {
	if len(key) != 64 {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}

// Put writes a snapshot under key.
func (s *Store) Put(key, source string, res *intrinsics.ParseResult) error {
	if s == nil || res == nil {
		return nil
	}
	if !validKey(key) {
		return errors.NewValidation("key", fmt.Sprintf("not a snapshot key: %q", key))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pathFor(key)
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return errors.NewIO("create", p, err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	enc := msgpack.NewEncoder(f)
	enc.SetCustomStructTag(structTag)
	if err := enc.Encode(&payload{Schema: SchemaVersion, Key: key, Source: source, Result: res}); err != nil {
		f.Close()
		return errors.NewIO("encode", p, err)
	}
	if err := f.Close(); err != nil {
		return errors.NewIO("close", p, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return errors.NewIO("rename", p, err)
	}
	return nil
}

// Get loads the snapshot stored under key. A missing entry or one written
// with another schema version reports ok=false and no error; an unreadable
// entry reports the error.
func (s *Store) Get(key string) (*intrinsics.ParseResult, bool, error) {
	if s == nil || !validKey(key) {
		return nil, false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.pathFor(key)
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, errors.NewIO("open", p, err)
	}
	defer f.Close()

	var out payload
	dec := msgpack.NewDecoder(f)
	dec.SetCustomStructTag(structTag)
	if err := dec.Decode(&out); err != nil {
		return nil, false, errors.NewIO("decode", p, err)
	}
	if out.Schema != SchemaVersion || out.Key != key || out.Result == nil {
		return nil, false, nil
	}
	return out.Result, true, nil
}

// Entries lists the keys currently stored.
func (s *Store) Entries() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dirents, err := os.ReadDir(filepath.Join(s.dir, entryDir))
	if err != nil {
		return nil, errors.NewIO("list", s.dir, err)
	}
	var keys []string
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, entryExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, entryExt))
	}
	return keys, nil
}

// Clear removes every stored snapshot and returns how many were removed.
func (s *Store) Clear() (int, error) {
	if s == nil {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	root := filepath.Join(s.dir, entryDir)
	dirents, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, errors.NewIO("list", root, err)
	}
	removed := 0
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(root, d.Name())); err != nil {
			return removed, errors.NewIO("remove", d.Name(), err)
		}
		if strings.HasSuffix(d.Name(), entryExt) {
			removed++
		}
	}
	return removed, nil
}
