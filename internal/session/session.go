// Package session persists the browser state between runs: which data
// file was open, the last query and facet picks, and the intrinsics the
// user had expanded.
package session

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/errors"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/filter"
)

const (
	appName  = "iguide"
	fileName = "session.toml"

	// MaxShown bounds the remembered list of opened intrinsics.
	MaxShown = 64
)

// Session is the persisted browser state.
type Session struct {
	DataPath  string           `toml:"data_path,omitempty"`
	Query     string           `toml:"query,omitempty"`
	Selection filter.Selection `toml:"selection"`
	Shown     []string         `toml:"shown,omitempty"`
	Current   string           `toml:"current,omitempty"`
	SavedAt   time.Time        `toml:"saved_at"`
}

// now is replaced in tests.
var now = time.Now

// writeMu serializes writers so two saves never interleave temp files.
var writeMu sync.Mutex

// DefaultPath returns $XDG_CONFIG_HOME/iguide/session.toml, falling back to
// the platform config directory.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName, fileName), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "locating config directory")
	}
	return filepath.Join(dir, appName, fileName), nil
}

// Load reads the session at path. A missing file yields a zero session.
func Load(path string) (*Session, error) {
	s := &Session{}
	if _, err := toml.DecodeFile(path, s); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Session{}, nil
		}
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	s.Shown = compact(s.Shown)
	return s, nil
}

// Save writes s to path atomically and stamps SavedAt.
func Save(path string, s *Session) error {
	if s == nil {
		return errors.NewValidation("session", "nil session")
	}
	writeMu.Lock()
	defer writeMu.Unlock()

	s.SavedAt = now().UTC().Truncate(time.Second)
	s.Shown = compact(s.Shown)

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("%s: failed to encode TOML: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.NewIO("create", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+fileName+".*")
	if err != nil {
		return errors.NewIO("create", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewIO("write", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewIO("write", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.NewIO("rename", path, err)
	}
	return nil
}

// Open records id as shown and makes it current. Reopening moves it to the
// front.
func (s *Session) Open(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	s.Close(id)
	s.Shown = append([]string{id}, s.Shown...)
	if len(s.Shown) > MaxShown {
		s.Shown = s.Shown[:MaxShown]
	}
	s.Current = id
}

// Close forgets id.
func (s *Session) Close(id string) {
	out := s.Shown[:0]
	for _, v := range s.Shown {
		if v != id {
			out = append(out, v)
		}
	}
	s.Shown = out
	if s.Current == id {
		s.Current = ""
	}
}

// IsShown reports whether id is among the opened intrinsics.
func (s *Session) IsShown(id string) bool {
	for _, v := range s.Shown {
		if v == id {
			return true
		}
	}
	return false
}

// compact drops blanks and duplicates, keeping first occurrences.
func compact(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) > MaxShown {
		out = out[:MaxShown]
	}
	return out
}
