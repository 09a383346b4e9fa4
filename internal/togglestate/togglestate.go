// Package togglestate persists the runtime trigger on/off switches:
// private correspondents who turned the agent off, and non-listed
// groups an admin explicitly turned on. The state must survive
// restarts, so every mutation rewrites the whole file atomically
// (temp file then rename) before the change is acknowledged.
package togglestate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// fileState is the durable wire shape: exactly two id lists.
type fileState struct {
	DMBlocked    []string `json:"dm_blocked"`
	GroupEnabled []string `json:"group_enabled"`
}

// Store holds the toggle sets. Safe for concurrent use.
type Store struct {
	mu           sync.Mutex
	path         string
	dmBlocked    map[string]bool
	groupEnabled map[string]bool
}

// Open loads the state file at path. A missing or malformed file
// initializes empty sets and writes a fresh file; read errors are
// logged, never fatal.
func Open(path string) *Store {
	s := &Store{
		path:         path,
		dmBlocked:    make(map[string]bool),
		groupEnabled: make(map[string]bool),
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := s.save(); err != nil {
			slog.Warn("togglestate: write initial state failed", "path", path, "error", err)
		}
		return s
	case err != nil:
		slog.Warn("togglestate: read failed, starting empty", "path", path, "error", err)
		return s
	}

	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("togglestate: malformed state, starting empty", "path", path, "error", err)
		if err := s.save(); err != nil {
			slog.Warn("togglestate: rewrite state failed", "path", path, "error", err)
		}
		return s
	}
	for _, id := range st.DMBlocked {
		s.dmBlocked[id] = true
	}
	for _, id := range st.GroupEnabled {
		s.groupEnabled[id] = true
	}
	return s
}

// DMBlocked reports whether the user disabled private triggers.
func (s *Store) DMBlocked(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dmBlocked[userID]
}

// GroupEnabled reports whether a non-listed group was explicitly
// enabled at runtime.
func (s *Store) GroupEnabled(groupID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupEnabled[groupID]
}

// SetDMBlocked adds or removes a user from the blocked set and
// persists the full state.
func (s *Store) SetDMBlocked(userID string, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if blocked {
		s.dmBlocked[userID] = true
	} else {
		delete(s.dmBlocked, userID)
	}
	return s.save()
}

// SetGroupEnabled adds or removes a group from the enabled set and
// persists the full state.
func (s *Store) SetGroupEnabled(groupID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled {
		s.groupEnabled[groupID] = true
	} else {
		delete(s.groupEnabled, groupID)
	}
	return s.save()
}

// save serializes the full state and atomically replaces the durable
// file. Callers hold s.mu. A concurrent external reader sees either
// the old or the new file, never a partial write.
func (s *Store) save() error {
	st := fileState{
		DMBlocked:    sortedKeys(s.dmBlocked),
		GroupEnabled: sortedKeys(s.groupEnabled),
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("togglestate: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("togglestate: mkdir %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, "toggles-*.tmp")
	if err != nil {
		return fmt.Errorf("togglestate: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("togglestate: write temp: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("togglestate: sync temp: %w", err)
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("togglestate: rename: %w", err)
	}
	cleanup = false
	return nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
