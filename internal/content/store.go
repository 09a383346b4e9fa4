package content

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
)

// Store serves the latest content snapshot. The snapshot pointer is
// swapped whole on reload, so readers always see either the old or the
// new complete tree, never a mix.
type Store struct {
	dir string

	mu      sync.RWMutex
	snap    *Snapshot
	version int
	lastFP  string
}

// NewStore creates a store for dir and performs the initial load.
// Load failures leave an empty snapshot in place; content can still
// appear later via Reload.
func NewStore(dir string) *Store {
	s := &Store{dir: dir, snap: &Snapshot{}}
	if err := s.Reload(); err != nil {
		slog.Warn("content: initial load failed", "dir", dir, "error", err)
	}
	return s
}

// Snapshot returns the current immutable snapshot.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Reload rescans the content tree and swaps in a fresh snapshot.
// No-op when nothing changed since the last reload.
func (s *Store) Reload() error {
	fp := fingerprint(s.dir)

	s.mu.RLock()
	unchanged := s.version > 0 && fp == s.lastFP
	s.mu.RUnlock()
	if unchanged {
		return nil
	}

	snap, err := load(s.dir)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.lastFP = fp
	s.version++
	snap.Version = s.version
	s.snap = snap
	s.mu.Unlock()

	packParts := 0
	for _, e := range snap.WelcomePacks {
		packParts += len(e.Parts)
	}
	groupParts := 0
	for _, e := range snap.TriggerGroups {
		groupParts += len(e.Parts)
	}
	slog.Info("content: loaded",
		"version", snap.Version,
		"welcome_plain", len(snap.WelcomePlain),
		"welcome_pack_parts", packParts,
		"trigger_singles", len(snap.TriggerSingles),
		"trigger_groups", len(snap.TriggerGroups),
		"trigger_group_parts", groupParts,
	)
	return nil
}

// fingerprint summarizes the tree as path:size:mtime lines, so rescans
// can skip a full reload when nothing moved.
func fingerprint(dir string) string {
	var b strings.Builder
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		fmt.Fprintf(&b, "%s:%d:%d\n", path, info.Size(), info.ModTime().UnixNano())
		return nil
	})
	return b.String()
}
