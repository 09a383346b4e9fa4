// Package content loads welcome and trigger entries from a markdown
// content tree and serves them as immutable, versioned snapshots.
//
// Layout under the content dir:
//
//	welcome/*.md          plain welcome entries, sent individually
//	welcome/<dir>/*.md    one grouped entry per dir, sent as a forward
//	triggers/*.md         single trigger entries (front matter lists keywords)
//	triggers/<dir>/       grouped trigger entries: keywords come from
//	                      _*.md meta files, body parts from the rest
//
// Files carry optional +++-fenced TOML front matter. Entry and part
// order is the lexicographic file/dir name order, so 000_intro.md
// sorts before 010_rules.md.
package content

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Entry is one content unit: either a single body or an ordered list
// of body parts delivered as an aggregated forward message.
type Entry struct {
	Name     string   // file or dir name, fixes ordering
	Keywords []string // trigger keywords, empty for welcome entries
	Body     string   // single entry body
	Parts    []string // grouped entry body parts
	Grouped  bool
}

// Snapshot is one immutable view of the content tree.
type Snapshot struct {
	Version        int
	WelcomePlain   []Entry
	WelcomePacks   []Entry
	TriggerSingles []Entry
	TriggerGroups  []Entry
}

// frontMatter is the TOML metadata block of a content file.
type frontMatter struct {
	Triggers []string `toml:"triggers"`
}

// parseFrontMatter splits a +++-fenced TOML front matter block from
// the body. Files without a fence are all body; a malformed block is
// treated as empty metadata rather than rejecting the file.
func parseFrontMatter(text string) (frontMatter, string) {
	var meta frontMatter
	if !strings.HasPrefix(text, "+++") {
		return meta, text
	}
	end := strings.Index(text[3:], "+++")
	if end < 0 {
		return meta, text
	}
	raw := strings.TrimSpace(text[3 : 3+end])
	body := strings.TrimLeft(text[3+end+3:], "\r\n")
	if raw != "" {
		if _, err := toml.Decode(raw, &meta); err != nil {
			meta = frontMatter{}
		}
	}
	return meta, body
}

// load scans the content dir and builds a snapshot. A missing
// welcome/ or triggers/ dir yields empty sections, not an error.
func load(dir string) (*Snapshot, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("content: stat %s: %w", dir, err)
	}
	snap := &Snapshot{}

	welcomeDir := filepath.Join(dir, "welcome")
	plain, packs, err := scanSection(welcomeDir, false)
	if err != nil {
		return nil, err
	}
	snap.WelcomePlain, snap.WelcomePacks = plain, packs

	trigDir := filepath.Join(dir, "triggers")
	singles, groups, err := scanSection(trigDir, true)
	if err != nil {
		return nil, err
	}
	// Trigger entries without keywords can never match; drop them here
	// so the engine only iterates usable entries.
	snap.TriggerSingles = keepKeyworded(singles)
	snap.TriggerGroups = keepKeyworded(groups)
	return snap, nil
}

func keepKeyworded(entries []Entry) []Entry {
	out := entries[:0]
	for _, e := range entries {
		if len(e.Keywords) > 0 {
			out = append(out, e)
		}
	}
	return out
}

// scanSection reads one of the two content sections. Root-level .md
// files become single entries; subdirectories become grouped entries.
func scanSection(dir string, triggers bool) (singles, groups []Entry, err error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("content: read %s: %w", dir, err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name() < items[j].Name() })

	for _, it := range items {
		if it.IsDir() {
			entry, err := scanGroupDir(filepath.Join(dir, it.Name()), triggers)
			if err != nil {
				return nil, nil, err
			}
			if len(entry.Parts) > 0 {
				groups = append(groups, entry)
			}
			continue
		}
		if !strings.HasSuffix(it.Name(), ".md") || strings.HasPrefix(it.Name(), "_") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, it.Name()))
		if err != nil {
			return nil, nil, fmt.Errorf("content: read %s: %w", it.Name(), err)
		}
		meta, body := parseFrontMatter(string(data))
		singles = append(singles, Entry{
			Name:     it.Name(),
			Keywords: cleanKeywords(meta.Triggers),
			Body:     strings.TrimSpace(body),
		})
	}
	return singles, groups, nil
}

// scanGroupDir builds one grouped entry from a subdirectory. For
// trigger sections, keywords are collected from _-prefixed meta files;
// all other .md files contribute body parts in name order.
func scanGroupDir(dir string, triggers bool) (Entry, error) {
	entry := Entry{Name: filepath.Base(dir), Grouped: true}

	items, err := os.ReadDir(dir)
	if err != nil {
		return entry, fmt.Errorf("content: read %s: %w", dir, err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name() < items[j].Name() })

	for _, it := range items {
		if it.IsDir() || !strings.HasSuffix(it.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, it.Name()))
		if err != nil {
			return entry, fmt.Errorf("content: read %s: %w", it.Name(), err)
		}
		meta, body := parseFrontMatter(string(data))
		if strings.HasPrefix(it.Name(), "_") {
			if triggers {
				entry.Keywords = append(entry.Keywords, cleanKeywords(meta.Triggers)...)
			}
			continue
		}
		if body = strings.TrimSpace(body); body != "" {
			entry.Parts = append(entry.Parts, body)
		}
	}
	return entry, nil
}

func cleanKeywords(raw []string) []string {
	var out []string
	for _, kw := range raw {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
