package togglestate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "toggles.json")
	s := Open(path)

	if s.DMBlocked("1") || s.GroupEnabled("2") {
		t.Error("fresh store not empty")
	}
	// A fresh file is written immediately.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fresh file: %v", err)
	}
	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("fresh file not json: %v", err)
	}
}

func TestOpenMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toggles.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := Open(path)
	if s.DMBlocked("1") || s.GroupEnabled("2") {
		t.Error("malformed file should start empty")
	}
	// The malformed file is replaced with a valid empty one.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(data) {
		t.Errorf("file still malformed after open: %s", data)
	}
}

func TestMutationsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toggles.json")

	s := Open(path)
	if err := s.SetGroupEnabled("555", true); err != nil {
		t.Fatalf("SetGroupEnabled: %v", err)
	}
	if err := s.SetDMBlocked("42", true); err != nil {
		t.Fatalf("SetDMBlocked: %v", err)
	}
	if err := s.SetGroupEnabled("666", true); err != nil {
		t.Fatalf("SetGroupEnabled: %v", err)
	}
	if err := s.SetGroupEnabled("555", false); err != nil {
		t.Fatalf("SetGroupEnabled off: %v", err)
	}

	re := Open(path)
	if !re.DMBlocked("42") {
		t.Error("dm block lost across reopen")
	}
	if !re.GroupEnabled("666") {
		t.Error("group enable lost across reopen")
	}
	if re.GroupEnabled("555") {
		t.Error("disabled group still enabled after reopen")
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := Open(filepath.Join(dir, "toggles.json"))
	for i := 0; i < 5; i++ {
		if err := s.SetDMBlocked("1", i%2 == 0); err != nil {
			t.Fatalf("SetDMBlocked: %v", err)
		}
	}

	items, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range items {
		if strings.HasPrefix(it.Name(), "toggles-") && strings.HasSuffix(it.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", it.Name())
		}
	}
}
