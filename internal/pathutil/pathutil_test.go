package pathutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct {
		in   string
		want string
	}{
		{"~/.agentwatch", filepath.Join(home, ".agentwatch")},
		{"~", home},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "file.json")

	if err := AtomicWrite(path, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("got %q", data)
	}

	// No leftover temp files.
	entries, _ := os.ReadDir(filepath.Join(dir, "sub"))
	if len(entries) != 1 {
		t.Errorf("expected exactly one file after atomic write, got %d", len(entries))
	}
}

func TestAtomicWriteOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.json")
	if err := AtomicWrite(path, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWrite(path, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "second" {
		t.Errorf("got %q, want %q", data, "second")
	}
}

func TestPartitionPath(t *testing.T) {
	date := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	got, err := PartitionPath("/tmp/hooks/sessions_*.jsonl", date)
	if err != nil {
		t.Fatal(err)
	}
	want := "/tmp/hooks/sessions_2026-03-05.jsonl"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPartitionPathBadPattern(t *testing.T) {
	if _, err := PartitionPath("/tmp/hooks/no-wildcard.jsonl", time.Now()); err == nil {
		t.Error("expected error for pattern without wildcard")
	}
	if _, err := PartitionPath("/tmp/**.jsonl", time.Now()); err == nil {
		t.Error("expected error for pattern with two wildcards")
	}
}

func TestExtractDate(t *testing.T) {
	d, ok := ExtractDate("sessions_2026-03-05.jsonl")
	if !ok {
		t.Fatal("expected date to be found")
	}
	if d.Format("2006-01-02") != "2026-03-05" {
		t.Errorf("got %v", d)
	}

	if _, ok := ExtractDate("stats.json"); ok {
		t.Error("expected no date found in stats.json")
	}
}
