package recordlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type toolUsage struct {
	Tool    string `json:"tool"`
	Session string `json:"session"`
}

func TestAppendAndReadAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "usages.jsonl")

	if err := Append(path, toolUsage{Tool: "Read", Session: "s1"}); err != nil {
		t.Fatal(err)
	}
	if err := Append(path, toolUsage{Tool: "Edit", Session: "s1"}); err != nil {
		t.Fatal(err)
	}

	var got []toolUsage
	err := ReadAll(path, func() any { return &toolUsage{} }, func(r any) error {
		got = append(got, *r.(*toolUsage))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].Tool != "Read" || got[1].Tool != "Edit" {
		t.Errorf("got %+v", got)
	}
}

func TestReadAllMissingFile(t *testing.T) {
	dir := t.TempDir()
	var got []toolUsage
	err := ReadAll(filepath.Join(dir, "nope.jsonl"), func() any { return &toolUsage{} }, func(r any) error {
		got = append(got, *r.(*toolUsage))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}

func TestReadAllSkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "usages.jsonl")
	content := "{\"tool\":\"Read\",\"session\":\"s1\"}\nnot json\n{\"tool\":\"Bash\",\"session\":\"s1\"}\n{truncated"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var got []toolUsage
	err := ReadAll(path, func() any { return &toolUsage{} }, func(r any) error {
		got = append(got, *r.(*toolUsage))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2 (corrupt lines skipped)", len(got))
	}
}

func TestAppendToPartition(t *testing.T) {
	dir := t.TempDir()
	pattern := filepath.Join(dir, "sessions_*.jsonl")
	date := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

	if err := AppendToPartition(pattern, toolUsage{Tool: "Read", Session: "s1"}, date); err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(dir, "sessions_2026-03-05.jsonl")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected partition file %s: %v", want, err)
	}
}

func TestReadRange(t *testing.T) {
	dir := t.TempDir()
	pattern := filepath.Join(dir, "sessions_*.jsonl")

	days := []string{"2026-03-01", "2026-03-02", "2026-03-03", "2026-03-10"}
	for _, d := range days {
		date, _ := time.Parse("2006-01-02", d)
		if err := AppendToPartition(pattern, toolUsage{Tool: "x", Session: d}, date); err != nil {
			t.Fatal(err)
		}
	}

	start, _ := time.Parse("2006-01-02", "2026-03-02")
	end, _ := time.Parse("2006-01-02", "2026-03-10")

	var got []string
	err := ReadRange(pattern, RangeOptions{Start: start, End: end}, func() any { return &toolUsage{} }, func(r any) error {
		got = append(got, r.(*toolUsage).Session)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"2026-03-10", "2026-03-03", "2026-03-02"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("at %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReadRangeAscending(t *testing.T) {
	dir := t.TempDir()
	pattern := filepath.Join(dir, "sessions_*.jsonl")

	days := []string{"2026-03-01", "2026-03-02", "2026-03-10"}
	for _, d := range days {
		date, _ := time.Parse("2006-01-02", d)
		if err := AppendToPartition(pattern, toolUsage{Tool: "x", Session: d}, date); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	err := ReadRange(pattern, RangeOptions{Ascending: true}, func() any { return &toolUsage{} }, func(r any) error {
		got = append(got, r.(*toolUsage).Session)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"2026-03-01", "2026-03-02", "2026-03-10"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("at %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReadRangeLimit(t *testing.T) {
	dir := t.TempDir()
	pattern := filepath.Join(dir, "sessions_*.jsonl")

	for _, d := range []string{"2026-03-01", "2026-03-02", "2026-03-03"} {
		date, _ := time.Parse("2006-01-02", d)
		if err := AppendToPartition(pattern, toolUsage{Tool: "x", Session: d}, date); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	err := ReadRange(pattern, RangeOptions{Limit: 2}, func() any { return &toolUsage{} }, func(r any) error {
		got = append(got, r.(*toolUsage).Session)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0] != "2026-03-03" || got[1] != "2026-03-02" {
		t.Errorf("got %v", got)
	}
}

func TestRotateByAge(t *testing.T) {
	dir := t.TempDir()
	pattern := filepath.Join(dir, "sessions_*.jsonl")

	oldPath := filepath.Join(dir, "sessions_2020-01-01.jsonl")
	newPath := filepath.Join(dir, "sessions_2026-07-30.jsonl")
	if err := os.WriteFile(oldPath, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newPath, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	oldTime := time.Now().Add(-100 * 24 * time.Hour)
	if err := os.Chtimes(oldPath, oldTime, oldTime); err != nil {
		t.Fatal(err)
	}

	deleted, err := Rotate(pattern, RotateOptions{MaxAgeDays: 30})
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 1 || deleted[0] != oldPath {
		t.Errorf("got deleted %v, want [%s]", deleted, oldPath)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Errorf("expected newPath to survive rotation: %v", err)
	}
}

func TestRotateByMaxFiles(t *testing.T) {
	dir := t.TempDir()
	pattern := filepath.Join(dir, "sessions_*.jsonl")

	for i, d := range []string{"2026-03-01", "2026-03-02", "2026-03-03", "2026-03-04"} {
		p := filepath.Join(dir, "sessions_"+d+".jsonl")
		if err := os.WriteFile(p, []byte("{}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		mt := time.Now().Add(time.Duration(i) * time.Hour)
		if err := os.Chtimes(p, mt, mt); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := Rotate(pattern, RotateOptions{MaxFiles: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 2 {
		t.Fatalf("got %d deleted, want 2", len(deleted))
	}

	remaining, _ := filepath.Glob(pattern)
	if len(remaining) != 2 {
		t.Errorf("got %d remaining files, want 2", len(remaining))
	}
}
