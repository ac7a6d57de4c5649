package jsonstore

import (
	"os"
	"path/filepath"
	"testing"
)

type annotation struct {
	Stamped
	SessionID string   `json:"sessionId"`
	Tags      []string `json:"tags"`
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	out := &annotation{SessionID: "default", Tags: []string{"seed"}}
	if err := Load(filepath.Join(dir, "missing.json"), out); err != nil {
		t.Fatal(err)
	}
	if out.SessionID != "default" {
		t.Errorf("got %q, want default preserved", out.SessionID)
	}
}

func TestLoadMalformedReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := &annotation{SessionID: "default"}
	if err := Load(path, out); err != nil {
		t.Fatal(err)
	}
	if out.SessionID != "default" {
		t.Errorf("got %q, want default preserved on malformed JSON", out.SessionID)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "annotation.json")

	blob := &annotation{SessionID: "s1", Tags: []string{"bugfix"}}
	if err := Save(path, blob); err != nil {
		t.Fatal(err)
	}
	if blob.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be stamped")
	}

	got := &annotation{}
	if err := Load(path, got); err != nil {
		t.Fatal(err)
	}
	if got.SessionID != "s1" || len(got.Tags) != 1 || got.Tags[0] != "bugfix" {
		t.Errorf("got %+v", got)
	}
}

func TestUpdate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "annotation.json")

	out := &annotation{SessionID: "s1"}
	err := Update(path, out, func() error {
		out.Tags = append(out.Tags, "loop-detected")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	reloaded := &annotation{}
	if err := Load(path, reloaded); err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Tags) != 1 || reloaded.Tags[0] != "loop-detected" {
		t.Errorf("got %+v", reloaded)
	}
}
