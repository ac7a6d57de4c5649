package scanrepo

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestDiscoverFindsRepos(t *testing.T) {
	root := t.TempDir()

	repoA := filepath.Join(root, "proj-a")
	repoB := filepath.Join(root, "nested", "proj-b")
	os.MkdirAll(filepath.Join(repoA, ".git"), 0o755)
	os.MkdirAll(filepath.Join(repoB, ".git"), 0o755)

	got := Discover([]string{root}, nil)
	sort.Strings(got)

	want := []string{repoA, repoB}
	sort.Strings(want)

	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("at %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDiscoverSkipsIgnoredDirs(t *testing.T) {
	root := t.TempDir()
	ignored := filepath.Join(root, "node_modules", "some-pkg")
	os.MkdirAll(filepath.Join(ignored, ".git"), 0o755)

	got := Discover([]string{root}, []string{"node_modules"})
	if len(got) != 0 {
		t.Errorf("expected no repos discovered under ignored dir, got %v", got)
	}
}

func TestDiscoverDoesNotRecurseIntoFoundRepo(t *testing.T) {
	root := t.TempDir()
	repo := filepath.Join(root, "proj")
	os.MkdirAll(filepath.Join(repo, ".git"), 0o755)
	nested := filepath.Join(repo, "vendor", "sub")
	os.MkdirAll(filepath.Join(nested, ".git"), 0o755)

	got := Discover([]string{root}, nil)
	if len(got) != 1 || got[0] != repo {
		t.Errorf("got %v, want [%s]", got, repo)
	}
}
