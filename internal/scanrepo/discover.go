package scanrepo

import (
	"os"
	"path/filepath"
)

// Discover walks roots looking for directories containing a .git entry,
// skipping any directory whose basename appears in ignoreDirs. It does
// not recurse into a discovered repo's working tree (a repo nested inside
// another repo's subdirectory is unusual and not worth the walk cost).
func Discover(roots []string, ignoreDirs []string) []string {
	ignore := make(map[string]struct{}, len(ignoreDirs))
	for _, d := range ignoreDirs {
		ignore[d] = struct{}{}
	}

	var found []string
	for _, root := range roots {
		walkForRepos(root, ignore, &found)
	}
	return found
}

func walkForRepos(dir string, ignore map[string]struct{}, found *[]string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		*found = append(*found, dir)
		return
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if _, skip := ignore[name]; skip {
			continue
		}
		if len(name) > 0 && name[0] == '.' {
			continue
		}
		walkForRepos(filepath.Join(dir, name), ignore, found)
	}
}
