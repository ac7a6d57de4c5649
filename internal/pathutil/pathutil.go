// Package pathutil implements the path and storage primitives shared by the
// record-log engine and keyed JSON store: home-relative expansion, lazy
// directory creation, atomic file writes, and date-partitioned filenames.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ExpandHome replaces a leading "~" in path with the current user's home
// directory. Paths that don't start with "~" are returned unchanged.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	if len(path) > 1 && path[1] != '/' {
		// "~otheruser/..." is not supported; leave as-is.
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) == 1 {
		return home
	}
	return filepath.Join(home, path[1:])
}

// EnsureDir creates the parent directory of path (and any missing
// ancestors) if it does not already exist.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return nil
}

// AtomicWrite writes data to path by first writing to a sibling temp file
// (named with the current process id so concurrent writers from different
// processes never collide) and renaming it over the target. Rename is
// atomic on the same filesystem, so a crash mid-write can only ever leave
// the temp file behind -- the target is never observed half-written.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	if err := EnsureDir(path); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmpName := fmt.Sprintf(".%s.%d.tmp", filepath.Base(path), os.Getpid())
	tmpPath := filepath.Join(dir, tmpName)

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	committed = true
	return nil
}

// datePattern matches the ISO date embedded in partition filenames.
var datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// PartitionPath substitutes the single "*" in pattern with date formatted
// as YYYY-MM-DD. Pattern must contain exactly one "*"; a pattern with zero
// or more than one wildcard returns an error.
func PartitionPath(pattern string, date time.Time) (string, error) {
	n := strings.Count(pattern, "*")
	if n != 1 {
		return "", fmt.Errorf("partition pattern %q must contain exactly one '*', got %d", pattern, n)
	}
	dateStr := date.Format("2006-01-02")
	return strings.Replace(pattern, "*", dateStr, 1), nil
}

// ExtractDate pulls the first embedded YYYY-MM-DD date out of name. Returns
// the zero time and false if no date-shaped substring is present.
func ExtractDate(name string) (time.Time, bool) {
	m := datePattern.FindString(name)
	if m == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", m)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
