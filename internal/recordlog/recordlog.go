// Package recordlog implements the append-only, date-partitioned JSON
// record log used throughout AgentWatch's durable layer: session
// mutations, tool usages, commit attributions, and audit events all share
// this engine. Appends are crash-atomic at line granularity -- a torn
// write can only ever damage the last line of a file, so readers always
// skip corrupt trailing lines rather than fail.
package recordlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/agentwatch/agentwatch/internal/pathutil"
)

// Append JSON-encodes record and appends it, newline-terminated, to path.
// The file is created (with parent directories) if it does not exist.
// Callers do not need to fsync: appends are small, sequential, and the
// kernel page cache makes durability a best-effort property on this path,
// matching the persistence policy in the error-handling design (Transient
// persistence failures are logged and swallowed by callers, never
// escalated to the in-memory state).
func Append(path string, record any) error {
	if err := pathutil.EnsureDir(path); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s for append: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	return nil
}

// AppendToPartition derives the partition file path from pattern and date
// (or the current date if date is the zero value), then appends record to
// it.
func AppendToPartition(pattern string, record any, date time.Time) error {
	if date.IsZero() {
		date = time.Now()
	}
	path, err := pathutil.PartitionPath(pattern, date)
	if err != nil {
		return err
	}
	return Append(path, record)
}

// ReadAll streams path line by line, JSON-decoding each line into a new
// instance produced by newRecord, and calls fn for each successfully
// decoded record. Lines that fail to decode are skipped silently -- a
// corrupt line never halts reading of the rest of the file. A missing
// file is not an error; fn is simply never called.
func ReadAll(path string, newRecord func() any, fn func(record any) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec := newRecord()
		if err := json.Unmarshal(line, rec); err != nil {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	// scanner.Err() surfaces only read errors (not decode errors, which we
	// intentionally swallow above), and a torn last line on a crash looks
	// identical to EOF mid-token to bufio.Scanner, so no error is raised here.
	return nil
}

// RangeOptions bounds a ReadRange query.
type RangeOptions struct {
	Start     time.Time // inclusive; zero value means unbounded
	End       time.Time // inclusive; zero value means unbounded
	Limit     int       // 0 means unlimited
	Ascending bool      // read oldest partition first instead of newest first
}

// ReadRange enumerates files matching pattern's directory and glob whose
// embedded date falls within [opts.Start, opts.End], sorts them descending
// by date (newest first) -- or ascending when opts.Ascending is set, which
// callers need for "last occurrence wins" replay semantics (a later file,
// and a later line within it, must be free to overwrite an earlier one) --
// and reads records from each file in that order via ReadAll, stopping once
// opts.Limit records have been collected (0 = no limit). fn is called for
// each record in order.
func ReadRange(pattern string, opts RangeOptions, newRecord func() any, fn func(record any) error) error {
	dir := filepath.Dir(pattern)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("listing %s: %w", dir, err)
	}

	base := filepath.Base(pattern)
	type candidate struct {
		path string
		date time.Time
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		matched, err := filepath.Match(base, name)
		if err != nil || !matched {
			continue
		}
		date, ok := pathutil.ExtractDate(name)
		if !ok {
			continue
		}
		if !opts.Start.IsZero() && date.Before(truncateDay(opts.Start)) {
			continue
		}
		if !opts.End.IsZero() && date.After(truncateDay(opts.End)) {
			continue
		}
		candidates = append(candidates, candidate{path: filepath.Join(dir, name), date: date})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if opts.Ascending {
			return candidates[i].date.Before(candidates[j].date)
		}
		return candidates[i].date.After(candidates[j].date)
	})

	count := 0
	for _, c := range candidates {
		stop := false
		err := ReadAll(c.path, newRecord, func(record any) error {
			if opts.Limit > 0 && count >= opts.Limit {
				stop = true
				return errStop
			}
			count++
			return fn(record)
		})
		if err != nil && err != errStop {
			return err
		}
		if stop {
			break
		}
	}
	return nil
}

var errStop = fmt.Errorf("recordlog: limit reached")

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// RotateOptions configures Rotate.
type RotateOptions struct {
	MaxAgeDays int // delete files whose mtime is older than now - MaxAgeDays*24h; 0 disables age-based deletion
	MaxFiles   int // hard cap on remaining files per partition prefix; 0 disables the cap
}

// Rotate lists all files matching pattern, deletes those older than
// MaxAgeDays, then enforces MaxFiles by deleting the oldest remaining
// files beyond the cap. Returns the paths deleted.
func Rotate(pattern string, opts RotateOptions) ([]string, error) {
	dir := filepath.Dir(pattern)
	base := filepath.Base(pattern)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		matched, err := filepath.Match(base, e.Name())
		if err != nil || !matched {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime) // newest first
	})

	var deleted []string
	now := time.Now()
	var kept []fileInfo
	if opts.MaxAgeDays > 0 {
		cutoff := now.Add(-time.Duration(opts.MaxAgeDays) * 24 * time.Hour)
		for _, f := range files {
			if f.modTime.Before(cutoff) {
				if err := os.Remove(f.path); err == nil {
					deleted = append(deleted, f.path)
				}
				continue
			}
			kept = append(kept, f)
		}
	} else {
		kept = files
	}

	if opts.MaxFiles > 0 && len(kept) > opts.MaxFiles {
		for _, f := range kept[opts.MaxFiles:] {
			if err := os.Remove(f.path); err == nil {
				deleted = append(deleted, f.path)
			}
		}
	}

	return deleted, nil
}
