// Package audit implements the dual-mode audit timeline (§4.J): a
// real-time logged event stream, and an on-demand "inferred" timeline
// that reconstructs historical events by walking every other durable log
// source in the daemon. No pack repository implements anything like this
// -- the logged side reuses internal/recordlog directly (a single
// non-partitioned file, unlike the date-partitioned session/tool-usage
// logs), and the inferred side is new, built on top of caller-supplied
// provider functions so this package never needs to import hookstore,
// jsonstore, or enrich directly and risk an import cycle.
package audit

import (
	"log"
	"os"
	"sort"
	"time"

	"github.com/agentwatch/agentwatch/internal/recordlog"
)

// Event is one audit-timeline entry, whether logged in real time or
// reconstructed after the fact.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	Action    string    `json:"action"`
	EntityID  string    `json:"entityId"`
	Details   any       `json:"details,omitempty"`
	Source    string    `json:"source"` // "logged" or "inferred"
}

// dedupKey implements §4.J's merge key: the timestamp truncated to second
// precision (its first 19 RFC3339 characters), plus category, action, and
// entity id.
func dedupKey(e Event) string {
	ts := e.Timestamp.UTC().Format(time.RFC3339)
	if len(ts) > 19 {
		ts = ts[:19]
	}
	return ts + ":" + e.Category + ":" + e.Action + ":" + e.EntityID
}

// Logger appends real-time audit events to a single master log file.
type Logger struct {
	path string
}

// NewLogger returns a Logger writing to path, migrating a legacy
// "audit.jsonl" file at legacyPath by renaming it to path on first
// access if path does not already exist.
func NewLogger(path, legacyPath string) *Logger {
	migrateLegacy(path, legacyPath)
	return &Logger{path: path}
}

func migrateLegacy(path, legacyPath string) {
	if legacyPath == "" || path == legacyPath {
		return
	}
	if _, err := os.Stat(path); err == nil {
		return // already migrated
	}
	if _, err := os.Stat(legacyPath); err != nil {
		return // no legacy file to migrate
	}
	if err := os.Rename(legacyPath, path); err != nil {
		log.Printf("[audit] migrating legacy audit log %s -> %s: %v", legacyPath, path, err)
	}
}

// Log appends one logged event. Persistence failures are logged and
// swallowed, per the error-handling design's hot-path policy.
func (l *Logger) Log(category, action, entityID string, details any) {
	e := Event{
		Timestamp: time.Now(),
		Category:  category,
		Action:    action,
		EntityID:  entityID,
		Details:   details,
		Source:    "logged",
	}
	if err := recordlog.Append(l.path, e); err != nil {
		log.Printf("[audit] appending event %s/%s: %v", category, action, err)
	}
}

// readLogged streams every logged event from the master log, applying no
// filtering -- callers filter in Timeline.
func (l *Logger) readLogged() ([]Event, error) {
	var events []Event
	err := recordlog.ReadAll(l.path, func() any { return &Event{} }, func(r any) error {
		e := *r.(*Event)
		e.Source = "logged"
		events = append(events, e)
		return nil
	})
	return events, err
}

// InferredProvider reconstructs historical events from one durable log
// source (hook sessions, commits, enrichment audit, conversation/agent
// metadata, process events, config mtimes, ...) for the given window.
// Each concrete source lives in whatever package owns that log; Timeline
// only knows it as a function.
type InferredProvider func(since, until time.Time) []Event

// Timeline merges the logged event stream with zero or more inferred
// providers into one paginated, deduplicated view.
type Timeline struct {
	logger    *Logger
	providers []InferredProvider
}

// NewTimeline creates a Timeline backed by logger and the given inferred
// providers.
func NewTimeline(logger *Logger, providers ...InferredProvider) *Timeline {
	return &Timeline{logger: logger, providers: providers}
}

// Options bounds and filters a GetCompleteTimeline query.
type Options struct {
	Limit           int
	Offset          int
	Category        string // empty means all categories
	Since           time.Time
	Until           time.Time
	IncludeInferred bool
}

// Result is the paginated, deduplicated timeline plus summary counts.
type Result struct {
	Events         []Event        `json:"events"`
	CategoryCounts map[string]int `json:"categoryCounts"`
	ActionCounts   map[string]int `json:"actionCounts"`
	LoggedCount    int            `json:"loggedCount"`
	InferredCount  int            `json:"inferredCount"`
}

// GetCompleteTimeline implements §4.J's four-step contract: load filtered
// logged and (if requested) inferred entries, merge via the dedup key
// with logged winning ties, sort newest-first, then paginate. Every
// logged entry is kept; an inferred entry is dropped when its key matches
// a logged entry or an inferred entry already merged. Counts are
// computed over the full merged, filtered set -- before pagination -- so
// a caller can page through results without the summary changing under
// them.
func (t *Timeline) GetCompleteTimeline(opts Options) (Result, error) {
	logged, err := t.logger.readLogged()
	if err != nil {
		return Result{}, err
	}
	logged = filterEvents(logged, opts)

	all := make([]Event, 0, len(logged))
	seen := make(map[string]struct{}, len(logged))
	for _, e := range logged {
		seen[dedupKey(e)] = struct{}{}
		all = append(all, e)
	}
	loggedCount := len(logged)

	inferredCount := 0
	if opts.IncludeInferred {
		for _, provider := range t.providers {
			for _, e := range provider(opts.Since, opts.Until) {
				e.Source = "inferred"
				if !matchesFilter(e, opts) {
					continue
				}
				key := dedupKey(e)
				if _, exists := seen[key]; exists {
					continue // logged wins on tie
				}
				seen[key] = struct{}{}
				all = append(all, e)
				inferredCount++
			}
		}
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})

	categoryCounts := make(map[string]int)
	actionCounts := make(map[string]int)
	for _, e := range all {
		categoryCounts[e.Category]++
		actionCounts[e.Action]++
	}

	paged := paginate(all, opts.Offset, opts.Limit)

	return Result{
		Events:         paged,
		CategoryCounts: categoryCounts,
		ActionCounts:   actionCounts,
		LoggedCount:    loggedCount,
		InferredCount:  inferredCount,
	}, nil
}

func filterEvents(events []Event, opts Options) []Event {
	out := events[:0:0]
	for _, e := range events {
		if matchesFilter(e, opts) {
			out = append(out, e)
		}
	}
	return out
}

func matchesFilter(e Event, opts Options) bool {
	if opts.Category != "" && e.Category != opts.Category {
		return false
	}
	if !opts.Since.IsZero() && e.Timestamp.Before(opts.Since) {
		return false
	}
	if !opts.Until.IsZero() && e.Timestamp.After(opts.Until) {
		return false
	}
	return true
}

func paginate(events []Event, offset, limit int) []Event {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(events) {
		return []Event{}
	}
	end := len(events)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return events[offset:end]
}
