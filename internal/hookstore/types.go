// Package hookstore is the authoritative, persistent record of session
// lifecycle and tool invocations: the HTTP webhook surface's backing
// store. It replaces the teacher's file-polling session model
// (internal/session) with one driven by PreToolUse/PostToolUse/
// SessionStart/SessionEnd/Stop payloads pushed over HTTP, while keeping
// that package's state-machine shape and in-memory copy-on-read idiom.
package hookstore

import "time"

// SessionSource names how a session came to exist.
type SessionSource string

const (
	SourceStartup SessionSource = "startup"
	SourceResume  SessionSource = "resume"
	SourceCompact SessionSource = "compact"
)

// Session is the persistent record of one agent session's lifecycle.
type Session struct {
	ID             string        `json:"id"`
	TranscriptPath string        `json:"transcriptPath"`
	Cwd            string        `json:"cwd"`
	PermissionMode string        `json:"permissionMode"`
	StartTime      time.Time     `json:"startTime"`
	EndTime        *time.Time    `json:"endTime,omitempty"`
	Source         SessionSource `json:"source"`

	ToolCallCount int            `json:"toolCallCount"`
	Awaiting      bool           `json:"awaiting"`
	ToolsUsed     map[string]int `json:"toolsUsed"`
	Commits       []string       `json:"commits,omitempty"`

	InputTokens      int     `json:"inputTokens"`
	OutputTokens     int     `json:"outputTokens"`
	EstimatedCostUSD float64 `json:"estimatedCostUsd"`

	AutoContinueAttempts int `json:"autoContinueAttempts"`

	BoundPID int `json:"boundPid,omitempty"`

	LastActivity time.Time `json:"lastActivity"`
}

// Active reports whether the session is still open, per the data model's
// invariant: a session with EndTime = nil is active.
func (s *Session) Active() bool {
	return s.EndTime == nil
}

// Clone returns a deep copy so callers can mutate it without affecting
// the store's internal state.
func (s *Session) Clone() *Session {
	c := *s
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	if len(s.ToolsUsed) > 0 {
		c.ToolsUsed = make(map[string]int, len(s.ToolsUsed))
		for k, v := range s.ToolsUsed {
			c.ToolsUsed[k] = v
		}
	}
	if len(s.Commits) > 0 {
		c.Commits = append([]string(nil), s.Commits...)
	}
	return &c
}

// ToolUsage is a single tool invocation, pending until its matching
// PostToolUse arrives.
type ToolUsage struct {
	ToolUseID string    `json:"toolUseId"`
	ToolName  string    `json:"toolName"`
	ToolInput any       `json:"toolInput"`
	SessionID string    `json:"sessionId"`
	Cwd       string    `json:"cwd"`
	Timestamp time.Time `json:"timestamp"`

	// Populated on PostToolUse.
	ToolResponse any    `json:"toolResponse,omitempty"`
	Error        string `json:"error,omitempty"`
	DurationMS   int64  `json:"durationMs,omitempty"`
	Completed    bool   `json:"completed"`
}

// Success reports whether a completed usage succeeded, per the data
// model's invariant: success iff error is empty.
func (u *ToolUsage) Success() bool {
	return u.Completed && u.Error == ""
}

// SecurityBlockToolUseID synthesises the tool-use id for a security-block
// record, per the data model: "blocked-<ts>-<name>".
func SecurityBlockToolUseID(ts time.Time, toolName string) string {
	return "blocked-" + ts.UTC().Format("20060102T150405.000") + "-" + toolName
}

// ToolStat is a per-tool rolling aggregate.
type ToolStat struct {
	ToolName      string    `json:"toolName"`
	TotalCalls    int       `json:"totalCalls"`
	SuccessCount  int       `json:"successCount"`
	FailureCount  int       `json:"failureCount"`
	AvgDurationMS float64   `json:"avgDurationMs"`
	LastUsed      time.Time `json:"lastUsed"`
}

// observe folds one completed usage into the rolling average, per the
// data model's rule: avg' = avg + (duration - avg) / n where n is the
// total call count after the increment.
func (t *ToolStat) observe(success bool, durationMS int64, when time.Time) {
	t.TotalCalls++
	if success {
		t.SuccessCount++
	} else {
		t.FailureCount++
	}
	n := float64(t.TotalCalls)
	t.AvgDurationMS += (float64(durationMS) - t.AvgDurationMS) / n
	t.LastUsed = when
}

// DailyStat is a per-ISO-date aggregate, fully derivable from the
// tool-usage and session logs.
type DailyStat struct {
	Date          string         `json:"date"`
	SessionCount  int            `json:"sessionCount"`
	ToolCallCount int            `json:"toolCallCount"`
	PerTool       map[string]int `json:"perTool"`
	ActiveMinutes int            `json:"activeMinutes"`
}

// Commit is a git commit attributed to a session.
type Commit struct {
	Hash      string    `json:"hash"`
	SessionID string    `json:"sessionId"`
	When      time.Time `json:"when"`
	Message   string    `json:"message"`
	RepoPath  string    `json:"repoPath"`
}

// LiveAgent is the shape dead-session reconciliation needs from the
// process scanner per tick: a PID's cwd and matched label.
type LiveAgent struct {
	PID   int
	Cwd   string
	Label string
}
