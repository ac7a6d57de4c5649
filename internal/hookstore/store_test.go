package hookstore

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		SessionsPattern:   filepath.Join(dir, "sessions_*.jsonl"),
		ToolUsagesPattern: filepath.Join(dir, "tool_usages_*.jsonl"),
		CommitsPattern:    filepath.Join(dir, "commits_*.jsonl"),
		StatsPath:         filepath.Join(dir, "stats.json"),
	}
	return New(cfg, nil, nil)
}

func TestSessionStartAndGet(t *testing.T) {
	s := newTestStore(t)
	s.SessionStart("sess-1", "/tmp/transcript.jsonl", "/repo", "default", SourceStartup)

	got := s.GetSession("sess-1")
	if got == nil {
		t.Fatal("expected session to exist")
	}
	if !got.Active() {
		t.Error("expected new session to be active")
	}
}

func TestSessionStartIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	s.SessionStart("sess-1", "/tmp/a.jsonl", "/repo", "default", SourceStartup)

	s.RecordPreToolUse("sess-1", "t1", "Read", map[string]any{"file_path": "/repo/a.go"}, "/repo")
	s.RecordPostToolUse("t1", map[string]any{"content": "ok"}, "")
	s.UpdateSessionTokens("sess-1", 100, 50, 0.01)

	// A second SessionStart for the same id (e.g. a replayed hook
	// delivery) must not reset accumulated counters or double-count the
	// daily session total.
	s.SessionStart("sess-1", "/tmp/b.jsonl", "/repo2", "plan", SourceResume)

	got := s.GetSession("sess-1")
	if got == nil {
		t.Fatal("expected session to still exist")
	}
	if got.ToolCallCount != 1 {
		t.Errorf("tool call count = %d, want 1 (must survive the second SessionStart)", got.ToolCallCount)
	}
	if got.InputTokens != 100 || got.OutputTokens != 50 {
		t.Errorf("token totals reset by second SessionStart: got input=%d output=%d", got.InputTokens, got.OutputTokens)
	}
	if got.TranscriptPath != "/tmp/b.jsonl" || got.Cwd != "/repo2" || got.PermissionMode != "plan" || got.Source != SourceResume {
		t.Errorf("expected metadata fields to be overwritten by the second call, got %+v", got)
	}

	today := time.Now().Format("2006-01-02")
	daily := s.GetDailyStats()[today]
	if daily == nil || daily.SessionCount != 1 {
		t.Errorf("expected exactly one daily session count for a single logical session, got %+v", daily)
	}
}

func TestSessionEndMarksInactive(t *testing.T) {
	s := newTestStore(t)
	s.SessionStart("sess-1", "", "/repo", "default", SourceStartup)
	s.SessionEnd("sess-1")

	got := s.GetSession("sess-1")
	if got.Active() {
		t.Error("expected session to be inactive after SessionEnd")
	}
}

func TestSessionEndUnknownReturnsNil(t *testing.T) {
	s := newTestStore(t)
	if got := s.SessionEnd("nope"); got != nil {
		t.Error("expected nil for unknown session")
	}
}

func TestPreThenPostToolUseMatches(t *testing.T) {
	s := newTestStore(t)
	s.SessionStart("sess-1", "", "/repo", "default", SourceStartup)

	s.RecordPreToolUse("sess-1", "tu-1", "Read", map[string]string{"path": "a.go"}, "/repo")
	got := s.RecordPostToolUse("tu-1", "file contents", "")
	if got == nil {
		t.Fatal("expected matched post-event")
	}
	if !got.Success() {
		t.Error("expected success with no error")
	}
	if !got.Completed {
		t.Error("expected completed flag set")
	}

	sess := s.GetSession("sess-1")
	if sess.ToolCallCount != 1 {
		t.Errorf("got tool call count %d, want 1", sess.ToolCallCount)
	}
	if sess.ToolsUsed["Read"] != 1 {
		t.Errorf("got ToolsUsed[Read]=%d, want 1", sess.ToolsUsed["Read"])
	}
}

func TestPostToolUseWithoutPreIsDropped(t *testing.T) {
	s := newTestStore(t)
	got := s.RecordPostToolUse("never-seen", "x", "")
	if got != nil {
		t.Error("expected nil for unmatched PostToolUse")
	}
}

func TestRecordSecurityBlock(t *testing.T) {
	s := newTestStore(t)
	s.SessionStart("sess-1", "", "/repo", "default", SourceStartup)

	usage := s.RecordSecurityBlock("sess-1", "Bash", "rm -rf /", "no-destructive-commands", "matched deny rule")
	if usage.Success() {
		t.Error("expected a security block to be unsuccessful")
	}
	if usage.Error == "" {
		t.Error("expected an error message on the security block")
	}
}

func TestUpdateSessionTokensAccumulates(t *testing.T) {
	s := newTestStore(t)
	s.SessionStart("sess-1", "", "/repo", "default", SourceStartup)

	s.UpdateSessionTokens("sess-1", 100, 50, 0.01)
	s.UpdateSessionTokens("sess-1", 200, 25, 0.02)

	got := s.GetSession("sess-1")
	if got.InputTokens != 300 || got.OutputTokens != 75 {
		t.Errorf("got inputTokens=%d outputTokens=%d", got.InputTokens, got.OutputTokens)
	}
	if got.EstimatedCostUSD < 0.029 || got.EstimatedCostUSD > 0.031 {
		t.Errorf("got cost %v, want ~0.03", got.EstimatedCostUSD)
	}
}

func TestAutoContinueAttempts(t *testing.T) {
	s := newTestStore(t)
	s.SessionStart("sess-1", "", "/repo", "default", SourceStartup)

	s.IncrementAutoContinueAttempts("sess-1")
	s.IncrementAutoContinueAttempts("sess-1")
	if got := s.GetSession("sess-1").AutoContinueAttempts; got != 2 {
		t.Errorf("got %d, want 2", got)
	}

	s.ResetAutoContinueAttempts("sess-1")
	if got := s.GetSession("sess-1").AutoContinueAttempts; got != 0 {
		t.Errorf("got %d, want 0 after reset", got)
	}
}

func TestRecordCommitDeduplicates(t *testing.T) {
	s := newTestStore(t)
	s.SessionStart("sess-1", "", "/repo", "default", SourceStartup)

	s.RecordCommit("sess-1", "abc123", "Fix bug", "/repo")
	s.RecordCommit("sess-1", "abc123", "Fix bug", "/repo")

	got := s.GetSession("sess-1")
	if len(got.Commits) != 1 {
		t.Errorf("got %d commits, want 1 (deduplicated)", len(got.Commits))
	}
}

func TestReconcileDeadSessionsClosesUnboundPIDLess(t *testing.T) {
	s := newTestStore(t)
	s.SessionStart("sess-1", "", "/repo", "default", SourceStartup)

	sess := s.sessions["sess-1"]
	sess.LastActivity = time.Now().Add(-2 * time.Hour) // exceeds hard stale timeout

	s.ReconcileDeadSessions(map[int]LiveAgent{})

	got := s.GetSession("sess-1")
	if got.Active() {
		t.Error("expected session past hard staleness timeout to be closed")
	}
}

func TestReconcileDeadSessionsKeepsOpenWithMatchingCwd(t *testing.T) {
	s := newTestStore(t)
	s.SessionStart("sess-1", "", "/repo", "default", SourceStartup)

	sess := s.sessions["sess-1"]
	sess.LastActivity = time.Now().Add(-10 * time.Minute) // past soft threshold only

	s.ReconcileDeadSessions(map[int]LiveAgent{100: {PID: 100, Cwd: "/repo", Label: "claude"}})

	got := s.GetSession("sess-1")
	if !got.Active() {
		t.Error("expected session to stay open when a live agent matches its cwd")
	}
}

func TestReconcileDeadSessionsClosesBoundPIDGone(t *testing.T) {
	s := newTestStore(t)
	s.SessionStart("sess-1", "", "/repo", "default", SourceStartup)
	s.sessions["sess-1"].BoundPID = 999

	s.ReconcileDeadSessions(map[int]LiveAgent{}) // 999 not live

	got := s.GetSession("sess-1")
	if got.Active() {
		t.Error("expected session bound to a dead PID to be closed")
	}
}

func TestMatchSessionsToAgentsBindsUniqueCwd(t *testing.T) {
	s := newTestStore(t)
	s.SessionStart("sess-1", "", "/repo", "default", SourceStartup)

	s.MatchSessionsToAgents(map[int]LiveAgent{100: {PID: 100, Cwd: "/repo", Label: "claude"}})

	if s.sessions["sess-1"].BoundPID != 100 {
		t.Errorf("got boundPID %d, want 100", s.sessions["sess-1"].BoundPID)
	}
}

func TestMatchSessionsToAgentsSkipsAmbiguousCwd(t *testing.T) {
	s := newTestStore(t)
	s.SessionStart("sess-1", "", "/repo", "default", SourceStartup)

	s.MatchSessionsToAgents(map[int]LiveAgent{
		100: {PID: 100, Cwd: "/repo", Label: "claude"},
		200: {PID: 200, Cwd: "/repo", Label: "codex"},
	})

	if s.sessions["sess-1"].BoundPID != 0 {
		t.Error("expected no binding for an ambiguous cwd match")
	}
}

func TestToolStatRunningAverage(t *testing.T) {
	s := newTestStore(t)
	s.SessionStart("sess-1", "", "/repo", "default", SourceStartup)

	s.RecordPreToolUse("sess-1", "tu-1", "Read", nil, "/repo")
	s.pending["tu-1"].Timestamp = time.Now().Add(-100 * time.Millisecond)
	s.RecordPostToolUse("tu-1", "ok", "")

	s.RecordPreToolUse("sess-1", "tu-2", "Read", nil, "/repo")
	s.pending["tu-2"].Timestamp = time.Now().Add(-200 * time.Millisecond)
	s.RecordPostToolUse("tu-2", "ok", "")

	stat := s.toolStats["Read"]
	if stat.TotalCalls != 2 {
		t.Fatalf("got %d calls, want 2", stat.TotalCalls)
	}
	if stat.AvgDurationMS <= 0 {
		t.Error("expected a positive running average duration")
	}
}

func TestLoadRecentReconstructsState(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		SessionsPattern:   filepath.Join(dir, "sessions_*.jsonl"),
		ToolUsagesPattern: filepath.Join(dir, "tool_usages_*.jsonl"),
		CommitsPattern:    filepath.Join(dir, "commits_*.jsonl"),
		StatsPath:         filepath.Join(dir, "stats.json"),
	}

	first := New(cfg, nil, nil)
	first.SessionStart("sess-1", "", "/repo", "default", SourceStartup)

	second := New(cfg, nil, nil)
	if err := second.LoadRecent(); err != nil {
		t.Fatal(err)
	}
	if got := second.GetSession("sess-1"); got == nil {
		t.Error("expected session to be reconstructed from the partitioned log")
	}
}

func TestLoadRecentFinalOccurrenceWins(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		SessionsPattern:   filepath.Join(dir, "sessions_*.jsonl"),
		ToolUsagesPattern: filepath.Join(dir, "tool_usages_*.jsonl"),
		CommitsPattern:    filepath.Join(dir, "commits_*.jsonl"),
		StatsPath:         filepath.Join(dir, "stats.json"),
	}

	first := New(cfg, nil, nil)
	first.SessionStart("sess-1", "", "/repo", "default", SourceStartup)
	first.SessionEnd("sess-1") // appends a second, later line for the same id

	second := New(cfg, nil, nil)
	if err := second.LoadRecent(); err != nil {
		t.Fatal(err)
	}
	got := second.GetSession("sess-1")
	if got == nil {
		t.Fatal("expected session to be reconstructed from the partitioned log")
	}
	if got.Active() {
		t.Error("expected the last-written record (SessionEnd) to win over the earlier SessionStart record")
	}
}
