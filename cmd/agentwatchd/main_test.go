package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentwatch/agentwatch/internal/hookstore"
)

func TestRunCleanupLoopRunsPeriodically(t *testing.T) {
	dir := t.TempDir()
	hooks := hookstore.New(hookstore.Config{
		SessionsPattern:   filepath.Join(dir, "sessions_*.jsonl"),
		ToolUsagesPattern: filepath.Join(dir, "tool_usages_*.jsonl"),
		CommitsPattern:    filepath.Join(dir, "commits_*.jsonl"),
		StatsPath:         filepath.Join(dir, "stats.json"),
	}, nil, nil)

	sess := hooks.SessionStart("sess-1", "", "/repo", "default", hookstore.SourceStartup)
	for i := 0; i < 5; i++ {
		id := "t" + string(rune('0'+i))
		hooks.RecordPreToolUse(sess.ID, id, "Read", map[string]any{}, "/repo")
		hooks.RecordPostToolUse(id, map[string]any{}, "")
	}
	if got := len(hooks.GetRecentToolUsages()); got != 5 {
		t.Fatalf("expected 5 recorded tool usages before cleanup, got %d", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		// A generous session-retention window (so the still-active session
		// is never evicted) paired with a tight tool-usage cap isolates the
		// assertion to "the loop actually invoked CleanupOldData" without
		// needing to fabricate a stale session timestamp.
		runCleanupLoop(ctx, hooks, 30, 2, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if got := len(hooks.GetRecentToolUsages()); got > 2 {
		t.Errorf("expected the cleanup loop to trim recent tool usages to <= 2, got %d", got)
	}
	if got := hooks.GetSession("sess-1"); got == nil {
		t.Error("expected the still-active session to survive cleanup")
	}
}
