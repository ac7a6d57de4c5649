package hookstore

import "testing"

func TestDeadProcessReclamation(t *testing.T) {
	s := newTestStore(t)
	s.SessionStart("s4", "/t", "/p", "default", SourceStartup)
	s.SetSessionPid("s4", 12345)

	closed := s.ReconcileDeadSessions(map[int]LiveAgent{})
	if len(closed) != 1 || closed[0] != "s4" {
		t.Fatalf("closed = %v, want [s4]", closed)
	}
	got := s.GetSession("s4")
	if got == nil || got.Active() {
		t.Fatalf("expected s4 to be ended, got %+v", got)
	}

	for _, sess := range s.GetAllSessions() {
		if sess.ID == "s4" && sess.Active() {
			t.Fatalf("s4 should not appear as active")
		}
	}
}

func TestGetToolStatsAfterPostToolUse(t *testing.T) {
	s := newTestStore(t)
	s.SessionStart("s1", "/t", "/p", "default", SourceStartup)
	s.RecordPreToolUse("s1", "t1", "Read", map[string]any{"file_path": "/p/a.ts"}, "/p")
	s.RecordPostToolUse("t1", map[string]any{"content": "hi"}, "")

	stats := s.GetToolStats()
	read, ok := stats["Read"]
	if !ok {
		t.Fatal("expected Read tool stat")
	}
	if read.TotalCalls != 1 || read.SuccessCount != 1 || read.FailureCount != 0 {
		t.Fatalf("unexpected Read stat: %+v", read)
	}
}
