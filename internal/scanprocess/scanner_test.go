package scanprocess

import (
	"context"
	"os"
	"testing"

	"github.com/agentwatch/agentwatch/internal/livestore"
)

func TestScannerLifecycleIdempotentStart(t *testing.T) {
	store := livestore.New(nil, nil, nil)
	s := New(DefaultConfig(), store, nil)
	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()
}

func TestScannerSetPausedDoesNotPanic(t *testing.T) {
	store := livestore.New(nil, nil, nil)
	s := New(DefaultConfig(), store, nil)
	s.SetPaused(true)
	s.SetPaused(false)
}

func TestOnTickFiresEveryTickEvenWithNoEndedPIDs(t *testing.T) {
	store := livestore.New(nil, nil, nil)
	s := New(DefaultConfig(), store, nil)

	calls := 0
	s.SetOnTick(func(agents map[int]*livestore.Agent) {
		calls++
	})

	// Two ticks with nothing ending between them (prevPIDs starts empty,
	// so there is nothing to end) must still both invoke onTick -- it is
	// not gated on DeadPIDNotifier's ended-PID-only firing.
	s.tick()
	s.tick()

	if calls != 2 {
		t.Errorf("onTick called %d times, want 2 (must fire unconditionally every tick)", calls)
	}
}

func TestFindRepoRootFindsAncestor(t *testing.T) {
	dir := t.TempDir()
	sub := dir + "/a/b/c"
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dir+"/.git", 0o755); err != nil {
		t.Fatal(err)
	}

	got := findRepoRoot(sub, 10)
	if got != dir {
		t.Errorf("got %q, want %q", got, dir)
	}
}

func TestFindRepoRootNoMatch(t *testing.T) {
	dir := t.TempDir()
	got := findRepoRoot(dir, 10)
	if got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
