package livestore

import (
	"testing"
	"time"
)

func mustCompleteWithin(t *testing.T, timeout time.Duration, desc string, f func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		f()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Errorf("DEADLOCK: %s did not complete within %v", desc, timeout)
	}
}

const deadlockTimeout = 2 * time.Second

func TestSetReposCallsCallbackWithCopy(t *testing.T) {
	var gotLen int
	s := New(func(snapshot any) {
		gotLen = len(snapshot.(map[string]*Repo))
	}, nil, nil)

	s.SetRepos(map[string]*Repo{
		"/a": {Path: "/a", Branch: "main"},
		"/b": {Path: "/b", Branch: "dev"},
	})

	if gotLen != 2 {
		t.Errorf("callback saw %d repos, want 2", gotLen)
	}

	got := s.GetRepos()
	if len(got) != 2 || got["/a"].Branch != "main" {
		t.Errorf("got %+v", got)
	}
}

func TestSetReposReturnsCopy(t *testing.T) {
	s := New(nil, nil, nil)
	in := map[string]*Repo{"/a": {Path: "/a", Branch: "main"}}
	s.SetRepos(in)

	in["/a"].Branch = "mutated"

	got := s.GetRepos()
	if got["/a"].Branch != "main" {
		t.Error("SetRepos did not copy input; external mutation leaked into store")
	}

	got["/a"].Branch = "also-mutated"
	got2 := s.GetRepos()
	if got2["/a"].Branch != "main" {
		t.Error("GetRepos did not return a copy; mutation leaked into store")
	}
}

func TestSetAgentsMergesWrapperOverlay(t *testing.T) {
	s := New(nil, nil, nil)
	s.SetAgents(map[int]*Agent{
		100: {PID: 100, Label: "claude"},
	})
	s.SetWrapperState(100, &WrapperOverlay{SessionID: "s1"})

	agents := s.GetAgents()
	if agents[100].Wrapper == nil || agents[100].Wrapper.SessionID != "s1" {
		t.Errorf("expected wrapper overlay merged in, got %+v", agents[100])
	}
}

func TestWrapperOverlayDroppedWhenPIDDisappears(t *testing.T) {
	s := New(nil, nil, nil)
	s.SetAgents(map[int]*Agent{100: {PID: 100}})
	s.SetWrapperState(100, &WrapperOverlay{SessionID: "s1"})

	s.SetAgents(map[int]*Agent{}) // PID 100 gone

	agents := s.GetAgents()
	if len(agents) != 0 {
		t.Errorf("expected no agents, got %d", len(agents))
	}

	// Overlay itself stays enumerable until explicitly evicted.
	states := s.WrapperStates()
	if _, ok := states[100]; !ok {
		t.Error("expected wrapper overlay for departed PID to remain enumerable")
	}

	s.EvictWrapperState(100)
	states = s.WrapperStates()
	if _, ok := states[100]; ok {
		t.Error("expected wrapper overlay to be gone after explicit eviction")
	}
}

func TestSetPortsCallsCallback(t *testing.T) {
	called := false
	s := New(nil, nil, func(snapshot any) {
		called = true
		ports := snapshot.(map[int]*Port)
		if len(ports) != 1 {
			t.Errorf("got %d ports, want 1", len(ports))
		}
	})
	s.SetPorts(map[int]*Port{3000: {Port: 3000, PID: 100}})
	if !called {
		t.Error("expected port change callback to run")
	}
}

func TestCallbackMustNotReenterDeadlocks(t *testing.T) {
	// Documents the contract: callbacks run while the write lock is held,
	// so calling back into the store from within one deadlocks.
	s := New(func(snapshot any) {
		// Intentionally does nothing — calling s.GetRepos() here would
		// deadlock against the lock SetRepos is still holding.
	}, nil, nil)

	s.SetRepos(map[string]*Repo{"/a": {Path: "/a"}})

	mustCompleteWithin(t, deadlockTimeout, "GetRepos after SetRepos", func() {
		s.GetRepos()
	})
}

func TestAgentCloneDoesNotShareHeuristic(t *testing.T) {
	s := New(nil, nil, nil)
	s.SetAgents(map[int]*Agent{
		1: {PID: 1, Heuristic: &Heuristic{State: StateActive, RecentCPU: 50}},
	})

	got := s.GetAgents()
	got[1].Heuristic.RecentCPU = 999

	got2 := s.GetAgents()
	if got2[1].Heuristic.RecentCPU != 50 {
		t.Error("GetAgents did not deep-copy Heuristic; mutation leaked into store")
	}
}

func TestRepoDirtyInvariant(t *testing.T) {
	clean := &Repo{}
	if clean.Dirty() {
		t.Error("empty repo should not be dirty")
	}
	withChanges := &Repo{Staged: 1}
	if !withChanges.Dirty() {
		t.Error("repo with staged files should be dirty")
	}
	withFlag := &Repo{Flags: []RepoFlag{FlagRebase}}
	if !withFlag.Dirty() {
		t.Error("repo with a special-state flag should be dirty")
	}
}
