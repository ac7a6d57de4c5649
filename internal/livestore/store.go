// Package livestore implements the shared in-memory snapshot of scanned
// repos, agent processes, and listening ports. It is the single mutable
// holder of that state: scanners replace whole maps through its setters,
// the HTTP and WebSocket surfaces read copies.
package livestore

import "sync"

// ChangeFunc is invoked with an immutable snapshot whenever a setter
// replaces its map. It runs while the store's lock is held, matching the
// session store's UpdateAndNotify contract in the teacher this package is
// adapted from: a callback must never call back into the Store, or it
// deadlocks against its own write lock.
type ChangeFunc func(snapshot any)

// Store holds the three scanner-populated maps plus the wrapper overlay.
type Store struct {
	mu sync.RWMutex

	repos map[string]*Repo // keyed by absolute path
	agents map[int]*Agent  // keyed by PID
	ports map[int]*Port    // keyed by port number

	wrapperStates map[int]*WrapperOverlay // keyed by PID

	onRepos  ChangeFunc
	onAgents ChangeFunc
	onPorts  ChangeFunc
}

// New creates an empty Store. Change callbacks may be nil.
func New(onRepos, onAgents, onPorts ChangeFunc) *Store {
	return &Store{
		repos:         make(map[string]*Repo),
		agents:        make(map[int]*Agent),
		ports:         make(map[int]*Port),
		wrapperStates: make(map[int]*WrapperOverlay),
		onRepos:       onRepos,
		onAgents:      onAgents,
		onPorts:       onPorts,
	}
}

// SetRepos atomically replaces the repo map and invokes the repo change
// callback with a copy of the new snapshot, still holding the lock.
func (s *Store) SetRepos(repos map[string]*Repo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos = cloneRepoMap(repos)
	if s.onRepos != nil {
		s.onRepos(cloneRepoMap(s.repos))
	}
}

// SetAgents atomically replaces the agent map and invokes the agent
// change callback with a copy (wrapper overlays merged in) of the new
// snapshot, still holding the lock.
func (s *Store) SetAgents(agents map[int]*Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = cloneAgentMap(agents)
	s.pruneWrapperStatesLocked()
	if s.onAgents != nil {
		s.onAgents(s.mergedAgentsLocked())
	}
}

// SetPorts atomically replaces the port map and invokes the port change
// callback with a copy of the new snapshot, still holding the lock.
func (s *Store) SetPorts(ports map[int]*Port) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ports = clonePortMap(ports)
	if s.onPorts != nil {
		s.onPorts(clonePortMap(s.ports))
	}
}

// GetRepos returns a copy of the current repo map.
func (s *Store) GetRepos() map[string]*Repo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRepoMap(s.repos)
}

// GetAgents returns a copy of the current agent map with wrapper overlays
// merged in.
func (s *Store) GetAgents() map[int]*Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mergedAgentsLocked()
}

// GetPorts returns a copy of the current port map.
func (s *Store) GetPorts() map[int]*Port {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePortMap(s.ports)
}

// SetWrapperState records a wrapper overlay for a PID launched by the
// daemon. It takes effect immediately and is merged into subsequent agent
// reads, but it does not itself trigger the agent change callback --
// overlays attach to whatever the scanner currently holds, not the other
// way around.
func (s *Store) SetWrapperState(pid int, overlay *WrapperOverlay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wrapperStates[pid] = overlay
}

// EvictWrapperState removes the overlay for pid explicitly, e.g. on
// process exit.
func (s *Store) EvictWrapperState(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wrapperStates, pid)
}

// WrapperStates returns a copy of all currently tracked overlays, keyed
// by PID, including overlays for PIDs no longer present in the agent map
// (an overlay is only dropped from here by an explicit evict, though it
// stops being merged into reads the moment its PID disappears from
// agents).
func (s *Store) WrapperStates() map[int]*WrapperOverlay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]*WrapperOverlay, len(s.wrapperStates))
	for pid, ov := range s.wrapperStates {
		cp := *ov
		out[pid] = &cp
	}
	return out
}

// pruneWrapperStatesLocked is a no-op by design: wrapper overlays for
// departed PIDs stay enumerable (via WrapperStates) until explicitly
// evicted, per the data model's "explicitly evictable and enumerable"
// requirement. Merging simply skips overlays whose PID is absent from
// agents.
func (s *Store) pruneWrapperStatesLocked() {}

func (s *Store) mergedAgentsLocked() map[int]*Agent {
	out := make(map[int]*Agent, len(s.agents))
	for pid, a := range s.agents {
		cp := *a
		if a.Heuristic != nil {
			h := *a.Heuristic
			cp.Heuristic = &h
		}
		if ov, ok := s.wrapperStates[pid]; ok {
			ovCopy := *ov
			cp.Wrapper = &ovCopy
		}
		out[pid] = &cp
	}
	return out
}

func cloneRepoMap(m map[string]*Repo) map[string]*Repo {
	out := make(map[string]*Repo, len(m))
	for k, v := range m {
		cp := *v
		if len(v.Flags) > 0 {
			cp.Flags = append([]RepoFlag(nil), v.Flags...)
		}
		out[k] = &cp
	}
	return out
}

func cloneAgentMap(m map[int]*Agent) map[int]*Agent {
	out := make(map[int]*Agent, len(m))
	for k, v := range m {
		cp := *v
		if v.Heuristic != nil {
			h := *v.Heuristic
			cp.Heuristic = &h
		}
		cp.Wrapper = nil // overlays are merged at read time, never stored here
		out[k] = &cp
	}
	return out
}

func clonePortMap(m map[int]*Port) map[int]*Port {
	out := make(map[int]*Port, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}
