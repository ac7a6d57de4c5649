// Package scanprocess implements the periodic agent-process scanner:
// enumerate OS processes, match them against configured patterns, resolve
// cwd and repo root, classify activity heuristically, and commit the
// result to the live data store. Process enumeration is done with
// gopsutil, which the teacher repository declares as a dependency but
// never actually imports anywhere in its tree.
package scanprocess

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/agentwatch/agentwatch/internal/livestore"
)

// CwdResolutionMode controls how aggressively the scanner tries to
// resolve a process's working directory.
type CwdResolutionMode string

const (
	CwdOn         CwdResolutionMode = "on"
	CwdOff        CwdResolutionMode = "off"
	CwdBestEffort CwdResolutionMode = "best_effort"
)

// Config configures one Scanner.
type Config struct {
	RefreshPeriod    time.Duration
	Matchers         []Matcher
	ActiveCPUPercent float64
	StalledSeconds   int
	CwdResolution    CwdResolutionMode
	MaxRepoRootDepth int
}

// DefaultConfig returns sane defaults matching the rationale in
// internal/monitor/process.go (threshold tuned for interactive CLI work).
func DefaultConfig() Config {
	return Config{
		RefreshPeriod:    3 * time.Second,
		Matchers:         DefaultMatchers(),
		ActiveCPUPercent: 5.0,
		StalledSeconds:   120,
		CwdResolution:    CwdBestEffort,
		MaxRepoRootDepth: 40,
	}
}

// DeadPIDNotifier is called with the set of PIDs that disappeared between
// the previous tick and this one, so the hook store can reconcile
// sessions bound to those processes (§4.H dead-session cleanup).
type DeadPIDNotifier func(endedPIDs []int)

// TickNotifier is called once per scan tick with every currently-live
// agent, regardless of whether any PID started or ended this tick. §4.H's
// staleness-based reconciliation and session↔process PID binding both need
// to run on every tick -- a session can go stale, or a freshly-started
// session can acquire a unique cwd match, without any process exiting --
// so this fires unconditionally, unlike DeadPIDNotifier which only fires
// when the live PID set actually shrank.
type TickNotifier func(agents map[int]*livestore.Agent)

// Scanner periodically enumerates agent processes and commits them to a
// livestore.Store.
type Scanner struct {
	cfg    Config
	store  *livestore.Store
	onDead DeadPIDNotifier
	onTick TickNotifier

	heur *heuristics

	mu       sync.Mutex
	running  bool
	paused   bool
	cancel   context.CancelFunc
	prevPIDs map[int]struct{}
}

// New creates a Scanner. matchers must already be compiled (see Compile).
func New(cfg Config, store *livestore.Store, onDead DeadPIDNotifier) *Scanner {
	return &Scanner{
		cfg:      cfg,
		store:    store,
		onDead:   onDead,
		heur:     newHeuristics(cfg.ActiveCPUPercent, cfg.StalledSeconds),
		prevPIDs: make(map[int]struct{}),
	}
}

// Start schedules periodic ticks. It is idempotent: calling Start on an
// already-running Scanner is a no-op.
func (s *Scanner) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	tickCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	go s.loop(tickCtx)
}

// Stop cancels scheduled ticks.
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

// SetPaused suppresses ticks without dropping accumulated CPU history, so
// a resumed scanner doesn't reclassify every process as freshly active.
func (s *Scanner) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// SetOnTick registers fn to run once per scan tick with the full live
// agent set, independent of DeadPIDNotifier's ended-PID-only firing.
func (s *Scanner) SetOnTick(fn TickNotifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTick = fn
}

func (s *Scanner) loop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RefreshPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			paused := s.paused
			s.mu.Unlock()
			if paused {
				continue
			}
			s.tick()
		}
	}
}

// tick runs one scan cycle. It is unexported; the package's tests call it
// directly for synchronous control over scan timing.
func (s *Scanner) tick() {
	procs, err := process.Processes()
	if err != nil {
		log.Printf("[scanprocess] enumerating processes: %v", err)
		return
	}

	now := time.Now()
	agents := make(map[int]*livestore.Agent)
	seenPIDs := make(map[int]struct{})

	for _, p := range procs {
		pid := int(p.Pid)
		exe, err := p.Exe()
		if err != nil {
			exe = ""
		}
		cmdSlice, err := p.CmdlineSlice()
		if err != nil || len(cmdSlice) == 0 {
			continue
		}
		cmdline := joinCmdline(cmdSlice)

		label, ok := Match(s.cfg.Matchers, exe, cmdline)
		if !ok {
			continue
		}

		agent := &livestore.Agent{
			PID:     pid,
			Label:   label,
			CmdLine: cmdline,
			Exe:     exe,
		}

		if cpuPct, err := p.CPUPercent(); err == nil {
			agent.CPUPercent = cpuPct
		}
		if memInfo, err := p.MemoryInfo(); err == nil && memInfo != nil {
			agent.ResidentKB = memInfo.RSS / 1024
		}
		if threads, err := p.NumThreads(); err == nil {
			agent.Threads = int(threads)
		}
		if tty, err := p.Terminal(); err == nil {
			agent.TTY = tty
		}
		if createMs, err := p.CreateTime(); err == nil {
			agent.StartedAt = time.UnixMilli(createMs)
		}

		if s.cfg.CwdResolution != CwdOff {
			if cwd, err := p.Cwd(); err == nil {
				agent.Cwd = cwd
				agent.RepoRoot = findRepoRoot(cwd, s.cfg.MaxRepoRootDepth)
			}
		}

		agent.Heuristic = s.heur.observe(pid, agent.CPUPercent, now)

		agents[pid] = agent
		seenPIDs[pid] = struct{}{}
	}

	s.heur.prune(seenPIDs)

	s.mu.Lock()
	prev := s.prevPIDs
	s.prevPIDs = seenPIDs
	s.mu.Unlock()

	var ended []int
	for pid := range prev {
		if _, ok := seenPIDs[pid]; !ok {
			ended = append(ended, pid)
		}
	}

	s.store.SetAgents(agents)

	for _, pid := range ended {
		s.store.EvictWrapperState(pid)
	}
	if len(ended) > 0 && s.onDead != nil {
		s.onDead(ended)
	}

	s.mu.Lock()
	onTick := s.onTick
	s.mu.Unlock()
	if onTick != nil {
		onTick(agents)
	}
}

func joinCmdline(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += " " + p
	}
	return out
}

// findRepoRoot walks upward from dir looking for a directory containing a
// .git entry, bounded to maxDepth ancestors. Returns "" if none is found.
func findRepoRoot(dir string, maxDepth int) string {
	if dir == "" {
		return ""
	}
	cur := dir
	for i := 0; i < maxDepth; i++ {
		if _, err := os.Stat(filepath.Join(cur, ".git")); err == nil {
			return cur
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return ""
}
