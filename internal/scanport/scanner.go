// Package scanport implements the periodic listening-socket scanner:
// enumerate TCP listeners via gopsutil (which, like the process scanner's
// dependency, the teacher repository declares but never imports), and
// correlate each listener to an agent either directly or through its
// parent process.
package scanport

import (
	"context"
	"log"
	"sync"
	"time"

	gonet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/agentwatch/agentwatch/internal/livestore"
)

// Config configures one Scanner.
type Config struct {
	RefreshPeriod time.Duration
	LowPortGuard  int // ports at or below this are never reported (e.g. 1024)
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		RefreshPeriod: 3 * time.Second,
		LowPortGuard:  1024,
	}
}

type firstSeenKey struct {
	port int
	pid  int
}

// Scanner runs the periodic listening-port scan.
type Scanner struct {
	cfg   Config
	store *livestore.Store

	mu        sync.Mutex
	running   bool
	paused    bool
	cancel    context.CancelFunc
	firstSeen map[firstSeenKey]time.Time
}

// New creates a Scanner.
func New(cfg Config, store *livestore.Store) *Scanner {
	return &Scanner{
		cfg:       cfg,
		store:     store,
		firstSeen: make(map[firstSeenKey]time.Time),
	}
}

// Start schedules periodic ticks. Idempotent.
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

// SetPaused suppresses ticks without dropping the first-seen cache.
func (s *Scanner) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
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

func (s *Scanner) tick() {
	conns, err := gonet.Connections("tcp")
	if err != nil {
		log.Printf("[scanport] enumerating connections: %v", err)
		return
	}

	agents := s.store.GetAgents()
	parentOf := parentPIDs(agents)

	now := time.Now()
	ports := make(map[int]*livestore.Port)
	seen := make(map[firstSeenKey]struct{})

	for _, c := range conns {
		if c.Status != "LISTEN" {
			continue
		}
		port := int(c.Laddr.Port)
		if port == 0 || port <= s.cfg.LowPortGuard {
			continue
		}
		pid := int(c.Pid)

		key := firstSeenKey{port: port, pid: pid}
		seen[key] = struct{}{}
		s.mu.Lock()
		firstSeen, ok := s.firstSeen[key]
		if !ok {
			firstSeen = now
			s.firstSeen[key] = now
		}
		s.mu.Unlock()

		p := &livestore.Port{
			Port:        port,
			PID:         pid,
			BindAddress: c.Laddr.IP,
			Protocol:    protocolOf(c.Laddr.IP),
			FirstSeen:   firstSeen,
		}

		if agent, ok := agents[pid]; ok {
			p.AgentID = pid
			p.AgentLabel = agent.Label
		} else if parentPID, ok := parentOf[pid]; ok {
			if agent, ok := agents[parentPID]; ok {
				p.AgentID = parentPID
				p.AgentLabel = agent.Label
			}
		}

		if name, cmdline, cwd, ok := processMeta(pid); ok {
			p.ProcessName = name
			p.CmdLine = cmdline
			p.Cwd = cwd
		}

		ports[port] = p
	}

	s.mu.Lock()
	for key := range s.firstSeen {
		if _, ok := seen[key]; !ok {
			delete(s.firstSeen, key)
		}
	}
	s.mu.Unlock()

	s.store.SetPorts(ports)
}

// parentPIDs builds pid -> parent-pid for every pid that has a parent in
// the agent map, so a port owned by a dev-server child of an agent can
// still be attributed to the agent.
func parentPIDs(agents map[int]*livestore.Agent) map[int]int {
	out := make(map[int]int)
	if len(agents) == 0 {
		return out
	}
	procs, err := process.Processes()
	if err != nil {
		return out
	}
	for _, p := range procs {
		ppid, err := p.Ppid()
		if err != nil {
			continue
		}
		if _, isAgent := agents[int(ppid)]; isAgent {
			out[int(p.Pid)] = int(ppid)
		}
	}
	return out
}

// processMeta looks up a process's name, command line, and cwd for a
// listening-socket owner. Returns ok=false if the process can no longer
// be inspected (it may have exited between enumeration and lookup).
func processMeta(pid int) (name, cmdline, cwd string, ok bool) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", "", "", false
	}
	name, _ = p.Name()
	if slice, err := p.CmdlineSlice(); err == nil && len(slice) > 0 {
		cmdline = slice[0]
		for _, part := range slice[1:] {
			cmdline += " " + part
		}
	}
	cwd, _ = p.Cwd()
	return name, cmdline, cwd, true
}

func protocolOf(ip string) livestore.PortProtocol {
	for _, c := range ip {
		if c == ':' {
			return livestore.ProtoTCP6
		}
	}
	return livestore.ProtoTCP4
}
