package scanrepo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentwatch/agentwatch/internal/livestore"
)

// FetchPolicy controls whether the slow pass runs `git fetch` before
// computing ahead/behind counts.
type FetchPolicy string

const (
	FetchOff  FetchPolicy = "off"
	FetchAuto FetchPolicy = "auto"
)

// Config configures one Scanner.
type Config struct {
	Roots        []string
	IgnoreDirs   []string
	FastInterval time.Duration
	SlowInterval time.Duration
	ShowClean    bool
	Fetch        FetchPolicy

	StatusTimeout time.Duration
	DiffTimeout   time.Duration
}

// DefaultConfig returns the scanner's default timeouts, matching §4.F's
// nominal 5s status / 10s diff budget.
func DefaultConfig() Config {
	return Config{
		FastInterval:  2 * time.Second,
		SlowInterval:  15 * time.Second,
		Fetch:         FetchOff,
		StatusTimeout: 5 * time.Second,
		DiffTimeout:   10 * time.Second,
	}
}

// Scanner runs the fast and slow repo-scan rhythms against a livestore.
type Scanner struct {
	cfg   Config
	store *livestore.Store

	mu      sync.Mutex
	running bool
	paused  bool
	cancel  context.CancelFunc

	known map[string]*livestore.Repo // path -> last known snapshot
}

// New creates a Scanner.
func New(cfg Config, store *livestore.Store) *Scanner {
	return &Scanner{
		cfg:   cfg,
		store: store,
		known: make(map[string]*livestore.Repo),
	}
}

// Start schedules the fast and slow passes. Idempotent.
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

// Stop cancels scheduled passes.
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

// SetPaused suppresses both rhythms without discarding known repos.
func (s *Scanner) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

func (s *Scanner) loop(ctx context.Context) {
	fastTicker := time.NewTicker(s.cfg.FastInterval)
	slowTicker := time.NewTicker(s.cfg.SlowInterval)
	defer fastTicker.Stop()
	defer slowTicker.Stop()

	s.slowPass() // prime the known-repo set immediately

	for {
		select {
		case <-ctx.Done():
			return
		case <-slowTicker.C:
			if s.isPaused() {
				continue
			}
			s.slowPass()
		case <-fastTicker.C:
			if s.isPaused() {
				continue
			}
			s.fastPass()
		}
	}
}

func (s *Scanner) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// fastPass re-reads status counts and special-state flags for
// already-known repos only. It does not discover new repos or refresh
// upstream ahead/behind.
func (s *Scanner) fastPass() {
	s.mu.Lock()
	paths := make([]string, 0, len(s.known))
	for p := range s.known {
		paths = append(paths, p)
	}
	s.mu.Unlock()

	repos := make(map[string]*livestore.Repo, len(paths))
	for _, path := range paths {
		prev := s.known[path]
		repo := s.scanStatusOnly(path, prev)
		if repo != nil {
			repos[path] = repo
		}
	}

	s.mu.Lock()
	s.known = repos
	s.mu.Unlock()

	s.store.SetRepos(repos)
}

// slowPass walks roots for new repos, drops repos that vanished, and
// refreshes the more expensive upstream ahead/behind counts (optionally
// preceded by a fetch) plus deep special-state detection.
func (s *Scanner) slowPass() {
	found := Discover(s.cfg.Roots, s.cfg.IgnoreDirs)

	repos := make(map[string]*livestore.Repo, len(found))
	for _, path := range found {
		prev := s.known[path]
		repo := s.scanFull(path, prev)
		if repo != nil {
			repos[path] = repo
		}
	}

	s.mu.Lock()
	s.known = repos
	s.mu.Unlock()

	s.store.SetRepos(repos)
}

func (s *Scanner) scanStatusOnly(path string, prev *livestore.Repo) *livestore.Repo {
	repo := newRepoFromPrev(path, prev)

	st, timedOut, err := porcelain(path, s.cfg.StatusTimeout)
	if timedOut {
		repo.Health.TimedOut = true
		return repo
	}
	if err != nil {
		repo.Health.LastError = err.Error()
		return repo
	}
	repo.Health = livestore.RepoHealth{}
	applyStatus(repo, st)

	gitDir := resolveGitDir(path)
	flags := specialFlags(gitDir, st.unmerged)
	if changed(repo.Flags, flags) {
		repo.LastChange = time.Now()
	}
	repo.Flags = flags

	branch, branchTimedOut, _ := currentBranch(path, s.cfg.StatusTimeout)
	if !branchTimedOut {
		repo.Branch = branch
	}

	repo.LastScan = time.Now()
	return repo
}

func (s *Scanner) scanFull(path string, prev *livestore.Repo) *livestore.Repo {
	repo := s.scanStatusOnly(path, prev)
	if repo.Health.LastError != "" || repo.Health.TimedOut {
		return repo
	}

	if s.cfg.Fetch == FetchAuto {
		if timedOut, err := fetch(path, s.cfg.DiffTimeout); err != nil {
			log.Printf("[scanrepo] fetch %s: %v", path, err)
		} else if timedOut {
			repo.Health.TimedOut = true
		}
	}

	up, timedOut, err := upstream(path, s.cfg.StatusTimeout)
	if timedOut {
		repo.Health.TimedOut = true
	} else if err == nil {
		repo.Upstream = livestore.Upstream{
			Tracking: up.tracking,
			Ahead:    up.ahead,
			Behind:   up.behind,
		}
	}

	return repo
}

func newRepoFromPrev(path string, prev *livestore.Repo) *livestore.Repo {
	if prev != nil {
		cp := *prev
		return &cp
	}
	return &livestore.Repo{
		ID:         repoID(path),
		Path:       path,
		Name:       filepath.Base(path),
		LastChange: time.Now(),
	}
}

func applyStatus(repo *livestore.Repo, st porcelainStatus) {
	repo.Staged = st.staged
	repo.Unstaged = st.unstaged
	repo.Untracked = st.untracked
}

func changed(a, b []livestore.RepoFlag) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}

// repoID derives a stable id from the repo's canonical absolute path.
func repoID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:16]
}
