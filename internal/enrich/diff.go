package enrich

import (
	"bytes"
	"context"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const diffTimeout = 10 * time.Second

// startState is what CacheStart records for a session: the repo it was
// started against and its HEAD at that moment.
type startState struct {
	repoPath string
	headHash string
}

// diffCache holds the in-memory start-of-session git state, keyed by
// session id, per §4.I stage 4's "cached by session id in memory" rule.
type diffCache struct {
	mu     sync.Mutex
	starts map[string]startState
}

func newDiffCache() *diffCache {
	return &diffCache{starts: make(map[string]startState)}
}

// CacheStart records repoPath's current HEAD for sessionID. Safe to call
// even when repoPath is empty or not a git working copy -- Snapshot will
// simply produce an empty DiffSnapshot.
func (c *diffCache) CacheStart(sessionID, repoPath string) {
	if repoPath == "" {
		return
	}
	head, _, err := runGit(repoPath, diffTimeout, "rev-parse", "HEAD")
	if err != nil {
		return
	}
	c.mu.Lock()
	c.starts[sessionID] = startState{repoPath: repoPath, headHash: strings.TrimSpace(head)}
	c.mu.Unlock()
}

// Snapshot computes the diff snapshot for sessionID against its cached
// start state, then clears that cache entry per §4.I's "start states are
// cleared from cache on use" rule. repoPath is used as a fallback when no
// start state was cached (e.g. the session started before the daemon did).
func (c *diffCache) Snapshot(sessionID, repoPath string) DiffSnapshot {
	c.mu.Lock()
	start, ok := c.starts[sessionID]
	delete(c.starts, sessionID)
	c.mu.Unlock()

	dir := repoPath
	if ok {
		dir = start.repoPath
	}
	if dir == "" {
		return DiffSnapshot{}
	}

	var snap DiffSnapshot
	if ok && start.headHash != "" {
		endHash, _, err := runGit(dir, diffTimeout, "rev-parse", "HEAD")
		if err == nil {
			endHash = strings.TrimSpace(endHash)
			if out, _, err := runGit(dir, diffTimeout, "rev-list", "--count", start.headHash+".."+endHash); err == nil {
				snap.CommitCount = atoiSafe(strings.TrimSpace(out))
			}
			if out, _, err := runGit(dir, diffTimeout, "diff", "--numstat", start.headHash, endHash); err == nil {
				snap.Files = append(snap.Files, parseNumstat(out)...)
			}
		}
	}

	if out, _, err := runGit(dir, diffTimeout, "diff", "--numstat"); err == nil {
		uncommitted := parseNumstat(out)
		if len(uncommitted) > 0 {
			snap.HasUncommitted = true
			snap.Files = mergeFileChanges(snap.Files, uncommitted)
		}
	}
	if out, _, err := runGit(dir, diffTimeout, "status", "--porcelain"); err == nil && strings.TrimSpace(out) != "" {
		snap.HasUncommitted = true
	}

	snap.Files = topByChurn(snap.Files, 50)
	return snap
}

func parseNumstat(out string) []FileChange {
	var changes []FileChange
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		ins, _ := strconv.Atoi(fields[0])
		del, _ := strconv.Atoi(fields[1])
		changes = append(changes, FileChange{Path: fields[2], Insertions: ins, Deletions: del})
	}
	return changes
}

func mergeFileChanges(a, b []FileChange) []FileChange {
	byPath := make(map[string]FileChange, len(a))
	order := make([]string, 0, len(a))
	for _, f := range a {
		byPath[f.Path] = f
		order = append(order, f.Path)
	}
	for _, f := range b {
		if existing, ok := byPath[f.Path]; ok {
			existing.Insertions += f.Insertions
			existing.Deletions += f.Deletions
			byPath[f.Path] = existing
		} else {
			byPath[f.Path] = f
			order = append(order, f.Path)
		}
	}
	out := make([]FileChange, 0, len(order))
	for _, p := range order {
		out = append(out, byPath[p])
	}
	return out
}

func topByChurn(files []FileChange, limit int) []FileChange {
	sort.Slice(files, func(i, j int) bool {
		return files[i].Insertions+files[i].Deletions > files[j].Insertions+files[j].Deletions
	})
	if len(files) > limit {
		files = files[:limit]
	}
	return files
}

func runGit(dir string, timeout time.Duration, args ...string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", true, ctx.Err()
	}
	return out.String(), false, err
}
