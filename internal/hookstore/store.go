package hookstore

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/agentwatch/agentwatch/internal/jsonstore"
	"github.com/agentwatch/agentwatch/internal/recordlog"
)

const (
	maxToolUsages       = 10000
	toolUsageWindow     = 24 * time.Hour
	maxSessionDays      = 30
	staleSessionTimeout = 5 * time.Minute
	hardStaleTimeout    = 1 * time.Hour
)

// SessionChangeFunc and ToolUsageChangeFunc are invoked, still holding
// the store's lock, whenever a session or tool usage mutates -- the same
// "callback runs under the lock, must never re-enter the store"
// contract internal/session/store.go's tests imply for
// UpdateAndNotify/BatchUpdateAndNotify/BatchRemoveAndNotify.
type SessionChangeFunc func(session *Session)
type ToolUsageChangeFunc func(usage *ToolUsage)

// Store is the authoritative in-memory + on-disk record of session
// lifecycle and tool invocations.
type Store struct {
	mu sync.Mutex

	sessions map[string]*Session
	pending  map[string]*ToolUsage // tool-use id -> pending usage
	recent   []*ToolUsage          // completed usages, newest last

	toolStats  map[string]*ToolStat
	dailyStats map[string]*DailyStat

	onSessionChange SessionChangeFunc
	onToolUsage     ToolUsageChangeFunc

	sessionsPattern   string // e.g. ".../sessions_*.jsonl"
	toolUsagesPattern string
	commitsPattern    string
	statsPath         string
}

// Config points the store at its persistence paths.
type Config struct {
	SessionsPattern   string
	ToolUsagesPattern string
	CommitsPattern    string
	StatsPath         string
}

// New creates an empty Store.
func New(cfg Config, onSessionChange SessionChangeFunc, onToolUsage ToolUsageChangeFunc) *Store {
	return &Store{
		sessions:          make(map[string]*Session),
		pending:           make(map[string]*ToolUsage),
		toolStats:         make(map[string]*ToolStat),
		dailyStats:        make(map[string]*DailyStat),
		onSessionChange:   onSessionChange,
		onToolUsage:       onToolUsage,
		sessionsPattern:   cfg.SessionsPattern,
		toolUsagesPattern: cfg.ToolUsagesPattern,
		commitsPattern:    cfg.CommitsPattern,
		statsPath:         cfg.StatsPath,
	}
}

// --- session lifecycle ---

// SessionStart creates the session record, persists it, and notifies. It
// is idempotent per §8's testable property: a second SessionStart for an
// id that already exists overwrites only the mutable metadata fields
// (transcript path, cwd, permission mode, source) on the existing record
// -- it never replaces the whole struct (which would lose accumulated
// ToolsUsed/ToolCallCount/token totals) and never increments the daily
// session count a second time. Resolves the §9 "ambiguous source
// behaviour" note: replays of the same sessionStart call (e.g. on store
// reload racing a live hook delivery) must not double-count the daily
// session total.
func (s *Store) SessionStart(id, transcriptPath, cwd, permissionMode string, source SessionSource) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	if sess, ok := s.sessions[id]; ok {
		sess.TranscriptPath = transcriptPath
		sess.Cwd = cwd
		sess.PermissionMode = permissionMode
		sess.Source = source
		sess.LastActivity = now
		s.appendSessionLocked(sess)
		s.notifySessionLocked(sess)
		return sess.Clone()
	}

	sess := &Session{
		ID:             id,
		TranscriptPath: transcriptPath,
		Cwd:            cwd,
		PermissionMode: permissionMode,
		StartTime:      now,
		Source:         source,
		ToolsUsed:      make(map[string]int),
		LastActivity:   now,
	}
	s.sessions[id] = sess
	s.bumpDailyLocked(now, func(d *DailyStat) { d.SessionCount++ })
	s.appendSessionLocked(sess)
	s.notifySessionLocked(sess)
	return sess.Clone()
}

// SessionEnd stamps EndTime, persists, and notifies. Returns nil if the
// session is unknown.
func (s *Store) SessionEnd(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	now := time.Now()
	sess.EndTime = &now
	sess.LastActivity = now
	s.appendSessionLocked(sess)
	s.notifySessionLocked(sess)
	return sess.Clone()
}

// UpdateSessionAwaiting updates the awaiting flag and last-activity
// timestamp, then notifies.
func (s *Store) UpdateSessionAwaiting(id string, awaiting bool) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	sess.Awaiting = awaiting
	sess.LastActivity = time.Now()
	s.notifySessionLocked(sess)
	return sess.Clone()
}

// UpdateSessionTokens accumulates token/cost totals, updates
// last-activity, persists, and notifies. Returns nil if unknown.
func (s *Store) UpdateSessionTokens(id string, inputTokens, outputTokens int, costUSD float64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	sess.InputTokens += inputTokens
	sess.OutputTokens += outputTokens
	sess.EstimatedCostUSD += costUSD
	sess.LastActivity = time.Now()
	s.appendSessionLocked(sess)
	s.notifySessionLocked(sess)
	return sess.Clone()
}

// IncrementAutoContinueAttempts bumps the session's retry counter.
func (s *Store) IncrementAutoContinueAttempts(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.AutoContinueAttempts++
	}
}

// ResetAutoContinueAttempts clears the session's retry counter.
func (s *Store) ResetAutoContinueAttempts(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.AutoContinueAttempts = 0
	}
}

// GetSession returns a copy of the session, or nil if unknown.
func (s *Store) GetSession(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return sess.Clone()
}

// GetAllSessions returns copies of every known session.
func (s *Store) GetAllSessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	return out
}

// GetToolStats returns a copy of every per-tool rolling aggregate.
func (s *Store) GetToolStats() map[string]*ToolStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*ToolStat, len(s.toolStats))
	for name, stat := range s.toolStats {
		cp := *stat
		out[name] = &cp
	}
	return out
}

// GetDailyStats returns a copy of every per-date aggregate.
func (s *Store) GetDailyStats() map[string]*DailyStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*DailyStat, len(s.dailyStats))
	for date, d := range s.dailyStats {
		cp := *d
		if len(d.PerTool) > 0 {
			cp.PerTool = make(map[string]int, len(d.PerTool))
			for k, v := range d.PerTool {
				cp.PerTool[k] = v
			}
		}
		out[date] = &cp
	}
	return out
}

// GetRecentToolUsages returns copies of every tool usage currently held
// in the rolling window.
func (s *Store) GetRecentToolUsages() []*ToolUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ToolUsage, 0, len(s.recent))
	for _, u := range s.recent {
		out = append(out, cloneUsage(u))
	}
	return out
}

// GetToolUsagesForSession returns every completed usage recorded for
// sessionID still held in the recent-usage window, oldest first. The
// enrichment pipeline uses this as its stage input; usages older than
// the retention window are not reconstructed from disk.
func (s *Store) GetToolUsagesForSession(sessionID string) []*ToolUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ToolUsage
	for _, u := range s.recent {
		if u.SessionID == sessionID {
			out = append(out, cloneUsage(u))
		}
	}
	return out
}

// --- tool usage ---

// RecordPreToolUse creates a pending usage keyed by toolUseID, clears the
// session's awaiting flag, and bumps its activity timestamp.
func (s *Store) RecordPreToolUse(sessionID, toolUseID, toolName string, toolInput any, cwd string) *ToolUsage {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage := &ToolUsage{
		ToolUseID: toolUseID,
		ToolName:  toolName,
		ToolInput: toolInput,
		SessionID: sessionID,
		Cwd:       cwd,
		Timestamp: time.Now(),
	}
	s.pending[toolUseID] = usage

	if sess, ok := s.sessions[sessionID]; ok {
		sess.Awaiting = false
		sess.LastActivity = usage.Timestamp
	}
	return cloneUsage(usage)
}

// RecordPostToolUse matches the pending usage for toolUseID, completes
// it, updates stats, persists, and notifies. Returns nil if no pending
// record exists.
func (s *Store) RecordPostToolUse(toolUseID string, response any, errText string) *ToolUsage {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage, ok := s.pending[toolUseID]
	if !ok {
		return nil
	}
	delete(s.pending, toolUseID)

	usage.ToolResponse = response
	usage.Error = errText
	usage.Completed = true
	usage.DurationMS = time.Since(usage.Timestamp).Milliseconds()

	s.completeUsageLocked(usage)
	return cloneUsage(usage)
}

// RecordSecurityBlock synthesises a failed tool-usage record for a
// blocked tool call.
func (s *Store) RecordSecurityBlock(sessionID, toolName string, toolInput any, ruleName, reason string) *ToolUsage {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	errText := "SECURITY_BLOCKED: " + reason
	if ruleName != "" {
		errText = "SECURITY_BLOCKED: rule=" + ruleName + " " + reason
	}
	usage := &ToolUsage{
		ToolUseID: SecurityBlockToolUseID(now, toolName),
		ToolName:  toolName,
		ToolInput: toolInput,
		SessionID: sessionID,
		Timestamp: now,
		Error:     errText,
		Completed: true,
	}
	s.completeUsageLocked(usage)
	return cloneUsage(usage)
}

func (s *Store) completeUsageLocked(usage *ToolUsage) {
	if sess, ok := s.sessions[usage.SessionID]; ok {
		sess.ToolCallCount++
		if sess.ToolsUsed == nil {
			sess.ToolsUsed = make(map[string]int)
		}
		sess.ToolsUsed[usage.ToolName]++
		sess.LastActivity = usage.Timestamp
	}

	stat, ok := s.toolStats[usage.ToolName]
	if !ok {
		stat = &ToolStat{ToolName: usage.ToolName}
		s.toolStats[usage.ToolName] = stat
	}
	stat.observe(usage.Success(), usage.DurationMS, usage.Timestamp)

	s.bumpDailyLocked(usage.Timestamp, func(d *DailyStat) {
		d.ToolCallCount++
		if d.PerTool == nil {
			d.PerTool = make(map[string]int)
		}
		d.PerTool[usage.ToolName]++
	})

	s.recent = append(s.recent, usage)
	s.trimUsagesLocked()
	s.persistUsageLocked(usage)
	s.saveStatsLocked()

	if s.onToolUsage != nil {
		s.onToolUsage(cloneUsage(usage))
	}
}

func (s *Store) trimUsagesLocked() {
	cutoff := time.Now().Add(-toolUsageWindow)
	kept := s.recent[:0]
	for _, u := range s.recent {
		if u.Timestamp.After(cutoff) {
			kept = append(kept, u)
		}
	}
	s.recent = kept
	if len(s.recent) > maxToolUsages {
		s.recent = s.recent[len(s.recent)-maxToolUsages:]
	}
}

// --- commit attribution ---

// RecordCommit stores a commit and appends it to the session's commit
// list if new.
func (s *Store) RecordCommit(sessionID, hash, message, repoPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	for _, h := range sess.Commits {
		if h == hash {
			return
		}
	}
	sess.Commits = append(sess.Commits, hash)

	commit := Commit{Hash: hash, SessionID: sessionID, When: time.Now(), Message: message, RepoPath: repoPath}
	if s.commitsPattern != "" {
		if err := recordlog.AppendToPartition(s.commitsPattern, commit, time.Time{}); err != nil {
			log.Printf("[hookstore] persisting commit: %v", err)
		}
	}
}

// --- dead-session reconciliation ---

// SetSessionPid binds a PID to a session explicitly, e.g. when the
// caller already knows which process launched it rather than waiting for
// MatchSessionsToAgents to infer it from cwd.
func (s *Store) SetSessionPid(id string, pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.BoundPID = pid
	}
}

// ReconcileDeadSessions closes active sessions whose bound PID is no
// longer live, or whose staleness exceeds the configured thresholds with
// no matching live agent cwd. Returns the ids of sessions closed by this
// call.
func (s *Store) ReconcileDeadSessions(liveAgents map[int]LiveAgent) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var closed []string
	for _, sess := range s.sessions {
		if !sess.Active() {
			continue
		}
		if sess.BoundPID != 0 {
			if _, alive := liveAgents[sess.BoundPID]; !alive {
				s.closeSessionLocked(sess, now)
				closed = append(closed, sess.ID)
			}
			continue
		}
		inactive := now.Sub(sess.LastActivity)
		if inactive > hardStaleTimeout {
			s.closeSessionLocked(sess, now)
			closed = append(closed, sess.ID)
			continue
		}
		if inactive > staleSessionTimeout && !anyAgentMatchesCwd(liveAgents, sess.Cwd) {
			s.closeSessionLocked(sess, now)
			closed = append(closed, sess.ID)
		}
	}
	return closed
}

// CleanupOldData enforces the hook store's two retention rules (§4.H):
// sessions whose end time (or, if still active, last activity) is older
// than maxDays are evicted from the in-memory session map, and the
// rolling tool-usage window is trimmed to at most maxToolUsages entries
// (newest kept), matching trimUsagesLocked's existing time-window
// trimming. Returns the number of sessions evicted.
func (s *Store) CleanupOldData(maxDays, maxToolUsages int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxDays <= 0 {
		maxDays = maxSessionDays
	}
	cutoff := time.Now().AddDate(0, 0, -maxDays)

	evicted := 0
	for id, sess := range s.sessions {
		last := sess.LastActivity
		if sess.EndTime != nil {
			last = *sess.EndTime
		}
		if last.Before(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
	}

	if maxToolUsages > 0 && len(s.recent) > maxToolUsages {
		s.recent = s.recent[len(s.recent)-maxToolUsages:]
	}

	return evicted
}

// MatchSessionsToAgents binds PIDs to sessions when a unique cwd/label
// match exists; once bound, a session stays bound until it ends.
func (s *Store) MatchSessionsToAgents(liveAgents map[int]LiveAgent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if !sess.Active() || sess.BoundPID != 0 {
			continue
		}
		var matchedPID int
		matches := 0
		for pid, agent := range liveAgents {
			if agent.Cwd == sess.Cwd {
				matchedPID = pid
				matches++
			}
		}
		if matches == 1 {
			sess.BoundPID = matchedPID
		}
	}
}

func anyAgentMatchesCwd(liveAgents map[int]LiveAgent, cwd string) bool {
	for _, agent := range liveAgents {
		if agent.Cwd == cwd {
			return true
		}
	}
	return false
}

func (s *Store) closeSessionLocked(sess *Session, now time.Time) {
	t := now
	sess.EndTime = &t
	s.appendSessionLocked(sess)
	s.notifySessionLocked(sess)
}

// --- persistence ---

func (s *Store) appendSessionLocked(sess *Session) {
	if s.sessionsPattern == "" {
		return
	}
	if err := recordlog.AppendToPartition(s.sessionsPattern, sess, sess.StartTime); err != nil {
		log.Printf("[hookstore] persisting session %s: %v", sess.ID, err)
	}
}

func (s *Store) persistUsageLocked(usage *ToolUsage) {
	if s.toolUsagesPattern == "" {
		return
	}
	if err := recordlog.AppendToPartition(s.toolUsagesPattern, usage, usage.Timestamp); err != nil {
		log.Printf("[hookstore] persisting usage %s: %v", usage.ToolUseID, err)
	}
}

// statsBlob is the stats.json shape saved via jsonstore.
type statsBlob struct {
	jsonstore.Stamped
	Tools map[string]*ToolStat  `json:"tools"`
	Days  map[string]*DailyStat `json:"days"`
}

func (s *Store) bumpDailyLocked(when time.Time, fn func(*DailyStat)) {
	date := when.Format("2006-01-02")
	d, ok := s.dailyStats[date]
	if !ok {
		d = &DailyStat{Date: date, PerTool: make(map[string]int)}
		s.dailyStats[date] = d
	}
	fn(d)
}

func (s *Store) saveStatsLocked() {
	if s.statsPath == "" {
		return
	}
	blob := &statsBlob{Tools: s.toolStats, Days: s.dailyStats}
	if err := jsonstore.Save(s.statsPath, blob); err != nil {
		log.Printf("[hookstore] saving stats: %v", err)
	}
}

// LoadStats loads the persisted tool/daily rollups from disk, tolerating
// a missing or malformed file (the blob falls back to empty maps).
func (s *Store) LoadStats() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob := &statsBlob{Tools: make(map[string]*ToolStat), Days: make(map[string]*DailyStat)}
	if err := jsonstore.Load(s.statsPath, blob); err != nil {
		return fmt.Errorf("loading stats: %w", err)
	}
	if blob.Tools != nil {
		s.toolStats = blob.Tools
	}
	if blob.Days != nil {
		s.dailyStats = blob.Days
	}
	return nil
}

// LoadRecent reconstructs in-memory session and tool-usage state from the
// last 24 hours of partitioned logs, per the persistence layout: the
// final occurrence per session id wins, malformed lines are ignored.
func (s *Store) LoadRecent() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	start := now.Add(-toolUsageWindow)

	if s.sessionsPattern != "" {
		// Read oldest-partition-first and always overwrite: a session is
		// rewritten once per mutation, so the last line replayed in
		// chronological order is always its final state, per the
		// "final occurrence per session id wins" persistence rule.
		err := recordlog.ReadRange(s.sessionsPattern, recordlog.RangeOptions{Start: start, End: now, Ascending: true},
			func() any { return &Session{} },
			func(r any) error {
				sess := r.(*Session)
				s.sessions[sess.ID] = sess
				return nil
			})
		if err != nil {
			return fmt.Errorf("loading sessions: %w", err)
		}
	}

	if s.toolUsagesPattern != "" {
		// Oldest partition first, so s.recent stays ordered newest last.
		err := recordlog.ReadRange(s.toolUsagesPattern, recordlog.RangeOptions{Start: start, End: now, Ascending: true},
			func() any { return &ToolUsage{} },
			func(r any) error {
				s.recent = append(s.recent, r.(*ToolUsage))
				return nil
			})
		if err != nil {
			return fmt.Errorf("loading tool usages: %w", err)
		}
	}

	return nil
}

func (s *Store) notifySessionLocked(sess *Session) {
	if s.onSessionChange != nil {
		s.onSessionChange(sess.Clone())
	}
}

func cloneUsage(u *ToolUsage) *ToolUsage {
	cp := *u
	return &cp
}
