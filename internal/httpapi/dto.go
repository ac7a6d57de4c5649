// Package httpapi implements the HTTP+WebSocket surface (§4.K): REST
// endpoints for snapshots, session detail, tool statistics, and hook
// callbacks, plus the WebSocket endpoint that streams store and hook
// deltas. Grounded on internal/ws/server.go for endpoint registration,
// origin/auth checking, and JSON response shape, with the tmux-focus and
// gamification-stats endpoints dropped and replaced by this package's own
// REST surface.
package httpapi

import (
	"time"

	"github.com/agentwatch/agentwatch/internal/hookstore"
	"github.com/agentwatch/agentwatch/internal/livestore"
)

// Every response DTO below is the snake_case field-for-field mapping of
// an internal camelCase record, per §4.K: "All responses are snake_cased
// even though internal records are camelCased." Derived fields the
// internal record doesn't carry directly (dirty, active, success_rate,
// commit_count) are computed here at the translation boundary.

type repoDTO struct {
	ID         string   `json:"id"`
	Path       string   `json:"path"`
	Name       string   `json:"name"`
	Branch     string   `json:"branch"`
	Staged     int      `json:"staged"`
	Unstaged   int      `json:"unstaged"`
	Untracked  int      `json:"untracked"`
	Dirty      bool     `json:"dirty"`
	Flags      []string `json:"flags,omitempty"`
	Upstream   upstreamDTO `json:"upstream"`
	LastError  string   `json:"last_error,omitempty"`
	TimedOut   bool     `json:"timed_out"`
	LastScan   int64    `json:"last_scan"`
	LastChange int64    `json:"last_change"`
}

type upstreamDTO struct {
	Tracking string `json:"tracking,omitempty"`
	Ahead    int    `json:"ahead"`
	Behind   int    `json:"behind"`
}

func toRepoDTO(r *livestore.Repo) repoDTO {
	flags := make([]string, 0, len(r.Flags))
	for _, f := range r.Flags {
		flags = append(flags, f.String())
	}
	return repoDTO{
		ID:        r.ID,
		Path:      r.Path,
		Name:      r.Name,
		Branch:    r.Branch,
		Staged:    r.Staged,
		Unstaged:  r.Unstaged,
		Untracked: r.Untracked,
		Dirty:     r.Dirty(),
		Flags:     flags,
		Upstream: upstreamDTO{
			Tracking: r.Upstream.Tracking,
			Ahead:    r.Upstream.Ahead,
			Behind:   r.Upstream.Behind,
		},
		LastError:  r.Health.LastError,
		TimedOut:   r.Health.TimedOut,
		LastScan:   unixMilli(r.LastScan),
		LastChange: unixMilli(r.LastChange),
	}
}

type agentDTO struct {
	PID         int     `json:"pid"`
	Label       string  `json:"label"`
	CmdLine     string  `json:"cmd_line"`
	Exe         string  `json:"exe"`
	CPUPercent  float64 `json:"cpu_percent"`
	ResidentKB  uint64  `json:"resident_kb"`
	Threads     int     `json:"threads"`
	TTY         string  `json:"tty,omitempty"`
	Cwd         string  `json:"cwd,omitempty"`
	RepoRoot    string  `json:"repo_root,omitempty"`
	StartedAt   int64   `json:"started_at"`
	State       string  `json:"state,omitempty"`
	RecentCPU   float64 `json:"recent_cpu,omitempty"`
	SessionID   string  `json:"session_id,omitempty"`
	LaunchedAt  int64   `json:"launched_at,omitempty"`
}

func toAgentDTO(a *livestore.Agent) agentDTO {
	dto := agentDTO{
		PID:        a.PID,
		Label:      a.Label,
		CmdLine:    a.CmdLine,
		Exe:        a.Exe,
		CPUPercent: a.CPUPercent,
		ResidentKB: a.ResidentKB,
		Threads:    a.Threads,
		TTY:        a.TTY,
		Cwd:        a.Cwd,
		RepoRoot:   a.RepoRoot,
		StartedAt:  unixMilli(a.StartedAt),
	}
	if a.Heuristic != nil {
		dto.State = a.Heuristic.State.String()
		dto.RecentCPU = a.Heuristic.RecentCPU
	}
	if a.Wrapper != nil {
		dto.SessionID = a.Wrapper.SessionID
		dto.LaunchedAt = unixMilli(a.Wrapper.LaunchedAt)
	}
	return dto
}

type portDTO struct {
	Port        int    `json:"port"`
	PID         int    `json:"pid"`
	ProcessName string `json:"process_name"`
	CmdLine     string `json:"cmd_line"`
	BindAddress string `json:"bind_address"`
	Protocol    string `json:"protocol"`
	AgentID     int    `json:"agent_id,omitempty"`
	AgentLabel  string `json:"agent_label,omitempty"`
	FirstSeen   int64  `json:"first_seen"`
	Cwd         string `json:"cwd,omitempty"`
}

func toPortDTO(p *livestore.Port) portDTO {
	return portDTO{
		Port:        p.Port,
		PID:         p.PID,
		ProcessName: p.ProcessName,
		CmdLine:     p.CmdLine,
		BindAddress: p.BindAddress,
		Protocol:    string(p.Protocol),
		AgentID:     p.AgentID,
		AgentLabel:  p.AgentLabel,
		FirstSeen:   unixMilli(p.FirstSeen),
		Cwd:         p.Cwd,
	}
}

type sessionDTO struct {
	ID                 string         `json:"id"`
	TranscriptPath     string         `json:"transcript_path"`
	Cwd                string         `json:"cwd"`
	PermissionMode     string         `json:"permission_mode"`
	StartTime          int64          `json:"start_time"`
	EndTime            int64          `json:"end_time,omitempty"`
	Active             bool           `json:"active"`
	Source             string         `json:"source"`
	ToolCallCount      int            `json:"tool_call_count"`
	Awaiting           bool           `json:"awaiting"`
	ToolsUsed          map[string]int `json:"tools_used"`
	Commits            []string       `json:"commits,omitempty"`
	CommitCount        int            `json:"commit_count"`
	InputTokens        int            `json:"input_tokens"`
	OutputTokens       int            `json:"output_tokens"`
	EstimatedCostUSD    float64       `json:"estimated_cost_usd"`
	AutoContinueAttempts int          `json:"auto_continue_attempts"`
	BoundPID           int            `json:"bound_pid,omitempty"`
	LastActivity       int64          `json:"last_activity"`
}

func toSessionDTO(s *hookstore.Session) sessionDTO {
	return sessionDTO{
		ID:                   s.ID,
		TranscriptPath:       s.TranscriptPath,
		Cwd:                  s.Cwd,
		PermissionMode:       s.PermissionMode,
		StartTime:            unixMilli(s.StartTime),
		EndTime:              unixMilliPtr(s.EndTime),
		Active:               s.Active(),
		Source:               string(s.Source),
		ToolCallCount:        s.ToolCallCount,
		Awaiting:             s.Awaiting,
		ToolsUsed:            s.ToolsUsed,
		Commits:              s.Commits,
		CommitCount:          len(s.Commits),
		InputTokens:          s.InputTokens,
		OutputTokens:         s.OutputTokens,
		EstimatedCostUSD:     s.EstimatedCostUSD,
		AutoContinueAttempts: s.AutoContinueAttempts,
		BoundPID:             s.BoundPID,
		LastActivity:         unixMilli(s.LastActivity),
	}
}

type toolUsageDTO struct {
	ToolUseID  string `json:"tool_use_id"`
	ToolName   string `json:"tool_name"`
	SessionID  string `json:"session_id"`
	Cwd        string `json:"cwd"`
	Timestamp  int64  `json:"timestamp"`
	Error      string `json:"error,omitempty"`
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
}

func toToolUsageDTO(u *hookstore.ToolUsage) toolUsageDTO {
	return toolUsageDTO{
		ToolUseID:  u.ToolUseID,
		ToolName:   u.ToolName,
		SessionID:  u.SessionID,
		Cwd:        u.Cwd,
		Timestamp:  unixMilli(u.Timestamp),
		Error:      u.Error,
		Success:    u.Success(),
		DurationMS: u.DurationMS,
	}
}

type toolStatDTO struct {
	ToolName      string  `json:"tool_name"`
	TotalCalls    int     `json:"total_calls"`
	SuccessCount  int     `json:"success_count"`
	FailureCount  int     `json:"failure_count"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	SuccessRate   float64 `json:"success_rate"`
	LastUsed      int64   `json:"last_used"`
}

func toToolStatDTO(s *hookstore.ToolStat) toolStatDTO {
	rate := 0.0
	if s.TotalCalls > 0 {
		rate = float64(s.SuccessCount) / float64(s.TotalCalls)
	}
	return toolStatDTO{
		ToolName:      s.ToolName,
		TotalCalls:    s.TotalCalls,
		SuccessCount:  s.SuccessCount,
		FailureCount:  s.FailureCount,
		AvgDurationMS: s.AvgDurationMS,
		SuccessRate:   rate,
		LastUsed:      unixMilli(s.LastUsed),
	}
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func unixMilliPtr(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return unixMilli(*t)
}
