package livestore

import "time"

// RepoFlag names a special git working-copy state.
type RepoFlag int

const (
	FlagConflict RepoFlag = iota
	FlagRebase
	FlagMerge
	FlagCherryPick
	FlagRevert
)

var repoFlagNames = map[RepoFlag]string{
	FlagConflict:   "conflict",
	FlagRebase:     "rebase",
	FlagMerge:      "merge",
	FlagCherryPick: "cherry-pick",
	FlagRevert:     "revert",
}

func (f RepoFlag) String() string {
	if s, ok := repoFlagNames[f]; ok {
		return s
	}
	return "unknown"
}

// Upstream describes a branch's relationship to its remote tracking branch.
type Upstream struct {
	Tracking string `json:"tracking,omitempty"`
	Ahead    int    `json:"ahead"`
	Behind   int    `json:"behind"`
}

// RepoHealth carries the last scan error (if any) for a repo.
type RepoHealth struct {
	LastError string `json:"lastError,omitempty"`
	TimedOut  bool   `json:"timedOut"`
}

// Repo is a scanned git working copy, keyed by its absolute path.
type Repo struct {
	ID         string     `json:"id"` // stable hash of canonical path
	Path       string     `json:"path"`
	Name       string     `json:"name"`
	Branch     string     `json:"branch"`
	Staged     int        `json:"staged"`
	Unstaged   int        `json:"unstaged"`
	Untracked  int        `json:"untracked"`
	Flags      []RepoFlag `json:"flags,omitempty"`
	Upstream   Upstream   `json:"upstream"`
	Health     RepoHealth `json:"health"`
	LastScan   time.Time  `json:"lastScan"`
	LastChange time.Time  `json:"lastChange"`
}

// Dirty reports whether the repo has any pending changes or special flag,
// matching the data model's invariant: dirty iff staged+unstaged+untracked
// > 0 or any flag is set.
func (r *Repo) Dirty() bool {
	return r.Staged+r.Unstaged+r.Untracked > 0 || len(r.Flags) > 0
}

// AgentHeuristicState classifies an agent process's recent activity.
type AgentHeuristicState int

const (
	StateUnknown AgentHeuristicState = iota
	StateActive
	StateIdle
	StateStalled
	StateWorking
	StateWaiting
)

var agentStateNames = map[AgentHeuristicState]string{
	StateUnknown: "UNKNOWN",
	StateActive:  "ACTIVE",
	StateIdle:    "IDLE",
	StateStalled: "STALLED",
	StateWorking: "WORKING",
	StateWaiting: "WAITING",
}

func (s AgentHeuristicState) String() string {
	if v, ok := agentStateNames[s]; ok {
		return v
	}
	return "UNKNOWN"
}

// Heuristic carries the rolling activity classification for an agent
// process, computed by the process scanner from recent CPU history.
type Heuristic struct {
	State        AgentHeuristicState `json:"state"`
	RecentCPU    float64             `json:"recentCpu"`
	QuietSeconds int                 `json:"quietSeconds"`
}

// WrapperOverlay is present only for processes the daemon itself launched.
type WrapperOverlay struct {
	SessionID  string    `json:"sessionId"`
	LaunchedAt time.Time `json:"launchedAt"`
}

// Agent is a scanned agent process, keyed by PID.
type Agent struct {
	PID        int        `json:"pid"`
	Label      string     `json:"label"`
	CmdLine    string     `json:"cmdLine"`
	Exe        string     `json:"exe"`
	CPUPercent float64    `json:"cpuPercent"`
	ResidentKB uint64     `json:"residentKb"`
	Threads    int        `json:"threads"`
	TTY        string     `json:"tty,omitempty"`
	Cwd        string     `json:"cwd,omitempty"`
	RepoRoot   string     `json:"repoRoot,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	Heuristic  *Heuristic `json:"heuristic,omitempty"`

	// Wrapper is merged in at read time from the store's wrapperStates map;
	// it is never set directly by the process scanner.
	Wrapper *WrapperOverlay `json:"wrapper,omitempty"`
}

// PortProtocol names the transport a listening socket is bound on.
type PortProtocol string

const (
	ProtoTCP4 PortProtocol = "tcp4"
	ProtoTCP6 PortProtocol = "tcp6"
)

// Port is a listening TCP socket, keyed by port number.
type Port struct {
	Port        int          `json:"port"`
	PID         int          `json:"pid"`
	ProcessName string       `json:"processName"`
	CmdLine     string       `json:"cmdLine"`
	BindAddress string       `json:"bindAddress"`
	Protocol    PortProtocol `json:"protocol"`
	AgentID     int          `json:"agentId,omitempty"` // 0 means uncorrelated; PIDs are >0
	AgentLabel  string       `json:"agentLabel,omitempty"`
	FirstSeen   time.Time    `json:"firstSeen"`
	Cwd         string       `json:"cwd,omitempty"`
}
