// Package enrich implements the post-session enrichment pipeline (§4.I):
// auto-tagging, outcome-signal extraction, stuck-loop detection, a git
// diff snapshot, and a composite quality score, computed from a session's
// tool-usage history and written to the enrichment store keyed by the
// canonical session reference. No teacher file runs anything like this;
// the closest structural precedent in the pack is
// internal/monitor/monitor.go's subagent-merging and activity
// classification, which derives higher-level state from raw tool-usage
// events the same way this package derives tags and a score.
package enrich

import "time"

// SessionRef is the canonical triple identifying a session across hook,
// transcript, and correlation-id sources.
type SessionRef struct {
	CorrelationID string `json:"correlationId,omitempty"`
	HookSessionID string `json:"hookSessionId,omitempty"`
	TranscriptID  string `json:"transcriptId,omitempty"`
}

// Canonical implements §3's canonicalisation rule: correlation id when
// present, else "corr:<hook id>", else "corr:<transcript id>".
func (r SessionRef) Canonical() string {
	if r.CorrelationID != "" {
		return r.CorrelationID
	}
	if r.HookSessionID != "" {
		return "corr:" + r.HookSessionID
	}
	return "corr:" + r.TranscriptID
}

// TaskType is the inferred category of work a session performed.
type TaskType string

const (
	TaskFeature  TaskType = "feature"
	TaskBugfix   TaskType = "bugfix"
	TaskRefactor TaskType = "refactor"
	TaskDocs     TaskType = "docs"
	TaskTest     TaskType = "test"
	TaskChore    TaskType = "chore"
	TaskOther    TaskType = "other"
)

// AutoTags is stage 1's output.
type AutoTags struct {
	TaskType  TaskType `json:"taskType"`
	Languages []string `json:"languages,omitempty"`
}

// OutcomeSignals is stage 2's output.
type OutcomeSignals struct {
	Successes   int   `json:"successes"`
	Failures    int   `json:"failures"`
	TestsPassed int   `json:"testsPassed"`
	TestsFailed int   `json:"testsFailed"`
	ExitCodes   []int `json:"exitCodes,omitempty"`
}

// LoopSeverity classifies how bad a detected loop is.
type LoopSeverity string

const (
	LoopNone   LoopSeverity = "none"
	LoopLow    LoopSeverity = "low"
	LoopMedium LoopSeverity = "medium"
	LoopHigh   LoopSeverity = "high"
)

// LoopWindow identifies one offending span of the tool-usage sequence.
type LoopWindow struct {
	Kind       string `json:"kind"` // "repetition" | "oscillation" | "permission-loop"
	StartIndex int    `json:"startIndex"`
	EndIndex   int    `json:"endIndex"`
	Detail     string `json:"detail,omitempty"`
}

// LoopDetection is stage 3's output.
type LoopDetection struct {
	Severity LoopSeverity `json:"severity"`
	Windows  []LoopWindow `json:"windows,omitempty"`
}

// FileChange is one file's churn between the session's start and end
// diff snapshots.
type FileChange struct {
	Path        string `json:"path"`
	Insertions  int    `json:"insertions"`
	Deletions   int    `json:"deletions"`
}

// DiffSnapshot is stage 4's output.
type DiffSnapshot struct {
	Files          []FileChange `json:"files,omitempty"`
	CommitCount    int          `json:"commitCount"`
	HasUncommitted bool         `json:"hasUncommitted"`
}

// QualityClass is the textual classification attached to a numeric score.
type QualityClass string

const (
	QualityExcellent QualityClass = "excellent"
	QualityGood      QualityClass = "good"
	QualityFair      QualityClass = "fair"
	QualityPoor      QualityClass = "poor"
)

// ClassifyScore maps a 0-100 score to its textual bucket, per §4.I's
// thresholds: excellent >= 80, good >= 60, fair >= 40, else poor.
func ClassifyScore(score int) QualityClass {
	switch {
	case score >= 80:
		return QualityExcellent
	case score >= 60:
		return QualityGood
	case score >= 40:
		return QualityFair
	default:
		return QualityPoor
	}
}

// QualityScore is stage 5's output.
type QualityScore struct {
	Score          int          `json:"score"`
	Classification QualityClass `json:"classification"`
}

// Feedback is a user's manual judgement of a session, attached to its
// enrichment but never computed by the pipeline itself.
type Feedback string

const (
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
	FeedbackNeutral  Feedback = "neutral"
)

// Annotation is the manual, user-editable half of an enrichment record.
type Annotation struct {
	Feedback       Feedback `json:"feedback,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Rating         int      `json:"rating,omitempty"`
	WorkflowStatus string   `json:"workflowStatus,omitempty"`
}

// PipelineSource names which ingest path produced an enrichment.
type PipelineSource string

const (
	SourceHook       PipelineSource = "hook"
	SourceTranscript PipelineSource = "transcript"
)

// Enrichment is the full computed-plus-manual record attached to one
// session, keyed by its canonical SessionRef.
type Enrichment struct {
	Ref        string         `json:"ref"`
	AutoTags   AutoTags       `json:"autoTags"`
	Outcome    OutcomeSignals `json:"outcome"`
	Loop       LoopDetection  `json:"loop"`
	Diff       DiffSnapshot   `json:"diff"`
	Quality    QualityScore   `json:"quality"`
	Annotation *Annotation    `json:"annotation,omitempty"`
	Source     PipelineSource `json:"source"`
	ComputedAt time.Time      `json:"computedAt"`
}

// ToolUsageView is the minimal shape the pipeline needs from a completed
// tool usage -- decoupled from hookstore.ToolUsage's JSON shape so this
// package has no import-time dependency on it.
type ToolUsageView struct {
	ToolName  string
	ToolInput any
	Response  any
	Error     string
	Success   bool
	Timestamp time.Time
}
