package enrich

import "time"

// Pipeline runs the five enrichment stages in order and holds the
// in-memory git-diff start-state cache across the session's lifetime.
type Pipeline struct {
	weights Weights
	diffs   *diffCache
}

// New creates a Pipeline with the given quality-score weights.
func New(weights Weights) *Pipeline {
	return &Pipeline{weights: weights, diffs: newDiffCache()}
}

// CacheSessionStart records the repo's HEAD at session start, for later
// diffing in Run. Call this from SessionStart handling.
func (p *Pipeline) CacheSessionStart(sessionID, repoPath string) {
	p.diffs.CacheStart(sessionID, repoPath)
}

// Run executes all five stages for one session and returns the composite
// enrichment, ready to be written to the Store keyed by ref.Canonical().
func (p *Pipeline) Run(ref SessionRef, usages []ToolUsageView, repoPath string, source PipelineSource) *Enrichment {
	outcome := outcomeSignals(usages)
	loop := loopDetection(usages)
	diff := p.diffs.Snapshot(ref.HookSessionID, repoPath)

	return &Enrichment{
		Ref:        ref.Canonical(),
		AutoTags:   autoTags(usages),
		Outcome:    outcome,
		Loop:       loop,
		Diff:       diff,
		Quality:    qualityScore(p.weights, outcome, loop, diff),
		Source:     source,
		ComputedAt: time.Now(),
	}
}
