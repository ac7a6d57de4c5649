package scanprocess

import (
	"time"

	"github.com/agentwatch/agentwatch/internal/livestore"
)

// history keeps the rolling CPU sample for one PID across ticks.
type history struct {
	recentCPU   float64
	quietSince  time.Time
	missedTicks int
}

// heuristics computes per-PID ACTIVE/IDLE/STALLED classification from a
// small rolling CPU history kept across ticks, per the scanner's algorithm:
// ACTIVE if recent CPU >= activeCPU threshold, STALLED if quiet longer than
// stalledSeconds, otherwise IDLE. History for PIDs absent two consecutive
// ticks is dropped.
type heuristics struct {
	activeCPU      float64
	stalledSeconds int

	byPID map[int]*history
}

func newHeuristics(activeCPU float64, stalledSeconds int) *heuristics {
	return &heuristics{
		activeCPU:      activeCPU,
		stalledSeconds: stalledSeconds,
		byPID:          make(map[int]*history),
	}
}

// observe updates the rolling history for pid with a fresh CPU percent
// reading and returns the current heuristic classification.
func (h *heuristics) observe(pid int, cpuPercent float64, now time.Time) *livestore.Heuristic {
	hist, ok := h.byPID[pid]
	if !ok {
		hist = &history{quietSince: now}
		h.byPID[pid] = hist
	}
	hist.missedTicks = 0
	hist.recentCPU = cpuPercent

	if cpuPercent >= h.activeCPU {
		hist.quietSince = now
	}

	quietSeconds := int(now.Sub(hist.quietSince).Seconds())

	var state livestore.AgentHeuristicState
	switch {
	case cpuPercent >= h.activeCPU:
		state = livestore.StateActive
	case quietSeconds > h.stalledSeconds:
		state = livestore.StateStalled
	default:
		state = livestore.StateIdle
	}

	return &livestore.Heuristic{
		State:        state,
		RecentCPU:    cpuPercent,
		QuietSeconds: quietSeconds,
	}
}

// prune drops history for any PID not present in seenPIDs for two
// consecutive calls, per the "absent two consecutive ticks" rule.
func (h *heuristics) prune(seenPIDs map[int]struct{}) {
	for pid, hist := range h.byPID {
		if _, ok := seenPIDs[pid]; ok {
			continue
		}
		hist.missedTicks++
		if hist.missedTicks >= 2 {
			delete(h.byPID, pid)
		}
	}
}
