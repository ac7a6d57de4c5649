package enrich

import (
	"fmt"
	"strings"
)

const (
	repetitionThreshold  = 3 // identical tool+input calls in a row
	oscillationThreshold = 3 // A/B/A/B swaps in a row
	permissionThreshold  = 2 // consecutive permission-denied errors
)

// loopDetection scans the tool-usage sequence for three patterns, per
// §4.I stage 3: identical-input repetition, two-tool oscillation, and
// permission-dialog loops. Returns the worst severity found and every
// offending window.
func loopDetection(usages []ToolUsageView) LoopDetection {
	var windows []LoopWindow
	windows = append(windows, repetitionWindows(usages)...)
	windows = append(windows, oscillationWindows(usages)...)
	windows = append(windows, permissionWindows(usages)...)

	return LoopDetection{
		Severity: worstSeverity(windows),
		Windows:  windows,
	}
}

func repetitionWindows(usages []ToolUsageView) []LoopWindow {
	var out []LoopWindow
	i := 0
	for i < len(usages) {
		j := i + 1
		for j < len(usages) && sameCall(usages[i], usages[j]) {
			j++
		}
		count := j - i
		if count >= repetitionThreshold {
			out = append(out, LoopWindow{
				Kind:       "repetition",
				StartIndex: i,
				EndIndex:   j - 1,
				Detail:     fmt.Sprintf("%s repeated %d times with identical input", usages[i].ToolName, count),
			})
		}
		i = j
	}
	return out
}

func sameCall(a, b ToolUsageView) bool {
	return a.ToolName == b.ToolName && fmt.Sprint(a.ToolInput) == fmt.Sprint(b.ToolInput)
}

func oscillationWindows(usages []ToolUsageView) []LoopWindow {
	var out []LoopWindow
	i := 0
	for i+1 < len(usages) {
		toolA, toolB := usages[i].ToolName, usages[i+1].ToolName
		if toolA == toolB {
			i++
			continue
		}
		j := i + 2
		swaps := 1
		for j+1 < len(usages) && usages[j].ToolName == toolA && usages[j+1].ToolName == toolB {
			swaps++
			j += 2
		}
		if swaps >= oscillationThreshold {
			out = append(out, LoopWindow{
				Kind:       "oscillation",
				StartIndex: i,
				EndIndex:   j - 1,
				Detail:     fmt.Sprintf("oscillating between %s and %s (%d swaps)", toolA, toolB, swaps),
			})
			i = j
			continue
		}
		i++
	}
	return out
}

func permissionWindows(usages []ToolUsageView) []LoopWindow {
	var out []LoopWindow
	i := 0
	for i < len(usages) {
		if !isPermissionDenied(usages[i]) {
			i++
			continue
		}
		j := i + 1
		for j < len(usages) && isPermissionDenied(usages[j]) {
			j++
		}
		count := j - i
		if count >= permissionThreshold {
			out = append(out, LoopWindow{
				Kind:       "permission-loop",
				StartIndex: i,
				EndIndex:   j - 1,
				Detail:     fmt.Sprintf("%d consecutive permission-denied responses", count),
			})
		}
		i = j
	}
	return out
}

func isPermissionDenied(u ToolUsageView) bool {
	if u.Success {
		return false
	}
	lower := strings.ToLower(u.Error)
	return strings.Contains(lower, "permission") || strings.Contains(lower, "denied") || strings.Contains(lower, "security_blocked")
}

func worstSeverity(windows []LoopWindow) LoopSeverity {
	if len(windows) == 0 {
		return LoopNone
	}
	permissionLoops, other := 0, 0
	for _, w := range windows {
		if w.Kind == "permission-loop" {
			permissionLoops++
		} else {
			other++
		}
	}
	switch {
	case permissionLoops > 0 && other > 0:
		return LoopHigh
	case permissionLoops > 0:
		return LoopMedium
	case other >= 2:
		return LoopMedium
	default:
		return LoopLow
	}
}
