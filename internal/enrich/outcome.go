package enrich

import "regexp"

var (
	testsPassedPattern = regexp.MustCompile(`(\d+)\s+pass(?:ed|ing)`)
	testsFailedPattern = regexp.MustCompile(`(\d+)\s+fail(?:ed|ing)`)
	exitCodePattern    = regexp.MustCompile(`exit(?:ed)?\s+(?:code|status)?\s*[:=]?\s*(\d+)`)
)

// outcomeSignals counts successes/failures across the usage list and
// best-effort parses test-runner/linter-shaped output for pass/fail
// counts and exit codes, per §4.I stage 2.
func outcomeSignals(usages []ToolUsageView) OutcomeSignals {
	var o OutcomeSignals
	for _, u := range usages {
		if u.Success {
			o.Successes++
		} else {
			o.Failures++
		}

		text := responseText(u)
		if text == "" {
			continue
		}
		if m := testsPassedPattern.FindStringSubmatch(text); m != nil {
			o.TestsPassed += atoiSafe(m[1])
		}
		if m := testsFailedPattern.FindStringSubmatch(text); m != nil {
			o.TestsFailed += atoiSafe(m[1])
		}
		if m := exitCodePattern.FindStringSubmatch(text); m != nil {
			o.ExitCodes = append(o.ExitCodes, atoiSafe(m[1]))
		}
	}
	return o
}

func responseText(u ToolUsageView) string {
	switch v := u.Response.(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v["stdout"].(string); ok && s != "" {
			return s
		}
		if s, ok := v["output"].(string); ok && s != "" {
			return s
		}
		if s, ok := v["content"].(string); ok {
			return s
		}
	}
	return ""
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
