package scanprocess

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// MatcherType names how a Matcher's pattern is evaluated against a process.
type MatcherType string

const (
	MatchExeBasename  MatcherType = "exe_basename"
	MatchCmdRegex     MatcherType = "cmd_regex"
	MatchCmdSubstring MatcherType = "cmd_substring"
)

// Matcher identifies an agent process by executable name or command line
// shape. Matchers are evaluated in declared order; the first match wins.
type Matcher struct {
	Label   string      `yaml:"label"`
	Type    MatcherType `yaml:"type"`
	Pattern string      `yaml:"pattern"`

	compiled *regexp.Regexp
}

// DefaultMatchers covers the coding-agent CLIs this daemon knows about out
// of the box, adapted from the teacher's own hardcoded claude/codex/gemini
// recognition in internal/monitor/process.go.
func DefaultMatchers() []Matcher {
	return []Matcher{
		{Label: "claude", Type: MatchExeBasename, Pattern: "claude"},
		{Label: "claude", Type: MatchExeBasename, Pattern: "claude-code"},
		{Label: "codex", Type: MatchExeBasename, Pattern: "codex"},
		{Label: "gemini", Type: MatchExeBasename, Pattern: "gemini"},
		{Label: "claude", Type: MatchCmdSubstring, Pattern: "claude"},
		{Label: "codex", Type: MatchCmdSubstring, Pattern: "codex"},
		{Label: "gemini", Type: MatchCmdSubstring, Pattern: "gemini"},
	}
}

// Compile prepares any regex matchers for use. Call once after loading
// matchers from config.
func Compile(matchers []Matcher) ([]Matcher, error) {
	out := make([]Matcher, len(matchers))
	for i, m := range matchers {
		if m.Type == MatchCmdRegex {
			re, err := regexp.Compile(m.Pattern)
			if err != nil {
				return nil, fmt.Errorf("matcher %q: compiling pattern %q: %w", m.Label, m.Pattern, err)
			}
			m.compiled = re
		}
		out[i] = m
	}
	return out, nil
}

// Match evaluates matchers in order against exe (basename of the
// executable path) and cmdline (full command line, args space-joined).
// It returns the label of the first matcher that matches and true, or
// ("", false) if none match. node_modules/.bin entries are excluded from
// substring matching the same way the teacher excludes them, so tooling
// shims don't masquerade as the agent itself.
func Match(matchers []Matcher, exe, cmdline string) (string, bool) {
	base := filepath.Base(exe)
	for _, m := range matchers {
		switch m.Type {
		case MatchExeBasename:
			if base == m.Pattern {
				return m.Label, true
			}
		case MatchCmdRegex:
			if m.compiled != nil && m.compiled.MatchString(cmdline) {
				return m.Label, true
			}
		case MatchCmdSubstring:
			if strings.Contains(cmdline, "node_modules/.bin") {
				continue
			}
			if strings.Contains(cmdline, m.Pattern) {
				return m.Label, true
			}
		}
	}
	return "", false
}
