package hookstore

import (
	"regexp"
	"strings"
)

// Two line-anchored patterns, tried per line, then one whole-text pattern,
// for extracting a commit hash out of a Bash tool's post-event response,
// per the commit-extraction rules.
var (
	commitBracketPattern = regexp.MustCompile(`^\[\S+\s+([0-9a-f]{7,40})\]\s*(.*)$`)
	commitLeadingPattern = regexp.MustCompile(`^([0-9a-f]{7,40})\s+(.*)$`)
	commitWordPattern    = regexp.MustCompile(`commit\s+([0-9a-f]{40})\b`)
)

const maxCommitMessageLen = 200

// ExtractCommit scans text (a Bash tool's response) for a commit hash
// using the three patterns in priority order and returns the hash and an
// associated message truncated to 200 characters. ok is false if no
// pattern matched.
func ExtractCommit(text string) (hash, message string, ok bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if m := commitBracketPattern.FindStringSubmatch(line); m != nil {
			return m[1], truncate(m[2]), true
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if m := commitLeadingPattern.FindStringSubmatch(line); m != nil {
			return m[1], truncate(m[2]), true
		}
	}
	if m := commitWordPattern.FindStringSubmatch(text); m != nil {
		return m[1], "", true
	}
	return "", "", false
}

func truncate(s string) string {
	if len(s) > maxCommitMessageLen {
		return s[:maxCommitMessageLen]
	}
	return s
}
