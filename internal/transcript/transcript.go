// Package transcript is an orthogonal, non-core collaborator (per spec §1)
// that discovers and incrementally parses JSON-line transcript files
// written by the host agent, for cost estimation against sessions that
// were never hooked. The core daemon does not depend on it: no command in
// this module calls it, and nothing passes its results to the enrichment
// pipeline.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Usage mirrors the token accounting block embedded in assistant turns.
type Usage struct {
	InputTokens             int `json:"input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens    int `json:"cache_read_input_tokens"`
	OutputTokens            int `json:"output_tokens"`
}

func (u Usage) totalContext() int {
	return u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
}

type entry struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Timestamp string          `json:"timestamp"`
	Message   json.RawMessage `json:"message"`
}

type messageBlock struct {
	Model   string          `json:"model"`
	Usage   *Usage          `json:"usage,omitempty"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// ParseResult accumulates what was learned from the lines read in a single
// Parse call. Callers are expected to call Parse repeatedly with the
// returned offset as new lines are appended to the transcript file.
type ParseResult struct {
	SessionID    string
	Model        string
	LatestUsage  *Usage
	MessageCount int
	ToolCalls    int
	LastTool     string
	LastActivity string
	LastTime     time.Time
}

// Parse reads every complete line in path starting at offset and returns
// the accumulated result plus the byte offset to resume from on the next
// call. An incomplete trailing line (no terminating newline yet, because
// the host is still writing it) is left unconsumed.
func Parse(path string, offset int64) (*ParseResult, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, offset, err
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, offset, err
		}
	}

	result := &ParseResult{}
	reader := bufio.NewReader(f)
	parsed := offset

	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return result, parsed, readErr
		}
		if len(line) == 0 {
			break
		}
		if line[len(line)-1] != '\n' {
			break // incomplete trailing line, retry on next call
		}

		parsed += int64(len(line))

		var e entry
		if err := json.Unmarshal(line[:len(line)-1], &e); err != nil {
			if readErr == io.EOF {
				break
			}
			continue
		}

		if e.SessionID != "" && result.SessionID == "" {
			result.SessionID = e.SessionID
		}
		if e.Timestamp != "" {
			if t, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
				result.LastTime = t
			}
		}

		switch e.Type {
		case "assistant":
			result.MessageCount++
			result.LastActivity = "thinking"
			applyAssistantMessage(e.Message, result)
		case "user":
			result.MessageCount++
			result.LastActivity = "waiting"
		}

		if readErr == io.EOF {
			break
		}
	}

	return result, parsed, nil
}

func applyAssistantMessage(raw json.RawMessage, result *ParseResult) {
	if raw == nil {
		return
	}
	var msg messageBlock
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Model != "" {
		result.Model = msg.Model
	}
	if msg.Usage != nil {
		result.LatestUsage = msg.Usage
	}

	var blocks []contentBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return
	}
	for _, b := range blocks {
		if b.Type == "tool_use" {
			result.ToolCalls++
			result.LastTool = b.Name
			result.LastActivity = "tool_use"
		}
	}
}

// EncodeProjectPath reproduces the host agent's directory-name encoding
// (every path separator becomes a hyphen) so transcript directories can be
// located from a working directory without prior knowledge of the session id.
func EncodeProjectPath(path string) string {
	return strings.ReplaceAll(filepath.Clean(path), "/", "-")
}

// Discover returns every transcript file recorded for workingDir under
// root (typically "~/.claude/projects"), newest first.
func Discover(root, workingDir string) ([]string, error) {
	dir := filepath.Join(root, EncodeProjectPath(workingDir))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading transcript dir %s: %w", dir, err)
	}

	type found struct {
		path string
		mod  time.Time
	}
	var files []found
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, found{filepath.Join(dir, e.Name()), info.ModTime()})
	}

	// newest first
	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && files[j].mod.After(files[j-1].mod); j-- {
			files[j], files[j-1] = files[j-1], files[j]
		}
	}
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}

// SessionIDFromPath extracts the session id the host agent encodes as the
// transcript's filename stem.
func SessionIDFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".jsonl")
}
