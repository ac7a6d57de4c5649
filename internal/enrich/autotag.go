package enrich

import (
	"path/filepath"
	"strings"
)

var extLanguages = map[string]string{
	".go":   "go",
	".ts":   "typescript",
	".tsx":  "typescript",
	".js":   "javascript",
	".jsx":  "javascript",
	".py":   "python",
	".rb":   "ruby",
	".rs":   "rust",
	".java": "java",
	".c":    "c",
	".h":    "c",
	".cpp":  "c++",
	".cc":   "c++",
	".md":   "markdown",
	".yaml": "yaml",
	".yml":  "yaml",
	".json": "json",
	".sh":   "shell",
}

// autoTags infers a task type from the distribution of tool names and
// edited file paths, and attaches language tags from edited file
// extensions, per §4.I stage 1.
func autoTags(usages []ToolUsageView) AutoTags {
	paths := editedPaths(usages)

	langSet := make(map[string]struct{})
	for _, p := range paths {
		if lang, ok := extLanguages[strings.ToLower(filepath.Ext(p))]; ok {
			langSet[lang] = struct{}{}
		}
	}
	languages := make([]string, 0, len(langSet))
	for lang := range langSet {
		languages = append(languages, lang)
	}

	return AutoTags{
		TaskType:  inferTaskType(usages, paths),
		Languages: languages,
	}
}

// editedPaths collects file_path-shaped fields out of Write/Edit/
// MultiEdit tool inputs, best-effort across whatever shape the opaque
// tool input actually has.
func editedPaths(usages []ToolUsageView) []string {
	var paths []string
	for _, u := range usages {
		if !isEditTool(u.ToolName) {
			continue
		}
		m, ok := u.ToolInput.(map[string]any)
		if !ok {
			continue
		}
		if p, ok := m["file_path"].(string); ok && p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func isEditTool(name string) bool {
	switch name {
	case "Write", "Edit", "MultiEdit", "NotebookEdit":
		return true
	}
	return false
}

// inferTaskType classifies the session from simple keyword/shape
// heuristics over the edited paths and tool names -- there is no ground
// truth signal available at this layer, so the classifier is
// deliberately conservative: it returns "other" when no file was edited
// and "chore" when no more specific rule matches.
func inferTaskType(usages []ToolUsageView, paths []string) TaskType {
	var testPaths, docPaths, total int
	for _, p := range paths {
		total++
		lower := strings.ToLower(p)
		switch {
		case strings.Contains(lower, "test") || strings.Contains(lower, "_test.") || strings.Contains(lower, ".test."):
			testPaths++
		case strings.HasSuffix(lower, ".md") || strings.Contains(lower, "docs/") || strings.Contains(lower, "readme"):
			docPaths++
		}
	}
	if total == 0 {
		return TaskOther
	}
	if testPaths == total {
		return TaskTest
	}
	if docPaths == total {
		return TaskDocs
	}

	bashFixWords := 0
	for _, u := range usages {
		if u.ToolName != "Bash" {
			continue
		}
		cmd, _ := u.ToolInput.(map[string]any)
		cmdStr, _ := cmd["command"].(string)
		lower := strings.ToLower(cmdStr)
		if strings.Contains(lower, "fix") || strings.Contains(lower, "bug") {
			bashFixWords++
		}
	}
	if bashFixWords > 0 {
		return TaskBugfix
	}
	if testPaths > 0 && testPaths < total {
		return TaskFeature
	}
	return TaskChore
}
