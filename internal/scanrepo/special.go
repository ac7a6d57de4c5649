package scanrepo

import (
	"os"
	"path/filepath"

	"github.com/agentwatch/agentwatch/internal/livestore"
)

// specialFlags inspects .git's marker files to detect an in-progress
// rebase, merge, cherry-pick, or revert, and scans porcelain status for
// unmerged paths to detect an active conflict. gitDir is the repo's .git
// directory (or the file it points to for worktrees, resolved by
// resolveGitDir).
func specialFlags(gitDir string, hasUnmergedPaths bool) []livestore.RepoFlag {
	var flags []livestore.RepoFlag
	if hasUnmergedPaths {
		flags = append(flags, livestore.FlagConflict)
	}
	if exists(filepath.Join(gitDir, "rebase-merge")) || exists(filepath.Join(gitDir, "rebase-apply")) {
		flags = append(flags, livestore.FlagRebase)
	}
	if exists(filepath.Join(gitDir, "MERGE_HEAD")) {
		flags = append(flags, livestore.FlagMerge)
	}
	if exists(filepath.Join(gitDir, "CHERRY_PICK_HEAD")) {
		flags = append(flags, livestore.FlagCherryPick)
	}
	if exists(filepath.Join(gitDir, "REVERT_HEAD")) {
		flags = append(flags, livestore.FlagRevert)
	}
	return flags
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// resolveGitDir returns the .git directory for repoPath, following the
// "gitdir: <path>" indirection used by worktrees and submodules where
// .git is a file rather than a directory.
func resolveGitDir(repoPath string) string {
	dotGit := filepath.Join(repoPath, ".git")
	info, err := os.Stat(dotGit)
	if err != nil {
		return ""
	}
	if info.IsDir() {
		return dotGit
	}
	data, err := os.ReadFile(dotGit)
	if err != nil {
		return ""
	}
	const prefix = "gitdir: "
	s := string(data)
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		path := s[len(prefix):]
		for len(path) > 0 && (path[len(path)-1] == '\n' || path[len(path)-1] == '\r') {
			path = path[:len(path)-1]
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(repoPath, path)
		}
		return path
	}
	return ""
}
