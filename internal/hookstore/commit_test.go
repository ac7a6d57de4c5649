package hookstore

import "testing"

func TestExtractCommitBracketForm(t *testing.T) {
	text := "[main a1b2c3d] Fix the widget renderer\n 2 files changed, 10 insertions(+)"
	hash, msg, ok := ExtractCommit(text)
	if !ok {
		t.Fatal("expected a match")
	}
	if hash != "a1b2c3d" {
		t.Errorf("got hash %q, want a1b2c3d", hash)
	}
	if msg != "Fix the widget renderer" {
		t.Errorf("got message %q", msg)
	}
}

func TestExtractCommitLeadingHash(t *testing.T) {
	text := "a1b2c3d4e5f6 Add tests for the parser"
	hash, msg, ok := ExtractCommit(text)
	if !ok {
		t.Fatal("expected a match")
	}
	if hash != "a1b2c3d4e5f6" {
		t.Errorf("got hash %q", hash)
	}
	if msg != "Add tests for the parser" {
		t.Errorf("got message %q", msg)
	}
}

func TestExtractCommitFullHashWord(t *testing.T) {
	text := "commit 9f8e7d6c5b4a39281706f5e4d3c2b1a091827364\nAuthor: test"
	hash, _, ok := ExtractCommit(text)
	if !ok {
		t.Fatal("expected a match")
	}
	if hash != "9f8e7d6c5b4a39281706f5e4d3c2b1a091827364" {
		t.Errorf("got hash %q", hash)
	}
}

func TestExtractCommitNoMatch(t *testing.T) {
	_, _, ok := ExtractCommit("no commit here, just ls output\nfoo.txt\nbar.txt")
	if ok {
		t.Error("expected no match")
	}
}

func TestExtractCommitBracketTakesPriorityOverLeading(t *testing.T) {
	// Bracket pattern should win even though the leading-hash pattern would
	// also match a later line in the same text.
	text := "[main a1b2c3d] Initial commit\na1b2c3d should not be picked as a leading-hash match instead"
	hash, msg, ok := ExtractCommit(text)
	if !ok {
		t.Fatal("expected a match")
	}
	if hash != "a1b2c3d" || msg != "Initial commit" {
		t.Errorf("got (%q, %q), want (a1b2c3d, Initial commit)", hash, msg)
	}
}

func TestExtractCommitMessageTruncated(t *testing.T) {
	longMsg := ""
	for i := 0; i < 50; i++ {
		longMsg += "0123456789"
	}
	text := "[main a1b2c3d] " + longMsg
	_, msg, ok := ExtractCommit(text)
	if !ok {
		t.Fatal("expected a match")
	}
	if len(msg) != maxCommitMessageLen {
		t.Errorf("got message length %d, want %d", len(msg), maxCommitMessageLen)
	}
}
