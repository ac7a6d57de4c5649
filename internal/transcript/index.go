package transcript

import (
	"sync"

	"github.com/agentwatch/agentwatch/internal/cost"
	"github.com/agentwatch/agentwatch/internal/jsonstore"
)

// Record tracks what the index knows about a single transcript file: how
// far it has been read, the model it last reported, and the running cost
// estimate derived from its latest usage block.
type Record struct {
	Path       string  `json:"path"`
	SessionID  string  `json:"sessionId"`
	Offset     int64   `json:"offset"`
	Model      string  `json:"model"`
	EstCostUSD float64 `json:"estCostUsd"`
	Messages   int     `json:"messages"`
	ToolCalls  int      `json:"toolCalls"`
}

type indexBlob struct {
	jsonstore.Stamped
	Records map[string]*Record `json:"records"`
}

// Index is the local transcript index (`transcripts/index.json` per the
// on-disk layout): one Record per discovered transcript file, so repeated
// scans only parse the bytes appended since the last run.
type Index struct {
	mu   sync.Mutex
	path string
	blob indexBlob
}

// NewIndex loads (or initializes) the index at path.
func NewIndex(path string) (*Index, error) {
	idx := &Index{path: path, blob: indexBlob{Records: map[string]*Record{}}}
	if err := jsonstore.Load(path, &idx.blob); err != nil {
		return nil, err
	}
	if idx.blob.Records == nil {
		idx.blob.Records = map[string]*Record{}
	}
	return idx, nil
}

// Sync parses any bytes appended to transcriptPath since the last Sync,
// updates the index record, and returns the incremental ParseResult (nil
// if nothing new was read).
func (idx *Index) Sync(transcriptPath string) (*ParseResult, error) {
	idx.mu.Lock()
	rec, ok := idx.blob.Records[transcriptPath]
	if !ok {
		rec = &Record{Path: transcriptPath, SessionID: SessionIDFromPath(transcriptPath)}
		idx.blob.Records[transcriptPath] = rec
	}
	offset := rec.Offset
	idx.mu.Unlock()

	result, newOffset, err := Parse(transcriptPath, offset)
	if err != nil {
		return nil, err
	}
	if newOffset == offset {
		return nil, nil
	}

	idx.mu.Lock()
	rec.Offset = newOffset
	rec.Messages += result.MessageCount
	rec.ToolCalls += result.ToolCalls
	if result.SessionID != "" {
		rec.SessionID = result.SessionID
	}
	if result.Model != "" {
		rec.Model = result.Model
	}
	if result.LatestUsage != nil {
		rec.EstCostUSD = cost.Estimate(rec.Model, cost.Usage{
			InputTokens:         int64(result.LatestUsage.InputTokens),
			OutputTokens:        int64(result.LatestUsage.OutputTokens),
			CacheCreationTokens: int64(result.LatestUsage.CacheCreationInputTokens),
			CacheReadTokens:     int64(result.LatestUsage.CacheReadInputTokens),
		})
	}
	blob := idx.blob
	idx.mu.Unlock()

	return result, jsonstore.Save(idx.path, &blob)
}

// Get returns a copy of the record for path, if known.
func (idx *Index) Get(path string) (Record, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	rec, ok := idx.blob.Records[path]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// All returns a copy of every record in the index.
func (idx *Index) All() []Record {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make([]Record, 0, len(idx.blob.Records))
	for _, rec := range idx.blob.Records {
		out = append(out, *rec)
	}
	return out
}
