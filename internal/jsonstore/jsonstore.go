// Package jsonstore implements the versioned keyed JSON blob store used for
// agent metadata, conversation metadata, enrichments, and annotations. It
// generalizes the atomic load/save pattern the gamification stats store
// used for a single well-known file to an arbitrary path and blob shape.
package jsonstore

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/agentwatch/agentwatch/internal/pathutil"
)

// Stamped is embedded (or matched structurally) by blobs that want their
// UpdatedAt field maintained automatically by Save. Blobs that don't embed
// it are still saved fine; they just don't get the timestamp stamped in.
type Stamped struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Load reads path and JSON-decodes it into the value pointed to by out. If
// the file is missing or contains malformed JSON, out is left holding
// whatever defaultValue already populated it with (load is a no-op in
// both cases) -- callers pre-seed out with their default before calling
// Load, matching the "tolerate missing/malformed, fall back to default"
// contract.
func Load(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		// Malformed JSON falls back to the caller's pre-seeded default
		// rather than surfacing an error: a corrupt blob should never
		// wedge the daemon out of a feature.
		return nil
	}
	return nil
}

// Save JSON-encodes blob and atomic-writes it to path. If blob carries a
// settable UpdatedAt field (via the Stamper interface), it is stamped with
// the current time first.
func Save(path string, blob any) error {
	if s, ok := blob.(Stamper); ok {
		s.Stamp(time.Now().UTC())
	}
	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	data = append(data, '\n')
	return pathutil.AtomicWrite(path, data, 0o644)
}

// Stamper is implemented by blobs whose UpdatedAt timestamp Save should
// maintain automatically.
type Stamper interface {
	Stamp(t time.Time)
}

// Stamp sets UpdatedAt to t, satisfying Stamper for blobs that embed
// Stamped.
func (s *Stamped) Stamp(t time.Time) { s.UpdatedAt = t }

// Update loads the blob at path into out (falling back to out's current
// value as the default per Load's contract), calls fn to mutate it, then
// saves the result back to path. fn's return error aborts the update
// without writing.
func Update(path string, out any, fn func() error) error {
	if err := Load(path, out); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return Save(path, out)
}
