package enrich

import (
	"sync"

	"github.com/agentwatch/agentwatch/internal/jsonstore"
)

// blob is the on-disk shape of enrichments/store.json.
type blob struct {
	jsonstore.Stamped
	Enrichments map[string]*Enrichment `json:"enrichments"`
}

// Store is the keyed enrichment store (§3's "Enrichment record"),
// persisted as a single JSON blob at a configured path, guarded by its
// own mutex so concurrent Put/Annotate calls from the HTTP surface and
// the pipeline never race.
type Store struct {
	mu   sync.Mutex
	path string
	data map[string]*Enrichment
}

// NewStore creates a Store backed by path, loading any existing blob.
// A missing or malformed file yields an empty store, per jsonstore's
// tolerant Load contract.
func NewStore(path string) (*Store, error) {
	b := &blob{Enrichments: make(map[string]*Enrichment)}
	if err := jsonstore.Load(path, b); err != nil {
		return nil, err
	}
	if b.Enrichments == nil {
		b.Enrichments = make(map[string]*Enrichment)
	}
	return &Store{path: path, data: b.Enrichments}, nil
}

// Put writes e into the store keyed by e.Ref and persists.
func (s *Store) Put(e *Enrichment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[e.Ref] = e
	return s.saveLocked()
}

// Get returns the enrichment for ref, or nil if none exists.
func (s *Store) Get(ref string) *Enrichment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[ref]
}

// All returns every enrichment currently stored.
func (s *Store) All() []*Enrichment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Enrichment, 0, len(s.data))
	for _, e := range s.data {
		out = append(out, e)
	}
	return out
}

// Annotate attaches or replaces the manual annotation on the enrichment
// keyed by ref, creating an empty enrichment record if none exists yet
// (a user can annotate a session whose automated pipeline hasn't run).
func (s *Store) Annotate(ref string, a Annotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[ref]
	if !ok {
		e = &Enrichment{Ref: ref}
		s.data[ref] = e
	}
	e.Annotation = &a
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	b := &blob{Enrichments: s.data}
	return jsonstore.Save(s.path, b)
}
