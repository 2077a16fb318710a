package memory

import (
	"context"
	"sync"

	"custodian/internal/audit"
	id "custodian/pkg/domain"
)

// Store keeps ledger entries in memory for tests and local development.
// Append-only: entries are copied on write and on read so callers can never
// mutate a recorded fact.
type Store struct {
	mu      sync.RWMutex
	entries []*audit.Entry
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, cloneEntry(entry))
	return nil
}

func (s *Store) ListByTarget(_ context.Context, target string) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*audit.Entry
	for _, e := range s.entries {
		if e.TargetResource == target {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

func (s *Store) ListByOwner(_ context.Context, ownerUserID id.UserID) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*audit.Entry
	for _, e := range s.entries {
		if e.OwnerUserID == ownerUserID {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

func (s *Store) ListRecent(_ context.Context, limit int) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]*audit.Entry, 0, limit)
	for i := len(s.entries) - 1; i >= len(s.entries)-limit; i-- {
		out = append(out, cloneEntry(s.entries[i]))
	}
	return out, nil
}

// Len reports the total number of recorded entries. Tests use it to assert
// the ledger only grows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cloneEntry(e *audit.Entry) *audit.Entry {
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
