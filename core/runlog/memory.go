package runlog

import (
	"context"
	"sync"
)

// MemoryStore keeps records in memory.
type MemoryStore struct {
	mu   sync.Mutex
	recs []Record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Record
	for _, r := range s.recs {
		if q.Match(r) {
			res = append(res, r)
		}
	}
	return q.limit(res), nil
}

func (s *MemoryStore) Close() error { return nil }
