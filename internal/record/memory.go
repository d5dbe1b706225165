package record

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps records in a map guarded by a RWMutex. Records are
// stored by value so a reader never observes a half-written record.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) All(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) IDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	out := make([]string, 0, len(s.records))
	for id := range s.records {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *MemoryStore) AverageScore(ctx context.Context, pred Predicate) (float64, error) {
	all, err := s.All(ctx)
	if err != nil {
		return 0, err
	}
	return averageOf(all, pred), nil
}

func (s *MemoryStore) Upsert(_ context.Context, r Record) error {
	if r.ID == "" {
		return ErrMissingID
	}
	s.mu.Lock()
	s.records[r.ID] = r
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Insert(_ context.Context, r Record) (bool, error) {
	if r.ID == "" {
		return false, ErrMissingID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; ok {
		return false, nil
	}
	s.records[r.ID] = r
	return true, nil
}

func (s *MemoryStore) Close() error { return nil }
