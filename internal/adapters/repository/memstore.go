package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/surgilog/internal/domain/model"
	"github.com/okian/surgilog/pkg/metrics"
)

const driverMemory = "memory"

// MemoryStore is a mutex-guarded map of records. Records are cloned on the way
// in and out so callers never share step or OSAT slices with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.Record
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]model.Record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert implements Store.
func (s *MemoryStore) Insert(_ context.Context, rec model.Record) (model.Record, error) {
	const op = "repository.memory.insert"
	start := time.Now()
	defer func() { metrics.RecordRepositoryLatency(driverMemory, "insert", sinceMs(start)) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; ok {
		return model.Record{}, model.WrapKind(op, model.ErrConflict, fmt.Errorf("record %s already exists", rec.ID))
	}
	now := s.now()
	stored := rec.Clone()
	stored.Revision = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.records[rec.ID] = stored
	return stored.Clone(), nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, id string) (model.Record, error) {
	const op = "repository.memory.load"
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return model.Record{}, model.WrapKind(op, model.ErrNotFound, fmt.Errorf("record %s", id))
	}
	return rec.Clone(), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, rec model.Record) (model.Record, error) {
	const op = "repository.memory.save"
	start := time.Now()
	defer func() { metrics.RecordRepositoryLatency(driverMemory, "save", sinceMs(start)) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[rec.ID]
	if !ok {
		return model.Record{}, model.WrapKind(op, model.ErrNotFound, fmt.Errorf("record %s", rec.ID))
	}
	if current.Revision != rec.Revision {
		return model.Record{}, model.WrapKind(op, model.ErrConflict,
			fmt.Errorf("record %s is at revision %d, write based on %d", rec.ID, current.Revision, rec.Revision))
	}
	stored := rec.Clone()
	stored.Revision = current.Revision + 1
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = s.now()
	s.records[rec.ID] = stored
	return stored.Clone(), nil
}

// Query implements Store.
func (s *MemoryStore) Query(_ context.Context, f Filter) ([]model.Record, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryLatency(driverMemory, "query", sinceMs(start)) }()

	s.mu.RLock()
	out := make([]model.Record, 0, len(s.records))
	for id := range s.records {
		rec := s.records[id]
		if f.Match(&rec) {
			out = append(out, rec.Clone())
		}
	}
	s.mu.RUnlock()

	sortRecords(out)
	return out, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.records {
		if !rec.Deleted {
			n++
		}
	}
	return n, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
