// Package mock provides an in-memory roster store for testing.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/roster"
)

// Store is an in-memory implementation of roster.Store with error injection
type Store struct {
	mu      sync.RWMutex
	records map[int]roster.Record

	// Error injection
	AllError      error
	GetError      error
	FindByIDError error
	CountError    error
	PutError      error
	DeleteError   error
	ReplaceError  error
}

// NewStore creates a new empty mock store
func NewStore() *Store {
	return &Store{records: make(map[int]roster.Record)}
}

// AddRecord adds a record to the mock store
func (m *Store) AddRecord(rec roster.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Index] = rec
}

// All returns every record ordered by index
func (m *Store) All(ctx context.Context) ([]roster.Record, error) {
	if m.AllError != nil {
		return nil, m.AllError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]roster.Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// Get retrieves a record by index
func (m *Store) Get(ctx context.Context, index int) (*roster.Record, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[index]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// FindByID retrieves a record by student ID
func (m *Store) FindByID(ctx context.Context, id string) (*roster.Record, error) {
	if m.FindByIDError != nil {
		return nil, m.FindByIDError
	}
	all, _ := m.All(ctx)
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, nil
}

// Count returns the number of records
func (m *Store) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Put inserts or replaces a record
func (m *Store) Put(ctx context.Context, rec roster.Record) error {
	if m.PutError != nil {
		return m.PutError
	}
	m.AddRecord(rec)
	return nil
}

// Delete removes a record by index
func (m *Store) Delete(ctx context.Context, index int) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, index)
	return nil
}

// Replace swaps all records
func (m *Store) Replace(ctx context.Context, records []roster.Record) error {
	if m.ReplaceError != nil {
		return m.ReplaceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[int]roster.Record, len(records))
	for _, rec := range records {
		m.records[rec.Index] = rec
	}
	return nil
}
