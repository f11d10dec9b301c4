package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentic-research/regionseed/api"
	"github.com/agentic-research/regionseed/internal/record"
)

var _ Store = (*Memory)(nil)

// Memory keeps collections in process, in insertion order.
// It backs dry runs and stands in for a real store in tests.
type Memory struct {
	mu          sync.RWMutex
	collections map[string][]record.Stored
	ids         map[string]map[record.ID]bool

	// ReassignIDs makes InsertMany persist every record under a fresh ID
	// instead of the one it was given, like a store that assigns its own keys.
	ReassignIDs bool

	failInsert map[string]error
	failFind   map[string]error
}

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string][]record.Stored),
		ids:         make(map[string]map[record.ID]bool),
		failInsert:  make(map[string]error),
		failFind:    make(map[string]error),
	}
}

// FailInsert makes every InsertMany on the collection return err.
// A nil err clears the fault.
func (m *Memory) FailInsert(collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failInsert, collection)
		return
	}
	m.failInsert[collection] = err
}

// FailFind makes every FindAll on the collection return err.
// A nil err clears the fault.
func (m *Memory) FailFind(collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failFind, collection)
		return
	}
	m.failFind[collection] = err
}

// InsertMany implements Store.
func (m *Memory) InsertMany(ctx context.Context, level api.Level, records []record.Stored) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failInsert[level.Collection]; err != nil {
		return err
	}

	seen := m.ids[level.Collection]
	if seen == nil {
		seen = make(map[record.ID]bool)
	}

	// Validate the whole batch before touching the collection.
	batch := make([]record.Stored, len(records))
	pending := make(map[record.ID]bool, len(records))
	for i, r := range records {
		if m.ReassignIDs {
			r.ID = record.NewID()
		}
		if r.ID.IsZero() {
			return fmt.Errorf("%w: %s: record %d has no id", ErrRejected, level.Collection, i)
		}
		if seen[r.ID] || pending[r.ID] {
			return fmt.Errorf("%w: %s: duplicate id %s", ErrRejected, level.Collection, r.ID.Hex())
		}
		pending[r.ID] = true
		batch[i] = r
	}

	for id := range pending {
		seen[id] = true
	}
	m.ids[level.Collection] = seen
	m.collections[level.Collection] = append(m.collections[level.Collection], batch...)
	return nil
}

// FindAll implements Store.
func (m *Memory) FindAll(ctx context.Context, level api.Level) ([]record.Stored, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failFind[level.Collection]; err != nil {
		return nil, err
	}
	docs := m.collections[level.Collection]
	out := make([]record.Stored, len(docs))
	copy(out, docs)
	return out, nil
}

// Count returns the number of records in a collection.
func (m *Memory) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}
