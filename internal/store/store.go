// Package store persists seeded records, one collection per hierarchy level.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentic-research/regionseed/api"
	"github.com/agentic-research/regionseed/internal/record"
)

var (
	// ErrUnavailable marks failures to reach the backing store
	// (connection refused, timeouts, cancelled contexts).
	ErrUnavailable = errors.New("store unavailable")
	// ErrRejected marks writes the store refused (validation, duplicate keys).
	ErrRejected = errors.New("write rejected")
)

// Store is the persistence contract the seeder needs.
// This allows us to swap the backend (Memory -> SQLite -> Mongo).
type Store interface {
	// InsertMany writes all records of one level in a single batch.
	// The seeder treats a failed batch as not written. Memory and SQLite
	// guarantee that; Mongo's ordered insert keeps the documents written
	// before the failing one.
	InsertMany(ctx context.Context, level api.Level, records []record.Stored) error
	// FindAll returns every record persisted at the level, in no
	// particular order, with the identifiers the store holds for them.
	FindAll(ctx context.Context, level api.Level) ([]record.Stored, error)
}

// Document is the field-name/value form of a stored record, minus its ID.
// Field names come from the level's output fields.
func Document(level api.Level, r record.Stored) map[string]any {
	doc := map[string]any{
		level.Output.Name: r.Name,
		level.Output.Code: r.Code,
	}
	if level.Output.Parent != "" {
		doc[level.Output.Parent] = r.ParentID.Hex()
	}
	return doc
}

// FromDocument rebuilds a stored record from its ID and Document form.
func FromDocument(level api.Level, id record.ID, doc map[string]any) (record.Stored, error) {
	r := record.Stored{ID: id}
	var err error
	if r.Name, err = stringField(doc, level.Output.Name); err != nil {
		return record.Stored{}, err
	}
	if r.Code, err = stringField(doc, level.Output.Code); err != nil {
		return record.Stored{}, err
	}
	if level.Output.Parent != "" {
		hex, err := stringField(doc, level.Output.Parent)
		if err != nil {
			return record.Stored{}, err
		}
		if r.ParentID, err = record.ParseID(hex); err != nil {
			return record.Stored{}, fmt.Errorf("field %q: %w", level.Output.Parent, err)
		}
	}
	return r, nil
}

func stringField(doc map[string]any, field string) (string, error) {
	v, ok := doc[field]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q: expected string, got %T", field, v)
	}
	return s, nil
}
