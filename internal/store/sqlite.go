package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentic-research/regionseed/api"
	"github.com/agentic-research/regionseed/internal/record"
	_ "modernc.org/sqlite"
)

var _ Store = (*SQLite)(nil)

// SQLite stores each level in its own table of JSON documents:
//
//	CREATE TABLE <collection> (id TEXT PRIMARY KEY, doc JSON NOT NULL)
//
// Documents carry the same field names as the Mongo backend.
type SQLite struct {
	db      *sql.DB
	mu      sync.Mutex
	created map[string]bool
}

// OpenSQLite opens (or creates) the database file at dbPath.
func OpenSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite %s: %w", ErrUnavailable, dbPath, err)
	}
	// A single connection keeps ":memory:" databases coherent across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping sqlite %s: %w", ErrUnavailable, dbPath, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: configure sqlite: %w", ErrUnavailable, err)
	}

	return &SQLite{
		db:      db,
		created: make(map[string]bool),
	}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ensureTable creates the collection table on first use.
// Must be called with s.mu held.
func (s *SQLite) ensureTable(ctx context.Context, collection string) error {
	if s.created[collection] {
		return nil
	}
	// Collection names are validated identifiers (api.Hierarchy.Validate).
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id TEXT PRIMARY KEY,
		doc JSON NOT NULL
	)`, collection)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%w: create table %s: %w", ErrUnavailable, collection, err)
	}
	s.created[collection] = true
	return nil
}

// InsertMany implements Store. The batch is written in one transaction.
func (s *SQLite) InsertMany(ctx context.Context, level api.Level, records []record.Stored) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureTable(ctx, level.Collection); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %q (id, doc) VALUES (?, ?)`, level.Collection))
	if err != nil {
		return fmt.Errorf("%w: prepare insert %s: %w", ErrUnavailable, level.Collection, err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		doc, err := json.Marshal(Document(level, r))
		if err != nil {
			return fmt.Errorf("%w: encode %s: %w", ErrRejected, r.ID.Hex(), err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID.Hex(), string(doc)); err != nil {
			return fmt.Errorf("%w: insert %s into %s: %w", ErrRejected, r.ID.Hex(), level.Collection, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit %s: %w", ErrRejected, level.Collection, err)
	}
	return nil
}

// FindAll implements Store.
func (s *SQLite) FindAll(ctx context.Context, level api.Level) ([]record.Stored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureTable(ctx, level.Collection); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, doc FROM %q ORDER BY rowid`, level.Collection))
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", ErrUnavailable, level.Collection, err)
	}
	defer func() { _ = rows.Close() }()

	var out []record.Stored
	for rows.Next() {
		var rawID, rawDoc string
		if err := rows.Scan(&rawID, &rawDoc); err != nil {
			return nil, fmt.Errorf("scan %s: %w", level.Collection, err)
		}
		id, err := record.ParseID(rawID)
		if err != nil {
			return nil, fmt.Errorf("%s: id %q: %w", level.Collection, rawID, err)
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(rawDoc), &doc); err != nil {
			return nil, fmt.Errorf("%s: parse document %s: %w", level.Collection, rawID, err)
		}
		r, err := FromDocument(level, id, doc)
		if err != nil {
			return nil, fmt.Errorf("%s: document %s: %w", level.Collection, rawID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s: %w", ErrUnavailable, level.Collection, err)
	}
	return out, nil
}

// Count returns the number of rows in a collection table, 0 if it does not exist.
func (s *SQLite) Count(ctx context.Context, collection string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, collection).Scan(&n)
	if err != nil || n == 0 {
		return 0, err
	}
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %q`, collection)).Scan(&n)
	return n, err
}
