package source

import (
	"database/sql"
	"fmt"
	"regexp"

	"github.com/agentic-research/regionseed/api"
	"github.com/agentic-research/regionseed/internal/record"
	"github.com/ohler55/ojg/oj"
	_ "modernc.org/sqlite"
)

var tableRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// loadSQLite reads one JSON object per row from the `record` column of a
// table (the level selector, "results" by default), in rowid order.
func loadSQLite(dbPath string, level api.Level) ([]record.Source, error) {
	table := level.Selector
	if table == "" {
		table = DefaultTable
	}
	if !tableRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	rows, err := db.Query(fmt.Sprintf("SELECT record FROM %q ORDER BY rowid", table))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var records []record.Source
	line := 0
	for rows.Next() {
		line++
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		parsed, err := oj.ParseString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: parse record json: %w", ErrInvalid, line, err)
		}
		r, err := fromObject(level, line, parsed)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}
