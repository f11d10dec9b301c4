package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agentic-research/regionseed/api"
	"github.com/agentic-research/regionseed/internal/record"
)

// loadCSV reads a headered CSV file. Columns are matched to input fields
// by header name; the header row is line 1.
func loadCSV(path string, level api.Level) ([]record.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read header: %w", ErrInvalid, err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}

	var records []record.Source
	line := 1
	for {
		line++
		row, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalid, line, err)
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}

		get := func(field string) (string, bool) {
			i, ok := idx[field]
			if !ok || i >= len(row) {
				return "", false
			}
			return strings.TrimSpace(row[i]), true
		}
		rec, err := fromFields(level, line, get)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
