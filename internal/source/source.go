// Package source parses input datasets into ordered source records.
package source

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/agentic-research/regionseed/api"
	"github.com/agentic-research/regionseed/internal/record"
)

// ErrInvalid marks datasets that parse but violate the record contract
// (missing identifiers, duplicate identifiers, non-object records).
var ErrInvalid = errors.New("invalid dataset")

const (
	FormatJSON   = "json"
	FormatYAML   = "yaml"
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// DefaultSelector selects every element of a top-level array.
const DefaultSelector = "$[*]"

// DefaultTable is the table read by the sqlite format when no selector is set.
const DefaultTable = "results"

// Format returns the dataset format of a level: the configured one, or the
// one implied by the source file extension.
func Format(level api.Level) (string, error) {
	if level.Format != "" {
		f := strings.ToLower(level.Format)
		switch f {
		case FormatJSON, FormatYAML, FormatCSV, FormatSQLite:
			return f, nil
		case "yml":
			return FormatYAML, nil
		}
		return "", fmt.Errorf("level %q: unsupported format %q", level.Name, level.Format)
	}
	switch strings.ToLower(filepath.Ext(level.Source)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".csv":
		return FormatCSV, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	}
	return "", fmt.Errorf("level %q: cannot infer format of %q", level.Name, level.Source)
}

// Load reads the dataset of one level from path.
func Load(path string, level api.Level) ([]record.Source, error) {
	format, err := Format(level)
	if err != nil {
		return nil, err
	}

	var records []record.Source
	switch format {
	case FormatJSON:
		records, err = loadJSON(path, level)
	case FormatYAML:
		records, err = loadYAML(path, level)
	case FormatCSV:
		records, err = loadCSV(path, level)
	case FormatSQLite:
		records, err = loadSQLite(path, level)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := checkUnique(records); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// LoadAll reads the dataset of every level, resolving relative sources
// against dataDir. The result is indexed like h.Levels.
func LoadAll(dataDir string, h *api.Hierarchy) ([][]record.Source, error) {
	out := make([][]record.Source, len(h.Levels))
	for i, level := range h.Levels {
		path := level.Source
		if !filepath.IsAbs(path) {
			path = filepath.Join(dataDir, path)
		}
		records, err := Load(path, level)
		if err != nil {
			return nil, fmt.Errorf("level %s: %w", level.Name, err)
		}
		out[i] = records
	}
	return out, nil
}

// fromFields builds a source record through get, which looks up a field of
// the raw record by name.
func fromFields(level api.Level, line int, get func(field string) (string, bool)) (record.Source, error) {
	in := level.Input
	r := record.Source{Line: line}

	var ok bool
	if r.ID, ok = get(in.ID); !ok || r.ID == "" {
		return record.Source{}, fmt.Errorf("%w: record %d: field %q is required", ErrInvalid, line, in.ID)
	}
	if r.Name, ok = get(in.Name); !ok || r.Name == "" {
		return record.Source{}, fmt.Errorf("%w: record %d: field %q is required", ErrInvalid, line, in.Name)
	}
	r.Code, _ = get(in.Code)
	if in.Parent != "" {
		if r.ParentID, ok = get(in.Parent); !ok || r.ParentID == "" {
			return record.Source{}, fmt.Errorf("%w: record %d: field %q is required", ErrInvalid, line, in.Parent)
		}
	}
	return r, nil
}

// fromObject builds a source record from a decoded JSON or YAML object.
func fromObject(level api.Level, line int, v any) (record.Source, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return record.Source{}, fmt.Errorf("%w: record %d: expected object, got %T", ErrInvalid, line, v)
	}
	return fromFields(level, line, func(field string) (string, bool) {
		raw, ok := obj[field]
		if !ok || raw == nil {
			return "", false
		}
		return scalar(raw)
	})
}

// scalar renders a decoded scalar as text. Numeric codes are common in
// reference datasets ("code": 110000) and are kept digit for digit.
func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func checkUnique(records []record.Source) error {
	seen := make(map[string]int, len(records))
	for _, r := range records {
		if first, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: record %d: id %q already used by record %d", ErrInvalid, r.Line, r.ID, first)
		}
		seen[r.ID] = r.Line
	}
	return nil
}
