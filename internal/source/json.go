package source

import (
	"fmt"
	"os"

	"github.com/agentic-research/regionseed/api"
	"github.com/agentic-research/regionseed/internal/record"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"gopkg.in/yaml.v3"
)

func loadJSON(path string, level api.Level) ([]record.Source, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := oj.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%w: parse json: %w", ErrInvalid, err)
	}
	return selectRecords(data, level)
}

func loadYAML(path string, level api.Level) ([]record.Source, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data any
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %w", ErrInvalid, err)
	}
	return selectRecords(data, level)
}

// selectRecords runs the level's JSONPath selector against a decoded
// document and converts each match into a source record.
func selectRecords(data any, level api.Level) ([]record.Source, error) {
	selector := level.Selector
	if selector == "" {
		selector = DefaultSelector
	}
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}

	matches := x.Get(data)
	records := make([]record.Source, 0, len(matches))
	for i, m := range matches {
		r, err := fromObject(level, i+1, m)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
