package seed

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentic-research/regionseed/api"
	"github.com/google/uuid"
)

// maxMissedIDs caps the source IDs kept per stage for unresolved records.
const maxMissedIDs = 20

// StageReport is the outcome of one level.
type StageReport struct {
	Level      string   `json:"level"`
	Collection string   `json:"collection"`
	Phase      Phase    `json:"phase"`
	Sources    int      `json:"sources"`
	Built      int      `json:"built"`
	Missed     int      `json:"missed"`
	Written    int      `json:"written"`
	ReadBack   int      `json:"read_back"`
	MissedIDs  []string `json:"missed_ids,omitempty"`
	Error      string   `json:"error,omitempty"`

	err error
}

// Err returns the error the stage failed with, if any.
func (s *StageReport) Err() error { return s.err }

// Report summarizes one run.
type Report struct {
	RunID      uuid.UUID     `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Stages     []StageReport `json:"stages"`
}

func newReport(h *api.Hierarchy) *Report {
	r := &Report{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
		Stages:    make([]StageReport, len(h.Levels)),
	}
	for i, level := range h.Levels {
		r.Stages[i] = StageReport{Level: level.Name, Collection: level.Collection}
	}
	return r
}

func (r *Report) fail(i int, err error) error {
	r.Stages[i].Phase = PhaseFailed
	r.Stages[i].err = err
	r.Stages[i].Error = err.Error()
	r.finish()
	return err
}

func (r *Report) finish() {
	r.FinishedAt = time.Now().UTC()
}

// Stage returns the report of the named level, or nil.
func (r *Report) Stage(level string) *StageReport {
	for i := range r.Stages {
		if r.Stages[i].Level == level {
			return &r.Stages[i]
		}
	}
	return nil
}

// Err returns the error of the failed stage, or nil if every stage was inserted.
func (r *Report) Err() error {
	for i := range r.Stages {
		if r.Stages[i].err != nil {
			return r.Stages[i].err
		}
	}
	return nil
}

// Succeeded reports whether every stage reached PhaseInserted.
func (r *Report) Succeeded() bool {
	for _, s := range r.Stages {
		if s.Phase != PhaseInserted {
			return false
		}
	}
	return true
}

// Missed returns the number of records left out across all stages.
func (r *Report) Missed() int {
	n := 0
	for _, s := range r.Stages {
		n += s.Missed
	}
	return n
}

// StatusLine renders the one-line terminal summary of the run.
func (r *Report) StatusLine() string {
	if err := r.Err(); err != nil {
		return err.Error()
	}
	var b strings.Builder
	b.WriteString("seeded")
	for _, s := range r.Stages {
		fmt.Fprintf(&b, " %s=%d", s.Level, s.Written)
	}
	return b.String()
}

// WriteManifest writes the report as seed_manifest_<run id>.json under dir
// and returns the file path.
func (r *Report) WriteManifest(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("seed_manifest_%s.json", r.RunID.String()))
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
