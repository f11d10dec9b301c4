// Package seed loads a multi-level region hierarchy into a store, one level
// per stage, rewriting each child's parent reference from the dataset's
// textual ID to the identifier the store holds for the parent.
package seed

import (
	"context"
	"fmt"
	"io"

	"github.com/agentic-research/regionseed/api"
	"github.com/agentic-research/regionseed/internal/record"
	"github.com/agentic-research/regionseed/internal/store"
	"github.com/sirupsen/logrus"
)

// Engine drives a seeding run.
type Engine struct {
	Hierarchy *api.Hierarchy
	Store     store.Store
	Log       logrus.FieldLogger

	// NewID generates record identifiers; record.NewID when nil.
	NewID func() record.ID
}

// NewEngine returns an engine seeding h into s, generating IDs with record.NewID.
func NewEngine(h *api.Hierarchy, s store.Store, log logrus.FieldLogger) *Engine {
	return &Engine{
		Hierarchy: h,
		Store:     s,
		Log:       log,
		NewID:     record.NewID,
	}
}

// Run seeds datasets[i] into level i, strictly in hierarchy order.
//
// Each stage inserts its whole batch, then reads the level back so the next
// stage can resolve parent references against the persisted identifiers.
// The first failing insert or read-back aborts the run: the returned error
// is a *StageError, and the report shows the failed stage while every later
// stage stays pending. Earlier stages are not rolled back.
func (e *Engine) Run(ctx context.Context, datasets [][]record.Source) (*Report, error) {
	levels := e.Hierarchy.Levels
	if len(datasets) != len(levels) {
		return nil, fmt.Errorf("got %d datasets for %d levels", len(datasets), len(levels))
	}
	newID := e.NewID
	if newID == nil {
		newID = record.NewID
	}

	report := newReport(e.Hierarchy)
	log := e.logger().WithField("run", report.RunID.String())
	log.WithField("levels", len(levels)).Info("seed run started")

	var parents *Resolver
	for i, level := range levels {
		if err := ctx.Err(); err != nil {
			return report, report.fail(i, &StageError{Level: level.Name, Op: OpInsert, Err: fmt.Errorf("%w: %w", store.ErrUnavailable, err)})
		}
		st := &report.Stages[i]
		slog := log.WithFields(logrus.Fields{"stage": level.Name, "collection": level.Collection})

		var batch Batch
		if e.Hierarchy.IsRoot(i) {
			batch = BuildRoots(datasets[i], newID)
		} else {
			batch = BuildChildren(datasets[i], parents, newID)
		}
		st.Sources = len(datasets[i])
		st.Built = len(batch.Records)
		st.Missed = batch.MissedCount()
		st.MissedIDs = batch.MissedIDs(datasets[i], maxMissedIDs)
		if st.Missed > 0 {
			slog.WithFields(logrus.Fields{
				"missed":     st.Missed,
				"source_ids": st.MissedIDs,
			}).Warn("records with unresolved parent skipped")
		}

		st.Phase = PhaseInserting
		if len(batch.Records) == 0 {
			slog.Info("empty batch, nothing to insert")
		} else if err := e.Store.InsertMany(ctx, level, batch.Records); err != nil {
			slog.WithError(err).Error("insert failed")
			return report, report.fail(i, &StageError{Level: level.Name, Op: OpInsert, Err: err})
		}
		st.Written = len(batch.Records)
		slog.WithField("records", st.Written).Info("batch inserted")

		if e.Hierarchy.IsLeaf(i) {
			st.Phase = PhaseInserted
			break
		}

		readBack, err := e.Store.FindAll(ctx, level)
		if err != nil {
			slog.WithError(err).Error("read-back failed")
			return report, report.fail(i, &StageError{Level: level.Name, Op: OpReadBack, Err: err})
		}
		st.ReadBack = len(readBack)
		parents = NewResolver(readBack, batch)
		st.Phase = PhaseInserted
		slog.WithFields(logrus.Fields{
			"read_back":  st.ReadBack,
			"resolvable": parents.Len(),
		}).Debug("parent level read back")
		if parents.Unmatched > 0 {
			slog.WithField("unmatched", parents.Unmatched).Debug("read-back records not in this run's sources")
		}
	}

	report.finish()
	log.Info(report.StatusLine())
	return report, nil
}

func (e *Engine) logger() logrus.FieldLogger {
	if e.Log != nil {
		return e.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
