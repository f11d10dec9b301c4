package seed

import (
	"fmt"

	"github.com/agentic-research/regionseed/api"
	"github.com/agentic-research/regionseed/internal/record"
)

// LevelCheck is the offline resolution result of one level.
type LevelCheck struct {
	Level     string
	Sources   int
	Resolved  int
	Missed    int
	MissedIDs []string
	// AmbiguousNames counts resolved records sharing a name with an earlier
	// one. Parents are matched by name after the write, so children of such
	// a record cannot be resolved.
	AmbiguousNames int
}

// Check predicts how a run would resolve datasets without touching a store.
// A record is left out when its parent was left out, or when its parent
// shares a name with an earlier record of the parent level.
func Check(h *api.Hierarchy, datasets [][]record.Source) ([]LevelCheck, error) {
	if len(datasets) != len(h.Levels) {
		return nil, fmt.Errorf("got %d datasets for %d levels", len(datasets), len(h.Levels))
	}
	checks := make([]LevelCheck, len(h.Levels))
	var included map[string]bool
	for i, level := range h.Levels {
		c := LevelCheck{Level: level.Name, Sources: len(datasets[i])}
		next := make(map[string]bool, len(datasets[i]))
		names := make(map[string]bool, len(datasets[i]))
		for _, src := range datasets[i] {
			if !h.IsRoot(i) && !included[src.ParentID] {
				c.Missed++
				if len(c.MissedIDs) < maxMissedIDs {
					c.MissedIDs = append(c.MissedIDs, src.ID)
				}
				continue
			}
			c.Resolved++
			if h.IsLeaf(i) {
				continue
			}
			if names[src.Name] {
				c.AmbiguousNames++
				continue
			}
			names[src.Name] = true
			next[src.ID] = true
		}
		checks[i] = c
		included = next
	}
	return checks, nil
}
