package seed

import "fmt"

// Phase is the lifecycle state of one stage within a run.
//
//	Pending -> Inserting -> Inserted
//	                     -> Failed
//
// Stages after a failed one stay Pending.
type Phase int

const (
	PhasePending Phase = iota
	PhaseInserting
	PhaseInserted
	PhaseFailed
)

var phaseNames = [...]string{
	PhasePending:   "pending",
	PhaseInserting: "inserting",
	PhaseInserted:  "inserted",
	PhaseFailed:    "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText renders the phase by name in manifests.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Done reports whether the phase is terminal.
func (p Phase) Done() bool {
	return p == PhaseInserted || p == PhaseFailed
}
