package seed

import (
	"github.com/agentic-research/regionseed/internal/record"
)

// Resolver maps a parent level's source IDs to the generated IDs the store
// holds for them. It is built once per stage from the parent level's
// read-back, which is the authoritative identifier set: the IDs assigned
// before the write are not assumed to survive it.
type Resolver struct {
	ids  map[string]record.ID
	rank map[string]int // match quality of ids[k], see NewResolver

	// Unmatched counts read-back records whose name matches no source record.
	Unmatched int
}

const (
	matchOlder = iota // same name, written before this run
	matchFresh        // same name, written by this run
	matchExact        // the record this run wrote for the source
)

// NewResolver joins read-back records to source space by name.
//
// parent is the batch that was written at the parent level. A read-back
// record named N stands for the first source record of the batch named N.
// When several read-back records stand for the same source record (name
// collisions, or data left by earlier runs), the one carrying the ID this
// run assigned to that source wins. Failing that (a store that assigns its
// own IDs), a record this run inserted wins over older data, then the first
// in read-back order wins.
func NewResolver(readBack []record.Stored, parent Batch) *Resolver {
	type target struct {
		sourceID string
		id       record.ID
	}
	byName := make(map[string]target, len(parent.Sources))
	for i, src := range parent.Sources {
		if _, ok := byName[src.Name]; !ok {
			byName[src.Name] = target{sourceID: src.ID, id: parent.Records[i].ID}
		}
	}
	assigned := make(map[record.ID]bool, len(parent.Records))
	for _, r := range parent.Records {
		assigned[r.ID] = true
	}

	res := &Resolver{
		ids:  make(map[string]record.ID, len(byName)),
		rank: make(map[string]int, len(byName)),
	}
	for _, stored := range readBack {
		t, ok := byName[stored.Name]
		if !ok {
			res.Unmatched++
			continue
		}
		rank := matchOlder
		switch {
		case stored.ID == t.id:
			rank = matchExact
		case assigned[stored.ID]:
			rank = matchFresh
		}
		if _, taken := res.ids[t.sourceID]; taken && rank <= res.rank[t.sourceID] {
			continue
		}
		res.ids[t.sourceID] = stored.ID
		res.rank[t.sourceID] = rank
	}
	return res
}

// Resolve returns the generated ID for a parent source ID.
func (r *Resolver) Resolve(sourceID string) (record.ID, bool) {
	id, ok := r.ids[sourceID]
	return id, ok
}

// Len returns the number of resolvable source IDs.
func (r *Resolver) Len() int { return len(r.ids) }
