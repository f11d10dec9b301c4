package seed

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/regionseed/internal/record"
)

// Batch is the output of one stage builder: the records to insert at a
// level and the source records they were built from.
type Batch struct {
	Records []record.Stored
	Sources []record.Source // Sources[i] produced Records[i]
	// Missed holds the dataset positions (0-based) whose parent reference
	// did not resolve. Those records are not part of the batch.
	Missed *roaring.Bitmap
}

// BuildRoots maps every root source record to a stored record with a
// fresh generated ID.
func BuildRoots(sources []record.Source, newID func() record.ID) Batch {
	b := Batch{
		Records: make([]record.Stored, 0, len(sources)),
		Sources: make([]record.Source, 0, len(sources)),
		Missed:  roaring.New(),
	}
	for _, src := range sources {
		b.add(src, record.Stored{ID: newID(), Name: src.Name, Code: src.Code})
	}
	return b
}

// BuildChildren maps every source record whose parent reference resolves
// through parents to a stored record pointing at the parent's generated ID.
// Unresolved records are left out and recorded in Batch.Missed.
func BuildChildren(sources []record.Source, parents *Resolver, newID func() record.ID) Batch {
	b := Batch{
		Records: make([]record.Stored, 0, len(sources)),
		Sources: make([]record.Source, 0, len(sources)),
		Missed:  roaring.New(),
	}
	for i, src := range sources {
		parentID, ok := parents.Resolve(src.ParentID)
		if !ok {
			b.Missed.Add(uint32(i))
			continue
		}
		b.add(src, record.Stored{ID: newID(), Name: src.Name, Code: src.Code, ParentID: parentID})
	}
	return b
}

func (b *Batch) add(src record.Source, r record.Stored) {
	b.Sources = append(b.Sources, src)
	b.Records = append(b.Records, r)
}

// MissedCount returns the number of records left out of the batch.
func (b Batch) MissedCount() int {
	if b.Missed == nil {
		return 0
	}
	return int(b.Missed.GetCardinality())
}

// MissedIDs returns the source IDs of up to limit records left out of the
// batch, in dataset order. sources must be the dataset the batch was built from.
func (b Batch) MissedIDs(sources []record.Source, limit int) []string {
	if b.MissedCount() == 0 {
		return nil
	}
	var ids []string
	it := b.Missed.Iterator()
	for it.HasNext() && len(ids) < limit {
		pos := int(it.Next())
		if pos < len(sources) {
			ids = append(ids, sources[pos].ID)
		}
	}
	return ids
}
