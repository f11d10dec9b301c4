package record

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ID is the generated identifier of a stored record. It is the only
// identifier form present once a record is persisted.
type ID = primitive.ObjectID

// NilID is the zero ID. Root records carry it as their ParentID.
var NilID = primitive.NilObjectID

// NewID returns a fresh, globally unique ID.
func NewID() ID {
	return primitive.NewObjectID()
}

// ParseID decodes the hex form produced by ID.Hex.
func ParseID(s string) (ID, error) {
	return primitive.ObjectIDFromHex(s)
}

// Source is one record as read from an input dataset.
// ID and ParentID are the dataset's own textual identifiers; they only
// express parent/child relationships before loading.
type Source struct {
	ID       string
	Name     string
	Code     string
	ParentID string // empty for the root level
	Line     int    // 1-based position in the dataset
}

// Stored is the persisted shape of a record.
type Stored struct {
	ID       ID
	Name     string
	Code     string
	ParentID ID // NilID for the root level
}

// HasParent reports whether the record references a parent level record.
func (s Stored) HasParent() bool {
	return !s.ParentID.IsZero()
}
