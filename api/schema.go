package api

import (
	"fmt"
	"regexp"
)

// Hierarchy describes the chain of levels to seed, root first.
// Each level's records reference a record of the level before it.
type Hierarchy struct {
	// Version of the regionseed topology.
	Version string `hcl:"version,optional" json:"version"`
	// Levels ordered from the root down to the leaves.
	Levels []Level `hcl:"level,block" json:"levels,omitempty"`
}

// Level is one tier of the hierarchy (province, city, county).
type Level struct {
	// Name of the level. Used in logs, reports and as the default
	// parent-reference field of the level below.
	Name string `hcl:"name,label" json:"name"`
	// Collection (Mongo) or table (SQLite) receiving the stored records.
	Collection string `hcl:"collection,optional" json:"collection,omitempty"`
	// Source is the path of the input dataset, relative to the data dir.
	Source string `hcl:"source,optional" json:"source,omitempty"`
	// Format of the input dataset: json, yaml, csv or sqlite.
	// Inferred from the Source extension when empty.
	Format string `hcl:"format,optional" json:"format,omitempty"`
	// Selector is a JSONPath selecting the record objects (json, yaml),
	// or the table name holding them (sqlite).
	Selector string `hcl:"selector,optional" json:"selector,omitempty"`
	// Input names the fields read from each source record.
	Input *InputFields `hcl:"input,block" json:"input,omitempty"`
	// Output names the fields written to each stored document.
	Output *OutputFields `hcl:"output,block" json:"output,omitempty"`
}

// InputFields maps source record fields.
type InputFields struct {
	ID     string `hcl:"id,optional" json:"id,omitempty"`
	Name   string `hcl:"name,optional" json:"name,omitempty"`
	Code   string `hcl:"code,optional" json:"code,omitempty"`
	Parent string `hcl:"parent,optional" json:"parent,omitempty"`
}

// OutputFields maps stored document fields.
type OutputFields struct {
	Name   string `hcl:"name,optional" json:"name,omitempty"`
	Code   string `hcl:"code,optional" json:"code,omitempty"`
	Parent string `hcl:"parent,optional" json:"parent,omitempty"`
}

// DefaultHierarchy returns the province → city → county chain with the
// collection and field names of the reference dataset.
func DefaultHierarchy() *Hierarchy {
	h := &Hierarchy{
		Version: "v1",
		Levels: []Level{
			{Name: "province", Collection: "provinces", Source: "province.json"},
			{Name: "city", Collection: "cities", Source: "city.json"},
			{Name: "county", Collection: "counties", Source: "county.json"},
		},
	}
	h.Normalize()
	return h
}

// Normalize fills unset fields with their defaults. Field names default to
// id/name/code on input, <level>_name/<level>_code on output, and the
// parent reference to <parent> on input and <parent>_id on output.
func (h *Hierarchy) Normalize() {
	for i := range h.Levels {
		l := &h.Levels[i]
		if l.Collection == "" {
			l.Collection = l.Name
		}
		if l.Source == "" {
			l.Source = l.Name + ".json"
		}
		if l.Input == nil {
			l.Input = &InputFields{}
		}
		if l.Output == nil {
			l.Output = &OutputFields{}
		}
		setDefault(&l.Input.ID, "id")
		setDefault(&l.Input.Name, "name")
		setDefault(&l.Input.Code, "code")
		setDefault(&l.Output.Name, l.Name+"_name")
		setDefault(&l.Output.Code, l.Name+"_code")
		if i > 0 {
			parent := h.Levels[i-1].Name
			setDefault(&l.Input.Parent, parent)
			setDefault(&l.Output.Parent, parent+"_id")
		} else {
			// The root level has no parent reference.
			l.Input.Parent = ""
			l.Output.Parent = ""
		}
	}
}

func setDefault(field *string, v string) {
	if *field == "" {
		*field = v
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks a normalized hierarchy.
func (h *Hierarchy) Validate() error {
	if len(h.Levels) == 0 {
		return fmt.Errorf("hierarchy has no levels")
	}
	names := make(map[string]bool, len(h.Levels))
	collections := make(map[string]bool, len(h.Levels))
	for i, l := range h.Levels {
		if l.Name == "" {
			return fmt.Errorf("level %d: name is required", i)
		}
		if names[l.Name] {
			return fmt.Errorf("level %q: duplicate name", l.Name)
		}
		names[l.Name] = true
		if !identRe.MatchString(l.Collection) {
			return fmt.Errorf("level %q: invalid collection name %q", l.Name, l.Collection)
		}
		if collections[l.Collection] {
			return fmt.Errorf("level %q: collection %q used by another level", l.Name, l.Collection)
		}
		collections[l.Collection] = true
		if l.Output.Name == l.Output.Code {
			return fmt.Errorf("level %q: output name and code fields collide", l.Name)
		}
		if i > 0 && l.Input.Parent == "" {
			return fmt.Errorf("level %q: input parent field is required", l.Name)
		}
		for _, f := range []string{l.Output.Name, l.Output.Code, l.Output.Parent} {
			if f == "_id" || f == "id" {
				return fmt.Errorf("level %q: output field %q is reserved", l.Name, f)
			}
		}
	}
	return nil
}

// IsRoot reports whether the level at index i is the root level.
func (h *Hierarchy) IsRoot(i int) bool { return i == 0 }

// IsLeaf reports whether the level at index i is the last level.
func (h *Hierarchy) IsLeaf(i int) bool { return i == len(h.Levels)-1 }
