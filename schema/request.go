package schema

import (
	"slices"

	"github.com/syssam/objstore"
	"github.com/syssam/objstore/schema/index"
)

// CreateSchemaRequest declares a new schema.
type CreateSchemaRequest struct {
	Name string `json:"name" yaml:"name"`
	// TableName is derived from Name when empty.
	TableName   string             `json:"table_name,omitempty" yaml:"table_name,omitempty"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Columns     []ColumnDefinition `json:"columns" yaml:"columns"`
	Indexes     []index.Definition `json:"indexes,omitempty" yaml:"indexes,omitempty"`
	// Flags overrides the store defaults when set.
	Flags *Flags `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// Schema validates the request and returns the schema it declares. Flags
// not given by the request are taken from defaults.
func (r CreateSchemaRequest) Schema(defaults Flags) (*Schema, error) {
	s := &Schema{
		Name:        r.Name,
		TableName:   r.TableName,
		Description: r.Description,
		Columns:     slices.Clone(r.Columns),
		Flags:       defaults,
		Active:      true,
	}
	if s.TableName == "" && nameRe.MatchString(r.Name) {
		s.TableName = TableNameOf(r.Name)
	}
	if r.Flags != nil {
		s.Flags = *r.Flags
	}
	for _, idx := range r.Indexes {
		idx.Columns = slices.Clone(idx.Columns)
		s.Indexes = append(s.Indexes, idx)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateSchemaRequest changes an existing schema. Nil fields are left
// unchanged; Columns and Indexes replace the full set when given.
type UpdateSchemaRequest struct {
	Description *string            `json:"description,omitempty" yaml:"description,omitempty"`
	Columns     []ColumnDefinition `json:"columns,omitempty" yaml:"columns,omitempty"`
	Indexes     []index.Definition `json:"indexes,omitempty" yaml:"indexes,omitempty"`
}

// DropPolicy decides whether a column may be dropped while the unique
// indexes in uniques still reference it. A nil error permits the drop, and
// the referencing indexes are dropped together with the column.
type DropPolicy func(table, column string, uniques []index.Definition) error

// RejectReferencedColumns refuses to drop a column that participates in a
// registered unique constraint.
func RejectReferencedColumns(_, column string, uniques []index.Definition) error {
	if len(uniques) > 0 {
		return objstore.NewColumnInUseError(column, uniques[0].Name)
	}
	return nil
}

// AllowDropReferenced drops referencing unique indexes along with the column.
func AllowDropReferenced(string, string, []index.Definition) error {
	return nil
}

// Apply returns the schema current becomes after the update. Columns dropped
// by the update are checked against policy, and indexes referencing them
// are removed from the result. The result is validated.
func (r UpdateSchemaRequest) Apply(current *Schema, policy DropPolicy) (*Schema, error) {
	if policy == nil {
		policy = RejectReferencedColumns
	}
	next := current.Clone()
	if r.Description != nil {
		next.Description = *r.Description
	}
	if r.Columns != nil {
		next.Columns = slices.Clone(r.Columns)
	}
	if r.Indexes != nil {
		next.Indexes = next.Indexes[:0]
		for _, idx := range r.Indexes {
			idx.Columns = slices.Clone(idx.Columns)
			if idx.Name == "" {
				idx.Name = idx.DefaultName()
			}
			next.Indexes = append(next.Indexes, idx)
		}
	}
	for _, c := range current.Columns {
		if _, ok := next.Column(c.Name); ok {
			continue
		}
		var uniques []index.Definition
		for _, idx := range next.Indexes {
			if idx.Unique && idx.References(c.Name) {
				uniques = append(uniques, idx)
			}
		}
		if err := policy(current.TableName, c.Name, uniques); err != nil {
			return nil, err
		}
		next.Indexes = slices.DeleteFunc(next.Indexes, func(idx index.Definition) bool {
			return idx.References(c.Name)
		})
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}
