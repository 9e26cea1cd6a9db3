// Package index declares secondary and composite unique indexes of a schema.
package index

import (
	"slices"
	"strings"
)

// Definition describes one index over schema columns. A unique definition is
// a registered composite unique constraint and may serve as upsert conflict
// target.
type Definition struct {
	Name    string   `json:"name" yaml:"name" msgpack:"name"`
	Columns []string `json:"columns" yaml:"columns" msgpack:"columns"`
	Unique  bool     `json:"unique,omitempty" yaml:"unique,omitempty" msgpack:"unique,omitempty"`
}

// Builder for indexes on columns.
type Builder struct {
	def Definition
}

// Columns creates an index on the given columns.
//
//	index.Columns("first", "last").Unique()
func Columns(columns ...string) *Builder {
	return &Builder{def: Definition{Columns: columns}}
}

// Unique sets the index to be a unique index.
func (b *Builder) Unique() *Builder {
	b.def.Unique = true
	return b
}

// Name sets the logical index name. The physical name is prefixed with the
// table name when the index is created.
func (b *Builder) Name(name string) *Builder {
	b.def.Name = name
	return b
}

// Definition returns the index definition. An unnamed index is named after
// its columns.
func (b *Builder) Definition() Definition {
	d := b.def
	d.Columns = slices.Clone(d.Columns)
	if d.Name == "" {
		d.Name = d.DefaultName()
	}
	return d
}

// DefaultName returns the name derived from the index columns.
func (d Definition) DefaultName() string {
	name := strings.Join(d.Columns, "_")
	if d.Unique {
		return name + "_key"
	}
	return name + "_idx"
}

// References reports whether the index covers the given column.
func (d Definition) References(column string) bool {
	return slices.Contains(d.Columns, column)
}

// Matches reports whether the index is defined on exactly the given column
// set, ignoring order.
func (d Definition) Matches(columns []string) bool {
	if len(columns) != len(d.Columns) {
		return false
	}
	a, b := slices.Clone(d.Columns), slices.Clone(columns)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// Equal reports whether two definitions are identical.
func (d Definition) Equal(o Definition) bool {
	return d.Name == o.Name && d.Unique == o.Unique && slices.Equal(d.Columns, o.Columns)
}
