package schema

import (
	"fmt"
	"strings"

	"github.com/syssam/objstore"
	"github.com/syssam/objstore/schema"
	"github.com/syssam/objstore/schema/index"
)

// Plan holds the physical changes that turn one version of a schema into
// the next, and the problems that forbid applying them.
type Plan struct {
	Table         string
	DropIndexes   []*Index
	DropColumns   []*ColumnChange
	AddColumns    []*ColumnChange
	CreateIndexes []*Index
	Errors        []error
}

// ColumnChange is a column added or dropped by a plan, together with the
// unique index backing it, if any.
type ColumnChange struct {
	Column *Column
	Unique *Index
}

// HasErrors returns true if the plan cannot be applied.
func (p *Plan) HasErrors() bool {
	return len(p.Errors) > 0
}

// Err returns the plan errors as one error, or nil.
func (p *Plan) Err() error {
	return objstore.NewAggregateError(p.Errors...)
}

// Empty reports whether the plan changes nothing.
func (p *Plan) Empty() bool {
	return len(p.DropIndexes)+len(p.DropColumns)+len(p.AddColumns)+len(p.CreateIndexes) == 0
}

// String returns a human-readable summary of the plan.
func (p *Plan) String() string {
	var sb strings.Builder
	for _, idx := range p.DropIndexes {
		fmt.Fprintf(&sb, "  - drop index %s\n", idx.Name)
	}
	for _, c := range p.DropColumns {
		fmt.Fprintf(&sb, "  - drop column %s.%s\n", p.Table, c.Column.Name)
	}
	for _, c := range p.AddColumns {
		fmt.Fprintf(&sb, "  - add column %s.%s %s\n", p.Table, c.Column.Name, c.Column.Type)
	}
	for _, idx := range p.CreateIndexes {
		fmt.Fprintf(&sb, "  - create index %s\n", idx.Name)
	}
	for _, err := range p.Errors {
		fmt.Fprintf(&sb, "  - error: %v\n", err)
	}
	if sb.Len() == 0 {
		return "No changes"
	}
	return sb.String()
}

// Diff computes the plan from current to desired. Both must describe the
// same table. Changing the type, nullability, uniqueness or default of an
// existing column is unsupported, and so is adding a not-null column
// without default.
//
//	plan := schema.Diff(current, desired)
//	if plan.HasErrors() {
//	    return plan.Err()
//	}
//	stmts, err := gen.Alter(plan)
func Diff(current, desired *schema.Schema) *Plan {
	p := &Plan{Table: current.TableName}
	for _, c := range current.Columns {
		if _, ok := desired.Column(c.Name); ok {
			continue
		}
		change := &ColumnChange{Column: NewColumn(c)}
		if c.Unique {
			change.Unique = UniqueIndex(current, c.Name)
		}
		p.DropColumns = append(p.DropColumns, change)
	}
	for _, d := range desired.Columns {
		c, ok := current.Column(d.Name)
		if !ok {
			if d.Required() {
				p.Errors = append(p.Errors, objstore.NewColumnDefinitionError(d.Name,
					"a not-null column without default cannot be added to an existing table"))
				continue
			}
			change := &ColumnChange{Column: NewColumn(d)}
			if d.Unique {
				change.Unique = UniqueIndex(desired, d.Name)
			}
			p.AddColumns = append(p.AddColumns, change)
			continue
		}
		switch {
		case !c.Type.Equal(d.Type):
			p.Errors = append(p.Errors, objstore.NewUnsupportedOperationError(d.Name,
				fmt.Sprintf("type change from %s to %s", c.Type, d.Type)))
		case c.Nullable != d.Nullable:
			p.Errors = append(p.Errors, objstore.NewUnsupportedOperationError(d.Name, "nullability change"))
		case c.Unique != d.Unique:
			p.Errors = append(p.Errors, objstore.NewUnsupportedOperationError(d.Name, "unique constraint change"))
		case !c.Equal(d):
			p.Errors = append(p.Errors, objstore.NewUnsupportedOperationError(d.Name, "default change"))
		}
	}
	for _, idx := range current.Indexes {
		if n, ok := findIndex(desired, idx.Name); !ok || !n.Equal(idx) {
			p.DropIndexes = append(p.DropIndexes, &Index{Name: current.IndexName(idx), Columns: idx.Columns, Unique: idx.Unique})
		}
	}
	for _, idx := range desired.Indexes {
		if o, ok := findIndex(current, idx.Name); !ok || !o.Equal(idx) {
			p.CreateIndexes = append(p.CreateIndexes, &Index{Name: desired.IndexName(idx), Columns: idx.Columns, Unique: idx.Unique})
		}
	}
	return p
}

func findIndex(s *schema.Schema, name string) (index.Definition, bool) {
	for _, idx := range s.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return index.Definition{}, false
}

// Alter returns the statements of a plan in execution order: indexes are
// dropped before the columns they cover and created after the columns they
// need.
func (g *Generator) Alter(p *Plan) ([]string, error) {
	if p.HasErrors() {
		return nil, p.Err()
	}
	var stmts []string
	for _, idx := range p.DropIndexes {
		s, err := g.DropIndex(idx)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	for _, c := range p.DropColumns {
		s, err := g.DropColumn(p.Table, c.Column.Name, c.Unique)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s...)
	}
	for _, c := range p.AddColumns {
		s, err := g.AddColumn(p.Table, c.Column, c.Unique)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s...)
	}
	for _, idx := range p.CreateIndexes {
		s, err := g.CreateIndex(p.Table, idx)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}
