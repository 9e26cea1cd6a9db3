// Package schema generates the DDL that realizes object schemas as physical
// tables, and computes the changes an updated schema requires.
package schema

import (
	"fmt"

	atlas "ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/sqlite"

	"github.com/syssam/objstore/dialect"
	"github.com/syssam/objstore/dialect/sql"
	"github.com/syssam/objstore/schema"
	"github.com/syssam/objstore/schema/field"
)

// Table is the physical layout of an object schema.
type Table struct {
	Name    string
	Columns []*Column
	Indexes []*Index
}

// Column is a physical column. System columns are the managed ones.
type Column struct {
	Name       string
	Type       field.ColumnType
	Nullable   bool
	Unique     bool
	PrimaryKey bool
	Default    any
	// DefaultNow sets the current timestamp as default.
	DefaultNow bool
	System     bool
}

// Index is a physical index.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
	Desc    bool
	// Live restricts the index to rows that are not soft-deleted.
	Live bool
}

// NewTable returns the physical layout of s: the primary key, the user
// columns, the managed columns, unique column indexes, declared indexes and
// the listing index.
func NewTable(s *schema.Schema) *Table {
	t := &Table{Name: s.TableName}
	t.Columns = append(t.Columns, &Column{
		Name:       schema.ColumnID,
		Type:       field.String(),
		PrimaryKey: true,
		System:     true,
	})
	for _, c := range s.Columns {
		t.Columns = append(t.Columns, NewColumn(c))
	}
	for _, name := range s.SystemColumns()[1:] {
		c := &Column{Name: name, System: true}
		if name == schema.ColumnDeleted {
			c.Type, c.Default = field.Boolean(), false
		} else {
			c.Type, c.DefaultNow = field.Timestamp(), true
		}
		t.Columns = append(t.Columns, c)
	}
	for _, c := range s.Columns {
		if c.Unique {
			t.Indexes = append(t.Indexes, UniqueIndex(s, c.Name))
		}
	}
	for _, def := range s.Indexes {
		t.Indexes = append(t.Indexes, &Index{
			Name:    s.IndexName(def),
			Columns: def.Columns,
			Unique:  def.Unique,
		})
	}
	if idx := DefaultIndex(s); idx != nil {
		t.Indexes = append(t.Indexes, idx)
	}
	return t
}

// NewColumn returns the physical column of a user column definition.
func NewColumn(c schema.ColumnDefinition) *Column {
	return &Column{
		Name:     c.Name,
		Type:     c.Type,
		Nullable: c.Nullable,
		Unique:   c.Unique,
		Default:  c.Default,
	}
}

// UniqueIndex returns the index backing a unique column.
func UniqueIndex(s *schema.Schema, column string) *Index {
	return &Index{Name: s.UniqueIndexName(column), Columns: []string{column}, Unique: true}
}

// DefaultIndex returns the listing index on created_at, or nil if the
// schema does not manage created_at.
func DefaultIndex(s *schema.Schema) *Index {
	if !s.Flags.AutoCreatedAt {
		return nil
	}
	return &Index{
		Name:    s.DefaultIndexName(),
		Columns: []string{schema.ColumnCreatedAt},
		Desc:    true,
		Live:    s.Flags.SoftDelete,
	}
}

// Generator renders DDL statements for one dialect.
type Generator struct {
	dialect string
}

// NewGenerator returns a Generator for the given dialect.
func NewGenerator(name string) (*Generator, error) {
	switch name {
	case dialect.Postgres, dialect.SQLite:
		return &Generator{dialect: name}, nil
	default:
		return nil, fmt.Errorf("dialect/sql/schema: unsupported dialect %q", name)
	}
}

// Dialect returns the generator dialect.
func (g *Generator) Dialect() string {
	return g.dialect
}

// ColumnType returns the database type of a column type. SQLite stores
// decimals as text, see sql.Builder.Numeric.
func (g *Generator) ColumnType(t field.ColumnType) (string, error) {
	var at atlas.Type
	if g.dialect == dialect.Postgres {
		switch t.Type {
		case field.TypeString, field.TypeEnum:
			at = &atlas.StringType{T: postgres.TypeText}
		case field.TypeInteger:
			at = &atlas.IntegerType{T: postgres.TypeBigInt}
		case field.TypeDecimal:
			t = t.Normalize()
			at = &atlas.DecimalType{T: postgres.TypeNumeric, Precision: t.Precision, Scale: t.Scale}
		case field.TypeBool:
			at = &atlas.BoolType{T: postgres.TypeBoolean}
		case field.TypeTimestamp:
			at = &atlas.TimeType{T: postgres.TypeTimestampWTZ}
		case field.TypeJSON:
			at = &atlas.JSONType{T: postgres.TypeJSONB}
		default:
			return "", fmt.Errorf("dialect/sql/schema: unknown column type %q", t.Type)
		}
		return postgres.FormatType(at)
	}
	switch t.Type {
	case field.TypeString, field.TypeEnum:
		at = &atlas.StringType{T: "text"}
	case field.TypeInteger:
		at = &atlas.IntegerType{T: "integer"}
	case field.TypeDecimal:
		// NUMERIC affinity would store the value as a float. Text keeps every
		// digit; comparisons cast it back to a number.
		at = &atlas.StringType{T: "text"}
	case field.TypeBool:
		at = &atlas.BoolType{T: "boolean"}
	case field.TypeTimestamp:
		at = &atlas.TimeType{T: "datetime"}
	case field.TypeJSON:
		at = &atlas.JSONType{T: "json"}
	default:
		return "", fmt.Errorf("dialect/sql/schema: unknown column type %q", t.Type)
	}
	return sqlite.FormatType(at)
}

// idType returns the type of primary key columns.
func (g *Generator) idType() (string, error) {
	if g.dialect == dialect.Postgres {
		return postgres.FormatType(&atlas.StringType{T: postgres.TypeVarChar, Size: 255})
	}
	return sqlite.FormatType(&atlas.StringType{T: "text"})
}

// CreateTable returns the statements creating t and its indexes.
func (g *Generator) CreateTable(t *Table) ([]string, error) {
	b := sql.Dialect(g.dialect)
	b.WriteString("CREATE TABLE ").Ident(t.Name).WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		g.column(b, c)
	}
	b.WriteByte(')')
	stmt, _, err := b.Query()
	if err != nil {
		return nil, err
	}
	stmts := []string{stmt}
	for _, idx := range t.Indexes {
		s, err := g.CreateIndex(t.Name, idx)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

// DropTable returns the statement dropping a table.
func (g *Generator) DropTable(name string) (string, error) {
	stmt, _, err := sql.Dialect(g.dialect).WriteString("DROP TABLE ").Ident(name).Query()
	return stmt, err
}

// AddColumn returns the statements adding c to table. The default is
// applied by the database to existing rows.
func (g *Generator) AddColumn(table string, c *Column, unique *Index) ([]string, error) {
	b := sql.Dialect(g.dialect)
	b.WriteString("ALTER TABLE ").Ident(table).WriteString(" ADD COLUMN ")
	g.column(b, c)
	stmt, _, err := b.Query()
	if err != nil {
		return nil, err
	}
	stmts := []string{stmt}
	if unique != nil {
		s, err := g.CreateIndex(table, unique)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

// DropColumn returns the statements dropping column from table. A unique
// index backing the column is dropped first.
func (g *Generator) DropColumn(table, column string, unique *Index) ([]string, error) {
	var stmts []string
	if unique != nil {
		s, err := g.DropIndex(unique)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	stmt, _, err := sql.Dialect(g.dialect).
		WriteString("ALTER TABLE ").Ident(table).
		WriteString(" DROP COLUMN ").Ident(column).
		Query()
	if err != nil {
		return nil, err
	}
	return append(stmts, stmt), nil
}

// CreateIndex returns the statement creating idx on table.
func (g *Generator) CreateIndex(table string, idx *Index) (string, error) {
	b := sql.Dialect(g.dialect)
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ").Ident(idx.Name).WriteString(" ON ").Ident(table).WriteString(" (")
	for i, c := range idx.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c)
		if idx.Desc {
			b.WriteString(" DESC")
		}
	}
	b.WriteByte(')')
	if idx.Live {
		b.WriteString(" WHERE ").Ident(schema.ColumnDeleted).WriteString(" = FALSE")
	}
	stmt, _, err := b.Query()
	return stmt, err
}

// DropIndex returns the statement dropping idx.
func (g *Generator) DropIndex(idx *Index) (string, error) {
	stmt, _, err := sql.Dialect(g.dialect).WriteString("DROP INDEX ").Ident(idx.Name).Query()
	return stmt, err
}

// column writes a column definition.
func (g *Generator) column(b *sql.Builder, c *Column) {
	b.Ident(c.Name).Pad()
	typ, err := g.ColumnType(c.Type)
	if c.PrimaryKey {
		typ, err = g.idType()
	}
	if err != nil {
		b.AddError(err)
		return
	}
	b.WriteString(typ)
	switch {
	case c.PrimaryKey:
		b.WriteString(" PRIMARY KEY")
		return
	case c.System || !c.Nullable:
		b.WriteString(" NOT NULL")
	}
	switch {
	case c.DefaultNow:
		b.WriteString(" DEFAULT ").Now()
	case c.Default != nil:
		v, err := c.Type.Value(c.Default)
		if err != nil {
			b.AddError(err)
			return
		}
		lit, err := sql.Literal(g.dialect, v)
		if err != nil {
			b.AddError(fmt.Errorf("dialect/sql/schema: default of %q: %w", c.Name, err))
			return
		}
		b.WriteString(" DEFAULT ").WriteString(lit)
	}
	if c.Type.Type == field.TypeEnum {
		b.WriteString(" CHECK (").Ident(c.Name).WriteString(" IN (")
		for i, v := range c.Type.Values {
			if i > 0 {
				b.WriteString(", ")
			}
			lit, err := sql.Literal(g.dialect, v)
			if err != nil {
				b.AddError(fmt.Errorf("dialect/sql/schema: enum value of %q: %w", c.Name, err))
				return
			}
			b.WriteString(lit)
		}
		b.WriteString("))")
	}
}

// CreateMetadataTable returns the statement creating the schema registry
// table if it does not exist.
func (g *Generator) CreateMetadataTable(name string) (string, error) {
	idType, err := g.idType()
	if err != nil {
		return "", err
	}
	text, err := g.ColumnType(field.String())
	if err != nil {
		return "", err
	}
	boolean, err := g.ColumnType(field.Boolean())
	if err != nil {
		return "", err
	}
	ts, err := g.ColumnType(field.Timestamp())
	if err != nil {
		return "", err
	}
	b := sql.Dialect(g.dialect)
	b.WriteString("CREATE TABLE IF NOT EXISTS ").SystemIdent(name).WriteString(" (")
	b.Ident("id").Pad().WriteString(idType).WriteString(" PRIMARY KEY, ")
	b.Ident("name").Pad().WriteString(text).WriteString(" NOT NULL UNIQUE, ")
	b.Ident("description").Pad().WriteString(text).WriteString(" NOT NULL DEFAULT '', ")
	b.Ident("table_name").Pad().WriteString(text).WriteString(" NOT NULL UNIQUE, ")
	b.Ident("columns").Pad().WriteString(text).WriteString(" NOT NULL, ")
	b.Ident("indexes").Pad().WriteString(text).WriteString(" NOT NULL, ")
	b.Ident("flags").Pad().WriteString(text).WriteString(" NOT NULL, ")
	b.Ident("active").Pad().WriteString(boolean).WriteString(" NOT NULL DEFAULT TRUE, ")
	b.Ident("created_at").Pad().WriteString(ts).WriteString(" NOT NULL DEFAULT ").Now().WriteString(", ")
	b.Ident("updated_at").Pad().WriteString(ts).WriteString(" NOT NULL DEFAULT ").Now()
	b.WriteByte(')')
	stmt, _, err := b.Query()
	return stmt, err
}
