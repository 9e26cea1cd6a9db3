package schema

import (
	"bytes"
	"encoding/json"
	"regexp"
	"slices"
	"time"

	"github.com/go-openapi/inflect"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/syssam/objstore"
	"github.com/syssam/objstore/dialect/sql"
	"github.com/syssam/objstore/schema/field"
	"github.com/syssam/objstore/schema/index"
)

// Names of the managed columns.
const (
	ColumnID        = "id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
	ColumnDeleted   = "deleted"
)

// nameRe is the shape of a schema name. Schema names are looked up by value
// and never appear in SQL text.
var nameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Flags selects the columns managed by the store.
type Flags struct {
	AutoID        bool `json:"auto_id" yaml:"auto_id" msgpack:"auto_id"`
	AutoCreatedAt bool `json:"auto_created_at" yaml:"auto_created_at" msgpack:"auto_created_at"`
	AutoUpdatedAt bool `json:"auto_updated_at" yaml:"auto_updated_at" msgpack:"auto_updated_at"`
	SoftDelete    bool `json:"soft_delete" yaml:"soft_delete" msgpack:"soft_delete"`
}

// FlagsFrom returns the flags configured as defaults for new schemas.
func FlagsFrom(cfg objstore.Config) Flags {
	return Flags{
		AutoID:        cfg.AutoID,
		AutoCreatedAt: cfg.AutoCreatedAt,
		AutoUpdatedAt: cfg.AutoUpdatedAt,
		SoftDelete:    cfg.SoftDelete,
	}
}

// Reserved returns the column names user columns may not take.
func (f Flags) Reserved() []string {
	names := []string{ColumnID}
	if f.AutoCreatedAt {
		names = append(names, ColumnCreatedAt)
	}
	if f.AutoUpdatedAt {
		names = append(names, ColumnUpdatedAt)
	}
	if f.SoftDelete {
		names = append(names, ColumnDeleted)
	}
	return names
}

// ColumnDefinition declares one user column.
type ColumnDefinition struct {
	Name     string           `json:"name" yaml:"name"`
	Type     field.ColumnType `json:"type" yaml:"type"`
	Nullable bool             `json:"nullable" yaml:"nullable"`
	Unique   bool             `json:"unique,omitempty" yaml:"unique,omitempty"`
	// Default is a typed literal applied by the database, to inserted rows
	// and to existing rows when the column is added later.
	Default any `json:"default,omitempty" yaml:"default,omitempty"`
}

// Column returns a nullable column definition.
func Column(name string, typ field.ColumnType) ColumnDefinition {
	return ColumnDefinition{Name: name, Type: typ, Nullable: true}
}

// NotNull returns a copy of the definition that rejects null values.
func (c ColumnDefinition) NotNull() ColumnDefinition {
	c.Nullable = false
	return c
}

// UniqueKey returns a copy of the definition with a unique constraint.
func (c ColumnDefinition) UniqueKey() ColumnDefinition {
	c.Unique = true
	return c
}

// WithDefault returns a copy of the definition with a default value.
func (c ColumnDefinition) WithDefault(v any) ColumnDefinition {
	c.Default = v
	return c
}

// HasDefault reports whether the column declares a default value.
func (c ColumnDefinition) HasDefault() bool {
	return c.Default != nil
}

// Required reports whether a payload must carry a value for the column.
func (c ColumnDefinition) Required() bool {
	return !c.Nullable && !c.HasDefault()
}

// Equal reports whether two definitions are identical once their defaults
// are coerced.
func (c ColumnDefinition) Equal(o ColumnDefinition) bool {
	if c.Name != o.Name || !c.Type.Equal(o.Type) || c.Nullable != o.Nullable || c.Unique != o.Unique {
		return false
	}
	return sameValue(c.Default, o.Default)
}

// UnmarshalJSON decodes a definition. Columns are nullable unless stated.
// Numeric defaults are kept as json.Number until they are coerced.
func (c *ColumnDefinition) UnmarshalJSON(data []byte) error {
	type plain ColumnDefinition
	p := plain{Nullable: true}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*c = ColumnDefinition(p)
	return nil
}

// UnmarshalYAML decodes a definition. Columns are nullable unless stated.
func (c *ColumnDefinition) UnmarshalYAML(value *yaml.Node) error {
	type plain ColumnDefinition
	p := plain{Nullable: true}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = ColumnDefinition(p)
	return nil
}

// Schema is a named declaration of a table's columns and management flags.
type Schema struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	TableName   string             `json:"table_name"`
	Columns     []ColumnDefinition `json:"columns"`
	Indexes     []index.Definition `json:"indexes,omitempty"`
	Flags       Flags              `json:"flags"`
	Active      bool               `json:"active"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Column returns the user column with the given name.
func (s *Schema) Column(name string) (ColumnDefinition, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}

// ColumnNames returns the user column names in declaration order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// SystemColumns returns the managed columns of the table, in table order.
func (s *Schema) SystemColumns() []string {
	names := []string{ColumnID}
	if s.Flags.AutoCreatedAt {
		names = append(names, ColumnCreatedAt)
	}
	if s.Flags.AutoUpdatedAt {
		names = append(names, ColumnUpdatedAt)
	}
	if s.Flags.SoftDelete {
		names = append(names, ColumnDeleted)
	}
	return names
}

// IsSystemColumn reports whether name is a managed column of the table.
func (s *Schema) IsSystemColumn(name string) bool {
	return slices.Contains(s.SystemColumns(), name)
}

// ColumnType resolves the type of a user or managed column. Conditions and
// sort keys are validated through it.
func (s *Schema) ColumnType(name string) (field.ColumnType, bool) {
	if s.IsSystemColumn(name) {
		switch name {
		case ColumnID:
			return field.String(), true
		case ColumnDeleted:
			return field.Boolean(), true
		default:
			return field.Timestamp(), true
		}
	}
	c, ok := s.Column(name)
	return c.Type, ok
}

// DefaultSort returns the column rows are listed by when no sort is given.
func (s *Schema) DefaultSort() string {
	if s.Flags.AutoCreatedAt {
		return ColumnCreatedAt
	}
	return ColumnID
}

// IndexName returns the physical name of a declared index.
func (s *Schema) IndexName(def index.Definition) string {
	return s.TableName + "_" + def.Name
}

// UniqueIndexName returns the physical name of the unique index backing a
// unique column.
func (s *Schema) UniqueIndexName(column string) string {
	return s.TableName + "_" + column + "_key"
}

// DefaultIndexName returns the physical name of the listing index.
func (s *Schema) DefaultIndexName() string {
	return "idx_" + s.TableName + "_default"
}

// HasUniqueConstraint reports whether columns match the primary key, a
// unique column, or a registered composite unique index.
func (s *Schema) HasUniqueConstraint(columns []string) bool {
	if len(columns) == 1 {
		if columns[0] == ColumnID {
			return true
		}
		if c, ok := s.Column(columns[0]); ok && c.Unique {
			return true
		}
	}
	for _, idx := range s.Indexes {
		if idx.Unique && idx.Matches(columns) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the schema definition.
func (s *Schema) Clone() *Schema {
	c := *s
	c.Columns = slices.Clone(s.Columns)
	c.Indexes = make([]index.Definition, len(s.Indexes))
	for i, idx := range s.Indexes {
		idx.Columns = slices.Clone(idx.Columns)
		c.Indexes[i] = idx
	}
	return &c
}

// TableNameOf derives the default table name of a schema name.
//
//	TableNameOf("Product")   // products
//	TableNameOf("OrderItem") // order_items
func TableNameOf(name string) string {
	return inflect.Underscore(inflect.Pluralize(name))
}

// Validate checks every identifier and definition of the schema and brings
// column types and defaults to their canonical form. All problems found are
// reported together.
func (s *Schema) Validate() error {
	var errs []error
	if len(s.Name) > sql.MaxIdentLen || !nameRe.MatchString(s.Name) {
		errs = append(errs, objstore.NewValidationError("name", "invalid schema name %q", s.Name))
	}
	if err := sql.ValidateIdent(s.TableName); err != nil {
		errs = append(errs, objstore.NewValidationError("table_name", "%v", err))
	} else if n := s.DefaultIndexName(); s.Flags.AutoCreatedAt && len(n) > sql.MaxIdentLen {
		errs = append(errs, objstore.NewValidationError("table_name", "listing index name %q exceeds %d characters", n, sql.MaxIdentLen))
	}
	reserved := s.Flags.Reserved()
	seen := make(map[string]struct{}, len(s.Columns))
	for i := range s.Columns {
		c := &s.Columns[i]
		if err := sql.ValidateIdent(c.Name); err != nil {
			errs = append(errs, objstore.NewColumnDefinitionError(c.Name, "%v", err))
			continue
		}
		if slices.Contains(reserved, c.Name) {
			errs = append(errs, objstore.NewColumnDefinitionError(c.Name, "name is reserved for a managed column"))
			continue
		}
		if _, ok := seen[c.Name]; ok {
			errs = append(errs, objstore.NewColumnDefinitionError(c.Name, "duplicate column name"))
			continue
		}
		seen[c.Name] = struct{}{}
		if err := c.Type.Check(); err != nil {
			errs = append(errs, objstore.NewColumnDefinitionError(c.Name, "%v", err))
			continue
		}
		if c.Unique && len(s.UniqueIndexName(c.Name)) > sql.MaxIdentLen {
			errs = append(errs, objstore.NewColumnDefinitionError(c.Name, "unique index name %q exceeds %d characters", s.UniqueIndexName(c.Name), sql.MaxIdentLen))
			continue
		}
		c.Type = c.Type.Normalize()
		def, err := c.Type.Coerce(c.Default)
		if err != nil {
			errs = append(errs, objstore.NewColumnDefinitionError(c.Name, "invalid default: %v", err))
			continue
		}
		c.Default = def
	}
	names := make(map[string]struct{}, len(s.Indexes))
	for i := range s.Indexes {
		idx := &s.Indexes[i]
		if idx.Name == "" {
			idx.Name = idx.DefaultName()
		}
		if err := s.checkIndex(*idx); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, ok := names[idx.Name]; ok {
			errs = append(errs, objstore.NewColumnDefinitionError("", "duplicate index name %q", idx.Name))
		}
		names[idx.Name] = struct{}{}
	}
	return objstore.NewAggregateError(errs...)
}

func (s *Schema) checkIndex(idx index.Definition) error {
	if err := sql.ValidateIdent(idx.Name); err != nil {
		return objstore.NewColumnDefinitionError("", "index: %v", err)
	}
	if n := s.IndexName(idx); len(n) > sql.MaxIdentLen {
		return objstore.NewColumnDefinitionError("", "index name %q exceeds %d characters", n, sql.MaxIdentLen)
	}
	if len(idx.Columns) == 0 {
		return objstore.NewColumnDefinitionError("", "index %q has no columns", idx.Name)
	}
	seen := make(map[string]struct{}, len(idx.Columns))
	for _, col := range idx.Columns {
		if _, ok := s.ColumnType(col); !ok {
			return objstore.NewColumnDefinitionError(col, "index %q references an unknown column", idx.Name)
		}
		if _, ok := seen[col]; ok {
			return objstore.NewColumnDefinitionError(col, "index %q lists the column twice", idx.Name)
		}
		seen[col] = struct{}{}
	}
	return nil
}

// sameValue compares two canonical values.
func sameValue(a, b any) bool {
	switch a := a.(type) {
	case time.Time:
		t, ok := b.(time.Time)
		return ok && a.Equal(t)
	case decimal.Decimal:
		d, ok := b.(decimal.Decimal)
		return ok && a.Equal(d)
	}
	ja, err1 := json.Marshal(a)
	jb, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && string(ja) == string(jb)
}
