package store

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/syssam/objstore"
	"github.com/syssam/objstore/dialect/sql"
	"github.com/syssam/objstore/schema"
	"github.com/syssam/objstore/schema/field"
)

// Instance is one live row of a schema table.
type Instance struct {
	ID         string `json:"id"`
	SchemaName string `json:"schema_name"`
	// Properties maps every user column to its canonical value, nil for
	// null values.
	Properties map[string]any `json:"properties"`
	// CreatedAt and UpdatedAt are zero when the schema does not manage them.
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Get returns the value of a property.
func (i *Instance) Get(name string) (any, bool) {
	v, ok := i.Properties[name]
	return v, ok
}

// row is a validated payload ready to be bound.
type row struct {
	id      string
	columns []string
	values  []any
}

// key identifies the column set of the row.
func (r *row) key() string {
	return strings.Join(r.columns, ",")
}

// prepareRow validates a create payload. Absent columns are left to their
// database default; pos is the payload position reported in errors, -1 for
// single payloads.
func (s *Store) prepareRow(sc *schema.Schema, payload map[string]any, pos int) (*row, error) {
	var errs []error
	r := &row{}
	switch id, ok := payload[schema.ColumnID]; {
	case ok && id != nil:
		str, isString := id.(string)
		if !isString || str == "" {
			errs = append(errs, objstore.NewValidationError(schema.ColumnID, "identifier must be a non-empty string, got %T", id))
		}
		r.id = str
	case sc.Flags.AutoID:
		r.id = s.newID()
	default:
		errs = append(errs, objstore.NewNotNullError(schema.ColumnID, pos))
	}
	r.columns = append(r.columns, schema.ColumnID)
	r.values = append(r.values, r.id)
	errs = append(errs, unknownKeys(sc, payload, true)...)
	for _, c := range sc.Columns {
		v, ok := payload[c.Name]
		if !ok {
			if c.Required() {
				errs = append(errs, objstore.NewNotNullError(c.Name, pos))
			}
			continue
		}
		bv, err := bindValue(c, v, pos)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.columns = append(r.columns, c.Name)
		r.values = append(r.values, bv)
	}
	if err := objstore.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

// preparePatch validates an update payload and returns the columns it sets
// with their bound values, in column order.
func preparePatch(sc *schema.Schema, patch map[string]any) ([]string, []any, error) {
	if len(patch) == 0 {
		return nil, nil, objstore.NewValidationError("", "patch sets no column")
	}
	errs := unknownKeys(sc, patch, false)
	var (
		columns []string
		values  []any
	)
	for _, c := range sc.Columns {
		v, ok := patch[c.Name]
		if !ok {
			continue
		}
		bv, err := bindValue(c, v, -1)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		columns = append(columns, c.Name)
		values = append(values, bv)
	}
	if err := objstore.NewAggregateError(errs...); err != nil {
		return nil, nil, err
	}
	return columns, values, nil
}

// unknownKeys reports payload keys that are not writable user columns.
func unknownKeys(sc *schema.Schema, payload map[string]any, allowID bool) []error {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var errs []error
	for _, k := range keys {
		switch {
		case k == schema.ColumnID && allowID:
		case sc.IsSystemColumn(k):
			errs = append(errs, objstore.NewValidationError(k, "managed column cannot be written"))
		default:
			if _, ok := sc.Column(k); !ok {
				errs = append(errs, objstore.NewUnknownColumnError(sc.Name, k))
			}
		}
	}
	return errs
}

// bindValue coerces v to the column type and returns its bound form.
func bindValue(c schema.ColumnDefinition, v any, pos int) (any, error) {
	cv, err := c.Type.Coerce(v)
	if err != nil {
		return nil, field.Annotate(err, c.Name)
	}
	if cv == nil && !c.Nullable {
		return nil, objstore.NewNotNullError(c.Name, pos)
	}
	bv, err := c.Type.Value(cv)
	if err != nil {
		return nil, field.Annotate(err, c.Name)
	}
	return bv, nil
}

// selectColumns returns the columns read back for instances.
func selectColumns(sc *schema.Schema) []string {
	cols := []string{schema.ColumnID}
	if sc.Flags.AutoCreatedAt {
		cols = append(cols, schema.ColumnCreatedAt)
	}
	if sc.Flags.AutoUpdatedAt {
		cols = append(cols, schema.ColumnUpdatedAt)
	}
	return append(cols, sc.ColumnNames()...)
}

// scanInstances reads all rows, normalizing every value per column type.
func scanInstances(rows *sql.Rows, sc *schema.Schema, cols []string) ([]*Instance, error) {
	defer rows.Close()
	var instances []*Instance
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		inst := &Instance{SchemaName: sc.Name, Properties: make(map[string]any, len(sc.Columns))}
		for i, col := range cols {
			typ, _ := sc.ColumnType(col)
			v, err := typ.Scan(raw[i])
			if err != nil {
				return nil, fmt.Errorf("store: read %s.%s: %w", sc.TableName, col, err)
			}
			switch col {
			case schema.ColumnID:
				inst.ID, _ = v.(string)
			case schema.ColumnCreatedAt:
				if sc.Flags.AutoCreatedAt {
					inst.CreatedAt, _ = v.(time.Time)
					continue
				}
				inst.Properties[col] = v
			case schema.ColumnUpdatedAt:
				if sc.Flags.AutoUpdatedAt {
					inst.UpdatedAt, _ = v.(time.Time)
					continue
				}
				inst.Properties[col] = v
			default:
				inst.Properties[col] = v
			}
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}
