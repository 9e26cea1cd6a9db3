package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/syssam/objstore"
	"github.com/syssam/objstore/dialect"
	"github.com/syssam/objstore/dialect/sql"
	"github.com/syssam/objstore/schema"
	"github.com/syssam/objstore/schema/field"
	"github.com/syssam/objstore/schema/index"
)

// metaColumns are the columns of the metadata table, in scan order.
var metaColumns = []string{
	"id", "name", "description", "table_name", "columns",
	"indexes", "flags", "active", "created_at", "updated_at",
}

// record is one row of the metadata table. Column and index definitions
// are stored as JSON documents.
type record struct {
	ID          string    `msgpack:"id"`
	Name        string    `msgpack:"name"`
	Description string    `msgpack:"description"`
	TableName   string    `msgpack:"table_name"`
	Columns     string    `msgpack:"columns"`
	Indexes     string    `msgpack:"indexes"`
	Flags       string    `msgpack:"flags"`
	Active      bool      `msgpack:"active"`
	CreatedAt   time.Time `msgpack:"created_at"`
	UpdatedAt   time.Time `msgpack:"updated_at"`
}

func newRecord(s *schema.Schema) (*record, error) {
	indexes := s.Indexes
	if indexes == nil {
		indexes = []index.Definition{}
	}
	cols, err := json.Marshal(s.Columns)
	if err != nil {
		return nil, fmt.Errorf("store: encode columns: %w", err)
	}
	idx, err := json.Marshal(indexes)
	if err != nil {
		return nil, fmt.Errorf("store: encode indexes: %w", err)
	}
	flags, err := json.Marshal(s.Flags)
	if err != nil {
		return nil, fmt.Errorf("store: encode flags: %w", err)
	}
	return &record{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		TableName:   s.TableName,
		Columns:     string(cols),
		Indexes:     string(idx),
		Flags:       string(flags),
		Active:      s.Active,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}, nil
}

// schema decodes the record. Column types and defaults are brought back to
// their canonical form.
func (r *record) schema() (*schema.Schema, error) {
	s := &schema.Schema{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		TableName:   r.TableName,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(r.Columns), &s.Columns); err != nil {
		return nil, fmt.Errorf("store: decode columns of schema %q: %w", r.Name, err)
	}
	if err := json.Unmarshal([]byte(r.Indexes), &s.Indexes); err != nil {
		return nil, fmt.Errorf("store: decode indexes of schema %q: %w", r.Name, err)
	}
	if err := json.Unmarshal([]byte(r.Flags), &s.Flags); err != nil {
		return nil, fmt.Errorf("store: decode flags of schema %q: %w", r.Name, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("store: stored schema %q: %w", r.Name, err)
	}
	return s, nil
}

// scan reads the current row of rows into r.
func (r *record) scan(rows *sql.Rows) error {
	var (
		description, columns, indexes, flags sql.NullString
		active, createdAt, updatedAt         any
	)
	if err := rows.Scan(&r.ID, &r.Name, &description, &r.TableName, &columns, &indexes, &flags, &active, &createdAt, &updatedAt); err != nil {
		return err
	}
	r.Description, r.Columns, r.Indexes, r.Flags = description.String, columns.String, indexes.String, flags.String
	v, err := field.Boolean().Scan(active)
	if err != nil {
		return err
	}
	r.Active, _ = v.(bool)
	if r.CreatedAt, err = scanTime(createdAt); err != nil {
		return err
	}
	if r.UpdatedAt, err = scanTime(updatedAt); err != nil {
		return err
	}
	return nil
}

func scanTime(v any) (time.Time, error) {
	ts, err := field.Timestamp().Scan(v)
	if err != nil {
		return time.Time{}, err
	}
	t, _ := ts.(time.Time)
	return t, nil
}

// lookup selects metadata rows.
type lookup struct {
	column          string // "name", "id" or empty for all rows
	value           string
	includeInactive bool
	forUpdate       bool
}

// queryRecords runs the lookup against q.
func (s *Store) queryRecords(ctx context.Context, q dialect.ExecQuerier, l lookup) ([]*record, error) {
	b := s.builder()
	b.WriteString("SELECT ").IdentComma(metaColumns...).WriteString(" FROM ").SystemIdent(s.config.MetadataTable)
	var where []func()
	if l.column != "" {
		where = append(where, func() { b.Ident(l.column).WriteString(" = ").Arg(l.value) })
	}
	if !l.includeInactive {
		where = append(where, func() { b.Ident("active").WriteString(" = ").Arg(true) })
	}
	for i, w := range where {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		w()
	}
	if l.column == "" {
		b.WriteString(" ORDER BY ").Ident("name")
	}
	if l.forUpdate && b.Dialect() == dialect.Postgres {
		b.WriteString(" FOR UPDATE")
	}
	query, args, err := b.Query()
	if err != nil {
		return nil, err
	}
	rows := &sql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []*record
	for rows.Next() {
		r := &record{}
		if err := r.scan(rows); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// loadRecord returns the single record matched by the lookup.
func (s *Store) loadRecord(ctx context.Context, q dialect.ExecQuerier, l lookup) (*record, error) {
	records, err := s.queryRecords(ctx, q, l)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, objstore.NewSchemaNotFoundError(l.value)
	}
	return records[0], nil
}

// lockRecord loads the named schema inside tx and locks its metadata row
// until the transaction ends. SQLite has no row locks: an idle write takes
// the database write lock instead.
func (s *Store) lockRecord(tx *txn, name string, includeInactive bool) (*record, error) {
	ctx := s.lockContext(tx.ctx)
	if s.Dialect() == dialect.SQLite {
		b := s.builder()
		b.WriteString("UPDATE ").SystemIdent(s.config.MetadataTable).WriteString(" SET ").
			Ident("name").WriteString(" = ").Ident("name").
			WriteString(" WHERE ").Ident("name").WriteString(" = ").Arg(name)
		query, args, err := b.Query()
		if err != nil {
			return nil, err
		}
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			return nil, err
		}
	}
	return s.loadRecord(ctx, tx, lookup{column: "name", value: name, includeInactive: includeInactive, forUpdate: true})
}

// insertRecord writes a new metadata row.
func (s *Store) insertRecord(tx *txn, r *record) error {
	b := s.builder()
	b.WriteString("INSERT INTO ").SystemIdent(s.config.MetadataTable).WriteString(" ").
		Nested(func(b *sql.Builder) { b.IdentComma(metaColumns...) }).
		WriteString(" VALUES ").
		Nested(func(b *sql.Builder) {
			b.Args(r.ID, r.Name, r.Description, r.TableName, r.Columns, r.Indexes, r.Flags, r.Active, r.CreatedAt, r.UpdatedAt)
		})
	query, args, err := b.Query()
	if err != nil {
		return err
	}
	return tx.Exec(tx.ctx, query, args, nil)
}

// updateRecord rewrites the definition columns of a metadata row.
func (s *Store) updateRecord(tx *txn, r *record) error {
	b := s.builder()
	b.WriteString("UPDATE ").SystemIdent(s.config.MetadataTable).WriteString(" SET ").
		Ident("description").WriteString(" = ").Arg(r.Description).WriteString(", ").
		Ident("columns").WriteString(" = ").Arg(r.Columns).WriteString(", ").
		Ident("indexes").WriteString(" = ").Arg(r.Indexes).WriteString(", ").
		Ident("active").WriteString(" = ").Arg(r.Active).WriteString(", ").
		Ident("updated_at").WriteString(" = ").Arg(r.UpdatedAt).
		WriteString(" WHERE ").Ident("id").WriteString(" = ").Arg(r.ID)
	query, args, err := b.Query()
	if err != nil {
		return err
	}
	return tx.Exec(tx.ctx, query, args, nil)
}

// deleteRecord removes a metadata row.
func (s *Store) deleteRecord(tx *txn, id string) error {
	b := s.builder()
	b.WriteString("DELETE FROM ").SystemIdent(s.config.MetadataTable).
		WriteString(" WHERE ").Ident("id").WriteString(" = ").Arg(id)
	query, args, err := b.Query()
	if err != nil {
		return err
	}
	return tx.Exec(tx.ctx, query, args, nil)
}

// conflict reports the first registered schema holding the name or the
// table name of s.
func (s *Store) conflict(tx *txn, sc *schema.Schema) error {
	b := s.builder()
	b.WriteString("SELECT ").IdentComma("name", "table_name").WriteString(" FROM ").SystemIdent(s.config.MetadataTable).
		WriteString(" WHERE ").Ident("name").WriteString(" = ").Arg(sc.Name).
		WriteString(" OR ").Ident("table_name").WriteString(" = ").Arg(sc.TableName)
	query, args, err := b.Query()
	if err != nil {
		return err
	}
	rows := &sql.Rows{}
	if err := tx.Query(tx.ctx, query, args, rows); err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name, table string
		if err := rows.Scan(&name, &table); err != nil {
			return err
		}
		if name == sc.Name {
			return objstore.NewSchemaExistsError("name", sc.Name)
		}
		return objstore.NewSchemaExistsError("table_name", sc.TableName)
	}
	return rows.Err()
}
