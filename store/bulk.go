package store

import (
	"context"
	"slices"

	"github.com/syssam/objstore"
	"github.com/syssam/objstore/condition"
	"github.com/syssam/objstore/dialect/sql"
	"github.com/syssam/objstore/schema"
)

// CreateInstance validates payload and inserts it as a new instance.
func (s *Store) CreateInstance(ctx context.Context, name string, payload map[string]any) (*Instance, error) {
	instances, err := s.createInstances(ctx, name, []map[string]any{payload}, true)
	if err != nil {
		return nil, err
	}
	return instances[0], nil
}

// CreateInstances inserts payloads as new instances, in one transaction.
// Every payload is validated before any statement runs, and the returned
// instances are in payload order. Either all instances are created or
// none is.
func (s *Store) CreateInstances(ctx context.Context, name string, payloads []map[string]any) ([]*Instance, error) {
	if len(payloads) == 0 {
		return []*Instance{}, nil
	}
	return s.createInstances(ctx, name, payloads, false)
}

func (s *Store) createInstances(ctx context.Context, name string, payloads []map[string]any, single bool) ([]*Instance, error) {
	sc, err := s.GetSchema(ctx, name)
	if err != nil {
		return nil, err
	}
	rows, err := s.prepareRows(sc, payloads, single)
	if err != nil {
		return nil, err
	}
	// Absent columns take their database default, so rows are inserted in
	// groups sharing one column list.
	var (
		keys   []string
		groups = make(map[string][]*row)
	)
	for _, r := range rows {
		k := r.key()
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
	}
	created := make(map[string]*Instance, len(rows))
	err = s.withTx(ctx, "create_instances", func(tx *txn) error {
		for _, k := range keys {
			group := groups[k]
			for _, chunk := range chunkRows(group, len(group[0].columns)) {
				instances, err := s.insert(tx, sc, chunk)
				if err != nil {
					return err
				}
				for _, inst := range instances {
					created[inst.ID] = inst
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	instances := make([]*Instance, len(rows))
	for i, r := range rows {
		instances[i] = created[r.id]
	}
	return instances, nil
}

// prepareRows validates every payload and reports all failures together.
func (s *Store) prepareRows(sc *schema.Schema, payloads []map[string]any, single bool) ([]*row, error) {
	var (
		rows = make([]*row, 0, len(payloads))
		errs []error
	)
	for i, p := range payloads {
		pos := i
		if single {
			pos = -1
		}
		r, err := s.prepareRow(sc, p, pos)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rows = append(rows, r)
	}
	if err := objstore.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	return rows, nil
}

// chunkRows splits rows so that no statement binds more than maxParams values.
func chunkRows(rows []*row, columns int) [][]*row {
	size := max(maxParams/max(columns, 1), 1)
	return slices.Collect(slices.Chunk(rows, size))
}

// insertInto writes the INSERT statement of rows, which share one column list.
func (s *Store) insertInto(sc *schema.Schema, rows []*row) *sql.Builder {
	b := s.builder()
	b.WriteString("INSERT INTO ").Ident(sc.TableName).WriteByte(' ').
		Nested(func(b *sql.Builder) { b.IdentComma(rows[0].columns...) }).
		WriteString(" VALUES ")
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Nested(func(b *sql.Builder) { b.Args(r.values...) })
	}
	return b
}

// insert inserts rows and returns the stored instances.
func (s *Store) insert(tx *txn, sc *schema.Schema, rows []*row) ([]*Instance, error) {
	cols := selectColumns(sc)
	b := s.insertInto(sc, rows)
	b.WriteString(" RETURNING ").IdentComma(cols...)
	query, args, err := b.Query()
	if err != nil {
		return nil, err
	}
	rs := &sql.Rows{}
	if err := tx.Query(tx.ctx, query, args, rs); err != nil {
		return nil, err
	}
	return scanInstances(rs, sc, cols)
}

// compileOptions returns the options restricting conditions on sc to live rows.
func compileOptions(sc *schema.Schema) []condition.CompileOption {
	opts := []condition.CompileOption{condition.WithSchema(sc.Name)}
	if sc.Flags.SoftDelete {
		opts = append(opts, condition.WithSoftDelete(schema.ColumnDeleted))
	}
	return opts
}

// where writes the WHERE clause selecting the live rows matched by cond.
func where(b *sql.Builder, sc *schema.Schema, cond condition.Condition) error {
	if cond.IsZero() && !sc.Flags.SoftDelete {
		return b.Err()
	}
	b.WriteString(" WHERE ")
	return condition.Compile(b, sc, cond, compileOptions(sc)...)
}

// updateSet writes the UPDATE statement of patch up to its WHERE clause.
func (s *Store) updateSet(sc *schema.Schema, columns []string, values []any) *sql.Builder {
	b := s.builder()
	b.WriteString("UPDATE ").Ident(sc.TableName).WriteString(" SET ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c).WriteString(" = ").Arg(values[i])
	}
	if sc.Flags.AutoUpdatedAt {
		b.WriteString(", ").Ident(schema.ColumnUpdatedAt).WriteString(" = ").Now()
	}
	return b
}

// UpdateInstance applies patch to one instance and returns it updated.
func (s *Store) UpdateInstance(ctx context.Context, name, id string, patch map[string]any) (*Instance, error) {
	sc, err := s.GetSchema(ctx, name)
	if err != nil {
		return nil, err
	}
	columns, values, err := preparePatch(sc, patch)
	if err != nil {
		return nil, err
	}
	cols := selectColumns(sc)
	b := s.updateSet(sc, columns, values)
	if err := where(b, sc, condition.Eq(schema.ColumnID, id)); err != nil {
		return nil, err
	}
	b.WriteString(" RETURNING ").IdentComma(cols...)
	query, args, err := b.Query()
	if err != nil {
		return nil, err
	}
	var inst *Instance
	err = s.withTx(ctx, "update_instance", func(tx *txn) error {
		rs := &sql.Rows{}
		if err := tx.Query(tx.ctx, query, args, rs); err != nil {
			return err
		}
		instances, err := scanInstances(rs, sc, cols)
		if err != nil {
			return err
		}
		if len(instances) == 0 {
			return objstore.NewInstanceNotFoundError(name, id)
		}
		inst = instances[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// UpdateInstances applies patch to every live instance matched by cond and
// returns the number of updated instances. The empty condition matches all
// instances.
func (s *Store) UpdateInstances(ctx context.Context, name string, patch map[string]any, cond condition.Condition) (int64, error) {
	sc, err := s.GetSchema(ctx, name)
	if err != nil {
		return 0, err
	}
	columns, values, err := preparePatch(sc, patch)
	if err != nil {
		return 0, err
	}
	b := s.updateSet(sc, columns, values)
	if err := where(b, sc, cond); err != nil {
		return 0, err
	}
	return s.execAffected(ctx, "update_instances", b)
}

// DeleteInstance deletes one instance.
func (s *Store) DeleteInstance(ctx context.Context, name, id string, opts ...DeleteOption) error {
	n, err := s.DeleteInstances(ctx, name, condition.Eq(schema.ColumnID, id), opts...)
	if err != nil {
		return err
	}
	if n == 0 {
		return objstore.NewInstanceNotFoundError(name, id)
	}
	return nil
}

// DeleteInstances deletes the instances matched by cond and returns their
// number. Instances of soft-delete schemas are marked deleted unless Hard
// is given; other schemas always delete rows. Hard also removes the rows
// that were soft-deleted before, so it purges them.
func (s *Store) DeleteInstances(ctx context.Context, name string, cond condition.Condition, opts ...DeleteOption) (int64, error) {
	o := &deleteOptions{}
	for _, opt := range opts {
		opt(o)
	}
	sc, err := s.GetSchema(ctx, name)
	if err != nil {
		return 0, err
	}
	b := s.builder()
	if sc.Flags.SoftDelete && !o.hard {
		b.WriteString("UPDATE ").Ident(sc.TableName).WriteString(" SET ").
			Ident(schema.ColumnDeleted).WriteString(" = ").Arg(true)
		if sc.Flags.AutoUpdatedAt {
			b.WriteString(", ").Ident(schema.ColumnUpdatedAt).WriteString(" = ").Now()
		}
		if err := where(b, sc, cond); err != nil {
			return 0, err
		}
		return s.execAffected(ctx, "delete_instances", b)
	}
	b.WriteString("DELETE FROM ").Ident(sc.TableName)
	if !cond.IsZero() {
		b.WriteString(" WHERE ")
		if err := condition.Compile(b, sc, cond, condition.WithSchema(sc.Name)); err != nil {
			return 0, err
		}
	}
	return s.execAffected(ctx, "delete_instances", b)
}

// UpsertInstances inserts payloads, updating the existing instance instead
// when a row with the same conflict column values exists. Conflict columns
// must be backed by the primary key, a unique column or a unique index.
// Upserted rows are live again if they were soft-deleted. It returns the
// number of inserted or updated rows.
func (s *Store) UpsertInstances(ctx context.Context, name string, payloads []map[string]any, conflictColumns []string) (int64, error) {
	if len(payloads) == 0 {
		return 0, nil
	}
	sc, err := s.GetSchema(ctx, name)
	if err != nil {
		return 0, err
	}
	if len(conflictColumns) == 0 || !sc.HasUniqueConstraint(conflictColumns) {
		return 0, objstore.NewUniqueConstraintMissingError(sc.Name, conflictColumns)
	}
	rows, err := s.prepareRows(sc, payloads, false)
	if err != nil {
		return 0, err
	}
	columns := rows[0].columns
	for i, r := range rows[1:] {
		if r.key() != rows[0].key() {
			return 0, objstore.NewValidationError("", "payload %d sets columns (%s), payload 0 sets (%s)", i+1, r.key(), rows[0].key())
		}
	}
	for _, c := range conflictColumns {
		if !slices.Contains(columns, c) {
			return 0, objstore.NewValidationError(c, "conflict column missing from payloads")
		}
	}
	var updates []string
	for _, c := range columns {
		if c != schema.ColumnID && !slices.Contains(conflictColumns, c) {
			updates = append(updates, c)
		}
	}
	var total int64
	err = s.withTx(ctx, "upsert_instances", func(tx *txn) error {
		for _, chunk := range chunkRows(rows, len(columns)) {
			b := s.insertInto(sc, chunk)
			s.onConflict(b, sc, conflictColumns, updates)
			query, args, err := b.Query()
			if err != nil {
				return err
			}
			var res sql.Result
			if err := tx.Exec(tx.ctx, query, args, &res); err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// onConflict writes the ON CONFLICT clause of an upsert.
func (s *Store) onConflict(b *sql.Builder, sc *schema.Schema, conflict, updates []string) {
	b.WriteString(" ON CONFLICT ").Nested(func(b *sql.Builder) { b.IdentComma(conflict...) })
	var sets []func()
	for _, c := range updates {
		sets = append(sets, func() { b.Ident(c).WriteString(" = EXCLUDED.").Ident(c) })
	}
	if len(sets) > 0 && sc.Flags.AutoUpdatedAt {
		sets = append(sets, func() { b.Ident(schema.ColumnUpdatedAt).WriteString(" = ").Now() })
	}
	if len(sets) > 0 && sc.Flags.SoftDelete {
		sets = append(sets, func() { b.Ident(schema.ColumnDeleted).WriteString(" = ").Arg(false) })
	}
	if len(sets) == 0 {
		b.WriteString(" DO NOTHING")
		return
	}
	b.WriteString(" DO UPDATE SET ")
	for i, set := range sets {
		if i > 0 {
			b.WriteString(", ")
		}
		set()
	}
}

// execAffected runs the statement of b in a transaction and returns the
// number of affected rows.
func (s *Store) execAffected(ctx context.Context, op string, b *sql.Builder) (int64, error) {
	query, args, err := b.Query()
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.withTx(ctx, op, func(tx *txn) error {
		var res sql.Result
		if err := tx.Exec(tx.ctx, query, args, &res); err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
