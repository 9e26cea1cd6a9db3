package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/syssam/objstore"
	"github.com/syssam/objstore/dialect/sql/sqlgraph"
	sqlschema "github.com/syssam/objstore/dialect/sql/schema"
	"github.com/syssam/objstore/schema"
)

type getOptions struct {
	includeInactive bool
}

// GetOption configures schema lookups.
type GetOption func(*getOptions)

// IncludeInactive makes lookups return soft-deleted schemas.
func IncludeInactive() GetOption {
	return func(o *getOptions) {
		o.includeInactive = true
	}
}

type deleteOptions struct {
	hard bool
}

// DeleteOption configures schema and instance deletion.
type DeleteOption func(*deleteOptions)

// Hard removes data physically: DeleteSchema drops the table and the
// metadata row, DeleteInstances deletes rows of soft-delete schemas.
func Hard() DeleteOption {
	return func(o *deleteOptions) {
		o.hard = true
	}
}

func newID() string {
	return uuid.NewString()
}

// CreateSchema registers a new schema and creates its table. The metadata
// row, the table and its indexes are created in one transaction.
func (s *Store) CreateSchema(ctx context.Context, req schema.CreateSchemaRequest) (*schema.Schema, error) {
	if err := s.EnsureMetadata(ctx); err != nil {
		return nil, err
	}
	sc, err := req.Schema(schema.FlagsFrom(s.config))
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sc.ID, sc.CreatedAt, sc.UpdatedAt = s.newID(), now, now
	stmts, err := s.ddl.CreateTable(sqlschema.NewTable(sc))
	if err != nil {
		return nil, err
	}
	r, err := newRecord(sc)
	if err != nil {
		return nil, err
	}
	err = s.withTx(ctx, "create_schema", func(tx *txn) error {
		if err := s.conflict(tx, sc); err != nil {
			return err
		}
		if err := s.insertRecord(tx, r); err != nil {
			if sqlgraph.IsUniqueConstraintError(err) {
				return objstore.NewSchemaExistsError("name", sc.Name)
			}
			return err
		}
		for _, stmt := range stmts {
			if err := tx.Exec(tx.ctx, stmt, []any{}, nil); err != nil {
				return err
			}
		}
		return s.invalidate(tx, sc.Name)
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "schema created", "schema", sc.Name, "table", sc.TableName, "columns", len(sc.Columns))
	return sc, nil
}

// GetSchema returns the named schema. Soft-deleted schemas are reported as
// not found unless IncludeInactive is given.
func (s *Store) GetSchema(ctx context.Context, name string, opts ...GetOption) (*schema.Schema, error) {
	o := &getOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if err := s.EnsureMetadata(ctx); err != nil {
		return nil, err
	}
	fetch := func() (*record, error) {
		return s.loadRecord(ctx, s.driver, lookup{column: "name", value: name, includeInactive: true})
	}
	var (
		r   *record
		err error
	)
	if s.cache != nil {
		r, err = s.cache.load(ctx, name, fetch)
	} else {
		r, err = fetch()
	}
	if err != nil {
		return nil, wrapError("get_schema", err)
	}
	if !r.Active && !o.includeInactive {
		return nil, objstore.NewSchemaNotFoundError(name)
	}
	return r.schema()
}

// GetSchemaByID returns the schema with the given identifier.
func (s *Store) GetSchemaByID(ctx context.Context, id string, opts ...GetOption) (*schema.Schema, error) {
	o := &getOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if err := s.EnsureMetadata(ctx); err != nil {
		return nil, err
	}
	r, err := s.loadRecord(ctx, s.driver, lookup{column: "id", value: id, includeInactive: o.includeInactive})
	if err != nil {
		return nil, wrapError("get_schema", err)
	}
	return r.schema()
}

// ListSchemas returns the registered schemas ordered by name.
func (s *Store) ListSchemas(ctx context.Context, opts ...GetOption) ([]*schema.Schema, error) {
	o := &getOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if err := s.EnsureMetadata(ctx); err != nil {
		return nil, err
	}
	records, err := s.queryRecords(ctx, s.driver, lookup{includeInactive: o.includeInactive})
	if err != nil {
		return nil, wrapError("list_schemas", err)
	}
	schemas := make([]*schema.Schema, 0, len(records))
	for _, r := range records {
		sc, err := r.schema()
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, sc)
	}
	return schemas, nil
}

// UpdateSchema changes the description, columns or indexes of a schema.
// Added columns and indexes are created, removed ones are dropped. The
// metadata row is locked for the duration of the change, so concurrent
// updates of one schema are applied one after the other.
func (s *Store) UpdateSchema(ctx context.Context, name string, req schema.UpdateSchemaRequest) (*schema.Schema, error) {
	if err := s.EnsureMetadata(ctx); err != nil {
		return nil, err
	}
	var (
		next *schema.Schema
		plan *sqlschema.Plan
	)
	err := s.withTx(ctx, "update_schema", func(tx *txn) error {
		r, err := s.lockRecord(tx, name, false)
		if err != nil {
			return err
		}
		current, err := r.schema()
		if err != nil {
			return err
		}
		if next, err = req.Apply(current, s.policy); err != nil {
			return err
		}
		plan = sqlschema.Diff(current, next)
		if err := plan.Err(); err != nil {
			return err
		}
		stmts, err := s.ddl.Alter(plan)
		if err != nil {
			return err
		}
		ctx := s.lockContext(tx.ctx)
		for _, stmt := range stmts {
			if err := tx.Exec(ctx, stmt, []any{}, nil); err != nil {
				return err
			}
		}
		next.UpdatedAt = s.now().UTC()
		nr, err := newRecord(next)
		if err != nil {
			return err
		}
		if err := s.updateRecord(tx, nr); err != nil {
			return err
		}
		return s.invalidate(tx, name)
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "schema updated", "schema", name, "changes", plan.String())
	return next, nil
}

// DeleteSchema removes a schema. By default the schema is marked inactive
// and its table is kept; Hard drops the table and the metadata row.
func (s *Store) DeleteSchema(ctx context.Context, name string, opts ...DeleteOption) error {
	o := &deleteOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if err := s.EnsureMetadata(ctx); err != nil {
		return err
	}
	err := s.withTx(ctx, "delete_schema", func(tx *txn) error {
		r, err := s.lockRecord(tx, name, o.hard)
		if err != nil {
			return err
		}
		if o.hard {
			stmt, err := s.ddl.DropTable(r.TableName)
			if err != nil {
				return err
			}
			if err := tx.Exec(s.lockContext(tx.ctx), stmt, []any{}, nil); err != nil {
				return err
			}
			if err := s.deleteRecord(tx, r.ID); err != nil {
				return err
			}
		} else {
			r.Active = false
			r.UpdatedAt = s.now().UTC()
			if err := s.updateRecord(tx, r); err != nil {
				return err
			}
		}
		return s.invalidate(tx, name)
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "schema deleted", "schema", name, "hard", o.hard)
	return nil
}

// PurgeCache drops every cached schema definition.
func (s *Store) PurgeCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.purge(ctx)
}

// invalidate drops the cached definition of a schema inside tx, and again
// once tx commits, so that readers never keep a definition older than the
// committed one.
func (s *Store) invalidate(tx *txn, name string) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.invalidate(tx.ctx, name); err != nil {
		return err
	}
	tx.OnCommit(func(ctx context.Context) {
		if err := s.cache.invalidate(ctx, name); err != nil {
			s.logger.WarnContext(ctx, "schema cache invalidation failed", "schema", name, "error", err)
		}
	})
	return nil
}
