// Package store implements the schema registry and the instance operations
// of the object store on top of a dialect.Driver.
//
// Every mutating operation runs in exactly one transaction. Schema changes
// write the metadata row and the DDL in the same transaction, so a schema
// is never observable without its table or the other way around.
//
//	drv, err := sql.Open("pgx", dsn)
//	if err != nil {
//	    return err
//	}
//	st, err := store.New(drv, store.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	s, err := st.CreateSchema(ctx, schema.CreateSchemaRequest{
//	    Name: "Product",
//	    Columns: []schema.ColumnDefinition{
//	        schema.Column("sku", field.String()).NotNull().UniqueKey(),
//	        schema.Column("price", field.Decimal(10, 2)),
//	    },
//	})
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/syssam/objstore"
	"github.com/syssam/objstore/dialect"
	"github.com/syssam/objstore/dialect/sql"
	sqlschema "github.com/syssam/objstore/dialect/sql/schema"
	"github.com/syssam/objstore/schema"
)

// maxParams bounds the placeholders of one statement. Larger batches are
// split into several statements of the same transaction.
const maxParams = 32000

// Store is the entry point of the object store. It is safe for concurrent use.
type Store struct {
	driver      dialect.Driver
	ddl         *sqlschema.Generator
	config      objstore.Config
	logger      *slog.Logger
	cache       *schemaCache
	policy      schema.DropPolicy
	lockTimeout time.Duration
	now         func() time.Time
	newID       func() string

	metaMu    sync.Mutex
	metaReady bool
}

// options holds the configuration collected from Option values.
type options struct {
	config      objstore.Config
	logger      *slog.Logger
	cache       objstore.Cache
	policy      schema.DropPolicy
	lockTimeout time.Duration
	now         func() time.Time
	newID       func() string
}

// Option configures a Store.
type Option func(*options)

// WithConfig sets the store configuration. Default is objstore.DefaultConfig.
func WithConfig(cfg objstore.Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithLogger sets the logger of schema lifecycle events and rollbacks.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithCache caches schema definitions in c. Entries expire after the
// configured CacheTTL and are invalidated by every schema mutation.
func WithCache(c objstore.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithDropPolicy sets the policy applied to columns dropped by UpdateSchema.
// Default is schema.RejectReferencedColumns.
func WithDropPolicy(p schema.DropPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithLockTimeout bounds how long UpdateSchema and DeleteSchema wait for the
// lock of a schema held by a concurrent change. It applies to Postgres.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		o.lockTimeout = d
	}
}

// New returns a Store executing statements through drv. The metadata table
// is created on first use, or explicitly with EnsureMetadata.
func New(drv dialect.Driver, opts ...Option) (*Store, error) {
	o := &options{
		config: objstore.DefaultConfig(),
		logger: slog.Default(),
		policy: schema.RejectReferencedColumns,
		now:    time.Now,
		newID:  newID,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}
	ddl, err := sqlschema.NewGenerator(drv.Dialect())
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	s := &Store{
		driver:      drv,
		ddl:         ddl,
		config:      o.config,
		logger:      o.logger,
		policy:      o.policy,
		lockTimeout: o.lockTimeout,
		now:         o.now,
		newID:       o.newID,
	}
	if o.cache != nil {
		s.cache = newSchemaCache(o.cache, o.config.MetadataTable, o.config.CacheTTL)
	}
	return s, nil
}

// Config returns the store configuration.
func (s *Store) Config() objstore.Config {
	return s.config
}

// Dialect returns the dialect of the underlying driver.
func (s *Store) Dialect() string {
	return s.driver.Dialect()
}

// Close closes the underlying driver.
func (s *Store) Close() error {
	return s.driver.Close()
}

// EnsureMetadata creates the metadata table if it does not exist.
func (s *Store) EnsureMetadata(ctx context.Context) error {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	if s.metaReady {
		return nil
	}
	stmt, err := s.ddl.CreateMetadataTable(s.config.MetadataTable)
	if err != nil {
		return err
	}
	if err := s.driver.Exec(ctx, stmt, []any{}, nil); err != nil {
		return objstore.NewTransactionError("ensure_metadata", err)
	}
	s.metaReady = true
	return nil
}

// builder returns a statement builder of the store dialect.
func (s *Store) builder() *sql.Builder {
	return sql.Dialect(s.driver.Dialect())
}

// lockContext applies the configured lock timeout to ctx.
func (s *Store) lockContext(ctx context.Context) context.Context {
	if s.lockTimeout <= 0 {
		return ctx
	}
	return sql.WithTimeoutVar(ctx, "lock_timeout", s.lockTimeout)
}
