// Package dialect defines the transport contract consumed by the store.
//
// The store never talks to a database connection directly. It issues
// statements through a Driver and groups every mutating call into one Tx:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// A Tx holds one connection for its whole lifetime and adds Commit and
// Rollback. The dialect/sql package adapts database/sql to this contract:
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//	st, err := store.New(drv)
//
// # Dialects
//
//   - Postgres: PostgreSQL through lib/pq or pgx/v5/stdlib
//   - SQLite: SQLite through modernc.org/sqlite
//
// Both dialects run DDL inside transactions, which the schema engine relies
// on to keep table structure and metadata in step.
package dialect
