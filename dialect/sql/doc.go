// Package sql adapts database/sql to the dialect contract and holds the
// single trusted boundary for SQL text.
//
// Every component that emits SQL writes through a Builder:
//
//	b := sql.Dialect(dialect.Postgres)
//	b.WriteString("SELECT * FROM ").Ident("products").
//	    WriteString(" WHERE ").Ident("price").WriteString(" > ").Arg(100)
//	query, args, err := b.Query()
//	// SELECT * FROM "products" WHERE "price" > $1   [100]
//
// Identifiers are validated (lowercase letters, digits and underscores,
// starting with a letter, not a reserved keyword) before they are quoted.
// Values are never interpolated into data statements; they are bound as
// placeholders ($n for Postgres, ? for SQLite). Literal renders the few
// values that DDL cannot parameterize, such as column defaults and enum
// CHECK lists.
//
// # Drivers
//
// Driver wraps a *sql.DB, Tx wraps a *sql.Tx. StatsDriver and DebugDriver
// decorate a Driver with statement statistics and slog tracing:
//
//	drv, err := sql.Open("pgx", dsn)
//	sd := sql.NewStatsDriver(drv, sql.WithSlowQueryLog(logger))
package sql
