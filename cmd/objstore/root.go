package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/syssam/objstore"
	"github.com/syssam/objstore/dialect"
	"github.com/syssam/objstore/dialect/sql"
	"github.com/syssam/objstore/store"

	// Register database/sql drivers.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	driver        string
	dsn           string
	config        string
	debug         bool
	slowThreshold time.Duration
	lockTimeout   time.Duration

	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:   "objstore",
		Short: "Manage runtime schemas and their instances",
		Long: `objstore declares typed schemas at runtime and stores their instances
in PostgreSQL or SQLite tables.

Examples:
  objstore --driver sqlite --dsn ./store.db schema apply -f products.yaml
  objstore --driver pgx --dsn postgres://localhost/app schema sync ./schemas --watch
  objstore --dsn ./store.db instance query products --filter '{"op":"gt","field":"price","value":100}'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if g.debug {
				level = slog.LevelDebug
			}
			g.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		},
	}
	f := cmd.PersistentFlags()
	f.StringVar(&g.driver, "driver", dialect.SQLite, "database/sql driver: postgres, pgx or sqlite")
	f.StringVar(&g.dsn, "dsn", "", "data source name of the database")
	f.StringVar(&g.config, "config", "", "path of a YAML store configuration")
	f.BoolVar(&g.debug, "debug", false, "log every SQL statement")
	f.DurationVar(&g.slowThreshold, "slow-threshold", 200*time.Millisecond, "log statements slower than this")
	f.DurationVar(&g.lockTimeout, "lock-timeout", 0, "bound the wait for schema locks (postgres)")

	cmd.AddCommand(newSchemaCmd(g), newInstanceCmd(g))
	return cmd
}

// open connects to the database and returns a store over it. The caller
// closes the store.
func (g *globals) open() (*store.Store, error) {
	if g.dsn == "" {
		return nil, fmt.Errorf("--dsn is required")
	}
	switch sql.DialectOf(g.driver) {
	case dialect.Postgres, dialect.SQLite:
	default:
		return nil, fmt.Errorf("unsupported driver %q", g.driver)
	}
	cfg := objstore.DefaultConfig()
	if g.config != "" {
		var err error
		if cfg, err = objstore.LoadConfig(g.config); err != nil {
			return nil, err
		}
	}
	drv, err := sql.Open(g.driver, g.dsn)
	if err != nil {
		return nil, err
	}
	if drv.Dialect() == dialect.SQLite {
		// SQLite allows a single writer.
		drv.DB().SetMaxOpenConns(1)
	}
	var d dialect.Driver = sql.NewStatsDriver(drv,
		sql.WithSlowThreshold(g.slowThreshold),
		sql.WithSlowQueryLog(g.logger),
	)
	if g.debug {
		d = sql.NewDebugDriver(drv, sql.DebugWithLogger(g.logger))
	}
	opts := []store.Option{
		store.WithConfig(cfg),
		store.WithLogger(g.logger),
		store.WithLockTimeout(g.lockTimeout),
	}
	if cfg.CacheTTL > 0 {
		opts = append(opts, store.WithCache(objstore.NewMemoryCache()))
	}
	st, err := store.New(d, opts...)
	if err != nil {
		drv.Close()
		return nil, err
	}
	return st, nil
}
