package sql

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/syssam/objstore/dialect"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var slow []string
	drv := NewStatsDriver(OpenDB(dialect.Postgres, db),
		WithSlowThreshold(0),
		WithSlowQueryHook(func(_ context.Context, query string, _ []any, _ time.Duration) {
			slow = append(slow, query)
		}),
	)
	ctx := context.Background()

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	rows := &Rows{}
	require.NoError(t, drv.Query(ctx, "SELECT 1", []any{}, rows))
	require.NoError(t, rows.Close())

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()
	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, `CREATE TABLE "t" ("id" TEXT)`, []any{}, nil))
	require.Error(t, tx.Exec(ctx, `INSERT INTO "t" ("id") VALUES ($1)`, []any{"x"}, nil))
	require.NoError(t, tx.Rollback())

	mock.ExpectBegin()
	mock.ExpectCommit()
	tx, err = drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())

	s := drv.QueryStats().Stats()
	assert.Equal(t, int64(1), s.TotalQueries)
	assert.Equal(t, int64(2), s.TotalExecs)
	assert.Equal(t, int64(1), s.TotalDDL)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(1), s.Commits)
	assert.Equal(t, int64(1), s.Rollbacks)
	assert.Equal(t, int64(3), s.SlowQueries)
	assert.Len(t, slow, 3)
	assert.Contains(t, s.String(), "queries=1 execs=2 ddl=1")

	drv.QueryStats().Reset()
	assert.Zero(t, drv.QueryStats().Stats().TotalExecs)

	drv.SetSlowThreshold(time.Second)
	assert.Equal(t, time.Second, drv.SlowThreshold())
}

func TestIsDDL(t *testing.T) {
	assert.True(t, IsDDL(`CREATE TABLE "t" ()`))
	assert.True(t, IsDDL(`  alter table "t" ADD COLUMN "c" TEXT`))
	assert.True(t, IsDDL(`DROP INDEX "i"`))
	assert.False(t, IsDDL(`INSERT INTO "t" DEFAULT VALUES`))
	assert.False(t, IsDDL(`DROP`))
}

func TestSlowQueryLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := NewStatsDriver(OpenDB(dialect.SQLite, db), WithSlowThreshold(0), WithSlowQueryLog(logger))
	mock.ExpectExec("DELETE").WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, drv.Exec(context.Background(), `DELETE FROM "t" WHERE "id" = ?`, []any{"secret"}, nil))
	assert.Contains(t, buf.String(), "slow query detected")
	assert.NotContains(t, buf.String(), "secret")
}

func TestDebugDriver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := NewDebugDriver(OpenDB(dialect.Postgres, db), DebugWithLogger(logger))
	ctx := context.Background()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, `UPDATE "t" SET "a" = $1`, []any{1}, nil))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())

	out := buf.String()
	assert.Contains(t, out, "begin transaction")
	assert.Contains(t, out, "tx exec")
	assert.Contains(t, out, "commit transaction")

	buf.Reset()
	quiet := NewDebugDriver(OpenDB(dialect.Postgres, db), DebugWithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, quiet.Exec(ctx, `UPDATE "t" SET "a" = $1`, []any{1}, nil))
	assert.Empty(t, buf.String(), "debug level is filtered by default handler")

	loud := NewDebugDriver(OpenDB(dialect.Postgres, db), DebugWithLogger(slog.New(slog.NewTextHandler(&buf, nil))), DebugWithLevel(slog.LevelInfo))
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, loud.Exec(ctx, `UPDATE "t" SET "a" = $1`, []any{1}, nil))
	assert.Contains(t, buf.String(), "exec")
}
