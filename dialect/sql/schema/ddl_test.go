package schema

import (
	"context"
	stdsql "database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/objstore/dialect"
	"github.com/syssam/objstore/schema"
	"github.com/syssam/objstore/schema/field"
	"github.com/syssam/objstore/schema/index"
)

var allFlags = schema.Flags{AutoID: true, AutoCreatedAt: true, AutoUpdatedAt: true, SoftDelete: true}

func products(t *testing.T, flags schema.Flags) *schema.Schema {
	t.Helper()
	s, err := schema.CreateSchemaRequest{
		Name: "Product",
		Columns: []schema.ColumnDefinition{
			schema.Column("sku", field.String()).NotNull().UniqueKey(),
			schema.Column("qty", field.Integer()).WithDefault(0),
			schema.Column("in_stock", field.Boolean()).WithDefault(true),
			schema.Column("status", field.Enum("draft", "it's live")).WithDefault("draft"),
		},
		Indexes: []index.Definition{index.Columns("status", "qty").Name("status_qty").Definition()},
		Flags:   &flags,
	}.Schema(flags)
	require.NoError(t, err)
	return s
}

func TestNewGenerator(t *testing.T) {
	_, err := NewGenerator(dialect.Postgres)
	require.NoError(t, err)
	g, err := NewGenerator(dialect.SQLite)
	require.NoError(t, err)
	assert.Equal(t, dialect.SQLite, g.Dialect())
	_, err = NewGenerator("mysql")
	assert.Error(t, err)
}

func TestColumnType(t *testing.T) {
	pg, _ := NewGenerator(dialect.Postgres)
	lite, _ := NewGenerator(dialect.SQLite)
	tests := []struct {
		typ      field.ColumnType
		postgres string
		sqlite   string
	}{
		{field.String(), "text", "text"},
		{field.Integer(), "bigint", "integer"},
		{field.Boolean(), "boolean", "boolean"},
		{field.JSON(), "jsonb", "json"},
		{field.Enum("a"), "text", "text"},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			got, err := pg.ColumnType(tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.postgres, got)
			got, err = lite.ColumnType(tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.sqlite, got)
		})
	}

	got, err := pg.ColumnType(field.Decimal(10, 2))
	require.NoError(t, err)
	assert.Equal(t, "numeric(10,2)", got)
	got, err = lite.ColumnType(field.Decimal(30, 10))
	require.NoError(t, err)
	assert.Equal(t, "text", got, "sqlite keeps decimals as exact text")
	got, err = pg.ColumnType(field.Timestamp())
	require.NoError(t, err)
	assert.Contains(t, got, "timestamp")

	_, err = pg.ColumnType(field.ColumnType{})
	assert.Error(t, err)
}

func TestCreateTable(t *testing.T) {
	g, _ := NewGenerator(dialect.Postgres)
	stmts, err := g.CreateTable(NewTable(products(t, allFlags)))
	require.NoError(t, err)
	require.Len(t, stmts, 4)

	assert.Contains(t, stmts[0], `CREATE TABLE "products" ("id" `)
	assert.Contains(t, stmts[0], ` PRIMARY KEY, "sku" text NOT NULL, "qty" bigint DEFAULT 0, "in_stock" boolean DEFAULT TRUE, `)
	assert.Contains(t, stmts[0], `"status" text DEFAULT 'draft' CHECK ("status" IN ('draft', 'it''s live'))`)
	assert.Contains(t, stmts[0], `"created_at" `)
	assert.Contains(t, stmts[0], ` NOT NULL DEFAULT NOW(), "updated_at" `)
	assert.Contains(t, stmts[0], `"deleted" boolean NOT NULL DEFAULT FALSE)`)

	assert.Equal(t, `CREATE UNIQUE INDEX "products_sku_key" ON "products" ("sku")`, stmts[1])
	assert.Equal(t, `CREATE INDEX "products_status_qty" ON "products" ("status", "qty")`, stmts[2])
	assert.Equal(t, `CREATE INDEX "idx_products_default" ON "products" ("created_at" DESC) WHERE "deleted" = FALSE`, stmts[3])
}

func TestCreateTableWithoutManagedColumns(t *testing.T) {
	g, _ := NewGenerator(dialect.SQLite)
	stmts, err := g.CreateTable(NewTable(products(t, schema.Flags{})))
	require.NoError(t, err)
	require.Len(t, stmts, 3, "no listing index without created_at")
	assert.Equal(t, `CREATE TABLE "products" ("id" text PRIMARY KEY, "sku" text NOT NULL, "qty" integer DEFAULT 0, "in_stock" boolean DEFAULT TRUE, "status" text DEFAULT 'draft' CHECK ("status" IN ('draft', 'it''s live')))`, stmts[0])
}

func TestCreateMetadataTable(t *testing.T) {
	g, _ := NewGenerator(dialect.SQLite)
	stmt, err := g.CreateMetadataTable("__schema")
	require.NoError(t, err)
	assert.Contains(t, stmt, `CREATE TABLE IF NOT EXISTS "__schema" ("id" text PRIMARY KEY, "name" text NOT NULL UNIQUE, `)
	assert.Contains(t, stmt, `"active" boolean NOT NULL DEFAULT TRUE`)
	assert.Contains(t, stmt, `DEFAULT CURRENT_TIMESTAMP)`)

	_, err = g.CreateMetadataTable(`x"y`)
	assert.Error(t, err)
}

func TestDDLRejectsInvalidIdentifiers(t *testing.T) {
	g, _ := NewGenerator(dialect.Postgres)
	_, err := g.DropTable(`products"; DROP TABLE users; --`)
	assert.Error(t, err)
	_, err = g.CreateIndex("products", &Index{Name: "ok_idx", Columns: []string{"select"}})
	assert.Error(t, err)
	_, err = g.AddColumn("products", &Column{Name: "note", Type: field.String(), Nullable: true, Default: "a\x00b"}, nil)
	assert.Error(t, err, "NUL bytes cannot be rendered as literals")

	stmt, err := g.DropTable("products")
	require.NoError(t, err)
	assert.Equal(t, `DROP TABLE "products"`, stmt)
}

// TestDDLExecutes runs the generated statements against SQLite.
func TestDDLExecutes(t *testing.T) {
	ctx := context.Background()
	db, err := stdsql.Open(dialect.SQLite, "file:ddl?mode=memory")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	g, _ := NewGenerator(dialect.SQLite)
	current := products(t, allFlags)
	stmts, err := g.CreateTable(NewTable(current))
	require.NoError(t, err)
	meta, err := g.CreateMetadataTable("__schema")
	require.NoError(t, err)
	for _, s := range append(stmts, meta) {
		_, err := db.ExecContext(ctx, s)
		require.NoError(t, err, s)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO "products" ("id", "sku") VALUES ('p1', 'A001')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO "products" ("id", "sku", "status") VALUES ('p2', 'A002', 'archived')`)
	require.Error(t, err, "enum CHECK constraint")

	desired, err := schema.UpdateSchemaRequest{
		Columns: []schema.ColumnDefinition{
			current.Columns[1],
			current.Columns[2],
			current.Columns[3],
			schema.Column("color", field.String()).WithDefault("red"),
			schema.Column("code", field.String()).UniqueKey(),
		},
	}.Apply(current, schema.AllowDropReferenced)
	require.NoError(t, err)

	plan := Diff(current, desired)
	require.False(t, plan.HasErrors(), plan.String())
	alter, err := g.Alter(plan)
	require.NoError(t, err)
	for _, s := range alter {
		_, err := db.ExecContext(ctx, s)
		require.NoError(t, err, s)
	}

	var color string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT "color" FROM "products" WHERE "id" = 'p1'`).Scan(&color))
	assert.Equal(t, "red", color, "existing rows receive the default")
	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info('products') WHERE name = 'sku'`).Scan(&n))
	assert.Zero(t, n, "sku was dropped")
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info('products') WHERE name = 'code'`).Scan(&n))
	assert.Equal(t, 1, n)

	drop, err := g.DropTable("products")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, drop)
	require.NoError(t, err)
}
