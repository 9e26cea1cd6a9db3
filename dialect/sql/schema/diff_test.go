package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/objstore"
	"github.com/syssam/objstore/dialect"
	"github.com/syssam/objstore/schema"
	"github.com/syssam/objstore/schema/field"
	"github.com/syssam/objstore/schema/index"
)

func update(t *testing.T, current *schema.Schema, req schema.UpdateSchemaRequest) *schema.Schema {
	t.Helper()
	next, err := req.Apply(current, schema.AllowDropReferenced)
	require.NoError(t, err)
	return next
}

func TestDiffNoChanges(t *testing.T) {
	current := products(t, allFlags)
	plan := Diff(current, current.Clone())
	assert.True(t, plan.Empty())
	assert.False(t, plan.HasErrors())
	assert.NoError(t, plan.Err())
	assert.Equal(t, "No changes", plan.String())
}

func TestDiffAddAndDrop(t *testing.T) {
	current := products(t, allFlags)
	cols := append([]schema.ColumnDefinition{}, current.Columns[1:]...)
	cols = append(cols, schema.Column("note", field.String()))
	next := update(t, current, schema.UpdateSchemaRequest{Columns: cols})

	plan := Diff(current, next)
	require.False(t, plan.HasErrors())
	require.Len(t, plan.DropColumns, 1)
	assert.Equal(t, "sku", plan.DropColumns[0].Column.Name)
	require.NotNil(t, plan.DropColumns[0].Unique)
	assert.Equal(t, "products_sku_key", plan.DropColumns[0].Unique.Name)
	require.Len(t, plan.AddColumns, 1)
	assert.Equal(t, "note", plan.AddColumns[0].Column.Name)
	assert.Nil(t, plan.AddColumns[0].Unique)
	assert.Contains(t, plan.String(), "add column products.note string")

	g, _ := NewGenerator(dialect.Postgres)
	stmts, err := g.Alter(plan)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`DROP INDEX "products_sku_key"`,
		`ALTER TABLE "products" DROP COLUMN "sku"`,
		`ALTER TABLE "products" ADD COLUMN "note" text`,
	}, stmts)
}

func TestDiffIndexes(t *testing.T) {
	current := products(t, allFlags)
	next := update(t, current, schema.UpdateSchemaRequest{
		Indexes: []index.Definition{
			index.Columns("qty").Name("status_qty").Definition(),
			index.Columns("in_stock").Unique().Definition(),
		},
	})
	plan := Diff(current, next)
	require.Len(t, plan.DropIndexes, 1)
	assert.Equal(t, "products_status_qty", plan.DropIndexes[0].Name)
	require.Len(t, plan.CreateIndexes, 2)

	g, _ := NewGenerator(dialect.SQLite)
	stmts, err := g.Alter(plan)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`DROP INDEX "products_status_qty"`,
		`CREATE INDEX "products_status_qty" ON "products" ("qty")`,
		`CREATE UNIQUE INDEX "products_in_stock_key" ON "products" ("in_stock")`,
	}, stmts)
}

func TestDiffUnsupported(t *testing.T) {
	current := products(t, allFlags)
	tests := []struct {
		name   string
		column schema.ColumnDefinition
		is     error
	}{
		{"type_change", schema.Column("qty", field.Decimal(10, 2)).WithDefault(0), objstore.ErrUnsupportedOperation},
		{"nullability", schema.Column("qty", field.Integer()).WithDefault(0).NotNull(), objstore.ErrUnsupportedOperation},
		{"unique", schema.Column("qty", field.Integer()).WithDefault(0).UniqueKey(), objstore.ErrUnsupportedOperation},
		{"default", schema.Column("qty", field.Integer()).WithDefault(5), objstore.ErrUnsupportedOperation},
		{"not_null_without_default", schema.Column("weight", field.Integer()).NotNull(), objstore.ErrInvalidColumnDefinition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols := append([]schema.ColumnDefinition{}, current.Columns...)
			if tt.column.Name == "qty" {
				cols[1] = tt.column
			} else {
				cols = append(cols, tt.column)
			}
			next := update(t, current, schema.UpdateSchemaRequest{Columns: cols})
			plan := Diff(current, next)
			require.True(t, plan.HasErrors())
			assert.ErrorIs(t, plan.Err(), tt.is)
			g, _ := NewGenerator(dialect.Postgres)
			_, err := g.Alter(plan)
			assert.ErrorIs(t, err, tt.is)
		})
	}
}
