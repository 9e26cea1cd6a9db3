package condition_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/objstore"
	"github.com/syssam/objstore/condition"
	"github.com/syssam/objstore/dialect"
	"github.com/syssam/objstore/dialect/sql"
	"github.com/syssam/objstore/schema/field"
)

type columns map[string]field.ColumnType

func (c columns) ColumnType(name string) (field.ColumnType, bool) {
	t, ok := c[name]
	return t, ok
}

var products = columns{
	"id":         field.String(),
	"name":       field.String(),
	"price":      field.Integer(),
	"amount":     field.Decimal(10, 2),
	"in_stock":   field.Boolean(),
	"featured":   field.Boolean(),
	"status":     field.Enum("draft", "live"),
	"attrs":      field.JSON(),
	"created_at": field.Timestamp(),
	"deleted":    field.Boolean(),
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name     string
		cond     condition.Condition
		wantSQL  string
		wantArgs []any
	}{
		{
			name: "or_of_and",
			cond: condition.Or(
				condition.And(condition.Gt("price", 100), condition.Eq("in_stock", true)),
				condition.Eq("featured", true),
			),
			wantSQL:  `(("price" > $1 AND "in_stock" = $2) OR "featured" = $3)`,
			wantArgs: []any{int64(100), true, true},
		},
		{
			name:     "eq_nil",
			cond:     condition.Eq("name", nil),
			wantSQL:  `"name" IS NULL`,
			wantArgs: nil,
		},
		{
			name:     "ne_nil",
			cond:     condition.Ne("name", nil),
			wantSQL:  `"name" IS NOT NULL`,
			wantArgs: nil,
		},
		{
			name:     "null_checks",
			cond:     condition.And(condition.IsNull("amount"), condition.IsNotNull("attrs")),
			wantSQL:  `("amount" IS NULL AND "attrs" IS NOT NULL)`,
			wantArgs: nil,
		},
		{
			name:     "emptiness",
			cond:     condition.Or(condition.IsEmpty("name"), condition.IsNotEmpty("attrs"), condition.IsDefined("amount")),
			wantSQL:  `(("name" IS NULL OR CAST("name" AS TEXT) = '') OR ("attrs" IS NOT NULL AND CAST("attrs" AS TEXT) <> '') OR "amount" IS NOT NULL)`,
			wantArgs: nil,
		},
		{
			name:     "comparisons",
			cond:     condition.And(condition.Gte("price", "10"), condition.Lt("price", 20), condition.Lte("amount", "9.99"), condition.Ne("name", "x")),
			wantSQL:  `("price" >= $1 AND "price" < $2 AND "amount" <= $3 AND "name" <> $4)`,
			wantArgs: []any{int64(10), int64(20), "9.99", "x"},
		},
		{
			name:     "in",
			cond:     condition.In("status", "draft", "live"),
			wantSQL:  `"status" IN ($1, $2)`,
			wantArgs: []any{"draft", "live"},
		},
		{
			name:     "not_in",
			cond:     condition.NotIn("price", 1, "2"),
			wantSQL:  `"price" NOT IN ($1, $2)`,
			wantArgs: []any{int64(1), int64(2)},
		},
		{
			name:     "not",
			cond:     condition.Not(condition.Eq("in_stock", "yes")),
			wantSQL:  `NOT ("in_stock" = $1)`,
			wantArgs: []any{true},
		},
		{
			name:     "like_passthrough",
			cond:     condition.Like("name", "wid%"),
			wantSQL:  `"name" LIKE $1`,
			wantArgs: []any{"wid%"},
		},
		{
			name:     "contains_escaped",
			cond:     condition.Contains("name", `50%_off\`),
			wantSQL:  `"name" LIKE $1 ESCAPE '\'`,
			wantArgs: []any{`%50\%\_off\\%`},
		},
		{
			name:     "starts_and_ends",
			cond:     condition.And(condition.StartsWith("name", "a_"), condition.EndsWith("status", "ve")),
			wantSQL:  `("name" LIKE $1 ESCAPE '\' AND "status" LIKE $2 ESCAPE '\')`,
			wantArgs: []any{`a\_%`, "%ve"},
		},
		{
			name:     "timestamp",
			cond:     condition.Lt("created_at", "2024-01-02T03:04:05+02:00"),
			wantSQL:  `"created_at" < $1`,
			wantArgs: []any{time.Date(2024, 1, 2, 1, 4, 5, 0, time.UTC)},
		},
		{
			name:     "json",
			cond:     condition.Eq("attrs", map[string]any{"color": "red"}),
			wantSQL:  `"attrs" = $1`,
			wantArgs: []any{`{"color":"red"}`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := condition.Build(dialect.Postgres, products, tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, p.SQL)
			assert.Equal(t, tt.wantArgs, p.Args)
		})
	}
}

func TestCompileSQLite(t *testing.T) {
	b := sql.Dialect(dialect.SQLite)
	b.WriteString("SELECT * FROM ").Ident("products").WriteString(" WHERE ")
	cond := condition.Or(
		condition.And(condition.Gt("price", 100), condition.Eq("in_stock", true)),
		condition.Eq("featured", true),
	)
	require.NoError(t, condition.Compile(b, products, cond))
	query, args, err := b.Query()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "products" WHERE (("price" > ? AND "in_stock" = ?) OR "featured" = ?)`, query)
	assert.Equal(t, []any{int64(100), true, true}, args)
}

func TestCompileSQLiteDecimal(t *testing.T) {
	p, err := condition.Build(dialect.SQLite, products, condition.And(
		condition.Gt("amount", "12345678.90"),
		condition.Eq("amount", "1.50"),
		condition.In("amount", 2),
	))
	require.NoError(t, err)
	assert.Equal(t, `(CAST("amount" AS NUMERIC) > ? AND "amount" = ? AND "amount" IN (?))`, p.SQL)
	assert.Equal(t, []any{"12345678.9", "1.5", "2"}, p.Args, "operands bound in canonical text form")

	p, err = condition.Build(dialect.Postgres, products, condition.Gt("amount", "1"))
	require.NoError(t, err)
	assert.Equal(t, `"amount" > $1`, p.SQL)
}

func TestCompileSoftDelete(t *testing.T) {
	p, err := condition.Build(dialect.Postgres, products, condition.Eq("name", "a"), condition.WithSoftDelete("deleted"))
	require.NoError(t, err)
	assert.Equal(t, `("name" = $1 AND "deleted" = $2)`, p.SQL)
	assert.Equal(t, []any{"a", false}, p.Args)

	p, err = condition.Build(dialect.Postgres, products, condition.Condition{}, condition.WithSoftDelete("deleted"))
	require.NoError(t, err)
	assert.Equal(t, `"deleted" = $1`, p.SQL)
	assert.Equal(t, []any{false}, p.Args)

	p, err = condition.Build(dialect.Postgres, products, condition.Condition{})
	require.NoError(t, err)
	assert.True(t, p.IsEmpty())
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		cond  condition.Condition
		check func(error) bool
	}{
		{"unknown_field", condition.Eq("color", "red"), objstore.IsUnknownColumn},
		{"injected_field", condition.Eq(`name" = '' OR 1=1 --`, "x"), objstore.IsUnknownColumn},
		{"unknown_nested", condition.Not(condition.Or(condition.Eq("name", "a"), condition.IsNull("nope"))), objstore.IsUnknownColumn},
		{"empty_and", condition.And(), objstore.IsValidationError},
		{"empty_or", condition.Or(), objstore.IsValidationError},
		{"nested_empty", condition.And(condition.Condition{}), objstore.IsValidationError},
		{"not_parsable", condition.Gt("price", "abc"), objstore.IsCoercionFailed},
		{"wrong_kind", condition.Eq("price", []int{1}), objstore.IsValidationError},
		{"enum_outside_set", condition.Eq("status", "archived"), objstore.IsValidationError},
		{"decimal_overflow", condition.Eq("amount", "1.234"), objstore.IsValidationError},
		{"empty_in", condition.In("status"), objstore.IsValidationError},
		{"nil_in", condition.In("status", nil), objstore.IsValidationError},
		{"gt_nil", condition.Gt("price", nil), objstore.IsValidationError},
		{"gt_json", condition.Gt("attrs", 1), objstore.IsValidationError},
		{"like_integer", condition.Like("price", "1%"), objstore.IsValidationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := condition.Build(dialect.Postgres, products, tt.cond, condition.WithSchema("product"))
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}

	_, err := condition.Build(dialect.Postgres, products, condition.Eq("color", "red"), condition.WithSchema("product"))
	var ue *objstore.UnknownColumnError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "product", ue.Schema)
	assert.Equal(t, "color", ue.Column)

	_, err = condition.Build(dialect.Postgres, products, condition.Gt("price", "abc"))
	var ce *objstore.CoercionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "price", ce.Column)
}

func TestConditionString(t *testing.T) {
	cond := condition.Or(
		condition.And(condition.Gt("price", 100), condition.Eq("in_stock", true)),
		condition.Not(condition.In("status", "draft", "live")),
		condition.IsNull("amount"),
		condition.Contains("name", "x"),
		condition.IsEmpty("name"),
		condition.IsDefined("attrs"),
	)
	assert.Equal(t, `((price > 100 AND in_stock = true) OR NOT (status IN ("draft", "live")) OR amount IS NULL OR name CONTAINS "x" OR name IS_EMPTY OR attrs IS NOT NULL)`, cond.String())
	assert.Equal(t, "TRUE", condition.Condition{}.String())
	assert.Equal(t, []string{"price", "in_stock", "status", "amount", "name", "attrs"}, cond.Fields())
}

func TestConditionImmutable(t *testing.T) {
	vs := []any{"draft"}
	in := condition.In("status", vs...)
	vs[0] = "live"
	assert.Equal(t, []any{"draft"}, in.Value())

	children := []condition.Condition{condition.Eq("name", "a")}
	and := condition.And(children...)
	children[0] = condition.Eq("name", "b")
	assert.Equal(t, "a", and.Children()[0].Value())
}

func TestConditionJSON(t *testing.T) {
	data := `{"op":"or","conditions":[
		{"op":"and","conditions":[{"op":"gt","field":"price","value":100},{"op":"eq","field":"in_stock","value":true}]},
		{"op":"eq","field":"featured","value":true}
	]}`
	cond, err := condition.Parse([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, condition.OpOr, cond.Op())
	p, err := condition.Build(dialect.Postgres, products, cond)
	require.NoError(t, err)
	assert.Equal(t, `(("price" > $1 AND "in_stock" = $2) OR "featured" = $3)`, p.SQL)
	assert.Equal(t, []any{int64(100), true, true}, p.Args)

	t.Run("round_trip", func(t *testing.T) {
		orig := condition.And(
			condition.Not(condition.IsNull("name")),
			condition.In("status", "draft"),
			condition.StartsWith("name", "w"),
			condition.Eq("amount", "12.50"),
		)
		out, err := json.Marshal(orig)
		require.NoError(t, err)
		got, err := condition.Parse(out)
		require.NoError(t, err)
		assert.Equal(t, orig.String(), got.String())
	})

	t.Run("emptiness", func(t *testing.T) {
		cond, err := condition.Parse([]byte(`{"op":"and","conditions":[{"op":"is_empty","field":"name"},{"op":"is_not_empty","field":"status"},{"op":"is_defined","field":"amount"}]}`))
		require.NoError(t, err)
		children := cond.Children()
		require.Len(t, children, 3)
		assert.Equal(t, condition.OpIsEmpty, children[0].Op())
		assert.Equal(t, condition.OpIsNotEmpty, children[1].Op())
		assert.Equal(t, condition.OpIsDefined, children[2].Op())
		out, err := json.Marshal(children[0])
		require.NoError(t, err)
		assert.JSONEq(t, `{"op":"is_empty","field":"name"}`, string(out))
	})

	t.Run("invalid", func(t *testing.T) {
		for _, data := range []string{
			`{"op":"between","field":"price","value":1}`,
			`{"op":"eq","value":1}`,
			`{"op":"in","field":"price","value":1}`,
			`{"op":"contains","field":"name","value":1}`,
			`{"op":"not"}`,
			`[1]`,
		} {
			_, err := condition.Parse([]byte(data))
			assert.Error(t, err, data)
		}
	})

	t.Run("null", func(t *testing.T) {
		var req condition.FilterRequest
		require.NoError(t, json.Unmarshal([]byte(`{"condition":null,"limit":5}`), &req))
		assert.True(t, req.Condition.IsZero())
		assert.Equal(t, 5, req.Limit)
	})
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%`, condition.EscapeLike("100%"))
	assert.Equal(t, `a\_b`, condition.EscapeLike("a_b"))
	assert.Equal(t, `c:\\dir`, condition.EscapeLike(`c:\dir`))
	assert.Equal(t, "plain", condition.EscapeLike("plain"))
}
