package condition_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/objstore"
	"github.com/syssam/objstore/condition"
	"github.com/syssam/objstore/dialect"
)

func TestFilterRequestPage(t *testing.T) {
	tests := []struct {
		name       string
		req        condition.FilterRequest
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{"defaults", condition.FilterRequest{}, condition.DefaultLimit, 0, false},
		{"explicit", condition.FilterRequest{Limit: 10, Offset: 20}, 10, 20, false},
		{"capped", condition.FilterRequest{Limit: 5000}, condition.MaxLimit, 0, false},
		{"negative_limit", condition.FilterRequest{Limit: -1}, 0, 0, true},
		{"negative_offset", condition.FilterRequest{Offset: -1}, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, offset, err := tt.req.Page()
			if tt.wantErr {
				assert.True(t, objstore.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}

func TestFilterRequestOrders(t *testing.T) {
	orders, err := condition.FilterRequest{}.Orders(products, "created_at")
	require.NoError(t, err)
	assert.Equal(t, []condition.Order{{Column: "created_at"}}, orders)

	orders, err = condition.FilterRequest{
		SortBy:    []string{"price", "name", "id"},
		SortOrder: []string{"DESC", "asc"},
	}.Orders(products, "created_at")
	require.NoError(t, err)
	assert.Equal(t, []condition.Order{
		{Column: "price", Desc: true},
		{Column: "name"},
		{Column: "id"},
	}, orders)

	orders, err = condition.FilterRequest{SortBy: []string{"createdAt"}, SortOrder: []string{"desc"}}.Orders(products, "id")
	require.NoError(t, err)
	assert.Equal(t, []condition.Order{{Column: "created_at", Desc: true}}, orders)

	_, err = condition.FilterRequest{SortBy: []string{"color"}}.Orders(products, "id", condition.WithSchema("product"))
	assert.True(t, objstore.IsUnknownColumn(err))

	_, err = condition.FilterRequest{SortBy: []string{"price"}, SortOrder: []string{"sideways"}}.Orders(products, "id")
	assert.True(t, objstore.IsValidationError(err))

	_, err = condition.FilterRequest{SortOrder: []string{"asc"}}.Orders(products, "id")
	assert.True(t, objstore.IsValidationError(err))
}

func TestSimpleFilter(t *testing.T) {
	f := condition.SimpleFilter{
		SchemaName: "product",
		Filters:    map[string]any{"status": "live", "in_stock": true, "price": 5},
		SortBy:     []string{"price"},
		Limit:      10,
	}
	req := f.FilterRequest()
	assert.Equal(t, 10, req.Limit)
	assert.Equal(t, []string{"price"}, req.SortBy)

	p, err := condition.Build(dialect.Postgres, products, req.Condition)
	require.NoError(t, err)
	assert.Equal(t, `("in_stock" = $1 AND "price" = $2 AND "status" = $3)`, p.SQL)
	assert.Equal(t, []any{true, int64(5), "live"}, p.Args)

	assert.True(t, condition.SimpleFilter{SchemaName: "product"}.Condition().IsZero())
}
