package condition

import (
	"slices"
	"strings"

	"github.com/syssam/objstore"
)

// Page size bounds of filter requests.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Sort orders.
const (
	Asc  = "asc"
	Desc = "desc"
)

// FilterRequest selects a page of instances.
type FilterRequest struct {
	Condition Condition `json:"condition"`
	// SortBy lists the sort columns. SortOrder is parallel to it; missing
	// entries sort ascending.
	SortBy    []string `json:"sort_by,omitempty"`
	SortOrder []string `json:"sort_order,omitempty"`
	// Limit is the page size: zero selects DefaultLimit and values above
	// MaxLimit are capped.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Order is a validated sort term.
type Order struct {
	Column string
	Desc   bool
}

// sortAliases are the camelCase names accepted for the managed timestamp
// columns in sort terms. Column names are lower case, so they never shadow
// a declared column.
var sortAliases = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

// Orders validates the sort terms against cols. Without terms, the result
// sorts by fallback ascending.
func (r FilterRequest) Orders(cols Columns, fallback string, opts ...CompileOption) ([]Order, error) {
	cfg := &compileConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(r.SortOrder) > len(r.SortBy) {
		return nil, objstore.NewValidationError("sort_order", "%d orders for %d sort columns", len(r.SortOrder), len(r.SortBy))
	}
	if len(r.SortBy) == 0 {
		return []Order{{Column: fallback}}, nil
	}
	orders := make([]Order, 0, len(r.SortBy))
	for i, col := range r.SortBy {
		if alias, ok := sortAliases[col]; ok {
			col = alias
		}
		if _, ok := cols.ColumnType(col); !ok {
			return nil, objstore.NewUnknownColumnError(cfg.schema, col)
		}
		o := Order{Column: col}
		if i < len(r.SortOrder) {
			switch strings.ToLower(r.SortOrder[i]) {
			case Asc, "":
			case Desc:
				o.Desc = true
			default:
				return nil, objstore.NewValidationError("sort_order", "invalid sort order %q", r.SortOrder[i])
			}
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// Page returns the effective limit and offset.
func (r FilterRequest) Page() (limit, offset int, err error) {
	switch {
	case r.Limit < 0:
		return 0, 0, objstore.NewValidationError("limit", "negative limit %d", r.Limit)
	case r.Offset < 0:
		return 0, 0, objstore.NewValidationError("offset", "negative offset %d", r.Offset)
	case r.Limit == 0:
		return DefaultLimit, r.Offset, nil
	case r.Limit > MaxLimit:
		return MaxLimit, r.Offset, nil
	}
	return r.Limit, r.Offset, nil
}

// SimpleFilter selects instances by field equality.
type SimpleFilter struct {
	SchemaName string         `json:"schema_name"`
	Filters    map[string]any `json:"filters,omitempty"`
	SortBy     []string       `json:"sort_by,omitempty"`
	SortOrder  []string       `json:"sort_order,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	Offset     int            `json:"offset,omitempty"`
}

// Condition returns the conjunction of the equality filters, ordered by
// field name so that placeholders are numbered deterministically.
func (f SimpleFilter) Condition() Condition {
	if len(f.Filters) == 0 {
		return Condition{}
	}
	keys := make([]string, 0, len(f.Filters))
	for k := range f.Filters {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	eqs := make([]Condition, len(keys))
	for i, k := range keys {
		eqs[i] = Eq(k, f.Filters[k])
	}
	return And(eqs...)
}

// FilterRequest converts f into the equivalent FilterRequest.
func (f SimpleFilter) FilterRequest() FilterRequest {
	return FilterRequest{
		Condition: f.Condition(),
		SortBy:    slices.Clone(f.SortBy),
		SortOrder: slices.Clone(f.SortOrder),
		Limit:     f.Limit,
		Offset:    f.Offset,
	}
}
