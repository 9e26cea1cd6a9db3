package field

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Value converts a canonical value into the value bound to a statement
// placeholder. JSON documents are bound as text and decimals as their exact
// string form.
func (t ColumnType) Value(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t.Type {
	case TypeJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("field: encode json: %w", err)
		}
		return string(b), nil
	case TypeDecimal:
		if d, ok := v.(decimal.Decimal); ok {
			return d.String(), nil
		}
	case TypeTimestamp:
		if ts, ok := v.(time.Time); ok {
			return ts.UTC(), nil
		}
	}
	return v, nil
}

// timestampLayouts are the text forms drivers return for timestamp columns.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// Scan normalizes a value read from the database into the canonical value
// of the type. Drivers differ in what they return: text may arrive as
// []byte, booleans as integers and timestamps as text.
func (t ColumnType) Scan(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch t.Type {
	case TypeString, TypeEnum:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	case TypeInteger:
		switch v := v.(type) {
		case int64:
			return v, nil
		case string:
			return strconv.ParseInt(v, 10, 64)
		case float64:
			return int64(v), nil
		}
	case TypeDecimal:
		switch v := v.(type) {
		case string:
			return decimal.NewFromString(v)
		case float64:
			return decimal.NewFromFloat(v), nil
		case int64:
			return decimal.NewFromInt(v), nil
		}
	case TypeBool:
		switch v := v.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case string:
			return strconv.ParseBool(v)
		}
	case TypeTimestamp:
		switch v := v.(type) {
		case time.Time:
			return v.UTC(), nil
		case string:
			return parseTimestamp(v)
		}
	case TypeJSON:
		if s, ok := v.(string); ok {
			var doc any
			if err := json.Unmarshal([]byte(s), &doc); err != nil {
				return nil, fmt.Errorf("field: decode json: %w", err)
			}
			return doc, nil
		}
		return v, nil
	}
	return nil, fmt.Errorf("field: unexpected %T for %s column", v, t.Type)
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("field: invalid timestamp %q", s)
}
