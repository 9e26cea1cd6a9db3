package field

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/syssam/objstore"
)

var (
	fold       = cases.Fold()
	trueWords  = map[string]bool{"true": true, "1": true, "yes": true}
	falseWords = map[string]bool{"false": true, "0": true, "no": true}
)

// Coerce converts a generic value into the canonical Go value of the type.
// Strings are routed through CoerceFromText, except for string, enum and
// json columns where they are already a valid value. A value of the wrong
// kind fails with objstore.ErrValidationFailed, unparsable text with
// objstore.ErrCoercionFailed.
func (t ColumnType) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t.Type {
	case TypeString:
		switch v := v.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
	case TypeEnum:
		if s, ok := v.(string); ok {
			return t.enumValue(s)
		}
	case TypeInteger:
		switch v := v.(type) {
		case string:
			return t.CoerceFromText(v)
		case json.Number:
			return t.CoerceFromText(v.String())
		case float64:
			if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
				return nil, objstore.NewValidationError("", "%v is not an integer", v)
			}
			return int64(v), nil
		case float32:
			return t.Coerce(float64(v))
		case decimal.Decimal:
			if !v.IsInteger() || !v.BigInt().IsInt64() {
				return nil, objstore.NewValidationError("", "%s is not an integer", v)
			}
			return v.IntPart(), nil
		default:
			if i, ok := toInt64(v); ok {
				return i, nil
			}
		}
	case TypeDecimal:
		switch v := v.(type) {
		case string:
			return t.CoerceFromText(v)
		case json.Number:
			return t.CoerceFromText(v.String())
		case decimal.Decimal:
			return t.checkDecimal(v)
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, objstore.NewValidationError("", "%v is not a finite number", v)
			}
			return t.checkDecimal(decimal.NewFromFloat(v))
		case float32:
			return t.Coerce(float64(v))
		default:
			if i, ok := toInt64(v); ok {
				return t.checkDecimal(decimal.NewFromInt(i))
			}
		}
	case TypeBool:
		switch v := v.(type) {
		case bool:
			return v, nil
		case string:
			return t.CoerceFromText(v)
		default:
			if i, ok := toInt64(v); ok && (i == 0 || i == 1) {
				return i == 1, nil
			}
		}
	case TypeTimestamp:
		switch v := v.(type) {
		case time.Time:
			return v.UTC(), nil
		case string:
			return t.CoerceFromText(v)
		}
	case TypeJSON:
		switch v := v.(type) {
		case json.RawMessage:
			return t.CoerceFromText(string(v))
		case []byte:
			return t.CoerceFromText(string(v))
		}
		if _, err := json.Marshal(v); err != nil {
			return nil, objstore.NewValidationError("", "value is not representable as JSON: %v", err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("field: unknown column type %q", t.Type)
	}
	return nil, objstore.NewValidationError("", "expected %s value, got %T", t.Type, v)
}

// CoerceFromText converts text into the canonical Go value of the type.
func (t ColumnType) CoerceFromText(s string) (any, error) {
	switch t.Type {
	case TypeString:
		return s, nil
	case TypeEnum:
		return t.enumValue(s)
	case TypeInteger:
		n, err := ParseNumber(s)
		if err != nil {
			return nil, objstore.NewCoercionError(t.String(), s)
		}
		i, ok := n.(int64)
		if !ok {
			return nil, objstore.NewCoercionError(t.String(), s)
		}
		return i, nil
	case TypeDecimal:
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return nil, objstore.NewCoercionError(t.String(), s)
		}
		return t.checkDecimal(d)
	case TypeBool:
		w := fold.String(strings.TrimSpace(s))
		switch {
		case trueWords[w]:
			return true, nil
		case falseWords[w]:
			return false, nil
		}
		return nil, objstore.NewCoercionError(t.String(), s)
	case TypeTimestamp:
		ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
		if err != nil {
			return nil, objstore.NewCoercionError(t.String(), s)
		}
		return ts.UTC(), nil
	case TypeJSON:
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, objstore.NewCoercionError(t.String(), s)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("field: unknown column type %q", t.Type)
	}
}

// ParseNumber converts numeric-looking text into an int64, or into a
// decimal.Decimal when the text has a fractional separator or does not fit
// in 64 bits.
func ParseNumber(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("field: empty number")
	}
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("field: invalid number %q", s)
	}
	return d, nil
}

func (t ColumnType) enumValue(s string) (any, error) {
	if !t.HasValue(s) {
		return nil, objstore.NewValidationError("", "%q is not one of [%s]", s, strings.Join(t.Values, ", "))
	}
	return s, nil
}

// checkDecimal verifies that d fits the declared precision and scale.
// Trailing fractional zeros beyond the scale are accepted.
func (t ColumnType) checkDecimal(d decimal.Decimal) (any, error) {
	t = t.Normalize()
	if !d.Equal(d.Truncate(int32(t.Scale))) {
		return nil, objstore.NewValidationError("", "%s has more than %d fractional digits", d, t.Scale)
	}
	intDigits := len(d.Abs().Truncate(0).String())
	if d.Abs().LessThan(decimal.NewFromInt(1)) {
		intDigits = 0
	}
	if intDigits > t.Precision-t.Scale {
		return nil, objstore.NewValidationError("", "%s exceeds %s", d, t)
	}
	return d, nil
}

func toInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if uint64(v) <= math.MaxInt64 {
			return int64(v), true
		}
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
	}
	return 0, false
}

// Annotate attaches the column name to validation and coercion errors
// returned by this package.
func Annotate(err error, column string) error {
	var ve *objstore.ValidationError
	if errors.As(err, &ve) && ve.Field == "" {
		ve.Field = column
		return err
	}
	var ce *objstore.CoercionError
	if errors.As(err, &ce) && ce.Column == "" {
		ce.Column = column
	}
	return err
}
