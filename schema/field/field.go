package field

import (
	"fmt"
	"slices"
	"strings"
)

// Default decimal parameters used when neither precision nor scale is set.
const (
	DefaultPrecision = 19
	DefaultScale     = 4
	MaxPrecision     = 1000
)

// ColumnType is a closed tagged variant describing the type of a column.
// Precision and Scale apply to TypeDecimal only, Values to TypeEnum only.
type ColumnType struct {
	Type      Type     `json:"type" yaml:"type" msgpack:"type"`
	Precision int      `json:"precision,omitempty" yaml:"precision,omitempty" msgpack:"precision,omitempty"`
	Scale     int      `json:"scale,omitempty" yaml:"scale,omitempty" msgpack:"scale,omitempty"`
	Values    []string `json:"values,omitempty" yaml:"values,omitempty" msgpack:"values,omitempty"`
}

// String returns a string column type.
func String() ColumnType { return ColumnType{Type: TypeString} }

// Integer returns a 64-bit integer column type.
func Integer() ColumnType { return ColumnType{Type: TypeInteger} }

// Decimal returns an exact numeric column type with the given precision
// (total digits) and scale (fractional digits).
func Decimal(precision, scale int) ColumnType {
	return ColumnType{Type: TypeDecimal, Precision: precision, Scale: scale}
}

// Boolean returns a boolean column type.
func Boolean() ColumnType { return ColumnType{Type: TypeBool} }

// Timestamp returns a timestamp column type. Values are stored with time zone.
func Timestamp() ColumnType { return ColumnType{Type: TypeTimestamp} }

// JSON returns a column type holding an arbitrary JSON document.
func JSON() ColumnType { return ColumnType{Type: TypeJSON} }

// Enum returns a string column type restricted to the given values.
func Enum(values ...string) ColumnType {
	return ColumnType{Type: TypeEnum, Values: values}
}

// Normalize fills in the decimal defaults. Other variants are returned as is.
func (t ColumnType) Normalize() ColumnType {
	if t.Type == TypeDecimal && t.Precision == 0 && t.Scale == 0 {
		t.Precision, t.Scale = DefaultPrecision, DefaultScale
	}
	return t
}

// Check reports whether the column type is well-formed.
func (t ColumnType) Check() error {
	switch t.Type {
	case TypeString, TypeInteger, TypeBool, TypeTimestamp, TypeJSON:
		if t.Precision != 0 || t.Scale != 0 || len(t.Values) > 0 {
			return fmt.Errorf("type %s takes no parameters", t.Type)
		}
	case TypeDecimal:
		t = t.Normalize()
		switch {
		case t.Precision < 1 || t.Precision > MaxPrecision:
			return fmt.Errorf("decimal precision %d out of range [1, %d]", t.Precision, MaxPrecision)
		case t.Scale < 0:
			return fmt.Errorf("decimal scale %d is negative", t.Scale)
		case t.Scale > t.Precision:
			return fmt.Errorf("decimal scale %d exceeds precision %d", t.Scale, t.Precision)
		case len(t.Values) > 0:
			return fmt.Errorf("type decimal takes no values")
		}
	case TypeEnum:
		if len(t.Values) == 0 {
			return fmt.Errorf("enum requires at least one value")
		}
		seen := make(map[string]struct{}, len(t.Values))
		for _, v := range t.Values {
			if v == "" {
				return fmt.Errorf("enum value cannot be empty")
			}
			if _, ok := seen[v]; ok {
				return fmt.Errorf("duplicate enum value %q", v)
			}
			seen[v] = struct{}{}
		}
		if t.Precision != 0 || t.Scale != 0 {
			return fmt.Errorf("type enum takes no precision or scale")
		}
	default:
		return fmt.Errorf("unknown column type %q", t.Type)
	}
	return nil
}

// Equal reports whether two column types are identical. Enum value order
// is significant since it is part of the declaration.
func (t ColumnType) Equal(u ColumnType) bool {
	t, u = t.Normalize(), u.Normalize()
	return t.Type == u.Type &&
		t.Precision == u.Precision &&
		t.Scale == u.Scale &&
		slices.Equal(t.Values, u.Values)
}

// HasValue reports if v is one of the enum values.
func (t ColumnType) HasValue(v string) bool {
	return slices.Contains(t.Values, v)
}

// String returns a readable form of the column type, e.g. "decimal(10,2)".
func (t ColumnType) String() string {
	switch t.Type {
	case TypeDecimal:
		t = t.Normalize()
		return fmt.Sprintf("decimal(%d,%d)", t.Precision, t.Scale)
	case TypeEnum:
		return "enum(" + strings.Join(t.Values, ",") + ")"
	default:
		return t.Type.String()
	}
}
