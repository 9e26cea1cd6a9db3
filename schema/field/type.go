package field

import (
	"fmt"
	"strings"
)

// Type is the variant tag of a ColumnType.
type Type uint8

// List of column types.
const (
	TypeInvalid Type = iota
	TypeString
	TypeInteger
	TypeDecimal
	TypeBool
	TypeTimestamp
	TypeJSON
	TypeEnum
	endTypes
)

var typeNames = [...]string{
	TypeInvalid:   "invalid",
	TypeString:    "string",
	TypeInteger:   "integer",
	TypeDecimal:   "decimal",
	TypeBool:      "boolean",
	TypeTimestamp: "timestamp",
	TypeJSON:      "json",
	TypeEnum:      "enum",
}

// typeAliases are accepted when decoding a type name.
var typeAliases = map[string]Type{
	"text":     TypeString,
	"int":      TypeInteger,
	"bigint":   TypeInteger,
	"numeric":  TypeDecimal,
	"bool":     TypeBool,
	"datetime": TypeTimestamp,
	"jsonb":    TypeJSON,
}

// String returns the string representation of a type.
func (t Type) String() string {
	if t < endTypes {
		return typeNames[t]
	}
	return typeNames[TypeInvalid]
}

// Valid reports if the given type is one of the declared variants.
func (t Type) Valid() bool {
	return t > TypeInvalid && t < endTypes
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("field: invalid type %d", t)
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for i := TypeString; i < endTypes; i++ {
		if typeNames[i] == s {
			*t = i
			return nil
		}
	}
	if a, ok := typeAliases[s]; ok {
		*t = a
		return nil
	}
	return fmt.Errorf("field: unknown type %q", string(text))
}
