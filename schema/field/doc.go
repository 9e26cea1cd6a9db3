// Package field defines the closed set of column types an object schema can
// declare, and the validation and coercion rules for each of them.
//
// A column type is a tagged value: the Type tag selects the variant and the
// remaining fields carry the variant's parameters.
//
//	field.String()
//	field.Integer()
//	field.Decimal(10, 2)
//	field.Boolean()
//	field.Timestamp()
//	field.JSON()
//	field.Enum("draft", "published")
//
// # Coercion
//
// Values arrive as a generic tree (null, bool, number, string, array, object)
// and are converted to one canonical Go value per type:
//
//	Type        Canonical value
//	string      string
//	integer     int64
//	decimal     decimal.Decimal
//	boolean     bool
//	timestamp   time.Time (UTC)
//	json        decoded JSON (map[string]any, []any, ...)
//	enum        string
//
// Text input follows CoerceFromText: numeric text becomes an integer or a
// decimal depending on the fractional separator, "true"/"1"/"yes" and
// "false"/"0"/"no" (any case) become booleans, and timestamps accept RFC 3339
// only.
//
//	v, err := field.Decimal(10, 2).CoerceFromText("12.34") // decimal 12.34
//	v, err = field.Boolean().CoerceFromText("YES")         // true
//	_, err = field.Integer().CoerceFromText("abc")         // objstore.ErrCoercionFailed
//
// Every type accepts nil. Whether a column may hold null is decided by the
// column definition, not by its type.
package field
