// Package condition defines the declarative filter tree of object queries and
// compiles it into parameterized SQL predicates.
//
// A Condition is an immutable tree of leaf comparisons and And, Or and Not
// combinators. It never holds SQL text: field names are resolved against
// the schema and values are bound as placeholders when the tree is compiled.
//
//	cond := condition.Or(
//	    condition.And(condition.Gt("price", 100), condition.Eq("in_stock", true)),
//	    condition.Eq("featured", true),
//	)
//	// ((price > $1 AND in_stock = $2) OR featured = $3), args [100 true true]
package condition

import (
	"fmt"
	"slices"
	"strings"
)

// Op is the operator of a condition node.
type Op uint8

// Condition operators.
const (
	OpInvalid Op = iota
	OpEq
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpLike
	OpIsNull
	OpIsNotNull
	OpIn
	OpNotIn
	OpContains
	OpStartsWith
	OpEndsWith
	OpIsEmpty
	OpIsNotEmpty
	OpIsDefined
	OpAnd
	OpOr
	OpNot
	endOps
)

var opNames = [...]string{
	OpInvalid:    "invalid",
	OpEq:         "eq",
	OpNe:         "ne",
	OpGt:         "gt",
	OpGte:        "gte",
	OpLt:         "lt",
	OpLte:        "lte",
	OpLike:       "like",
	OpIsNull:     "is_null",
	OpIsNotNull:  "is_not_null",
	OpIn:         "in",
	OpNotIn:      "not_in",
	OpContains:   "contains",
	OpStartsWith: "starts_with",
	OpEndsWith:   "ends_with",
	OpIsEmpty:    "is_empty",
	OpIsNotEmpty: "is_not_empty",
	OpIsDefined:  "is_defined",
	OpAnd:        "and",
	OpOr:         "or",
	OpNot:        "not",
}

// sqlOps holds the SQL operator of binary comparisons.
var sqlOps = map[Op]string{
	OpEq:  "=",
	OpNe:  "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// String returns the operator name.
func (o Op) String() string {
	if o < endOps {
		return opNames[o]
	}
	return opNames[OpInvalid]
}

// ParseOp returns the operator with the given name.
func ParseOp(name string) (Op, error) {
	for o := OpEq; o < endOps; o++ {
		if opNames[o] == name {
			return o, nil
		}
	}
	return OpInvalid, fmt.Errorf("condition: unknown operator %q", name)
}

// IsLeaf reports whether the operator compares a field.
func (o Op) IsLeaf() bool {
	return o > OpInvalid && o < OpAnd
}

// unary reports whether the operator takes no operand.
func (o Op) unary() bool {
	switch o {
	case OpIsNull, OpIsNotNull, OpIsEmpty, OpIsNotEmpty, OpIsDefined:
		return true
	}
	return false
}

// Condition is a node of a filter tree. The zero value is the empty
// condition, which matches every row.
type Condition struct {
	op       Op
	field    string
	value    any
	children []Condition
}

func leaf(op Op, field string, v any) Condition {
	return Condition{op: op, field: field, value: v}
}

// Eq returns a condition matching rows where field equals v. A nil v
// matches null values.
func Eq(field string, v any) Condition { return leaf(OpEq, field, v) }

// Ne returns a condition matching rows where field differs from v. A nil v
// matches non-null values.
func Ne(field string, v any) Condition { return leaf(OpNe, field, v) }

// Gt returns a condition matching rows where field is greater than v.
func Gt(field string, v any) Condition { return leaf(OpGt, field, v) }

// Gte returns a condition matching rows where field is greater than or equal to v.
func Gte(field string, v any) Condition { return leaf(OpGte, field, v) }

// Lt returns a condition matching rows where field is less than v.
func Lt(field string, v any) Condition { return leaf(OpLt, field, v) }

// Lte returns a condition matching rows where field is less than or equal to v.
func Lte(field string, v any) Condition { return leaf(OpLte, field, v) }

// Like returns a condition matching field against a LIKE pattern. The
// pattern is passed through unmodified.
func Like(field, pattern string) Condition { return leaf(OpLike, field, pattern) }

// IsNull returns a condition matching rows where field is null.
func IsNull(field string) Condition { return leaf(OpIsNull, field, nil) }

// IsNotNull returns a condition matching rows where field is not null.
func IsNotNull(field string) Condition { return leaf(OpIsNotNull, field, nil) }

// IsEmpty returns a condition matching rows where field is null or its
// text form is the empty string.
func IsEmpty(field string) Condition { return leaf(OpIsEmpty, field, nil) }

// IsNotEmpty returns a condition matching rows where field is set to a
// value whose text form is not the empty string.
func IsNotEmpty(field string) Condition { return leaf(OpIsNotEmpty, field, nil) }

// IsDefined returns a condition matching rows where field is set.
func IsDefined(field string) Condition { return leaf(OpIsDefined, field, nil) }

// In returns a condition matching rows where field equals one of vs.
func In(field string, vs ...any) Condition { return leaf(OpIn, field, slices.Clone(vs)) }

// NotIn returns a condition matching rows where field equals none of vs.
func NotIn(field string, vs ...any) Condition { return leaf(OpNotIn, field, slices.Clone(vs)) }

// Contains returns a condition matching rows where field contains s.
// Wildcard characters in s match literally.
func Contains(field, s string) Condition { return leaf(OpContains, field, s) }

// StartsWith returns a condition matching rows where field starts with s.
func StartsWith(field, s string) Condition { return leaf(OpStartsWith, field, s) }

// EndsWith returns a condition matching rows where field ends with s.
func EndsWith(field, s string) Condition { return leaf(OpEndsWith, field, s) }

// And returns a condition matching rows that match all of cs.
func And(cs ...Condition) Condition { return Condition{op: OpAnd, children: slices.Clone(cs)} }

// Or returns a condition matching rows that match any of cs.
func Or(cs ...Condition) Condition { return Condition{op: OpOr, children: slices.Clone(cs)} }

// Not returns a condition matching rows that do not match c.
func Not(c Condition) Condition { return Condition{op: OpNot, children: []Condition{c}} }

// Op returns the node operator.
func (c Condition) Op() Op { return c.op }

// Field returns the field compared by a leaf.
func (c Condition) Field() string { return c.field }

// Value returns the operand of a leaf. In and NotIn hold a []any.
func (c Condition) Value() any {
	if vs, ok := c.value.([]any); ok {
		return slices.Clone(vs)
	}
	return c.value
}

// Children returns the operands of a combinator.
func (c Condition) Children() []Condition { return slices.Clone(c.children) }

// IsZero reports whether c is the empty condition.
func (c Condition) IsZero() bool { return c.op == OpInvalid }

// Fields returns the fields referenced by the tree, in traversal order.
func (c Condition) Fields() []string {
	var fields []string
	c.walk(func(n Condition) {
		if n.op.IsLeaf() && !slices.Contains(fields, n.field) {
			fields = append(fields, n.field)
		}
	})
	return fields
}

func (c Condition) walk(f func(Condition)) {
	f(c)
	for _, child := range c.children {
		child.walk(f)
	}
}

// String returns a readable form of the condition for logs and errors.
func (c Condition) String() string {
	var sb strings.Builder
	c.format(&sb)
	return sb.String()
}

func (c Condition) format(sb *strings.Builder) {
	switch c.op {
	case OpInvalid:
		sb.WriteString("TRUE")
	case OpAnd, OpOr:
		sep := " AND "
		if c.op == OpOr {
			sep = " OR "
		}
		sb.WriteByte('(')
		for i, child := range c.children {
			if i > 0 {
				sb.WriteString(sep)
			}
			child.format(sb)
		}
		sb.WriteByte(')')
	case OpNot:
		sb.WriteString("NOT (")
		c.children[0].format(sb)
		sb.WriteByte(')')
	case OpIsNull, OpIsNotNull, OpIsDefined:
		sb.WriteString(c.field)
		sb.WriteString(map[Op]string{OpIsNull: " IS NULL", OpIsNotNull: " IS NOT NULL", OpIsDefined: " IS NOT NULL"}[c.op])
	case OpIsEmpty, OpIsNotEmpty:
		sb.WriteString(c.field)
		sb.WriteByte(' ')
		sb.WriteString(strings.ToUpper(c.op.String()))
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		fmt.Fprintf(sb, "%s %s %v", c.field, sqlOps[c.op], formatValue(c.value))
	case OpIn, OpNotIn:
		op := " IN "
		if c.op == OpNotIn {
			op = " NOT IN "
		}
		sb.WriteString(c.field)
		sb.WriteString(op)
		sb.WriteByte('(')
		for i, v := range c.value.([]any) {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprint(sb, formatValue(v))
		}
		sb.WriteByte(')')
	default:
		fmt.Fprintf(sb, "%s %s %v", c.field, strings.ToUpper(c.op.String()), formatValue(c.value))
	}
}

func formatValue(v any) any {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return v
	}
}
