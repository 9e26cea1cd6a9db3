package condition

import (
	"strings"

	"github.com/syssam/objstore"
	"github.com/syssam/objstore/dialect/sql"
	"github.com/syssam/objstore/schema/field"
)

// Columns resolves a field name to its column type. System columns are
// resolved as well. *schema.Schema implements it.
type Columns interface {
	ColumnType(name string) (field.ColumnType, bool)
}

// Predicate is a compiled condition. Page and count queries of the same
// filter join the same Predicate.
type Predicate = sql.Fragment

type compileConfig struct {
	schema     string
	softDelete string
}

// CompileOption configures Compile.
type CompileOption func(*compileConfig)

// WithSoftDelete restricts the predicate to rows whose column is false.
// The restriction is appended after the caller condition.
func WithSoftDelete(column string) CompileOption {
	return func(c *compileConfig) {
		c.softDelete = column
	}
}

// WithSchema names the schema in unknown column errors.
func WithSchema(name string) CompileOption {
	return func(c *compileConfig) {
		c.schema = name
	}
}

// Compile writes the predicate of c into b. Field names are resolved through
// cols and every operand is coerced to its column type and bound as a
// placeholder. Nothing is written for the empty condition.
func Compile(b *sql.Builder, cols Columns, c Condition, opts ...CompileOption) error {
	cfg := &compileConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.softDelete != "" {
		live := Eq(cfg.softDelete, false)
		if c.IsZero() {
			c = live
		} else {
			c = And(c, live)
		}
	}
	if c.IsZero() {
		return b.Err()
	}
	cc := &compiler{b: b, cols: cols, schema: cfg.schema}
	if err := cc.node(c); err != nil {
		return err
	}
	return b.Err()
}

// Build compiles c into a standalone Predicate for the dialect.
func Build(dialect string, cols Columns, c Condition, opts ...CompileOption) (Predicate, error) {
	b := sql.Dialect(dialect)
	if err := Compile(b, cols, c, opts...); err != nil {
		return Predicate{}, err
	}
	return b.Fragment()
}

type compiler struct {
	b      *sql.Builder
	cols   Columns
	schema string
}

func (cc *compiler) node(c Condition) error {
	switch c.op {
	case OpAnd, OpOr:
		if len(c.children) == 0 {
			return objstore.NewValidationError("", "%s condition without operands", c.op)
		}
		sep := " AND "
		if c.op == OpOr {
			sep = " OR "
		}
		cc.b.WriteByte('(')
		for i, child := range c.children {
			if i > 0 {
				cc.b.WriteString(sep)
			}
			if err := cc.node(child); err != nil {
				return err
			}
		}
		cc.b.WriteByte(')')
		return nil
	case OpNot:
		if len(c.children) != 1 || c.children[0].IsZero() {
			return objstore.NewValidationError("", "not condition without operand")
		}
		cc.b.WriteString("NOT (")
		if err := cc.node(c.children[0]); err != nil {
			return err
		}
		cc.b.WriteByte(')')
		return nil
	case OpInvalid:
		return objstore.NewValidationError("", "empty condition cannot be nested")
	default:
		return cc.leaf(c)
	}
}

func (cc *compiler) leaf(c Condition) error {
	typ, ok := cc.cols.ColumnType(c.field)
	if !ok {
		return objstore.NewUnknownColumnError(cc.schema, c.field)
	}
	switch c.op {
	case OpIsNull:
		cc.b.Ident(c.field).WriteString(" IS NULL")
	case OpIsNotNull, OpIsDefined:
		cc.b.Ident(c.field).WriteString(" IS NOT NULL")
	case OpIsEmpty:
		cc.b.WriteByte('(').Ident(c.field).WriteString(" IS NULL OR CAST(").
			Ident(c.field).WriteString(" AS TEXT) = '')")
	case OpIsNotEmpty:
		cc.b.WriteByte('(').Ident(c.field).WriteString(" IS NOT NULL AND CAST(").
			Ident(c.field).WriteString(" AS TEXT) <> '')")
	case OpEq, OpNe:
		if c.value == nil {
			cc.b.Ident(c.field)
			if c.op == OpEq {
				cc.b.WriteString(" IS NULL")
			} else {
				cc.b.WriteString(" IS NOT NULL")
			}
			return nil
		}
		return cc.compare(c, typ)
	case OpGt, OpGte, OpLt, OpLte:
		if c.value == nil {
			return objstore.NewValidationError(c.field, "%s requires a value", c.op)
		}
		if typ.Type == field.TypeJSON {
			return objstore.NewValidationError(c.field, "%s is not supported on json columns", c.op)
		}
		return cc.compare(c, typ)
	case OpIn, OpNotIn:
		return cc.list(c, typ)
	case OpLike, OpContains, OpStartsWith, OpEndsWith:
		return cc.like(c, typ)
	default:
		return objstore.NewValidationError(c.field, "unknown operator %d", c.op)
	}
	return nil
}

func (cc *compiler) compare(c Condition, typ field.ColumnType) error {
	v, err := cc.operand(c.field, typ, c.value)
	if err != nil {
		return err
	}
	switch c.op {
	case OpEq, OpNe:
		cc.b.Ident(c.field)
	default:
		OrderColumn(cc.b, typ, c.field)
	}
	cc.b.WriteString(" " + sqlOps[c.op] + " ").Arg(v)
	return nil
}

// OrderColumn appends the column as an expression that compares in the
// natural order of its type. Decimal columns compare as numbers.
func OrderColumn(b *sql.Builder, typ field.ColumnType, name string) {
	if typ.Type == field.TypeDecimal {
		b.Numeric(name)
		return
	}
	b.Ident(name)
}

func (cc *compiler) list(c Condition, typ field.ColumnType) error {
	vs, _ := c.value.([]any)
	if len(vs) == 0 {
		return objstore.NewValidationError(c.field, "%s requires at least one value", c.op)
	}
	args := make([]any, len(vs))
	for i, v := range vs {
		if v == nil {
			return objstore.NewValidationError(c.field, "%s does not accept null values", c.op)
		}
		arg, err := cc.operand(c.field, typ, v)
		if err != nil {
			return err
		}
		args[i] = arg
	}
	cc.b.Ident(c.field)
	if c.op == OpNotIn {
		cc.b.WriteString(" NOT IN ")
	} else {
		cc.b.WriteString(" IN ")
	}
	cc.b.Nested(func(b *sql.Builder) { b.Args(args...) })
	return nil
}

func (cc *compiler) like(c Condition, typ field.ColumnType) error {
	if typ.Type != field.TypeString && typ.Type != field.TypeEnum {
		return objstore.NewValidationError(c.field, "%s requires a string column, got %s", c.op, typ)
	}
	s, ok := c.value.(string)
	if !ok {
		return objstore.NewValidationError(c.field, "%s requires a string operand, got %T", c.op, c.value)
	}
	cc.b.Ident(c.field).WriteString(" LIKE ")
	switch c.op {
	case OpLike:
		cc.b.Arg(s)
		return nil
	case OpContains:
		cc.b.Arg("%" + EscapeLike(s) + "%")
	case OpStartsWith:
		cc.b.Arg(EscapeLike(s) + "%")
	case OpEndsWith:
		cc.b.Arg("%" + EscapeLike(s))
	}
	cc.b.WriteString(` ESCAPE '\'`)
	return nil
}

// operand coerces v to the column type and converts it to its bound form.
func (cc *compiler) operand(name string, typ field.ColumnType, v any) (any, error) {
	cv, err := typ.Coerce(v)
	if err != nil {
		return nil, field.Annotate(err, name)
	}
	bv, err := typ.Value(cv)
	if err != nil {
		return nil, field.Annotate(err, name)
	}
	return bv, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes the LIKE wildcards of s so that it matches literally
// under ESCAPE '\'.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

