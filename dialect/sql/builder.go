package sql

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/syssam/objstore/dialect"
)

// MaxIdentLen is the longest identifier accepted. It matches the Postgres
// NAMEDATALEN limit so names are never silently truncated.
const MaxIdentLen = 63

// identRe is the only shape accepted for table, column and index names.
var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// reservedWords holds the Postgres reserved keywords. They are rejected even
// though quoting would make them legal, so generated SQL stays readable and
// portable.
var reservedWords = func() map[string]struct{} {
	words := []string{
		"all", "analyse", "analyze", "and", "any", "array", "as", "asc",
		"asymmetric", "both", "case", "cast", "check", "collate", "column",
		"constraint", "create", "current_catalog", "current_date", "current_role",
		"current_time", "current_timestamp", "current_user", "default",
		"deferrable", "desc", "distinct", "do", "else", "end", "except", "false",
		"fetch", "for", "foreign", "from", "grant", "group", "having", "in",
		"initially", "intersect", "into", "lateral", "leading", "limit",
		"localtime", "localtimestamp", "not", "null", "offset", "on", "only",
		"or", "order", "placing", "primary", "references", "returning", "select",
		"session_user", "some", "symmetric", "table", "then", "to", "trailing",
		"true", "union", "unique", "user", "using", "variadic", "when", "where",
		"window", "with",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// IdentError reports a rejected identifier.
type IdentError struct {
	Name   string
	Reason string
}

// Error returns the error string.
func (e *IdentError) Error() string {
	return fmt.Sprintf("dialect/sql: invalid identifier %q: %s", e.Name, e.Reason)
}

// IsReserved reports whether name is a reserved SQL keyword.
func IsReserved(name string) bool {
	_, ok := reservedWords[strings.ToLower(name)]
	return ok
}

// ValidateIdent checks that name is a safe table, column or index name:
// lowercase ASCII letters, digits and underscores, starting with a letter,
// at most MaxIdentLen bytes, and not a reserved keyword.
func ValidateIdent(name string) error {
	switch {
	case name == "":
		return &IdentError{Name: name, Reason: "empty"}
	case len(name) > MaxIdentLen:
		return &IdentError{Name: name, Reason: fmt.Sprintf("longer than %d bytes", MaxIdentLen)}
	case !identRe.MatchString(name):
		return &IdentError{Name: name, Reason: "must match [a-z][a-z0-9_]*"}
	case IsReserved(name):
		return &IdentError{Name: name, Reason: "reserved keyword"}
	}
	return nil
}

// QuoteIdent wraps name in double quotes, doubling embedded quotes. Both
// supported dialects accept the standard quoting form.
func QuoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

// quoteString renders s as a string literal for the Postgres dialect.
func quoteString(s string) string {
	return strings.TrimSpace(pq.QuoteLiteral(s))
}

// Literal renders a canonical value as a SQL literal. It is used only where
// statements cannot carry parameters: column defaults and CHECK constraints
// in DDL. Data statements always bind values through Builder.Arg.
func Literal(name string, v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("dialect/sql: non-finite literal %v", v)
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case decimal.Decimal:
		return v.String(), nil
	case time.Time:
		return stringLiteral(name, v.UTC().Format(time.RFC3339Nano))
	case string:
		return stringLiteral(name, v)
	default:
		return "", fmt.Errorf("dialect/sql: unsupported literal type %T", v)
	}
}

func stringLiteral(name, s string) (string, error) {
	if strings.ContainsRune(s, 0) {
		return "", errors.New("dialect/sql: string literal contains NUL byte")
	}
	if name == dialect.Postgres {
		return quoteString(s), nil
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'", nil
}

// Builder accumulates SQL text and its ordered arguments. Identifiers pass
// through Ident, which validates before quoting; values pass through Arg,
// which binds them as dialect placeholders. The first error is recorded and
// returned by Query.
type Builder struct {
	sb      strings.Builder
	dialect string
	args    []any
	err     error
}

// Dialect creates a new Builder for the given dialect.
func Dialect(name string) *Builder {
	return &Builder{dialect: name}
}

// Dialect returns the builder dialect.
func (b *Builder) Dialect() string {
	return b.dialect
}

// WriteString appends trusted SQL text (keywords and operators).
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// WriteByte appends a single byte of trusted SQL text.
func (b *Builder) WriteByte(c byte) *Builder {
	b.sb.WriteByte(c)
	return b
}

// Pad appends a space.
func (b *Builder) Pad() *Builder {
	return b.WriteByte(' ')
}

// Ident validates and appends a quoted identifier.
func (b *Builder) Ident(name string) *Builder {
	if err := ValidateIdent(name); err != nil {
		b.AddError(err)
	}
	b.sb.WriteString(QuoteIdent(name))
	return b
}

// SystemIdent appends a quoted identifier that is owned by the store itself
// (auto-managed columns, the metadata table). It skips the reserved-word and
// leading-letter checks, which those names may violate by design of the
// registry, but still refuses quotes and control characters.
func (b *Builder) SystemIdent(name string) *Builder {
	if name == "" || strings.ContainsAny(name, "\"\x00") || len(name) > MaxIdentLen {
		b.AddError(&IdentError{Name: name, Reason: "invalid system identifier"})
	}
	b.sb.WriteString(QuoteIdent(name))
	return b
}

// IdentComma appends a comma separated list of quoted identifiers.
func (b *Builder) IdentComma(names ...string) *Builder {
	for i, n := range names {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Ident(n)
	}
	return b
}

// Numeric appends the quoted identifier of a decimal column as a numeric
// expression. SQLite keeps decimals as text, so the column is cast there;
// Postgres columns are numeric already.
func (b *Builder) Numeric(name string) *Builder {
	if b.dialect != dialect.SQLite {
		return b.Ident(name)
	}
	return b.WriteString("CAST(").Ident(name).WriteString(" AS NUMERIC)")
}

// Arg binds v and appends its placeholder.
func (b *Builder) Arg(v any) *Builder {
	b.args = append(b.args, v)
	if b.dialect == dialect.Postgres {
		b.sb.WriteByte('$')
		b.sb.WriteString(strconv.Itoa(len(b.args)))
	} else {
		b.sb.WriteByte('?')
	}
	return b
}

// Args binds each value and appends the comma separated placeholders.
func (b *Builder) Args(vs ...any) *Builder {
	for i, v := range vs {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Arg(v)
	}
	return b
}

// Nested wraps the text written by f in parentheses.
func (b *Builder) Nested(f func(*Builder)) *Builder {
	b.sb.WriteByte('(')
	f(b)
	b.sb.WriteByte(')')
	return b
}

// Join appends a compiled fragment. Its placeholders must have been numbered
// from the first argument, so Join is only valid on a builder that has not
// bound any value yet.
func (b *Builder) Join(p Fragment) *Builder {
	if len(b.args) > 0 && len(p.Args) > 0 && b.dialect == dialect.Postgres {
		b.AddError(errors.New("dialect/sql: fragment joined after bound arguments"))
	}
	b.sb.WriteString(p.SQL)
	b.args = append(b.args, p.Args...)
	return b
}

// Now appends the dialect expression for the current timestamp.
func (b *Builder) Now() *Builder {
	return b.WriteString(NowExpr(b.dialect))
}

// NowExpr returns the current timestamp expression of the dialect.
func NowExpr(name string) string {
	if name == dialect.Postgres {
		return "NOW()"
	}
	return "CURRENT_TIMESTAMP"
}

// AddError records err if no error was recorded yet.
func (b *Builder) AddError(err error) *Builder {
	if err != nil && b.err == nil {
		b.err = err
	}
	return b
}

// Err returns the first recorded error.
func (b *Builder) Err() error {
	return b.err
}

// Len returns the number of bound arguments.
func (b *Builder) Len() int {
	return len(b.args)
}

// String returns the accumulated SQL text.
func (b *Builder) String() string {
	return b.sb.String()
}

// Query returns the statement and its arguments.
func (b *Builder) Query() (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	return b.sb.String(), b.args, nil
}

// Fragment returns the accumulated text and arguments as a reusable fragment.
func (b *Builder) Fragment() (Fragment, error) {
	if b.err != nil {
		return Fragment{}, b.err
	}
	return Fragment{SQL: b.sb.String(), Args: b.args}, nil
}

// Fragment is compiled SQL text with its ordered arguments.
type Fragment struct {
	SQL  string
	Args []any
}

// IsEmpty reports whether the fragment has no text.
func (f Fragment) IsEmpty() bool {
	return f.SQL == ""
}
