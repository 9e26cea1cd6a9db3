package objstore

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for every error kind reported by the store.
// Typed errors below match their sentinel through errors.Is.
var (
	// ErrSchemaNotFound is returned when a schema does not exist or is inactive.
	ErrSchemaNotFound = errors.New("objstore: schema not found")

	// ErrSchemaAlreadyExists is returned when a schema name or table name is taken.
	ErrSchemaAlreadyExists = errors.New("objstore: schema already exists")

	// ErrInvalidColumnDefinition is returned for malformed column or index definitions.
	ErrInvalidColumnDefinition = errors.New("objstore: invalid column definition")

	// ErrUnsupportedOperation is returned for schema changes the engine never performs,
	// such as rewriting the type of an existing column.
	ErrUnsupportedOperation = errors.New("objstore: unsupported operation")

	// ErrColumnInUse is returned when a dropped column is still referenced by a
	// registered unique constraint.
	ErrColumnInUse = errors.New("objstore: column in use")

	// ErrUnknownColumn is returned when a payload, condition or sort references a
	// column the schema does not declare.
	ErrUnknownColumn = errors.New("objstore: unknown column")

	// ErrValidationFailed is returned when a value does not satisfy its column type.
	ErrValidationFailed = errors.New("objstore: validation failed")

	// ErrNotNullViolation is returned when a not-null column without default has no value.
	ErrNotNullViolation = errors.New("objstore: not-null violation")

	// ErrCoercionFailed is returned when text cannot be converted to a column type.
	ErrCoercionFailed = errors.New("objstore: coercion failed")

	// ErrUniqueConstraintMissing is returned when upsert conflict columns do not
	// match a declared unique constraint.
	ErrUniqueConstraintMissing = errors.New("objstore: unique constraint missing")

	// ErrTransactionFailed is returned when the database rejects a statement or the
	// transaction cannot be completed. The transaction is always rolled back.
	ErrTransactionFailed = errors.New("objstore: transaction failed")

	// ErrInstanceNotFound is returned by single-instance operations when no
	// live row has the given identifier.
	ErrInstanceNotFound = errors.New("objstore: instance not found")
)

// SchemaNotFoundError reports a missing or inactive schema.
type SchemaNotFoundError struct {
	Name string
}

// Error returns the error string.
func (e *SchemaNotFoundError) Error() string {
	return fmt.Sprintf("objstore: schema %q not found", e.Name)
}

// Is reports whether the target error matches ErrSchemaNotFound.
func (e *SchemaNotFoundError) Is(err error) bool {
	return err == ErrSchemaNotFound
}

// NewSchemaNotFoundError returns a new SchemaNotFoundError.
func NewSchemaNotFoundError(name string) *SchemaNotFoundError {
	return &SchemaNotFoundError{Name: name}
}

// IsSchemaNotFound returns true if the error is a SchemaNotFoundError.
func IsSchemaNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrSchemaNotFound)
}

// SchemaExistsError reports a schema name or table name conflict.
type SchemaExistsError struct {
	Name  string // Conflicting value
	Field string // "name" or "table_name"
}

// Error returns the error string.
func (e *SchemaExistsError) Error() string {
	if e.Field == "table_name" {
		return fmt.Sprintf("objstore: table %q is already used by another schema", e.Name)
	}
	return fmt.Sprintf("objstore: schema %q already exists", e.Name)
}

// Is reports whether the target error matches ErrSchemaAlreadyExists.
func (e *SchemaExistsError) Is(err error) bool {
	return err == ErrSchemaAlreadyExists
}

// NewSchemaExistsError returns a new SchemaExistsError.
func NewSchemaExistsError(field, name string) *SchemaExistsError {
	return &SchemaExistsError{Name: name, Field: field}
}

// IsSchemaAlreadyExists returns true if the error is a SchemaExistsError.
func IsSchemaAlreadyExists(err error) bool {
	return err != nil && errors.Is(err, ErrSchemaAlreadyExists)
}

// ColumnDefinitionError reports a malformed column or index definition.
type ColumnDefinitionError struct {
	Column string
	Reason string
}

// Error returns the error string.
func (e *ColumnDefinitionError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("objstore: invalid column definition: %s", e.Reason)
	}
	return fmt.Sprintf("objstore: invalid column definition %q: %s", e.Column, e.Reason)
}

// Is reports whether the target error matches ErrInvalidColumnDefinition.
func (e *ColumnDefinitionError) Is(err error) bool {
	return err == ErrInvalidColumnDefinition
}

// NewColumnDefinitionError returns a new ColumnDefinitionError.
func NewColumnDefinitionError(column, format string, args ...any) *ColumnDefinitionError {
	return &ColumnDefinitionError{Column: column, Reason: fmt.Sprintf(format, args...)}
}

// IsInvalidColumnDefinition returns true if the error is a ColumnDefinitionError.
func IsInvalidColumnDefinition(err error) bool {
	return err != nil && errors.Is(err, ErrInvalidColumnDefinition)
}

// UnsupportedOperationError reports a schema change the engine refuses to perform.
type UnsupportedOperationError struct {
	Column string
	Reason string
}

// Error returns the error string.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("objstore: unsupported operation on column %q: %s", e.Column, e.Reason)
}

// Is reports whether the target error matches ErrUnsupportedOperation.
func (e *UnsupportedOperationError) Is(err error) bool {
	return err == ErrUnsupportedOperation
}

// NewUnsupportedOperationError returns a new UnsupportedOperationError.
func NewUnsupportedOperationError(column, reason string) *UnsupportedOperationError {
	return &UnsupportedOperationError{Column: column, Reason: reason}
}

// IsUnsupportedOperation returns true if the error is an UnsupportedOperationError.
func IsUnsupportedOperation(err error) bool {
	return err != nil && errors.Is(err, ErrUnsupportedOperation)
}

// ColumnInUseError reports a column that cannot be dropped because a
// registered unique constraint references it.
type ColumnInUseError struct {
	Column     string
	Constraint string
}

// Error returns the error string.
func (e *ColumnInUseError) Error() string {
	return fmt.Sprintf("objstore: column %q is referenced by unique constraint %q", e.Column, e.Constraint)
}

// Is reports whether the target error matches ErrColumnInUse.
func (e *ColumnInUseError) Is(err error) bool {
	return err == ErrColumnInUse
}

// NewColumnInUseError returns a new ColumnInUseError.
func NewColumnInUseError(column, constraint string) *ColumnInUseError {
	return &ColumnInUseError{Column: column, Constraint: constraint}
}

// IsColumnInUse returns true if the error is a ColumnInUseError.
func IsColumnInUse(err error) bool {
	return err != nil && errors.Is(err, ErrColumnInUse)
}

// UnknownColumnError reports a reference to an undeclared column.
type UnknownColumnError struct {
	Schema string
	Column string
}

// Error returns the error string.
func (e *UnknownColumnError) Error() string {
	if e.Schema == "" {
		return fmt.Sprintf("objstore: unknown column %q", e.Column)
	}
	return fmt.Sprintf("objstore: unknown column %q in schema %q", e.Column, e.Schema)
}

// Is reports whether the target error matches ErrUnknownColumn.
func (e *UnknownColumnError) Is(err error) bool {
	return err == ErrUnknownColumn
}

// NewUnknownColumnError returns a new UnknownColumnError.
func NewUnknownColumnError(schema, column string) *UnknownColumnError {
	return &UnknownColumnError{Schema: schema, Column: column}
}

// IsUnknownColumn returns true if the error is an UnknownColumnError.
func IsUnknownColumn(err error) bool {
	return err != nil && errors.Is(err, ErrUnknownColumn)
}

// ValidationError represents a value that does not satisfy its column.
type ValidationError struct {
	Field  string // Column or request field name
	Reason string
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("objstore: validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("objstore: validation failed for field %q: %s", e.Field, e.Reason)
}

// Is reports whether the target error matches ErrValidationFailed.
func (e *ValidationError) Is(err error) bool {
	return err == ErrValidationFailed
}

// NewValidationError returns a new ValidationError for the given field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	return err != nil && errors.Is(err, ErrValidationFailed)
}

// NotNullError reports a missing value for a not-null column without default.
type NotNullError struct {
	Column string
	Row    int // Payload index in a batch, -1 for single payloads
}

// Error returns the error string.
func (e *NotNullError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("objstore: column %q cannot be null (payload %d)", e.Column, e.Row)
	}
	return fmt.Sprintf("objstore: column %q cannot be null", e.Column)
}

// Is reports whether the target error matches ErrNotNullViolation.
func (e *NotNullError) Is(err error) bool {
	return err == ErrNotNullViolation
}

// NewNotNullError returns a new NotNullError.
func NewNotNullError(column string, row int) *NotNullError {
	return &NotNullError{Column: column, Row: row}
}

// IsNotNullViolation returns true if the error is a NotNullError.
func IsNotNullViolation(err error) bool {
	return err != nil && errors.Is(err, ErrNotNullViolation)
}

// CoercionError reports text or a generic value that cannot be converted to
// a column type.
type CoercionError struct {
	Column string
	Type   string
	Input  any
}

// Error returns the error string.
func (e *CoercionError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("objstore: cannot coerce %#v to %s", e.Input, e.Type)
	}
	return fmt.Sprintf("objstore: cannot coerce %#v to %s for column %q", e.Input, e.Type, e.Column)
}

// Is reports whether the target error matches ErrCoercionFailed.
func (e *CoercionError) Is(err error) bool {
	return err == ErrCoercionFailed
}

// NewCoercionError returns a new CoercionError.
func NewCoercionError(typ string, input any) *CoercionError {
	return &CoercionError{Type: typ, Input: input}
}

// IsCoercionFailed returns true if the error is a CoercionError.
func IsCoercionFailed(err error) bool {
	return err != nil && errors.Is(err, ErrCoercionFailed)
}

// UniqueConstraintMissingError reports upsert conflict columns that match no
// declared unique constraint.
type UniqueConstraintMissingError struct {
	Schema  string
	Columns []string
}

// Error returns the error string.
func (e *UniqueConstraintMissingError) Error() string {
	return fmt.Sprintf("objstore: schema %q has no unique constraint on (%s)", e.Schema, strings.Join(e.Columns, ", "))
}

// Is reports whether the target error matches ErrUniqueConstraintMissing.
func (e *UniqueConstraintMissingError) Is(err error) bool {
	return err == ErrUniqueConstraintMissing
}

// NewUniqueConstraintMissingError returns a new UniqueConstraintMissingError.
func NewUniqueConstraintMissingError(schema string, columns []string) *UniqueConstraintMissingError {
	return &UniqueConstraintMissingError{Schema: schema, Columns: columns}
}

// IsUniqueConstraintMissing returns true if the error is a UniqueConstraintMissingError.
func IsUniqueConstraintMissing(err error) bool {
	return err != nil && errors.Is(err, ErrUniqueConstraintMissing)
}

// TransactionError wraps a transport-level failure. When it is returned the
// enclosing transaction has already been rolled back.
type TransactionError struct {
	Op  string // Store operation (e.g., "create_instances")
	Err error  // Underlying driver error
}

// Error returns the error string.
func (e *TransactionError) Error() string {
	return fmt.Sprintf("objstore: %s: transaction failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransactionError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrTransactionFailed.
func (e *TransactionError) Is(err error) bool {
	return err == ErrTransactionFailed
}

// NewTransactionError returns a new TransactionError.
func NewTransactionError(op string, err error) *TransactionError {
	return &TransactionError{Op: op, Err: err}
}

// IsTransactionFailed returns true if the error is a TransactionError.
func IsTransactionFailed(err error) bool {
	return err != nil && errors.Is(err, ErrTransactionFailed)
}

// InstanceNotFoundError reports a missing instance.
type InstanceNotFoundError struct {
	Schema string
	ID     string
}

// Error returns the error string.
func (e *InstanceNotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("objstore: %s instance not found", e.Schema)
	}
	return fmt.Sprintf("objstore: %s instance not found (id=%s)", e.Schema, e.ID)
}

// Is reports whether the target error matches ErrInstanceNotFound.
func (e *InstanceNotFoundError) Is(err error) bool {
	return err == ErrInstanceNotFound
}

// NewInstanceNotFoundError returns a new InstanceNotFoundError.
func NewInstanceNotFoundError(schema, id string) *InstanceNotFoundError {
	return &InstanceNotFoundError{Schema: schema, ID: id}
}

// IsInstanceNotFound returns true if the error is an InstanceNotFoundError.
func IsInstanceNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrInstanceNotFound)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("objstore: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple errors collected during an operation,
// such as validating every payload of a batch.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "objstore: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("objstore: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors so errors.Is and errors.As inspect each one.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}
