package sqlitemgmt

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/ferneyholguin/sqlitemgmt/internal/derive"
	"github.com/ferneyholguin/sqlitemgmt/internal/schema"
)

var (
	// ErrNotFound is returned by single-row lookups that match no row.
	ErrNotFound = errors.New("not found")

	// ErrNoTable is returned when an entity does not implement TableName or returns an empty name.
	ErrNoTable = schema.ErrNoTable
	// ErrNoColumns is returned when an entity has no `db` tagged fields.
	ErrNoColumns = schema.ErrNoColumns
	// ErrNoColumnName is returned when a `db` tag has no column name.
	ErrNoColumnName = schema.ErrNoColumnName
	// ErrUnsupportedType is returned when a field type has no SQLite column type.
	ErrUnsupportedType = schema.ErrUnsupportedType
	// ErrInvalidDefault is returned when a default value does not match its column type.
	ErrInvalidDefault = schema.ErrInvalidDefault
	// ErrNoPrimaryKey is returned when an operation needs a primary key the entity lacks.
	ErrNoPrimaryKey = schema.ErrNoPrimaryKey
	// ErrInvalidJoin is returned when a join tag is malformed or references an unknown column.
	ErrInvalidJoin = schema.ErrInvalidJoin

	// ErrFieldNotFound is returned when a method name references an unknown field.
	ErrFieldNotFound = derive.ErrFieldNotFound
	// ErrInvalidMethod is returned when a method name cannot be compiled, or is used with the
	// wrong repository operation.
	ErrInvalidMethod = derive.ErrInvalidMethod

	// ErrUnsupportedMethod is returned by Bind for fields whose name or signature it cannot
	// implement.
	ErrUnsupportedMethod = errors.New("unsupported method")
	// ErrArgCount is returned when a method receives the wrong number of arguments.
	ErrArgCount = errors.New("wrong number of arguments")
	// ErrUnsupportedArg is returned when an argument cannot be bound to a statement.
	ErrUnsupportedArg = errors.New("unsupported argument type")
	// ErrEmptyValues is returned by updateBy methods called without values.
	ErrEmptyValues = errors.New("no values to update")
	// ErrNullValue is a validation problem: a required column or join has no value.
	ErrNullValue = errors.New("value must not be null")
	// ErrDuplicateValue is a validation problem: a unique value is already used by another row.
	ErrDuplicateValue = errors.New("value already exists")
	// ErrNilEntity is returned when a nil entity is passed to Save or Validate.
	ErrNilEntity = errors.New("entity must not be nil")

	// ErrDowngrade is returned when the stored schema version is newer than the requested one and
	// downgrades are not allowed.
	ErrDowngrade = errors.New("downgrade not allowed")
	// ErrInvalidVersion is returned when a schema version is less than 1.
	ErrInvalidVersion = errors.New("version must be greater than 0")
)

// ValidationError lists every problem found by Validate.
type ValidationError struct {
	Table    string
	Problems []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Table, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() []error {
	return e.Problems
}

func newValidationError(table string, problems error) error {
	if problems == nil {
		return nil
	}
	return &ValidationError{Table: table, Problems: multierr.Errors(problems)}
}

// MigrationError is returned when the schema version transaction fails. Nothing from the
// transaction is kept.
type MigrationError struct {
	// Version is the migration or target version that failed.
	Version int64
	// Direction is "up" or "down".
	Direction string
	Err       error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration error (version:%d,direction:%s): %v", e.Version, e.Direction, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}
