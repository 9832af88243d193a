package sqlitemgmt

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/multierr"

	"github.com/ferneyholguin/sqlitemgmt/database"
	"github.com/ferneyholguin/sqlitemgmt/internal/schema"
	"github.com/ferneyholguin/sqlitemgmt/internal/sqlbuild"
)

// Validate checks entity against the constraints of its table without writing anything. It
// returns a *ValidationError listing every problem found: required columns and joins without a
// value, and unique values already used by another row.
func (r *Repository[T]) Validate(ctx context.Context, entity *T) error {
	v, err := entityValue(entity)
	if err != nil {
		return err
	}
	var problems error
	err = r.m.observe(ctx, r.entity.Table, "validate", func(ctx context.Context) error {
		return r.m.withRetry(ctx, func(ctx context.Context) error {
			var err error
			problems, err = r.m.validate(ctx, r.m.db, r.entity, v.Elem())
			return err
		})
	})
	if err != nil {
		return err
	}
	return newValidationError(r.entity.Table, problems)
}

// IsValid reports whether Validate finds no problem. The error is only set when the database
// could not be queried.
func (r *Repository[T]) IsValid(ctx context.Context, entity *T) (bool, error) {
	err := r.Validate(ctx, entity)
	var verr *ValidationError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &verr):
		return false, nil
	}
	return false, err
}

func (m *Manager) validate(ctx context.Context, db database.DBTxConn, e *schema.Entity, v reflect.Value) (problems, err error) {
	// The row itself is excluded from unique checks once it has a primary key.
	var self []sqlbuild.Cond
	var selfArgs []any
	if pk := e.PrimaryKey(); pk != nil && !v.FieldByIndex(pk.Index).IsZero() {
		id, err := convertArg(v.FieldByIndex(pk.Index).Interface())
		if err != nil {
			return nil, err
		}
		self = []sqlbuild.Cond{{Column: pk.Name, Not: true}}
		selfArgs = []any{id}
	}
	taken := func(column string, value any) (bool, error) {
		var n int64
		query := sqlbuild.Count(e.Table, append([]sqlbuild.Cond{{Column: column}}, self...))
		if err := m.queryRow(ctx, db, query, append([]any{value}, selfArgs...)...).Scan(&n); err != nil {
			return false, fmt.Errorf("failed to query %s: %w", e.Table, err)
		}
		return n > 0, nil
	}

	for _, c := range e.Columns {
		field := v.FieldByIndex(c.Index)
		if c.Nullable() && field.IsNil() {
			if c.NotNull && !c.HasDefault {
				problems = multierr.Append(problems, fmt.Errorf("column %q: %w", c.Name, ErrNullValue))
			}
			continue
		}
		if !c.Unique || c.AutoIncrement {
			continue
		}
		value, err := convertArg(field.Interface())
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", e.Table, c.Name, err)
		}
		ok, err := taken(c.Name, value)
		if err != nil {
			return nil, err
		}
		if ok {
			problems = multierr.Append(problems, fmt.Errorf("column %q: %v: %w", c.Name, value, ErrDuplicateValue))
		}
	}

	for _, j := range e.Joins {
		field := v.FieldByIndex(j.Index)
		missing := (field.Kind() == reflect.Pointer && field.IsNil()) ||
			(field.Kind() == reflect.Struct && field.IsZero())
		if missing {
			if !j.Nullable && !j.HasDefault {
				problems = multierr.Append(problems, fmt.Errorf("join %s: %w", j.Field, ErrNullValue))
			}
			continue
		}
		if !j.Unique {
			continue
		}
		_, source, err := j.SourceColumn()
		if err != nil {
			return nil, err
		}
		rel := field
		if rel.Kind() == reflect.Pointer {
			rel = rel.Elem()
		}
		value, err := convertArg(rel.FieldByIndex(source.Index).Interface())
		if err != nil {
			return nil, err
		}
		ok, err := taken(j.Target, value)
		if err != nil {
			return nil, err
		}
		if ok {
			problems = multierr.Append(problems, fmt.Errorf("join %s: %v: %w", j.Field, value, ErrDuplicateValue))
		}
	}
	return problems, nil
}
