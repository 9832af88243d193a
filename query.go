package sqlitemgmt

import (
	"context"
	"fmt"
)

// Query runs a custom SELECT and maps its rows onto T by column name. Columns T does not declare
// are ignored.
func (r *Repository[T]) Query(ctx context.Context, query string, args ...any) ([]*T, error) {
	bound, err := convertArgs(args)
	if err != nil {
		return nil, err
	}
	return r.selectAll(ctx, "query", query, bound)
}

// QueryOne runs a custom SELECT and returns its first row, or ErrNotFound.
func (r *Repository[T]) QueryOne(ctx context.Context, query string, args ...any) (*T, error) {
	found, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%s: %w", r.entity.Table, ErrNotFound)
	}
	return found[0], nil
}

// Exec runs a custom statement with bound arguments and returns the number of rows affected.
func (r *Repository[T]) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	bound, err := convertArgs(args)
	if err != nil {
		return 0, err
	}
	return r.write(ctx, "exec", query, bound)
}
