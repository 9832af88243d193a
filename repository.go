package sqlitemgmt

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"sync"

	"github.com/ferneyholguin/sqlitemgmt/internal/derive"
	"github.com/ferneyholguin/sqlitemgmt/internal/schema"
	"github.com/ferneyholguin/sqlitemgmt/internal/sqlbuild"
)

// Values holds the columns set by an updateBy method, keyed by field or column name.
type Values map[string]any

// Repository runs queries against the table of entity type T. Queries are described by method
// names such as "findAllByLineIDOrderByNameDesc"; see Find for the grammar.
//
// A Repository is safe for concurrent use.
type Repository[T any] struct {
	m      *Manager
	entity *schema.Entity
	// methods caches compiled method names.
	methods sync.Map // map[string]*derive.Method
}

// NewRepository returns a repository for T without touching the database.
func NewRepository[T any](m *Manager) (*Repository[T], error) {
	if m == nil {
		return nil, errors.New("manager must not be nil")
	}
	entity, err := schema.Of[T]()
	if err != nil {
		return nil, err
	}
	return &Repository[T]{m: m, entity: entity}, nil
}

// Table returns the table name of T.
func (r *Repository[T]) Table() string {
	return r.entity.Table
}

func (r *Repository[T]) method(name string, kinds ...derive.Kind) (*derive.Method, error) {
	var method *derive.Method
	if cached, ok := r.methods.Load(name); ok {
		method = cached.(*derive.Method)
	} else {
		parsed, err := derive.Parse(name, r.entity)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.entity.Table, err)
		}
		actual, _ := r.methods.LoadOrStore(name, parsed)
		method = actual.(*derive.Method)
	}
	if !slices.Contains(kinds, method.Kind) {
		return nil, fmt.Errorf("%s: %q is a %s method: %w", r.entity.Table, name, method.Kind, ErrInvalidMethod)
	}
	return method, nil
}

func checkArgs(method *derive.Method, args []any) error {
	if want := method.NumArgs(); len(args) != want {
		return fmt.Errorf("%s: %w: want %d, got %d", method.Name, ErrArgCount, want, len(args))
	}
	return nil
}

// FindAll returns every row of the table.
func (r *Repository[T]) FindAll(ctx context.Context) ([]*T, error) {
	return r.Find(ctx, "findAll")
}

// Find runs a derived find method and returns the matching rows:
//
//	findAll
//	findAllOrderBy<Field>[Asc|Desc]
//	findAllBy<Where>[OrderBy<Field>[Asc|Desc]]
//	findBy<Where>[OrderBy<Field>[Asc|Desc]]
//
// where Where is fields joined by And or Or. args bind the Where fields in order.
func (r *Repository[T]) Find(ctx context.Context, method string, args ...any) ([]*T, error) {
	return r.find(ctx, method, 0, args)
}

// FindOne runs a derived find method and returns its first row, or ErrNotFound.
func (r *Repository[T]) FindOne(ctx context.Context, method string, args ...any) (*T, error) {
	found, err := r.find(ctx, method, 1, args)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%s: %s: %w", r.entity.Table, method, ErrNotFound)
	}
	return found[0], nil
}

func (r *Repository[T]) find(ctx context.Context, name string, limit int, args []any) ([]*T, error) {
	method, err := r.method(name, derive.KindFind)
	if err != nil {
		return nil, err
	}
	if err := checkArgs(method, args); err != nil {
		return nil, err
	}
	bound, err := convertArgs(args)
	if err != nil {
		return nil, err
	}
	query := sqlbuild.Select(r.entity.Table, r.entity.ColumnNames(), method.Where, method.Order, limit)
	return r.selectAll(ctx, "find", query, bound)
}

func (r *Repository[T]) selectAll(ctx context.Context, op, query string, args []any) ([]*T, error) {
	var out []*T
	err := r.m.observe(ctx, r.entity.Table, op, func(ctx context.Context) error {
		return r.m.withRetry(ctx, func(ctx context.Context) error {
			items, err := r.m.selectEntities(ctx, r.m.db, r.entity, query, args, true)
			if err != nil {
				return err
			}
			out = make([]*T, len(items))
			for i, item := range items {
				out[i] = item.Interface().(*T)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count runs "count" or a derived countBy<Where> method.
func (r *Repository[T]) Count(ctx context.Context, method string, args ...any) (int64, error) {
	return r.count(ctx, "count", method, derive.KindCount, args)
}

// Exists runs a derived existsBy<Where> method.
func (r *Repository[T]) Exists(ctx context.Context, method string, args ...any) (bool, error) {
	n, err := r.count(ctx, "exists", method, derive.KindExists, args)
	return n > 0, err
}

func (r *Repository[T]) count(ctx context.Context, op, name string, kind derive.Kind, args []any) (int64, error) {
	method, err := r.method(name, kind)
	if err != nil {
		return 0, err
	}
	if err := checkArgs(method, args); err != nil {
		return 0, err
	}
	bound, err := convertArgs(args)
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.m.observe(ctx, r.entity.Table, op, func(ctx context.Context) error {
		return r.m.withRetry(ctx, func(ctx context.Context) error {
			return r.m.queryRow(ctx, r.m.db, sqlbuild.Count(r.entity.Table, method.Where), bound...).Scan(&n)
		})
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %s: %w", r.entity.Table, name, err)
	}
	return n, nil
}

// Update runs a derived update method and returns the number of rows changed.
//
// update<Set>[By|Where<Where>] takes the Set values followed by the Where values. updateBy<Where>
// takes a Values map followed by the Where values.
func (r *Repository[T]) Update(ctx context.Context, name string, args ...any) (int64, error) {
	method, err := r.method(name, derive.KindUpdate, derive.KindUpdateValues)
	if err != nil {
		return 0, err
	}
	if err := checkArgs(method, args); err != nil {
		return 0, err
	}
	set := method.Set
	if method.Kind == derive.KindUpdateValues {
		var values []any
		set, values, err = r.resolveValues(args[0])
		if err != nil {
			return 0, fmt.Errorf("%s: %s: %w", r.entity.Table, name, err)
		}
		args = append(values, args[1:]...)
	}
	bound, err := convertArgs(args)
	if err != nil {
		return 0, err
	}
	return r.write(ctx, "update", sqlbuild.Update(r.entity.Table, set, method.Where), bound)
}

// resolveValues maps the keys of a Values argument to columns, ordered by column name.
func (r *Repository[T]) resolveValues(arg any) ([]string, []any, error) {
	var values Values
	switch v := arg.(type) {
	case Values:
		values = v
	case map[string]any:
		values = v
	case nil:
	default:
		return nil, nil, fmt.Errorf("%w: first argument must be Values, got %T", ErrUnsupportedArg, arg)
	}
	if len(values) == 0 {
		return nil, nil, ErrEmptyValues
	}
	byColumn := make(map[string]any, len(values))
	for key, v := range values {
		col, ok := r.entity.Resolve(key)
		if !ok {
			return nil, nil, fmt.Errorf("%q: %w", key, ErrFieldNotFound)
		}
		byColumn[col] = v
	}
	cols := make([]string, 0, len(byColumn))
	for col := range byColumn {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, col := range cols {
		args[i] = byColumn[col]
	}
	return cols, args, nil
}

// Delete runs a derived deleteBy<Where> method and returns the number of rows removed.
func (r *Repository[T]) Delete(ctx context.Context, name string, args ...any) (int64, error) {
	method, err := r.method(name, derive.KindDelete)
	if err != nil {
		return 0, err
	}
	if err := checkArgs(method, args); err != nil {
		return 0, err
	}
	bound, err := convertArgs(args)
	if err != nil {
		return 0, err
	}
	return r.write(ctx, "delete", sqlbuild.Delete(r.entity.Table, method.Where), bound)
}

func (r *Repository[T]) write(ctx context.Context, op, query string, args []any) (int64, error) {
	var affected int64
	err := r.m.observe(ctx, r.entity.Table, op, func(ctx context.Context) error {
		return r.m.withRetry(ctx, func(ctx context.Context) error {
			res, err := r.m.exec(ctx, r.m.db, query, args...)
			if err != nil {
				return err
			}
			affected, err = res.RowsAffected()
			return err
		})
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %s: %w", r.entity.Table, op, err)
	}
	return affected, nil
}

// entityValue returns entity as a reflect.Value, rejecting nil.
func entityValue[T any](entity *T) (reflect.Value, error) {
	if entity == nil {
		return reflect.Value{}, ErrNilEntity
	}
	return reflect.ValueOf(entity), nil
}
