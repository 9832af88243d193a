package sqlitemgmt

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/ferneyholguin/sqlitemgmt/internal/derive"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
	boolType    = reflect.TypeFor[bool]()
	valuesType  = reflect.TypeFor[Values]()
	mapType     = reflect.TypeFor[map[string]any]()
)

// Bind fills the exported func fields of the struct target points to with implementations
// backed by repo. The field name is the method name:
//
//	type ProductQueries struct {
//		FindAll            func(ctx context.Context) ([]*Product, error)
//		FindByName         func(ctx context.Context, name string) (*Product, error)
//		FindAllByLineID    func(ctx context.Context, lineID int64) ([]*Product, error)
//		CountByActive      func(ctx context.Context, active bool) (int64, error)
//		ExistsByName       func(ctx context.Context, name string) (bool, error)
//		UpdateNameById     func(ctx context.Context, name string, id int64) (int, error)
//		UpdateById         func(ctx context.Context, v sqlitemgmt.Values, id int64) (int64, error)
//		DeleteById         func(ctx context.Context, id int64) (int64, error)
//		Save               func(ctx context.Context, p *Product) (*Product, error)
//		Validate           func(ctx context.Context, p *Product) error
//		IsValid            func(ctx context.Context, p *Product) (bool, error)
//		Cheapest           func(ctx context.Context, n int) ([]*Product, error) `query:"SELECT * FROM products ORDER BY price LIMIT ?"`
//		Deactivate         func(ctx context.Context, id int64) error                `exec:"UPDATE products SET active = 0 WHERE id = ?"`
//	}
//
// Every field is checked when Bind runs. A name that does not compile, or a signature that does
// not match it, fails with ErrUnsupportedMethod and leaves target unchanged.
func Bind[T any](repo *Repository[T], target any) error {
	if repo == nil {
		return errors.New("repository must not be nil")
	}
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: target must be a non-nil pointer to a struct, got %T", ErrUnsupportedMethod, target)
	}
	v = v.Elem()
	t := v.Type()
	funcs := make(map[int]reflect.Value)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Type.Kind() != reflect.Func {
			continue
		}
		call, err := repo.binding(f)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t.Name(), f.Name, err)
		}
		funcs[i] = reflect.MakeFunc(f.Type, func(in []reflect.Value) []reflect.Value {
			ctx, _ := in[0].Interface().(context.Context)
			if ctx == nil {
				ctx = context.Background()
			}
			args := make([]any, len(in)-1)
			for i, arg := range in[1:] {
				args[i] = arg.Interface()
			}
			res, err := call(ctx, args)
			return bindResults(f.Type, res, err)
		})
	}
	for i, fn := range funcs {
		v.Field(i).Set(fn)
	}
	return nil
}

type boundCall func(ctx context.Context, args []any) (any, error)

func (r *Repository[T]) binding(f reflect.StructField) (boundCall, error) {
	ft := f.Type
	if ft.IsVariadic() || ft.NumIn() == 0 || ft.In(0) != contextType {
		return nil, fmt.Errorf("%w: first parameter must be context.Context", ErrUnsupportedMethod)
	}
	if query, ok := f.Tag.Lookup("query"); ok {
		return r.bindQuery(ft, query)
	}
	if stmt, ok := f.Tag.Lookup("exec"); ok {
		return r.bindExec(ft, stmt)
	}

	var (
		one     = reflect.TypeFor[*T]()
		many    = reflect.TypeFor[[]*T]()
		nargs   = ft.NumIn() - 1
		shapeOf = func(outs ...reflect.Type) bool { return hasResults(ft, outs...) }
	)
	switch f.Name {
	case "Save":
		if nargs != 1 || ft.In(1) != one || !(shapeOf(one, errorType) || shapeOf(errorType)) {
			return nil, fmt.Errorf("%w: want func(context.Context, %s) (%s, error)", ErrUnsupportedMethod, one, one)
		}
		return func(ctx context.Context, args []any) (any, error) {
			return r.Save(ctx, args[0].(*T))
		}, nil
	case "Validate":
		if nargs != 1 || ft.In(1) != one || !shapeOf(errorType) {
			return nil, fmt.Errorf("%w: want func(context.Context, %s) error", ErrUnsupportedMethod, one)
		}
		return func(ctx context.Context, args []any) (any, error) {
			return nil, r.Validate(ctx, args[0].(*T))
		}, nil
	case "IsValid":
		if nargs != 1 || ft.In(1) != one || !shapeOf(boolType, errorType) {
			return nil, fmt.Errorf("%w: want func(context.Context, %s) (bool, error)", ErrUnsupportedMethod, one)
		}
		return func(ctx context.Context, args []any) (any, error) {
			return r.IsValid(ctx, args[0].(*T))
		}, nil
	}

	method, err := derive.Parse(f.Name, r.entity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedMethod, err)
	}
	if nargs != method.NumArgs() {
		return nil, fmt.Errorf("%w: %s takes %d arguments, signature has %d",
			ErrUnsupportedMethod, f.Name, method.NumArgs(), nargs)
	}
	if method.Kind == derive.KindUpdateValues && ft.In(1) != valuesType && ft.In(1) != mapType {
		return nil, fmt.Errorf("%w: first argument of %s must be sqlitemgmt.Values", ErrUnsupportedMethod, f.Name)
	}
	r.methods.LoadOrStore(method.Name, method)
	name := f.Name

	switch method.Kind {
	case derive.KindFind:
		switch {
		case shapeOf(many, errorType):
			return func(ctx context.Context, args []any) (any, error) {
				return r.Find(ctx, name, args...)
			}, nil
		case shapeOf(one, errorType):
			return func(ctx context.Context, args []any) (any, error) {
				return r.FindOne(ctx, name, args...)
			}, nil
		}
		return nil, fmt.Errorf("%w: %s must return (%s, error) or (%s, error)", ErrUnsupportedMethod, name, many, one)
	case derive.KindCount:
		if !hasCountResults(ft) {
			return nil, fmt.Errorf("%w: %s must return (int64, error)", ErrUnsupportedMethod, name)
		}
		return func(ctx context.Context, args []any) (any, error) {
			return r.Count(ctx, name, args...)
		}, nil
	case derive.KindExists:
		if !shapeOf(boolType, errorType) {
			return nil, fmt.Errorf("%w: %s must return (bool, error)", ErrUnsupportedMethod, name)
		}
		return func(ctx context.Context, args []any) (any, error) {
			return r.Exists(ctx, name, args...)
		}, nil
	case derive.KindUpdate, derive.KindUpdateValues:
		if !hasCountResults(ft) && !shapeOf(errorType) {
			return nil, fmt.Errorf("%w: %s must return (int64, error)", ErrUnsupportedMethod, name)
		}
		return func(ctx context.Context, args []any) (any, error) {
			return r.Update(ctx, name, args...)
		}, nil
	case derive.KindDelete:
		if !hasCountResults(ft) && !shapeOf(errorType) {
			return nil, fmt.Errorf("%w: %s must return (int64, error)", ErrUnsupportedMethod, name)
		}
		return func(ctx context.Context, args []any) (any, error) {
			return r.Delete(ctx, name, args...)
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, name)
}

func (r *Repository[T]) bindQuery(ft reflect.Type, query string) (boundCall, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query tag", ErrUnsupportedMethod)
	}
	switch {
	case hasResults(ft, reflect.TypeFor[[]*T](), errorType):
		return func(ctx context.Context, args []any) (any, error) {
			return r.Query(ctx, query, args...)
		}, nil
	case hasResults(ft, reflect.TypeFor[*T](), errorType):
		return func(ctx context.Context, args []any) (any, error) {
			return r.QueryOne(ctx, query, args...)
		}, nil
	}
	return nil, fmt.Errorf("%w: query must return ([]*T, error) or (*T, error)", ErrUnsupportedMethod)
}

func (r *Repository[T]) bindExec(ft reflect.Type, stmt string) (boundCall, error) {
	if strings.TrimSpace(stmt) == "" {
		return nil, fmt.Errorf("%w: empty exec tag", ErrUnsupportedMethod)
	}
	if !hasResults(ft, errorType) && !hasCountResults(ft) {
		return nil, fmt.Errorf("%w: exec must return error or (int64, error)", ErrUnsupportedMethod)
	}
	return func(ctx context.Context, args []any) (any, error) {
		return r.Exec(ctx, stmt, args...)
	}, nil
}

func hasResults(ft reflect.Type, outs ...reflect.Type) bool {
	if ft.NumOut() != len(outs) {
		return false
	}
	for i, out := range outs {
		if ft.Out(i) != out {
			return false
		}
	}
	return true
}

// hasCountResults reports whether ft returns (int64, error) or (int, error).
func hasCountResults(ft reflect.Type) bool {
	if ft.NumOut() != 2 || ft.Out(1) != errorType {
		return false
	}
	k := ft.Out(0).Kind()
	return k == reflect.Int64 || k == reflect.Int
}

func bindResults(ft reflect.Type, res any, err error) []reflect.Value {
	out := make([]reflect.Value, ft.NumOut())
	last := len(out) - 1
	if err != nil {
		out[last] = reflect.ValueOf(&err).Elem()
	} else {
		out[last] = reflect.Zero(errorType)
	}
	if last == 1 {
		t := ft.Out(0)
		if err != nil || res == nil {
			out[0] = reflect.Zero(t)
		} else {
			out[0] = reflect.ValueOf(res).Convert(t)
		}
	}
	return out
}
