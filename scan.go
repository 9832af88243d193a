package sqlitemgmt

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/ferneyholguin/sqlitemgmt/database"
	"github.com/ferneyholguin/sqlitemgmt/internal/schema"
	"github.com/ferneyholguin/sqlitemgmt/internal/sqlbuild"
)

var timeType = reflect.TypeFor[time.Time]()

// selectEntities runs query and maps every row onto a new *entity. When joins is set, join
// fields are filled one level deep once the result set is closed, so a single-connection pool
// never has two statements open.
func (m *Manager) selectEntities(
	ctx context.Context,
	db database.DBTxConn,
	e *schema.Entity,
	query string,
	args []any,
	joins bool,
) ([]reflect.Value, error) {
	rows, err := m.query(ctx, db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", e.Table, err)
	}
	items, keys, err := scanEntities(rows, e)
	if err != nil {
		return nil, err
	}
	if joins && len(e.Joins) > 0 {
		for i, item := range items {
			if err := m.resolveJoins(ctx, db, e, item, keys[i]); err != nil {
				return nil, err
			}
		}
	}
	return items, nil
}

// scanEntities maps rows by column name. Columns the entity does not declare are ignored, except
// join targets whose raw values are returned per row for join resolution.
func scanEntities(rows *sql.Rows, e *schema.Entity) (items []reflect.Value, keys [][]any, retErr error) {
	defer func() {
		retErr = multierr.Append(retErr, rows.Close())
	}()
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	targets := make([]int, len(e.Joins))
	for j, join := range e.Joins {
		targets[j] = -1
		for i, name := range cols {
			if strings.EqualFold(name, join.Target) {
				targets[j] = i
			}
		}
	}
	for rows.Next() {
		raw := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan %s: %w", e.Table, err)
		}
		item := reflect.New(e.Type)
		for i, name := range cols {
			c := e.Column(name)
			if c == nil {
				continue
			}
			if err := setField(item.Elem().FieldByIndex(c.Index), raw[i]); err != nil {
				return nil, nil, fmt.Errorf("%s.%s: %w", e.Table, name, err)
			}
		}
		rowKeys := make([]any, len(e.Joins))
		for j, i := range targets {
			if i >= 0 {
				rowKeys[j] = raw[i]
			}
		}
		items = append(items, item)
		keys = append(keys, rowKeys)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return items, keys, nil
}

func (m *Manager) resolveJoins(ctx context.Context, db database.DBTxConn, e *schema.Entity, item reflect.Value, keys []any) error {
	for j, join := range e.Joins {
		key := keys[j]
		if key == nil && join.HasDefault {
			key = join.Default
		}
		if key == nil {
			continue
		}
		related, source, err := join.SourceColumn()
		if err != nil {
			return err
		}
		query := sqlbuild.Select(related.Table, related.ColumnNames(), []sqlbuild.Cond{{Column: source.Name}}, nil, 1)
		found, err := m.selectEntities(ctx, db, related, query, []any{key}, false)
		if err != nil {
			return fmt.Errorf("join %s.%s: %w", e.Table, join.Field, err)
		}
		if len(found) == 0 {
			continue
		}
		field := item.Elem().FieldByIndex(join.Index)
		if field.Kind() == reflect.Pointer {
			field.Set(found[0])
		} else {
			field.Set(found[0].Elem())
		}
	}
	return nil
}

// setField stores a value read from SQLite into a struct field. NULL leaves the zero value.
func setField(field reflect.Value, raw any) error {
	if raw == nil {
		field.SetZero()
		return nil
	}
	if field.Kind() == reflect.Pointer {
		ptr := reflect.New(field.Type().Elem())
		if err := setField(ptr.Elem(), raw); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}
	if field.Type() == timeType {
		t, err := toTime(raw)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(t))
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		switch x := raw.(type) {
		case string:
			field.SetString(x)
		case []byte:
			field.SetString(string(x))
		case int64:
			field.SetString(strconv.FormatInt(x, 10))
		case float64:
			field.SetString(strconv.FormatFloat(x, 'g', -1, 64))
		default:
			return cannotConvert(raw, field)
		}
	case reflect.Bool:
		switch x := raw.(type) {
		case bool:
			field.SetBool(x)
		case int64:
			field.SetBool(x != 0)
		case float64:
			field.SetBool(x != 0)
		case string:
			b, err := parseBool(x)
			if err != nil {
				return err
			}
			field.SetBool(b)
		default:
			return cannotConvert(raw, field)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt(raw)
		if err != nil {
			return err
		}
		if field.OverflowInt(n) {
			return fmt.Errorf("%d overflows %s", n, field.Type())
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt(raw)
		if err != nil {
			return err
		}
		if n < 0 || field.OverflowUint(uint64(n)) {
			return fmt.Errorf("%d overflows %s", n, field.Type())
		}
		field.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		switch x := raw.(type) {
		case float64:
			field.SetFloat(x)
		case int64:
			field.SetFloat(float64(x))
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return err
			}
			field.SetFloat(f)
		default:
			return cannotConvert(raw, field)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.Uint8 {
			return cannotConvert(raw, field)
		}
		switch x := raw.(type) {
		case []byte:
			field.SetBytes(append([]byte(nil), x...))
		case string:
			field.SetBytes([]byte(x))
		default:
			return cannotConvert(raw, field)
		}
	default:
		return cannotConvert(raw, field)
	}
	return nil
}

func toInt(raw any) (int64, error) {
	switch x := raw.(type) {
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	case time.Time:
		return x.UnixMilli(), nil
	}
	return 0, fmt.Errorf("cannot convert %T to an integer", raw)
}

func toTime(raw any) (time.Time, error) {
	switch x := raw.(type) {
	case time.Time:
		return x, nil
	case int64:
		return time.UnixMilli(x), nil
	case float64:
		return time.UnixMilli(int64(x)), nil
	case []byte:
		return toTime(string(x))
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return time.UnixMilli(n), nil
		}
		return time.Parse(time.RFC3339Nano, x)
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to time.Time", raw)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true":
		return true, nil
	case "0", "false", "":
		return false, nil
	}
	return false, fmt.Errorf("cannot convert %q to bool", s)
}

func cannotConvert(raw any, field reflect.Value) error {
	return fmt.Errorf("cannot convert %T to %s", raw, field.Type())
}
