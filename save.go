package sqlitemgmt

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"github.com/ferneyholguin/sqlitemgmt/internal/schema"
	"github.com/ferneyholguin/sqlitemgmt/internal/sqlbuild"
)

// Save inserts entity, or updates it when its primary key is set and the row exists. Related
// entities with a zero primary key are saved first, in the same transaction, and their source
// value is copied into the local join column. An auto-increment primary key receives the
// generated id.
func (r *Repository[T]) Save(ctx context.Context, entity *T) (*T, error) {
	v, err := entityValue(entity)
	if err != nil {
		return nil, err
	}
	err = r.m.observe(ctx, r.entity.Table, "save", func(ctx context.Context) error {
		return r.m.withRetry(ctx, func(ctx context.Context) error {
			var assigned fieldLog
			err := r.m.beginTx(ctx, func(tx *sql.Tx) error {
				return r.m.save(ctx, tx, r.entity, v, &assigned)
			})
			if err != nil {
				// The rows are gone, so the ids and keys written into the entities must go too.
				assigned.restore()
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// fieldLog remembers the previous values of the fields a save assigns.
type fieldLog struct {
	fields []reflect.Value
	old    []reflect.Value
}

// set records the current value of field and then stores raw into it.
func (l *fieldLog) set(field reflect.Value, raw any) error {
	old := reflect.New(field.Type()).Elem()
	old.Set(field)
	if err := setField(field, raw); err != nil {
		return err
	}
	l.fields = append(l.fields, field)
	l.old = append(l.old, old)
	return nil
}

// restore puts back the recorded values, latest first.
func (l *fieldLog) restore() {
	for i := len(l.fields) - 1; i >= 0; i-- {
		l.fields[i].Set(l.old[i])
	}
	l.fields, l.old = nil, nil
}

func (m *Manager) save(ctx context.Context, tx *sql.Tx, e *schema.Entity, ptr reflect.Value, assigned *fieldLog) error {
	v := ptr.Elem()
	generated := make(map[string]any)
	for _, j := range e.Joins {
		key, ok, err := m.saveJoin(ctx, tx, j, v.FieldByIndex(j.Index), assigned)
		if err != nil {
			return fmt.Errorf("%s: join %s: %w", e.Table, j.Field, err)
		}
		if !ok {
			continue
		}
		if c := e.Column(j.Target); c != nil {
			if err := assigned.set(v.FieldByIndex(c.Index), key); err != nil {
				return fmt.Errorf("%s.%s: %w", e.Table, c.Name, err)
			}
		} else {
			generated[j.Target] = key
		}
	}

	var (
		cols []string
		args []any
	)
	for _, c := range e.Columns {
		field := v.FieldByIndex(c.Index)
		if skipColumn(c, field) {
			continue
		}
		arg, err := convertArg(field.Interface())
		if err != nil {
			return fmt.Errorf("%s.%s: %w", e.Table, c.Name, err)
		}
		cols = append(cols, c.Name)
		args = append(args, arg)
	}
	for _, j := range e.Joins {
		if key, ok := generated[j.Target]; ok {
			cols = append(cols, j.Target)
			args = append(args, key)
		}
	}

	pk := e.PrimaryKey()
	if pk != nil && !v.FieldByIndex(pk.Index).IsZero() {
		id, err := convertArg(v.FieldByIndex(pk.Index).Interface())
		if err != nil {
			return err
		}
		exists, err := m.rowExists(ctx, tx, e.Table, pk.Name, id)
		if err != nil {
			return err
		}
		if exists {
			return m.updateRow(ctx, tx, e, pk, id, cols, args)
		}
	}
	res, err := m.exec(ctx, tx, sqlbuild.Insert(e.Table, cols), args...)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", e.Table, err)
	}
	if pk != nil && pk.AutoIncrement && v.FieldByIndex(pk.Index).IsZero() {
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := assigned.set(v.FieldByIndex(pk.Index), id); err != nil {
			return fmt.Errorf("%s.%s: %w", e.Table, pk.Name, err)
		}
	}
	return nil
}

// skipColumn reports whether a column is left out of the INSERT or UPDATE so the database
// default applies.
func skipColumn(c *schema.Column, field reflect.Value) bool {
	switch {
	case c.Nullable() && field.IsNil():
		return true
	case c.Type == timeType && field.IsZero():
		return true
	case c.AutoIncrement && field.IsZero():
		return true
	}
	return false
}

// saveJoin saves the related entity of a join if needed and returns the value of its source
// column. ok is false when there is nothing to reference.
func (m *Manager) saveJoin(ctx context.Context, tx *sql.Tx, j *schema.Join, field reflect.Value, assigned *fieldLog) (key any, ok bool, err error) {
	related, source, err := j.SourceColumn()
	if err != nil {
		return nil, false, err
	}
	var rel reflect.Value
	switch {
	case field.Kind() == reflect.Pointer && !field.IsNil():
		rel = field
	case field.Kind() == reflect.Struct && !field.IsZero():
		rel = field.Addr()
	case j.HasDefault && !j.Nullable:
		// Reference the default row without touching it.
		def := reflect.New(source.Type).Elem()
		if err := setField(def, j.Default); err != nil {
			return nil, false, err
		}
		key, err := convertArg(def.Interface())
		return key, err == nil, err
	default:
		return nil, false, nil
	}
	if pk := related.PrimaryKey(); pk != nil && rel.Elem().FieldByIndex(pk.Index).IsZero() {
		if err := m.save(ctx, tx, related, rel, assigned); err != nil {
			return nil, false, err
		}
	}
	key, err = convertArg(rel.Elem().FieldByIndex(source.Index).Interface())
	if err != nil {
		return nil, false, err
	}
	return key, true, nil
}

func (m *Manager) rowExists(ctx context.Context, tx *sql.Tx, table, column string, value any) (bool, error) {
	var n int64
	query := sqlbuild.Count(table, []sqlbuild.Cond{{Column: column}})
	if err := m.queryRow(ctx, tx, query, value).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query %s: %w", table, err)
	}
	return n > 0, nil
}

func (m *Manager) updateRow(ctx context.Context, tx *sql.Tx, e *schema.Entity, pk *schema.Column, id any, cols []string, args []any) error {
	var (
		set    []string
		values []any
	)
	for i, col := range cols {
		if col == pk.Name {
			continue
		}
		set = append(set, col)
		values = append(values, args[i])
	}
	if len(set) == 0 {
		return nil
	}
	query := sqlbuild.Update(e.Table, set, []sqlbuild.Cond{{Column: pk.Name}})
	res, err := m.exec(ctx, tx, query, append(values, id)...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", e.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("failed to update %s: no row with %s = %v", e.Table, pk.Name, id)
	}
	return nil
}
