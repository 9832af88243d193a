// Package schema turns tagged Go structs into table metadata.
//
// An entity is a struct whose type (or pointer) implements [Tabler]. Columns are declared with
// the `db` tag and relationships with the `join` tag:
//
//	type Product struct {
//		ID     int    `db:"id,pk,autoincrement"`
//		Name   string `db:"name,notnull"`
//		LineID int64  `db:"line_id"`
//		Line   *Line  `join:"target=line_id,source=id"`
//	}
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNoTable is returned when the entity does not declare a table name.
	ErrNoTable = errors.New("entity has no table name")
	// ErrNoColumns is returned when the entity has no tagged columns.
	ErrNoColumns = errors.New("entity has no columns")
	// ErrNoColumnName is returned when a db tag has no column name.
	ErrNoColumnName = errors.New("column has no name")
	// ErrUnsupportedType is returned when a field type has no SQLite mapping.
	ErrUnsupportedType = errors.New("unsupported column type")
	// ErrInvalidDefault is returned when a default value does not match the column type.
	ErrInvalidDefault = errors.New("invalid default value")
	// ErrInvalidJoin is returned when a join tag is malformed.
	ErrInvalidJoin = errors.New("invalid join")
	// ErrNoPrimaryKey is returned when an operation needs a primary key the entity lacks.
	ErrNoPrimaryKey = errors.New("entity has no primary key")
)

// Tabler is implemented by entity types to name their table.
type Tabler interface {
	TableName() string
}

var timeType = reflect.TypeOf(time.Time{})

// Column describes a single `db` tagged field.
type Column struct {
	Name  string
	Field string
	Index []int
	// Type is the Go type of the field, possibly a pointer.
	Type    reflect.Type
	SQLType string

	NotNull       bool
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
	Default       string
	HasDefault    bool
}

// Nullable reports whether the Go field can hold a NULL.
func (c *Column) Nullable() bool {
	switch c.Type.Kind() {
	case reflect.Pointer:
		return true
	case reflect.Slice:
		return c.Type.Elem().Kind() == reflect.Uint8
	}
	return false
}

// Join describes a `join` tagged field referencing another entity.
type Join struct {
	Field string
	Index []int
	// Type is the Go type of the field: a struct or a pointer to one.
	Type reflect.Type
	// Related is the struct type of the referenced entity.
	Related reflect.Type

	// Target is the local column holding the reference.
	Target string
	// Source is the referenced column of the related entity. Empty means its primary key.
	Source string

	Unique     bool
	Nullable   bool
	Default    string
	HasDefault bool
}

// RelatedEntity returns the metadata of the referenced entity.
func (j *Join) RelatedEntity() (*Entity, error) {
	return Parse(j.Related)
}

// SourceColumn returns the referenced column of the related entity.
func (j *Join) SourceColumn() (*Entity, *Column, error) {
	related, err := j.RelatedEntity()
	if err != nil {
		return nil, nil, err
	}
	if j.Source == "" {
		pk := related.PrimaryKey()
		if pk == nil {
			return nil, nil, fmt.Errorf("join %s: %s: %w", j.Field, related.Table, ErrNoPrimaryKey)
		}
		return related, pk, nil
	}
	col := related.Column(j.Source)
	if col == nil {
		return nil, nil, fmt.Errorf("join %s: source column %q not found in %s: %w",
			j.Field, j.Source, related.Table, ErrInvalidJoin)
	}
	return related, col, nil
}

// Entity is the parsed metadata of an entity type.
type Entity struct {
	Type    reflect.Type
	Table   string
	Columns []*Column
	Joins   []*Join

	pk     *Column
	byName map[string]*Column
	lookup map[string]string
}

// PrimaryKey returns the primary key column, or nil.
func (e *Entity) PrimaryKey() *Column {
	return e.pk
}

// Column returns the column with the given name, or nil. SQLite identifiers are
// case-insensitive and so is the lookup.
func (e *Entity) Column(name string) *Column {
	return e.byName[strings.ToLower(name)]
}

// JoinFor returns the join whose target is the given column, or nil.
func (e *Entity) JoinFor(target string) *Join {
	for _, j := range e.Joins {
		if strings.EqualFold(j.Target, target) {
			return j
		}
	}
	return nil
}

// Resolve maps a field reference from a derived method name to a column name. The lookup is
// case-insensitive on the Go field name first, then on the column name with underscores
// removed. Join fields resolve to their target column.
func (e *Entity) Resolve(name string) (string, bool) {
	col, ok := e.lookup[normalize(name)]
	return col, ok
}

// ColumnNames returns the names of all physical columns, including generated join columns.
func (e *Entity) ColumnNames() []string {
	names := make([]string, 0, len(e.Columns)+len(e.Joins))
	for _, c := range e.Columns {
		names = append(names, c.Name)
	}
	for _, j := range e.Joins {
		if e.Column(j.Target) == nil {
			names = append(names, j.Target)
		}
	}
	return names
}

func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}

var cache sync.Map // map[reflect.Type]*Entity

// Parse returns the metadata of t, which must be a struct type or a pointer to one. Results are
// cached.
func Parse(t reflect.Type) (*Entity, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := cache.Load(t); ok {
		return cached.(*Entity), nil
	}
	e, err := parse(t)
	if err != nil {
		return nil, err
	}
	actual, _ := cache.LoadOrStore(t, e)
	return actual.(*Entity), nil
}

// Of is a convenience wrapper around Parse for a type parameter.
func Of[T any]() (*Entity, error) {
	return Parse(reflect.TypeFor[T]())
}

func parse(t reflect.Type) (*Entity, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%s: entity must be a struct: %w", t, ErrNoTable)
	}
	tabler, ok := reflect.New(t).Interface().(Tabler)
	if !ok {
		return nil, fmt.Errorf("%s does not implement TableName(): %w", t, ErrNoTable)
	}
	table := strings.TrimSpace(tabler.TableName())
	if table == "" {
		return nil, fmt.Errorf("%s: %w", t, ErrNoTable)
	}
	e := &Entity{
		Type:   t,
		Table:  table,
		byName: make(map[string]*Column),
		lookup: make(map[string]string),
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if tag, ok := f.Tag.Lookup("join"); ok {
			j, err := parseJoin(t, f, tag)
			if err != nil {
				return nil, err
			}
			e.Joins = append(e.Joins, j)
			continue
		}
		tag, ok := f.Tag.Lookup("db")
		if !ok || tag == "-" {
			continue
		}
		c, err := parseColumn(t, f, tag)
		if err != nil {
			return nil, err
		}
		if e.Column(c.Name) != nil {
			return nil, fmt.Errorf("%s: duplicate column %q", t, c.Name)
		}
		if c.PrimaryKey {
			if e.pk != nil {
				return nil, fmt.Errorf("%s: multiple primary keys (%s, %s)", t, e.pk.Name, c.Name)
			}
			e.pk = c
		}
		e.Columns = append(e.Columns, c)
		e.byName[strings.ToLower(c.Name)] = c
	}
	if len(e.Columns) == 0 {
		return nil, fmt.Errorf("%s: %w", t, ErrNoColumns)
	}
	// Field names win over column names when both normalize to the same key.
	for _, c := range e.Columns {
		e.lookup[normalize(c.Field)] = c.Name
	}
	for _, j := range e.Joins {
		if _, ok := e.lookup[normalize(j.Field)]; !ok {
			e.lookup[normalize(j.Field)] = j.Target
		}
	}
	for _, c := range e.Columns {
		if _, ok := e.lookup[normalize(c.Name)]; !ok {
			e.lookup[normalize(c.Name)] = c.Name
		}
	}
	for _, j := range e.Joins {
		if _, ok := e.lookup[normalize(j.Target)]; !ok {
			e.lookup[normalize(j.Target)] = j.Target
		}
	}
	return e, nil
}

func parseColumn(t reflect.Type, f reflect.StructField, tag string) (*Column, error) {
	name, opts, _ := strings.Cut(tag, ",")
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%s.%s: %w", t, f.Name, ErrNoColumnName)
	}
	sqlType, err := SQLType(f.Type)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", t, f.Name, err)
	}
	c := &Column{
		Name:    name,
		Field:   f.Name,
		Index:   f.Index,
		Type:    f.Type,
		SQLType: sqlType,
	}
	for opts != "" {
		var opt string
		if strings.HasPrefix(strings.TrimSpace(opts), "default=") {
			// default consumes the remainder of the tag.
			c.Default = strings.TrimPrefix(strings.TrimSpace(opts), "default=")
			c.HasDefault = c.Default != ""
			break
		}
		opt, opts, _ = strings.Cut(opts, ",")
		switch strings.TrimSpace(opt) {
		case "pk", "primarykey":
			c.PrimaryKey = true
		case "autoincrement":
			c.AutoIncrement = true
		case "notnull":
			c.NotNull = true
		case "unique":
			c.Unique = true
		case "":
		default:
			return nil, fmt.Errorf("%s.%s: unknown db tag option %q", t, f.Name, opt)
		}
	}
	if c.AutoIncrement {
		if !c.PrimaryKey || (c.SQLType != "INTEGER" && c.SQLType != "BIGINT") {
			return nil, fmt.Errorf("%s.%s: autoincrement requires an integer primary key", t, f.Name)
		}
		// SQLite only allows AUTOINCREMENT on a column declared exactly INTEGER PRIMARY KEY.
		c.SQLType = "INTEGER"
	}
	if c.HasDefault {
		if _, err := FormatDefault(f.Type, c.Default); err != nil {
			return nil, fmt.Errorf("%s.%s: column %q: %w", t, f.Name, name, err)
		}
	}
	return c, nil
}

func parseJoin(t reflect.Type, f reflect.StructField, tag string) (*Join, error) {
	related := f.Type
	if related.Kind() == reflect.Pointer {
		related = related.Elem()
	}
	if related.Kind() != reflect.Struct || related == timeType {
		return nil, fmt.Errorf("%s.%s: join field must be a struct or pointer to struct: %w",
			t, f.Name, ErrInvalidJoin)
	}
	j := &Join{
		Field:   f.Name,
		Index:   f.Index,
		Type:    f.Type,
		Related: related,
	}
	rest := tag
	for rest != "" {
		trimmed := strings.TrimSpace(rest)
		if strings.HasPrefix(trimmed, "default=") {
			j.Default = strings.TrimPrefix(trimmed, "default=")
			j.HasDefault = j.Default != ""
			break
		}
		var opt string
		opt, rest, _ = strings.Cut(rest, ",")
		opt = strings.TrimSpace(opt)
		key, value, _ := strings.Cut(opt, "=")
		switch key {
		case "target":
			j.Target = strings.TrimSpace(value)
		case "source":
			j.Source = strings.TrimSpace(value)
		case "unique":
			j.Unique = true
		case "nullable":
			j.Nullable = true
		case "":
		default:
			return nil, fmt.Errorf("%s.%s: unknown join tag option %q: %w", t, f.Name, opt, ErrInvalidJoin)
		}
	}
	if j.Target == "" {
		return nil, fmt.Errorf("%s.%s: join has no target column: %w", t, f.Name, ErrInvalidJoin)
	}
	return j, nil
}
