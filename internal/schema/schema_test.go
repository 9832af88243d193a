package schema

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type line struct {
	ID   int64  `db:"id,pk,autoincrement"`
	Name string `db:"name,notnull,unique"`
}

func (line) TableName() string { return "lines" }

type product struct {
	ID           int       `db:"id,pk,autoincrement"`
	Name         string    `db:"name,notnull"`
	Active       bool      `db:"active,default=true"`
	Price        *float64  `db:"price"`
	Code         string    `db:"code,unique,default=it's"`
	DateCreation time.Time `db:"date_creation"`
	Image        []byte    `db:"image"`
	Line         *line     `join:"target=line_id,source=id,default=1"`
	Ignored      string
	Skipped      string `db:"-"`
}

func (*product) TableName() string { return "products" }

func TestParse(t *testing.T) {
	t.Parallel()

	e, err := Of[product]()
	require.NoError(t, err)
	require.Equal(t, "products", e.Table)
	require.Len(t, e.Columns, 7)
	require.Len(t, e.Joins, 1)
	require.Equal(t, "id", e.PrimaryKey().Name)
	require.True(t, e.PrimaryKey().AutoIncrement)
	require.Equal(t, []string{"id", "name", "active", "price", "code", "date_creation", "image", "line_id"},
		e.ColumnNames())

	active := e.Column("active")
	require.NotNil(t, active)
	require.True(t, active.HasDefault)
	require.Equal(t, "true", active.Default)
	require.False(t, active.Nullable())
	require.True(t, e.Column("price").Nullable())
	require.True(t, e.Column("image").Nullable())

	j := e.Joins[0]
	require.Equal(t, "line_id", j.Target)
	require.Equal(t, "id", j.Source)
	require.Equal(t, reflect.TypeFor[line](), j.Related)
	require.Same(t, j, e.JoinFor("line_id"))

	// Cached per type, pointer or not.
	again, err := Parse(reflect.TypeFor[*product]())
	require.NoError(t, err)
	require.Same(t, e, again)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	e, err := Of[product]()
	require.NoError(t, err)
	for name, want := range map[string]string{
		"Name":          "name",
		"name":          "name",
		"DateCreation":  "date_creation",
		"date_creation": "date_creation",
		"ID":            "id",
		"Id":            "id",
		"Line":          "line_id",
		"LineId":        "line_id",
	} {
		got, ok := e.Resolve(name)
		require.True(t, ok, name)
		require.Equal(t, want, got, name)
	}
	_, ok := e.Resolve("Ignored")
	require.False(t, ok)

	require.Same(t, e.Column("name"), e.Column("NAME"))
	require.NotNil(t, e.Column("Date_Creation"))
	require.Nil(t, e.Column("missing"))
	require.NotNil(t, e.JoinFor("LINE_ID"))
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	e, err := Of[product]()
	require.NoError(t, err)
	ddl, err := e.CreateTableSQL()
	require.NoError(t, err)
	want := `CREATE TABLE IF NOT EXISTS "products" (
"id" INTEGER PRIMARY KEY AUTOINCREMENT,
"name" TEXT NOT NULL,
"active" INTEGER DEFAULT 1,
"price" REAL,
"code" TEXT UNIQUE DEFAULT 'it''s',
"date_creation" INTEGER,
"image" BLOB,
"line_id" INTEGER NOT NULL DEFAULT 1,
FOREIGN KEY ("line_id") REFERENCES "lines" ("id")
)`
	require.Equal(t, want, ddl)

	l, err := Of[line]()
	require.NoError(t, err)
	ddl, err = l.CreateTableSQL()
	require.NoError(t, err)
	require.Equal(t, `CREATE TABLE IF NOT EXISTS "lines" (
"id" INTEGER PRIMARY KEY AUTOINCREMENT,
"name" TEXT NOT NULL UNIQUE
)`, ddl)
}

type declaredTarget struct {
	ID     int64  `db:"id,pk"`
	LineID int64  `db:"line_id"`
	Line   line   `join:"target=line_id,unique"`
	Note   string `db:"note"`
}

func (declaredTarget) TableName() string { return "declared" }

func TestCreateTableSQLDeclaredJoinTarget(t *testing.T) {
	t.Parallel()

	e, err := Of[declaredTarget]()
	require.NoError(t, err)
	require.Equal(t, []string{"id", "line_id", "note"}, e.ColumnNames())
	ddl, err := e.CreateTableSQL()
	require.NoError(t, err)
	require.Equal(t, `CREATE TABLE IF NOT EXISTS "declared" (
"id" BIGINT PRIMARY KEY,
"line_id" BIGINT NOT NULL UNIQUE,
"note" TEXT
)`, ddl)
	_, source, err := e.Joins[0].SourceColumn()
	require.NoError(t, err)
	require.Equal(t, "id", source.Name)
}

type noTable struct {
	ID int `db:"id"`
}

type emptyTable struct {
	ID int `db:"id"`
}

func (emptyTable) TableName() string { return " " }

type noColumns struct {
	Name string
}

func (noColumns) TableName() string { return "x" }

type noColumnName struct {
	Name string `db:",notnull"`
}

func (noColumnName) TableName() string { return "x" }

type badType struct {
	Tags map[string]string `db:"tags"`
}

func (badType) TableName() string { return "x" }

type badDefault struct {
	Count int `db:"count,default=many"`
}

func (badDefault) TableName() string { return "x" }

type badBoolDefault struct {
	On bool `db:"on,default=yes"`
}

func (badBoolDefault) TableName() string { return "x" }

type badJoin struct {
	ID   int   `db:"id"`
	Line *line `join:"source=id"`
}

func (badJoin) TableName() string { return "x" }

type badJoinSource struct {
	ID   int   `db:"id"`
	Line *line `join:"target=line_id,source=missing"`
}

func (badJoinSource) TableName() string { return "x" }

type badAutoIncrement struct {
	ID string `db:"id,pk,autoincrement"`
}

func (badAutoIncrement) TableName() string { return "x" }

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		typ  reflect.Type
		want error
	}{
		{"no table", reflect.TypeFor[noTable](), ErrNoTable},
		{"empty table", reflect.TypeFor[emptyTable](), ErrNoTable},
		{"not a struct", reflect.TypeFor[int](), ErrNoTable},
		{"no columns", reflect.TypeFor[noColumns](), ErrNoColumns},
		{"no column name", reflect.TypeFor[noColumnName](), ErrNoColumnName},
		{"unsupported type", reflect.TypeFor[badType](), ErrUnsupportedType},
		{"invalid default", reflect.TypeFor[badDefault](), ErrInvalidDefault},
		{"invalid bool default", reflect.TypeFor[badBoolDefault](), ErrInvalidDefault},
		{"join without target", reflect.TypeFor[badJoin](), ErrInvalidJoin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.typ)
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.want), err.Error())
		})
	}

	t.Run("autoincrement text", func(t *testing.T) {
		_, err := Of[badAutoIncrement]()
		require.Error(t, err)
		require.Contains(t, err.Error(), "autoincrement")
	})
	t.Run("join source missing", func(t *testing.T) {
		e, err := Of[badJoinSource]()
		require.NoError(t, err)
		_, err = e.CreateTableSQL()
		require.ErrorIs(t, err, ErrInvalidJoin)
	})
}

func TestSQLType(t *testing.T) {
	t.Parallel()

	for typ, want := range map[reflect.Type]string{
		reflect.TypeFor[string]():    "TEXT",
		reflect.TypeFor[*string]():   "TEXT",
		reflect.TypeFor[int]():       "INTEGER",
		reflect.TypeFor[int16]():     "INTEGER",
		reflect.TypeFor[uint32]():    "INTEGER",
		reflect.TypeFor[bool]():      "INTEGER",
		reflect.TypeFor[int64]():     "BIGINT",
		reflect.TypeFor[uint64]():    "BIGINT",
		reflect.TypeFor[float32]():   "REAL",
		reflect.TypeFor[*float64]():  "REAL",
		reflect.TypeFor[[]byte]():    "BLOB",
		reflect.TypeFor[time.Time](): "INTEGER",
	} {
		got, err := SQLType(typ)
		require.NoError(t, err, typ.String())
		require.Equal(t, want, got, typ.String())
	}
	_, err := SQLType(reflect.TypeFor[[]string]())
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestFormatDefault(t *testing.T) {
	t.Parallel()

	got, err := FormatDefault(reflect.TypeFor[bool](), "FALSE")
	require.NoError(t, err)
	require.Equal(t, "0", got)
	got, err = FormatDefault(reflect.TypeFor[*float64](), "1.5")
	require.NoError(t, err)
	require.Equal(t, "1.5", got)
	got, err = FormatDefault(reflect.TypeFor[time.Time](), "1700000000000")
	require.NoError(t, err)
	require.Equal(t, "1700000000000", got)
	_, err = FormatDefault(reflect.TypeFor[float64](), "abc")
	require.ErrorIs(t, err, ErrInvalidDefault)
	_, err = FormatDefault(reflect.TypeFor[[]byte](), "abc")
	require.ErrorIs(t, err, ErrInvalidDefault)
}
