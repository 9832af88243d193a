package derive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ferneyholguin/sqlitemgmt/internal/sqlbuild"
)

type fields map[string]string

func (f fields) Resolve(name string) (string, bool) {
	col, ok := f[strings.ToLower(name)]
	return col, ok
}

var products = fields{
	"id":           "id",
	"name":         "name",
	"active":       "active",
	"lineid":       "line_id",
	"line":         "line_id",
	"datecreation": "date_creation",
	"createdby":    "created_by",
	"sizeandcolor": "size_and_color",
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := map[string][]string{
		"findAll":                                 {"find", "All"},
		"FindByName":                              {"Find", "By", "Name"},
		"findAllByLineIDOrderByDateCreationDesc":  {"find", "All", "By", "Line", "ID", "Order", "By", "Date", "Creation", "Desc"},
		"existsByIDAndName":                       {"exists", "By", "ID", "And", "Name"},
		"findByDate_creation":                     {"find", "By", "Date", "creation"},
		"updateName2ById":                         {"update", "Name2", "By", "Id"},
		"":                                        nil,
	}
	for name, want := range tests {
		require.Equal(t, want, Tokenize(name), name)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want *Method
	}{
		{
			name: "findAll",
			want: &Method{Kind: KindFind, All: true},
		},
		{
			name: "findAllOrderByNameDesc",
			want: &Method{Kind: KindFind, All: true, Order: &sqlbuild.Order{Column: "name", Desc: true}},
		},
		{
			name: "findAllOrderByDateCreation",
			want: &Method{Kind: KindFind, All: true, Order: &sqlbuild.Order{Column: "date_creation"}},
		},
		{
			name: "findAllByLineIDOrderByDateCreationAsc",
			want: &Method{
				Kind:  KindFind,
				All:   true,
				Where: []sqlbuild.Cond{{Column: "line_id"}},
				Order: &sqlbuild.Order{Column: "date_creation"},
			},
		},
		{
			name: "FindByNameAndActive",
			want: &Method{Kind: KindFind, Where: []sqlbuild.Cond{{Column: "name"}, {Column: "active"}}},
		},
		{
			name: "findByIdOrName",
			want: &Method{Kind: KindFind, Where: []sqlbuild.Cond{{Column: "id"}, {Column: "name", Or: true}}},
		},
		{
			name: "findBySizeAndColor",
			want: &Method{Kind: KindFind, Where: []sqlbuild.Cond{{Column: "size_and_color"}}},
		},
		{
			name: "count",
			want: &Method{Kind: KindCount},
		},
		{
			name: "countByActive",
			want: &Method{Kind: KindCount, Where: []sqlbuild.Cond{{Column: "active"}}},
		},
		{
			name: "existsById",
			want: &Method{Kind: KindExists, Where: []sqlbuild.Cond{{Column: "id"}}},
		},
		{
			name: "deleteByNameOrLine",
			want: &Method{Kind: KindDelete, Where: []sqlbuild.Cond{{Column: "name"}, {Column: "line_id", Or: true}}},
		},
		{
			name: "updateById",
			want: &Method{Kind: KindUpdateValues, Where: []sqlbuild.Cond{{Column: "id"}}},
		},
		{
			name: "updateNameAndActiveById",
			want: &Method{Kind: KindUpdate, Set: []string{"name", "active"}, Where: []sqlbuild.Cond{{Column: "id"}}},
		},
		{
			name: "updateNameActiveWhereLineID",
			want: &Method{Kind: KindUpdate, Set: []string{"name", "active"}, Where: []sqlbuild.Cond{{Column: "line_id"}}},
		},
		{
			name: "updateCreatedByById",
			want: &Method{Kind: KindUpdate, Set: []string{"created_by"}, Where: []sqlbuild.Cond{{Column: "id"}}},
		},
		{
			name: "updateActive",
			want: &Method{Kind: KindUpdate, Set: []string{"active"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.name, products)
			require.NoError(t, err)
			tt.want.Name = tt.name
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNumArgs(t *testing.T) {
	t.Parallel()

	m, err := Parse("updateById", products)
	require.NoError(t, err)
	require.Equal(t, 2, m.NumArgs())
	m, err = Parse("updateNameAndActiveByIdOrLine", products)
	require.NoError(t, err)
	require.Equal(t, 4, m.NumArgs())
	m, err = Parse("findAll", products)
	require.NoError(t, err)
	require.Equal(t, 0, m.NumArgs())
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	invalid := []string{
		"",
		"find",
		"findName",
		"findBy",
		"findAllOrderBy",
		"selectById",
		"existsAll",
		"deleteAll",
		"countName",
		"update",
		"updateBy",
	}
	for _, name := range invalid {
		_, err := Parse(name, products)
		require.ErrorIs(t, err, ErrInvalidMethod, name)
	}
	notFound := []string{
		"findByColor",
		"findAllOrderByColor",
		"existsByIdAndColor",
		"updateColorById",
		"deleteByIdOr",
	}
	for _, name := range notFound {
		_, err := Parse(name, products)
		require.ErrorIs(t, err, ErrFieldNotFound, name)
	}
}
