package sqlitemgmt_test

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ferneyholguin/sqlitemgmt"
	"github.com/ferneyholguin/sqlitemgmt/internal/testdata"
)

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fsys, err := fs.Sub(testdata.EmbedMigrations, "migrations")
	require.NoError(t, err)
	m := newManager(t, sqlitemgmt.WithMigrations(fsys))
	version, err := m.Version(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, version)

	// The tables already exist, so creating them is a no-op.
	products := newTable[Product](t, m)
	hammer, err := products.FindOne(ctx, "findByName", "Hammer")
	require.NoError(t, err)
	require.True(t, hammer.Active)
	require.Equal(t, "Tools", hammer.Line.Name)

	garden, err := products.Find(ctx, "findAllByLineOrderByPriceDesc", 2)
	require.NoError(t, err)
	require.Len(t, garden, 1)
	require.Equal(t, "Rake", garden[0].Name)
}
