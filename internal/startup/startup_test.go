package startup

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/directchat/internal/repository/memstore"
	"github.com/directchat/migrations"
)

func TestSortedMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_b.sql": {Data: []byte("SELECT 2")},
		"001_a.sql": {Data: []byte("SELECT 1")},
		"README.md": {Data: []byte("x")},
		"010_c.sql": {Data: []byte("SELECT 3")},
	}
	names, err := SortedMigrations(fsys)
	require.NoError(t, err)
	require.Equal(t, []string{"001_a.sql", "002_b.sql", "010_c.sql"}, names)

	embedded, err := SortedMigrations(migrations.Files)
	require.NoError(t, err)
	require.Contains(t, embedded, "001_init.sql")
}

func TestSeedIsRepeatable(t *testing.T) {
	users := memstore.NewUserStore()
	ctx := context.Background()
	require.NoError(t, Seed(ctx, users))
	require.NoError(t, Seed(ctx, users))

	list, err := users.ListExcept(ctx, DemoUsers[0].ID)
	require.NoError(t, err)
	require.Len(t, list, len(DemoUsers)-1)
	// newest account first
	require.Equal(t, DemoUsers[2].ID, list[0].ID)
}
