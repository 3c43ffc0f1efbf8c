package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-wellness/pkg/store/kv/kvtest"
)

func TestStore(t *testing.T) {
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "vai.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	kvtest.Run(t, s)
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vai.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "theme", "dark"))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.Get(ctx, "theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", v)
}
