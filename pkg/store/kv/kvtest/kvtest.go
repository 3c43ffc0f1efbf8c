// Package kvtest holds the behavioral contract every kv.Store must meet.
package kvtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-wellness/pkg/store/kv"
)

// Run exercises s. s must start empty.
func Run(t *testing.T, s kv.Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "history")
	require.NoError(t, err)
	assert.False(t, ok, "missing keys are not an error")

	require.NoError(t, s.Set(ctx, "history", `[]`))
	require.NoError(t, s.Set(ctx, "theme", "dark"))
	v, ok, err := s.Get(ctx, "theme")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dark", v)

	require.NoError(t, s.Set(ctx, "theme", "light"))
	v, _, err = s.Get(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, "light", v, "Set overwrites")

	require.NoError(t, s.Delete(ctx, "theme"))
	_, ok, err = s.Get(ctx, "theme")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, s.Delete(ctx, "theme"), "deleting a missing key is a no-op")

	v, ok, err = s.Get(ctx, "history")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, v)
}
