package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Get(ctx, "authUrls")
	require.NoError(t, err)
	require.False(t, ok)

	value := []byte(`{"a":1}`)
	require.NoError(t, s.Set(ctx, "authUrls", value))

	// The store keeps its own copy.
	value[0] = 'x'
	got, ok, err := s.Get(ctx, "authUrls")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"a":1}`, string(got))

	got[0] = 'y'
	again, _, _ := s.Get(ctx, "authUrls")
	require.Equal(t, `{"a":1}`, string(again))

	require.NoError(t, s.Remove(ctx, "authUrls"))
	require.NoError(t, s.Remove(ctx, "authUrls"))
	_, ok, err = s.Get(ctx, "authUrls")
	require.NoError(t, err)
	require.False(t, ok)
}
