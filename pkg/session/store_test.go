package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetSet(t *testing.T) {
	s := New()

	_, ok := s.Get("missing")
	assert.False(t, ok)

	s.Set("nil", nil)
	v, ok := s.Get("nil")
	assert.True(t, ok, "a nil value is still a present entry")
	assert.Nil(t, v)

	s.Set("a", 1)
	s.Set("a", 2)
	v, ok = s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, s.Len())
}

func TestStore_SnapshotIsDetached(t *testing.T) {
	s := New()
	s.Set("a", 1)

	snap := s.Snapshot()
	snap["b"] = 2

	_, ok := s.Get("b")
	assert.False(t, ok)
	assert.Equal(t, map[string]any{"a": 1}, s.Snapshot())
}

func TestStore_ClearKeepsBinding(t *testing.T) {
	s := New()
	live := s.Map()
	s.Set("a", 1)

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, live)

	live["b"] = 2
	v, ok := s.Get("b")
	require.True(t, ok, "writes through the live map must reach the store after Clear")
	assert.Equal(t, 2, v)
}
