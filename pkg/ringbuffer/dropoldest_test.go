package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDropOldestRing(t *testing.T) {
	r, err := NewDropOldestRing(2)
	require.NoError(t, err)

	require.False(t, r.Push(1))
	require.False(t, r.Push(2))
	require.True(t, r.Push(3)) // evicts 1

	v, ok := r.Pull()
	require.True(t, ok)
	require.Equal(t, 2, v)

	v, ok = r.Pull()
	require.True(t, ok)
	require.Equal(t, 3, v)

	require.Equal(t, uint64(1), r.Dropped())

	r.Close()
	_, ok = r.Pull()
	require.False(t, ok)
}
