package bytecounter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	var c Counter

	c.AddPacket(100, 12)
	c.AddPacket(200, 12)
	c.AddDropped()

	snap := c.Snapshot()
	require.Equal(t, uint64(300), snap.ProcessedBytes)
	require.Equal(t, uint64(24), snap.OverheadBytes)
	require.Equal(t, uint64(324), snap.TotalBytes)
	require.Equal(t, uint64(2), snap.ProcessedPackets)
	require.Equal(t, uint64(1), snap.DroppedPackets)
}
