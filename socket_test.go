package uvgrtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSocketSendRecvRoundTrip(t *testing.T) {
	portA := freeUDPPort(t)
	portB := freeUDPPort(t)

	a, err := newSocket(portA, "127.0.0.1", portB, false)
	require.NoError(t, err)
	defer a.close()

	b, err := newSocket(portB, "127.0.0.1", portA, false)
	require.NoError(t, err)
	defer b.close()

	require.NoError(t, a.send([]byte("ping")))

	buf := make([]byte, 64)
	n, ok, err := b.recv(buf)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ping", string(buf[:n]))
}

func TestSocketRecvTimesOutWithoutData(t *testing.T) {
	portA := freeUDPPort(t)
	portB := freeUDPPort(t)

	a, err := newSocket(portA, "127.0.0.1", portB, false)
	require.NoError(t, err)
	defer a.close()

	buf := make([]byte, 64)
	_, ok, err := a.recv(buf)
	require.NoError(t, err)
	require.False(t, ok)
}
