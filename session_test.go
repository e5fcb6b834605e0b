package uvgrtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateSessionRandomizesIdentity(t *testing.T) {
	s1, err := NewContext().CreateSession()
	require.NoError(t, err)
	s2, err := NewContext().CreateSession()
	require.NoError(t, err)

	require.NotEqual(t, s1.ssrc, s2.ssrc)
}

func TestCreateMediaStreamRejectsDuplicateRemote(t *testing.T) {
	sess, err := NewContext().CreateSession()
	require.NoError(t, err)

	portA := freeUDPPortPair(t)
	portB := freeUDPPortPair(t)

	ms, err := sess.CreateMediaStream(portA, "127.0.0.1", portB, 96, 90000, false)
	require.NoError(t, err)
	defer ms.Close()

	_, err = sess.CreateMediaStream(freeUDPPortPair(t), "127.0.0.1", portB, 96, 90000, false)
	require.Error(t, err)
}

func TestReselectSSRCOnCollision(t *testing.T) {
	a, b := pairedStreams(t)
	defer a.Close()
	defer b.Close()

	original := b.session.currentSSRC()

	// force a collision: b receives a packet stamped with its own SSRC.
	b.session.mutex.Lock()
	collidingSSRC := b.session.ssrc
	b.session.mutex.Unlock()

	a.session.mutex.Lock()
	a.session.ssrc = collidingSSRC
	a.session.mutex.Unlock()

	require.NoError(t, a.PushFrame([]byte("collide")))
	_, err := b.PullFrame()
	require.NoError(t, err)

	require.NotEqual(t, original, b.session.currentSSRC())
}
