package zrtp

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// wire connects two Negotiators' Send hooks directly to each other's
// ProcessPacket, standing in for the UDP socket a real session would use.
func wire(t *testing.T, a, b *Negotiator) {
	t.Helper()
	a.Send = func(datagram []byte) error {
		go func() { _ = b.ProcessPacket(datagram) }()
		return nil
	}
	b.Send = func(datagram []byte) error {
		go func() { _ = a.ProcessPacket(datagram) }()
		return nil
	}
}

func TestNegotiatorHandshakeCompletes(t *testing.T) {
	var mu sync.Mutex
	var aKeys, bKeys *SessionKeys
	done := make(chan struct{}, 2)

	a := &Negotiator{OnSecure: func(k *SessionKeys) {
		mu.Lock()
		aKeys = k
		mu.Unlock()
		done <- struct{}{}
	}}
	b := &Negotiator{OnSecure: func(k *SessionKeys) {
		mu.Lock()
		bKeys = k
		mu.Unlock()
		done <- struct{}{}
	}}

	wire(t, a, b)

	require.NoError(t, a.Initialize())
	require.NoError(t, b.Initialize())

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("handshake did not complete")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, aKeys)
	require.NotNil(t, bKeys)

	// the initiator/responder key assignment must line up across both
	// sides: whichever key one side calls "initiator" the other must too.
	require.Equal(t, aKeys.InitiatorSRTPKey, bKeys.InitiatorSRTPKey)
	require.Equal(t, aKeys.ResponderSRTPKey, bKeys.ResponderSRTPKey)

	require.NotEqual(t, a.IsInitiator(), b.IsInitiator())
}

func TestNegotiatorRejectsBadCRC(t *testing.T) {
	n := &Negotiator{}
	require.NoError(t, n.Initialize())

	bad := make([]byte, 16)
	err := n.ProcessPacket(bad)
	require.Error(t, err)
}

func TestMessageRoundTrip(t *testing.T) {
	h := &Hello{}
	h.ZID[0] = 7
	h.H3[0] = 9

	datagram := h.marshal()
	msgType, decoded, err := Parse(datagram)
	require.NoError(t, err)
	require.Equal(t, MsgHello, msgType)

	got, ok := decoded.(*Hello)
	require.True(t, ok)
	require.Equal(t, h.ZID, got.ZID)
	require.Equal(t, h.H3, got.H3)
}

func TestMessageCorruptedCRCRejected(t *testing.T) {
	h := &Hello{}
	datagram := h.marshal()
	datagram[len(datagram)-1] ^= 0xFF

	_, _, err := Parse(datagram)
	require.ErrorIs(t, err, errBadCRC)
}
