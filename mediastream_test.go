package uvgrtp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// freeUDPPort grabs an ephemeral port and releases it immediately; good
// enough for loopback tests where nothing else is competing for it.
func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return port
}

// freeUDPPortPair returns a port whose RTCP companion (port+1, per the
// RTP-port+1 convention MediaStream's RTCP socket relies on) is also free,
// holding both listeners open until the pair is confirmed before releasing
// them.
func freeUDPPortPair(t *testing.T) int {
	t.Helper()
	for {
		rtp, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		require.NoError(t, err)
		port := rtp.LocalAddr().(*net.UDPAddr).Port

		rtcp, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port + 1})
		require.NoError(t, rtp.Close())
		if err != nil {
			continue
		}
		require.NoError(t, rtcp.Close())
		return port
	}
}

// pairedStreams binds two MediaStreams on loopback, each sending to the
// other's local port, with RTCP left on its default schedule.
func pairedStreams(t *testing.T) (a, b *MediaStream) {
	t.Helper()

	portA := freeUDPPortPair(t)
	portB := freeUDPPortPair(t)

	sessA, err := NewContext().CreateSession()
	require.NoError(t, err)
	sessB, err := NewContext().CreateSession()
	require.NoError(t, err)

	a, err = sessA.CreateMediaStream(portA, "127.0.0.1", portB, 96, 90000, false)
	require.NoError(t, err)

	b, err = sessB.CreateMediaStream(portB, "127.0.0.1", portA, 96, 90000, false)
	require.NoError(t, err)

	return a, b
}

func TestMediaStreamEcho(t *testing.T) {
	a, b := pairedStreams(t)
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.PushFrame([]byte("hello")))

	frame, err := b.PullFrame()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), frame.Payload)
}

func TestMediaStreamSequenceMonotonic(t *testing.T) {
	a, b := pairedStreams(t)
	defer a.Close()
	defer b.Close()

	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, a.PushFrame([]byte{byte(i)}))
	}

	var last uint16
	for i := 0; i < n; i++ {
		frame, err := b.PullFrame()
		require.NoError(t, err)
		if i > 0 {
			require.Equal(t, last+1, frame.SequenceNumber)
		}
		last = frame.SequenceNumber
	}
}

func TestMediaStreamRecvHookExcludesPull(t *testing.T) {
	a, b := pairedStreams(t)
	defer a.Close()
	defer b.Close()

	received := make(chan *Frame, 1)
	b.InstallRecvHook(func(f *Frame) { received <- f })

	require.NoError(t, a.PushFrame([]byte("via-hook")))

	select {
	case f := <-received:
		require.Equal(t, []byte("via-hook"), f.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("hook never fired")
	}

	_, err := b.PullFrame()
	require.Error(t, err)
}

func TestMediaStreamDeallocHookCalledAfterOwnedSend(t *testing.T) {
	a, b := pairedStreams(t)
	defer a.Close()
	defer b.Close()

	freed := make(chan struct{}, 1)
	a.InstallDeallocHook(func([]byte) { freed <- struct{}{} })

	frame := []byte("owned")
	require.NoError(t, a.PushFrameOwned(frame))

	_, err := b.PullFrame()
	require.NoError(t, err)

	select {
	case <-freed:
	case <-time.After(2 * time.Second):
		t.Fatal("dealloc hook never called")
	}
}

func TestMediaStreamCloseIsIdempotent(t *testing.T) {
	a, b := pairedStreams(t)
	defer b.Close()

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestCreateMediaStreamAppliesRTCPBandwidthFraction(t *testing.T) {
	ctx := NewContext()
	require.NoError(t, ctx.ConfigureFraction(FlagRTCPBandwidthFraction, 0.2))

	sess, err := ctx.CreateSession()
	require.NoError(t, err)

	port := freeUDPPortPair(t)
	ms, err := sess.CreateMediaStream(port, "127.0.0.1", port, 96, 90000, false)
	require.NoError(t, err)
	defer ms.Close()

	require.NotNil(t, ms.rtcp)
	require.InDelta(t, nominalMediaBandwidthBPS*0.2, ms.rtcp.SessionBandwidth, 1e-9)
}

func TestCreateMediaStreamAppliesReassemblyTimeout(t *testing.T) {
	ctx := NewContext()
	require.NoError(t, ctx.Configure(FlagReassemblyTimeoutMS, 500))

	sess, err := ctx.CreateSession()
	require.NoError(t, err)

	port := freeUDPPortPair(t)
	ms, err := sess.CreateMediaStream(port, "127.0.0.1", port, 96, 90000, true)
	require.NoError(t, err)
	defer ms.Close()

	require.Equal(t, 500*time.Millisecond, ms.receiver.reassemblyTimeout)
}

func TestReceiverSequenceDiscontinuousDetectsGapsAndDuplicates(t *testing.T) {
	r := &receiver{strictSequenceCheck: true}

	require.False(t, r.sequenceDiscontinuous(10))
	require.False(t, r.sequenceDiscontinuous(11))
	require.True(t, r.sequenceDiscontinuous(13)) // gap
	require.True(t, r.sequenceDiscontinuous(13)) // duplicate
	require.False(t, r.sequenceDiscontinuous(14))
}
