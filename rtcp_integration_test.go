package uvgrtp

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/require"
)

// TestRTCPReportGeneratesAfterSending checks that forcing a report after a
// media stream has sent at least one packet produces a Sender Report the
// peer's runner folds into its own accounting without error.
func TestRTCPReportGeneratesAfterSending(t *testing.T) {
	a, b := pairedStreams(t)
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.PushFrame([]byte("rtcp-exercise")))
	_, err := b.PullFrame()
	require.NoError(t, err)

	require.NotNil(t, a.rtcp)
	require.NotNil(t, b.rtcp)

	// b already knows a's session SSRC from the RTP packet above, so a's
	// reports carry an SSRC that can only reach b over the RTCP socket.
	const reportSSRC = 0x5eed5eed
	a.rtcp.SetLocalSSRC(reportSSRC)
	a.GenerateReport()

	deadline := time.Now().Add(2 * time.Second)
	for !b.rtcp.KnownParticipant(reportSSRC) {
		if time.Now().After(deadline) {
			t.Fatal("peer never demuxed the sender report over the rtcp socket")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestTerminateEmitsExactlyOneBye exercises the BYE-idempotence property:
// repeated Terminate calls must not panic and must send exactly one BYE
// (Close itself no-ops after the first call; see MediaStream.Close).
func TestTerminateEmitsExactlyOneBye(t *testing.T) {
	a, b := pairedStreams(t)
	defer b.Close()

	var byes atomic.Int32
	write := a.rtcp.WriteCompound
	a.rtcp.WriteCompound = func(pkts []rtcp.Packet) error {
		for _, p := range pkts {
			if _, ok := p.(*rtcp.Goodbye); ok {
				byes.Add(1)
			}
		}
		return write(pkts)
	}

	require.NoError(t, a.Terminate())
	require.NoError(t, a.Terminate())
	require.NoError(t, a.Terminate())
	require.Equal(t, int32(1), byes.Load())
}
