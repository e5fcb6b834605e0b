package rtcp

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/require"

	"github.com/stm-space/uvgrtp-go/pkg/rtppacket"
)

func TestRunnerSendsSenderReportAfterSending(t *testing.T) {
	var mu sync.Mutex
	var got []rtcp.Packet

	rn := &Runner{
		LocalSSRC:        42,
		ClockRate:        8000,
		SessionBandwidth: 8000,
		WriteCompound: func(pkts []rtcp.Packet) error {
			mu.Lock()
			got = pkts
			mu.Unlock()
			return nil
		},
	}
	rn.Initialize()
	defer rn.Close()

	rn.ProcessSentPacket(rtppacket.Header{SSRC: 42, SequenceNumber: 1, Timestamp: 1000}, 160)

	rn.sendReport()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	_, ok := got[0].(*rtcp.SenderReport)
	require.True(t, ok)
}

func TestRunnerBuildsReceiverReportForRemote(t *testing.T) {
	rn := &Runner{LocalSSRC: 1, ClockRate: 8000, SessionBandwidth: 8000}
	rn.Initialize()
	defer rn.Close()

	rn.ProcessReceivedPacket(rtppacket.Header{SSRC: 99, SequenceNumber: 10, Timestamp: 1000})
	rn.ProcessReceivedPacket(rtppacket.Header{SSRC: 99, SequenceNumber: 11, Timestamp: 1160})

	compound := rn.buildCompound(time.Now(), false)
	require.NotEmpty(t, compound)

	rr, ok := compound[0].(*rtcp.ReceiverReport)
	require.True(t, ok)
	require.Len(t, rr.Reports, 1)
	require.Equal(t, uint32(99), rr.Reports[0].SSRC)
}

func TestRunnerByeReconsidersSchedule(t *testing.T) {
	rn := &Runner{LocalSSRC: 1, ClockRate: 8000, SessionBandwidth: 8000}
	rn.Initialize()
	defer rn.Close()

	rn.ProcessReceivedPacket(rtppacket.Header{SSRC: 99, SequenceNumber: 10, Timestamp: 1000})
	require.Equal(t, 2, rn.sched.members)

	rn.ProcessIncomingRTCP([]rtcp.Packet{&rtcp.Goodbye{Sources: []uint32{99}}})

	rn.mutex.Lock()
	members := rn.sched.members
	_, stillPresent := rn.remotes[99]
	rn.mutex.Unlock()

	require.Equal(t, 1, members)
	require.False(t, stillPresent)
}

func TestSchedulerIntervalRespectsMinimum(t *testing.T) {
	s := newScheduler(8000)
	s.initial = false
	d := s.interval(time.Now())
	require.GreaterOrEqual(t, d, time.Duration(rtcpMinTime*0.5/reconsiderationCompensation*float64(time.Second)))
}

// TestSchedulerIntervalBoundsAndMean checks the actual-interval formula,
// T * rand(0.5,1.5) / 1.21828: for a single-participant, default-bandwidth
// session every sample falls in [T*0.5/1.21828, T*1.5/1.21828], and the
// sampled mean lands close to T/1.21828.
func TestSchedulerIntervalBoundsAndMean(t *testing.T) {
	s := newScheduler(DefaultSessionBandwidth)
	s.initial = false

	const samples = 2000
	lower := time.Duration(rtcpMinTime * 0.5 / reconsiderationCompensation * float64(time.Second))
	upper := time.Duration(rtcpMinTime * 1.5 / reconsiderationCompensation * float64(time.Second))
	wantMean := rtcpMinTime / reconsiderationCompensation

	var total time.Duration
	now := time.Now()
	for i := 0; i < samples; i++ {
		d := s.interval(now)
		require.GreaterOrEqual(t, d, lower)
		require.LessOrEqual(t, d, upper)
		total += d
	}

	mean := total / samples
	require.InDelta(t, wantMean, mean.Seconds(), wantMean*0.1)
}
