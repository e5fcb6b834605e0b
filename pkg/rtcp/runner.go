package rtcp

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"

	"github.com/stm-space/uvgrtp-go/pkg/rtppacket"
)

// DefaultSessionBandwidth is the RTCP bandwidth budget assumed when a
// caller doesn't size one from the media bitrate: 5% of a 64 kbit/s audio
// call, the same nominal figure RFC 3550 §6.2 uses in its worked example.
const DefaultSessionBandwidth = 64000 * 0.05

// Runner drives one media session's control-plane loop: it schedules
// outgoing compound RTCP packets per RFC 3550 §6.3, tracks per-SSRC
// send/receive accounting, and demultiplexes incoming RTCP.
type Runner struct {
	LocalSSRC        uint32
	ClockRate        int
	SessionBandwidth float64 // bits/sec; defaults to DefaultSessionBandwidth
	TimeNow          func() time.Time

	// WriteCompound is called with the compound packet to transmit
	// whenever the scheduler decides it's time to report.
	WriteCompound func([]rtcp.Packet) error

	// OnTimeout is called when a remote participant is pruned for silence
	// (RFC 3550 §6.3.5): after 5*Tmin without any RTP or RTCP from it. A
	// sender silent for 2T only stops counting as a sender and does not
	// trigger OnTimeout.
	OnTimeout func(ssrc uint32)

	cname string

	mutex   sync.Mutex
	local   *localStats
	remotes map[uint32]*remoteStats
	sched   *scheduler

	terminate chan struct{}
	done      chan struct{}
	wake      chan struct{}
}

// Initialize starts the reporting goroutine.
func (rn *Runner) Initialize() {
	if rn.TimeNow == nil {
		rn.TimeNow = time.Now
	}
	if rn.SessionBandwidth <= 0 {
		rn.SessionBandwidth = DefaultSessionBandwidth
	}

	rn.cname = uuid.NewString()
	rn.local = &localStats{ssrc: rn.LocalSSRC, clockRate: rn.ClockRate}
	rn.remotes = make(map[uint32]*remoteStats)
	rn.sched = newScheduler(rn.SessionBandwidth)
	rn.sched.tp = rn.TimeNow()
	rn.sched.tn = rn.sched.tp.Add(rn.sched.interval(rn.sched.tp))

	rn.terminate = make(chan struct{})
	rn.done = make(chan struct{})
	rn.wake = make(chan struct{}, 1)

	go rn.run()
}

// Close stops the reporting goroutine, sending a final BYE first.
func (rn *Runner) Close() {
	rn.sendBye()
	close(rn.terminate)
	<-rn.done
}

func (rn *Runner) run() {
	defer close(rn.done)

	for {
		rn.mutex.Lock()
		wait := rn.sched.tn.Sub(rn.TimeNow())
		rn.mutex.Unlock()
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			rn.sendReport()
		case <-rn.wake:
			timer.Stop()
		case <-rn.terminate:
			timer.Stop()
			return
		}

		rn.pruneTimedOut()
	}
}

// SetLocalSSRC updates the SSRC future Sender Reports carry, after a
// caller has reselected its local SSRC following a collision (RFC 3550
// §8.2). Every report built after this call carries the new SSRC.
func (rn *Runner) SetLocalSSRC(ssrc uint32) {
	rn.LocalSSRC = ssrc

	rn.local.mutex.Lock()
	rn.local.ssrc = ssrc
	rn.local.mutex.Unlock()
}

// ProcessSentPacket feeds one RTP packet this session transmitted into the
// sender-report accounting.
func (rn *Runner) ProcessSentPacket(h rtppacket.Header, payloadLen int) {
	rn.local.recordSent(h, payloadLen, rn.TimeNow())

	rn.mutex.Lock()
	rn.sched.weSent = true
	rn.mutex.Unlock()
}

// ProcessReceivedPacket feeds one received RTP packet into the relevant
// remote participant's receiver-report accounting, registering a new
// participant (and bumping scheduler membership) on first sight.
func (rn *Runner) ProcessReceivedPacket(h rtppacket.Header) {
	rs := rn.remoteFor(h.SSRC)
	rs.recordReceived(h, rn.TimeNow())
}

// ProcessIncomingRTCP demultiplexes one compound packet received from the
// remote endpoint: SR updates the sending participant's SR/DLSR
// correlation, SDES/BYE drive membership per RFC 3550 §6.3.4.
func (rn *Runner) ProcessIncomingRTCP(pkts []rtcp.Packet) {
	now := rn.TimeNow()

	size := 0
	for _, p := range pkts {
		buf, err := p.Marshal()
		if err == nil {
			size += len(buf)
		}

		switch pkt := p.(type) {
		case *rtcp.SenderReport:
			rs := rn.remoteFor(pkt.SSRC)
			rs.recordSenderReport(pkt.NTPTime, now)

		case *rtcp.SourceDescription:
			for _, chunk := range pkt.Chunks {
				rn.remoteFor(chunk.Source)
			}

		case *rtcp.Goodbye:
			for _, ssrc := range pkt.Sources {
				rn.forget(ssrc)
			}
			rn.mutex.Lock()
			rn.sched.reconsider(now)
			rn.mutex.Unlock()
			rn.poke()
		}
	}

	if size > 0 {
		rn.mutex.Lock()
		rn.sched.updateAvgSize(size)
		rn.mutex.Unlock()
	}
}

// AddParticipant registers ssrc as a known participant ahead of any
// traffic from it, so membership accounting (and the interval it drives)
// reflects an expected peer from session setup rather than only peers
// seen on the wire.
func (rn *Runner) AddParticipant(ssrc uint32) {
	rn.remoteFor(ssrc)
}

// KnownParticipant reports whether ssrc has been recorded as a remote
// participant, either via AddParticipant or by having been seen on the
// wire (an RTP packet, or a Sender Report/SDES chunk).
func (rn *Runner) KnownParticipant(ssrc uint32) bool {
	rn.mutex.Lock()
	defer rn.mutex.Unlock()
	_, ok := rn.remotes[ssrc]
	return ok
}

// GenerateReport sends a compound RTCP packet immediately instead of
// waiting for the scheduler's next computed interval, then reschedules
// from now.
func (rn *Runner) GenerateReport() {
	rn.sendReport()
	rn.poke()
}

func (rn *Runner) remoteFor(ssrc uint32) *remoteStats {
	rn.mutex.Lock()
	defer rn.mutex.Unlock()

	rs, ok := rn.remotes[ssrc]
	if !ok {
		rs = newRemoteStats(ssrc, rn.ClockRate)
		rn.remotes[ssrc] = rs
		rn.sched.members++
	}
	return rs
}

func (rn *Runner) forget(ssrc uint32) {
	rn.mutex.Lock()
	defer rn.mutex.Unlock()

	if _, ok := rn.remotes[ssrc]; ok {
		delete(rn.remotes, ssrc)
		if rn.sched.members > 1 {
			rn.sched.members--
		}
	}
}

// pruneTimedOut drops participants silent for 5*Tmin (RFC 3550 §6.3.5); a
// sender with no RTP for 2T, T being the current reporting interval
// (tn - tp), stops counting as a sender without being forgotten entirely,
// since an RTP-only source may simply have paused.
func (rn *Runner) pruneTimedOut() {
	now := rn.TimeNow()

	rn.mutex.Lock()
	senderTimeout := 2 * rn.sched.tn.Sub(rn.sched.tp)
	var timedOut []uint32
	for ssrc, rs := range rn.remotes {
		rs.mutex.Lock()
		silent := now.Sub(rs.lastSeen)
		if rs.isSender && now.Sub(rs.lastSystem) > senderTimeout {
			rs.isSender = false
		}
		rs.mutex.Unlock()

		if silent > 5*rtcpMinTime*time.Second {
			timedOut = append(timedOut, ssrc)
		}
	}
	for _, ssrc := range timedOut {
		delete(rn.remotes, ssrc)
		if rn.sched.members > 1 {
			rn.sched.members--
		}
	}
	rn.mutex.Unlock()

	for _, ssrc := range timedOut {
		if rn.OnTimeout != nil {
			rn.OnTimeout(ssrc)
		}
	}
}

// countSenders tallies how many known participants (remote SSRCs with
// isSender set, plus this session if it has sent) currently count as
// senders for the RFC 3550 §6.3 sender/receiver bandwidth split.
func (rn *Runner) countSenders() int {
	n := 0
	rn.mutex.Lock()
	for _, rs := range rn.remotes {
		rs.mutex.Lock()
		if rs.isSender {
			n++
		}
		rs.mutex.Unlock()
	}
	rn.mutex.Unlock()

	rn.local.mutex.RLock()
	weSent := rn.local.haveSent
	rn.local.mutex.RUnlock()
	if weSent {
		n++
	}
	return n
}

func (rn *Runner) sendReport() {
	now := rn.TimeNow()
	compound := rn.buildCompound(now, false)

	senders := rn.countSenders()

	rn.mutex.Lock()
	rn.sched.senders = senders
	rn.sched.scheduleNext(now)
	rn.mutex.Unlock()

	if len(compound) == 0 || rn.WriteCompound == nil {
		return
	}
	if err := rn.WriteCompound(compound); err == nil {
		size := 0
		for _, p := range compound {
			if buf, err := p.Marshal(); err == nil {
				size += len(buf)
			}
		}
		rn.mutex.Lock()
		rn.sched.updateAvgSize(size)
		rn.mutex.Unlock()
	}
}

func (rn *Runner) sendBye() {
	compound := rn.buildCompound(rn.TimeNow(), true)
	if rn.WriteCompound != nil {
		_ = rn.WriteCompound(compound)
	}
}

func (rn *Runner) poke() {
	select {
	case rn.wake <- struct{}{}:
	default:
	}
}
