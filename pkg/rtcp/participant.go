// Package rtcp implements the control-plane side of a media session: the
// self-rescheduling reporting algorithm of RFC 3550 §6.3, per-participant
// send/receive accounting (RFC 3550 §6.4 jitter, loss fraction), and
// SR/RR/SDES/BYE packet construction via github.com/pion/rtcp.
//
// Report-field arithmetic (NTP/RTP correlation, the jitter recurrence,
// loss-fraction scaling) follows the same per-participant accounting a
// fixed-period RTCP ticker would compute, but Runner replaces the fixed
// ticker with the interval/membership state machine RFC 3550 §6.3
// describes.
package rtcp

import (
	"sync"
	"time"

	"github.com/pion/rtcp"

	"github.com/stm-space/uvgrtp-go/pkg/ntp"
	"github.com/stm-space/uvgrtp-go/pkg/rtppacket"
)

// localStats accumulates the sender-side fields an SR packet reports:
// packet/octet counts and the NTP/RTP correlation pair.
type localStats struct {
	mutex sync.RWMutex

	haveSent     bool
	ssrc         uint32
	clockRate    int
	lastTimeRTP  uint32
	lastTimeNTP  time.Time
	lastSystem   time.Time
	packetCount  uint32
	octetCount   uint32
	lastSeq      uint16
}

func (s *localStats) recordSent(h rtppacket.Header, payloadLen int, system time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.haveSent = true
	s.ssrc = h.SSRC
	s.lastTimeRTP = h.Timestamp
	s.lastTimeNTP = system
	s.lastSystem = system
	s.lastSeq = h.SequenceNumber
	s.packetCount++
	s.octetCount += uint32(payloadLen)
}

func (s *localStats) senderReport(now time.Time) *rtcp.SenderReport {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.haveSent || s.clockRate == 0 {
		return nil
	}

	elapsed := now.Sub(s.lastSystem)
	ntpNow := s.lastTimeNTP.Add(elapsed)
	rtpNow := s.lastTimeRTP + uint32(elapsed.Seconds()*float64(s.clockRate))

	return &rtcp.SenderReport{
		SSRC:        s.ssrc,
		NTPTime:     ntp.Encode(ntpNow),
		RTPTime:     rtpNow,
		PacketCount: s.packetCount,
		OctetCount:  s.octetCount,
	}
}

// remoteStats accumulates the receive-side fields an RR reception-report
// block reports for one remote SSRC: loss, jitter, and sender-report
// round-trip correlation (LSR/DLSR).
type remoteStats struct {
	mutex sync.Mutex

	ssrc      uint32
	clockRate int

	haveFirst     bool
	lastValidSeq  uint16
	seqCycles     uint16
	lastRTP       uint32
	lastSystem    time.Time
	jitter        float64
	totalReceived uint64
	totalLost     uint64
	lostSince     uint64
	recvSince     uint64

	haveSR        bool
	lastSRNTP     uint64
	lastSRSystem  time.Time

	lastSeen time.Time
	isSender bool
}

func newRemoteStats(ssrc uint32, clockRate int) *remoteStats {
	return &remoteStats{ssrc: ssrc, clockRate: clockRate}
}

// recordReceived updates loss/jitter accounting for one RTP arrival. Loss
// is estimated from the gap between consecutive sequence numbers; true
// duplicates and resequenced arrivals are assumed already handled by the
// caller's depacketizer before this call.
func (r *remoteStats) recordReceived(h rtppacket.Header, system time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.lastSeen = system
	r.isSender = true

	if !r.haveFirst {
		r.haveFirst = true
		r.lastValidSeq = h.SequenceNumber
		r.lastRTP = h.Timestamp
		r.lastSystem = system
		r.totalReceived = 1
		r.recvSince = 1
		return
	}

	lost := uint64(h.SequenceNumber - r.lastValidSeq - 1)

	diff := int32(h.SequenceNumber) - int32(r.lastValidSeq)
	if diff < -0x0FFF {
		r.seqCycles++
	}

	if r.clockRate != 0 {
		// RFC 3550 §6.4.1 jitter recurrence.
		d := system.Sub(r.lastSystem).Seconds()*float64(r.clockRate) -
			(float64(h.Timestamp) - float64(r.lastRTP))
		if d < 0 {
			d = -d
		}
		r.jitter += (d - r.jitter) / 16
	}

	r.lastValidSeq = h.SequenceNumber
	r.lastRTP = h.Timestamp
	r.lastSystem = system

	r.totalLost += lost
	r.lostSince += lost
	r.totalReceived++
	r.recvSince += 1 + lost
}

func (r *remoteStats) recordSenderReport(ntpTime uint64, system time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.haveSR = true
	r.lastSRNTP = ntpTime
	r.lastSRSystem = system
	r.lastSeen = system
}

func (r *remoteStats) receptionReport(now time.Time) rtcp.ReceptionReport {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var fractionLost uint8
	if r.recvSince != 0 {
		fractionLost = uint8((min(r.lostSince, 0xFFFFFF) * 256) / r.recvSince)
	}

	rep := rtcp.ReceptionReport{
		SSRC:               r.ssrc,
		LastSequenceNumber: uint32(r.seqCycles)<<16 | uint32(r.lastValidSeq),
		FractionLost:       fractionLost,
		TotalLost:          uint32(min(r.totalLost, 0xFFFFFF)),
		Jitter:             uint32(r.jitter),
	}

	if r.haveSR {
		rep.LastSenderReport = uint32(r.lastSRNTP >> 16)
		rep.Delay = uint32(now.Sub(r.lastSRSystem).Seconds() * 65536)
	}

	r.lostSince = 0
	r.recvSince = 0

	return rep
}
