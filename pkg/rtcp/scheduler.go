package rtcp

import (
	"math/rand"
	"time"
)

// rtcpMinTime is Tmin from RFC 3550 §6.3, halved for the first interval.
const rtcpMinTime = 5.0

// senderBandwidthFraction is the fraction of session RTCP bandwidth
// reserved for senders (RFC 3550 §6.2's recommended 25%/75% split).
const senderBandwidthFraction = 0.25

// reconsiderationCompensation is e - 3/2, the constant RFC 3550 App. A.7
// divides the randomized interval by; it puts the mean interval at
// T/1.21828 rather than T.
const reconsiderationCompensation = 1.21828

// scheduler holds the RFC 3550 §6.3 session-wide state: tp/tc/tn, the
// membership counts, and the running average compound-packet size used to
// size the next interval.
type scheduler struct {
	tp time.Time // last time this participant sent an RTCP packet
	tn time.Time // next scheduled transmission time

	members      int
	pmembers     int
	senders      int
	avgRTCPSize  float64
	initial      bool
	weSent       bool
	sessionBW    float64 // bits/sec allotted to RTCP traffic for this session
}

func newScheduler(sessionBW float64) *scheduler {
	return &scheduler{
		members:     1,
		pmembers:    1,
		initial:     true,
		sessionBW:   sessionBW,
		avgRTCPSize: 200, // seed estimate until a real packet is sent
	}
}

// interval computes T, the randomized actual RTCP transmission interval,
// per RFC 3550 Appendix A.7's rtcp_interval().
func (s *scheduler) interval(now time.Time) time.Duration {
	minTime := rtcpMinTime
	if s.initial {
		minTime /= 2
	}

	n := s.members
	bw := s.sessionBW
	if s.senders > 0 && float64(s.senders) <= float64(s.members)*senderBandwidthFraction {
		if s.weSent {
			bw *= senderBandwidthFraction
			n = s.senders
		} else {
			bw *= 1 - senderBandwidthFraction
			n = s.members - s.senders
		}
	}

	t := s.avgRTCPSize * float64(n) / bw
	if t < minTime {
		t = minTime
	}

	// randomize across [0.5T, 1.5T] to avoid synchronized reports across
	// participants that joined at the same time, then divide by the
	// compensation constant, which shortens every interval by the same
	// factor (mean T/1.21828).
	jittered := t * (0.5 + rand.Float64()) / reconsiderationCompensation

	return time.Duration(jittered * float64(time.Second))
}

// scheduleNext recomputes tn from tp after a report has just been sent.
func (s *scheduler) scheduleNext(now time.Time) {
	s.tp = now
	s.tn = now.Add(s.interval(now))
	s.pmembers = s.members
	s.initial = false
}

// reconsider implements the reverse-reconsideration rule RFC 3550 §6.3.4
// applies on receiving a BYE: the next send time is rescheduled as though
// it had been computed with the reduced membership, pulled earlier when
// that produces a shorter remaining wait.
func (s *scheduler) reconsider(now time.Time) {
	if s.members == 0 {
		return
	}

	candidate := s.tp.Add(time.Duration(float64(s.tn.Sub(s.tp)) * float64(s.members) / float64(s.pmembers)))
	if candidate.Before(s.tn) {
		s.tn = candidate
	}
	s.pmembers = s.members
}

// updateAvgSize folds one sent or received compound packet's size into the
// running average RFC 3550 §6.3.3 uses to size future intervals.
func (s *scheduler) updateAvgSize(size int) {
	s.avgRTCPSize = (1.0/16.0)*float64(size) + (15.0/16.0)*s.avgRTCPSize
}
