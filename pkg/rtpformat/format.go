// Package rtpformat implements two payload disciplines: Opaque (one frame,
// one packet) and Fragmenting (RFC 6184-style FU-A splitting for oversize
// frames, e.g. video NAL units).
//
// The fragmenting formatter is adapted from an H.264-specific FU-A
// encoder/decoder, generalized away from NALU-specific types and redesigned
// for unreliable, out-of-order datagram delivery: the original decoder
// assumed a reliable sequential io.Reader, this one maintains one
// reassembly slot per RTP timestamp with a bounded reorder window.
package rtpformat

import (
	"time"

	"github.com/stm-space/uvgrtp-go/pkg/rtppacket"
)

// Packet is one wire-ready RTP packet produced by a Packetizer.
type Packet struct {
	Header  rtppacket.Header
	Payload []byte
}

// Packetizer turns one application frame into one or more RTP packets that
// share a single RTP timestamp.
type Packetizer interface {
	// Packetize splits frame into one or more packets. Sequence numbers
	// are assigned contiguously starting at baseSeq; the caller advances
	// its own counter by len(result).
	Packetize(payloadType uint8, ssrc uint32, baseSeq uint16, timestamp uint32, frame []byte) ([]Packet, error)
}

// Depacketizer reassembles received RTP packets back into frames.
// Implementations own whatever per-timestamp reassembly state they need.
type Depacketizer interface {
	// Push feeds one received (header, payload) pair.
	//
	// completed reports whether this call produced a finished frame
	// (returned in frame). dropped reports whether this call discarded a
	// fragment or an incomplete slot — the caller bumps its dropped-packet
	// counter accordingly. Both booleans may be false (e.g. a buffered
	// non-terminal fragment).
	Push(h rtppacket.Header, payload []byte) (frame []byte, completed bool, dropped bool)
}

// StaleExpirer is implemented by Depacketizers that hold reassembly state
// across Push calls and need it aged out on a timer, not only when the
// next packet happens to arrive. Opaque has nothing to age out; Fragmenting
// does.
type StaleExpirer interface {
	// ExpireStale discards reassembly state idle for longer than timeout
	// and reports whether anything was discarded.
	ExpireStale(now time.Time, timeout time.Duration) bool
}
