// Package rtppacket implements the RTP packet framer: Build turns a header
// and payload into a wire datagram, Parse inverts it. The wire codec itself
// is github.com/pion/rtp, the same marshal/unmarshal codec used throughout
// this module's packetizers and depacketizers; this package adds the
// boundary contract (InvalidValue on malformed input) pion/rtp leaves to
// its caller.
package rtppacket

import (
	"github.com/pion/rtp"

	"github.com/stm-space/uvgrtp-go/pkg/liberrors"
)

// minHeaderSize is the fixed RTP header size before CSRC/extension,
// per RFC 3550 §5.1.
const minHeaderSize = 12

// Header mirrors the RTP header fields a caller of Build/Parse needs.
type Header struct {
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	CSRC           []uint32
}

// Build encodes an RTP header and payload into a wire datagram.
func Build(h Header, payload []byte) ([]byte, error) {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         h.Marker,
			PayloadType:    h.PayloadType,
			SequenceNumber: h.SequenceNumber,
			Timestamp:      h.Timestamp,
			SSRC:           h.SSRC,
			CSRC:           h.CSRC,
		},
		Payload: payload,
	}

	buf, err := pkt.Marshal()
	if err != nil {
		return nil, &liberrors.InvalidValue{Field: "rtp packet", Reason: err.Error()}
	}
	return buf, nil
}

// Parse decodes a wire datagram into a header and a payload slice. It
// returns InvalidValue when the version isn't 2, the datagram is shorter
// than the fixed header, or the CSRC/extension lengths it declares overrun
// the datagram.
func Parse(datagram []byte) (Header, []byte, error) {
	if len(datagram) < minHeaderSize {
		return Header{}, nil, &liberrors.InvalidValue{
			Field: "rtp datagram", Reason: "shorter than the 12-octet fixed header",
		}
	}

	if version := datagram[0] >> 6; version != 2 {
		return Header{}, nil, &liberrors.InvalidValue{
			Field: "rtp version", Reason: "must be 2",
		}
	}

	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(datagram); err != nil {
		return Header{}, nil, &liberrors.InvalidValue{Field: "rtp datagram", Reason: err.Error()}
	}

	h := Header{
		Marker:         pkt.Marker,
		PayloadType:    pkt.PayloadType,
		SequenceNumber: pkt.SequenceNumber,
		Timestamp:      pkt.Timestamp,
		SSRC:           pkt.SSRC,
		CSRC:           pkt.CSRC,
	}
	return h, pkt.Payload, nil
}

// HeaderSize returns the on-wire octet count of h's header (fixed header
// plus one word per CSRC entry), used by stats accounting to separate
// overhead bytes from payload bytes.
func HeaderSize(h Header) int {
	return minHeaderSize + 4*len(h.CSRC)
}
