package rtpformat

import (
	"github.com/stm-space/uvgrtp-go/pkg/liberrors"
	"github.com/stm-space/uvgrtp-go/pkg/rtppacket"
)

// DefaultMTU is the default ceiling for an Opaque packet's payload:
// 1500 (typical Ethernet MTU) - 20 (IPv4 header) - 8 (UDP header) - 12
// (RTP fixed header).
const DefaultMTU = 1460

// Opaque implements the "one frame, one packet" discipline: every frame
// becomes exactly one RTP packet. Oversize input yields PayloadTooBig
// rather than being split.
type Opaque struct {
	// MaxPayloadSize is the largest payload Packetize accepts. Defaults to
	// DefaultMTU when zero.
	MaxPayloadSize int
}

var _ Packetizer = (*Opaque)(nil)
var _ Depacketizer = (*OpaqueDepacketizer)(nil)

func (o *Opaque) maxPayloadSize() int {
	if o.MaxPayloadSize <= 0 {
		return DefaultMTU
	}
	return o.MaxPayloadSize
}

// Packetize implements Packetizer.
func (o *Opaque) Packetize(payloadType uint8, ssrc uint32, baseSeq uint16, timestamp uint32, frame []byte) ([]Packet, error) {
	if len(frame) > o.maxPayloadSize() {
		return nil, &liberrors.PayloadTooBig{Size: len(frame), Limit: o.maxPayloadSize()}
	}

	return []Packet{{
		Header: rtppacket.Header{
			Marker:         true,
			PayloadType:    payloadType,
			SequenceNumber: baseSeq,
			Timestamp:      timestamp,
			SSRC:           ssrc,
		},
		Payload: frame,
	}}, nil
}

// OpaqueDepacketizer inverts Opaque: every packet is a complete frame by
// itself, so no reassembly state is required.
type OpaqueDepacketizer struct{}

// Push implements Depacketizer.
func (*OpaqueDepacketizer) Push(_ rtppacket.Header, payload []byte) ([]byte, bool, bool) {
	return payload, true, false
}
