package rtpformat

import (
	"time"

	"github.com/stm-space/uvgrtp-go/pkg/liberrors"
	"github.com/stm-space/uvgrtp-go/pkg/rtppacket"
)

// fuIndicatorType marks a payload as a fragmentation unit, carried in the
// low 5 bits of the outer indicator octet — the RFC 6184 FU-A convention
// (type 28), kept as the generic "this is a fragment" tag.
const fuIndicatorType = 28

// DefaultFragmentCeiling is the default fragment-payload ceiling.
const DefaultFragmentCeiling = 1400

// DefaultReorderWindow bounds how far a fragment's sequence number may
// trail the highest one seen in its slot before it is discarded.
const DefaultReorderWindow = 128

// Fragmenting implements a video-NAL-style fragmenting discipline: frames
// at or under the ceiling go out as a single packet; larger frames are
// split into FU-A-style fragments, exactly one carrying the start flag and
// exactly one the end flag (which also carries marker=1). All fragments of
// one frame share one RTP timestamp and occupy contiguous sequence
// numbers.
type Fragmenting struct {
	// FragmentPayloadCeiling is the largest fragment payload. Defaults to
	// DefaultFragmentCeiling when zero.
	FragmentPayloadCeiling int
}

var _ Packetizer = (*Fragmenting)(nil)

func (f *Fragmenting) ceiling() int {
	if f.FragmentPayloadCeiling <= 0 {
		return DefaultFragmentCeiling
	}
	return f.FragmentPayloadCeiling
}

// Packetize implements Packetizer.
func (f *Fragmenting) Packetize(payloadType uint8, ssrc uint32, baseSeq uint16, timestamp uint32, frame []byte) ([]Packet, error) {
	if len(frame) == 0 {
		return nil, &liberrors.InvalidValue{Field: "frame", Reason: "must not be empty"}
	}

	ceiling := f.ceiling()

	if len(frame) <= ceiling {
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

	// the first octet of the frame is treated as a NAL-style header byte:
	// F(1) NRI(2) Type(5). The remaining bytes are the unit body that gets
	// split across fragments. Both F and NRI are carried unchanged into
	// the FU-A indicator octet, per RFC 6184 §5.8.
	fBit := frame[0] & 0x80
	nri := (frame[0] >> 5) & 0x03
	unitType := frame[0] & 0x1F
	body := frame[1:]

	const fuHeaderOverhead = 2
	maxChunk := ceiling - fuHeaderOverhead
	if maxChunk <= 0 {
		return nil, &liberrors.InvalidValue{Field: "FragmentPayloadCeiling", Reason: "too small to carry a FU-A header"}
	}

	count := (len(body) + maxChunk - 1) / maxChunk
	packets := make([]Packet, count)

	seq := baseSeq
	offset := 0
	for i := 0; i < count; i++ {
		end := offset + maxChunk
		last := i == count-1
		if last {
			end = len(body)
		}

		indicator := fBit | (nri << 5) | uint8(fuIndicatorType)
		header := unitType
		if i == 0 {
			header |= 0x80 // start
		}
		if last {
			header |= 0x40 // end
		}

		payload := make([]byte, fuHeaderOverhead+(end-offset))
		payload[0] = indicator
		payload[1] = header
		copy(payload[2:], body[offset:end])

		packets[i] = Packet{
			Header: rtppacket.Header{
				Marker:         last,
				PayloadType:    payloadType,
				SequenceNumber: seq,
				Timestamp:      timestamp,
				SSRC:           ssrc,
			},
			Payload: payload,
		}

		seq++
		offset = end
	}

	return packets, nil
}

// fragment is one buffered FU-A fragment awaiting reassembly.
type fragment struct {
	body  []byte
	start bool
	end   bool
}

// slot is the reassembly state for one RTP timestamp.
type slot struct {
	timestamp uint32
	createdAt time.Time
	fBit      uint8
	nri       uint8
	unitType  uint8
	frags     map[uint16]fragment
	haveMax   bool
	maxSeq    uint16
	startSeq  uint16
	endSeq    uint16
	hasStart  bool
	hasEnd    bool
}

func newSlot(timestamp uint32, createdAt time.Time) *slot {
	return &slot{timestamp: timestamp, createdAt: createdAt, frags: make(map[uint16]fragment)}
}

// seqDiff returns a-b as a signed delta, correct across the 16-bit
// sequence-number wraparound.
func seqDiff(a, b uint16) int32 {
	return int32(int16(a - b))
}

// assemble concatenates the slot's fragments in sequence order. It returns
// ok=false if any sequence number between startSeq and endSeq is missing:
// reassembly never delivers a frame with gaps.
func (s *slot) assemble() ([]byte, bool) {
	if !s.hasStart || !s.hasEnd {
		return nil, false
	}

	total := 1 // reconstructed unit header byte
	seq := s.startSeq
	for {
		f, ok := s.frags[seq]
		if !ok {
			return nil, false
		}
		total += len(f.body)
		if seq == s.endSeq {
			break
		}
		seq++
	}

	out := make([]byte, 0, total)
	out = append(out, s.fBit|(s.nri<<5)|s.unitType)
	seq = s.startSeq
	for {
		f := s.frags[seq]
		out = append(out, f.body...)
		if seq == s.endSeq {
			break
		}
		seq++
	}

	return out, true
}

// FragmentingDepacketizer inverts Fragmenting for one MediaStream's receive
// path. It is not safe for concurrent use — a single receive worker owns
// it.
type FragmentingDepacketizer struct {
	// ReorderWindow bounds how far behind the slot's highest sequence
	// number a fragment may be before it is discarded. Defaults to
	// DefaultReorderWindow when zero.
	ReorderWindow int

	cur *slot
}

var _ Depacketizer = (*FragmentingDepacketizer)(nil)

func (d *FragmentingDepacketizer) reorderWindow() int32 {
	if d.ReorderWindow <= 0 {
		return DefaultReorderWindow
	}
	return int32(d.ReorderWindow)
}

// Push implements Depacketizer.
func (d *FragmentingDepacketizer) Push(h rtppacket.Header, payload []byte) (frame []byte, completed bool, dropped bool) {
	if len(payload) < 1 {
		return nil, false, true
	}

	if payload[0]&0x1F != fuIndicatorType {
		// not a fragment: the whole frame arrived in one packet.
		staleDropped := d.advance(h.Timestamp)
		return payload, true, staleDropped
	}

	if len(payload) < 2 {
		return nil, false, true
	}

	fBit := payload[0] & 0x80
	nri := (payload[0] >> 5) & 0x03
	fh := payload[1]
	start := fh&0x80 != 0
	end := fh&0x40 != 0
	unitType := fh & 0x1F
	body := payload[2:]

	staleDropped := d.advance(h.Timestamp)

	s := d.cur
	if s.haveMax {
		if seqDiff(s.maxSeq, h.SequenceNumber) > d.reorderWindow() {
			return nil, false, true
		}
	}

	s.fBit = fBit
	s.nri = nri
	s.unitType = unitType
	s.frags[h.SequenceNumber] = fragment{body: body, start: start, end: end}

	if !s.haveMax || seqDiff(h.SequenceNumber, s.maxSeq) > 0 {
		s.maxSeq = h.SequenceNumber
		s.haveMax = true
	}
	if start {
		s.hasStart = true
		s.startSeq = h.SequenceNumber
	}
	if end {
		s.hasEnd = true
		s.endSeq = h.SequenceNumber
	}

	if s.hasEnd {
		out, ok := s.assemble()
		d.cur = nil
		if ok {
			return out, true, staleDropped
		}
		return nil, false, true
	}

	return nil, false, staleDropped
}

// advance ensures d.cur is the slot for timestamp ts, flushing (and
// discarding, per the completion trigger "receipt of the next higher
// timestamp") whatever incomplete slot preceded it. Returns whether a
// stale slot was discarded.
func (d *FragmentingDepacketizer) advance(ts uint32) bool {
	if d.cur != nil && d.cur.timestamp == ts {
		return false
	}

	discarded := d.cur != nil
	d.cur = newSlot(ts, time.Now())
	return discarded
}

// ExpireStale discards the current reassembly slot if it was created more
// than timeout ago relative to now, for a stream whose sender has stopped
// sending a timestamp's remaining fragments entirely — advance only ages a
// slot out once a newer timestamp arrives, which never happens on its own.
// It reports whether a slot was discarded. A non-positive timeout disables
// expiry.
func (d *FragmentingDepacketizer) ExpireStale(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 || d.cur == nil {
		return false
	}
	if now.Sub(d.cur.createdAt) < timeout {
		return false
	}
	d.cur = nil
	return true
}
