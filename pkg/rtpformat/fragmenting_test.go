package rtpformat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stm-space/uvgrtp-go/pkg/rtppacket"
)

func TestFragmentingRoundTrip(t *testing.T) {
	f := &Fragmenting{FragmentPayloadCeiling: 16}

	frame := make([]byte, 1+50)
	frame[0] = 0x65 // NRI=3, type=5
	for i := range frame[1:] {
		frame[1+i] = byte(i)
	}

	packets, err := f.Packetize(96, 0xaabbccdd, 1000, 90000, frame)
	require.NoError(t, err)
	require.Greater(t, len(packets), 1)

	d := &FragmentingDepacketizer{}
	var got []byte
	for _, p := range packets {
		frame, completed, dropped := d.Push(p.Header, p.Payload)
		require.False(t, dropped)
		if completed {
			got = frame
		}
	}

	require.Equal(t, frame, got)
}

func TestFragmentingRoundTripPreservesForbiddenBit(t *testing.T) {
	f := &Fragmenting{FragmentPayloadCeiling: 16}

	frame := make([]byte, 1+50)
	frame[0] = 0xE5 // F=1, NRI=3, type=5
	for i := range frame[1:] {
		frame[1+i] = byte(i)
	}

	packets, err := f.Packetize(96, 0xaabbccdd, 1000, 90000, frame)
	require.NoError(t, err)
	require.Greater(t, len(packets), 1)

	d := &FragmentingDepacketizer{}
	var got []byte
	for _, p := range packets {
		frame, completed, dropped := d.Push(p.Header, p.Payload)
		require.False(t, dropped)
		if completed {
			got = frame
		}
	}

	require.Equal(t, frame, got)
	require.Equal(t, byte(0x80), got[0]&0x80, "forbidden bit must round-trip")
}

func TestFragmentingSmallFrameIsSinglePacket(t *testing.T) {
	f := &Fragmenting{FragmentPayloadCeiling: 1400}
	frame := []byte{0x65, 1, 2, 3}

	packets, err := f.Packetize(96, 1, 2000, 1000, frame)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	require.True(t, packets[0].Header.Marker)
	require.Equal(t, frame, packets[0].Payload)

	d := &FragmentingDepacketizer{}
	got, completed, dropped := d.Push(packets[0].Header, packets[0].Payload)
	require.True(t, completed)
	require.False(t, dropped)
	require.Equal(t, frame, got)
}

func TestFragmentingRejectsEmptyFrame(t *testing.T) {
	f := &Fragmenting{}
	_, err := f.Packetize(96, 1, 0, 0, nil)
	require.Error(t, err)
}

func TestFragmentingDepacketizerDropsStaleSlotOnAdvance(t *testing.T) {
	f := &Fragmenting{FragmentPayloadCeiling: 16}
	frame := make([]byte, 40)
	frame[0] = 0x65

	packets, err := f.Packetize(96, 1, 0, 1000, frame)
	require.NoError(t, err)
	require.Greater(t, len(packets), 1)

	d := &FragmentingDepacketizer{}
	// feed all but the last fragment, leaving the slot incomplete
	for _, p := range packets[:len(packets)-1] {
		_, completed, _ := d.Push(p.Header, p.Payload)
		require.False(t, completed)
	}

	// a packet for a new, higher timestamp arrives: the incomplete slot is
	// discarded rather than accumulating forever
	frame2 := make([]byte, 40)
	frame2[0] = 0x65
	packets2, err := f.Packetize(96, 1, 100, 2000, frame2)
	require.NoError(t, err)

	_, completed, dropped := d.Push(packets2[0].Header, packets2[0].Payload)
	require.False(t, completed)
	require.True(t, dropped)
}

func TestFragmentingDepacketizerReorderWithinWindow(t *testing.T) {
	f := &Fragmenting{FragmentPayloadCeiling: 16}
	frame := make([]byte, 1+50)
	frame[0] = 0x65
	for i := range frame[1:] {
		frame[1+i] = byte(i + 1)
	}

	packets, err := f.Packetize(96, 1, 500, 5000, frame)
	require.NoError(t, err)
	require.Equal(t, 4, len(packets))

	d := &FragmentingDepacketizer{}
	order := []int{0, 2, 1, 3}
	var got []byte
	for _, idx := range order {
		p := packets[idx]
		frame, completed, dropped := d.Push(p.Header, p.Payload)
		require.False(t, dropped)
		if completed {
			got = frame
		}
	}

	require.Equal(t, frame, got)
}

func TestFragmentingDepacketizerDropsFarBehindFragment(t *testing.T) {
	d := &FragmentingDepacketizer{ReorderWindow: 4}

	mkFragment := func(start, end bool) []byte {
		fh := byte(0x05)
		if start {
			fh |= 0x80
		}
		if end {
			fh |= 0x40
		}
		return []byte{0x9c, fh, 1, 2, 3}
	}

	// establish the slot's high-water mark far ahead
	_, _, dropped := d.Push(rtppacket.Header{SequenceNumber: 1000, Timestamp: 7000}, mkFragment(true, false))
	require.False(t, dropped)

	// a fragment far behind the high-water mark is discarded
	_, completed, dropped2 := d.Push(rtppacket.Header{SequenceNumber: 900, Timestamp: 7000}, mkFragment(false, false))
	require.False(t, completed)
	require.True(t, dropped2)
}

func TestFragmentingDepacketizerExpireStale(t *testing.T) {
	d := &FragmentingDepacketizer{}

	mkFragment := func(start, end bool) []byte {
		fh := byte(0x05)
		if start {
			fh |= 0x80
		}
		if end {
			fh |= 0x40
		}
		return []byte{0x9c, fh, 1, 2, 3}
	}

	_, _, dropped := d.Push(rtppacket.Header{SequenceNumber: 1, Timestamp: 1000}, mkFragment(true, false))
	require.False(t, dropped)

	start := time.Now()
	require.False(t, d.ExpireStale(start, time.Second))

	require.True(t, d.ExpireStale(start.Add(2*time.Second), time.Second))
	// a second call finds nothing left to expire
	require.False(t, d.ExpireStale(start.Add(3*time.Second), time.Second))
}

func TestFragmentingDepacketizerExpireStaleDisabledAtZero(t *testing.T) {
	d := &FragmentingDepacketizer{}
	// a start-only fragment, so the slot stays pending
	_, _, dropped := d.Push(rtppacket.Header{SequenceNumber: 1, Timestamp: 1000}, []byte{0x9c, 0x85, 1, 2, 3})
	require.False(t, dropped)

	require.False(t, d.ExpireStale(time.Now().Add(time.Hour), 0))
}
