package rtppacket

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildParseRoundTrip(t *testing.T) {
	h := Header{
		Marker:         true,
		PayloadType:    96,
		SequenceNumber: 1234,
		Timestamp:      90000,
		SSRC:           0xdeadbeef,
	}
	payload := []byte{1, 2, 3, 4, 5}

	datagram, err := Build(h, payload)
	require.NoError(t, err)

	gotHeader, gotPayload, err := Parse(datagram)
	require.NoError(t, err)
	require.Equal(t, h.Marker, gotHeader.Marker)
	require.Equal(t, h.PayloadType, gotHeader.PayloadType)
	require.Equal(t, h.SequenceNumber, gotHeader.SequenceNumber)
	require.Equal(t, h.Timestamp, gotHeader.Timestamp)
	require.Equal(t, h.SSRC, gotHeader.SSRC)
	require.Equal(t, payload, gotPayload)
}

func TestParseRejectsShortDatagram(t *testing.T) {
	_, _, err := Parse(make([]byte, 4))
	require.Error(t, err)
}

func TestParseRejectsBadVersion(t *testing.T) {
	buf := make([]byte, 12)
	buf[0] = 0x00 // version 0
	_, _, err := Parse(buf)
	require.Error(t, err)
}
