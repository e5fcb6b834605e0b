package uvgrtp

import (
	"crypto/rand"
	"encoding/binary"
)

// randomSSRC picks a random 32-bit synchronization source identifier for a
// new Session, per RFC 3550 §8.1.
func randomSSRC() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// randomSequenceNumber picks a random initial RTP sequence number, per
// RFC 3550 §5.1 (prevents known-plaintext attacks on poorly designed
// encryption schemes and frustrates naive sequence-number prediction).
func randomSequenceNumber() (uint16, error) {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}
