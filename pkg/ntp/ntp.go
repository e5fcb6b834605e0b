// Package ntp converts between Go wall-clock time and the 64-bit fixed-point
// NTP timestamps carried in RTCP Sender Reports (RFC 3550 §4).
package ntp

import (
	"math"
	"time"
)

// Encode converts a wall-clock instant into an RTCP-style NTP timestamp:
// seconds since the 1900 epoch in the high 32 bits, fractional seconds in
// the low 32 bits.
func Encode(t time.Time) uint64 {
	secsSince1900 := uint64(t.UnixNano()) + 2208988800*1000000000
	secs := secsSince1900 / 1000000000
	frac := uint64(math.Round(float64((secsSince1900%1000000000)*(1<<32)) / 1000000000))
	return secs<<32 | frac
}

// Decode converts an RTCP-style NTP timestamp back into a wall-clock instant.
func Decode(v uint64) time.Time {
	secs := int64((v >> 32) - 2208988800)
	nanos := int64(math.Round(float64(((v & 0xFFFFFFFF) * 1000000000) / (1 << 32))))
	return time.Unix(secs, nanos)
}

// Middle32 extracts the LSR field (RFC 3550 §6.4.1): the middle 32 bits of a
// 64-bit NTP timestamp, as echoed back in a receiver's report block.
func Middle32(v uint64) uint32 {
	return uint32(v >> 16)
}
