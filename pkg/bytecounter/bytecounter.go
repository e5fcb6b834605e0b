// Package bytecounter accumulates the per-participant stats block:
// processed/overhead/total bytes and processed/dropped packets. It replaces
// an earlier io.ReadWriter byte-counting wrapper (which only fit a stream
// transport) with a packet-oriented counter fed directly by the send and
// receive paths.
package bytecounter

import "sync/atomic"

// Counter accumulates byte and packet counts for one participant or one
// local send path. All methods are safe for concurrent use: the worker
// goroutine updates a Counter while other goroutines may take Snapshots.
type Counter struct {
	processedBytes   atomic.Uint64
	overheadBytes    atomic.Uint64
	totalBytes       atomic.Uint64
	processedPackets atomic.Uint64
	droppedPackets   atomic.Uint64
}

// AddPacket records one processed packet: payloadLen bytes of media plus
// headerLen bytes of RTP/RTCP overhead.
func (c *Counter) AddPacket(payloadLen, headerLen int) {
	c.processedBytes.Add(uint64(payloadLen))
	c.overheadBytes.Add(uint64(headerLen))
	c.totalBytes.Add(uint64(payloadLen + headerLen))
	c.processedPackets.Add(1)
}

// AddDropped records one packet that was counted but not delivered
// (malformed header, reassembly miss, reorder-window eviction).
func (c *Counter) AddDropped() {
	c.droppedPackets.Add(1)
}

// Snapshot is a point-in-time read of a Counter.
type Snapshot struct {
	ProcessedBytes   uint64
	OverheadBytes    uint64
	TotalBytes       uint64
	ProcessedPackets uint64
	DroppedPackets   uint64
}

// Snapshot reads the current values without resetting them.
func (c *Counter) Snapshot() Snapshot {
	return Snapshot{
		ProcessedBytes:   c.processedBytes.Load(),
		OverheadBytes:    c.overheadBytes.Load(),
		TotalBytes:       c.totalBytes.Load(),
		ProcessedPackets: c.processedPackets.Load(),
		DroppedPackets:   c.droppedPackets.Load(),
	}
}
