package uvgrtp

// Frame is one reassembled application frame delivered by PullFrame or an
// installed receive hook, alongside the RTP fields a caller needs to make
// sense of it.
type Frame struct {
	Payload        []byte
	Timestamp      uint32
	SequenceNumber uint16
	SSRC           uint32
	PayloadType    uint8
	Marker         bool
}

// DeallocHook is invoked once a pushed owned-memory frame has been fully
// sent (or discarded on error), handing ownership of its backing buffer
// back to the caller.
type DeallocHook func(frame []byte)

// RecvHook receives every completed Frame as it is reassembled. Installing
// one makes PullFrame return ErrNotReady: the two delivery paths are
// mutually exclusive, matching the single-consumer contract of the
// underlying delivery ring.
type RecvHook func(*Frame)
