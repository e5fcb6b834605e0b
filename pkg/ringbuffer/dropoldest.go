package ringbuffer

import (
	"fmt"
	"sync"
)

// DropOldestRing is a bounded queue that, unlike RingBuffer, never blocks
// the producer: when full, Push evicts the oldest entry, bumps a drop
// counter, and inserts the new one. This backs the reassembled-frame
// delivery queue handed to callers pulling completed frames: bounded,
// overflow drops the oldest with a counter increment rather than blocking
// the receive worker.
type DropOldestRing struct {
	size    uint64
	mutex   sync.Mutex
	cond    *sync.Cond
	buffer  []interface{}
	head    uint64
	count   uint64
	closed  bool
	dropped uint64
}

// NewDropOldestRing allocates a DropOldestRing of the given capacity, which
// must be a power of two.
func NewDropOldestRing(size uint64) (*DropOldestRing, error) {
	if size == 0 || (size&(size-1)) != 0 {
		return nil, fmt.Errorf("size must be a power of two")
	}

	r := &DropOldestRing{
		size:   size,
		buffer: make([]interface{}, size),
	}
	r.cond = sync.NewCond(&r.mutex)
	return r, nil
}

// Push inserts data at the tail, evicting the oldest entry if full.
// Returns true if an existing entry was dropped to make room.
func (r *DropOldestRing) Push(data interface{}) (droppedExisting bool) {
	r.mutex.Lock()

	if r.count == r.size {
		// evict the oldest entry to make room.
		r.head = (r.head + 1) % r.size
		r.count--
		r.dropped++
		droppedExisting = true
	}

	tail := (r.head + r.count) % r.size
	r.buffer[tail] = data
	r.count++

	r.mutex.Unlock()
	r.cond.Broadcast()

	return droppedExisting
}

// Pull blocks until an entry is available or the ring is closed.
func (r *DropOldestRing) Pull() (interface{}, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for r.count == 0 {
		if r.closed {
			return nil, false
		}
		r.cond.Wait()
	}

	data := r.buffer[r.head]
	r.buffer[r.head] = nil
	r.head = (r.head + 1) % r.size
	r.count--

	return data, true
}

// Close makes any blocked or future Pull return false immediately.
func (r *DropOldestRing) Close() {
	r.mutex.Lock()
	r.closed = true
	r.mutex.Unlock()
	r.cond.Broadcast()
}

// Dropped returns the number of entries evicted by overflow so far.
func (r *DropOldestRing) Dropped() uint64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.dropped
}
