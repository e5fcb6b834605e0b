// Package asyncprocessor drains a bounded queue of closures on its own
// goroutine, decoupling a caller that enqueues work (a MediaStream's
// PushFrame/PushFrameOwned) from the goroutine that actually performs it
// (packetize, stamp, encrypt, write to the socket). A pushed closure that
// returns an error stops the queue for good; the first such error is
// reported once through OnError, never with a nil error for the ordinary
// drain-to-Close shutdown path.
package asyncprocessor

import (
	"context"

	"github.com/stm-space/uvgrtp-go/pkg/ringbuffer"
)

// Processor runs queued func() error closures one at a time on a single
// worker goroutine until the queue is closed or one of them fails.
type Processor struct {
	BufferSize int
	OnError    func(context.Context, error)

	running   bool
	queue     *ringbuffer.RingBuffer
	ctx       context.Context
	ctxCancel func()

	done chan struct{}
}

// Initialize allocates the queue and must run before Start.
func (p *Processor) Initialize() {
	p.queue, _ = ringbuffer.New(uint64(p.BufferSize))
	p.ctx, p.ctxCancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})
}

// Close stops accepting new work, drops whatever is still queued, and
// blocks until the worker goroutine (if started) has exited.
func (p *Processor) Close() {
	p.ctxCancel()
	p.queue.Close()

	if p.running {
		<-p.done
	}
}

// Start launches the worker goroutine.
func (p *Processor) Start() {
	p.running = true
	go p.run()
}

func (p *Processor) run() {
	defer close(p.done)

	if err := p.drain(); err != nil {
		p.OnError(p.ctx, err)
	}
}

// drain pulls and runs closures until the queue is closed or one fails.
func (p *Processor) drain() error {
	for {
		item, ok := p.queue.Pull()
		if !ok {
			return nil
		}

		if err := item.(func() error)(); err != nil {
			return err
		}
	}
}

// Push enqueues cb for the worker goroutine, returning false if the queue
// is full (the caller must then handle its own work synchronously or drop
// it, rather than block the producer).
func (p *Processor) Push(cb func() error) bool {
	return p.queue.Push(cb)
}
