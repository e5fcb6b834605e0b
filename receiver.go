package uvgrtp

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/stm-space/uvgrtp-go/pkg/bytecounter"
	"github.com/stm-space/uvgrtp-go/pkg/liberrors"
	"github.com/stm-space/uvgrtp-go/pkg/multibuffer"
	"github.com/stm-space/uvgrtp-go/pkg/ringbuffer"
	"github.com/stm-space/uvgrtp-go/pkg/rtpformat"
	"github.com/stm-space/uvgrtp-go/pkg/rtppacket"
)

const (
	// recvBufferSize covers the largest UDP datagram a MediaStream accepts.
	recvBufferSize = 65536
	// recvBufferCount sizes the multi-buffer pool backing the read loop.
	recvBufferCount = 8
)

// receiver runs the single-reader UDP receive loop for the RTP socket: read
// datagram, strip SRTP if enabled, parse the RTP header, reassemble into
// frames via the configured Depacketizer, and deliver completed frames to
// either a pull queue or an installed hook. Incoming RTCP arrives on its
// own socket and receive loop; see rtcp_io.go.
type receiver struct {
	ms *MediaStream

	buffers *multibuffer.MultiBuffer
	queue   *ringbuffer.DropOldestRing

	hookMutex sync.Mutex
	hook      RecvHook

	counter bytecounter.Counter
	logger  zerolog.Logger

	strictSequenceCheck bool
	haveLastSeq         bool
	lastSeq             uint16

	reassemblyTimeout time.Duration

	done      chan struct{}
	terminate atomic.Bool
	wg        sync.WaitGroup
}

func newReceiver(ms *MediaStream, queueSize int, cfg Config, logger zerolog.Logger) (*receiver, error) {
	queue, err := ringbuffer.NewDropOldestRing(uint64(queueSize))
	if err != nil {
		return nil, &liberrors.Generic{Reason: err.Error()}
	}

	r := &receiver{
		ms:                  ms,
		buffers:             multibuffer.New(recvBufferCount, recvBufferSize),
		queue:               queue,
		logger:              logger,
		strictSequenceCheck: cfg.StrictSequenceCheck,
		reassemblyTimeout:   time.Duration(cfg.ReassemblyTimeoutMS) * time.Millisecond,
		done:                make(chan struct{}),
	}
	return r, nil
}

func (r *receiver) start() {
	r.wg.Add(1)
	go r.run()

	if _, ok := r.ms.depacketizer.(rtpformat.StaleExpirer); ok && r.reassemblyTimeout > 0 {
		r.wg.Add(1)
		go r.runExpiry()
	}
}

func (r *receiver) close() {
	r.terminate.Store(true)
	r.queue.Close()
	close(r.done)
	r.wg.Wait()
}

func (r *receiver) run() {
	defer r.wg.Done()

	for !r.terminate.Load() {
		buf := r.buffers.Next()
		n, ok, err := r.ms.socket.recv(buf)
		if err != nil {
			r.logger.Error().Err(err).Msg("recv failed")
			r.ms.fail(err)
			return
		}
		if !ok {
			continue
		}

		r.handleDatagram(buf[:n])
	}
}

// runExpiry periodically ages out an orphaned reassembly slot that will
// never see the "next timestamp arrived" trigger advance() relies on,
// because the peer stopped sending that frame's remaining fragments
// entirely (not just reordered them).
func (r *receiver) runExpiry() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.reassemblyTimeout / 2)
	defer ticker.Stop()

	expirer := r.ms.depacketizer.(rtpformat.StaleExpirer)
	for !r.terminate.Load() {
		select {
		case <-ticker.C:
			if expirer.ExpireStale(time.Now(), r.reassemblyTimeout) {
				r.counter.AddDropped()
			}
		case <-r.done:
			return
		}
	}
}

func (r *receiver) handleDatagram(datagram []byte) {
	if in := r.ms.srtpIn.Load(); in != nil {
		plain, err := in.DecryptRTP(nil, datagram, nil)
		if err != nil {
			r.counter.AddDropped()
			r.logger.Debug().Err(err).Msg("dropped undecryptable packet")
			return
		}
		datagram = plain
	}

	h, payload, err := rtppacket.Parse(datagram)
	if err != nil {
		r.counter.AddDropped()
		r.logger.Debug().Err(err).Msg("dropped malformed packet")
		return
	}

	if h.SSRC == r.ms.session.currentSSRC() {
		if ssrc, err := r.ms.session.reselectSSRC(); err == nil && r.ms.rtcp != nil {
			r.ms.rtcp.SetLocalSSRC(ssrc)
		}
	}

	if r.ms.rtcp != nil {
		r.ms.rtcp.ProcessReceivedPacket(h)
	}

	if r.strictSequenceCheck && r.sequenceDiscontinuous(h.SequenceNumber) {
		r.counter.AddDropped()
		r.logger.Debug().Uint16("seq", h.SequenceNumber).Msg("dropped packet on sequence discontinuity")
		return
	}

	frame, completed, dropped := r.ms.depacketizer.Push(h, payload)
	if dropped {
		r.counter.AddDropped()
	}
	if !completed {
		return
	}

	r.counter.AddPacket(len(frame), rtppacket.HeaderSize(h))

	out := &Frame{
		Payload:        frame,
		Timestamp:      h.Timestamp,
		SequenceNumber: h.SequenceNumber,
		SSRC:           h.SSRC,
		PayloadType:    h.PayloadType,
		Marker:         h.Marker,
	}

	r.hookMutex.Lock()
	hook := r.hook
	r.hookMutex.Unlock()

	if hook != nil {
		hook(out)
		return
	}

	r.queue.Push(out)
}

// sequenceDiscontinuous reports whether seq is anything other than the
// packet immediately following the last one accepted — a gap, a reorder,
// or a duplicate — any of which the depacketizer would otherwise try to
// best-effort reassemble around. The first packet of a stream is never
// discontinuous; it just establishes the baseline.
func (r *receiver) sequenceDiscontinuous(seq uint16) bool {
	if !r.haveLastSeq {
		r.haveLastSeq = true
		r.lastSeq = seq
		return false
	}

	discontinuous := seq != r.lastSeq+1
	r.lastSeq = seq
	return discontinuous
}

// InstallRecvHook routes every completed Frame to hook instead of the pull
// queue. Installing a hook makes PullFrame return ErrNotReady, per the
// mutual-exclusion contract between the two delivery paths.
func (ms *MediaStream) InstallRecvHook(hook RecvHook) {
	ms.receiver.hookMutex.Lock()
	ms.receiver.hook = hook
	ms.receiver.hookMutex.Unlock()
}

// PullFrame blocks until a reassembled Frame is available or the stream is
// closed. It returns ErrNotReady if a receive hook is installed.
func (ms *MediaStream) PullFrame() (*Frame, error) {
	ms.receiver.hookMutex.Lock()
	hookInstalled := ms.receiver.hook != nil
	ms.receiver.hookMutex.Unlock()
	if hookInstalled {
		return nil, &liberrors.NotReady{Reason: "a receive hook is installed"}
	}

	v, ok := ms.receiver.queue.Pull()
	if !ok {
		return nil, &liberrors.NotReady{Reason: "media stream is closed"}
	}
	return v.(*Frame), nil
}
