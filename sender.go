package uvgrtp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/stm-space/uvgrtp-go/internal/asyncprocessor"
	"github.com/stm-space/uvgrtp-go/pkg/bytecounter"
	"github.com/stm-space/uvgrtp-go/pkg/liberrors"
	"github.com/stm-space/uvgrtp-go/pkg/rtppacket"
)

var errQueueFull = errors.New("send queue is full")

// sender packetizes and transmits application frames on its own goroutine,
// generalizing internal/asyncprocessor.Processor (queue of closures, one
// worker goroutine, Initialize/Start/Close lifecycle) to carry frame
// ownership: a pushed frame may come with a DeallocHook the worker invokes
// once the frame's last packet has gone out, so a caller handing over an
// owned buffer gets it back without polling.
type sender struct {
	ms *MediaStream

	processor asyncprocessor.Processor

	hookMutex sync.Mutex
	dealloc   DeallocHook

	timestampIncrement uint32
	timestamp          atomic.Uint32

	counter bytecounter.Counter
	logger  zerolog.Logger
}

func newSender(ms *MediaStream, queueSize int, timestampIncrement uint32, logger zerolog.Logger) *sender {
	s := &sender{
		ms:                  ms,
		timestampIncrement:  timestampIncrement,
		logger:              logger,
	}
	s.processor = asyncprocessor.Processor{
		BufferSize: queueSize,
		OnError: func(_ context.Context, err error) {
			s.logger.Error().Err(err).Msg("send worker stopped")
			s.ms.fail(&liberrors.SendFailed{Op: "send worker", Err: err})
		},
	}
	s.processor.Initialize()
	s.processor.Start()
	return s
}

func (s *sender) close() {
	s.processor.Close()
}

// InstallDeallocHook registers the callback invoked once an owned frame
// pushed via PushFrameOwned has been fully sent (or dropped on error).
func (ms *MediaStream) InstallDeallocHook(hook DeallocHook) {
	ms.sender.hookMutex.Lock()
	ms.sender.dealloc = hook
	ms.sender.hookMutex.Unlock()
}

// PushFrame copies frame and enqueues it for packetization and send. The
// caller's slice is free to reuse or discard immediately after this
// returns.
func (ms *MediaStream) PushFrame(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	return ms.pushFrame(cp, nil)
}

// PushFrameOwned enqueues frame without copying it. Ownership transfers to
// the MediaStream until the installed DeallocHook (if any) is called back
// once send has finished with it.
func (ms *MediaStream) PushFrameOwned(frame []byte) error {
	return ms.pushFrame(frame, ms.sender.currentDeallocHook())
}

func (s *sender) currentDeallocHook() DeallocHook {
	s.hookMutex.Lock()
	defer s.hookMutex.Unlock()
	return s.dealloc
}

func (ms *MediaStream) pushFrame(frame []byte, dealloc DeallocHook) error {
	if !ms.active.Load() {
		if err := ms.LastError(); err != nil {
			return &liberrors.Generic{Reason: err.Error()}
		}
		return &liberrors.NotReady{Reason: "media stream is not active"}
	}
	if len(frame) == 0 {
		return &liberrors.InvalidValue{Field: "frame", Reason: "must not be empty"}
	}

	accepted := ms.sender.processor.Push(func() error {
		return ms.sendFrame(frame, dealloc)
	})
	if !accepted {
		if dealloc != nil {
			dealloc(frame)
		}
		return &liberrors.SendFailed{Op: "enqueue", Err: errQueueFull}
	}
	return nil
}

// sendFrame runs on the sender's single worker goroutine: it packetizes,
// stamps sequence numbers from the session's shared counter, writes each
// packet to the socket (through SRTP if enabled), and feeds the RTCP
// runner's sent-packet accounting.
func (ms *MediaStream) sendFrame(frame []byte, dealloc DeallocHook) error {
	defer func() {
		if dealloc != nil {
			dealloc(frame)
		}
	}()

	timestamp := ms.sender.timestamp.Add(ms.sender.timestampIncrement)

	packets, err := ms.packetizer.Packetize(ms.payloadType, ms.session.currentSSRC(), 0, timestamp, frame)
	if err != nil {
		return err
	}

	baseSeq := ms.session.nextSequence(len(packets))

	for i, pkt := range packets {
		pkt.Header.SequenceNumber = baseSeq + uint16(i)

		datagram, err := rtppacket.Build(pkt.Header, pkt.Payload)
		if err != nil {
			return err
		}

		if out := ms.srtpOut.Load(); out != nil {
			protected, err := out.EncryptRTP(nil, datagram, nil)
			if err != nil {
				return err
			}
			datagram = protected
		}

		if err := ms.socket.send(datagram); err != nil {
			return err
		}

		ms.sender.counter.AddPacket(len(pkt.Payload), rtppacket.HeaderSize(pkt.Header))
		if ms.rtcp != nil {
			ms.rtcp.ProcessSentPacket(pkt.Header, len(pkt.Payload))
		}
	}

	return nil
}
