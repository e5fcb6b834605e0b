package uvgrtp

import (
	"strconv"
	"sync/atomic"

	"github.com/pion/rtcp"
	"github.com/rs/zerolog"

	"github.com/stm-space/uvgrtp-go/pkg/liberrors"
	rtcprunner "github.com/stm-space/uvgrtp-go/pkg/rtcp"
	"github.com/stm-space/uvgrtp-go/pkg/rtpformat"
	"github.com/stm-space/uvgrtp-go/pkg/srtpcontext"
	"github.com/stm-space/uvgrtp-go/pkg/zrtp"
)

// nominalMediaBandwidthBPS is the assumed media bitrate cfg.RTCPBandwidthFraction
// scales to get the RTCP session bandwidth budget: the same 64 kbit/s audio
// call RFC 3550 §6.2's worked example (and rtcprunner.DefaultSessionBandwidth)
// uses, since nothing in the API surface yet reports an actual media bitrate.
const nominalMediaBandwidthBPS = 64000

// MediaStream is one RTP/RTCP (and, optionally, ZRTP/SRTP) endpoint pair:
// one UDP socket, a send worker, a receive worker, and an RTCP control
// loop, all bound to a single remote peer. Construct one through
// Session.CreateMediaStream.
type MediaStream struct {
	session *Session

	localPort      int
	remoteAddr     string
	remotePort     int
	payloadType    uint8
	clockRate      int
	useFragmenting bool

	logger zerolog.Logger

	socket       *socket
	packetizer   rtpformat.Packetizer
	depacketizer rtpformat.Depacketizer

	sender   *sender
	receiver *receiver
	rtcp     *rtcprunner.Runner
	rtcpio   *rtcpIO
	zrtp     *zrtp.Negotiator

	srtpOut atomic.Pointer[srtpcontext.Context]
	srtpIn  atomic.Pointer[srtpcontext.Context]

	config mediaConfig

	active   atomic.Bool
	closed   atomic.Bool
	lastErr  atomic.Value
}

func (ms *MediaStream) initialize() error {
	cfg := ms.session.config

	sock, err := newSocket(ms.localPort, ms.remoteAddr, ms.remotePort, cfg.ReuseAddr)
	if err != nil {
		return err
	}
	ms.socket = sock

	if ms.useFragmenting || cfg.UseFragmentingFormatter {
		ms.packetizer = &rtpformat.Fragmenting{}
		ms.depacketizer = &rtpformat.FragmentingDepacketizer{ReorderWindow: cfg.ReorderWindowSize}
	} else {
		ms.packetizer = &rtpformat.Opaque{}
		ms.depacketizer = &rtpformat.OpaqueDepacketizer{}
	}

	ms.sender = newSender(ms, cfg.MaxQueuedFrames, defaultTimestampIncrement(ms.clockRate), ms.logger)

	recv, err := newReceiver(ms, cfg.MaxQueuedFrames, cfg, ms.logger)
	if err != nil {
		ms.sender.close()
		_ = ms.socket.close()
		return err
	}
	ms.receiver = recv
	ms.receiver.start()

	if cfg.EnableRTCP {
		rtcpSock, err := newRTCPSocket(ms.localPort, ms.remoteAddr, ms.remotePort, cfg.ReuseAddr)
		if err != nil {
			ms.sender.close()
			ms.receiver.close()
			_ = ms.socket.close()
			return err
		}
		ms.rtcpio = &rtcpIO{sock: rtcpSock}

		ms.rtcp = &rtcprunner.Runner{
			LocalSSRC:        ms.session.currentSSRC(),
			ClockRate:        ms.clockRate,
			SessionBandwidth: nominalMediaBandwidthBPS * cfg.RTCPBandwidthFraction,
			WriteCompound:    ms.writeCompoundRTCP,
			OnTimeout: func(ssrc uint32) {
				ms.logger.Warn().Uint32("ssrc", ssrc).Msg("remote participant timed out")
			},
		}
		ms.rtcp.Initialize()
		ms.startRTCPReceiveLoop()
	}

	ms.active.Store(true)

	if cfg.EnableSRTP {
		ms.zrtp = &zrtp.Negotiator{
			Send: ms.socket.send,
			OnSecure: func(keys *zrtp.SessionKeys) {
				ms.onZRTPSecure(keys)
			},
			OnError: func(err error) {
				ms.logger.Error().Err(err).Msg("zrtp handshake failed")
				ms.fail(&liberrors.AuthFailure{Phase: "zrtp"})
			},
		}
		if err := ms.zrtp.Initialize(); err != nil {
			ms.logger.Error().Err(err).Msg("zrtp handshake could not start")
		}
	}

	return nil
}

// defaultTimestampIncrement is the RTP timestamp advance per pushed frame:
// clockRate/30 ticks, i.e. a nominal 30 fps. PushFrame has no per-frame
// timestamp override, so every frame advances the timestamp by this amount.
func defaultTimestampIncrement(clockRate int) uint32 {
	if clockRate <= 0 {
		return 1
	}
	return uint32(clockRate / 30)
}

// onZRTPSecure builds the two SRTP contexts once ZRTP has derived session
// keys: this side encrypts outgoing traffic under its own role's key and
// decrypts incoming traffic under the peer's.
func (ms *MediaStream) onZRTPSecure(keys *zrtp.SessionKeys) {
	var outKey, outSalt, inKey, inSalt []byte
	if ms.zrtp.IsInitiator() {
		outKey, outSalt = keys.InitiatorSRTPKey, keys.InitiatorSRTPSalt
		inKey, inSalt = keys.ResponderSRTPKey, keys.ResponderSRTPSalt
	} else {
		outKey, outSalt = keys.ResponderSRTPKey, keys.ResponderSRTPSalt
		inKey, inSalt = keys.InitiatorSRTPKey, keys.InitiatorSRTPSalt
	}

	out, err := srtpcontext.New(outKey, outSalt)
	if err != nil {
		ms.logger.Error().Err(err).Msg("could not build outbound srtp context")
		ms.fail(&liberrors.AuthFailure{Phase: "srtp key setup"})
		return
	}
	in, err := srtpcontext.New(inKey, inSalt)
	if err != nil {
		ms.logger.Error().Err(err).Msg("could not build inbound srtp context")
		ms.fail(&liberrors.AuthFailure{Phase: "srtp key setup"})
		return
	}

	ms.srtpOut.Store(out)
	ms.srtpIn.Store(in)
	ms.logger.Info().Msg("zrtp handshake complete, srtp active")
}

func (ms *MediaStream) writeCompoundRTCP(pkts []rtcp.Packet) error {
	buf, err := rtcp.Marshal(pkts)
	if err != nil {
		return err
	}
	if out := ms.srtpOut.Load(); out != nil {
		protected, err := out.EncryptRTCP(nil, buf, nil)
		if err != nil {
			return err
		}
		buf = protected
	}
	return ms.rtcpio.sock.send(buf)
}

// fail records a worker-observed fatal condition: the stream stops
// accepting new work, the next PushFrame/PushFrameOwned returns a Generic
// error carrying the recorded error's text, and LastError returns it.
func (ms *MediaStream) fail(err error) {
	ms.active.Store(false)
	ms.lastErr.Store(err)
}

// LastError returns the error a worker goroutine last observed, or nil if
// the stream has not failed.
func (ms *MediaStream) LastError() error {
	v := ms.lastErr.Load()
	if v == nil {
		return nil
	}
	return v.(error)
}

// AddParticipant registers a remote SSRC with the RTCP runner ahead of any
// traffic from it. It is a no-op if RTCP is disabled.
func (ms *MediaStream) AddParticipant(ssrc uint32) {
	if ms.rtcp != nil {
		ms.rtcp.AddParticipant(ssrc)
	}
}

// GenerateReport forces an immediate RTCP report instead of waiting for
// the scheduler's next computed interval. It is a no-op if RTCP is
// disabled.
func (ms *MediaStream) GenerateReport() {
	if ms.rtcp != nil {
		ms.rtcp.GenerateReport()
	}
}

// Terminate is an alias for Close, matching the RTCP runner's terminate()
// naming: it stops accepting work, sends a final BYE, and joins every
// worker goroutine.
func (ms *MediaStream) Terminate() error {
	return ms.Close()
}

// Close tears down the stream's workers and socket, sending a final RTCP
// BYE first if RTCP is enabled. Close is idempotent: only the first call
// does anything, so repeated Close or Terminate calls don't emit a second
// BYE.
func (ms *MediaStream) Close() error {
	if !ms.closed.CompareAndSwap(false, true) {
		return nil
	}
	ms.active.Store(false)

	if ms.rtcp != nil {
		ms.rtcp.Close()
	}
	if ms.rtcpio != nil {
		ms.closeRTCPIO()
	}
	if ms.zrtp != nil {
		ms.zrtp.Close()
	}

	ms.sender.close()
	ms.receiver.close()

	err := ms.socket.close()

	ms.session.removeMediaStream(ms.remoteAddr + ":" + strconv.Itoa(ms.remotePort))

	return err
}
