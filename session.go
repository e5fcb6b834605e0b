package uvgrtp

import (
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stm-space/uvgrtp-go/pkg/liberrors"
)

// Session groups the MediaStreams of one conversation under a shared SSRC
// and sequence-number space. A collision on a received SSRC (detected by a
// MediaStream's RTP receive loop) triggers local reselection via reselectSSRC,
// rather than the fixed identity a Session is created with.
type Session struct {
	config Config
	logger zerolog.Logger

	mutex    sync.Mutex
	ssrc     uint32
	sequence uint16
	streams  map[string]*MediaStream
}

// CreateMediaStream binds a new MediaStream to localPort, sending to
// remoteAddr:remotePort. Frames are split across multiple packets
// (Fragmenting) when either useFragmenting or Config.UseFragmentingFormatter
// is set, and packetized whole (Opaque) otherwise.
func (s *Session) CreateMediaStream(localPort int, remoteAddr string, remotePort int, payloadType uint8, clockRate int, useFragmenting bool) (*MediaStream, error) {
	if localPort <= 0 || localPort > 65535 {
		return nil, &liberrors.InvalidValue{Field: "localPort", Reason: "must be in [1, 65535]"}
	}
	if remotePort <= 0 || remotePort > 65535 {
		return nil, &liberrors.InvalidValue{Field: "remotePort", Reason: "must be in [1, 65535]"}
	}

	s.mutex.Lock()
	key := remoteAddr + ":" + strconv.Itoa(remotePort)
	if _, exists := s.streams[key]; exists {
		s.mutex.Unlock()
		return nil, &liberrors.InvalidValue{Field: "remoteAddr:remotePort", Reason: "a MediaStream already targets this remote"}
	}
	s.mutex.Unlock()

	ms := &MediaStream{
		session:        s,
		localPort:      localPort,
		remoteAddr:     remoteAddr,
		remotePort:     remotePort,
		payloadType:    payloadType,
		clockRate:      clockRate,
		useFragmenting: useFragmenting,
		logger:         s.logger.With().Str("remote", key).Logger(),
	}
	if err := ms.initialize(); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	s.streams[key] = ms
	s.mutex.Unlock()

	return ms, nil
}

// removeMediaStream drops a stream from the session's bookkeeping once its
// Close has fully torn it down.
func (s *Session) removeMediaStream(key string) {
	s.mutex.Lock()
	delete(s.streams, key)
	s.mutex.Unlock()
}

// nextSequence returns the next sequence number to stamp on an outgoing
// packet and advances the counter, wrapping at 65536 per RFC 3550 §5.1.
func (s *Session) nextSequence(n int) uint16 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	base := s.sequence
	s.sequence += uint16(n)
	return base
}

// reselectSSRC replaces the session's SSRC after a MediaStream's receive
// loop sees a remote packet carrying it, per RFC 3550 §8.2.
func (s *Session) reselectSSRC() (uint32, error) {
	ssrc, err := randomSSRC()
	if err != nil {
		return 0, err
	}

	s.mutex.Lock()
	s.ssrc = ssrc
	s.mutex.Unlock()

	s.logger.Warn().Uint32("ssrc", ssrc).Msg("reselected local SSRC after collision")
	return ssrc, nil
}

func (s *Session) currentSSRC() uint32 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.ssrc
}
