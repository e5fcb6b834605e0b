// Package uvgrtp implements a user-space RTP/RTCP/ZRTP media-transport
// library: a Context issues Sessions, each Session hosts MediaStreams, and
// each MediaStream packetizes application frames onto one UDP socket pair
// while running an RTCP control loop and, optionally, a ZRTP key-agreement
// handshake.
package uvgrtp

import (
	"github.com/rs/zerolog"
)

// Context is a process-wide factory for Sessions. Its Config is copied
// into every Session created afterward; changing it later does not affect
// already-created Sessions.
//
// Logging follows an optional-dependency discipline: Logger defaults to
// zerolog.Nop() so the hot path never pays for logging unless a caller
// asks for it, threaded through Session and MediaStream for connection
// lifecycle, worker failures, SSRC reselection and the ZRTP handshake
// outcome. Individual dropped or malformed packets are logged at Debug
// level only.
type Context struct {
	Config Config
	Logger zerolog.Logger
}

// NewContext returns a Context with DefaultConfig and a no-op logger.
func NewContext() *Context {
	return &Context{
		Config: DefaultConfig(),
		Logger: zerolog.Nop(),
	}
}

// Configure sets a numeric-valued flag on the Context's Config.
func (c *Context) Configure(flag Flag, value int) error {
	return c.Config.Configure(flag, value)
}

// ConfigureFraction sets FlagRTCPBandwidthFraction.
func (c *Context) ConfigureFraction(flag Flag, value float64) error {
	return c.Config.ConfigureFraction(flag, value)
}

// ConfigureFlag sets a boolean flag on the Context's Config.
func (c *Context) ConfigureFlag(flag Flag) error {
	return c.Config.ConfigureFlag(flag)
}

// CreateSession allocates a Session bound to no address in particular;
// its MediaStreams each bind their own local port.
func (c *Context) CreateSession() (*Session, error) {
	ssrc, err := randomSSRC()
	if err != nil {
		return nil, err
	}

	seq, err := randomSequenceNumber()
	if err != nil {
		return nil, err
	}

	return &Session{
		ssrc:     ssrc,
		sequence: seq,
		config:   c.Config,
		logger:   c.Logger,
		streams:  make(map[string]*MediaStream),
	}, nil
}
