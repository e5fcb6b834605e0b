package uvgrtp

import "github.com/stm-space/uvgrtp-go/pkg/liberrors"

// Flag names a configure_ctx parameter. Boolean flags are set with
// Context.ConfigureFlag; numeric flags take a value via Context.Configure.
type Flag int

const (
	// FlagReorderWindowSize sets the fragment reassembly reorder window
	// (pkg/rtpformat.FragmentingDepacketizer.ReorderWindow). Default 128.
	FlagReorderWindowSize Flag = iota
	// FlagReassemblyTimeoutMS bounds how long an incomplete reassembly
	// slot is retained before being discarded as an orphan.
	FlagReassemblyTimeoutMS
	// FlagMaxQueuedFrames sizes the sender's frame queue and the
	// receiver's pull-delivery ring. Must be a power of two.
	FlagMaxQueuedFrames
	// FlagRTCPBandwidthFraction sets rtcp_bw as a fraction, in (0, 1], of
	// the nominal media bandwidth (nominalMediaBandwidthBPS).
	FlagRTCPBandwidthFraction

	// FlagEnableRTCP turns on the RTCP runner for new MediaStreams.
	FlagEnableRTCP
	// FlagEnableSRTP turns on SRTP wrapping, keyed from a completed ZRTP
	// handshake.
	FlagEnableSRTP
	// FlagUseFragmentingFormatter selects the Fragmenting payload
	// discipline instead of Opaque for new MediaStreams.
	FlagUseFragmentingFormatter
	// FlagStrictSequenceCheck rejects received packets whose sequence
	// number indicates a discontinuity the depacketizer can't explain,
	// instead of best-effort reassembling around the gap.
	FlagStrictSequenceCheck
	// FlagReuseAddr sets SO_REUSEADDR on new sockets. Off by default: a
	// single binding per port is the safer default for a point-to-point
	// media transport.
	FlagReuseAddr
)

// Config holds the live, synchronously-validated settings a Context
// applies to every Session/MediaStream it subsequently creates. There is
// no file-format config layer: configure_ctx is a runtime call, not a
// config load, so plain validated struct fields are the right shape here.
type Config struct {
	ReorderWindowSize      int
	ReassemblyTimeoutMS    int
	MaxQueuedFrames        int
	RTCPBandwidthFraction  float64

	EnableRTCP              bool
	EnableSRTP              bool
	UseFragmentingFormatter bool
	StrictSequenceCheck     bool
	ReuseAddr               bool
}

// DefaultConfig returns the configuration a new Context starts with.
func DefaultConfig() Config {
	return Config{
		ReorderWindowSize:     128,
		ReassemblyTimeoutMS:   2000,
		MaxQueuedFrames:       256,
		RTCPBandwidthFraction: 0.05,
		EnableRTCP:            true,
	}
}

// Configure sets a numeric-valued flag, validating its range.
func (c *Config) Configure(flag Flag, value int) error {
	switch flag {
	case FlagReorderWindowSize:
		if value <= 0 {
			return &liberrors.InvalidValue{Field: "ReorderWindowSize", Reason: "must be positive"}
		}
		c.ReorderWindowSize = value

	case FlagReassemblyTimeoutMS:
		if value <= 0 {
			return &liberrors.InvalidValue{Field: "ReassemblyTimeoutMS", Reason: "must be positive"}
		}
		c.ReassemblyTimeoutMS = value

	case FlagMaxQueuedFrames:
		if value <= 0 || value&(value-1) != 0 {
			return &liberrors.InvalidValue{Field: "MaxQueuedFrames", Reason: "must be a positive power of two"}
		}
		c.MaxQueuedFrames = value

	case FlagRTCPBandwidthFraction:
		return &liberrors.InvalidValue{Field: "RTCPBandwidthFraction", Reason: "use ConfigureFraction, not Configure"}

	default:
		return &liberrors.InvalidValue{Field: "flag", Reason: "not a numeric flag"}
	}

	return nil
}

// ConfigureFraction sets FlagRTCPBandwidthFraction, the one numeric flag
// whose natural value is a float rather than an int.
func (c *Config) ConfigureFraction(flag Flag, value float64) error {
	if flag != FlagRTCPBandwidthFraction {
		return &liberrors.InvalidValue{Field: "flag", Reason: "not a fractional flag"}
	}
	if value <= 0 || value > 1 {
		return &liberrors.InvalidValue{Field: "RTCPBandwidthFraction", Reason: "must be in (0, 1]"}
	}
	c.RTCPBandwidthFraction = value
	return nil
}

// ConfigureFlag sets a boolean flag.
func (c *Config) ConfigureFlag(flag Flag) error {
	switch flag {
	case FlagEnableRTCP:
		c.EnableRTCP = true
	case FlagEnableSRTP:
		c.EnableSRTP = true
	case FlagUseFragmentingFormatter:
		c.UseFragmentingFormatter = true
	case FlagStrictSequenceCheck:
		c.StrictSequenceCheck = true
	case FlagReuseAddr:
		c.ReuseAddr = true
	default:
		return &liberrors.InvalidValue{Field: "flag", Reason: "not a boolean flag"}
	}
	return nil
}
