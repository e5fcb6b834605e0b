package uvgrtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigureRejectsNonPowerOfTwoQueueSize(t *testing.T) {
	c := DefaultConfig()
	require.Error(t, c.Configure(FlagMaxQueuedFrames, 100))
	require.NoError(t, c.Configure(FlagMaxQueuedFrames, 128))
	require.Equal(t, 128, c.MaxQueuedFrames)
}

func TestConfigureFractionRejectsOutOfRange(t *testing.T) {
	c := DefaultConfig()
	require.Error(t, c.ConfigureFraction(FlagRTCPBandwidthFraction, 0))
	require.Error(t, c.ConfigureFraction(FlagRTCPBandwidthFraction, 1.5))
	require.NoError(t, c.ConfigureFraction(FlagRTCPBandwidthFraction, 0.1))
	require.InDelta(t, 0.1, c.RTCPBandwidthFraction, 1e-9)
}

func TestConfigureFractionRejectsNonFractionalFlag(t *testing.T) {
	c := DefaultConfig()
	require.Error(t, c.ConfigureFraction(FlagMaxQueuedFrames, 0.5))
}

func TestConfigureFlagReuseAddrDefaultsOff(t *testing.T) {
	c := DefaultConfig()
	require.False(t, c.ReuseAddr)
	require.NoError(t, c.ConfigureFlag(FlagReuseAddr))
	require.True(t, c.ReuseAddr)
}
