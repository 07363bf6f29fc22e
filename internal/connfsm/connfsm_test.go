package connfsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectingToSubscribedOnFirstMessage(t *testing.T) {
	m := New(DefaultConfig(), nil)
	require.Equal(t, Connecting, m.State().Kind)
	m.Connected()
	require.Equal(t, Subscribed, m.State().Kind)
}

func TestTransportErrorResetsStoreAndEntersDisconnected(t *testing.T) {
	resetCalled := false
	m := New(DefaultConfig(), func() { resetCalled = true })
	m.Connected()

	state := m.TransportError("stream closed")
	require.Equal(t, Disconnected, state.Kind)
	require.Greater(t, state.RetryAfter.Nanoseconds(), int64(0))
	require.True(t, resetCalled)
}

func TestReconnectCycleBackToSubscribed(t *testing.T) {
	m := New(DefaultConfig(), func() {})
	m.Connected()
	m.TransportError("timeout")
	require.Equal(t, Disconnected, m.State().Kind)

	m.BeginReconnect()
	require.Equal(t, Reconnecting, m.State().Kind)

	m.Connected()
	require.Equal(t, Subscribed, m.State().Kind)
}

func TestFailedAfterMaxConsecutiveFailures(t *testing.T) {
	m := New(DefaultConfig(), func() {})
	for i := 0; i < DefaultMaxFailures-1; i++ {
		state := m.TransportError("retry")
		require.Equal(t, Disconnected, state.Kind)
	}
	state := m.TransportError("final failure")
	require.Equal(t, Failed, state.Kind)
	require.Equal(t, "final failure", state.Reason)
}

func TestPauseResendFlaggedAfterReconnectWhilePaused(t *testing.T) {
	m := New(DefaultConfig(), func() {})
	m.Connected()
	m.SetPaused(true)
	m.TransportError("blip")
	m.BeginReconnect()
	m.Connected()

	require.True(t, m.TakePendingResend())
	require.False(t, m.TakePendingResend(), "flag clears after being taken once")
}

func TestNoResendWhenNeverPaused(t *testing.T) {
	m := New(DefaultConfig(), func() {})
	m.Connected()
	m.TransportError("blip")
	m.BeginReconnect()
	m.Connected()

	require.False(t, m.TakePendingResend())
}

// A configured MaxFailures below DefaultMaxFailures is honored rather than
// the package default, confirming Config actually drives give-up behavior.
func TestConfiguredMaxFailuresOverridesDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFailures = 2
	m := New(cfg, func() {})

	state := m.TransportError("first")
	require.Equal(t, Disconnected, state.Kind)

	state = m.TransportError("second")
	require.Equal(t, Failed, state.Kind)
}
