package taskscopeerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapPreservesSentinelForErrorsIs(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(ErrTransport, cause)
	require.ErrorIs(t, err, ErrTransport)
	require.NotErrorIs(t, err, ErrProtocol)
}

func TestConfigWrapsConfigurationSentinel(t *testing.T) {
	err := Config("target", errors.New("missing scheme"))
	require.ErrorIs(t, err, ErrConfiguration)
	require.Contains(t, err.Error(), "target")
}

func TestWrapNilCauseReturnsNil(t *testing.T) {
	require.NoError(t, Wrap(ErrCapacity, nil))
}
