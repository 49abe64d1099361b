package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wemix/nhm/internal/types"
)

func TestShutdownFlagRoundTrip(t *testing.T) {
	cases := []types.NodeShutdownState{
		types.NodeShutdownNotSet,
		types.NodeShutdownStarted,
		types.NodeShutdownShutdown,
	}
	for _, state := range cases {
		t.Run(state.String(), func(t *testing.T) {
			g := NewGateway(t.TempDir(), "")
			require.True(t, g.WriteShutdownFlag(state))
			assert.Equal(t, state, g.ReadShutdownFlag())
		})
	}
}

func TestShutdownFlagMissingYieldsNotSet(t *testing.T) {
	g := NewGateway(t.TempDir(), "")
	assert.Equal(t, types.NodeShutdownNotSet, g.ReadShutdownFlag())
}

func TestShutdownFlagUnrecognizedByteYieldsNotSet(t *testing.T) {
	g := NewGateway(t.TempDir(), "")
	require.True(t, g.kv.writeByte(shutdownFlagDBID, shutdownFlagKey, 0x7f))
	assert.Equal(t, types.NodeShutdownNotSet, g.ReadShutdownFlag())
}
