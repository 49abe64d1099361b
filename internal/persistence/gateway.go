// Package persistence implements NHM's persistence gateway:
// the shutdown-state flag and the cross-reboot LC history file.
package persistence

import (
	"path/filepath"

	"github.com/wemix/nhm/internal/types"
)

const (
	// shutdownFlagKey is the key-value entry holding the single persisted
	// shutdown-state byte, matching the original daemon's PKV key name.
	shutdownFlagKey = "PKV_NHM_SHUTDOWN_FLAG"
	// shutdownFlagDBID is the "database id" the original daemon stored the
	// shutdown flag under.
	shutdownFlagDBID uint8 = 0xFF
)

// Gateway is the persistence gateway: the shutdown-state flag plus the
// LC-history file, both rooted under a single base directory.
type Gateway struct {
	kv          *kvStore
	historyPath string
}

// NewGateway builds a Gateway rooted at baseDir (typically
// "<home>/nhm"). historyFileName defaults to "lc-history.bin" when empty.
func NewGateway(baseDir, historyFileName string) *Gateway {
	if historyFileName == "" {
		historyFileName = "lc-history.bin"
	}
	return &Gateway{
		kv:          newKVStore(baseDir),
		historyPath: filepath.Join(baseDir, historyFileName),
	}
}

// ReadShutdownFlag reads the persisted shutdown state. Any short read,
// missing file, or unrecognized byte yields NodeShutdownNotSet.
func (g *Gateway) ReadShutdownFlag() types.NodeShutdownState {
	b, ok := g.kv.readByte(shutdownFlagDBID, shutdownFlagKey)
	if !ok {
		return types.NodeShutdownNotSet
	}
	return types.NodeShutdownStateFromByte(b)
}

// WriteShutdownFlag persists state as a single byte. Returns true iff the
// full byte was written.
func (g *Gateway) WriteShutdownFlag(state types.NodeShutdownState) bool {
	return g.kv.writeByte(shutdownFlagDBID, shutdownFlagKey, state.Byte())
}
