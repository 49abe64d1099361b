package persistence

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/wemix/nhm/internal/types"
)

// byteOrder is the on-disk integer encoding for the LC-history file.
// leaves this as an implementation choice; little-endian is
// picked here and must not change without a format version bump.
var byteOrder = binary.LittleEndian

// PackVersion packs a (major, minor, micro, nano) tuple into the u32
// version field written at the head of the history file.
func PackVersion(major, minor, micro, nano uint8) uint32 {
	return uint32(major)<<24 | uint32(minor)<<16 | uint32(micro)<<8 | uint32(nano)
}

// WriteHistory serialises at most min(len(info), maxLCCount) life cycles,
// most-recent first, to the gateway's history file. The write is atomic:
// the file is built in a temporary path and renamed into place so a reader
// never observes a partial file.
func (g *Gateway) WriteHistory(version uint32, info types.NodeInfo, maxLCCount uint32) error {
	n := uint32(len(info))
	if maxLCCount < n {
		n = maxLCCount
	}

	tmp := g.historyPath + ".tmp"
	if err := os.MkdirAll(filepath.Dir(g.historyPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	writeErr := writeHistoryBody(w, version, info[:n])
	if writeErr == nil {
		writeErr = w.Flush()
	}
	if writeErr == nil {
		writeErr = f.Sync()
	}
	closeErr := f.Close()
	if writeErr != nil {
		os.Remove(tmp)
		return writeErr
	}
	if closeErr != nil {
		os.Remove(tmp)
		return closeErr
	}
	return os.Rename(tmp, g.historyPath)
}

func writeHistoryBody(w io.Writer, version uint32, lcs []types.LcInfo) error {
	if err := writeU32(w, version); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(lcs))); err != nil {
		return err
	}
	for _, lc := range lcs {
		if err := writeU32(w, uint32(lc.StartState)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(len(lc.FailedApps))); err != nil {
			return err
		}
		for _, app := range lc.FailedApps {
			nameBytes := append([]byte(app.Name), 0)
			if err := writeU32(w, uint32(len(nameBytes))); err != nil {
				return err
			}
			if _, err := w.Write(nameBytes); err != nil {
				return err
			}
			if err := writeU32(w, app.FailCount); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	byteOrder.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadHistory reads the gateway's history file. A missing file yields a
// zero version and an empty sequence, not an error. A short or malformed
// record truncates the sequence at the last successfully parsed LC
// (best-effort partial load) rather than failing the
// whole read.
func (g *Gateway) ReadHistory() (uint32, types.NodeInfo) {
	f, err := os.Open(g.historyPath)
	if err != nil {
		return 0, types.NodeInfo{}
	}
	defer f.Close()

	r := bufio.NewReader(f)
	version, err := readU32(r)
	if err != nil {
		return 0, types.NodeInfo{}
	}
	lcCount, err := readU32(r)
	if err != nil {
		return version, types.NodeInfo{}
	}

	info := make(types.NodeInfo, 0, lcCount)
	for i := uint32(0); i < lcCount; i++ {
		lc, err := readLC(r)
		if err != nil {
			break
		}
		info = append(info, lc)
	}
	return version, info
}

func readLC(r io.Reader) (types.LcInfo, error) {
	startState, err := readU32(r)
	if err != nil {
		return types.LcInfo{}, err
	}
	appCount, err := readU32(r)
	if err != nil {
		return types.LcInfo{}, err
	}
	lc := types.LcInfo{StartState: types.NodeShutdownState(startState)}
	if appCount > 0 {
		lc.FailedApps = make([]types.FailedApp, 0, appCount)
	}
	for i := uint32(0); i < appCount; i++ {
		app, err := readFailedApp(r)
		if err != nil {
			return lc, err
		}
		lc.FailedApps = append(lc.FailedApps, app)
	}
	return lc, nil
}

func readFailedApp(r io.Reader) (types.FailedApp, error) {
	nameLen, err := readU32(r)
	if err != nil {
		return types.FailedApp{}, err
	}
	if nameLen == 0 {
		return types.FailedApp{}, errors.New("persistence: zero-length name field")
	}
	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return types.FailedApp{}, err
	}
	// Trailing NUL included in nameLen per the wire format; drop it.
	name := string(nameBytes[:len(nameBytes)-1])
	failCount, err := readU32(r)
	if err != nil {
		return types.FailedApp{}, err
	}
	return types.FailedApp{Name: name, FailCount: failCount}, nil
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return byteOrder.Uint32(buf[:]), nil
}
