package fifoq

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
)

// The head file persists the dequeue position. It is rewritten via a temp
// file plus rename, so readers never observe a torn update.
//
// Layout: [headOffset:8][xxhash of previous 8 bytes:8], little-endian.
const headFileLen = 16

func writeHeadFile(path string, headOffset int64, sync bool) error {
	var buf [headFileLen]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(headOffset))
	binary.LittleEndian.PutUint64(buf[8:16], xxhash.Sum64(buf[0:8]))

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // G304: path is derived from configuration
	if err != nil {
		return fmt.Errorf("failed to create head file: %w", err)
	}
	if _, err := f.Write(buf[:]); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write head file: %w", err)
	}
	if sync {
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to sync head file: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close head file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace head file: %w", err)
	}
	return nil
}

// readHeadFile returns the persisted head offset. A missing or invalid head
// file yields ok=false; the caller falls back to the start of the entry
// stream, which at worst redelivers already-consumed entries.
func readHeadFile(path string) (int64, bool, error) {
	buf, err := os.ReadFile(path) //nolint:gosec // G304: path is derived from configuration
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read head file: %w", err)
	}
	if len(buf) != headFileLen {
		return 0, false, nil
	}
	if xxhash.Sum64(buf[0:8]) != binary.LittleEndian.Uint64(buf[8:16]) {
		return 0, false, nil
	}
	return int64(binary.LittleEndian.Uint64(buf[0:8])), true, nil
}
