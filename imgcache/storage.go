package imgcache

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// LastUpdateFile holds the big-endian UNIX time of the last successful append.
	LastUpdateFile = "last_update"

	tmpSuffix = ".tmp"
	dirPerm   = 0o755
	filePerm  = 0o644
)

func readTimestamp(path string) (uint64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	if len(raw) != 8 {
		return 0, fmt.Errorf("timestamp file %s has %d bytes, want 8", path, len(raw))
	}

	return binary.BigEndian.Uint64(raw), nil
}

func writeTimestamp(path string, seconds uint64) error {
	raw := binary.BigEndian.AppendUint64(make([]byte, 0, 8), seconds)

	return writeFileAtomic(path, raw)
}

// writeFileAtomic writes data next to path and renames it into place, so a
// crash never leaves a truncated image under a valid index.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+"-*"+tmpSuffix)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	return nil
}
