package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to a temporary file next to path, syncs it,
// verifies its size, and renames it into place. Readers never observe a
// partially written file. The temporary file is removed on failure.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	written, err := tmp.Write(data)
	if err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if written != len(data) {
		return fmt.Errorf("write size mismatch: expected %d bytes, wrote %d bytes", len(data), written)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	info, err := os.Stat(tmpName)
	if err != nil {
		return fmt.Errorf("stat temp file: %w", err)
	}
	if info.Size() != int64(len(data)) {
		return fmt.Errorf("size mismatch: expected %d bytes, found %d bytes", len(data), info.Size())
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
