package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WAVBytes returns a minimal byte sequence carrying a RIFF/WAVE header.
func WAVBytes() []byte {
	return []byte("RIFF\x24\x00\x00\x00WAVEfmt ")
}
