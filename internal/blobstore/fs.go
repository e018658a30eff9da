package blobstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"uttervault/internal/services"
)

// FSDownloader reads objects from a local directory tree.
type FSDownloader struct {
	root string
}

// NewFSDownloader serves keys relative to root.
func NewFSDownloader(root string) *FSDownloader {
	return &FSDownloader{root: root}
}

// Download reads root/key. Keys that escape root are rejected.
func (d *FSDownloader) Download(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return nil, services.Wrap(services.ErrValidation, "blobstore", "download", "key escapes storage root: "+key, nil)
	}
	data, err := os.ReadFile(filepath.Join(d.root, cleaned))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(key)
		}
		return nil, services.Wrap(services.ErrExternalTool, "blobstore", "download", key, err)
	}
	return data, nil
}
