package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"uttervault/internal/config"
	"uttervault/internal/services"
)

// ErrNotFound reports that the requested object does not exist.
var ErrNotFound = errors.New("blob not found")

// Downloader fetches the full contents of one stored object.
type Downloader interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// New builds the downloader selected by cfg.Storage.Backend.
func New(ctx context.Context, cfg *config.Config) (Downloader, error) {
	if cfg == nil {
		return nil, errors.New("blobstore: config is required")
	}
	switch cfg.Storage.Backend {
	case "http":
		return NewHTTPDownloader(cfg.Storage.BaseURL, cfg.Storage.Bucket, cfg.Storage.APIKey, newHTTPClient(cfg.StorageTimeout())), nil
	case "s3":
		return NewS3Downloader(ctx, cfg.Storage)
	case "fs":
		return NewFSDownloader(cfg.Storage.Dir), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "blobstore", "new", fmt.Sprintf("unsupported backend %q", cfg.Storage.Backend), nil)
	}
}

func notFound(key string) error {
	return services.Wrap(services.ErrNotFound, "blobstore", "download", key, ErrNotFound)
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", services.Wrap(services.ErrValidation, "blobstore", "download", "empty storage key", nil)
	}
	return key, nil
}
