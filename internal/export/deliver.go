package export

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"uttervault/internal/fileutil"
	"uttervault/internal/textutil"
)

// Deliverer hands a finished archive to its destination and returns a
// description of where it went.
type Deliverer interface {
	Deliver(ctx context.Context, name string, data []byte) (string, error)
}

// DeliverFunc adapts a function to Deliverer.
type DeliverFunc func(ctx context.Context, name string, data []byte) (string, error)

// Deliver calls f.
func (f DeliverFunc) Deliver(ctx context.Context, name string, data []byte) (string, error) {
	return f(ctx, name, data)
}

// DirDeliverer writes archives into a directory.
type DirDeliverer struct {
	Dir string
}

// Deliver writes data atomically to Dir/name and returns the file path.
func (d DirDeliverer) Deliver(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	safe := textutil.SanitizeFileName(name)
	if safe == "" {
		return "", fmt.Errorf("invalid archive name %q", name)
	}
	target := filepath.Join(d.Dir, safe)
	if err := fileutil.WriteFileAtomic(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}
	return target, nil
}

// ArchiveName returns the download filename for an archive created at t,
// e.g. utterances-2026-10-18T09-30-00-123Z.zip.
func ArchiveName(t time.Time) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return "utterances-" + stamp + ".zip"
}
