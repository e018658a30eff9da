package transcode

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"uttervault/internal/logging"
)

// StaleScratchAge is how old a leftover scratch file must be before the
// engine removes it on startup.
const StaleScratchAge = time.Hour

// SweepResult lists what a workspace sweep removed and what it could not.
type SweepResult struct {
	Removed []string
	Errors  []SweepError
}

// SweepError pairs a scratch path with its removal error.
type SweepError struct {
	Path  string
	Error error
}

// SweepWorkspace removes scratch files in dir last modified before
// now-maxAge. Only files the engine itself writes are touched: a uuid stem
// with a convertible input or output extension. Anything else, including
// subdirectories, is left alone. A missing dir is not an error.
func SweepWorkspace(dir string, maxAge time.Duration, now time.Time, logger *slog.Logger) SweepResult {
	result := SweepResult{}

	dir = strings.TrimSpace(dir)
	if dir == "" {
		return result
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, SweepError{Path: dir, Error: err})
		}
		return result
	}

	cutoff := now.Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || !isScratchName(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, SweepError{Path: path, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, SweepError{Path: path, Error: err})
			if logger != nil {
				logger.Warn("failed to remove stale scratch file",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "transcode_sweep_failed"),
					logging.String(logging.FieldErrorHint, "check transcode.workspace_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, path)
		if logger != nil {
			logger.Debug("removed stale scratch file",
				logging.String("path", path),
				logging.Duration("age", now.Sub(info.ModTime())),
				logging.String(logging.FieldEventType, "transcode_sweep"),
			)
		}
	}
	return result
}

// isScratchName reports whether name has the <uuid>.<ext> shape of an engine
// scratch file.
func isScratchName(name string) bool {
	ext := filepath.Ext(name)
	if ext == "" {
		return false
	}
	stem := strings.TrimSuffix(name, ext)
	ext = strings.TrimPrefix(ext, ".")
	if ext != OutputExt && !convertible[ext] {
		return false
	}
	_, err := uuid.Parse(stem)
	return err == nil
}
