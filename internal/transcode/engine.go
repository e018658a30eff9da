package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"uttervault/internal/logging"
	"uttervault/internal/services"
)

// FFmpegCommand is the default ffmpeg executable name.
const FFmpegCommand = "ffmpeg"

// OutputExt is the extension of converted audio.
const OutputExt = "wav"

// ErrTranscode marks a conversion that failed for one recording.
var ErrTranscode = errors.New("transcode failed")

// convertible lists the extensions of the compressed mobile container.
var convertible = map[string]bool{
	"m4a": true,
	"mp4": true,
	"aac": true,
}

// NeedsTranscode reports whether audio with ext is converted to WAV.
func NeedsTranscode(ext string) bool {
	return convertible[normalizeExt(ext)]
}

// CommandRunner executes an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Options configures an Engine.
type Options struct {
	FFmpegBinary string
	WorkspaceDir string
	Logger       *slog.Logger
	Runner       CommandRunner
	LookPath     func(file string) (string, error)
}

// Result is the outcome of one Transcode call.
type Result struct {
	Data      []byte
	Ext       string
	Converted bool
}

// Engine converts audio on demand. It is safe for concurrent use.
type Engine struct {
	opts   Options
	logger *slog.Logger

	once      sync.Once
	binary    string
	workspace string
	initErr   error
}

// NewEngine returns an engine that initializes itself on first use.
func NewEngine(opts Options) *Engine {
	if strings.TrimSpace(opts.FFmpegBinary) == "" {
		opts.FFmpegBinary = FFmpegCommand
	}
	if opts.Runner == nil {
		opts.Runner = runCommand
	}
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	return &Engine{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "transcode"),
	}
}

// Ready performs initialization if it has not run yet and reports its
// outcome. A failed initialization is not retried.
func (e *Engine) Ready() error {
	e.once.Do(e.init)
	return e.initErr
}

// Binary returns the resolved ffmpeg path once the engine is ready.
func (e *Engine) Binary() string {
	if e.Ready() != nil {
		return ""
	}
	return e.binary
}

func (e *Engine) init() {
	binary, err := e.opts.LookPath(e.opts.FFmpegBinary)
	if err != nil {
		e.initErr = services.Wrap(services.ErrConfiguration, "transcode", "init", fmt.Sprintf("ffmpeg binary %q not found", e.opts.FFmpegBinary), err)
		e.logger.Error("transcoding engine unavailable",
			logging.String(logging.FieldEventType, "transcode_init_failed"),
			logging.String(logging.FieldErrorHint, "install ffmpeg or set transcode.ffmpeg_binary"),
			logging.Error(e.initErr),
		)
		return
	}

	workspace := strings.TrimSpace(e.opts.WorkspaceDir)
	if workspace == "" {
		workspace, err = os.MkdirTemp("", "uttervault-transcode-")
	} else if err = os.MkdirAll(workspace, 0o700); err == nil {
		swept := SweepWorkspace(workspace, StaleScratchAge, time.Now(), e.logger)
		if len(swept.Removed) > 0 {
			e.logger.Info("removed stale transcoding scratch files",
				logging.Int("count", len(swept.Removed)),
				logging.String("workspace", workspace),
			)
		}
	}
	if err != nil {
		e.initErr = services.Wrap(services.ErrConfiguration, "transcode", "init", "create workspace", err)
		e.logger.Error("transcoding workspace unavailable",
			logging.String(logging.FieldEventType, "transcode_init_failed"),
			logging.Error(e.initErr),
		)
		return
	}

	e.binary = binary
	e.workspace = workspace
	e.logger.Debug("transcoding engine ready",
		logging.String("ffmpeg", binary),
		logging.String("workspace", workspace),
	)
}

// Transcode converts data to WAV when ext names a compressed mobile
// container; any other audio is returned unchanged.
func (e *Engine) Transcode(ctx context.Context, data []byte, ext string) (Result, error) {
	ext = normalizeExt(ext)
	if !convertible[ext] {
		return Result{Data: data, Ext: ext}, nil
	}
	if err := e.Ready(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrTranscode, err)
	}

	id := uuid.NewString()
	input := filepath.Join(e.workspace, id+"."+ext)
	output := filepath.Join(e.workspace, id+"."+OutputExt)
	defer e.cleanup(input, output)

	if err := os.WriteFile(input, data, 0o600); err != nil {
		return Result{}, fmt.Errorf("%w: write input: %w", ErrTranscode, err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", input,
		"-vn",
		"-acodec", "pcm_s16le",
		"-f", "wav",
		output,
	}
	if out, err := e.opts.Runner(ctx, e.binary, args...); err != nil {
		detail := strings.TrimSpace(string(out))
		return Result{}, fmt.Errorf("%w: %w", ErrTranscode,
			services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg", detail, err))
	}

	converted, err := os.ReadFile(output)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read output: %w", ErrTranscode, err)
	}
	if !IsWAV(converted) {
		return Result{}, fmt.Errorf("%w: ffmpeg produced %d bytes without a WAV header", ErrTranscode, len(converted))
	}
	return Result{Data: converted, Ext: OutputExt, Converted: true}, nil
}

func (e *Engine) cleanup(paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(e.logger, "failed to remove transcoding scratch file", "transcode_cleanup_failed",
				logging.String("path", path),
				logging.String(logging.FieldErrorHint, "remove stale files from transcode.workspace_dir"),
				logging.String(logging.FieldImpact, "scratch file left on disk"),
				logging.Error(err),
			)
		}
	}
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}
