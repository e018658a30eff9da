package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"

	"uttervault/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string
	Output      io.Writer
	FilePath    string
	Development bool
	// Color enables ANSI level colors in console output.
	Color bool
}

// OptionsFromConfig returns the logging options the configuration asks for.
// Callers override Level, Output or Development for their process.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{Level: "info", Format: "console"}
	}
	return Options{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.LogFilePath(),
	}
}

// New builds a logger writing console or JSON records to Output (stdout by
// default). A non-empty FilePath adds a JSON copy of every record appended to
// that file; the returned closer releases it.
func New(opts Options) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(opts.Level))
	addSource := opts.Development || level.Level() <= slog.LevelDebug

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}

	var primary slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		primary = newConsoleHandler(output, level, addSource, opts.Color)
	case "json":
		primary = newJSONHandler(output, level, addSource)
	default:
		return nil, nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	path := strings.TrimSpace(opts.FilePath)
	if path == "" {
		return slog.New(primary), func() error { return nil }, nil
	}
	file, err := openLogFile(path)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slogmulti.Fanout(primary, newJSONHandler(file, level, addSource))), file.Close, nil
}

// ParseLevel maps a configured level name to a slog level. Unknown names
// fall back to info.
func ParseLevel(name string) slog.Level {
	name = strings.TrimSpace(name)
	if name == "" {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir %s: %w", dir, err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

func newJSONHandler(w io.Writer, level slog.Leveler, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		AddSource:   addSource,
		ReplaceAttr: replaceJSONAttr,
	})
}

// replaceJSONAttr renames time to ts in UTC millisecond precision, lowercases
// the level and trims the source to file:line.
func replaceJSONAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		if attr.Value.Kind() == slog.KindTime {
			return slog.String("ts", attr.Value.Time().UTC().Format(logTimeFormat))
		}
	case slog.LevelKey:
		return slog.String(slog.LevelKey, strings.ToLower(attr.Value.String()))
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			return slog.String(slog.SourceKey, shortSource(src))
		}
	}
	return attr
}

const logTimeFormat = "2006-01-02T15:04:05.000Z07:00"

func shortSource(src *slog.Source) string {
	return fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(logTimeFormat)
}
