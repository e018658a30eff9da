package logging

import (
	"context"
	"log/slog"
	"time"
)

type Attr = slog.Attr

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

// Error records err under the "error" key.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Args converts attributes to the variadic form slog.Logger methods accept.
func Args(attrs ...Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}

func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewComponentLogger tags logger with a component name. A nil logger
// yields a no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// HasAttrKey reports whether any attribute in attrs has the given key.
func HasAttrKey(attrs []Attr, key string) bool {
	for _, a := range attrs {
		if a.Key == key {
			return true
		}
	}
	return false
}

// WarnWithContext logs a warning carrying event_type, error_hint and impact,
// filling in defaults for whichever of those attrs omits.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	logClassified(logger, slog.LevelWarn, msg, eventType, true, attrs)
}

// ErrorWithContext logs an error carrying event_type and error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	logClassified(logger, slog.LevelError, msg, eventType, false, attrs)
}

func logClassified(logger *slog.Logger, level slog.Level, msg, eventType string, withImpact bool, attrs []Attr) {
	if logger == nil {
		return
	}
	defaults := []Attr{
		String(FieldEventType, eventType),
		String(FieldErrorHint, "check logs for details"),
	}
	if withImpact {
		defaults = append(defaults, String(FieldImpact, "export completed with warnings"))
	}
	for _, def := range defaults {
		if !HasAttrKey(attrs, def.Key) {
			attrs = append(attrs, def)
		}
	}
	logger.LogAttrs(context.Background(), level, msg, attrs...)
}
