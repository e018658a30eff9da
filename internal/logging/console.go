package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/text"
)

// consoleHandler renders one line per record:
//
//	2026-10-18T09:30:00.000Z INFO archive: wrote folder key=value
//
// The component attribute becomes the line prefix instead of a key=value pair.
// Attributes bound through WithAttrs are formatted once and reused.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     slog.Leveler
	addSource bool
	color     bool

	component string
	bound     string
	prefix    string
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource, color bool) *consoleHandler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level, addSource: addSource, color: color}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString(formatTime(record.Time))
	b.WriteByte(' ')
	b.WriteString(h.levelLabel(record.Level))
	b.WriteByte(' ')

	component := h.component
	var attrs strings.Builder
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == FieldComponent && h.prefix == "" {
			if component == "" {
				component = attr.Value.Resolve().String()
			}
			return true
		}
		writeAttr(&attrs, h.prefix, attr)
		return true
	})

	if component != "" {
		b.WriteString(component)
		b.WriteString(": ")
	}
	if msg := strings.TrimSpace(record.Message); msg != "" {
		b.WriteString(msg)
	} else {
		b.WriteString("(no message)")
	}
	if h.addSource {
		if src := record.Source(); src != nil {
			b.WriteString(" [")
			b.WriteString(shortSource(src))
			b.WriteByte(']')
		}
	}
	b.WriteString(h.bound)
	b.WriteString(attrs.String())
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	var b strings.Builder
	b.WriteString(h.bound)
	for _, attr := range attrs {
		if attr.Key == FieldComponent && h.prefix == "" {
			clone.component = attr.Value.Resolve().String()
			continue
		}
		writeAttr(&b, h.prefix, attr)
	}
	clone.bound = b.String()
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func (h *consoleHandler) levelLabel(level slog.Level) string {
	var label string
	var colors text.Colors
	switch {
	case level >= slog.LevelError:
		label, colors = "ERROR", text.Colors{text.FgRed, text.Bold}
	case level >= slog.LevelWarn:
		label, colors = "WARN", text.Colors{text.FgYellow}
	case level >= slog.LevelInfo:
		label, colors = "INFO", text.Colors{text.FgGreen}
	default:
		label, colors = "DEBUG", text.Colors{text.FgHiBlack}
	}
	if h.color {
		return colors.Sprint(label)
	}
	return label
}

// writeAttr appends " key=value" for attr, flattening groups into dotted keys.
func writeAttr(b *strings.Builder, prefix string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			prefix += attr.Key + "."
		}
		for _, member := range value.Group() {
			writeAttr(b, prefix, member)
		}
		return
	}
	if attr.Key == "" {
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(attr.Key)
	b.WriteByte('=')
	b.WriteString(consoleValue(value))
}

func consoleValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindString:
		s = v.String()
	case slog.KindTime:
		return formatTime(v.Time())
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		return v.String()
	}
	if s == "" || strings.ContainsAny(s, " \t\n\r=\"") {
		return strconv.Quote(s)
	}
	return s
}
