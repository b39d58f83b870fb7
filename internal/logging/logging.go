// Package logging provides the slog handler used by gpiodbusd.
// Records are written to a single stream as one physical line each,
// prefixed with a syslog-style numeric priority so a supervisor
// (e.g. systemd) can map them to journal priorities.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// LevelCritical is used for fatal conditions just before the process
// terminates. It sorts above slog.LevelError.
const LevelCritical slog.Level = slog.LevelError + 4

// Priority returns the numeric syslog priority for a level.
// Critical maps to 0 (the most severe), unknown levels default to 5.
func Priority(level slog.Level) string {
	switch {
	case level >= LevelCritical:
		return "0"
	case level >= slog.LevelError:
		return "3"
	case level >= slog.LevelWarn:
		return "4"
	case level >= slog.LevelInfo:
		return "6"
	case level >= slog.LevelDebug:
		return "7"
	default:
		return "7"
	}
}

// Handler is a slog.Handler emitting "<prio>message key=value ..." lines.
type Handler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
	group string
}

// NewHandler creates a Handler writing to w. Records below level are
// discarded.
func NewHandler(w io.Writer, level slog.Level) *Handler {
	return &Handler{
		mu:    &sync.Mutex{},
		w:     w,
		level: level,
	}
}

// New returns a logger for the daemon. With debug enabled the threshold
// drops from info to debug.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(NewHandler(w, level))
}

// Enabled reports whether records at the given level are emitted.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle formats the record as a single line and writes it.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(Priority(r.Level))
	b.WriteByte('>')
	b.WriteString(sanitize(r.Message))

	for _, a := range h.attrs {
		writeAttr(&b, h.group, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs returns a handler that includes attrs in every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	nh := *h
	nh.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	nh.attrs = append(nh.attrs, attrs...)
	return &nh
}

// WithGroup returns a handler that prefixes attribute keys with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	if h.group != "" {
		nh.group = h.group + "." + name
	} else {
		nh.group = name
	}
	return &nh
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	v = v.Resolve()
	s := fmt.Sprintf("%v", v.Any())
	s = sanitize(s)
	if strings.ContainsAny(s, " \t\"") {
		return strconv.Quote(s)
	}
	return s
}

// sanitize keeps one physical line per record.
func sanitize(s string) string {
	if !strings.ContainsAny(s, "\n\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", " ")
}
