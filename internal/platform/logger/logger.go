// Package logger provides structured logging with colored output.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// New creates a structured logger writing to stdout at the given level.
// Uses colored text format by default, JSON if LOG_FORMAT=json env var is set.
// Colors can be disabled by setting NO_COLOR=1 or LOG_COLOR=false.
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is New with an explicit destination. The CLI logs to stderr
// so tables and rendered YAML on stdout stay pipeable.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	l := ParseLevel(level)

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: l}))
	}
	return slog.New(&textHandler{
		out:   &output{w: w},
		level: l,
		pal:   newPalette(shouldUseColor()),
	})
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func shouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	switch strings.ToLower(os.Getenv("LOG_COLOR")) {
	case "false", "0":
		return false
	}
	return true
}

type palette struct {
	time, key   *color.Color
	debug, info *color.Color
	warn, err   *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		time:  color.New(color.FgHiBlack),
		key:   color.New(color.FgHiBlack),
		debug: color.New(color.FgCyan),
		info:  color.New(color.FgBlue),
		warn:  color.New(color.FgYellow),
		err:   color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{p.time, p.key, p.debug, p.info, p.warn, p.err} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) level(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return p.err.Sprint("ERROR")
	case l >= slog.LevelWarn:
		return p.warn.Sprint("WARN ")
	case l >= slog.LevelInfo:
		return p.info.Sprint("INFO ")
	default:
		return p.debug.Sprint("DEBUG")
	}
}

// output serializes writes from every handler derived from one logger.
type output struct {
	mu sync.Mutex
	w  io.Writer
}

// textHandler writes one line per record. Attributes added through
// WithAttrs are formatted once, with the group prefix current at that time.
type textHandler struct {
	out    *output
	level  slog.Level
	pal    palette
	prefix string
	attrs  string
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder
	buf.WriteString(h.pal.time.Sprint(r.Time.Format("2006-01-02 15:04:05")))
	buf.WriteByte(' ')
	buf.WriteString(h.pal.level(r.Level))
	buf.WriteByte(' ')
	buf.WriteString(r.Message)
	buf.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&buf, h.prefix, a)
		return true
	})
	buf.WriteByte('\n')

	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	_, err := io.WriteString(h.out.w, buf.String())
	return err
}

func (h *textHandler) appendAttr(buf *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			h.appendAttr(buf, prefix, ga)
		}
		return
	}
	buf.WriteByte(' ')
	buf.WriteString(h.pal.key.Sprint(prefix + a.Key + "="))
	buf.WriteString(formatValue(a.Value))
}

// formatValue quotes strings that would otherwise break key=value parsing,
// such as helm error output.
func formatValue(v slog.Value) string {
	s := v.String()
	if s == "" || strings.ContainsAny(s, " =\"\n\t") {
		return strconv.Quote(s)
	}
	return s
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var buf strings.Builder
	buf.WriteString(h.attrs)
	for _, a := range attrs {
		h.appendAttr(&buf, h.prefix, a)
	}
	clone := *h
	clone.attrs = buf.String()
	return &clone
}

func (h *textHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}
