package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// ConsoleOptions configures ConsoleHandler.
type ConsoleOptions struct {
	// Level is the minimum level to log. Nil means slog.LevelInfo.
	Level slog.Leveler

	// TimeFormat defaults to time.TimeOnly.
	TimeFormat string

	// NoColor writes plain text.
	NoColor bool
}

// ConsoleHandler is a human-oriented slog.Handler with colored level
// badges, faint timestamps and highlighted attribute keys.
type ConsoleHandler struct {
	groups []string
	attrs  []slog.Attr
	opts   ConsoleOptions

	mu  *sync.Mutex
	out io.Writer
}

var _ slog.Handler = (*ConsoleHandler)(nil)

// NewConsoleHandler creates a ConsoleHandler. opts may be nil.
func NewConsoleHandler(out io.Writer, opts *ConsoleOptions) *ConsoleHandler {
	h := &ConsoleHandler{out: out, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelInfo
	}
	if h.opts.TimeFormat == "" {
		h.opts.TimeFormat = time.TimeOnly
	}
	return h
}

func (h *ConsoleHandler) clone() *ConsoleHandler {
	return &ConsoleHandler{
		groups: append([]string(nil), h.groups...),
		attrs:  append([]slog.Attr(nil), h.attrs...),
		opts:   h.opts,
		mu:     h.mu,
		out:    h.out,
	}
}

// Enabled implements slog.Handler.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

// Handle implements slog.Handler.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var bf bytes.Buffer

	if !r.Time.IsZero() {
		bf.WriteString(h.paint(r.Time.Format(h.opts.TimeFormat), color.Faint))
		bf.WriteByte(' ')
	}

	bf.WriteString(h.badge(r.Level))
	bf.WriteByte(' ')
	bf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	write := func(a slog.Attr) {
		if a.Equal(slog.Attr{}) {
			return
		}
		key := prefix + a.Key
		attr := color.FgCyan
		if strings.Contains(a.Key, "err") {
			attr = color.FgRed
		}
		bf.WriteByte(' ')
		bf.WriteString(h.paint(key+"=", attr))
		bf.WriteString(a.Value.Resolve().String())
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})
	bf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(bf.Bytes())
	return err
}

// WithAttrs implements slog.Handler.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := h.clone()
	h2.attrs = append(h2.attrs, attrs...)
	return h2
}

// WithGroup implements slog.Handler.
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(h2.groups, name)
	return h2
}

func (h *ConsoleHandler) badge(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return h.paint("ERROR", color.BgRed, color.FgHiWhite)
	case level >= slog.LevelWarn:
		return h.paint("WARN ", color.BgYellow, color.FgHiWhite)
	case level >= slog.LevelInfo:
		return h.paint("INFO ", color.BgGreen, color.FgHiWhite)
	default:
		return h.paint("DEBUG", color.BgCyan, color.FgHiWhite)
	}
}

func (h *ConsoleHandler) paint(s string, attrs ...color.Attribute) string {
	c := color.New(attrs...)
	if h.opts.NoColor {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
	return c.Sprint(s)
}
