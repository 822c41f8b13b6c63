package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var levelColors = map[slog.Level]*color.Color{
	slog.LevelDebug: color.New(color.FgHiBlack),
	slog.LevelInfo:  color.New(color.FgHiCyan),
	slog.LevelWarn:  color.New(color.FgHiYellow),
	slog.LevelError: color.New(color.FgHiRed, color.Bold),
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger builds the process logger. format "json" selects the JSON
// handler; anything else gets text records prefixed by a colored level.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 && a.Key == slog.LevelKey {
			return slog.Attr{}
		}
		return a
	}
	return slog.New(&colorHandler{
		Handler: slog.NewTextHandler(w, opts),
		w:       w,
		mu:      &sync.Mutex{},
	})
}

// colorHandler writes the record level in color and delegates the rest of
// the line to a text handler that omits the level.
type colorHandler struct {
	slog.Handler
	w  io.Writer
	mu *sync.Mutex
}

func (h *colorHandler) Handle(ctx context.Context, r slog.Record) error {
	label := fmt.Sprintf("%-5s", r.Level.String())
	if c, ok := levelColors[r.Level]; ok {
		label = c.Sprint(label)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := io.WriteString(h.w, label+" "); err != nil {
		return err
	}
	return h.Handler.Handle(ctx, r)
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorHandler{Handler: h.Handler.WithAttrs(attrs), w: h.w, mu: h.mu}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	return &colorHandler{Handler: h.Handler.WithGroup(name), w: h.w, mu: h.mu}
}
