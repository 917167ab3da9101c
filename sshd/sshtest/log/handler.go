package log

import (
	"context"
	"log/slog"
)

// Handler is a slog.Handler feeding a Capture.
type Handler struct {
	capture *Capture
	attrs   map[string]any
	prefix  string
}

// NewHandler creates a new capture handler.
func NewHandler(capture *Capture) *Handler {
	return &Handler{capture: capture, attrs: map[string]any{}}
}

// Enabled returns true for all levels.
func (h *Handler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	entry := Entry{
		Timestamp: r.Time,
		Level:     r.Level,
		Message:   r.Message,
		Attrs:     make(map[string]any, len(h.attrs)+r.NumAttrs()),
	}
	for k, v := range h.attrs {
		entry.Attrs[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		add(entry.Attrs, h.prefix, a)
		return true
	})
	h.capture.Add(entry)
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	for _, a := range attrs {
		add(next.attrs, h.prefix, a)
	}
	return next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.prefix = h.prefix + name + "."
	return next
}

func (h *Handler) clone() *Handler {
	attrs := make(map[string]any, len(h.attrs))
	for k, v := range h.attrs {
		attrs[k] = v
	}
	return &Handler{capture: h.capture, attrs: attrs, prefix: h.prefix}
}

// add flattens a into m, qualifying group members with their group name.
func add(m map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range v.Group() {
			add(m, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	m[prefix+a.Key] = v.Any()
}

var _ slog.Handler = (*Handler)(nil)
