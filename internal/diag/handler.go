package diag

import (
	"context"
	"log/slog"
	"strings"
)

// RequestIDKey is the attribute key whose value is lifted into Event.RequestID.
const RequestIDKey = "request_id"

// Handler is an slog.Handler that mirrors records at or above a level onto a
// Hub and forwards every record to the next handler.
type Handler struct {
	next   slog.Handler
	hub    *Hub
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

// NewHandler wraps next. Records at level or above are emitted on hub.
func NewHandler(next slog.Handler, hub *Hub, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelWarn
	}
	return &Handler{next: next, hub: hub, level: level}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l) || l >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level.Level() {
		h.hub.Emit(h.event(r))
	}
	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.next = h.next.WithAttrs(attrs)
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), prefixed(h.prefix, attrs)...)
	return &c
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.next = h.next.WithGroup(name)
	c.prefix = h.prefix + name + "."
	return &c
}

func (h *Handler) event(r slog.Record) Event {
	e := Event{Time: r.Time, Level: r.Level.String(), Message: r.Message}
	put := func(a slog.Attr) {
		if a.Key == RequestIDKey || strings.HasSuffix(a.Key, "."+RequestIDKey) {
			e.RequestID = a.Value.String()
			return
		}
		if e.Attrs == nil {
			e.Attrs = make(map[string]any)
		}
		e.Attrs[a.Key] = a.Value.Resolve().Any()
	}
	for _, a := range h.attrs {
		put(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		for _, p := range prefixed(h.prefix, []slog.Attr{a}) {
			put(p)
		}
		return true
	})
	return e
}

func prefixed(prefix string, attrs []slog.Attr) []slog.Attr {
	if prefix == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: prefix + a.Key, Value: a.Value}
	}
	return out
}
