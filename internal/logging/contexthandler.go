package logging

import (
	"context"
	"log/slog"
)

// AttrFunc returns attributes describing the current pipeline state, such
// as the selected map and tracking state.
type AttrFunc func() []slog.Attr

// ContextHandler appends the attributes of an AttrFunc to every record.
// Attributes already set on the record win, and empty string values are
// dropped so that records logged before a map is selected stay clean.
type ContextHandler struct {
	inner slog.Handler
	attrs AttrFunc
}

// NewContextHandler wraps inner. A nil attrs makes it a pass-through.
func NewContextHandler(inner slog.Handler, attrs AttrFunc) *ContextHandler {
	return &ContextHandler{inner: inner, attrs: attrs}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.attrs == nil {
		return h.inner.Handle(ctx, r)
	}
	present := make(map[string]bool, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		present[a.Key] = true
		return true
	})
	for _, a := range h.attrs() {
		if present[a.Key] {
			continue
		}
		if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
			continue
		}
		r.AddAttrs(a)
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), attrs: h.attrs}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), attrs: h.attrs}
}
