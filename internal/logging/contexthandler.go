package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns attributes to attach to a record at the moment it
// is logged. It is called from whatever goroutine logs, so it must be safe
// for concurrent use.
type ContextProvider func() []slog.Attr

// ContextHandler stamps every record with the attributes of its providers.
// Empty string attributes are left out, so a provider can go quiet by
// returning "".
type ContextHandler struct {
	inner     slog.Handler
	providers []ContextProvider
}

// NewContextHandler wraps inner. Nil providers are ignored.
func NewContextHandler(inner slog.Handler, providers ...ContextProvider) *ContextHandler {
	h := &ContextHandler{inner: inner}
	for _, p := range providers {
		if p != nil {
			h.providers = append(h.providers, p)
		}
	}
	return h
}

// Enabled delegates to the inner handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds the provider attributes and delegates to the inner handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, p := range h.providers {
		for _, a := range p() {
			if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
				continue
			}
			r.AddAttrs(a)
		}
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs returns a ContextHandler over inner.WithAttrs.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), providers: h.providers}
}

// WithGroup returns a ContextHandler over inner.WithGroup.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), providers: h.providers}
}
