package observability

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// ZerologAdapter implements slog.Handler by forwarding records to a
// zerolog.Logger, for callers who already run zerolog elsewhere and want
// relaybus's logging to land in the same sink and format.
type ZerologAdapter struct {
	logger zerolog.Logger
	attrs  []slog.Attr
}

var _ slog.Handler = (*ZerologAdapter)(nil)

// NewZerologAdapter wraps logger as an slog.Handler.
func NewZerologAdapter(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

// NewZerologLogger returns an *slog.Logger backed by logger, suitable for
// WithLogger.
func NewZerologLogger(logger zerolog.Logger) *slog.Logger {
	return slog.New(NewZerologAdapter(logger))
}

// Enabled reports whether logger's configured level would emit level.
func (h *ZerologAdapter) Enabled(_ context.Context, level slog.Level) bool {
	return zerologLevel(level) >= h.logger.GetLevel()
}

// Handle forwards r to the wrapped zerolog.Logger.
func (h *ZerologAdapter) Handle(_ context.Context, r slog.Record) error {
	evt := h.logger.WithLevel(zerologLevel(r.Level))
	for _, a := range h.attrs {
		evt = evt.Interface(a.Key, a.Value.Any())
	}
	r.Attrs(func(a slog.Attr) bool {
		evt = evt.Interface(a.Key, a.Value.Any())
		return true
	})
	evt.Msg(r.Message)
	return nil
}

// WithAttrs returns a handler that includes attrs on every subsequent
// record.
func (h *ZerologAdapter) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &ZerologAdapter{logger: h.logger, attrs: merged}
}

// WithGroup is unsupported by zerolog's flat field model; records are
// forwarded ungrouped.
func (h *ZerologAdapter) WithGroup(_ string) slog.Handler {
	return h
}

// zerologLevel maps an slog level to the nearest zerolog level, matching
// the debug/info/warn/error bands a zerolog-based caller would configure.
func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l >= slog.LevelError:
		return zerolog.ErrorLevel
	case l >= slog.LevelWarn:
		return zerolog.WarnLevel
	case l >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
