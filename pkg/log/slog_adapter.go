package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger.
// Useful for development when you want to see protocol events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session_id", event.SessionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}
	if event.ClientID != 0 {
		attrs = append(attrs, slog.Int("client_id", event.ClientID))
	}

	switch {
	case event.Datagram != nil:
		attrs = append(attrs,
			slog.Int("datagram_size", event.Datagram.Size),
			slog.Bool("truncated", event.Datagram.Truncated),
		)
	case event.Message != nil:
		attrs = append(attrs,
			slog.String("kind", event.Message.Kind.String()),
			slog.String("payload", event.Message.Payload),
		)
		if event.Message.RequestID != "" {
			attrs = append(attrs, slog.String("request_id", event.Message.RequestID))
		}
		if event.Message.Latency != nil {
			attrs = append(attrs, slog.Duration("latency", *event.Message.Latency))
		}
	case event.PageState != nil:
		attrs = append(attrs,
			slog.Int("entries", event.PageState.Entries),
			slog.String("old_state", event.PageState.OldState),
			slog.String("new_state", event.PageState.NewState),
		)
		if event.PageState.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.PageState.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
