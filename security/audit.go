package security

import (
	"context"
	"log/slog"
	"time"

	"github.com/ruteri/storage-policy-backend/interfaces"
)

// SlogEventSink appends security events to a structured logger. Rotation and
// retention of the underlying log are the operator's concern.
type SlogEventSink struct {
	log *slog.Logger
}

// NewSlogEventSink creates a sink writing to the given logger under an
// "audit" component attribute.
func NewSlogEventSink(logger *slog.Logger) *SlogEventSink {
	return &SlogEventSink{log: logger.With(slog.String("component", "audit"))}
}

// Append records one audit event.
func (s *SlogEventSink) Append(ctx context.Context, event interfaces.SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	s.log.Info("Security event",
		slog.String("event_type", event.Type.String()),
		slog.String("container", event.Container),
		slog.String("object", event.Object),
		slog.String("client_ip", event.ClientIP),
		slog.Bool("success", event.Success),
		slog.Time("timestamp", event.Timestamp),
		slog.String("detail", event.Detail))
}
