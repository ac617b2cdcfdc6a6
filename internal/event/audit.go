package event

import (
	"context"
	"log/slog"
)

// AuditLogger writes every lifecycle event to the structured log.
type AuditLogger struct {
	bus    Bus
	logger *slog.Logger
}

func NewAuditLogger(bus Bus, logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{bus: bus, logger: logger.With("component", "audit")}
}

// Run consumes events until ctx is cancelled or the bus closes the channel.
func (a *AuditLogger) Run(ctx context.Context) {
	events, unsubscribe := a.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.logger.LogAttrs(ctx, slog.LevelInfo, "auth event",
				slog.String("event_id", e.ID),
				slog.String("type", string(e.Type)),
				slog.String("user_id", e.UserID),
				slog.String("at", e.Timestamp),
			)
		}
	}
}
