package mail

import (
	"context"
	"log/slog"
)

// LogNotifier stands in for SMTP in development. It logs the recipient and a
// masked link and never the raw token.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, to string, resetURL string) error {
	n.logger.InfoContext(ctx, "password reset mail (dev mode, not sent)",
		"to", to,
		"subject", resetSubject,
		"link", maskLink(resetURL),
	)
	return nil
}
