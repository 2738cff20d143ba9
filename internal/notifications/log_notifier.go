package notifications

import (
	"context"
	"log/slog"
)

// LogNotifier writes the notification to the log instead of a mail provider.
// Stands in until a real provider is wired up.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendWelcome(ctx context.Context, in SendWelcomeInput) error {
	n.log.InfoContext(ctx, "notification.welcome", "email", in.Email, "name", in.Name)
	return nil
}
