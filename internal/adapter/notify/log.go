// Package notify holds domain.Notifier implementations.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/neomorfeo/budgetiq/internal/domain"
	"github.com/neomorfeo/budgetiq/internal/logger"
)

// Compile-time check: LogNotifier implements domain.Notifier.
var _ domain.Notifier = (*LogNotifier)(nil)

// LogNotifier records deliveries in the log instead of sending them. It
// stands in for the email collaborator in development and tests.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier writing to l.
func NewLogNotifier(l *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: l}
}

func (n *LogNotifier) Send(ctx context.Context, templateKey string, recipients []string, data map[string]any) error {
	fields := make([]zap.Field, 0, len(data)+2)
	fields = append(fields, zap.String("template", templateKey), zap.Strings("recipients", recipients))
	for k, v := range data {
		fields = append(fields, zap.Any(k, v))
	}
	logger.FromContextOr(ctx, n.logger).Info("notification", fields...)
	return nil
}
