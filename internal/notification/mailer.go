package notification

import (
	"context"

	"go.uber.org/zap"
)

// Mailer delivers a message to the customer.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the message.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("notification delivered",
		zap.String("kind", string(msg.Kind)),
		zap.String("order_code", msg.OrderCode),
		zap.String("email", msg.Email),
		zap.String("status", string(msg.Status)),
		zap.String("payment_status", string(msg.PaymentStatus)),
	)
	return nil
}
