package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/config"
	"github.com/Additional-Code/atelier/internal/messaging"
	"github.com/Additional-Code/atelier/internal/notification"
	"github.com/Additional-Code/atelier/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/atelier/worker/notification")

const sendAttempts = 3

// Module registers the notification delivery handler.
var Module = fx.Module("worker_notification",
	fx.Provide(
		fx.Annotate(
			NewDeliveryHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewDeliveryHandler consumes queued notifications and hands them to the mailer.
func NewDeliveryHandler(logger *zap.Logger, cfg config.Config, mailer notification.Mailer) worker.HandlerRegistration {
	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: deliver(logger, mailer, 200*time.Millisecond),
	}
}

func deliver(logger *zap.Logger, mailer notification.Mailer, backoff time.Duration) messaging.Handler {
	return func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.notifications.deliver", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var note notification.Message
		if err := json.Unmarshal(msg.Value, &note); err != nil {
			// A payload we cannot decode will never decode; drop it.
			logger.Error("failed to decode notification", zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return nil
		}
		span.SetAttributes(
			attribute.String("notification.kind", string(note.Kind)),
			attribute.String("order.code", note.OrderCode),
		)

		policy := retry.WithMaxRetries(sendAttempts-1, retry.NewExponential(backoff))
		err := retry.Do(ctx, policy, func(ctx context.Context) error {
			if err := mailer.Send(ctx, note); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			logger.Error("notification delivery failed",
				zap.String("kind", string(note.Kind)),
				zap.String("order_code", note.OrderCode),
				zap.Error(err),
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, "send failed")
			return err
		}

		logger.Debug("notification processed",
			zap.String("kind", string(note.Kind)),
			zap.String("order_code", note.OrderCode),
		)
		return nil
	}
}
