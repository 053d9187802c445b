package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/presentation/http/response"
	"github.com/Additional-Code/atelier/internal/provider"
	"github.com/Additional-Code/atelier/internal/service/payment"
	"github.com/Additional-Code/atelier/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/atelier/transport/http/webhook")

const maxPayloadBytes = 1 << 20

// Reconciler applies verified events.
type Reconciler interface {
	Handle(ctx context.Context, event *provider.Event) (payment.Outcome, error)
}

// Handler receives payment provider webhooks.
type Handler struct {
	verifier   provider.Verifier
	reconciler Reconciler
	logger     *zap.Logger
}

// NewHandler constructs a webhook Handler.
func NewHandler(verifier provider.Verifier, reconciler Reconciler, logger *zap.Logger) *Handler {
	return &Handler{verifier: verifier, reconciler: reconciler, logger: logger}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/webhooks/payments", h.receive)
}

// receive answers 200 for every verified, well-formed delivery, including
// ones whose processing failed, so the provider does not retry storms at us.
func (h *Handler) receive(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "webhooks.payments")
	defer span.End()

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPayloadBytes+1))
	if err != nil {
		return b.WithError(errorbank.BadRequest("unreadable payload", errorbank.WithCause(err))).Build()
	}
	if len(payload) > maxPayloadBytes {
		return b.WithError(errorbank.BadRequest("payload too large")).Build()
	}

	if err := h.verifier.Verify(payload, c.Request().Header.Get(provider.SignatureHeader)); err != nil {
		h.logger.Warn("webhook signature rejected", zap.Error(err))
		return b.WithError(errorbank.Unauthorized("invalid signature", errorbank.WithCause(err))).Build()
	}

	event, err := provider.ParseEvent(payload)
	if err != nil {
		return b.WithError(errorbank.BadRequest("malformed event", errorbank.WithCause(err))).Build()
	}
	span.SetAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.type", string(event.Type)),
	)

	outcome, err := h.reconciler.Handle(ctx, event)
	if err != nil {
		outcome = payment.OutcomeFailed
		fields := []zap.Field{
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		}
		if errors.Is(err, context.Canceled) {
			h.logger.Warn("webhook processing interrupted", fields...)
		} else {
			h.logger.Error("webhook processing failed", fields...)
		}
	}

	return b.WithStatus(http.StatusOK).WithData(map[string]any{
		"received": true,
		"outcome":  outcome,
	}).Build()
}
