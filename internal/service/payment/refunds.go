package payment

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/entity"
	"github.com/Additional-Code/atelier/internal/notification"
	"github.com/Additional-Code/atelier/internal/provider"
	orderrepo "github.com/Additional-Code/atelier/internal/repository/order"
	"github.com/Additional-Code/atelier/internal/service/lifecycle"
	"github.com/Additional-Code/atelier/pkg/errorbank"
)

var (
	// ErrNotRefundable is returned for orders without a captured online payment.
	ErrNotRefundable = errors.New("order has no refundable payment")
	// ErrRefundExceedsBalance is returned when the requested amount is above what remains.
	ErrRefundExceedsBalance = errors.New("refund exceeds remaining balance")
)

// RefundRequest is an admin refund instruction. A zero Amount refunds
// everything that remains.
type RefundRequest struct {
	OrderCode string
	Amount    int64
	Reason    string
	Actor     string
}

// RefundReceipt is what Initiate reports back.
type RefundReceipt struct {
	Order     *entity.Order
	Refund    *entity.Refund
	Remaining int64
}

// Refunds submits admin-initiated refunds to the provider and records them
// as pending until the webhook settles them.
type Refunds struct {
	orders   Orders
	journal  Journal
	provider provider.Client
	settler  *settler
	logger   *zap.Logger
}

// RefundParams defines dependencies for constructing Refunds.
type RefundParams struct {
	fx.In

	Orders   Orders
	Journal  Journal
	Provider provider.Client
	Machine  *lifecycle.Machine
	Notifier notification.Notifier
	Logger   *zap.Logger
}

// NewRefunds wires the refund service.
func NewRefunds(p RefundParams) *Refunds {
	return &Refunds{
		orders:   p.Orders,
		journal:  p.Journal,
		provider: p.Provider,
		settler:  &settler{journal: p.Journal, machine: p.Machine, notifier: p.Notifier, logger: p.Logger},
		logger:   p.Logger,
	}
}

// Initiate refunds part or all of an order's captured payment.
func (s *Refunds) Initiate(ctx context.Context, req RefundRequest) (*RefundReceipt, error) {
	ctx, span := reconcilerTracer.Start(ctx, "Refunds.Initiate", trace.WithAttributes(
		attribute.String("order.code", req.OrderCode),
		attribute.Int64("refund.amount", req.Amount),
	))
	defer span.End()

	if req.Amount < 0 {
		return nil, errorbank.BadRequest("refund amount must not be negative", errorbank.WithDetail("amount", req.Amount))
	}

	order, err := s.orders.GetByCode(ctx, req.OrderCode)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found", errorbank.WithDetail("code", req.OrderCode))
		}
		span.RecordError(err)
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	if !order.PaymentMethod.Online() || !order.PaymentStatus.Settled() ||
		(order.PaymentReference == "" && order.ChargeReference == "") {
		return nil, errorbank.Conflict("order has no captured online payment",
			errorbank.WithCause(ErrNotRefundable),
			errorbank.WithDetail("payment_status", order.PaymentStatus),
		)
	}

	committed, err := s.journal.SumRefunds(ctx, order.ID, entity.RefundStatusSucceeded, entity.RefundStatusPending)
	if err != nil {
		span.RecordError(err)
		return nil, errorbank.Internal("failed to read refund ledger", errorbank.WithCause(err))
	}
	remaining := order.PaidAmount() - committed
	if remaining <= 0 {
		return nil, errorbank.Conflict("order is already fully refunded",
			errorbank.WithCause(ErrRefundExceedsBalance),
			errorbank.WithDetail("remaining", int64(0)),
		)
	}

	amount := req.Amount
	if amount == 0 {
		amount = remaining
	}
	if amount > remaining {
		return nil, errorbank.Conflict("refund exceeds remaining balance",
			errorbank.WithCause(ErrRefundExceedsBalance),
			errorbank.WithDetails(map[string]any{"requested": amount, "remaining": remaining}),
		)
	}

	result, err := s.provider.CreateRefund(ctx, provider.RefundRequest{
		OrderID:          order.ID.String(),
		PaymentReference: order.PaymentReference,
		ChargeReference:  order.ChargeReference,
		Amount:           amount,
		Reason:           req.Reason,
		IdempotencyKey:   fmt.Sprintf("refund-%s-%d-%d", order.ID, committed, amount),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider refund failed")
		s.logger.Error("provider refund failed", zap.String("order_code", order.Code), zap.Error(err))
		return nil, errorbank.BadGateway("payment provider rejected the refund", errorbank.WithCause(err))
	}

	status, err := entity.ParseRefundStatus(result.Status)
	if err != nil {
		status = entity.RefundStatusPending
	}
	refund := &entity.Refund{
		ID:              result.ID,
		OrderID:         order.ID,
		ChargeReference: order.ChargeReference,
		Amount:          amount,
		Status:          status,
		Reason:          req.Reason,
	}
	if result.Amount > 0 {
		refund.Amount = result.Amount
	}

	newly, err := s.settler.record(ctx, refund)
	if err != nil {
		span.RecordError(err)
		return nil, errorbank.Internal("failed to record refund", errorbank.WithCause(err))
	}
	updated, _, err := s.settler.settle(ctx, order)
	if err != nil {
		return nil, err
	}
	if newly {
		s.settler.notifyRefund(ctx, updated, refund)
	}

	s.logger.Info("refund initiated",
		zap.String("order_code", order.Code),
		zap.String("refund_id", refund.ID),
		zap.Int64("amount", refund.Amount),
		zap.String("status", string(refund.Status)),
		zap.String("actor", req.Actor),
	)
	return &RefundReceipt{Order: updated, Refund: refund, Remaining: remaining - refund.Amount}, nil
}

// Ledger lists the refunds recorded for an order.
func (s *Refunds) Ledger(ctx context.Context, code string) ([]entity.Refund, error) {
	order, err := s.orders.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found", errorbank.WithDetail("code", code))
		}
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	refunds, err := s.journal.ListRefunds(ctx, order.ID)
	if err != nil {
		return nil, errorbank.Internal("failed to list refunds", errorbank.WithCause(err))
	}
	return refunds, nil
}
