package payment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/entity"
	"github.com/Additional-Code/atelier/internal/notification"
	"github.com/Additional-Code/atelier/internal/service/lifecycle"
)

// settler records refunds and keeps the order's payment status in line with
// the succeeded total.
type settler struct {
	journal  Journal
	machine  *lifecycle.Machine
	notifier notification.Notifier
	logger   *zap.Logger
}

// record upserts refund and reports whether it just became succeeded.
// refund.Status holds the stored status afterwards.
func (s *settler) record(ctx context.Context, refund *entity.Refund) (bool, error) {
	previous, err := s.journal.UpsertRefund(ctx, refund)
	if err != nil {
		return false, fmt.Errorf("upsert refund %s: %w", refund.ID, err)
	}
	return refund.Status == entity.RefundStatusSucceeded && previous != entity.RefundStatusSucceeded, nil
}

// settle recomputes the refunded total from the ledger and writes the derived
// payment status when it changed.
func (s *settler) settle(ctx context.Context, order *entity.Order) (*entity.Order, int64, error) {
	total, err := s.journal.SumRefunds(ctx, order.ID, entity.RefundStatusSucceeded)
	if err != nil {
		return nil, 0, fmt.Errorf("sum refunds: %w", err)
	}
	next := DerivePaymentStatus(order.PaidAmount(), total, order.PaymentStatus)
	if next == order.PaymentStatus {
		return order, total, nil
	}
	updated, err := s.machine.UpdatePayment(ctx, order, entity.PaymentPatch{
		Expect: order.PaymentStatus,
		Status: next,
	})
	if err != nil {
		return nil, total, err
	}
	s.logger.Info("refund total updated",
		zap.String("order_code", order.Code),
		zap.Int64("refunded", total),
		zap.String("payment_status", string(next)),
	)
	return updated, total, nil
}

func (s *settler) notifyRefund(ctx context.Context, order *entity.Order, refund *entity.Refund) {
	msg := notification.For(notification.KindRefundSucceeded, order)
	msg.Amount = refund.Amount
	s.notifier.Notify(ctx, msg)
}
