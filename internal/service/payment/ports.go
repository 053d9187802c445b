package payment

import (
	"context"

	"github.com/google/uuid"

	"github.com/Additional-Code/atelier/internal/entity"
)

// Orders looks orders up for reconciliation.
type Orders interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error)
	GetByCode(ctx context.Context, code string) (*entity.Order, error)
	FindByPaymentReference(ctx context.Context, ref string) (*entity.Order, error)
}

// Journal is the applied-event log plus the refund ledger.
type Journal interface {
	HasEvent(ctx context.Context, orderID uuid.UUID, eventID string) (bool, error)
	RecordEvent(ctx context.Context, event *entity.PaymentEvent) (bool, error)
	UpsertRefund(ctx context.Context, refund *entity.Refund) (entity.RefundStatus, error)
	SumRefunds(ctx context.Context, orderID uuid.UUID, statuses ...entity.RefundStatus) (int64, error)
	ListRefunds(ctx context.Context, orderID uuid.UUID) ([]entity.Refund, error)
}
