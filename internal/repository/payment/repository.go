package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/atelier/internal/database"
	"github.com/Additional-Code/atelier/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/atelier/repository/payment")

// Repository stores applied provider events and the refund ledger.
type Repository struct {
	writer *bun.DB
	now    func() time.Time
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// HasEvent reports whether the event was already applied to the order.
func (r *Repository) HasEvent(ctx context.Context, orderID uuid.UUID, eventID string) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "PaymentRepository.HasEvent", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	exists, err := r.writer.NewSelect().Model((*entity.PaymentEvent)(nil)).
		Where("order_id = ?", orderID).
		Where("event_id = ?", eventID).
		Exists(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
	}
	return exists, err
}

// RecordEvent marks the event as applied. It returns false when another
// delivery recorded it first.
func (r *Repository) RecordEvent(ctx context.Context, event *entity.PaymentEvent) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "PaymentRepository.RecordEvent", trace.WithAttributes(
		attribute.String("event.id", event.EventID),
		attribute.String("event.type", event.EventType),
	))
	defer span.End()

	if event.AppliedAt.IsZero() {
		event.AppliedAt = r.now()
	}
	q := r.writer.NewInsert().Model(event)
	if r.writer.Dialect().Name() == dialect.MySQL {
		q = q.Ignore()
	} else {
		q = q.On("CONFLICT (order_id, event_id) DO NOTHING")
	}
	res, err := q.Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpsertRefund inserts the refund or updates its status and returns the
// status stored before this call ("" for a new refund). A terminal status is
// never moved back to pending; out-of-order deliveries keep the terminal one.
func (r *Repository) UpsertRefund(ctx context.Context, refund *entity.Refund) (entity.RefundStatus, error) {
	ctx, span := repoTracer.Start(ctx, "PaymentRepository.UpsertRefund", trace.WithAttributes(
		attribute.String("refund.id", refund.ID),
		attribute.String("refund.status", string(refund.Status)),
	))
	defer span.End()

	var previous entity.RefundStatus
	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := new(entity.Refund)
		q := tx.NewSelect().Model(existing).Where("r.id = ?", refund.ID)
		if r.writer.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE")
		}
		err := q.Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			now := r.now()
			refund.CreatedAt = now
			refund.UpdatedAt = now
			if _, err := tx.NewInsert().Model(refund).Exec(ctx); err != nil {
				return fmt.Errorf("insert refund: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("select refund: %w", err)
		}

		previous = existing.Status
		if existing.OrderID != refund.OrderID {
			return fmt.Errorf("refund %s belongs to another order", refund.ID)
		}
		next := refund.Status
		if existing.Status.Terminal() && !next.Terminal() {
			next = existing.Status
		}
		refund.Status = next
		refund.CreatedAt = existing.CreatedAt
		if refund.Amount == 0 {
			refund.Amount = existing.Amount
		}
		if refund.ChargeReference == "" {
			refund.ChargeReference = existing.ChargeReference
		}
		if next == existing.Status && refund.Amount == existing.Amount {
			refund.UpdatedAt = existing.UpdatedAt
			return nil
		}
		refund.UpdatedAt = r.now()
		_, err = tx.NewUpdate().Model(refund).
			Column("status", "amount", "charge_reference", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update refund: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		return "", err
	}
	return previous, nil
}

// SumRefunds totals the order's refunds in any of the given statuses.
func (r *Repository) SumRefunds(ctx context.Context, orderID uuid.UUID, statuses ...entity.RefundStatus) (int64, error) {
	ctx, span := repoTracer.Start(ctx, "PaymentRepository.SumRefunds")
	defer span.End()

	if len(statuses) == 0 {
		return 0, nil
	}
	var total sql.NullInt64
	err := r.writer.NewSelect().Model((*entity.Refund)(nil)).
		ColumnExpr("SUM(r.amount)").
		Where("r.order_id = ?", orderID).
		Where("r.status IN (?)", bun.In(statuses)).
		Scan(ctx, &total)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return 0, err
	}
	return total.Int64, nil
}

// ListRefunds returns the order's refunds oldest first.
func (r *Repository) ListRefunds(ctx context.Context, orderID uuid.UUID) ([]entity.Refund, error) {
	ctx, span := repoTracer.Start(ctx, "PaymentRepository.ListRefunds")
	defer span.End()

	var rows []entity.Refund
	err := r.writer.NewSelect().Model(&rows).Where("r.order_id = ?", orderID).OrderExpr("r.created_at ASC").Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return rows, nil
}
