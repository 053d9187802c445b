package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/atelier/internal/database"
	"github.com/Additional-Code/atelier/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/atelier/repository/order")

// ErrNotFound is returned when an order is missing.
var ErrNotFound = errors.New("order not found")

// ErrStale is returned when a conditional update matched no row because the
// stored status no longer equals the caller's expectation.
var ErrStale = errors.New("order status changed concurrently")

// Repository encapsulates read/write access for orders.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create persists an order, its items and the initial history entry in one
// transaction. A failed item insert rolls the order row back with it.
func (r *Repository) Create(ctx context.Context, order *entity.Order, history *entity.OrderStatusHistory) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.String("order.code", order.Code)))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if len(order.Items) > 0 {
			for i := range order.Items {
				order.Items[i].OrderID = order.ID
			}
			if _, err := tx.NewInsert().Model(&order.Items).Exec(ctx); err != nil {
				return fmt.Errorf("insert order items: %w", err)
			}
		}
		if history != nil {
			history.OrderID = order.ID
			if _, err := tx.NewInsert().Model(history).Exec(ctx); err != nil {
				return fmt.Errorf("insert status history: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID fetches an order with its items. Reads go to the writer so that
// read-modify-write callers never observe replica lag.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	order := new(entity.Order)
	err := r.writer.NewSelect().Model(order).Relation("Items").Where("o.id = ?", id).Scan(ctx)
	return r.found(span, order, err)
}

// GetByCode fetches an order by its human-readable code.
func (r *Repository) GetByCode(ctx context.Context, code string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByCode", trace.WithAttributes(attribute.String("order.code", code)))
	defer span.End()

	order := new(entity.Order)
	err := r.writer.NewSelect().Model(order).Relation("Items").Where("o.code = ?", code).Scan(ctx)
	return r.found(span, order, err)
}

// FindByPaymentReference locates the order owning a provider payment or
// charge reference.
func (r *Repository) FindByPaymentReference(ctx context.Context, ref string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.FindByPaymentReference")
	defer span.End()

	if ref == "" {
		return nil, ErrNotFound
	}
	order := new(entity.Order)
	err := r.writer.NewSelect().Model(order).Relation("Items").
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("o.payment_reference = ?", ref).WhereOr("o.charge_reference = ?", ref)
		}).
		Limit(1).
		Scan(ctx)
	return r.found(span, order, err)
}

// ListOverdueDeposits returns deposit reservations whose due date passed
// while the deposit is still outstanding.
func (r *Repository) ListOverdueDeposits(ctx context.Context, now time.Time, limit int) ([]*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListOverdueDeposits")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}
	var orders []*entity.Order
	err := r.reader.NewSelect().Model(&orders).Relation("Items").
		Where("o.order_type = ?", entity.OrderTypeDepositReservation).
		Where("o.payment_status = ?", entity.PaymentStatusDepositPending).
		Where("o.status IN (?)", bun.In([]entity.OrderStatus{entity.OrderStatusPending, entity.OrderStatusConfirmed})).
		Where("o.deposit_received_at IS NULL").
		Where("o.deposit_due_at < ?", now).
		OrderExpr("o.deposit_due_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// History returns the status history of an order, oldest first.
func (r *Repository) History(ctx context.Context, orderID uuid.UUID) ([]entity.OrderStatusHistory, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.History", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	var rows []entity.OrderStatusHistory
	err := r.reader.NewSelect().Model(&rows).Where("h.order_id = ?", orderID).OrderExpr("h.id ASC").Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return rows, nil
}

// ApplyTransition compare-and-sets the order status and appends the history
// entry in the same transaction. ErrStale is returned when the stored status
// (or payment status, if the patch expects one) no longer matches.
func (r *Repository) ApplyTransition(ctx context.Context, change entity.StatusChange) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ApplyTransition", trace.WithAttributes(
		attribute.String("order.id", change.OrderID.String()),
		attribute.String("order.from", string(change.From)),
		attribute.String("order.to", string(change.To)),
	))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().Model((*entity.Order)(nil)).
			Set("status = ?", change.To).
			Set("updated_at = ?", change.At).
			Where("id = ?", change.OrderID).
			Where("status = ?", change.From)
		q = applyPatch(q, change.Payment)

		res, err := q.Exec(ctx)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if err := expectOneRow(res); err != nil {
			return err
		}

		history := change.History
		history.OrderID = change.OrderID
		if _, err := tx.NewInsert().Model(&history).Exec(ctx); err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrStale) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition failed")
	}
	return err
}

// UpdatePayment writes payment-side fields without touching the order status.
func (r *Repository) UpdatePayment(ctx context.Context, orderID uuid.UUID, patch entity.PaymentPatch, at time.Time) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdatePayment", trace.WithAttributes(
		attribute.String("order.id", orderID.String()),
		attribute.String("payment.status", string(patch.Status)),
	))
	defer span.End()

	if patch.Empty() {
		return nil
	}
	q := r.writer.NewUpdate().Model((*entity.Order)(nil)).
		Set("updated_at = ?", at).
		Where("id = ?", orderID)
	q = applyPatch(q, patch)

	res, err := q.Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	return expectOneRow(res)
}

// ClaimStockRelease flips stock_released from false to true and reports
// whether this caller won the claim.
func (r *Repository) ClaimStockRelease(ctx context.Context, orderID uuid.UUID) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ClaimStockRelease", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	return r.flipStockReleased(ctx, orderID, false, true)
}

// UnclaimStockRelease reverts a claim, either because the release itself
// failed or because stock was reserved again.
func (r *Repository) UnclaimStockRelease(ctx context.Context, orderID uuid.UUID) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UnclaimStockRelease", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	return r.flipStockReleased(ctx, orderID, true, false)
}

// ClaimLineRelease flips one order line's stock_released flag from false to
// true. A line is returned to stock only by the caller that wins this claim.
func (r *Repository) ClaimLineRelease(ctx context.Context, orderID uuid.UUID, productID string) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ClaimLineRelease", trace.WithAttributes(
		attribute.String("order.id", orderID.String()),
		attribute.String("product.id", productID),
	))
	defer span.End()

	return r.flipLineReleased(ctx, orderID, productID, false, true)
}

// UnclaimLineRelease reverts a line claim.
func (r *Repository) UnclaimLineRelease(ctx context.Context, orderID uuid.UUID, productID string) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UnclaimLineRelease", trace.WithAttributes(
		attribute.String("order.id", orderID.String()),
		attribute.String("product.id", productID),
	))
	defer span.End()

	return r.flipLineReleased(ctx, orderID, productID, true, false)
}

func (r *Repository) flipLineReleased(ctx context.Context, orderID uuid.UUID, productID string, from, to bool) (bool, error) {
	res, err := r.writer.NewUpdate().Model((*entity.OrderItem)(nil)).
		Set("stock_released = ?", to).
		Where("order_id = ?", orderID).
		Where("product_id = ?", productID).
		Where("stock_released = ?", from).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repository) flipStockReleased(ctx context.Context, orderID uuid.UUID, from, to bool) (bool, error) {
	res, err := r.writer.NewUpdate().Model((*entity.Order)(nil)).
		Set("stock_released = ?", to).
		Where("id = ?", orderID).
		Where("stock_released = ?", from).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Repository) found(span trace.Span, order *entity.Order, err error) (*entity.Order, error) {
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

func applyPatch(q *bun.UpdateQuery, patch entity.PaymentPatch) *bun.UpdateQuery {
	if patch.Status != "" {
		q = q.Set("payment_status = ?", patch.Status)
	}
	if patch.PaymentReference != "" {
		q = q.Set("payment_reference = ?", patch.PaymentReference)
	}
	if patch.ChargeReference != "" {
		q = q.Set("charge_reference = ?", patch.ChargeReference)
	}
	if patch.DepositReceivedAt != nil {
		q = q.Set("deposit_received_at = ?", *patch.DepositReceivedAt)
	}
	if patch.Expect != "" {
		q = q.Where("payment_status = ?", patch.Expect)
	}
	return q
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}
