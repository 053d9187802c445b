package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/entity"
	"github.com/Additional-Code/atelier/internal/notification"
	"github.com/Additional-Code/atelier/internal/provider"
	orderrepo "github.com/Additional-Code/atelier/internal/repository/order"
	"github.com/Additional-Code/atelier/internal/service/inventory"
	"github.com/Additional-Code/atelier/internal/service/lifecycle"
)

var (
	reconcilerTracer = otel.Tracer("github.com/Additional-Code/atelier/service/payment")
	reconcilerMeter  = otel.Meter("github.com/Additional-Code/atelier/service/payment")
)

// Outcome is what happened to a delivered event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDropped   Outcome = "dropped"
	OutcomeFailed    Outcome = "failed"
)

const staleRetries = 3

// Reconciler applies verified provider events to orders exactly once per
// (order, event id).
type Reconciler struct {
	orders   Orders
	journal  Journal
	machine  *lifecycle.Machine
	ledger   *inventory.Ledger
	notifier notification.Notifier
	settler  *settler
	logger   *zap.Logger
	events   metric.Int64Counter
	backoff  time.Duration
}

// Params defines dependencies for constructing Reconciler.
type Params struct {
	fx.In

	Orders   Orders
	Journal  Journal
	Machine  *lifecycle.Machine
	Ledger   *inventory.Ledger
	Notifier notification.Notifier
	Logger   *zap.Logger
}

// NewReconciler wires a reconciler.
func NewReconciler(p Params) (*Reconciler, error) {
	events, err := reconcilerMeter.Int64Counter("atelier.webhook.events",
		metric.WithDescription("Provider events by type and outcome"))
	if err != nil {
		return nil, fmt.Errorf("create webhook counter: %w", err)
	}
	return &Reconciler{
		orders:   p.Orders,
		journal:  p.Journal,
		machine:  p.Machine,
		ledger:   p.Ledger,
		notifier: p.Notifier,
		settler:  &settler{journal: p.Journal, machine: p.Machine, notifier: p.Notifier, logger: p.Logger},
		logger:   p.Logger,
		events:   events,
		backoff:  20 * time.Millisecond,
	}, nil
}

// Handle applies event. Only storage failures are returned; events that
// cannot be correlated or were already applied are reported through the
// outcome.
func (r *Reconciler) Handle(ctx context.Context, event *provider.Event) (outcome Outcome, err error) {
	ctx, span := reconcilerTracer.Start(ctx, "Reconciler.Handle", trace.WithAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.type", string(event.Type)),
	))
	defer span.End()
	defer func() {
		if err != nil {
			outcome = OutcomeFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, "reconcile failed")
		}
		span.SetAttributes(attribute.String("event.outcome", string(outcome)))
		r.events.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", string(event.Type)),
			attribute.String("outcome", string(outcome)),
		))
	}()

	category := event.Type.Category()
	if category == provider.CategoryIgnored {
		r.logger.Debug("provider event ignored", zap.String("event_id", event.ID), zap.String("type", string(event.Type)))
		return OutcomeIgnored, nil
	}

	order, err := r.resolve(ctx, event, category)
	if err != nil {
		return OutcomeFailed, err
	}
	if order == nil {
		r.logger.Warn("provider event has no matching order",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.String("payment_reference", event.PaymentReference),
		)
		return OutcomeDropped, nil
	}

	seen, err := r.journal.HasEvent(ctx, order.ID, event.ID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("check event: %w", err)
	}
	if seen {
		r.logger.Info("provider event already applied", zap.String("event_id", event.ID), zap.String("order_code", order.Code))
		return OutcomeDuplicate, nil
	}

	attempt := 0
	backoff := retry.WithMaxRetries(staleRetries-1, retry.NewConstant(r.backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if attempt > 0 {
			fresh, err := r.orders.GetByID(ctx, order.ID)
			if err != nil {
				return fmt.Errorf("reload order: %w", err)
			}
			order = fresh
		}
		attempt++

		err := r.apply(ctx, category, order, event)
		if errors.Is(err, lifecycle.ErrStaleStatus) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return OutcomeFailed, err
	}

	recorded, err := r.journal.RecordEvent(ctx, &entity.PaymentEvent{
		OrderID:   order.ID,
		EventID:   event.ID,
		EventType: string(event.Type),
	})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("record event: %w", err)
	}
	if !recorded {
		r.logger.Warn("provider event applied concurrently", zap.String("event_id", event.ID), zap.String("order_code", order.Code))
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) resolve(ctx context.Context, event *provider.Event, category provider.Category) (*entity.Order, error) {
	if event.OrderID != "" {
		id, err := uuid.Parse(event.OrderID)
		if err == nil {
			order, err := r.orders.GetByID(ctx, id)
			switch {
			case err == nil:
				return order, nil
			case !errors.Is(err, orderrepo.ErrNotFound):
				return nil, fmt.Errorf("load order: %w", err)
			}
		}
	}
	if category != provider.CategoryRefund {
		return nil, nil
	}

	refs := []string{event.PaymentReference, event.ChargeReference}
	for _, refund := range event.Refunds {
		refs = append(refs, refund.PaymentReference, refund.ChargeReference)
	}
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		order, err := r.orders.FindByPaymentReference(ctx, ref)
		switch {
		case err == nil:
			return order, nil
		case !errors.Is(err, orderrepo.ErrNotFound):
			return nil, fmt.Errorf("find order by reference: %w", err)
		}
	}
	return nil, nil
}

func (r *Reconciler) apply(ctx context.Context, category provider.Category, order *entity.Order, event *provider.Event) error {
	switch category {
	case provider.CategorySucceeded:
		return r.succeeded(ctx, order, event)
	case provider.CategoryFailed:
		return r.failed(ctx, order, event)
	case provider.CategoryRefund:
		return r.refunded(ctx, order, event)
	case provider.CategoryIgnored:
		return nil
	default:
		return nil
	}
}

func (r *Reconciler) succeeded(ctx context.Context, order *entity.Order, event *provider.Event) error {
	payTo, statusTo := entity.PaymentStatusPaid, entity.OrderStatusConfirmed
	kind := notification.KindStatusUpdate
	if order.IsDeposit() {
		payTo, statusTo = entity.PaymentStatusDeposited, entity.OrderStatusDeposited
		kind = notification.KindDepositReceived
	}

	switch order.PaymentStatus {
	case payTo:
		if !entity.CanTransition(order.OrderType, order.Status, statusTo) {
			return nil
		}
	case entity.PaymentStatusPartiallyRefunded, entity.PaymentStatusRefunded:
		r.logger.Info("payment success after refund ignored", zap.String("order_code", order.Code), zap.String("event_id", event.ID))
		return nil
	}

	patch := entity.PaymentPatch{
		Expect:           order.PaymentStatus,
		Status:           payTo,
		PaymentReference: event.PaymentReference,
		ChargeReference:  event.ChargeReference,
	}
	if order.IsDeposit() && order.DepositReceivedAt == nil {
		at := r.machine.Now()
		patch.DepositReceivedAt = &at
	}

	if order.Status.Terminal() {
		if _, err := r.machine.UpdatePayment(ctx, order, patch); err != nil {
			return err
		}
		r.logger.Warn("payment captured on a closed order, refund manually",
			zap.String("order_code", order.Code),
			zap.String("status", string(order.Status)),
			zap.String("event_id", event.ID),
		)
		return nil
	}

	if order.StockReleased {
		if err := r.ledger.ReacquireOrder(ctx, order); err != nil {
			r.logger.Error("stock could not be reserved again after payment",
				zap.String("order_code", order.Code), zap.Error(err))
		}
	}

	var (
		updated *entity.Order
		err     error
	)
	if entity.CanTransition(order.OrderType, order.Status, statusTo) {
		updated, err = r.machine.Transition(ctx, order, order.Status, statusTo,
			lifecycle.WithPayment(patch),
			lifecycle.WithNote("payment confirmed by provider event "+event.ID),
		)
	} else {
		updated, err = r.machine.UpdatePayment(ctx, order, patch)
	}
	if err != nil {
		return err
	}
	r.notifier.Notify(ctx, notification.For(kind, updated))
	return nil
}

func (r *Reconciler) failed(ctx context.Context, order *entity.Order, event *provider.Event) error {
	if order.PaymentStatus.Settled() {
		r.logger.Info("payment failure after settlement ignored", zap.String("order_code", order.Code), zap.String("event_id", event.ID))
		return nil
	}

	updated := order
	if order.PaymentStatus != entity.PaymentStatusFailed {
		var err error
		updated, err = r.machine.UpdatePayment(ctx, order, entity.PaymentPatch{
			Expect:           order.PaymentStatus,
			Status:           entity.PaymentStatusFailed,
			PaymentReference: event.PaymentReference,
		})
		if err != nil {
			return err
		}
	}

	if _, err := r.ledger.ReleaseOrder(ctx, updated); err != nil {
		r.logger.Error("stock release after failed payment",
			zap.String("order_code", order.Code), zap.Error(err))
	}

	msg := notification.For(notification.KindPaymentFailed, updated)
	msg.Note = event.FailureMessage
	r.notifier.Notify(ctx, msg)
	return nil
}

func (r *Reconciler) refunded(ctx context.Context, order *entity.Order, event *provider.Event) error {
	var succeeded []*entity.Refund
	for _, obj := range event.Refunds {
		if obj.ID == "" {
			continue
		}
		status, err := entity.ParseRefundStatus(obj.Status)
		if err != nil {
			r.logger.Warn("refund with unknown status skipped",
				zap.String("refund_id", obj.ID), zap.String("status", obj.Status))
			continue
		}
		refund := &entity.Refund{
			ID:              obj.ID,
			OrderID:         order.ID,
			ChargeReference: obj.ChargeReference,
			Amount:          obj.Amount,
			Status:          status,
			Reason:          obj.Reason,
		}
		newly, err := r.settler.record(ctx, refund)
		if err != nil {
			return err
		}
		if newly {
			succeeded = append(succeeded, refund)
		}
	}

	updated, _, err := r.settler.settle(ctx, order)
	if err != nil {
		return err
	}
	for _, refund := range succeeded {
		r.settler.notifyRefund(ctx, updated, refund)
	}
	return nil
}
