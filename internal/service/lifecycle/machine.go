package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/cache"
	"github.com/Additional-Code/atelier/internal/entity"
	orderrepo "github.com/Additional-Code/atelier/internal/repository/order"
	"github.com/Additional-Code/atelier/pkg/errorbank"
)

var machineTracer = otel.Tracer("github.com/Additional-Code/atelier/service/lifecycle")

var (
	// ErrIllegalTransition is returned when the target status is not a successor of the current one.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrAlreadyInStatus is returned when the order already has the target status.
	ErrAlreadyInStatus = errors.New("order already in status")
	// ErrStaleStatus is returned when the order moved on before the write landed.
	ErrStaleStatus = errors.New("order status changed concurrently")
)

// Store persists status and payment writes as conditional updates.
type Store interface {
	ApplyTransition(ctx context.Context, change entity.StatusChange) error
	UpdatePayment(ctx context.Context, orderID uuid.UUID, patch entity.PaymentPatch, at time.Time) error
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	From    entity.OrderStatus
	To      entity.OrderStatus
	Current entity.OrderStatus
	Reason  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s -> %s (current %s): %v", e.From, e.To, e.Current, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return e.Reason
}

// Machine is the only writer of order and payment status.
type Machine struct {
	store  Store
	cache  cache.Store
	logger *zap.Logger
	now    func() time.Time
}

// Params defines dependencies for constructing Machine.
type Params struct {
	fx.In

	Store  Store
	Cache  cache.Store
	Logger *zap.Logger
}

// NewMachine wires a state machine over the given store.
func NewMachine(p Params) *Machine {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := p.Cache
	if store == nil {
		store = cache.Noop()
	}
	return &Machine{
		store:  p.Store,
		cache:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source; used by tests.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// Now returns the machine's current time.
func (m *Machine) Now() time.Time {
	return m.now()
}

type transitionOptions struct {
	note    string
	actor   string
	payment entity.PaymentPatch
}

// Option tweaks a single transition.
type Option func(*transitionOptions)

// WithNote records a note on the history entry.
func WithNote(note string) Option {
	return func(o *transitionOptions) { o.note = note }
}

// WithActor records who triggered the transition.
func WithActor(actor string) Option {
	return func(o *transitionOptions) { o.actor = actor }
}

// WithPayment writes payment fields in the same conditional update.
func WithPayment(patch entity.PaymentPatch) Option {
	return func(o *transitionOptions) { o.payment = patch }
}

// Transition moves order from -> to. from is the status the caller observed;
// if the stored row no longer carries it the write is rejected with
// ErrStaleStatus. The returned order is a copy reflecting the new state.
func (m *Machine) Transition(ctx context.Context, order *entity.Order, from, to entity.OrderStatus, opts ...Option) (*entity.Order, error) {
	ctx, span := machineTracer.Start(ctx, "Machine.Transition", trace.WithAttributes(
		attribute.String("order.code", order.Code),
		attribute.String("status.from", string(from)),
		attribute.String("status.to", string(to)),
	))
	defer span.End()

	var cfg transitionOptions
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := Check(order, from, to); err != nil {
		span.SetStatus(codes.Error, "rejected")
		return nil, err
	}

	at := m.now()
	fromStatus := from
	change := entity.StatusChange{
		OrderID: order.ID,
		From:    from,
		To:      to,
		Payment: cfg.payment,
		At:      at,
		History: entity.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: &fromStatus,
			ToStatus:   to,
			Note:       cfg.note,
			ActorID:    cfg.actor,
			CreatedAt:  at,
		},
	}
	if err := m.store.ApplyTransition(ctx, change); err != nil {
		if errors.Is(err, orderrepo.ErrStale) {
			span.SetStatus(codes.Error, "stale")
			return nil, rejected(from, to, "", ErrStaleStatus)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "store error")
		return nil, errorbank.Internal("failed to update order status", errorbank.WithCause(err))
	}

	updated := order.Clone()
	updated.Status = to
	cfg.payment.Apply(updated)
	updated.UpdatedAt = at
	m.evict(ctx, updated)

	m.logger.Info("order status changed",
		zap.String("order_code", order.Code),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", cfg.actor),
	)
	return updated, nil
}

// UpdatePayment writes payment fields without touching the order status. A
// non-empty patch.Expect makes the write conditional on the stored payment
// status.
func (m *Machine) UpdatePayment(ctx context.Context, order *entity.Order, patch entity.PaymentPatch) (*entity.Order, error) {
	ctx, span := machineTracer.Start(ctx, "Machine.UpdatePayment", trace.WithAttributes(
		attribute.String("order.code", order.Code),
		attribute.String("payment.status", string(patch.Status)),
	))
	defer span.End()

	if patch.Empty() {
		return order, nil
	}
	at := m.now()
	if err := m.store.UpdatePayment(ctx, order.ID, patch, at); err != nil {
		if errors.Is(err, orderrepo.ErrStale) {
			return nil, errorbank.Conflict("payment status changed concurrently", errorbank.WithCause(ErrStaleStatus))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "store error")
		return nil, errorbank.Internal("failed to update payment status", errorbank.WithCause(err))
	}

	updated := order.Clone()
	patch.Apply(updated)
	updated.UpdatedAt = at
	m.evict(ctx, updated)
	return updated, nil
}

// Check validates a transition against the order without writing anything.
func Check(order *entity.Order, from, to entity.OrderStatus) error {
	switch {
	case order.Status != from:
		return rejected(from, to, order.Status, ErrStaleStatus)
	case from == to:
		return rejected(from, to, order.Status, ErrAlreadyInStatus)
	case !entity.CanTransition(order.OrderType, from, to):
		return rejected(from, to, order.Status, ErrIllegalTransition)
	}
	return nil
}

func rejected(from, to, current entity.OrderStatus, reason error) error {
	msg := fmt.Sprintf("cannot move order from %s to %s", from, to)
	switch {
	case errors.Is(reason, ErrAlreadyInStatus):
		msg = fmt.Sprintf("order is already %s", to)
	case errors.Is(reason, ErrStaleStatus):
		msg = "order status changed, reload and retry"
	}
	details := map[string]any{"from": from, "to": to}
	if current != "" {
		details["current"] = current
	}
	return errorbank.Conflict(msg,
		errorbank.WithCause(&TransitionError{From: from, To: to, Current: current, Reason: reason}),
		errorbank.WithDetails(details),
	)
}

func (m *Machine) evict(ctx context.Context, order *entity.Order) {
	if err := cache.DropOrder(ctx, m.cache, order.Code); err != nil {
		m.logger.Warn("orders cache evict failed", zap.String("order_code", order.Code), zap.Error(err))
	}
}
