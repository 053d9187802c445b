package deposit

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

	"github.com/Additional-Code/atelier/internal/entity"
	"github.com/Additional-Code/atelier/internal/notification"
	orderrepo "github.com/Additional-Code/atelier/internal/repository/order"
	"github.com/Additional-Code/atelier/internal/service/inventory"
	"github.com/Additional-Code/atelier/internal/service/lifecycle"
	"github.com/Additional-Code/atelier/pkg/errorbank"
)

var managerTracer = otel.Tracer("github.com/Additional-Code/atelier/service/deposit")

var (
	// ErrNotReservation is returned when a deposit operation targets a standard order.
	ErrNotReservation = errors.New("order is not a deposit reservation")
	// ErrAlreadyProcessed is returned when the deposit was already received.
	ErrAlreadyProcessed = errors.New("deposit already received")
	// ErrAlreadyTerminal is returned when the reservation already reached the requested end state.
	ErrAlreadyTerminal = errors.New("reservation already closed")
)

// SystemActor is recorded on transitions the engine makes on its own.
const SystemActor = "system"

// Orders loads reservations.
type Orders interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error)
	GetByCode(ctx context.Context, code string) (*entity.Order, error)
	ListOverdueDeposits(ctx context.Context, now time.Time, limit int) ([]*entity.Order, error)
}

// Proofs stores bank transfer evidence.
type Proofs interface {
	Create(ctx context.Context, proof *entity.DepositTransferProof) error
	Get(ctx context.Context, id uuid.UUID) (*entity.DepositTransferProof, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]entity.DepositTransferProof, error)
	Review(ctx context.Context, id uuid.UUID, status entity.ProofStatus, reviewer, note string, at time.Time) error
	Reopen(ctx context.Context, id uuid.UUID) error
}

// Tokens resolves tracking tokens to orders.
type Tokens interface {
	Resolve(ctx context.Context, token string) (uuid.UUID, error)
}

// Manager runs the deposit reservation operations. Each one pairs an
// inventory call with a state machine call and a best-effort notification.
type Manager struct {
	orders   Orders
	proofs   Proofs
	tokens   Tokens
	ledger   *inventory.Ledger
	machine  *lifecycle.Machine
	notifier notification.Notifier
	logger   *zap.Logger
}

// Params defines dependencies for constructing Manager.
type Params struct {
	fx.In

	Orders   Orders
	Proofs   Proofs
	Tokens   Tokens
	Ledger   *inventory.Ledger
	Machine  *lifecycle.Machine
	Notifier notification.Notifier
	Logger   *zap.Logger
}

// NewManager wires a deposit manager.
func NewManager(p Params) *Manager {
	return &Manager{
		orders:   p.Orders,
		proofs:   p.Proofs,
		tokens:   p.Tokens,
		ledger:   p.Ledger,
		machine:  p.Machine,
		notifier: p.Notifier,
		logger:   p.Logger,
	}
}

// Action carries who asked for an operation and why.
type Action struct {
	Actor string
	Note  string
}

// MarkDepositReceived records a collected deposit and moves the reservation
// to deposited.
func (m *Manager) MarkDepositReceived(ctx context.Context, code string, action Action) (*entity.Order, error) {
	ctx, span := managerTracer.Start(ctx, "Manager.MarkDepositReceived", trace.WithAttributes(attribute.String("order.code", code)))
	defer span.End()

	order, err := m.reservation(ctx, code)
	if err != nil {
		return nil, err
	}
	return m.markReceived(ctx, order, action)
}

func (m *Manager) markReceived(ctx context.Context, order *entity.Order, action Action) (*entity.Order, error) {
	if order.PaymentStatus == entity.PaymentStatusDeposited {
		return nil, errorbank.Conflict("deposit already received",
			errorbank.WithCause(ErrAlreadyProcessed),
			errorbank.WithDetail("code", order.Code),
		)
	}
	if order.Status.Terminal() {
		return nil, errorbank.Conflict("reservation is closed",
			errorbank.WithCause(ErrAlreadyTerminal),
			errorbank.WithDetail("status", order.Status),
		)
	}
	if order.PaymentStatus.Settled() {
		return nil, errorbank.Conflict("payment already settled",
			errorbank.WithCause(ErrAlreadyProcessed),
			errorbank.WithDetail("payment_status", order.PaymentStatus),
		)
	}

	if order.StockReleased {
		if err := m.ledger.ReacquireOrder(ctx, order); err != nil {
			return nil, err
		}
	}

	at := m.machine.Now()
	patch := entity.PaymentPatch{
		Expect:            order.PaymentStatus,
		Status:            entity.PaymentStatusDeposited,
		DepositReceivedAt: &at,
	}

	var updated *entity.Order
	var err error
	if entity.CanTransition(order.OrderType, order.Status, entity.OrderStatusDeposited) {
		updated, err = m.machine.Transition(ctx, order, order.Status, entity.OrderStatusDeposited,
			lifecycle.WithPayment(patch),
			lifecycle.WithActor(action.Actor),
			lifecycle.WithNote(noteOr(action.Note, "deposit received")),
		)
	} else {
		updated, err = m.machine.UpdatePayment(ctx, order, patch)
	}
	if err != nil {
		return nil, err
	}

	m.notifier.Notify(ctx, notification.For(notification.KindDepositReceived, updated))
	return updated, nil
}

// Expire closes a reservation whose deposit never arrived and returns its
// stock.
func (m *Manager) Expire(ctx context.Context, code string, action Action) (*entity.Order, error) {
	ctx, span := managerTracer.Start(ctx, "Manager.Expire", trace.WithAttributes(attribute.String("order.code", code)))
	defer span.End()

	order, err := m.reservation(ctx, code)
	if err != nil {
		return nil, err
	}
	return m.close(ctx, order, entity.OrderStatusExpired, action)
}

// Cancel closes a reservation on request and returns its stock.
func (m *Manager) Cancel(ctx context.Context, code string, action Action) (*entity.Order, error) {
	ctx, span := managerTracer.Start(ctx, "Manager.Cancel", trace.WithAttributes(attribute.String("order.code", code)))
	defer span.End()

	order, err := m.reservation(ctx, code)
	if err != nil {
		return nil, err
	}
	return m.close(ctx, order, entity.OrderStatusCancelled, action)
}

func (m *Manager) close(ctx context.Context, order *entity.Order, to entity.OrderStatus, action Action) (*entity.Order, error) {
	if order.Status == to {
		return nil, errorbank.Conflict(fmt.Sprintf("reservation already %s", to),
			errorbank.WithCause(ErrAlreadyTerminal),
			errorbank.WithDetail("status", order.Status),
		)
	}
	if err := lifecycle.Check(order, order.Status, to); err != nil {
		return nil, err
	}

	// Stock goes back before the status moves; a failed release leaves the
	// reservation untouched.
	if _, err := m.ledger.ReleaseOrder(ctx, order); err != nil {
		return nil, errorbank.Internal("failed to release reserved stock", errorbank.WithCause(err))
	}

	updated, err := m.machine.Transition(ctx, order, order.Status, to,
		lifecycle.WithActor(action.Actor),
		lifecycle.WithNote(action.Note),
	)
	if err != nil {
		m.logger.Error("stock released but reservation status not recorded",
			zap.String("order_code", order.Code),
			zap.String("target", string(to)),
			zap.Error(err),
		)
		return nil, err
	}

	kind := notification.KindReservationCancelled
	if to == entity.OrderStatusExpired {
		kind = notification.KindReservationExpired
	}
	msg := notification.For(kind, updated)
	msg.Note = action.Note
	m.notifier.Notify(ctx, msg)
	return updated, nil
}

// EnforceDueDate expires order if its deposit is overdue at read time and
// returns the order as it stands afterwards.
func (m *Manager) EnforceDueDate(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	if !order.DepositOverdue(m.machine.Now()) {
		return order, nil
	}
	updated, err := m.close(ctx, order, entity.OrderStatusExpired, Action{Actor: SystemActor, Note: "deposit due date elapsed"})
	if err == nil {
		return updated, nil
	}
	if errors.Is(err, lifecycle.ErrStaleStatus) {
		// Someone else moved it first; report what is stored now.
		fresh, loadErr := m.orders.GetByID(ctx, order.ID)
		if loadErr != nil {
			return nil, errorbank.Internal("failed to load order", errorbank.WithCause(loadErr))
		}
		return fresh, nil
	}
	return nil, err
}

// SweepResult summarises an ExpireOverdue run.
type SweepResult struct {
	Scanned int
	Expired []string
	Failed  []string
}

// ExpireOverdue expires up to limit overdue reservations. It is the entry
// point for an external scheduler; reads enforce due dates lazily as well.
func (m *Manager) ExpireOverdue(ctx context.Context, limit int) (SweepResult, error) {
	ctx, span := managerTracer.Start(ctx, "Manager.ExpireOverdue")
	defer span.End()

	var result SweepResult
	orders, err := m.orders.ListOverdueDeposits(ctx, m.machine.Now(), limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return result, errorbank.Internal("failed to list overdue reservations", errorbank.WithCause(err))
	}
	result.Scanned = len(orders)

	for _, order := range orders {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if !order.DepositOverdue(m.machine.Now()) {
			continue
		}
		_, err := m.close(ctx, order, entity.OrderStatusExpired, Action{Actor: SystemActor, Note: "deposit due date elapsed"})
		if err != nil {
			m.logger.Warn("reservation expiry failed", zap.String("order_code", order.Code), zap.Error(err))
			result.Failed = append(result.Failed, order.Code)
			continue
		}
		result.Expired = append(result.Expired, order.Code)
	}

	m.logger.Info("overdue reservations swept",
		zap.Int("scanned", result.Scanned),
		zap.Int("expired", len(result.Expired)),
		zap.Int("failed", len(result.Failed)),
	)
	span.SetAttributes(attribute.Int("reservations.expired", len(result.Expired)))
	return result, nil
}

func (m *Manager) reservation(ctx context.Context, code string) (*entity.Order, error) {
	order, err := m.orders.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found", errorbank.WithDetail("code", code))
		}
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	if !order.IsDeposit() {
		return nil, errorbank.Unprocessable("order is not a deposit reservation",
			errorbank.WithCause(ErrNotReservation),
			errorbank.WithDetail("code", code),
		)
	}
	return order, nil
}

func noteOr(note, fallback string) string {
	if note != "" {
		return note
	}
	return fallback
}
