package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/cache"
	"github.com/Additional-Code/atelier/internal/config"
	"github.com/Additional-Code/atelier/internal/entity"
	"github.com/Additional-Code/atelier/internal/notification"
	repo "github.com/Additional-Code/atelier/internal/repository/order"
	trackingrepo "github.com/Additional-Code/atelier/internal/repository/tracking"
	"github.com/Additional-Code/atelier/internal/service/deposit"
	"github.com/Additional-Code/atelier/internal/service/inventory"
	"github.com/Additional-Code/atelier/internal/service/lifecycle"
	"github.com/Additional-Code/atelier/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/atelier/service/order")

var (
	// ErrAlreadyPaid is returned when a customer tries to abandon a settled order.
	ErrAlreadyPaid = errors.New("order already paid")
	// ErrNotCollectable is returned when cash collection does not apply to the order.
	ErrNotCollectable = errors.New("order is not awaiting cash collection")
)

// CustomerActor marks transitions requested through a tracking token.
const CustomerActor = "customer"

// Repository is the read side of the order store.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error)
	GetByCode(ctx context.Context, code string) (*entity.Order, error)
	History(ctx context.Context, orderID uuid.UUID) ([]entity.OrderStatusHistory, error)
}

// Tokens resolves tracking tokens.
type Tokens interface {
	Resolve(ctx context.Context, token string) (uuid.UUID, error)
}

// Deposits is the part of the deposit manager that order reads and admin
// transitions lean on.
type Deposits interface {
	EnforceDueDate(ctx context.Context, order *entity.Order) (*entity.Order, error)
	MarkDepositReceived(ctx context.Context, code string, action deposit.Action) (*entity.Order, error)
}

// Service exposes order reads and the customer and admin transitions that
// are not owned by checkout, payments or deposits.
type Service struct {
	repo     Repository
	tokens   Tokens
	deposits Deposits
	machine  *lifecycle.Machine
	ledger   *inventory.Ledger
	notifier notification.Notifier
	cache    cache.Store
	cacheTTL time.Duration
	logger   *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository Repository
	Tokens     Tokens
	Deposits   Deposits
	Machine    *lifecycle.Machine
	Ledger     *inventory.Ledger
	Notifier   notification.Notifier
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	store := p.Cache
	if store == nil {
		store = cache.Noop()
	}
	return &Service{
		repo:     p.Repository,
		tokens:   p.Tokens,
		deposits: p.Deposits,
		machine:  p.Machine,
		ledger:   p.Ledger,
		notifier: p.Notifier,
		cache:    store,
		cacheTTL: p.Config.Cache.DefaultTTL,
		logger:   p.Logger,
	}
}

// Tracked is an order as shown to its customer.
type Tracked struct {
	Order   *entity.Order
	History []entity.OrderStatusHistory
}

// Get retrieves an order by code, consulting cache when available. Overdue
// reservations are expired before they are returned.
func (s *Service) Get(ctx context.Context, code string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.String("order.code", code)))
	defer span.End()

	order, err := s.getFromCache(ctx, code)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("orders cache read failed", zap.String("order_code", code), zap.Error(err))
		}
		order, err = s.repo.GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, errorbank.NotFound("order not found", errorbank.WithDetail("code", code))
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "repository error")
			return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
		}
		if err := s.storeInCache(ctx, order); err != nil {
			s.logger.Warn("orders cache write failed", zap.String("order_code", code), zap.Error(err))
		}
	}

	return s.deposits.EnforceDueDate(ctx, order)
}

// Track resolves a tracking token and returns the order with its history.
func (s *Service) Track(ctx context.Context, token string) (*Tracked, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Track")
	defer span.End()

	orderID, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	order, err = s.deposits.EnforceDueDate(ctx, order)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.History(ctx, order.ID)
	if err != nil {
		span.RecordError(err)
		return nil, errorbank.Internal("failed to load order history", errorbank.WithCause(err))
	}
	return &Tracked{Order: order, History: history}, nil
}

// CancelAbandoned cancels an order whose customer gave up on paying. It is
// a no-op on an order that is already cancelled.
func (s *Service) CancelAbandoned(ctx context.Context, code, token string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.CancelAbandoned", trace.WithAttributes(attribute.String("order.code", code)))
	defer span.End()

	orderID, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	order, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if order.ID != orderID {
		return nil, errorbank.Unauthorized("tracking token does not match order")
	}

	if order.Status == entity.OrderStatusCancelled {
		return order, nil
	}
	if order.PaymentStatus.Settled() {
		return nil, errorbank.Conflict("order is already paid",
			errorbank.WithCause(ErrAlreadyPaid),
			errorbank.WithDetail("payment_status", order.PaymentStatus),
		)
	}
	return s.cancel(ctx, order, CustomerActor, "payment abandoned")
}

// Transition moves an order to status on behalf of an admin. Cancelling or
// expiring returns reserved stock; moving to deposited records the deposit.
func (s *Service) Transition(ctx context.Context, code string, to entity.OrderStatus, actor, note string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Transition", trace.WithAttributes(
		attribute.String("order.code", code),
		attribute.String("status.to", string(to)),
	))
	defer span.End()

	if !to.Valid() {
		return nil, errorbank.BadRequest("unknown order status", errorbank.WithDetail("status", to))
	}
	order, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}

	switch to {
	case entity.OrderStatusDeposited:
		return s.deposits.MarkDepositReceived(ctx, code, deposit.Action{Actor: actor, Note: note})
	case entity.OrderStatusCancelled, entity.OrderStatusExpired:
		if err := lifecycle.Check(order, order.Status, to); err != nil {
			return nil, err
		}
		if _, err := s.ledger.ReleaseOrder(ctx, order); err != nil {
			return nil, errorbank.Internal("failed to release reserved stock", errorbank.WithCause(err))
		}
	}

	updated, err := s.machine.Transition(ctx, order, order.Status, to,
		lifecycle.WithActor(actor),
		lifecycle.WithNote(note),
	)
	if err != nil {
		return nil, err
	}
	msg := notification.For(notification.KindStatusUpdate, updated)
	msg.Note = note
	s.notifier.Notify(ctx, msg)
	return updated, nil
}

// MarkCollected records cash taken on delivery for a COD order.
func (s *Service) MarkCollected(ctx context.Context, code, actor string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.MarkCollected", trace.WithAttributes(attribute.String("order.code", code)))
	defer span.End()

	order, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != entity.PaymentMethodCOD || order.Status.Terminal() {
		return nil, errorbank.Conflict("order is not awaiting cash collection",
			errorbank.WithCause(ErrNotCollectable),
			errorbank.WithDetail("status", order.Status),
		)
	}
	if order.PaymentStatus == entity.PaymentStatusPaid {
		return nil, errorbank.Conflict("cash already collected", errorbank.WithCause(ErrAlreadyPaid))
	}
	if order.PaymentStatus.Settled() && order.PaymentStatus != entity.PaymentStatusDeposited {
		return nil, errorbank.Conflict("order is not awaiting cash collection",
			errorbank.WithCause(ErrNotCollectable),
			errorbank.WithDetail("payment_status", order.PaymentStatus),
		)
	}

	patch := entity.PaymentPatch{Expect: order.PaymentStatus, Status: entity.PaymentStatusPaid}
	if order.IsDeposit() && order.DepositReceivedAt == nil {
		at := s.machine.Now()
		patch.DepositReceivedAt = &at
	}
	updated, err := s.machine.UpdatePayment(ctx, order, patch)
	if err != nil {
		return nil, err
	}
	s.logger.Info("cash on delivery collected", zap.String("order_code", code), zap.String("actor", actor))
	return updated, nil
}

// History returns an order's status history, oldest first.
func (s *Service) History(ctx context.Context, code string) ([]entity.OrderStatusHistory, error) {
	order, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.History(ctx, order.ID)
	if err != nil {
		return nil, errorbank.Internal("failed to load order history", errorbank.WithCause(err))
	}
	return history, nil
}

func (s *Service) cancel(ctx context.Context, order *entity.Order, actor, note string) (*entity.Order, error) {
	if err := lifecycle.Check(order, order.Status, entity.OrderStatusCancelled); err != nil {
		return nil, err
	}
	if _, err := s.ledger.ReleaseOrder(ctx, order); err != nil {
		return nil, errorbank.Internal("failed to release reserved stock", errorbank.WithCause(err))
	}
	updated, err := s.machine.Transition(ctx, order, order.Status, entity.OrderStatusCancelled,
		lifecycle.WithActor(actor),
		lifecycle.WithNote(note),
	)
	if err != nil {
		s.logger.Error("stock released but cancellation not recorded", zap.String("order_code", order.Code), zap.Error(err))
		return nil, err
	}
	s.notifier.Notify(ctx, notification.For(notification.KindStatusUpdate, updated))
	return updated, nil
}

// load reads from the store, bypassing the cache, for operations that write.
func (s *Service) load(ctx context.Context, code string) (*entity.Order, error) {
	order, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found", errorbank.WithDetail("code", code))
		}
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	return order, nil
}

func (s *Service) resolve(ctx context.Context, token string) (uuid.UUID, error) {
	id, err := s.tokens.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, trackingrepo.ErrNotFound) || errors.Is(err, trackingrepo.ErrExpired) {
			return uuid.Nil, errorbank.Unauthorized("invalid or expired tracking token", errorbank.WithCause(err))
		}
		return uuid.Nil, errorbank.Internal("failed to resolve tracking token", errorbank.WithCause(err))
	}
	return id, nil
}

func (s *Service) getFromCache(ctx context.Context, code string) (*entity.Order, error) {
	return cache.GetOrder(ctx, s.cache, code)
}

func (s *Service) storeInCache(ctx context.Context, order *entity.Order) error {
	return cache.SetOrder(ctx, s.cache, order, s.cacheTTL)
}
