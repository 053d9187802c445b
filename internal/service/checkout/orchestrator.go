package checkout

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/config"
	"github.com/Additional-Code/atelier/internal/entity"
	"github.com/Additional-Code/atelier/internal/notification"
	"github.com/Additional-Code/atelier/internal/provider"
	"github.com/Additional-Code/atelier/internal/service/inventory"
	"github.com/Additional-Code/atelier/internal/service/lifecycle"
	"github.com/Additional-Code/atelier/internal/validation"
	"github.com/Additional-Code/atelier/pkg/errorbank"
)

var (
	checkoutTracer = otel.Tracer("github.com/Additional-Code/atelier/service/checkout")
	checkoutMeter  = otel.Meter("github.com/Additional-Code/atelier/service/checkout")
)

// Catalog loads products for pricing.
type Catalog interface {
	GetMany(ctx context.Context, ids []string) (map[string]*entity.Product, error)
}

// OrderWriter persists new orders.
type OrderWriter interface {
	Create(ctx context.Context, order *entity.Order, history *entity.OrderStatusHistory) error
}

// TokenIssuer hands out tracking tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, orderID uuid.UUID, ttl time.Duration) (string, error)
}

// Result is a placed order plus what the customer needs to pay for it.
type Result struct {
	Order         *entity.Order
	TrackingToken string
	PayNow        int64
	TransferMemo  string
	ClientSecret  string
}

// Orchestrator turns a cart into a persisted order with reserved stock.
type Orchestrator struct {
	catalog  Catalog
	orders   OrderWriter
	tokens   TokenIssuer
	ledger   *inventory.Ledger
	machine  *lifecycle.Machine
	provider provider.Client
	notifier notification.Notifier
	cfg      config.Checkout
	currency string
	logger   *zap.Logger
	validate *validation.Validator
	placed   metric.Int64Counter
	now      func() time.Time
}

// Params defines dependencies for constructing Orchestrator.
type Params struct {
	fx.In

	Catalog  Catalog
	Orders   OrderWriter
	Tokens   TokenIssuer
	Ledger   *inventory.Ledger
	Machine  *lifecycle.Machine
	Provider provider.Client
	Notifier notification.Notifier
	Config   config.Config
	Logger   *zap.Logger

	// Validator defaults to a private instance when not provided.
	Validator *validation.Validator `optional:"true"`
}

// NewOrchestrator wires a checkout orchestrator.
func NewOrchestrator(p Params) (*Orchestrator, error) {
	placed, err := checkoutMeter.Int64Counter("atelier.checkout.orders",
		metric.WithDescription("Checkout attempts by payment mode and outcome"))
	if err != nil {
		return nil, fmt.Errorf("create checkout counter: %w", err)
	}
	validate := p.Validator
	if validate == nil {
		validate = validation.New()
	}
	return &Orchestrator{
		catalog:  p.Catalog,
		orders:   p.Orders,
		tokens:   p.Tokens,
		ledger:   p.Ledger,
		machine:  p.Machine,
		provider: p.Provider,
		notifier: p.Notifier,
		cfg:      p.Config.Checkout,
		currency: p.Config.Payment.Currency,
		logger:   p.Logger,
		validate: validate,
		placed:   placed,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// PlaceOrder validates and prices the cart, reserves stock and creates the
// order. Either the order exists with its stock reserved, or nothing changed.
func (o *Orchestrator) PlaceOrder(ctx context.Context, req Request) (res *Result, err error) {
	ctx, span := checkoutTracer.Start(ctx, "Orchestrator.PlaceOrder", trace.WithAttributes(
		attribute.String("payment.mode", string(req.PaymentMode)),
		attribute.String("payment.method", string(req.PaymentMethod)),
		attribute.Int("items", len(req.Items)),
	))
	defer span.End()
	defer func() {
		outcome := "placed"
		if err != nil {
			outcome = string(errorbank.From(err).Kind())
			span.SetStatus(codes.Error, outcome)
		}
		o.placed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("mode", string(req.PaymentMode)),
			attribute.String("outcome", outcome),
		))
	}()

	req, err = req.normalize(o.validate)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := o.catalog.GetMany(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return nil, errorbank.Internal("failed to load products", errorbank.WithCause(err))
	}

	order, lines, err := o.build(req, products)
	if err != nil {
		return nil, err
	}

	if err := o.ledger.ReserveAll(ctx, lines); err != nil {
		return nil, err
	}

	history := &entity.OrderStatusHistory{
		OrderID:   order.ID,
		ToStatus:  entity.OrderStatusPending,
		Note:      "order placed",
		CreatedAt: order.CreatedAt,
	}
	if err := o.orders.Create(ctx, order, history); err != nil {
		span.RecordError(err)
		o.ledger.Compensate(ctx, lines)
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}

	res = &Result{Order: order, PayNow: PayNow(order), TransferMemo: order.TransferMemo}

	token, err := o.tokens.Issue(ctx, order.ID, o.cfg.TrackingTokenTTL)
	if err != nil {
		o.logger.Warn("tracking token not issued", zap.String("order_code", order.Code), zap.Error(err))
	}
	res.TrackingToken = token

	if order.PaymentMethod.Online() && res.PayNow > 0 {
		if err := o.openPaymentIntent(ctx, res); err != nil {
			return nil, err
		}
	}

	msg := notification.For(notification.KindOrderConfirmation, res.Order)
	msg.Amount = res.PayNow
	msg.TrackingToken = token
	o.notifier.Notify(ctx, msg)

	o.logger.Info("order placed",
		zap.String("order_code", order.Code),
		zap.String("order_type", string(order.OrderType)),
		zap.Int64("total", order.Total),
		zap.Int64("pay_now", res.PayNow),
	)
	return res, nil
}

func (o *Orchestrator) build(req Request, products map[string]*entity.Product) (*entity.Order, []inventory.Line, error) {
	now := o.now()
	deposit := req.PaymentMode == entity.PaymentModeDeposit

	order := &entity.Order{
		ID:            uuid.New(),
		CustomerName:  req.Customer.Name,
		CustomerEmail: req.Customer.Email,
		CustomerPhone: req.Customer.Phone,
		Shipping:      req.Shipping,
		OrderType:     entity.OrderTypeStandard,
		Status:        entity.OrderStatusPending,
		PaymentStatus: entity.PaymentStatusPending,
		PaymentMethod: req.PaymentMethod,
		PaymentMode:   req.PaymentMode,
		CustomerNote:  req.Note,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	code, err := o.newCode(now)
	if err != nil {
		return nil, nil, errorbank.Internal("failed to generate order code", errorbank.WithCause(err))
	}
	order.Code = code

	lines := make([]inventory.Line, 0, len(req.Items))
	dueHours := 0
	for _, item := range req.Items {
		p, ok := products[item.ProductID]
		if !ok || !p.Active {
			return nil, nil, errorbank.NotFound(fmt.Sprintf("product %s not found", item.ProductID),
				errorbank.WithDetail("product_id", item.ProductID))
		}
		if item.Quantity > p.Stock {
			return nil, nil, errorbank.Conflict(fmt.Sprintf("insufficient stock for %s", p.Name),
				errorbank.WithCause(inventory.ErrOutOfStock),
				errorbank.WithDetails(map[string]any{"product_id": p.ID, "available": p.Stock, "requested": item.Quantity}),
			)
		}

		line := entity.OrderItem{
			OrderID:     order.ID,
			ProductID:   p.ID,
			ProductName: p.Name,
			ProductSlug: p.Slug,
			ImageURL:    p.ImageURL,
			UnitPrice:   p.Price,
			Quantity:    item.Quantity,
			Subtotal:    p.Price * int64(item.Quantity),
		}
		if deposit {
			if !p.AllowsDeposit || !p.DepositConfigured() {
				return nil, nil, errorbank.BadRequest(fmt.Sprintf("%s cannot be reserved with a deposit", p.Name),
					errorbank.WithCause(ErrDepositNotEligible),
					errorbank.WithDetail("product_id", p.ID),
				)
			}
			line.Deposit = UnitDeposit(p) * int64(item.Quantity)
			if p.DepositDueHours > dueHours {
				dueHours = p.DepositDueHours
			}
		}

		order.Items = append(order.Items, line)
		order.Subtotal += line.Subtotal
		order.DepositAmount += line.Deposit
		lines = append(lines, inventory.Line{ProductID: p.ID, Name: p.Name, Quantity: item.Quantity})
	}

	order.ShippingFee = o.cfg.ShippingFee
	order.Tax = Tax(order.Subtotal, o.cfg.TaxRateBPS)
	order.Total = order.Subtotal + order.ShippingFee + order.Tax - order.Discount

	if deposit {
		if dueHours <= 0 {
			dueHours = o.cfg.DepositDueHours
		}
		due := now.Add(time.Duration(dueHours) * time.Hour)
		order.OrderType = entity.OrderTypeDepositReservation
		order.PaymentStatus = entity.PaymentStatusDepositPending
		order.DepositDueAt = &due
		order.RemainingAmount = order.Total - order.DepositAmount
		if order.PaymentMethod == entity.PaymentMethodBankTransfer {
			order.TransferMemo = TransferMemo(o.cfg.TransferMemoPrefix, order.Code)
		}
	}
	return order, lines, nil
}

// openPaymentIntent asks the provider to collect the pay-now amount. When the
// provider is down the order is cancelled and its stock returned.
func (o *Orchestrator) openPaymentIntent(ctx context.Context, res *Result) error {
	order := res.Order
	intent, err := o.provider.CreatePaymentIntent(ctx, provider.IntentRequest{
		OrderID:        order.ID.String(),
		OrderCode:      order.Code,
		Amount:         res.PayNow,
		Currency:       o.currency,
		Email:          order.CustomerEmail,
		IdempotencyKey: "checkout-" + order.ID.String(),
	})
	if err != nil {
		o.logger.Error("payment intent failed, cancelling order", zap.String("order_code", order.Code), zap.Error(err))
		if _, cancelErr := o.machine.Transition(ctx, order, entity.OrderStatusPending, entity.OrderStatusCancelled,
			lifecycle.WithNote("payment provider unavailable")); cancelErr != nil {
			o.logger.Error("cancel after provider failure", zap.String("order_code", order.Code), zap.Error(cancelErr))
		}
		if _, releaseErr := o.ledger.ReleaseOrder(ctx, order); releaseErr != nil {
			o.logger.Error("release after provider failure", zap.String("order_code", order.Code), zap.Error(releaseErr))
		}
		return errorbank.BadGateway("payment provider unavailable", errorbank.WithCause(err))
	}

	updated, err := o.machine.UpdatePayment(ctx, order, entity.PaymentPatch{PaymentReference: intent.ID})
	if err != nil {
		o.logger.Error("store payment reference", zap.String("order_code", order.Code), zap.Error(err))
	} else {
		res.Order = updated
	}
	res.ClientSecret = intent.ClientSecret
	return nil
}

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func (o *Orchestrator) newCode(now time.Time) (string, error) {
	raw := make([]byte, 5)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	prefix := o.cfg.OrderCodePrefix
	if prefix == "" {
		prefix = "AT"
	}
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), codeEncoding.EncodeToString(raw)), nil
}

// TransferMemo is the bank transfer reference customers quote for a deposit.
// It is derived from the order code alone so proofs can be matched later.
func TransferMemo(prefix, code string) string {
	memo := strings.ReplaceAll(code, "-", "")
	if prefix == "" {
		return memo
	}
	return prefix + " " + memo
}
