package inventory

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
	"github.com/Additional-Code/atelier/pkg/errorbank"
)

var (
	ledgerTracer = otel.Tracer("github.com/Additional-Code/atelier/service/inventory")
	ledgerMeter  = otel.Meter("github.com/Additional-Code/atelier/service/inventory")
)

// ErrOutOfStock is returned when a product cannot cover the requested quantity.
var ErrOutOfStock = errors.New("insufficient stock")

const casAttempts = 3

// Store is the stock counter storage.
type Store interface {
	DecrementIfAvailable(ctx context.Context, productID string, qty int) (bool, error)
	Increment(ctx context.Context, productID string, qty int) error
	Stock(ctx context.Context, productID string) (int, error)
	CompareAndSetStock(ctx context.Context, productID string, prev, next int) (bool, error)
}

// Claims guards an order's reserved stock so each line is released at most
// once.
type Claims interface {
	ClaimStockRelease(ctx context.Context, orderID uuid.UUID) (bool, error)
	UnclaimStockRelease(ctx context.Context, orderID uuid.UUID) (bool, error)
	ClaimLineRelease(ctx context.Context, orderID uuid.UUID, productID string) (bool, error)
	UnclaimLineRelease(ctx context.Context, orderID uuid.UUID, productID string) (bool, error)
}

// Line is a quantity of one product.
type Line struct {
	ProductID string
	Name      string
	Quantity  int
}

// LinesOf lists the stock held by an order.
func LinesOf(order *entity.Order) []Line {
	lines := make([]Line, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, Line{ProductID: item.ProductID, Name: item.ProductName, Quantity: item.Quantity})
	}
	return lines
}

// Ledger reserves and releases product stock.
type Ledger struct {
	store           Store
	claims          Claims
	logger          *zap.Logger
	releaseFailures metric.Int64Counter
}

// Params defines dependencies for constructing Ledger.
type Params struct {
	fx.In

	Store  Store
	Claims Claims
	Logger *zap.Logger
}

// NewLedger wires a ledger over the stock store.
func NewLedger(p Params) (*Ledger, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	failures, err := ledgerMeter.Int64Counter("atelier.inventory.release_failures",
		metric.WithDescription("Stock releases that failed after the fallback path"))
	if err != nil {
		return nil, fmt.Errorf("create release counter: %w", err)
	}
	return &Ledger{store: p.Store, claims: p.Claims, logger: logger, releaseFailures: failures}, nil
}

// Reserve takes qty units of the product, failing with a conflict naming the
// product when stock is short.
func (l *Ledger) Reserve(ctx context.Context, line Line) error {
	ctx, span := ledgerTracer.Start(ctx, "Ledger.Reserve", trace.WithAttributes(
		attribute.String("product.id", line.ProductID),
		attribute.Int("quantity", line.Quantity),
	))
	defer span.End()

	if line.Quantity <= 0 {
		return errorbank.BadRequest("quantity must be positive", errorbank.WithDetail("product_id", line.ProductID))
	}
	ok, err := l.store.DecrementIfAvailable(ctx, line.ProductID, line.Quantity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decrement failed")
		return errorbank.Internal("failed to reserve stock", errorbank.WithCause(err))
	}
	if !ok {
		span.SetStatus(codes.Error, "out of stock")
		return outOfStock(line)
	}
	return nil
}

// Release returns qty units to the product. A failed increment falls back to
// a read-then-compare-and-set; only when that fails too is an error returned.
func (l *Ledger) Release(ctx context.Context, line Line) error {
	ctx, span := ledgerTracer.Start(ctx, "Ledger.Release", trace.WithAttributes(
		attribute.String("product.id", line.ProductID),
		attribute.Int("quantity", line.Quantity),
	))
	defer span.End()

	err := l.store.Increment(ctx, line.ProductID, line.Quantity)
	if err == nil {
		return nil
	}
	l.logger.Warn("stock increment failed, trying compare-and-set",
		zap.String("product_id", line.ProductID), zap.Int("quantity", line.Quantity), zap.Error(err))

	backoff := retry.WithMaxRetries(casAttempts-1, retry.NewConstant(10*time.Millisecond))
	fallbackErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
		current, err := l.store.Stock(ctx, line.ProductID)
		if err != nil {
			return err
		}
		ok, err := l.store.CompareAndSetStock(ctx, line.ProductID, current, current+line.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(errors.New("stock changed during release"))
		}
		return nil
	})
	if fallbackErr != nil {
		span.RecordError(fallbackErr)
		span.SetStatus(codes.Error, "release failed")
		l.releaseFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("product.id", line.ProductID)))
		l.logger.Error("stock release failed",
			zap.String("product_id", line.ProductID), zap.Int("quantity", line.Quantity), zap.Error(fallbackErr))
		return fmt.Errorf("release %s: %w", line.ProductID, errors.Join(err, fallbackErr))
	}
	return nil
}

// ReserveAll reserves every line or none. Lines already taken when a later
// one fails are handed back in reverse order; failures there are only logged
// because the reservation error is the one the caller must see.
func (l *Ledger) ReserveAll(ctx context.Context, lines []Line) error {
	for i, line := range lines {
		if err := l.Reserve(ctx, line); err != nil {
			l.compensate(ctx, lines[:i])
			return err
		}
	}
	return nil
}

// Compensate hands back lines taken by a reservation whose surrounding
// operation failed.
func (l *Ledger) Compensate(ctx context.Context, lines []Line) {
	l.compensate(ctx, lines)
}

func (l *Ledger) compensate(ctx context.Context, lines []Line) {
	for i := len(lines) - 1; i >= 0; i-- {
		if err := l.Release(ctx, lines[i]); err != nil {
			l.logger.Error("reservation compensation failed",
				zap.String("product_id", lines[i].ProductID), zap.Error(err))
		}
	}
}

// ReleaseAll releases every line and joins the failures.
func (l *Ledger) ReleaseAll(ctx context.Context, lines []Line) error {
	var errs []error
	for _, line := range lines {
		if err := l.Release(ctx, line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReleaseOrder returns the order's reserved stock unless it was already
// returned. Each line is claimed on its own before it is incremented, so a
// retry after a partial failure only returns the lines still held. It
// reports whether this call released anything.
func (l *Ledger) ReleaseOrder(ctx context.Context, order *entity.Order) (bool, error) {
	ctx, span := ledgerTracer.Start(ctx, "Ledger.ReleaseOrder", trace.WithAttributes(attribute.String("order.code", order.Code)))
	defer span.End()

	claimed, err := l.claims.ClaimStockRelease(ctx, order.ID)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("claim stock release: %w", err)
	}

	var (
		returned, earlier int
		errs              []error
	)
	for _, line := range LinesOf(order) {
		won, err := l.claims.ClaimLineRelease(ctx, order.ID, line.ProductID)
		if err != nil {
			errs = append(errs, fmt.Errorf("claim %s: %w", line.ProductID, err))
			continue
		}
		if !won {
			earlier++
			continue
		}
		if err := l.Release(ctx, line); err != nil {
			errs = append(errs, err)
			if _, unclaimErr := l.claims.UnclaimLineRelease(ctx, order.ID, line.ProductID); unclaimErr != nil {
				l.logger.Error("line release claim could not be reverted",
					zap.String("order_code", order.Code),
					zap.String("product_id", line.ProductID),
					zap.Error(unclaimErr),
				)
			}
			continue
		}
		returned++
	}

	// The order flag means some stock went back. Keep it when any line did.
	if claimed && returned == 0 && earlier == 0 && len(errs) > 0 {
		if _, unclaimErr := l.claims.UnclaimStockRelease(ctx, order.ID); unclaimErr != nil {
			l.logger.Error("stock release claim could not be reverted",
				zap.String("order_code", order.Code), zap.Error(unclaimErr))
		}
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "release failed")
		return returned > 0, err
	}
	if returned == 0 {
		l.logger.Debug("order stock already released", zap.String("order_code", order.Code))
		return false, nil
	}
	l.logger.Info("order stock released", zap.String("order_code", order.Code), zap.Int("lines", returned))
	return true, nil
}

// ReacquireOrder reserves the lines released earlier again, e.g. when a
// payment lands after the order had been given up on. Lines still held are
// left alone.
func (l *Ledger) ReacquireOrder(ctx context.Context, order *entity.Order) error {
	ctx, span := ledgerTracer.Start(ctx, "Ledger.ReacquireOrder", trace.WithAttributes(attribute.String("order.code", order.Code)))
	defer span.End()

	unclaimed, err := l.claims.UnclaimStockRelease(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("revert stock release: %w", err)
	}
	if !unclaimed {
		return nil
	}

	var (
		taken   []Line
		failure error
	)
	for _, line := range LinesOf(order) {
		won, err := l.claims.UnclaimLineRelease(ctx, order.ID, line.ProductID)
		if err != nil {
			failure = fmt.Errorf("revert line release %s: %w", line.ProductID, err)
			break
		}
		if !won {
			continue
		}
		if err := l.Reserve(ctx, line); err != nil {
			l.restoreLineClaim(ctx, order, line)
			failure = err
			break
		}
		taken = append(taken, line)
	}
	if failure == nil {
		return nil
	}

	span.RecordError(failure)
	span.SetStatus(codes.Error, "reserve failed")
	for i := len(taken) - 1; i >= 0; i-- {
		if err := l.Release(ctx, taken[i]); err != nil {
			l.logger.Error("reservation compensation failed",
				zap.String("product_id", taken[i].ProductID), zap.Error(err))
			continue
		}
		l.restoreLineClaim(ctx, order, taken[i])
	}
	if _, claimErr := l.claims.ClaimStockRelease(ctx, order.ID); claimErr != nil {
		l.logger.Error("stock release claim could not be restored",
			zap.String("order_code", order.Code), zap.Error(claimErr))
	}
	return failure
}

func (l *Ledger) restoreLineClaim(ctx context.Context, order *entity.Order, line Line) {
	if _, err := l.claims.ClaimLineRelease(ctx, order.ID, line.ProductID); err != nil {
		l.logger.Error("line release claim could not be restored",
			zap.String("order_code", order.Code),
			zap.String("product_id", line.ProductID),
			zap.Error(err),
		)
	}
}

func outOfStock(line Line) error {
	name := line.Name
	if name == "" {
		name = line.ProductID
	}
	return errorbank.Conflict(fmt.Sprintf("insufficient stock for %s", name),
		errorbank.WithCause(ErrOutOfStock),
		errorbank.WithDetail("product_id", line.ProductID),
	)
}
