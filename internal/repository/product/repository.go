package product

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/atelier/internal/database"
	"github.com/Additional-Code/atelier/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/atelier/repository/product")

// ErrNotFound is returned when a product is missing.
var ErrNotFound = errors.New("product not found")

// Repository reads catalog entries and mutates their stock counters.
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

// GetMany loads the given products keyed by id. Missing ids are simply absent
// from the result.
func (r *Repository) GetMany(ctx context.Context, ids []string) (map[string]*entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.GetMany", trace.WithAttributes(attribute.Int("product.count", len(ids))))
	defer span.End()

	out := make(map[string]*entity.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []*entity.Product
	if err := r.writer.NewSelect().Model(&products).Where("p.id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// Upsert inserts or refreshes a catalog entry; used by the seeder.
func (r *Repository) Upsert(ctx context.Context, p *entity.Product) error {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.Upsert", trace.WithAttributes(attribute.String("product.id", p.ID)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(p).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("price = EXCLUDED.price").
		Set("stock = EXCLUDED.stock").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
	}
	return err
}

// DecrementIfAvailable subtracts qty only while the stock covers it and
// reports whether the row was updated. Two checkouts racing for the last unit
// cannot both win.
func (r *Repository) DecrementIfAvailable(ctx context.Context, productID string, qty int) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.DecrementIfAvailable", trace.WithAttributes(
		attribute.String("product.id", productID),
		attribute.Int("quantity", qty),
	))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Product)(nil)).
		Set("stock = stock - ?", qty).
		Set("updated_at = ?", r.now()).
		Where("id = ?", productID).
		Where("stock >= ?", qty).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Increment adds qty to the stock counter atomically.
func (r *Repository) Increment(ctx context.Context, productID string, qty int) error {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.Increment", trace.WithAttributes(
		attribute.String("product.id", productID),
		attribute.Int("quantity", qty),
	))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Product)(nil)).
		Set("stock = stock + ?", qty).
		Set("updated_at = ?", r.now()).
		Where("id = ?", productID).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Stock reads the current stock counter.
func (r *Repository) Stock(ctx context.Context, productID string) (int, error) {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.Stock", trace.WithAttributes(attribute.String("product.id", productID)))
	defer span.End()

	var stock int
	err := r.writer.NewSelect().Model((*entity.Product)(nil)).Column("stock").Where("id = ?", productID).Scan(ctx, &stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return 0, err
	}
	return stock, nil
}

// CompareAndSetStock writes next only if the counter still equals prev.
func (r *Repository) CompareAndSetStock(ctx context.Context, productID string, prev, next int) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.CompareAndSetStock", trace.WithAttributes(attribute.String("product.id", productID)))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Product)(nil)).
		Set("stock = ?", next).
		Set("updated_at = ?", r.now()).
		Where("id = ?", productID).
		Where("stock = ?", prev).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
