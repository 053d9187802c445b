package seeder

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/entity"
	productrepo "github.com/Additional-Code/atelier/internal/repository/product"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Catalog is the set of upserts applied by Products.
type Catalog interface {
	Upsert(ctx context.Context, p *entity.Product) error
}

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	catalog Catalog
	logger  *zap.Logger
	now     func() time.Time
}

// New constructs a Seeder writing through the product repository.
func New(products *productrepo.Repository, logger *zap.Logger) *Seeder {
	return NewWithCatalog(products, logger)
}

// NewWithCatalog constructs a Seeder against any catalog store.
func NewWithCatalog(catalog Catalog, logger *zap.Logger) *Seeder {
	return &Seeder{
		catalog: catalog,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SampleProducts returns the demo catalog: one plain item, one percentage
// deposit item and one fixed deposit item.
func SampleProducts(now time.Time) []entity.Product {
	return []entity.Product{
		{
			ID: "prod-linen-shirt", Slug: "linen-shirt", Name: "Linen Shirt",
			Price: 450000, Stock: 25, Active: true,
			CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "prod-silk-ao-dai", Slug: "silk-ao-dai", Name: "Tailored Silk Ao Dai",
			Price: 2500000, Stock: 5, Active: true,
			AllowsDeposit: true, DepositType: entity.DepositTypePercent, DepositPercentage: 30,
			DepositDueHours: 48,
			CreatedAt:       now, UpdatedAt: now,
		},
		{
			ID: "prod-wool-coat", Slug: "wool-coat", Name: "Made-to-measure Wool Coat",
			Price: 4200000, Stock: 3, Active: true,
			AllowsDeposit: true, DepositType: entity.DepositTypeFixed, DepositFixedAmount: 1000000,
			CreatedAt: now, UpdatedAt: now,
		},
	}
}

// Products upserts the demo catalog.
func (s *Seeder) Products(ctx context.Context) error {
	samples := SampleProducts(s.now())
	for i := range samples {
		if err := s.catalog.Upsert(ctx, &samples[i]); err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded products", zap.Int("count", len(samples)))
	}
	return nil
}
