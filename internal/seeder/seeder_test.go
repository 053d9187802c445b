package seeder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/entity"
	"github.com/Additional-Code/atelier/internal/seeder"
)

type recordingCatalog struct {
	upserted []*entity.Product
	err      error
}

func (c *recordingCatalog) Upsert(_ context.Context, p *entity.Product) error {
	if c.err != nil {
		return c.err
	}
	c.upserted = append(c.upserted, p)
	return nil
}

func TestSeederProducts(t *testing.T) {
	catalog := &recordingCatalog{}
	s := seeder.NewWithCatalog(catalog, zap.NewNop())

	require.NoError(t, s.Products(context.Background()))
	require.Len(t, catalog.upserted, 3)
	for _, p := range catalog.upserted {
		if p.AllowsDeposit {
			assert.True(t, p.DepositConfigured(), p.ID)
		}
	}
}

func TestSeederStopsOnError(t *testing.T) {
	catalog := &recordingCatalog{err: errors.New("db down")}
	s := seeder.NewWithCatalog(catalog, nil)

	require.Error(t, s.Products(context.Background()))
}

func TestSampleProductsUseGivenClock(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range seeder.SampleProducts(now) {
		assert.Equal(t, now, p.CreatedAt)
	}
}
