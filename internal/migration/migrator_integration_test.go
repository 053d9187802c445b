//go:build integration

package migration_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/database"
	"github.com/Additional-Code/atelier/internal/entity"
	"github.com/Additional-Code/atelier/internal/migration"
	orderrepo "github.com/Additional-Code/atelier/internal/repository/order"
	paymentrepo "github.com/Additional-Code/atelier/internal/repository/payment"
	productrepo "github.com/Additional-Code/atelier/internal/repository/product"
	"github.com/Additional-Code/atelier/internal/seeder"
	"github.com/Additional-Code/atelier/internal/testutil"
)

func postgresConnections(t *testing.T) *database.Connections {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("atelier"),
		tcpostgres.WithUsername("atelier"),
		tcpostgres.WithPassword("atelier"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db := bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return &database.Connections{Writer: db, Reader: db}
}

func TestMigrationsAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	conns := postgresConnections(t)

	cfg := testutil.Config()
	cfg.Database.Driver = "postgres"
	mig, err := migration.New(cfg, conns, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, mig.Up(ctx))

	products := productrepo.NewRepository(conns)
	require.NoError(t, seeder.New(products, zap.NewNop()).Products(ctx))

	now := time.Now().UTC().Truncate(time.Second)
	orders := orderrepo.NewRepository(conns)
	overdue := testutil.Reservation("AT-9001", "prod-silk-ao-dai", 2500000, 750000, now.Add(-time.Hour), now)
	fresh := testutil.Reservation("AT-9002", "prod-silk-ao-dai", 2500000, 750000, now.Add(time.Hour), now)
	for _, o := range []*entity.Order{overdue, fresh} {
		require.NoError(t, orders.Create(ctx, o, &entity.OrderStatusHistory{ToStatus: o.Status, CreatedAt: now}))
	}

	due, err := orders.ListOverdueDeposits(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "AT-9001", due[0].Code)
	require.Len(t, due[0].Items, 1)

	payments := paymentrepo.NewRepository(conns)
	_, err = payments.UpsertRefund(ctx, &entity.Refund{ID: "re_1", OrderID: overdue.ID, Amount: 1000, Status: entity.RefundStatusSucceeded})
	require.NoError(t, err)
	prev, err := payments.UpsertRefund(ctx, &entity.Refund{ID: "re_1", OrderID: overdue.ID, Status: entity.RefundStatusPending})
	require.NoError(t, err)
	assert.Equal(t, entity.RefundStatusSucceeded, prev)

	require.NoError(t, mig.Down(ctx, 0, true))
}
