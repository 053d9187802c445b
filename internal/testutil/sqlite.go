package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/Additional-Code/atelier/internal/database"
	"github.com/Additional-Code/atelier/internal/entity"
)

// Models lists every persisted entity in creation order.
func Models() []any {
	return []any{
		(*entity.Product)(nil),
		(*entity.Order)(nil),
		(*entity.OrderItem)(nil),
		(*entity.OrderStatusHistory)(nil),
		(*entity.PaymentEvent)(nil),
		(*entity.Refund)(nil),
		(*entity.DepositTransferProof)(nil),
		(*entity.TrackingToken)(nil),
	}
}

// SQLite opens an in-memory database with every table created and returns
// it as both writer and reader.
func SQLite(t *testing.T) *database.Connections {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range Models() {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}

	return &database.Connections{Writer: db, Reader: db}
}
