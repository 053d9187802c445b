package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/cache"
	"github.com/Additional-Code/atelier/internal/entity"
	"github.com/Additional-Code/atelier/internal/notification"
	"github.com/Additional-Code/atelier/internal/service/deposit"
	"github.com/Additional-Code/atelier/internal/service/inventory"
	"github.com/Additional-Code/atelier/internal/service/lifecycle"
	"github.com/Additional-Code/atelier/internal/service/order"
	"github.com/Additional-Code/atelier/internal/testutil"
	"github.com/Additional-Code/atelier/pkg/errorbank"
)

type fixture struct {
	store    *testutil.Store
	cache    *testutil.Cache
	clock    *testutil.Clock
	notifier *testutil.Notifier
	svc      *order.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewStore()
	clock := testutil.NewClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	store.Now = clock.Now
	memo := testutil.NewCache()
	notifier := &testutil.Notifier{}

	machine := lifecycle.NewMachine(lifecycle.Params{Store: store, Cache: memo, Logger: zap.NewNop()}).WithClock(clock.Now)
	ledger, err := inventory.NewLedger(inventory.Params{Store: store, Claims: store, Logger: zap.NewNop()})
	require.NoError(t, err)
	deposits := deposit.NewManager(deposit.Params{
		Orders:   store,
		Proofs:   store.Proofs(),
		Tokens:   store,
		Ledger:   ledger,
		Machine:  machine,
		Notifier: notifier,
		Logger:   zap.NewNop(),
	})

	cfg := testutil.Config()
	cfg.Cache.DefaultTTL = time.Minute
	svc := order.NewService(order.Params{
		Repository: store,
		Tokens:     store,
		Deposits:   deposits,
		Machine:    machine,
		Ledger:     ledger,
		Notifier:   notifier,
		Cache:      memo,
		Config:     cfg,
		Logger:     zap.NewNop(),
	})
	return &fixture{store: store, cache: memo, clock: clock, notifier: notifier, svc: svc}
}

func (f *fixture) put(code string, method entity.PaymentMethod, status entity.OrderStatus, payment entity.PaymentStatus) *entity.Order {
	o := &entity.Order{
		ID:            uuid.New(),
		Code:          code,
		Total:         300_000,
		Subtotal:      300_000,
		OrderType:     entity.OrderTypeStandard,
		Status:        status,
		PaymentStatus: payment,
		PaymentMethod: method,
		PaymentMode:   entity.PaymentModeFull,
		Items:         []entity.OrderItem{{ProductID: "P1", ProductName: "Lens", Quantity: 1, UnitPrice: 300_000}},
	}
	if method == entity.PaymentMethodCOD {
		o.PaymentMode = entity.PaymentModeCOD
	}
	f.store.PutOrder(o)
	return o
}

func TestGetCachesAndTransitionsEvict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.put("AT-GET", entity.PaymentMethodCOD, entity.OrderStatusPending, entity.PaymentStatusPending)

	got, err := f.svc.Get(ctx, "AT-GET")
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusPending, got.Status)
	assert.True(t, f.cache.Has(cache.OrderKey("AT-GET")))

	_, err = f.svc.Get(ctx, "AT-GET")
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.Hits)

	_, err = f.svc.Transition(ctx, "AT-GET", entity.OrderStatusConfirmed, "admin-1", "")
	require.NoError(t, err)
	assert.False(t, f.cache.Has(cache.OrderKey("AT-GET")))

	got, err = f.svc.Get(ctx, "AT-GET")
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusConfirmed, got.Status)
}

func TestGetUnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), "AT-NOPE")
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}

func TestGetExpiresOverdueReservation(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(entity.Product{ID: "P1", Stock: 0})
	due := f.clock.Now().Add(time.Hour)
	o := &entity.Order{
		ID:            uuid.New(),
		Code:          "AT-DUE",
		OrderType:     entity.OrderTypeDepositReservation,
		Status:        entity.OrderStatusPending,
		PaymentStatus: entity.PaymentStatusDepositPending,
		PaymentMethod: entity.PaymentMethodBankTransfer,
		PaymentMode:   entity.PaymentModeDeposit,
		DepositAmount: 50_000,
		DepositDueAt:  &due,
		Items:         []entity.OrderItem{{ProductID: "P1", Quantity: 1}},
	}
	f.store.PutOrder(o)

	f.clock.Advance(2 * time.Hour)
	got, err := f.svc.Get(context.Background(), "AT-DUE")
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusExpired, got.Status)
	assert.Equal(t, 1, f.store.StockOf("P1"))
	assert.Equal(t, entity.OrderStatusExpired, f.store.Order(o.ID).Status)
}

func TestTrackReturnsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.put("AT-TRACK", entity.PaymentMethodCOD, entity.OrderStatusPending, entity.PaymentStatusPending)
	token, err := f.store.Issue(ctx, o.ID, time.Hour)
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, "AT-TRACK", entity.OrderStatusConfirmed, "admin-1", "stock checked")
	require.NoError(t, err)

	tracked, err := f.svc.Track(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "AT-TRACK", tracked.Order.Code)
	require.Len(t, tracked.History, 1)
	assert.Equal(t, "stock checked", tracked.History[0].Note)

	f.clock.Advance(2 * time.Hour)
	_, err = f.svc.Track(ctx, token)
	assert.True(t, errorbank.IsKind(err, errorbank.KindUnauthorized))
}

func TestCancelAbandonedReleasesStockOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddProduct(entity.Product{ID: "P1", Stock: 0})
	o := f.put("AT-ABANDON", entity.PaymentMethodCard, entity.OrderStatusPending, entity.PaymentStatusPending)
	token, err := f.store.Issue(ctx, o.ID, time.Hour)
	require.NoError(t, err)

	cancelled, err := f.svc.CancelAbandoned(ctx, "AT-ABANDON", token)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 1, f.store.StockOf("P1"))

	again, err := f.svc.CancelAbandoned(ctx, "AT-ABANDON", token)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusCancelled, again.Status)
	assert.Equal(t, 1, f.store.StockOf("P1"))
	assert.Len(t, f.store.HistoryOf(o.ID), 1)
	assert.Equal(t, "customer", f.store.HistoryOf(o.ID)[0].ActorID)
}

func TestCancelAbandonedRejectsPaidOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.put("AT-PAID", entity.PaymentMethodCard, entity.OrderStatusConfirmed, entity.PaymentStatusPaid)
	token, err := f.store.Issue(ctx, o.ID, time.Hour)
	require.NoError(t, err)

	_, err = f.svc.CancelAbandoned(ctx, "AT-PAID", token)
	require.Error(t, err)
	assert.ErrorIs(t, err, order.ErrAlreadyPaid)
	assert.True(t, errorbank.IsKind(err, errorbank.KindConflict))

	other := f.put("AT-OTHER", entity.PaymentMethodCard, entity.OrderStatusPending, entity.PaymentStatusPending)
	_, err = f.svc.CancelAbandoned(ctx, other.Code, token)
	assert.True(t, errorbank.IsKind(err, errorbank.KindUnauthorized))
}

func TestAdminTransitionRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddProduct(entity.Product{ID: "P1", Stock: 4})
	f.put("AT-ADMIN", entity.PaymentMethodCOD, entity.OrderStatusConfirmed, entity.PaymentStatusPending)

	_, err := f.svc.Transition(ctx, "AT-ADMIN", entity.OrderStatusDelivered, "admin-1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, lifecycle.ErrIllegalTransition)

	_, err = f.svc.Transition(ctx, "AT-ADMIN", "bogus", "admin-1", "")
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))

	updated, err := f.svc.Transition(ctx, "AT-ADMIN", entity.OrderStatusProcessing, "admin-1", "")
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusProcessing, updated.Status)

	updated, err = f.svc.Transition(ctx, "AT-ADMIN", entity.OrderStatusCancelled, "admin-1", "out of stock at supplier")
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusCancelled, updated.Status)
	assert.Equal(t, 5, f.store.StockOf("P1"))

	history, err := f.svc.History(ctx, "AT-ADMIN")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entity.OrderStatusCancelled, history[1].ToStatus)
	assert.Equal(t, []notification.Kind{notification.KindStatusUpdate, notification.KindStatusUpdate}, f.notifier.Kinds())
}

func TestMarkCollected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.put("AT-COD", entity.PaymentMethodCOD, entity.OrderStatusDelivered, entity.PaymentStatusPending)
	f.put("AT-CARD", entity.PaymentMethodCard, entity.OrderStatusConfirmed, entity.PaymentStatusPending)

	updated, err := f.svc.MarkCollected(ctx, "AT-COD", "courier-7")
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusPaid, updated.PaymentStatus)

	_, err = f.svc.MarkCollected(ctx, "AT-COD", "courier-7")
	assert.ErrorIs(t, err, order.ErrAlreadyPaid)

	_, err = f.svc.MarkCollected(ctx, "AT-CARD", "courier-7")
	assert.ErrorIs(t, err, order.ErrNotCollectable)
}
