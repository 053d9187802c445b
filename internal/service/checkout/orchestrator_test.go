package checkout_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/entity"
	"github.com/Additional-Code/atelier/internal/notification"
	"github.com/Additional-Code/atelier/internal/provider"
	"github.com/Additional-Code/atelier/internal/service/checkout"
	"github.com/Additional-Code/atelier/internal/service/inventory"
	"github.com/Additional-Code/atelier/internal/service/lifecycle"
	"github.com/Additional-Code/atelier/internal/testutil"
	"github.com/Additional-Code/atelier/pkg/errorbank"
)

type fixture struct {
	store    *testutil.Store
	notifier *testutil.Notifier
	provider *testutil.Provider
	orch     *checkout.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewStore()
	notifier := &testutil.Notifier{}
	prov := &testutil.Provider{}
	logger := zap.NewNop()

	ledger, err := inventory.NewLedger(inventory.Params{Store: store, Claims: store, Logger: logger})
	require.NoError(t, err)
	machine := lifecycle.NewMachine(lifecycle.Params{Store: store, Logger: logger})

	orch, err := checkout.NewOrchestrator(checkout.Params{
		Catalog:  store,
		Orders:   store,
		Tokens:   store,
		Ledger:   ledger,
		Machine:  machine,
		Provider: prov,
		Notifier: notifier,
		Config:   testutil.Config(),
		Logger:   logger,
	})
	require.NoError(t, err)
	return &fixture{store: store, notifier: notifier, provider: prov, orch: orch}
}

func camera() entity.Product {
	return entity.Product{
		ID:                "P1",
		Slug:              "leica-m6",
		Name:              "Leica M6",
		Price:             1_000_000,
		Stock:             2,
		Active:            true,
		AllowsDeposit:     true,
		DepositType:       entity.DepositTypePercent,
		DepositPercentage: 20,
	}
}

func request(mode entity.PaymentMode, method entity.PaymentMethod, items ...checkout.LineItem) checkout.Request {
	return checkout.Request{
		Items:         items,
		Customer:      checkout.Customer{Name: "Linh", Email: "linh@example.com", Phone: "+84900000000"},
		Shipping:      entity.Address{Line1: "12 Hang Bac", City: "Hanoi", Country: "VN"},
		PaymentMethod: method,
		PaymentMode:   mode,
	}
}

func TestPlaceOrderFullCOD(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(camera())

	res, err := f.orch.PlaceOrder(context.Background(),
		request(entity.PaymentModeFull, entity.PaymentMethodCOD, checkout.LineItem{ProductID: "P1", Quantity: 2}))
	require.NoError(t, err)

	order := res.Order
	assert.Equal(t, entity.OrderStatusPending, order.Status)
	assert.Equal(t, entity.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, entity.OrderTypeStandard, order.OrderType)
	assert.EqualValues(t, 2_000_000, order.Total)
	assert.Zero(t, order.DepositAmount)
	assert.Zero(t, res.PayNow)
	assert.Equal(t, 0, f.store.StockOf("P1"))
	assert.NotEmpty(t, res.TrackingToken)
	assert.Empty(t, f.provider.Intents, "cod never opens a payment intent")

	history := f.store.HistoryOf(order.ID)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].FromStatus)
	assert.Equal(t, entity.OrderStatusPending, history[0].ToStatus)

	require.Equal(t, []notification.Kind{notification.KindOrderConfirmation}, f.notifier.Kinds())
	assert.Equal(t, res.TrackingToken, f.notifier.Messages()[0].TrackingToken)
}

func TestPlaceOrderDepositPercent(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(camera())

	res, err := f.orch.PlaceOrder(context.Background(),
		request(entity.PaymentModeDeposit, entity.PaymentMethodCOD, checkout.LineItem{ProductID: "P1", Quantity: 2}))
	require.NoError(t, err)

	order := res.Order
	assert.Equal(t, entity.OrderTypeDepositReservation, order.OrderType)
	assert.EqualValues(t, 400_000, order.DepositAmount)
	assert.EqualValues(t, 1_600_000, order.RemainingAmount)
	assert.Equal(t, order.Total, order.DepositAmount+order.RemainingAmount)
	assert.Equal(t, entity.PaymentStatusDepositPending, order.PaymentStatus)
	require.NotNil(t, order.DepositDueAt)
	assert.WithinDuration(t, order.CreatedAt.Add(24*time.Hour), *order.DepositDueAt, time.Second)
	assert.Zero(t, res.PayNow, "a deposit taken on delivery is not paid now")
}

func TestPlaceOrderDepositUsesLongestDueHoursAndFixedAmount(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(camera())
	f.store.AddProduct(entity.Product{
		ID: "P2", Name: "Lens", Price: 300_000, Stock: 3, Active: true,
		AllowsDeposit: true, DepositType: entity.DepositTypeFixed, DepositFixedAmount: 50_000, DepositDueHours: 72,
	})

	res, err := f.orch.PlaceOrder(context.Background(), request(entity.PaymentModeDeposit, entity.PaymentMethodBankTransfer,
		checkout.LineItem{ProductID: "P1", Quantity: 1},
		checkout.LineItem{ProductID: "P2", Quantity: 2},
	))
	require.NoError(t, err)

	order := res.Order
	assert.EqualValues(t, 200_000+100_000, order.DepositAmount)
	assert.WithinDuration(t, order.CreatedAt.Add(72*time.Hour), *order.DepositDueAt, time.Second)
	assert.Equal(t, checkout.TransferMemo("DEPOSIT", order.Code), res.TransferMemo)
	assert.EqualValues(t, 300_000, res.PayNow)
}

func TestPlaceOrderMergesDuplicateLines(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(camera())

	res, err := f.orch.PlaceOrder(context.Background(), request(entity.PaymentModeFull, entity.PaymentMethodCOD,
		checkout.LineItem{ProductID: "P1", Quantity: 1},
		checkout.LineItem{ProductID: "P1", Quantity: 1},
	))
	require.NoError(t, err)
	require.Len(t, res.Order.Items, 1)
	assert.Equal(t, 2, res.Order.Items[0].Quantity)
}

func TestPlaceOrderRejections(t *testing.T) {
	noDeposit := camera()
	noDeposit.AllowsDeposit = false

	unconfigured := camera()
	unconfigured.DepositType = entity.DepositTypeNone

	tests := []struct {
		name    string
		product entity.Product
		req     checkout.Request
		kind    errorbank.Kind
		cause   error
	}{
		{
			name:  "empty cart",
			req:   request(entity.PaymentModeFull, entity.PaymentMethodCOD),
			kind:  errorbank.KindBadRequest,
			cause: checkout.ErrEmptyCart,
		},
		{
			name: "missing city",
			req: func() checkout.Request {
				r := request(entity.PaymentModeFull, entity.PaymentMethodCOD, checkout.LineItem{ProductID: "P1", Quantity: 1})
				r.Shipping.City = " "
				return r
			}(),
			kind:  errorbank.KindBadRequest,
			cause: checkout.ErrValidation,
		},
		{
			name: "malformed email",
			req: func() checkout.Request {
				r := request(entity.PaymentModeFull, entity.PaymentMethodCOD, checkout.LineItem{ProductID: "P1", Quantity: 1})
				r.Customer.Email = "linh.example.com"
				return r
			}(),
			kind:  errorbank.KindBadRequest,
			cause: checkout.ErrValidation,
		},
		{
			name:  "zero quantity",
			req:   request(entity.PaymentModeFull, entity.PaymentMethodCOD, checkout.LineItem{ProductID: "P1", Quantity: 0}),
			kind:  errorbank.KindBadRequest,
			cause: checkout.ErrValidation,
		},
		{
			name:  "unknown payment mode",
			req:   request(entity.PaymentMode("layaway"), entity.PaymentMethodCOD, checkout.LineItem{ProductID: "P1", Quantity: 1}),
			kind:  errorbank.KindBadRequest,
			cause: checkout.ErrValidation,
		},
		{
			name:  "cod mode with card",
			req:   request(entity.PaymentModeCOD, entity.PaymentMethodCard, checkout.LineItem{ProductID: "P1", Quantity: 1}),
			kind:  errorbank.KindBadRequest,
			cause: checkout.ErrValidation,
		},
		{
			name:  "insufficient stock",
			req:   request(entity.PaymentModeFull, entity.PaymentMethodCOD, checkout.LineItem{ProductID: "P1", Quantity: 3}),
			kind:  errorbank.KindConflict,
			cause: inventory.ErrOutOfStock,
		},
		{
			name:    "deposit not allowed",
			product: noDeposit,
			req:     request(entity.PaymentModeDeposit, entity.PaymentMethodCOD, checkout.LineItem{ProductID: "P1", Quantity: 1}),
			kind:    errorbank.KindBadRequest,
			cause:   checkout.ErrDepositNotEligible,
		},
		{
			name:    "deposit not configured",
			product: unconfigured,
			req:     request(entity.PaymentModeDeposit, entity.PaymentMethodCOD, checkout.LineItem{ProductID: "P1", Quantity: 1}),
			kind:    errorbank.KindBadRequest,
			cause:   checkout.ErrDepositNotEligible,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			product := tt.product
			if product.ID == "" {
				product = camera()
			}
			f.store.AddProduct(product)

			_, err := f.orch.PlaceOrder(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errorbank.IsKind(err, tt.kind), "kind: %v", err)
			assert.ErrorIs(t, err, tt.cause)
			assert.Equal(t, product.Stock, f.store.StockOf("P1"), "stock untouched")
			assert.Empty(t, f.notifier.Kinds())
		})
	}
}

func TestValidationErrorsNameTheField(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(camera())

	req := request(entity.PaymentModeFull, entity.PaymentMethodCOD,
		checkout.LineItem{ProductID: "P1", Quantity: 1},
		checkout.LineItem{ProductID: " ", Quantity: 1},
	)
	_, err := f.orch.PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, checkout.ErrValidation)
	assert.Equal(t, "items[1].product_id", errorbank.From(err).Details()["field"])

	req = request(entity.PaymentModeFull, entity.PaymentMethodCOD, checkout.LineItem{ProductID: "P1", Quantity: 1})
	req.Shipping.Country = ""
	_, err = f.orch.PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, checkout.ErrValidation)
	assert.Equal(t, "shipping.country", errorbank.From(err).Details()["field"])
	assert.Equal(t, "shipping.country is required", errorbank.From(err).Message())
}

func TestInsufficientStockNamesProduct(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(camera())

	_, err := f.orch.PlaceOrder(context.Background(),
		request(entity.PaymentModeFull, entity.PaymentMethodCOD, checkout.LineItem{ProductID: "P1", Quantity: 5}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Leica M6")
	assert.Equal(t, "P1", errorbank.From(err).Details()["product_id"])
}

func TestFailedInsertRestoresStock(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(camera())
	f.store.CreateErr = errors.New("insert order_items: constraint violation")

	_, err := f.orch.PlaceOrder(context.Background(),
		request(entity.PaymentModeFull, entity.PaymentMethodCOD, checkout.LineItem{ProductID: "P1", Quantity: 2}))
	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindInternal))
	assert.Equal(t, 2, f.store.StockOf("P1"))
}

func TestCardCheckoutOpensPaymentIntent(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(camera())

	res, err := f.orch.PlaceOrder(context.Background(),
		request(entity.PaymentModeDeposit, entity.PaymentMethodCard, checkout.LineItem{ProductID: "P1", Quantity: 1}))
	require.NoError(t, err)

	require.Len(t, f.provider.Intents, 1)
	intent := f.provider.Intents[0]
	assert.EqualValues(t, 200_000, intent.Amount)
	assert.Equal(t, res.Order.ID.String(), intent.OrderID)
	assert.Equal(t, "pi_test_1", res.Order.PaymentReference)
	assert.Equal(t, "pi_test_1", f.store.Order(res.Order.ID).PaymentReference)
	assert.NotEmpty(t, res.ClientSecret)
}

func TestCardCheckoutProviderFailureCancelsOrder(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(camera())
	f.provider.Err = provider.ErrUnavailable

	_, err := f.orch.PlaceOrder(context.Background(),
		request(entity.PaymentModeFull, entity.PaymentMethodCard, checkout.LineItem{ProductID: "P1", Quantity: 2}))
	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadGateway))
	assert.ErrorIs(t, err, provider.ErrUnavailable)
	assert.Equal(t, 2, f.store.StockOf("P1"))
}

func TestUnitDeposit(t *testing.T) {
	tests := []struct {
		name    string
		product entity.Product
		want    int64
	}{
		{"percent rounds", entity.Product{Price: 999, DepositType: entity.DepositTypePercent, DepositPercentage: 15}, 150},
		{"fixed", entity.Product{Price: 1000, DepositType: entity.DepositTypeFixed, DepositFixedAmount: 300}, 300},
		{"fixed capped at price", entity.Product{Price: 1000, DepositType: entity.DepositTypeFixed, DepositFixedAmount: 5000}, 1000},
		{"none", entity.Product{Price: 1000}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.product
			assert.Equal(t, tt.want, checkout.UnitDeposit(&p))
		})
	}
}

func TestTax(t *testing.T) {
	assert.EqualValues(t, 0, checkout.Tax(1000, 0))
	assert.EqualValues(t, 100, checkout.Tax(1000, 1000))
	assert.EqualValues(t, 1, checkout.Tax(5, 1000))
}
