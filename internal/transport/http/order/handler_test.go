package order_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/dto"
	"github.com/Additional-Code/atelier/internal/entity"
	"github.com/Additional-Code/atelier/internal/service/checkout"
	"github.com/Additional-Code/atelier/internal/service/deposit"
	"github.com/Additional-Code/atelier/internal/service/inventory"
	"github.com/Additional-Code/atelier/internal/service/lifecycle"
	service "github.com/Additional-Code/atelier/internal/service/order"
	"github.com/Additional-Code/atelier/internal/testutil"
	handler "github.com/Additional-Code/atelier/internal/transport/http/order"
	"github.com/Additional-Code/atelier/internal/validation"
)

func newServer(t *testing.T) (*echo.Echo, *testutil.Store) {
	t.Helper()
	store := testutil.NewStore()
	store.AddProduct(entity.Product{
		ID: "P1", Slug: "ao-dai", Name: "Silk Ao Dai", Price: 1_000_000, Stock: 2, Active: true,
		AllowsDeposit: true, DepositType: entity.DepositTypePercent, DepositPercentage: 30,
	})
	notifier := &testutil.Notifier{}
	logger := zap.NewNop()
	cfg := testutil.Config()

	machine := lifecycle.NewMachine(lifecycle.Params{Store: store, Logger: logger})
	ledger, err := inventory.NewLedger(inventory.Params{Store: store, Claims: store, Logger: logger})
	require.NoError(t, err)
	orch, err := checkout.NewOrchestrator(checkout.Params{
		Catalog: store, Orders: store, Tokens: store, Ledger: ledger, Machine: machine,
		Provider: &testutil.Provider{}, Notifier: notifier, Config: cfg, Logger: logger,
	})
	require.NoError(t, err)
	deposits := deposit.NewManager(deposit.Params{
		Orders: store, Proofs: store.Proofs(), Tokens: store,
		Ledger: ledger, Machine: machine, Notifier: notifier, Logger: logger,
	})
	orders := service.NewService(service.Params{
		Repository: store, Tokens: store, Deposits: deposits,
		Machine: machine, Ledger: ledger, Notifier: notifier, Config: cfg, Logger: logger,
	})

	e := echo.New()
	e.Validator = validation.New()
	handler.Register(e, handler.NewHandler(orch, orders, deposits))
	return e, store
}

func send(e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)
	return rr
}

func checkoutBody(method, mode string) string {
	return `{
		"items": [{"product_id": "P1", "quantity": 1}],
		"customer": {"name": "Linh", "email": "linh@example.com", "phone": "+84900000000"},
		"shipping": {"line1": "12 Hang Bac", "city": "Hanoi", "country": "VN"},
		"payment_method": "` + method + `",
		"payment_mode": "` + mode + `"
	}`
}

func placeOrder(t *testing.T, e *echo.Echo, method, mode string) dto.CheckoutResponse {
	t.Helper()
	rr := send(e, http.MethodPost, "/checkout", checkoutBody(method, mode), nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var body struct {
		Data dto.CheckoutResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.TrackingToken)
	return body.Data
}

func TestCheckoutAndTrack(t *testing.T) {
	e, store := newServer(t)

	placed := placeOrder(t, e, "bank_transfer", "deposit")
	assert.Equal(t, int64(300_000), placed.PayNow)
	assert.NotEmpty(t, placed.TransferMemo)
	assert.Equal(t, 1, store.StockOf("P1"))

	rr := send(e, http.MethodGet, "/orders/track?token="+placed.TrackingToken, "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), placed.Order.Code)

	rr = send(e, http.MethodGet, "/orders/track", "", map[string]string{handler.TokenHeader: placed.TrackingToken})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = send(e, http.MethodGet, "/orders/track?token=bogus", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCheckoutRejectsInvalidCart(t *testing.T) {
	e, store := newServer(t)

	rr := send(e, http.MethodPost, "/checkout", `{"items": []}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = send(e, http.MethodPost, "/checkout", `{`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = send(e, http.MethodPost, "/checkout", `{
		"items": [{"product_id": "P1", "quantity": 1}],
		"customer": {"name": "Linh", "email": "linh-at-example", "phone": "+84900000000"},
		"shipping": {"line1": "12 Hang Bac", "city": "Hanoi", "country": "VN"},
		"payment_method": "cod", "payment_mode": "full"
	}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `"field":"customer.email"`)

	rr = send(e, http.MethodPost, "/checkout", `{
		"items": [{"product_id": "P1", "quantity": 0}],
		"customer": {"name": "Linh", "email": "linh@example.com", "phone": "+84900000000"},
		"shipping": {"line1": "12 Hang Bac", "city": "Hanoi", "country": "VN"},
		"payment_method": "cod", "payment_mode": "layaway"
	}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `"field":"items[0].quantity"`)
	assert.Equal(t, 2, store.StockOf("P1"))
}

func TestSubmitProof(t *testing.T) {
	e, _ := newServer(t)
	placed := placeOrder(t, e, "bank_transfer", "deposit")
	path := "/orders/" + placed.Order.Code + "/deposit-proofs?token=" + placed.TrackingToken

	rr := send(e, http.MethodPost, path, `{"image_refs": ["uploads/receipt.jpg"], "note": "paid at VCB"}`, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"status":"pending"`)

	rr = send(e, http.MethodPost, path, `{"image_refs": ["uploads/again.jpg"]}`, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = send(e, http.MethodPost, path, `{"image_refs": []}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCancelAbandonedRestoresStock(t *testing.T) {
	e, store := newServer(t)
	placed := placeOrder(t, e, "card", "full")
	require.Equal(t, 1, store.StockOf("P1"))

	path := "/orders/" + placed.Order.Code + "/cancel"
	rr := send(e, http.MethodPost, path, "", map[string]string{handler.TokenHeader: placed.TrackingToken})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"status":"cancelled"`)
	assert.Equal(t, 2, store.StockOf("P1"))

	rr = send(e, http.MethodPost, path, "", map[string]string{handler.TokenHeader: placed.TrackingToken})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, store.StockOf("P1"), "second cancel is a no-op")

	rr = send(e, http.MethodPost, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
