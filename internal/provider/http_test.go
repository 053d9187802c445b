package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPClientCreatePaymentIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "checkout-AT-1", r.Header.Get("Idempotency-Key"))

		var body intentBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 2000000, body.Amount)
		assert.Equal(t, "order-1", body.Metadata[MetadataOrderID])

		_ = json.NewEncoder(w).Encode(Intent{ID: "pi_1", ClientSecret: "secret", Status: "requires_payment_method"})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL+"/", "sk_test", time.Second, zap.NewNop())
	intent, err := client.CreatePaymentIntent(context.Background(), IntentRequest{
		OrderID: "order-1", OrderCode: "AT-1", Amount: 2000000, Currency: "vnd", IdempotencyKey: "checkout-AT-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.ID)
}

func TestHTTPClientWrapsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "sk_test", time.Second, zap.NewNop())
	_, err := client.CreateRefund(context.Background(), RefundRequest{PaymentReference: "pi_1", Amount: 10})
	assert.ErrorIs(t, err, ErrUnavailable)
}
