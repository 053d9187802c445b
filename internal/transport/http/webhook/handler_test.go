package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/provider"
	"github.com/Additional-Code/atelier/internal/service/payment"
)

const secret = "whsec_test"

const succeededPayload = `{
	"id": "evt_1",
	"type": "payment_intent.succeeded",
	"data": {"object": {"id": "pi_1", "amount": 1000, "metadata": {"order_id": "3f1c9a53-7a53-4bb4-8d6f-5b7d1a4de001"}}}
}`

type stubReconciler struct {
	events  []*provider.Event
	outcome payment.Outcome
	err     error
}

func (s *stubReconciler) Handle(_ context.Context, event *provider.Event) (payment.Outcome, error) {
	s.events = append(s.events, event)
	return s.outcome, s.err
}

func serve(t *testing.T, rec Reconciler, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	Register(e, NewHandler(provider.NewHMACVerifier(secret, 5*time.Minute), rec, zap.NewNop()))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set(provider.SignatureHeader, signature)
	}
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)
	return rr
}

func sign(body string) string {
	return provider.NewHMACVerifier(secret, 5*time.Minute).Sign([]byte(body), time.Now())
}

func TestWebhookDispatchesVerifiedEvent(t *testing.T) {
	rec := &stubReconciler{outcome: payment.OutcomeApplied}
	rr := serve(t, rec, succeededPayload, sign(succeededPayload))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "evt_1", rec.events[0].ID)
	assert.Contains(t, rr.Body.String(), `"outcome":"applied"`)
}

func TestWebhookAnswersOKWhenProcessingFails(t *testing.T) {
	rec := &stubReconciler{err: errors.New("database unavailable")}
	rr := serve(t, rec, succeededPayload, sign(succeededPayload))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"outcome":"failed"`)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	rec := &stubReconciler{}

	rr := serve(t, rec, succeededPayload, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serve(t, rec, succeededPayload, sign(`{"id":"other"}`))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, rec.events)
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	rec := &stubReconciler{}
	body := `{"id": 42`
	rr := serve(t, rec, body, sign(body))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, rec.events)
}
