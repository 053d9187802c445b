package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// HTTPClient talks to the provider's REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// NewHTTPClient builds a client whose transport is traced with otelhttp.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

type intentBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Email    string            `json:"receipt_email,omitempty"`
	Metadata map[string]string `json:"metadata"`
}

type refundBody struct {
	PaymentIntent string            `json:"payment_intent,omitempty"`
	Charge        string            `json:"charge,omitempty"`
	Amount        int64             `json:"amount"`
	Reason        string            `json:"reason,omitempty"`
	Metadata      map[string]string `json:"metadata"`
}

// CreatePaymentIntent creates an intent tagged with the order id.
func (c *HTTPClient) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	body := intentBody{
		Amount:   req.Amount,
		Currency: req.Currency,
		Email:    req.Email,
		Metadata: map[string]string{MetadataOrderID: req.OrderID, "order_code": req.OrderCode},
	}
	var out Intent
	if err := c.post(ctx, "/v1/payment_intents", req.IdempotencyKey, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRefund submits a refund against the order's payment.
func (c *HTTPClient) CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	body := refundBody{
		PaymentIntent: req.PaymentReference,
		Charge:        req.ChargeReference,
		Amount:        req.Amount,
		Reason:        req.Reason,
		Metadata:      map[string]string{MetadataOrderID: req.OrderID},
	}
	var out RefundResult
	if err := c.post(ctx, "/v1/refunds", req.IdempotencyKey, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) post(ctx context.Context, path, idempotencyKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Warn("payment provider rejected request",
			zap.String("path", path), zap.Int("status", resp.StatusCode), zap.ByteString("body", raw))
		return fmt.Errorf("%w: %s returned %d", ErrUnavailable, path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}
