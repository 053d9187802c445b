package provider

import (
	"context"
	"errors"
)

// ErrUnavailable wraps every failed call to the provider API.
var ErrUnavailable = errors.New("payment provider unavailable")

// IntentRequest asks the provider to collect Amount for an order.
type IntentRequest struct {
	OrderID        string
	OrderCode      string
	Amount         int64
	Currency       string
	Email          string
	IdempotencyKey string
}

// Intent is a created payment intent.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

// RefundRequest asks the provider to refund part of a charge.
type RefundRequest struct {
	OrderID          string
	PaymentReference string
	ChargeReference  string
	Amount           int64
	Reason           string
	IdempotencyKey   string
}

// RefundResult is the provider's view of a refund right after creation.
type RefundResult struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// Client is the subset of the provider API the engine calls.
type Client interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}
