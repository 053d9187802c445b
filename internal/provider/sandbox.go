package provider

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sandbox is an in-process provider for local runs. Intents are created
// requiring payment; refunds start pending, like the real API.
type Sandbox struct {
	mu      sync.Mutex
	intents map[string]IntentRequest
	refunds map[string]RefundRequest
	logger  *zap.Logger
}

// NewSandbox constructs a Sandbox.
func NewSandbox(logger *zap.Logger) *Sandbox {
	return &Sandbox{
		intents: make(map[string]IntentRequest),
		refunds: make(map[string]RefundRequest),
		logger:  logger,
	}
}

// CreatePaymentIntent records the intent and returns a sandbox reference.
func (s *Sandbox) CreatePaymentIntent(_ context.Context, req IntentRequest) (*Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := "pi_sandbox_" + uuid.NewString()
	s.intents[id] = req
	s.logger.Info("sandbox payment intent created", zap.String("intent", id), zap.String("order_code", req.OrderCode), zap.Int64("amount", req.Amount))
	return &Intent{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method"}, nil
}

// CreateRefund records the refund as pending.
func (s *Sandbox) CreateRefund(_ context.Context, req RefundRequest) (*RefundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := "re_sandbox_" + uuid.NewString()
	s.refunds[id] = req
	s.logger.Info("sandbox refund created", zap.String("refund", id), zap.Int64("amount", req.Amount))
	return &RefundResult{ID: id, Amount: req.Amount, Status: "pending"}, nil
}
