package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Additional-Code/atelier/internal/cache"
	"github.com/Additional-Code/atelier/internal/config"
	"github.com/Additional-Code/atelier/internal/notification"
	"github.com/Additional-Code/atelier/internal/provider"
)

// Notifier records every message it is asked to send.
type Notifier struct {
	mu       sync.Mutex
	messages []notification.Message
}

// Notify records msg.
func (n *Notifier) Notify(_ context.Context, msg notification.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

// Kinds lists the kinds of the recorded messages in order.
func (n *Notifier) Kinds() []notification.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notification.Kind, 0, len(n.messages))
	for _, m := range n.messages {
		out = append(out, m.Kind)
	}
	return out
}

// Messages returns a copy of the recorded messages.
func (n *Notifier) Messages() []notification.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Message(nil), n.messages...)
}

// Provider is a scripted payment provider.
type Provider struct {
	mu      sync.Mutex
	Err     error
	Intents []provider.IntentRequest
	Refunds []provider.RefundRequest
	seq     int
}

// CreatePaymentIntent records req or fails with Err.
func (p *Provider) CreatePaymentIntent(_ context.Context, req provider.IntentRequest) (*provider.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	p.seq++
	p.Intents = append(p.Intents, req)
	id := fmt.Sprintf("pi_test_%d", p.seq)
	return &provider.Intent{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method"}, nil
}

// CreateRefund records req or fails with Err. Refunds start pending.
func (p *Provider) CreateRefund(_ context.Context, req provider.RefundRequest) (*provider.RefundResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	p.seq++
	p.Refunds = append(p.Refunds, req)
	return &provider.RefundResult{ID: fmt.Sprintf("re_test_%d", p.seq), Amount: req.Amount, Status: "pending"}, nil
}

// Config returns a configuration suitable for service tests.
func Config() config.Config {
	var cfg config.Config
	cfg.Payment.Driver = "sandbox"
	cfg.Payment.Currency = "vnd"
	cfg.Payment.WebhookSecret = "whsec_test"
	cfg.Payment.WebhookTolerance = 5 * time.Minute
	cfg.Checkout.DepositDueHours = 24
	cfg.Checkout.TrackingTokenTTL = 90 * 24 * time.Hour
	cfg.Checkout.OrderCodePrefix = "AT"
	cfg.Checkout.TransferMemoPrefix = "DEPOSIT"
	cfg.Admin.Token = "admin-secret"
	cfg.Notification.QueueSize = 16
	cfg.Notification.PublishTimeout = time.Second
	return cfg
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Cache is an in-memory cache.Store.
type Cache struct {
	mu    sync.Mutex
	items map[string][]byte
	Hits  int
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{items: make(map[string][]byte)}
}

// Get returns the cached value or cache.ErrCacheMiss.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	c.Hits++
	return append([]byte(nil), v...), nil
}

// Set stores value; ttl is ignored.
func (c *Cache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

// Has reports whether key is cached.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}
