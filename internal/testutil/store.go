// Package testutil holds in-memory fakes for the repository ports used by
// the service tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Additional-Code/atelier/internal/entity"
	orderrepo "github.com/Additional-Code/atelier/internal/repository/order"
	productrepo "github.com/Additional-Code/atelier/internal/repository/product"
	proofrepo "github.com/Additional-Code/atelier/internal/repository/proof"
	trackingrepo "github.com/Additional-Code/atelier/internal/repository/tracking"
)

// Store is an in-memory stand-in for the order, product, payment and
// tracking repositories. Proofs live behind Proofs() because their Create
// collides with the order one.
type Store struct {
	mu sync.Mutex

	products map[string]*entity.Product
	orders   map[uuid.UUID]*entity.Order
	history  map[uuid.UUID][]entity.OrderStatusHistory
	events   map[string]entity.PaymentEvent
	refunds  map[string]*entity.Refund
	proofs   map[uuid.UUID]*entity.DepositTransferProof
	tokens   map[string]entity.TrackingToken
	seq      int64

	// Failure injection.
	CreateErr    error
	IncrementErr error
	StockErr     error
	// ProductErrs fails Increment and Stock for the listed products only.
	ProductErrs map[string]error
	// BeforeTransition runs inside ApplyTransition before the compare; tests
	// use it to simulate a concurrent writer.
	BeforeTransition func(order *entity.Order)

	Now func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		products: make(map[string]*entity.Product),
		orders:   make(map[uuid.UUID]*entity.Order),
		history:  make(map[uuid.UUID][]entity.OrderStatusHistory),
		events:   make(map[string]entity.PaymentEvent),
		refunds:  make(map[string]*entity.Refund),
		proofs:   make(map[uuid.UUID]*entity.DepositTransferProof),
		tokens:   make(map[string]entity.TrackingToken),
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddProduct seeds a product.
func (s *Store) AddProduct(p entity.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Slug == "" {
		p.Slug = p.ID
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	s.products[p.ID] = &p
}

// StockOf returns the product's current stock.
func (s *Store) StockOf(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

// PutOrder stores an order as-is, bypassing checkout.
func (s *Store) PutOrder(o *entity.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Clone()
}

// Order returns a copy of the stored order.
func (s *Store) Order(id uuid.UUID) *entity.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].Clone()
}

// HistoryOf returns the recorded status history.
func (s *Store) HistoryOf(id uuid.UUID) []entity.OrderStatusHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.OrderStatusHistory(nil), s.history[id]...)
}

// RefundsOf returns the refunds recorded for the order.
func (s *Store) RefundsOf(id uuid.UUID) []entity.Refund {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Refund
	for _, r := range s.refunds {
		if r.OrderID == id {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- products ---

func (s *Store) GetMany(_ context.Context, ids []string) (map[string]*entity.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*entity.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *Store) DecrementIfAvailable(_ context.Context, productID string, qty int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	return true, nil
}

func (s *Store) Increment(_ context.Context, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IncrementErr != nil {
		return s.IncrementErr
	}
	if err := s.ProductErrs[productID]; err != nil {
		return err
	}
	p, ok := s.products[productID]
	if !ok {
		return productrepo.ErrNotFound
	}
	p.Stock += qty
	return nil
}

func (s *Store) Stock(_ context.Context, productID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StockErr != nil {
		return 0, s.StockErr
	}
	if err := s.ProductErrs[productID]; err != nil {
		return 0, err
	}
	p, ok := s.products[productID]
	if !ok {
		return 0, productrepo.ErrNotFound
	}
	return p.Stock, nil
}

func (s *Store) CompareAndSetStock(_ context.Context, productID string, prev, next int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok || p.Stock != prev {
		return false, nil
	}
	p.Stock = next
	return true, nil
}

// --- orders ---

func (s *Store) Create(_ context.Context, order *entity.Order, history *entity.OrderStatusHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	if _, ok := s.orders[order.ID]; ok {
		return fmt.Errorf("duplicate order %s", order.ID)
	}
	for i := range order.Items {
		s.seq++
		order.Items[i].ID = s.seq
		order.Items[i].OrderID = order.ID
	}
	s.orders[order.ID] = order.Clone()
	if history != nil {
		s.appendHistory(order.ID, *history)
	}
	return nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, orderrepo.ErrNotFound
	}
	return o.Clone(), nil
}

func (s *Store) GetByCode(_ context.Context, code string) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.Code == code {
			return o.Clone(), nil
		}
	}
	return nil, orderrepo.ErrNotFound
}

func (s *Store) FindByPaymentReference(_ context.Context, ref string) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref == "" {
		return nil, orderrepo.ErrNotFound
	}
	for _, o := range s.orders {
		if o.PaymentReference == ref || o.ChargeReference == ref {
			return o.Clone(), nil
		}
	}
	return nil, orderrepo.ErrNotFound
}

func (s *Store) ListOverdueDeposits(_ context.Context, now time.Time, limit int) ([]*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Order
	for _, o := range s.orders {
		if o.DepositOverdue(now) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepositDueAt.Before(*out[j].DepositDueAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) History(_ context.Context, orderID uuid.UUID) ([]entity.OrderStatusHistory, error) {
	return s.HistoryOf(orderID), nil
}

func (s *Store) ApplyTransition(_ context.Context, change entity.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[change.OrderID]
	if !ok {
		return orderrepo.ErrStale
	}
	if s.BeforeTransition != nil {
		hook := s.BeforeTransition
		s.BeforeTransition = nil
		hook(o)
	}
	if o.Status != change.From {
		return orderrepo.ErrStale
	}
	if change.Payment.Expect != "" && o.PaymentStatus != change.Payment.Expect {
		return orderrepo.ErrStale
	}
	o.Status = change.To
	change.Payment.Apply(o)
	o.UpdatedAt = change.At
	s.appendHistory(o.ID, change.History)
	return nil
}

func (s *Store) UpdatePayment(_ context.Context, orderID uuid.UUID, patch entity.PaymentPatch, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return orderrepo.ErrStale
	}
	if patch.Expect != "" && o.PaymentStatus != patch.Expect {
		return orderrepo.ErrStale
	}
	patch.Apply(o)
	o.UpdatedAt = at
	return nil
}

func (s *Store) ClaimStockRelease(_ context.Context, orderID uuid.UUID) (bool, error) {
	return s.flip(orderID, false, true), nil
}

func (s *Store) UnclaimStockRelease(_ context.Context, orderID uuid.UUID) (bool, error) {
	return s.flip(orderID, true, false), nil
}

func (s *Store) ClaimLineRelease(_ context.Context, orderID uuid.UUID, productID string) (bool, error) {
	return s.flipLine(orderID, productID, false, true), nil
}

func (s *Store) UnclaimLineRelease(_ context.Context, orderID uuid.UUID, productID string) (bool, error) {
	return s.flipLine(orderID, productID, true, false), nil
}

func (s *Store) flipLine(orderID uuid.UUID, productID string, from, to bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return false
	}
	flipped := false
	for i := range o.Items {
		if o.Items[i].ProductID == productID && o.Items[i].StockReleased == from {
			o.Items[i].StockReleased = to
			flipped = true
		}
	}
	return flipped
}

func (s *Store) flip(orderID uuid.UUID, from, to bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.StockReleased != from {
		return false
	}
	o.StockReleased = to
	return true
}

func (s *Store) appendHistory(orderID uuid.UUID, h entity.OrderStatusHistory) {
	s.seq++
	h.ID = s.seq
	h.OrderID = orderID
	s.history[orderID] = append(s.history[orderID], h)
}

// --- payment events and refunds ---

func eventKey(orderID uuid.UUID, eventID string) string {
	return orderID.String() + "|" + eventID
}

func (s *Store) HasEvent(_ context.Context, orderID uuid.UUID, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.events[eventKey(orderID, eventID)]
	return ok, nil
}

func (s *Store) RecordEvent(_ context.Context, event *entity.PaymentEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := eventKey(event.OrderID, event.EventID)
	if _, ok := s.events[key]; ok {
		return false, nil
	}
	s.events[key] = *event
	return true, nil
}

// EventCount returns how many events were recorded for the order.
func (s *Store) EventCount(orderID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.OrderID == orderID {
			n++
		}
	}
	return n
}

func (s *Store) UpsertRefund(_ context.Context, refund *entity.Refund) (entity.RefundStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.refunds[refund.ID]
	if !ok {
		cp := *refund
		s.refunds[refund.ID] = &cp
		return "", nil
	}
	if existing.OrderID != refund.OrderID {
		return "", fmt.Errorf("refund %s belongs to another order", refund.ID)
	}
	previous := existing.Status
	next := refund.Status
	if previous.Terminal() && !next.Terminal() {
		next = previous
	}
	existing.Status = next
	if refund.Amount != 0 {
		existing.Amount = refund.Amount
	}
	if refund.ChargeReference != "" {
		existing.ChargeReference = refund.ChargeReference
	}
	*refund = *existing
	return previous, nil
}

func (s *Store) SumRefunds(_ context.Context, orderID uuid.UUID, statuses ...entity.RefundStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, r := range s.refunds {
		if r.OrderID != orderID {
			continue
		}
		for _, st := range statuses {
			if r.Status == st {
				total += r.Amount
				break
			}
		}
	}
	return total, nil
}

func (s *Store) ListRefunds(_ context.Context, orderID uuid.UUID) ([]entity.Refund, error) {
	return s.RefundsOf(orderID), nil
}

// --- tracking tokens ---

func (s *Store) Issue(_ context.Context, orderID uuid.UUID, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := "tok-" + uuid.NewString()
	s.tokens[trackingrepo.HashToken(token)] = entity.TrackingToken{
		TokenHash: trackingrepo.HashToken(token),
		OrderID:   orderID,
		ExpiresAt: s.Now().Add(ttl),
	}
	return token, nil
}

func (s *Store) Resolve(_ context.Context, token string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tokens[trackingrepo.HashToken(token)]
	if !ok {
		return uuid.Nil, trackingrepo.ErrNotFound
	}
	if !s.Now().Before(row.ExpiresAt) {
		return uuid.Nil, trackingrepo.ErrExpired
	}
	return row.OrderID, nil
}

// --- proofs ---

// Proofs is the deposit proof view of a Store.
type Proofs struct {
	s *Store
}

// Proofs returns the proof repository fake backed by s.
func (s *Store) Proofs() *Proofs {
	return &Proofs{s: s}
}

func (p *Proofs) Create(_ context.Context, proof *entity.DepositTransferProof) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	for _, existing := range p.s.proofs {
		if existing.OrderID == proof.OrderID && existing.Status == entity.ProofStatusPending {
			return proofrepo.ErrPendingExists
		}
	}
	cp := *proof
	p.s.proofs[proof.ID] = &cp
	return nil
}

func (p *Proofs) Get(_ context.Context, id uuid.UUID) (*entity.DepositTransferProof, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	proof, ok := p.s.proofs[id]
	if !ok {
		return nil, proofrepo.ErrNotFound
	}
	cp := *proof
	return &cp, nil
}

func (p *Proofs) ListByOrder(_ context.Context, orderID uuid.UUID) ([]entity.DepositTransferProof, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	var out []entity.DepositTransferProof
	for _, proof := range p.s.proofs {
		if proof.OrderID == orderID {
			out = append(out, *proof)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (p *Proofs) Reopen(_ context.Context, id uuid.UUID) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	proof, ok := p.s.proofs[id]
	if !ok || proof.Status != entity.ProofStatusApproved {
		return proofrepo.ErrAlreadyReviewed
	}
	for _, other := range p.s.proofs {
		if other.OrderID == proof.OrderID && other.Status == entity.ProofStatusPending {
			return proofrepo.ErrPendingExists
		}
	}
	proof.Status = entity.ProofStatusPending
	proof.ReviewedBy = ""
	proof.ReviewNote = ""
	proof.ReviewedAt = nil
	return nil
}

func (p *Proofs) Review(_ context.Context, id uuid.UUID, status entity.ProofStatus, reviewer, note string, at time.Time) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	proof, ok := p.s.proofs[id]
	if !ok || proof.Status != entity.ProofStatusPending {
		return proofrepo.ErrAlreadyReviewed
	}
	proof.Status = status
	proof.ReviewedBy = reviewer
	proof.ReviewNote = note
	reviewed := at
	proof.ReviewedAt = &reviewed
	return nil
}
