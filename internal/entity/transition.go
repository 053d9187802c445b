package entity

import (
	"time"

	"github.com/google/uuid"
)

// PaymentPatch describes payment-side fields written together with, or
// instead of, a status change. Zero values leave a field untouched.
type PaymentPatch struct {
	// Expect guards the write: it only applies while the stored payment
	// status still equals Expect.
	Expect            PaymentStatus
	Status            PaymentStatus
	PaymentReference  string
	ChargeReference   string
	DepositReceivedAt *time.Time
}

// Empty reports whether the patch writes nothing.
func (p PaymentPatch) Empty() bool {
	return p.Status == "" && p.PaymentReference == "" && p.ChargeReference == "" && p.DepositReceivedAt == nil
}

// Apply copies the patch onto o.
func (p PaymentPatch) Apply(o *Order) {
	if p.Status != "" {
		o.PaymentStatus = p.Status
	}
	if p.PaymentReference != "" {
		o.PaymentReference = p.PaymentReference
	}
	if p.ChargeReference != "" {
		o.ChargeReference = p.ChargeReference
	}
	if p.DepositReceivedAt != nil {
		t := *p.DepositReceivedAt
		o.DepositReceivedAt = &t
	}
}

// StatusChange is a compare-and-set of an order's status plus the history
// entry recording it.
type StatusChange struct {
	OrderID uuid.UUID
	From    OrderStatus
	To      OrderStatus
	Payment PaymentPatch
	History OrderStatusHistory
	At      time.Time
}
