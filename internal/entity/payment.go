package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PaymentEvent marks a provider event as applied to an order.
type PaymentEvent struct {
	bun.BaseModel `bun:"table:payment_events,alias:pe"`

	OrderID   uuid.UUID `bun:"order_id,pk,type:uuid" json:"order_id"`
	EventID   string    `bun:"event_id,pk" json:"event_id"`
	EventType string    `bun:"event_type,notnull" json:"event_type"`
	AppliedAt time.Time `bun:"applied_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"applied_at"`
}

// Refund is one provider refund against an order's charge, keyed by the
// provider refund id.
type Refund struct {
	bun.BaseModel `bun:"table:refunds,alias:r"`

	ID              string       `bun:"id,pk" json:"id"`
	OrderID         uuid.UUID    `bun:"order_id,type:uuid,notnull" json:"order_id"`
	ChargeReference string       `bun:"charge_reference" json:"charge_reference,omitempty"`
	Amount          int64        `bun:"amount,notnull" json:"amount"`
	Status          RefundStatus `bun:"status,notnull" json:"status"`
	Reason          string       `bun:"reason" json:"reason,omitempty"`
	CreatedAt       time.Time    `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `bun:"updated_at,nullzero" json:"updated_at"`
}
