package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Address is the shipping destination captured at checkout.
type Address struct {
	Line1      string `bun:"line1" json:"line1" validate:"required"`
	Line2      string `bun:"line2" json:"line2,omitempty"`
	Ward       string `bun:"ward" json:"ward,omitempty"`
	District   string `bun:"district" json:"district,omitempty"`
	City       string `bun:"city" json:"city" validate:"required"`
	PostalCode string `bun:"postal_code" json:"postal_code,omitempty"`
	Country    string `bun:"country" json:"country" validate:"required"`
}

// Order is a customer purchase. Monetary fields are minor currency units.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID   uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Code string    `bun:"code,unique,notnull" json:"code"`

	CustomerName  string  `bun:"customer_name,notnull" json:"customer_name"`
	CustomerEmail string  `bun:"customer_email,notnull" json:"customer_email"`
	CustomerPhone string  `bun:"customer_phone,notnull" json:"customer_phone"`
	Shipping      Address `bun:"embed:shipping_" json:"shipping"`

	Subtotal    int64 `bun:"subtotal,notnull" json:"subtotal"`
	ShippingFee int64 `bun:"shipping_fee,notnull" json:"shipping_fee"`
	Tax         int64 `bun:"tax,notnull" json:"tax"`
	Discount    int64 `bun:"discount,notnull" json:"discount"`
	Total       int64 `bun:"total,notnull" json:"total"`

	OrderType     OrderType     `bun:"order_type,notnull" json:"order_type"`
	Status        OrderStatus   `bun:"status,notnull" json:"status"`
	PaymentStatus PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	PaymentMethod PaymentMethod `bun:"payment_method,notnull" json:"payment_method"`
	PaymentMode   PaymentMode   `bun:"payment_mode,notnull" json:"payment_mode"`

	DepositAmount     int64      `bun:"deposit_amount,notnull" json:"deposit_amount"`
	DepositDueAt      *time.Time `bun:"deposit_due_at,nullzero" json:"deposit_due_at,omitempty"`
	DepositReceivedAt *time.Time `bun:"deposit_received_at,nullzero" json:"deposit_received_at,omitempty"`
	RemainingAmount   int64      `bun:"remaining_amount,notnull" json:"remaining_amount"`

	PaymentReference string            `bun:"payment_reference,nullzero" json:"payment_reference,omitempty"`
	ChargeReference  string            `bun:"charge_reference,nullzero" json:"charge_reference,omitempty"`
	TransferMemo     string            `bun:"transfer_memo,nullzero" json:"transfer_memo,omitempty"`
	ProviderMetadata map[string]string `bun:"provider_metadata,type:jsonb" json:"provider_metadata,omitempty"`
	StockReleased    bool              `bun:"stock_released,notnull" json:"stock_released"`

	CustomerNote string `bun:"customer_note" json:"customer_note,omitempty"`
	AdminNote    string `bun:"admin_note" json:"admin_note,omitempty"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at"`

	Items []OrderItem `bun:"rel:has-many,join:id=order_id" json:"items,omitempty"`
}

// IsDeposit reports whether the order is a deposit reservation.
func (o *Order) IsDeposit() bool {
	return o.OrderType == OrderTypeDepositReservation
}

// PaidAmount is what the customer actually paid up front: the deposit for
// reservations, the full total otherwise.
func (o *Order) PaidAmount() int64 {
	if o.IsDeposit() {
		return o.DepositAmount
	}
	return o.Total
}

// DepositOverdue reports whether the deposit due date elapsed before the
// deposit was collected.
func (o *Order) DepositOverdue(now time.Time) bool {
	if !o.IsDeposit() || o.DepositDueAt == nil || o.DepositReceivedAt != nil {
		return false
	}
	if o.PaymentStatus != PaymentStatusDepositPending {
		return false
	}
	switch o.Status {
	case OrderStatusPending, OrderStatusConfirmed:
		return now.After(*o.DepositDueAt)
	default:
		return false
	}
}

// Clone returns a copy that can be mutated without touching o.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.Items != nil {
		c.Items = append([]OrderItem(nil), o.Items...)
	}
	if o.ProviderMetadata != nil {
		c.ProviderMetadata = make(map[string]string, len(o.ProviderMetadata))
		for k, v := range o.ProviderMetadata {
			c.ProviderMetadata[k] = v
		}
	}
	return &c
}

// OrderItem is a snapshot of a product line taken at checkout.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID            int64     `bun:",pk,autoincrement" json:"id"`
	OrderID       uuid.UUID `bun:"order_id,type:uuid,notnull" json:"order_id"`
	ProductID     string    `bun:"product_id,notnull" json:"product_id"`
	ProductName   string    `bun:"product_name,notnull" json:"product_name"`
	ProductSlug   string    `bun:"product_slug" json:"product_slug"`
	ImageURL      string    `bun:"image_url" json:"image_url,omitempty"`
	UnitPrice     int64     `bun:"unit_price,notnull" json:"unit_price"`
	Quantity      int       `bun:"quantity,notnull" json:"quantity"`
	Subtotal      int64     `bun:"subtotal,notnull" json:"subtotal"`
	Deposit       int64     `bun:"deposit,notnull" json:"deposit"`
	// StockReleased marks a line whose quantity went back to the product.
	StockReleased bool      `bun:"stock_released,notnull" json:"stock_released"`
}

// OrderStatusHistory is an append-only record of a status change.
type OrderStatusHistory struct {
	bun.BaseModel `bun:"table:order_status_history,alias:h"`

	ID         int64        `bun:",pk,autoincrement" json:"id"`
	OrderID    uuid.UUID    `bun:"order_id,type:uuid,notnull" json:"order_id"`
	FromStatus *OrderStatus `bun:"from_status" json:"from_status,omitempty"`
	ToStatus   OrderStatus  `bun:"to_status,notnull" json:"to_status"`
	Note       string       `bun:"note" json:"note,omitempty"`
	ActorID    string       `bun:"actor_id" json:"actor_id,omitempty"`
	CreatedAt  time.Time    `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
}
