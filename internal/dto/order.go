package dto

import (
	"time"

	"github.com/Additional-Code/atelier/internal/entity"
)

// AddressPayload is a shipping address as sent and returned over HTTP.
type AddressPayload struct {
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	Ward       string `json:"ward,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country" validate:"required"`
}

// CheckoutRequest is the body of POST /checkout.
type CheckoutRequest struct {
	Items []struct {
		ProductID string `json:"product_id" validate:"required"`
		Quantity  int    `json:"quantity" validate:"gt=0"`
	} `json:"items" validate:"required,min=1,dive"`
	Customer struct {
		Name  string `json:"name" validate:"required"`
		Email string `json:"email" validate:"required,email"`
		Phone string `json:"phone" validate:"required"`
	} `json:"customer"`
	Shipping      AddressPayload `json:"shipping"`
	PaymentMethod string         `json:"payment_method" validate:"required,oneof=cod bank_transfer card"`
	PaymentMode   string         `json:"payment_mode" validate:"required,oneof=deposit full cod"`
	Note          string         `json:"note"`
}

// CheckoutResponse is returned after an order is placed.
type CheckoutResponse struct {
	Order         OrderResponse `json:"order"`
	TrackingToken string        `json:"tracking_token,omitempty"`
	PayNow        int64         `json:"pay_now"`
	TransferMemo  string        `json:"transfer_memo,omitempty"`
	ClientSecret  string        `json:"client_secret,omitempty"`
}

// OrderItemResponse is one order line.
type OrderItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	ImageURL    string `json:"image_url,omitempty"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	Subtotal    int64  `json:"subtotal"`
	Deposit     int64  `json:"deposit,omitempty"`
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID                string              `json:"id"`
	Code              string              `json:"code"`
	Status            string              `json:"status"`
	PaymentStatus     string              `json:"payment_status"`
	PaymentMethod     string              `json:"payment_method"`
	PaymentMode       string              `json:"payment_mode"`
	OrderType         string              `json:"order_type"`
	CustomerName      string              `json:"customer_name"`
	Shipping          AddressPayload      `json:"shipping"`
	Subtotal          int64               `json:"subtotal"`
	ShippingFee       int64               `json:"shipping_fee"`
	Tax               int64               `json:"tax"`
	Discount          int64               `json:"discount"`
	Total             int64               `json:"total"`
	DepositAmount     int64               `json:"deposit_amount,omitempty"`
	RemainingAmount   int64               `json:"remaining_amount,omitempty"`
	DepositDueAt      *time.Time          `json:"deposit_due_at,omitempty"`
	DepositReceivedAt *time.Time          `json:"deposit_received_at,omitempty"`
	TransferMemo      string              `json:"transfer_memo,omitempty"`
	Items             []OrderItemResponse `json:"items,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// HistoryResponse is one status history entry.
type HistoryResponse struct {
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	Note      string    `json:"note,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TrackingResponse is what a customer sees through a tracking link.
type TrackingResponse struct {
	Order   OrderResponse     `json:"order"`
	History []HistoryResponse `json:"history"`
}

// ProofResponse is a deposit transfer proof.
type ProofResponse struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	ImageRefs   []string   `json:"image_refs"`
	Note        string     `json:"note,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	ReviewNote  string     `json:"review_note,omitempty"`
}

// RefundResponse is one entry of the refund ledger.
type RefundResponse struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FromOrder maps an order onto its transport shape.
func FromOrder(o *entity.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			ImageURL:    it.ImageURL,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			Subtotal:    it.Subtotal,
			Deposit:     it.Deposit,
		})
	}
	return OrderResponse{
		ID:                o.ID.String(),
		Code:              o.Code,
		Status:            string(o.Status),
		PaymentStatus:     string(o.PaymentStatus),
		PaymentMethod:     string(o.PaymentMethod),
		PaymentMode:       string(o.PaymentMode),
		OrderType:         string(o.OrderType),
		CustomerName:      o.CustomerName,
		Shipping:          AddressPayload(o.Shipping),
		Subtotal:          o.Subtotal,
		ShippingFee:       o.ShippingFee,
		Tax:               o.Tax,
		Discount:          o.Discount,
		Total:             o.Total,
		DepositAmount:     o.DepositAmount,
		RemainingAmount:   o.RemainingAmount,
		DepositDueAt:      o.DepositDueAt,
		DepositReceivedAt: o.DepositReceivedAt,
		TransferMemo:      o.TransferMemo,
		Items:             items,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

// FromHistory maps status history entries.
func FromHistory(entries []entity.OrderStatusHistory) []HistoryResponse {
	out := make([]HistoryResponse, 0, len(entries))
	for _, h := range entries {
		item := HistoryResponse{
			To:        string(h.ToStatus),
			Note:      h.Note,
			Actor:     h.ActorID,
			CreatedAt: h.CreatedAt,
		}
		if h.FromStatus != nil {
			item.From = string(*h.FromStatus)
		}
		out = append(out, item)
	}
	return out
}

// FromProof maps a transfer proof.
func FromProof(p *entity.DepositTransferProof) ProofResponse {
	return ProofResponse{
		ID:          p.ID.String(),
		Status:      string(p.Status),
		ImageRefs:   p.ImageRefs,
		Note:        p.Note,
		SubmittedAt: p.SubmittedAt,
		ReviewedBy:  p.ReviewedBy,
		ReviewedAt:  p.ReviewedAt,
		ReviewNote:  p.ReviewNote,
	}
}

// FromRefunds maps refund ledger entries.
func FromRefunds(refunds []entity.Refund) []RefundResponse {
	out := make([]RefundResponse, 0, len(refunds))
	for _, r := range refunds {
		out = append(out, RefundResponse{
			ID:        r.ID,
			Amount:    r.Amount,
			Status:    string(r.Status),
			Reason:    r.Reason,
			CreatedAt: r.CreatedAt,
		})
	}
	return out
}
