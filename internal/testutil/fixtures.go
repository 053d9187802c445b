package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/Additional-Code/atelier/internal/entity"
)

// CardOrder builds a pending card order for a single unit of productID.
func CardOrder(code, productID string, price int64, now time.Time) *entity.Order {
	return &entity.Order{
		ID:            uuid.New(),
		Code:          code,
		CustomerName:  "Lan Nguyen",
		CustomerEmail: "lan@example.com",
		CustomerPhone: "0901234567",
		Shipping:      entity.Address{Line1: "12 Hang Bac", City: "Hanoi", Country: "VN"},
		Subtotal:      price,
		Total:         price,
		OrderType:     entity.OrderTypeStandard,
		Status:        entity.OrderStatusPending,
		PaymentStatus: entity.PaymentStatusPending,
		PaymentMethod: entity.PaymentMethodCard,
		PaymentMode:   entity.PaymentModeFull,
		CreatedAt:     now,
		UpdatedAt:     now,
		Items: []entity.OrderItem{{
			ProductID:   productID,
			ProductName: "Linen Shirt",
			ProductSlug: "linen-shirt",
			UnitPrice:   price,
			Quantity:    1,
			Subtotal:    price,
		}},
	}
}

// Reservation builds a confirmed bank-transfer deposit reservation due at due.
func Reservation(code, productID string, price, deposit int64, due, now time.Time) *entity.Order {
	o := CardOrder(code, productID, price, now)
	o.OrderType = entity.OrderTypeDepositReservation
	o.Status = entity.OrderStatusConfirmed
	o.PaymentStatus = entity.PaymentStatusDepositPending
	o.PaymentMethod = entity.PaymentMethodBankTransfer
	o.PaymentMode = entity.PaymentModeDeposit
	o.DepositAmount = deposit
	o.RemainingAmount = price - deposit
	o.DepositDueAt = &due
	o.Items[0].Deposit = deposit
	return o
}
