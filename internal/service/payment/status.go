package payment

import "github.com/Additional-Code/atelier/internal/entity"

// DerivePaymentStatus compares the succeeded refund total with what the
// customer paid. Below any refund the current status is kept.
func DerivePaymentStatus(paid, refunded int64, current entity.PaymentStatus) entity.PaymentStatus {
	switch {
	case refunded <= 0:
		return current
	case refunded >= paid:
		return entity.PaymentStatusRefunded
	default:
		return entity.PaymentStatusPartiallyRefunded
	}
}
