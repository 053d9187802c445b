package checkout

import (
	"math"

	"github.com/Additional-Code/atelier/internal/entity"
)

// UnitDeposit is the deposit owed for one unit of the product, never more
// than its price.
func UnitDeposit(p *entity.Product) int64 {
	var amount int64
	switch p.DepositType {
	case entity.DepositTypePercent:
		amount = int64(math.Round(float64(p.Price) * p.DepositPercentage / 100))
	case entity.DepositTypeFixed:
		amount = p.DepositFixedAmount
	}
	if amount > p.Price {
		amount = p.Price
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}

// Tax applies a basis-point rate, rounding half up.
func Tax(subtotal int64, rateBPS int) int64 {
	if rateBPS <= 0 || subtotal <= 0 {
		return 0
	}
	return (subtotal*int64(rateBPS) + 5000) / 10000
}

// PayNow is what the customer is asked to pay at checkout. Cash on delivery
// collects nothing up front, including a deposit taken on delivery.
func PayNow(o *entity.Order) int64 {
	if o.PaymentMethod == entity.PaymentMethodCOD {
		return 0
	}
	if o.IsDeposit() {
		return o.DepositAmount
	}
	return o.Total
}
