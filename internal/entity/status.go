package entity

import "fmt"

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusDeposited  OrderStatus = "deposited"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusExpired    OrderStatus = "expired"
)

// Successors lists the statuses reachable from s on any order.
func (s OrderStatus) Successors() []OrderStatus {
	switch s {
	case OrderStatusPending:
		return []OrderStatus{OrderStatusConfirmed, OrderStatusCancelled, OrderStatusExpired}
	case OrderStatusConfirmed:
		return []OrderStatus{OrderStatusProcessing, OrderStatusDeposited, OrderStatusCancelled}
	case OrderStatusDeposited:
		return []OrderStatus{OrderStatusProcessing, OrderStatusCancelled}
	case OrderStatusProcessing:
		return []OrderStatus{OrderStatusShipped, OrderStatusCancelled}
	case OrderStatusShipped:
		return []OrderStatus{OrderStatusDelivered, OrderStatusCancelled}
	case OrderStatusDelivered:
		return []OrderStatus{OrderStatusRefunded}
	case OrderStatusCancelled, OrderStatusRefunded, OrderStatusExpired:
		return nil
	default:
		return nil
	}
}

// depositSuccessors lists the extra edges deposit reservations may take
// before fulfilment starts.
func (s OrderStatus) depositSuccessors() []OrderStatus {
	switch s {
	case OrderStatusPending:
		return []OrderStatus{OrderStatusDeposited, OrderStatusExpired}
	case OrderStatusConfirmed, OrderStatusDeposited:
		return []OrderStatus{OrderStatusExpired}
	case OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered,
		OrderStatusCancelled, OrderStatusRefunded, OrderStatusExpired:
		return nil
	default:
		return nil
	}
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusRefunded, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusDeposited, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// CanTransition reports whether an order of the given type may move from -> to.
func CanTransition(orderType OrderType, from, to OrderStatus) bool {
	for _, next := range from.Successors() {
		if next == to {
			return true
		}
	}
	if orderType != OrderTypeDepositReservation {
		return false
	}
	for _, next := range from.depositSuccessors() {
		if next == to {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown order status %q", raw)
	}
	return s, nil
}

// PaymentStatus tracks money movement for an order independently of fulfilment.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusDepositPending    PaymentStatus = "deposit_pending"
	PaymentStatusDeposited         PaymentStatus = "deposited"
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentStatusRefunded          PaymentStatus = "refunded"
)

// Settled reports whether money has been collected for the order.
func (s PaymentStatus) Settled() bool {
	switch s {
	case PaymentStatusDeposited, PaymentStatusPaid, PaymentStatusPartiallyRefunded, PaymentStatusRefunded:
		return true
	case PaymentStatusPending, PaymentStatusDepositPending, PaymentStatusFailed:
		return false
	default:
		return false
	}
}

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusDepositPending, PaymentStatusDeposited, PaymentStatusPaid,
		PaymentStatusFailed, PaymentStatusPartiallyRefunded, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// OrderType distinguishes regular purchases from deposit reservations.
type OrderType string

const (
	OrderTypeStandard           OrderType = "standard"
	OrderTypeDepositReservation OrderType = "deposit_reservation"
)

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentMethodCOD          PaymentMethod = "cod"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCard         PaymentMethod = "card"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodBankTransfer, PaymentMethodCard:
		return true
	default:
		return false
	}
}

// Online reports whether the method settles through the payment provider.
func (m PaymentMethod) Online() bool {
	return m == PaymentMethodCard
}

// PaymentMode decides how much is collected up front.
type PaymentMode string

const (
	PaymentModeDeposit PaymentMode = "deposit"
	PaymentModeFull    PaymentMode = "full"
	PaymentModeCOD     PaymentMode = "cod"
)

// Valid reports whether m is a supported payment mode.
func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentModeDeposit, PaymentModeFull, PaymentModeCOD:
		return true
	default:
		return false
	}
}

// RefundStatus mirrors the provider's refund lifecycle.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusFailed    RefundStatus = "failed"
	RefundStatusCanceled  RefundStatus = "canceled"
)

// Terminal reports whether the provider will not move the refund further.
func (s RefundStatus) Terminal() bool {
	switch s {
	case RefundStatusSucceeded, RefundStatusFailed, RefundStatusCanceled:
		return true
	case RefundStatusPending:
		return false
	default:
		return false
	}
}

// ParseRefundStatus maps provider refund states onto RefundStatus.
// requires_action is still in flight and is treated as pending.
func ParseRefundStatus(raw string) (RefundStatus, error) {
	switch raw {
	case "pending", "requires_action":
		return RefundStatusPending, nil
	case "succeeded":
		return RefundStatusSucceeded, nil
	case "failed":
		return RefundStatusFailed, nil
	case "canceled", "cancelled":
		return RefundStatusCanceled, nil
	default:
		return "", fmt.Errorf("unknown refund status %q", raw)
	}
}

// ProofStatus is the review state of a bank transfer proof.
type ProofStatus string

const (
	ProofStatusPending  ProofStatus = "pending"
	ProofStatusApproved ProofStatus = "approved"
	ProofStatusRejected ProofStatus = "rejected"
)

// DepositType selects how a product's deposit is computed.
type DepositType string

const (
	DepositTypeNone    DepositType = ""
	DepositTypePercent DepositType = "percent"
	DepositTypeFixed   DepositType = "fixed"
)
