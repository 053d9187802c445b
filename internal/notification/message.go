package notification

import (
	"time"

	"github.com/google/uuid"

	"github.com/Additional-Code/atelier/internal/entity"
)

// HeaderKind is the bus header carrying the message kind.
const HeaderKind = "kind"

// Kind identifies the transactional message to send.
type Kind string

const (
	KindOrderConfirmation    Kind = "order_confirmation"
	KindStatusUpdate         Kind = "status_update"
	KindDepositReceived      Kind = "deposit_received"
	KindReservationExpired   Kind = "reservation_expired"
	KindReservationCancelled Kind = "reservation_cancelled"
	KindRefundSucceeded      Kind = "refund_succeeded"
	KindPaymentFailed        Kind = "payment_failed"
)

// Message is a request to notify a customer about their order.
type Message struct {
	ID            uuid.UUID            `json:"id"`
	Kind          Kind                 `json:"kind"`
	OrderID       uuid.UUID            `json:"order_id"`
	OrderCode     string               `json:"order_code"`
	Email         string               `json:"email"`
	Name          string               `json:"name"`
	Status        entity.OrderStatus   `json:"status"`
	PaymentStatus entity.PaymentStatus `json:"payment_status"`
	Amount        int64                `json:"amount,omitempty"`
	TrackingToken string               `json:"tracking_token,omitempty"`
	Note          string               `json:"note,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// For builds a message of the given kind describing order's current state.
func For(kind Kind, order *entity.Order) Message {
	return Message{
		ID:            uuid.New(),
		Kind:          kind,
		OrderID:       order.ID,
		OrderCode:     order.Code,
		Email:         order.CustomerEmail,
		Name:          order.CustomerName,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		CreatedAt:     time.Now().UTC(),
	}
}
