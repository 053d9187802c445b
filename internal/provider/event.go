package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType is the provider's event name.
type EventType string

const (
	EventPaymentSucceeded    EventType = "payment_intent.succeeded"
	EventPaymentFailed       EventType = "payment_intent.payment_failed"
	EventCheckoutCompleted   EventType = "checkout.session.completed"
	EventChargeRefunded      EventType = "charge.refunded"
	EventChargeRefundUpdated EventType = "charge.refund.updated"
	EventRefundCreated       EventType = "refund.created"
	EventRefundUpdated       EventType = "refund.updated"
)

// MetadataOrderID is the metadata key carrying the order id on payment
// intents created at checkout.
const MetadataOrderID = "order_id"

// Category groups event types by how they affect an order.
type Category int

const (
	CategoryIgnored Category = iota
	CategorySucceeded
	CategoryFailed
	CategoryRefund
)

// Category maps the event type onto the handling it needs.
func (t EventType) Category() Category {
	switch t {
	case EventPaymentSucceeded, EventCheckoutCompleted:
		return CategorySucceeded
	case EventPaymentFailed:
		return CategoryFailed
	case EventChargeRefunded, EventChargeRefundUpdated, EventRefundCreated, EventRefundUpdated:
		return CategoryRefund
	default:
		return CategoryIgnored
	}
}

// ErrMalformedEvent is returned for payloads that cannot be decoded.
var ErrMalformedEvent = errors.New("malformed provider event")

// RefundObject is a refund as reported by the provider.
type RefundObject struct {
	ID               string
	Amount           int64
	Status           string
	Reason           string
	ChargeReference  string
	PaymentReference string
}

// Event is a verified provider notification reduced to what the
// reconciler needs.
type Event struct {
	ID               string
	Type             EventType
	Created          time.Time
	OrderID          string
	PaymentReference string
	ChargeReference  string
	Amount           int64
	FailureMessage   string
	Refunds          []RefundObject
}

type wireEvent struct {
	ID      string    `json:"id"`
	Type    EventType `json:"type"`
	Created int64     `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type wireObject struct {
	ID               string            `json:"id"`
	Object           string            `json:"object"`
	Amount           int64             `json:"amount"`
	AmountTotal      int64             `json:"amount_total"`
	Status           string            `json:"status"`
	Reason           string            `json:"reason"`
	Metadata         map[string]string `json:"metadata"`
	PaymentIntent    string            `json:"payment_intent"`
	Charge           string            `json:"charge"`
	LatestCharge     string            `json:"latest_charge"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
	Refunds *struct {
		Data []wireObject `json:"data"`
	} `json:"refunds"`
}

// ParseEvent decodes a provider payload. The signature must be verified
// before calling it.
func ParseEvent(payload []byte) (*Event, error) {
	var raw wireEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if raw.ID == "" || raw.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}
	var obj wireObject
	if len(raw.Data.Object) > 0 {
		if err := json.Unmarshal(raw.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
	}

	event := &Event{
		ID:      raw.ID,
		Type:    raw.Type,
		Created: time.Unix(raw.Created, 0).UTC(),
		OrderID: obj.Metadata[MetadataOrderID],
		Amount:  obj.Amount,
	}

	switch raw.Type {
	case EventPaymentSucceeded, EventPaymentFailed:
		event.PaymentReference = obj.ID
		event.ChargeReference = obj.LatestCharge
		if obj.LastPaymentError != nil {
			event.FailureMessage = obj.LastPaymentError.Message
		}
	case EventCheckoutCompleted:
		event.PaymentReference = obj.PaymentIntent
		event.Amount = obj.AmountTotal
	case EventChargeRefunded:
		event.ChargeReference = obj.ID
		event.PaymentReference = obj.PaymentIntent
		if obj.Refunds != nil {
			for _, r := range obj.Refunds.Data {
				event.Refunds = append(event.Refunds, refundFrom(r, obj.ID, obj.PaymentIntent))
			}
		}
	case EventChargeRefundUpdated, EventRefundCreated, EventRefundUpdated:
		event.ChargeReference = obj.Charge
		event.PaymentReference = obj.PaymentIntent
		event.Refunds = []RefundObject{refundFrom(obj, obj.Charge, obj.PaymentIntent)}
	}
	return event, nil
}

func refundFrom(obj wireObject, charge, intent string) RefundObject {
	r := RefundObject{
		ID:               obj.ID,
		Amount:           obj.Amount,
		Status:           obj.Status,
		Reason:           obj.Reason,
		ChargeReference:  obj.Charge,
		PaymentReference: obj.PaymentIntent,
	}
	if r.ChargeReference == "" {
		r.ChargeReference = charge
	}
	if r.PaymentReference == "" {
		r.PaymentReference = intent
	}
	return r
}
