package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePaymentIntentSucceeded(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"created": 1760000000,
		"data": {"object": {
			"id": "pi_1",
			"amount": 400000,
			"latest_charge": "ch_1",
			"metadata": {"order_id": "3f1c9a53-7a53-4bb4-8d6f-5b7d1a4de001"}
		}}
	}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, CategorySucceeded, event.Type.Category())
	assert.Equal(t, "pi_1", event.PaymentReference)
	assert.Equal(t, "ch_1", event.ChargeReference)
	assert.Equal(t, "3f1c9a53-7a53-4bb4-8d6f-5b7d1a4de001", event.OrderID)
	assert.EqualValues(t, 400000, event.Amount)
}

func TestParseChargeRefundedCarriesEveryRefund(t *testing.T) {
	payload := []byte(`{
		"id": "evt_2",
		"type": "charge.refunded",
		"data": {"object": {
			"id": "ch_1",
			"payment_intent": "pi_1",
			"refunds": {"data": [
				{"id": "re_1", "amount": 100, "status": "succeeded"},
				{"id": "re_2", "amount": 50, "status": "pending"}
			]}
		}}
	}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, CategoryRefund, event.Type.Category())
	require.Len(t, event.Refunds, 2)
	assert.Equal(t, "re_1", event.Refunds[0].ID)
	assert.Equal(t, "ch_1", event.Refunds[0].ChargeReference)
	assert.Equal(t, "pi_1", event.Refunds[1].PaymentReference)
	assert.Equal(t, "pending", event.Refunds[1].Status)
}

func TestParseRefundUpdated(t *testing.T) {
	payload := []byte(`{
		"id": "evt_3",
		"type": "refund.updated",
		"data": {"object": {"id": "re_9", "amount": 500000, "status": "succeeded", "charge": "ch_7", "payment_intent": "pi_7"}}
	}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)
	require.Len(t, event.Refunds, 1)
	assert.Equal(t, RefundObject{ID: "re_9", Amount: 500000, Status: "succeeded", ChargeReference: "ch_7", PaymentReference: "pi_7"}, event.Refunds[0])
	assert.Equal(t, "ch_7", event.ChargeReference)
}

func TestParseEventRejectsMalformed(t *testing.T) {
	for _, payload := range []string{`not json`, `{"type":"refund.updated"}`, `{"id":"evt","type":"x","data":{"object":"str"}}`} {
		_, err := ParseEvent([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformedEvent, payload)
	}
}

func TestUnknownTypesAreIgnored(t *testing.T) {
	assert.Equal(t, CategoryIgnored, EventType("customer.created").Category())
}
