package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionStandardGraph(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusExpired, true},
		{OrderStatusPending, OrderStatusDeposited, false},
		{OrderStatusConfirmed, OrderStatusDeposited, true},
		{OrderStatusConfirmed, OrderStatusExpired, false},
		{OrderStatusDeposited, OrderStatusProcessing, true},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusCancelled, true},
		{OrderStatusDelivered, OrderStatusRefunded, true},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusProcessing, false},
		{OrderStatusRefunded, OrderStatusDelivered, false},
		{OrderStatusExpired, OrderStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(OrderTypeStandard, tt.from, tt.to))
		})
	}
}

func TestCanTransitionDepositExtension(t *testing.T) {
	assert.True(t, CanTransition(OrderTypeDepositReservation, OrderStatusPending, OrderStatusDeposited))
	assert.True(t, CanTransition(OrderTypeDepositReservation, OrderStatusConfirmed, OrderStatusExpired))
	assert.True(t, CanTransition(OrderTypeDepositReservation, OrderStatusDeposited, OrderStatusExpired))
	assert.False(t, CanTransition(OrderTypeDepositReservation, OrderStatusShipped, OrderStatusExpired))
	assert.False(t, CanTransition(OrderTypeDepositReservation, OrderStatusExpired, OrderStatusExpired))
	assert.False(t, CanTransition(OrderTypeDepositReservation, OrderStatusCancelled, OrderStatusProcessing))
}

func TestTerminalStatusesHaveNoSuccessors(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusCancelled, OrderStatusRefunded, OrderStatusExpired} {
		assert.True(t, s.Terminal())
		assert.Empty(t, s.Successors())
		assert.Empty(t, s.depositSuccessors())
	}
	assert.False(t, OrderStatusPending.Terminal())
}

func TestParseRefundStatus(t *testing.T) {
	s, err := ParseRefundStatus("requires_action")
	assert.NoError(t, err)
	assert.Equal(t, RefundStatusPending, s)

	s, err = ParseRefundStatus("cancelled")
	assert.NoError(t, err)
	assert.Equal(t, RefundStatusCanceled, s)

	_, err = ParseRefundStatus("bogus")
	assert.Error(t, err)
}

func TestDepositConfigured(t *testing.T) {
	assert.True(t, (&Product{DepositType: DepositTypePercent, DepositPercentage: 20}).DepositConfigured())
	assert.False(t, (&Product{DepositType: DepositTypePercent, DepositPercentage: 0}).DepositConfigured())
	assert.False(t, (&Product{DepositType: DepositTypePercent, DepositPercentage: 120}).DepositConfigured())
	assert.True(t, (&Product{DepositType: DepositTypeFixed, DepositFixedAmount: 1}).DepositConfigured())
	assert.False(t, (&Product{}).DepositConfigured())
}

func TestOrderPaidAmountAndOverdue(t *testing.T) {
	due := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	o := &Order{
		OrderType:     OrderTypeDepositReservation,
		Status:        OrderStatusConfirmed,
		PaymentStatus: PaymentStatusDepositPending,
		Total:         2_000_000,
		DepositAmount: 400_000,
		DepositDueAt:  &due,
	}

	assert.Equal(t, int64(400_000), o.PaidAmount())
	assert.False(t, o.DepositOverdue(due.Add(-time.Minute)))
	assert.True(t, o.DepositOverdue(due.Add(time.Minute)))

	o.PaymentStatus = PaymentStatusDeposited
	assert.False(t, o.DepositOverdue(due.Add(time.Minute)))

	o.OrderType = OrderTypeStandard
	assert.Equal(t, int64(2_000_000), o.PaidAmount())
}
