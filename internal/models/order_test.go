package models_test

import (
	"testing"

	"kriptoko/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    models.OrderStatus
		to      models.OrderStatus
		allowed bool
	}{
		{"pending to paid", models.OrderStatusPendingPayment, models.OrderStatusPaid, true},
		{"pending to expired", models.OrderStatusPendingPayment, models.OrderStatusExpired, true},
		{"pending to cancelled", models.OrderStatusPendingPayment, models.OrderStatusCancelled, true},
		{"pending to completed", models.OrderStatusPendingPayment, models.OrderStatusCompleted, false},
		{"pending to refunded", models.OrderStatusPendingPayment, models.OrderStatusRefunded, false},
		{"paid to fulfilling", models.OrderStatusPaid, models.OrderStatusFulfilling, true},
		{"paid to refund requested", models.OrderStatusPaid, models.OrderStatusRefundRequested, true},
		{"paid to expired", models.OrderStatusPaid, models.OrderStatusExpired, false},
		{"paid to cancelled", models.OrderStatusPaid, models.OrderStatusCancelled, false},
		{"fulfilling to completed", models.OrderStatusFulfilling, models.OrderStatusCompleted, true},
		{"refund requested to refunded", models.OrderStatusRefundRequested, models.OrderStatusRefunded, true},
		{"expired is terminal", models.OrderStatusExpired, models.OrderStatusPaid, false},
		{"cancelled is terminal", models.OrderStatusCancelled, models.OrderStatusPaid, false},
		{"refunded is terminal", models.OrderStatusRefunded, models.OrderStatusPaid, false},
		{"completed is terminal", models.OrderStatusCompleted, models.OrderStatusRefundRequested, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, models.CanTransition(tt.from, tt.to))
		})
	}
}

func TestOrderItemSubtotal(t *testing.T) {
	item := models.OrderItem{Quantity: 3, UnitPrice: 12.5}
	assert.Equal(t, 37.5, item.Subtotal())
}

func TestMergeStatus(t *testing.T) {
	tests := []struct {
		name     string
		current  models.PaymentStatus
		reported models.PaymentStatus
		want     models.PaymentStatus
	}{
		{"forward progress applies", models.PaymentStatusWaiting, models.PaymentStatusConfirming, models.PaymentStatusConfirming},
		{"stale report ignored", models.PaymentStatusSending, models.PaymentStatusWaiting, models.PaymentStatusSending},
		{"same status keeps", models.PaymentStatusConfirming, models.PaymentStatusConfirming, models.PaymentStatusConfirming},
		{"terminal wins over progress", models.PaymentStatusWaiting, models.PaymentStatusFailed, models.PaymentStatusFailed},
		{"finished absorbs waiting", models.PaymentStatusFinished, models.PaymentStatusWaiting, models.PaymentStatusFinished},
		{"finished absorbs failed", models.PaymentStatusFinished, models.PaymentStatusFailed, models.PaymentStatusFinished},
		{"refund follows finished", models.PaymentStatusFinished, models.PaymentStatusRefunded, models.PaymentStatusRefunded},
		{"refunded absorbs finished", models.PaymentStatusRefunded, models.PaymentStatusFinished, models.PaymentStatusRefunded},
		{"expired absorbs finished", models.PaymentStatusExpired, models.PaymentStatusFinished, models.PaymentStatusExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.MergeStatus(tt.current, tt.reported))
		})
	}
}

func TestIsPaidEquivalent(t *testing.T) {
	assert.True(t, models.PaymentStatusConfirmed.IsPaidEquivalent())
	assert.True(t, models.PaymentStatusSending.IsPaidEquivalent())
	assert.True(t, models.PaymentStatusFinished.IsPaidEquivalent())
	assert.False(t, models.PaymentStatusPartiallyPaid.IsPaidEquivalent())
	assert.False(t, models.PaymentStatusWaiting.IsPaidEquivalent())
	assert.False(t, models.PaymentStatusFailed.IsPaidEquivalent())
}

func TestMapGatewayStatus(t *testing.T) {
	assert.Equal(t, models.PaymentStatusPartiallyPaid, models.MapGatewayStatus("partially_paid"))
	assert.Equal(t, models.PaymentStatusFinished, models.MapGatewayStatus("finished"))
	// Unknown gateway vocabulary maps to the floor instead of failing.
	assert.Equal(t, models.PaymentStatusCreated, models.MapGatewayStatus("brand_new_status"))
}
