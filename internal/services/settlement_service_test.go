package services_test

import (
	"testing"

	"kriptoko/internal/models"
	"kriptoko/internal/repositories"
	"kriptoko/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlementService_EmitIsAtMostOncePerKind(t *testing.T) {
	settlements := repositories.NewMockSettlementRepository()
	users := repositories.NewMockUserRepository()
	publisher := &recordingPublisher{}
	settlement := services.NewSettlementService(settlements, users, publisher, 1.0)

	require.NoError(t, users.Create(&models.User{
		ID: "user-1", Username: "satoshi", Email: "satoshi@example.com", Password: "hashed",
	}))
	order := &models.Order{
		ID:          "order-1",
		UserID:      "user-1",
		TotalAmount: 50,
		Currency:    "usd",
	}

	// The duplicate insert is recognized and swallowed, so the publish and
	// the loyalty credit happen exactly once.
	require.NoError(t, settlement.Emit(order, models.SettlementPaid))
	require.NoError(t, settlement.Emit(order, models.SettlementPaid))

	events, err := settlements.GetByOrderID("order-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Len(t, publisher.byKey("order.paid"), 1)

	user, err := users.GetByID("user-1")
	require.NoError(t, err)
	assert.Equal(t, 50, user.LoyaltyPoints)
	assert.Equal(t, 1, user.TotalOrders)

	// A different kind for the same order is a distinct settlement.
	require.NoError(t, settlement.Emit(order, models.SettlementRefunded))
	events, err = settlements.GetByOrderID("order-1")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestSettlementRepository_DuplicateKindReturnsSentinel(t *testing.T) {
	settlements := repositories.NewMockSettlementRepository()

	first := &models.SettlementEvent{OrderID: "order-1", Kind: models.SettlementPaid, UserID: "user-1", Amount: 50}
	require.NoError(t, settlements.Create(first))

	dup := &models.SettlementEvent{OrderID: "order-1", Kind: models.SettlementPaid, UserID: "user-1", Amount: 50}
	assert.ErrorIs(t, settlements.Create(dup), repositories.ErrAlreadySettled)
}
