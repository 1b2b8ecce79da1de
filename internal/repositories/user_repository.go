package repositories

import (
	"kriptoko/internal/models"
)

// UserRepository defines the interface for user data access.
type UserRepository interface {
	Create(user *models.User) error
	GetByUsername(username string) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByID(id string) (*models.User, error)
	// CreditLoyalty adds points to the user's balance and records the
	// loyalty transaction in one step.
	CreditLoyalty(tx *models.LoyaltyTransaction) error
	// RecordPurchase bumps the user's lifetime spend counters on settle.
	RecordPurchase(userID string, amount float64) error
}
