package repositories

import (
	"fmt"

	"kriptoko/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMUserRepository is a GORM implementation of UserRepository.
type GORMUserRepository struct {
	db *gorm.DB
}

// NewGORMUserRepository creates a new instance of GORMUserRepository.
func NewGORMUserRepository(db *gorm.DB) *GORMUserRepository {
	return &GORMUserRepository{
		db: db,
	}
}

// Create creates a new user in the database.
func (r *GORMUserRepository) Create(user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByUsername retrieves a user by their username from the database.
func (r *GORMUserRepository) GetByUsername(username string) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, "username = ?", username).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user with username %s not found", username)
		}
		return nil, fmt.Errorf("failed to get user by username %s: %w", username, err)
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email from the database.
func (r *GORMUserRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, "email = ?", email).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user with email %s not found", email)
		}
		return nil, fmt.Errorf("failed to get user by email %s: %w", email, err)
	}
	return &user, nil
}

// GetByID retrieves a user by their ID from the database.
func (r *GORMUserRepository) GetByID(id string) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user with ID %s not found", id)
		}
		return nil, fmt.Errorf("failed to get user by ID %s: %w", id, err)
	}
	return &user, nil
}

// CreditLoyalty adds points to the user's balance and records the loyalty
// transaction atomically.
func (r *GORMUserRepository) CreditLoyalty(tx *models.LoyaltyTransaction) error {
	err := r.db.Transaction(func(dbtx *gorm.DB) error {
		res := dbtx.Model(&models.User{}).Where("id = ?", tx.UserID).
			UpdateColumn("loyalty_points", gorm.Expr("loyalty_points + ?", tx.Points))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("user with ID %s not found for loyalty credit", tx.UserID)
		}
		return dbtx.Create(tx).Error
	})
	if err != nil {
		return fmt.Errorf("failed to credit loyalty points: %w", err)
	}
	return nil
}

// RecordPurchase bumps the user's lifetime spend counters.
func (r *GORMUserRepository) RecordPurchase(userID string, amount float64) error {
	res := r.db.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumns(map[string]interface{}{
			"total_spent":  gorm.Expr("total_spent + ?", amount),
			"total_orders": gorm.Expr("total_orders + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to record purchase for user %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user with ID %s not found for purchase record", userID)
	}
	return nil
}
