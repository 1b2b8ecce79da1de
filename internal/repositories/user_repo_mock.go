package repositories

import (
	"fmt"
	"sync"
	"time"

	"kriptoko/internal/models"

	"github.com/google/uuid"
)

// MockUserRepository is an in-memory implementation of UserRepository.
type MockUserRepository struct {
	users        map[string]models.User
	transactions []models.LoyaltyTransaction
	mu           sync.RWMutex
}

// NewMockUserRepository creates a new instance of MockUserRepository.
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users: make(map[string]models.User),
	}
}

// Create adds a new user.
func (r *MockUserRepository) Create(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	for _, u := range r.users {
		if u.Username == user.Username {
			return fmt.Errorf("username '%s' already taken", user.Username)
		}
	}
	r.users[user.ID] = *user
	return nil
}

// GetByUsername returns a user by their username.
func (r *MockUserRepository) GetByUsername(username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			user := u
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user with username %s not found", username)
}

// GetByEmail returns a user by their email.
func (r *MockUserRepository) GetByEmail(email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user with email %s not found", email)
}

// GetByID returns a user by their ID.
func (r *MockUserRepository) GetByID(id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user with ID %s not found", id)
	}
	return &user, nil
}

// CreditLoyalty adds points to the user's balance and records the transaction.
func (r *MockUserRepository) CreditLoyalty(tx *models.LoyaltyTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[tx.UserID]
	if !ok {
		return fmt.Errorf("user with ID %s not found for loyalty credit", tx.UserID)
	}
	user.LoyaltyPoints += tx.Points
	r.users[tx.UserID] = user
	tx.CreatedAt = time.Now()
	r.transactions = append(r.transactions, *tx)
	return nil
}

// RecordPurchase bumps the user's lifetime spend counters.
func (r *MockUserRepository) RecordPurchase(userID string, amount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("user with ID %s not found for purchase record", userID)
	}
	user.TotalSpent += amount
	user.TotalOrders++
	r.users[userID] = user
	return nil
}

// LoyaltyTransactions returns the recorded transactions, for tests.
func (r *MockUserRepository) LoyaltyTransactions() []models.LoyaltyTransaction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.LoyaltyTransaction, len(r.transactions))
	copy(out, r.transactions)
	return out
}
