package repositories

import (
	"sync"
	"time"

	"kriptoko/internal/models"

	"github.com/google/uuid"
)

// MockSettlementRepository is an in-memory implementation of SettlementRepository.
type MockSettlementRepository struct {
	events []models.SettlementEvent
	mu     sync.RWMutex
}

// NewMockSettlementRepository creates a new instance of MockSettlementRepository.
func NewMockSettlementRepository() *MockSettlementRepository {
	return &MockSettlementRepository{}
}

// Create adds a settlement event, refusing duplicates per (order, kind).
func (r *MockSettlementRepository) Create(event *models.SettlementEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ev := range r.events {
		if ev.OrderID == event.OrderID && ev.Kind == event.Kind {
			return ErrAlreadySettled
		}
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.CreatedAt = time.Now()
	r.events = append(r.events, *event)
	return nil
}

// GetByOrderID returns all settlement events recorded for an order.
func (r *MockSettlementRepository) GetByOrderID(orderID string) ([]models.SettlementEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.SettlementEvent
	for _, ev := range r.events {
		if ev.OrderID == orderID {
			out = append(out, ev)
		}
	}
	return out, nil
}
