package repositories

import (
	"fmt"
	"sync"

	"kriptoko/internal/models"

	"github.com/google/uuid"
)

// MockReservationRepository is an in-memory implementation of ReservationRepository.
type MockReservationRepository struct {
	reservations map[string]models.Reservation
	mu           sync.RWMutex
}

// NewMockReservationRepository creates a new instance of MockReservationRepository.
func NewMockReservationRepository() *MockReservationRepository {
	return &MockReservationRepository{
		reservations: make(map[string]models.Reservation),
	}
}

// Create adds a new reservation.
func (r *MockReservationRepository) Create(reservation *models.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reservation.ID == "" {
		reservation.ID = uuid.New().String()
	}
	for _, res := range r.reservations {
		if res.OrderID == reservation.OrderID {
			return fmt.Errorf("reservation for order %s already exists", reservation.OrderID)
		}
	}
	r.reservations[reservation.ID] = cloneReservation(*reservation)
	return nil
}

// GetByID returns a reservation by its ID.
func (r *MockReservationRepository) GetByID(id string) (*models.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reservation, ok := r.reservations[id]
	if !ok {
		return nil, fmt.Errorf("reservation with ID %s not found", id)
	}
	cp := cloneReservation(reservation)
	return &cp, nil
}

// GetByOrderID returns the reservation held for an order.
func (r *MockReservationRepository) GetByOrderID(orderID string) (*models.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, reservation := range r.reservations {
		if reservation.OrderID == orderID {
			cp := cloneReservation(reservation)
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("reservation for order %s not found", orderID)
}

// Update modifies an existing reservation.
func (r *MockReservationRepository) Update(reservation *models.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reservations[reservation.ID]; !ok {
		return fmt.Errorf("reservation with ID %s not found for update", reservation.ID)
	}
	r.reservations[reservation.ID] = cloneReservation(*reservation)
	return nil
}

func cloneReservation(res models.Reservation) models.Reservation {
	items := make(map[string]int, len(res.Items))
	for k, v := range res.Items {
		items[k] = v
	}
	res.Items = items
	return res
}
