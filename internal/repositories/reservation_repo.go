package repositories

import (
	"kriptoko/internal/models"
)

// ReservationRepository defines the interface for stock-hold data access.
type ReservationRepository interface {
	Create(reservation *models.Reservation) error
	GetByID(id string) (*models.Reservation, error)
	GetByOrderID(orderID string) (*models.Reservation, error)
	Update(reservation *models.Reservation) error
}
