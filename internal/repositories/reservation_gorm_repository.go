package repositories

import (
	"fmt"

	"kriptoko/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMReservationRepository is a GORM implementation of ReservationRepository.
type GORMReservationRepository struct {
	db *gorm.DB
}

// NewGORMReservationRepository creates a new instance of GORMReservationRepository.
func NewGORMReservationRepository(db *gorm.DB) *GORMReservationRepository {
	return &GORMReservationRepository{
		db: db,
	}
}

// Create creates a new reservation in the database.
func (r *GORMReservationRepository) Create(reservation *models.Reservation) error {
	if reservation.ID == "" {
		reservation.ID = uuid.New().String()
	}
	if err := r.db.Create(reservation).Error; err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

// GetByID retrieves a reservation by its ID.
func (r *GORMReservationRepository) GetByID(id string) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := r.db.First(&reservation, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("reservation with ID %s not found", id)
		}
		return nil, fmt.Errorf("failed to get reservation by ID %s: %w", id, err)
	}
	return &reservation, nil
}

// GetByOrderID retrieves the reservation held for an order.
func (r *GORMReservationRepository) GetByOrderID(orderID string) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := r.db.First(&reservation, "order_id = ?", orderID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("reservation for order %s not found", orderID)
		}
		return nil, fmt.Errorf("failed to get reservation for order %s: %w", orderID, err)
	}
	return &reservation, nil
}

// Update updates an existing reservation.
func (r *GORMReservationRepository) Update(reservation *models.Reservation) error {
	res := r.db.Save(reservation)
	if res.Error != nil {
		return fmt.Errorf("failed to update reservation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("reservation with ID %s not found for update", reservation.ID)
	}
	return nil
}
