package repositories

import (
	"errors"
	"fmt"

	"kriptoko/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMSettlementRepository is a GORM implementation of SettlementRepository.
type GORMSettlementRepository struct {
	db *gorm.DB
}

// NewGORMSettlementRepository creates a new instance of GORMSettlementRepository.
func NewGORMSettlementRepository(db *gorm.DB) *GORMSettlementRepository {
	return &GORMSettlementRepository{
		db: db,
	}
}

// Create inserts a settlement event. The unique (order_id, kind) index
// turns a duplicate emission attempt into ErrAlreadySettled.
func (r *GORMSettlementRepository) Create(event *models.SettlementEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if err := r.db.Create(event).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadySettled
		}
		// Drivers without translated errors surface the raw constraint
		// violation; probe for an existing row before giving up.
		var count int64
		r.db.Model(&models.SettlementEvent{}).
			Where("order_id = ? AND kind = ?", event.OrderID, event.Kind).
			Count(&count)
		if count > 0 {
			return ErrAlreadySettled
		}
		return fmt.Errorf("failed to create settlement event: %w", err)
	}
	return nil
}

// GetByOrderID returns all settlement events recorded for an order.
func (r *GORMSettlementRepository) GetByOrderID(orderID string) ([]models.SettlementEvent, error) {
	var events []models.SettlementEvent
	if err := r.db.Where("order_id = ?", orderID).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to get settlement events for order %s: %w", orderID, err)
	}
	return events, nil
}
