package repositories

import (
	"errors"

	"kriptoko/internal/models"
)

// ErrAlreadySettled is returned when a settlement event for the same
// (order, kind) pair was already recorded. Callers treat it as "done".
var ErrAlreadySettled = errors.New("settlement already recorded for this order and kind")

// SettlementRepository defines the interface for settlement-event data
// access. Create must refuse a second event for the same (order, kind)
// pair with ErrAlreadySettled; that uniqueness is what keeps downstream
// effects at-most-once per terminal transition.
type SettlementRepository interface {
	Create(event *models.SettlementEvent) error
	GetByOrderID(orderID string) ([]models.SettlementEvent, error)
}
