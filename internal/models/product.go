package models

import "gorm.io/gorm"

// Product represents a product in the store. Stock is the total on hand
// and Reserved the portion held by live reservations; what can still be
// sold is Available(). Both counters are owned exclusively by the
// inventory ledger and must never go negative.
type Product struct {
	ID          string  `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Name        string  `json:"name" validate:"required,min=3,max=100"`
	Description string  `json:"description" validate:"omitempty,max=500"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Stock       int     `json:"stock" validate:"gte=0"`
	Reserved    int     `json:"reserved" validate:"gte=0"`
	IsDigital   bool    `json:"is_digital"`
	Active      bool    `json:"active"`
	gorm.Model          // Embed gorm.Model for CreatedAt, UpdatedAt, DeletedAt
}

// Available returns the quantity still open for reservation.
func (p *Product) Available() int {
	return p.Stock - p.Reserved
}
