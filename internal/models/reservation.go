package models

import "time"

// ReservationStatus is the lifecycle state of a stock hold.
type ReservationStatus string

const (
	ReservationStatusHeld      ReservationStatus = "held"
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusReleased  ReservationStatus = "released"
)

// Reservation is the temporary stock hold backing an order, exactly one
// live per order. It either commits (stock consumed on payment) or is
// released (expiry or cancellation).
type Reservation struct {
	ID      string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID string `json:"order_id" gorm:"uniqueIndex;type:varchar(36)"`
	// Items maps product id to held quantity.
	Items     map[string]int    `json:"items" gorm:"serializer:json"`
	Status    ReservationStatus `json:"status" gorm:"type:varchar(16)"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
