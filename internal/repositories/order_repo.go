package repositories

import (
	"errors"
	"time"

	"kriptoko/internal/models"
)

// ErrOrderStatusConflict is returned when a status update finds the order
// no longer in the expected status: a concurrent caller won the write race.
var ErrOrderStatusConflict = errors.New("order status changed concurrently")

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	GetAll() ([]models.Order, error)
	GetAllByUser(userID string) ([]models.Order, error)
	GetByID(id string) (*models.Order, error)
	Create(order *models.Order) error
	// UpdateStatus moves the order from one status to another as a single
	// compare-and-swap; if the order is not in the expected status anymore
	// it returns ErrOrderStatusConflict and writes nothing.
	UpdateStatus(id string, from, to models.OrderStatus) error
	// Delete removes an order that never left creation (the gateway refused
	// the invoice); orders with a payment history are never deleted.
	Delete(id string) error
	// ListPendingWithDeadlineBefore returns orders still awaiting payment
	// whose deadline falls before t. Used by the expiration sweeper.
	ListPendingWithDeadlineBefore(t time.Time) ([]models.Order, error)
}
