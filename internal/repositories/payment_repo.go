package repositories

import (
	"kriptoko/internal/models"
)

// PaymentRepository defines the interface for payment data access.
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetByOrderID(orderID string) (*models.Payment, error)
	GetByInvoiceID(invoiceID string) (*models.Payment, error)
	Update(payment *models.Payment) error
}
