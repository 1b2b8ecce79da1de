package repositories

import (
	"fmt"
	"sync"

	"kriptoko/internal/models"

	"github.com/google/uuid"
)

// MockPaymentRepository is an in-memory implementation of PaymentRepository.
type MockPaymentRepository struct {
	payments map[string]models.Payment // keyed by payment ID
	mu       sync.RWMutex
}

// NewMockPaymentRepository creates a new instance of MockPaymentRepository.
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[string]models.Payment),
	}
}

// Create adds a new payment.
func (r *MockPaymentRepository) Create(payment *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	for _, p := range r.payments {
		if p.InvoiceID == payment.InvoiceID {
			return fmt.Errorf("payment with invoice ID %s already exists", payment.InvoiceID)
		}
	}
	r.payments[payment.ID] = clonePayment(*payment)
	return nil
}

// GetByOrderID returns the payment attached to an order.
func (r *MockPaymentRepository) GetByOrderID(orderID string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.payments {
		if p.OrderID == orderID {
			cp := clonePayment(p)
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("payment for order %s not found", orderID)
}

// GetByInvoiceID returns a payment by its gateway invoice ID.
func (r *MockPaymentRepository) GetByInvoiceID(invoiceID string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			cp := clonePayment(p)
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("payment with invoice ID %s not found", invoiceID)
}

// Update modifies an existing payment.
func (r *MockPaymentRepository) Update(payment *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[payment.ID]; !ok {
		return fmt.Errorf("payment with ID %s not found for update", payment.ID)
	}
	r.payments[payment.ID] = clonePayment(*payment)
	return nil
}

// clonePayment deep-copies the applied-event slice so callers never share
// the stored backing array.
func clonePayment(p models.Payment) models.Payment {
	ids := make([]string, len(p.AppliedEventIDs))
	copy(ids, p.AppliedEventIDs)
	p.AppliedEventIDs = ids
	return p
}
