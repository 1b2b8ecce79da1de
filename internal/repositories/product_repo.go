package repositories

import (
	"kriptoko/internal/models"
)

// ProductRepository defines the interface for product data access. Stock
// and Reserved counter writes go through Update; the inventory ledger
// serializes them per product before calling in.
type ProductRepository interface {
	GetAll() ([]models.Product, error)
	GetByID(id string) (*models.Product, error)
	Create(product *models.Product) error
	Update(product *models.Product) error
	Delete(id string) error
}
