package services

import (
	"kriptoko/internal/models"
	"kriptoko/internal/repositories"
)

// ProductService handles business logic related to the product catalog.
// Stock counters are owned by the inventory ledger; this service only
// manages the catalog fields.
type ProductService struct {
	repo repositories.ProductRepository
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository) *ProductService {
	return &ProductService{
		repo: repo,
	}
}

// GetAllProducts retrieves all products.
func (s *ProductService) GetAllProducts() ([]models.Product, error) {
	return s.repo.GetAll()
}

// GetProductByID retrieves a single product by its ID.
func (s *ProductService) GetProductByID(id string) (*models.Product, error) {
	return s.repo.GetByID(id)
}

// CreateProduct creates a new product.
func (s *ProductService) CreateProduct(product *models.Product) error {
	return s.repo.Create(product)
}

// UpdateProduct updates an existing product's catalog fields, preserving
// the reserved counter the ledger owns.
func (s *ProductService) UpdateProduct(product *models.Product) error {
	current, err := s.repo.GetByID(product.ID)
	if err != nil {
		return err
	}
	product.Reserved = current.Reserved
	return s.repo.Update(product)
}

// DeleteProduct deletes a product by its ID.
func (s *ProductService) DeleteProduct(id string) error {
	return s.repo.Delete(id)
}
