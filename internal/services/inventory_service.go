package services

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"kriptoko/internal/models"
	"kriptoko/internal/repositories"

	"github.com/google/uuid"
)

// InventoryService is the stock ledger. It owns the Stock/Reserved counters
// on products and guarantees that no two concurrent reservations can
// together hold more than the total stock. Every counter mutation happens
// inside the owning product's critical section.
type InventoryService struct {
	productRepo     repositories.ProductRepository
	reservationRepo repositories.ReservationRepository
	locks           sync.Map // product ID -> *sync.Mutex
}

// NewInventoryService creates a new InventoryService.
func NewInventoryService(productRepo repositories.ProductRepository, reservationRepo repositories.ReservationRepository) *InventoryService {
	return &InventoryService{
		productRepo:     productRepo,
		reservationRepo: reservationRepo,
	}
}

// lockProduct returns the mutex guarding one product's counters.
func (s *InventoryService) lockProduct(productID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(productID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// lockAll acquires the critical sections of every listed product in sorted
// id order, so simultaneous multi-item reservations cannot deadlock.
// The returned function releases them.
func (s *InventoryService) lockAll(productIDs []string) func() {
	sorted := make([]string, len(productIDs))
	copy(sorted, productIDs)
	sort.Strings(sorted)

	locked := make([]*sync.Mutex, 0, len(sorted))
	for _, id := range sorted {
		mu := s.lockProduct(id)
		mu.Lock()
		locked = append(locked, mu)
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].Unlock()
		}
	}
}

// checkCounters verifies the ledger invariant before anything is written:
// stock and reserved are non-negative and reserved never exceeds stock.
func checkCounters(p *models.Product) error {
	if p.Stock < 0 || p.Reserved < 0 || p.Reserved > p.Stock {
		return fmt.Errorf("inventory invariant violated for product %s: stock=%d reserved=%d", p.ID, p.Stock, p.Reserved)
	}
	return nil
}

// Reserve places an all-or-nothing hold for an order: either every product
// has enough available stock and all holds are taken, or nothing changes
// and ErrInsufficientStock is returned. items maps product id to quantity.
func (s *InventoryService) Reserve(orderID string, items map[string]int) (*models.Reservation, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("cannot reserve an empty item set")
	}

	productIDs := make([]string, 0, len(items))
	for id, qty := range items {
		if qty <= 0 {
			return nil, fmt.Errorf("invalid quantity %d for product %s", qty, id)
		}
		productIDs = append(productIDs, id)
	}

	unlock := s.lockAll(productIDs)
	defer unlock()

	// First pass: everything must fit before anything is held.
	products := make(map[string]*models.Product, len(items))
	for id, qty := range items {
		product, err := s.productRepo.GetByID(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load product %s: %w", id, err)
		}
		if product.Available() < qty {
			return nil, fmt.Errorf("%w: product %s (requested: %d, available: %d)",
				ErrInsufficientStock, id, qty, product.Available())
		}
		products[id] = product
	}

	// Second pass: take the holds, unwinding on any write failure.
	held := make([]string, 0, len(items))
	for id, qty := range items {
		product := products[id]
		product.Reserved += qty
		if err := checkCounters(product); err != nil {
			s.unwindHolds(held, items, products)
			return nil, err
		}
		if err := s.productRepo.Update(product); err != nil {
			product.Reserved -= qty
			s.unwindHolds(held, items, products)
			return nil, fmt.Errorf("failed to persist hold on product %s: %w", id, err)
		}
		held = append(held, id)
	}

	reservation := &models.Reservation{
		ID:      uuid.New().String(),
		OrderID: orderID,
		Items:   items,
		Status:  models.ReservationStatusHeld,
	}
	if err := s.reservationRepo.Create(reservation); err != nil {
		s.unwindHolds(held, items, products)
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}
	return reservation, nil
}

// unwindHolds returns already-taken holds after a partial failure. Callers
// still hold the product locks.
func (s *InventoryService) unwindHolds(held []string, items map[string]int, products map[string]*models.Product) {
	for _, id := range held {
		product := products[id]
		product.Reserved -= items[id]
		if err := s.productRepo.Update(product); err != nil {
			log.Printf("Failed to unwind hold on product %s: %v", id, err)
		}
	}
}

// Release returns a reservation's quantities to available stock. Releasing
// a reservation that is already released or committed is a no-op.
func (s *InventoryService) Release(reservationID string) error {
	return s.settle(reservationID, models.ReservationStatusReleased)
}

// Commit consumes a reservation permanently: total stock drops by the held
// quantities. Committing twice is a no-op.
func (s *InventoryService) Commit(reservationID string) error {
	return s.settle(reservationID, models.ReservationStatusCommitted)
}

// settle moves a held reservation to its final state and adjusts the
// product counters accordingly. Non-held reservations are left alone, which
// is what makes Release and Commit idempotent.
func (s *InventoryService) settle(reservationID string, target models.ReservationStatus) error {
	reservation, err := s.reservationRepo.GetByID(reservationID)
	if err != nil {
		return fmt.Errorf("failed to load reservation %s: %w", reservationID, err)
	}

	productIDs := make([]string, 0, len(reservation.Items))
	for id := range reservation.Items {
		productIDs = append(productIDs, id)
	}
	unlock := s.lockAll(productIDs)
	defer unlock()

	// Re-read under the locks; another caller may have settled it already.
	reservation, err = s.reservationRepo.GetByID(reservationID)
	if err != nil {
		return fmt.Errorf("failed to load reservation %s: %w", reservationID, err)
	}
	if reservation.Status != models.ReservationStatusHeld {
		log.Printf("Reservation %s already %s, skipping %s", reservationID, reservation.Status, target)
		return nil
	}

	// Apply the counter deltas, unwinding already-written products on any
	// failure so the reservation stays Held and a retry starts clean.
	written := make([]*models.Product, 0, len(reservation.Items))
	unwind := func() {
		for _, product := range written {
			product.Reserved += reservation.Items[product.ID]
			if target == models.ReservationStatusCommitted {
				product.Stock += reservation.Items[product.ID]
			}
			if err := s.productRepo.Update(product); err != nil {
				log.Printf("Failed to unwind settle on product %s: %v", product.ID, err)
			}
		}
	}
	for id, qty := range reservation.Items {
		product, err := s.productRepo.GetByID(id)
		if err != nil {
			unwind()
			return fmt.Errorf("failed to load product %s: %w", id, err)
		}
		product.Reserved -= qty
		if target == models.ReservationStatusCommitted {
			product.Stock -= qty
		}
		if err := checkCounters(product); err != nil {
			unwind()
			return err
		}
		if err := s.productRepo.Update(product); err != nil {
			unwind()
			return fmt.Errorf("failed to update product %s: %w", id, err)
		}
		written = append(written, product)
	}

	reservation.Status = target
	if err := s.reservationRepo.Update(reservation); err != nil {
		unwind()
		return fmt.Errorf("failed to update reservation %s: %w", reservationID, err)
	}
	return nil
}

// Restock returns committed quantities to stock, used when a refunded
// physical order is configured to restock.
func (s *InventoryService) Restock(reservationID string) error {
	reservation, err := s.reservationRepo.GetByID(reservationID)
	if err != nil {
		return fmt.Errorf("failed to load reservation %s: %w", reservationID, err)
	}
	if reservation.Status != models.ReservationStatusCommitted {
		log.Printf("Reservation %s is %s, nothing to restock", reservationID, reservation.Status)
		return nil
	}

	productIDs := make([]string, 0, len(reservation.Items))
	for id := range reservation.Items {
		productIDs = append(productIDs, id)
	}
	unlock := s.lockAll(productIDs)
	defer unlock()

	written := make([]*models.Product, 0, len(reservation.Items))
	unwind := func() {
		for _, product := range written {
			product.Stock -= reservation.Items[product.ID]
			if err := s.productRepo.Update(product); err != nil {
				log.Printf("Failed to unwind restock on product %s: %v", product.ID, err)
			}
		}
	}
	for id, qty := range reservation.Items {
		product, err := s.productRepo.GetByID(id)
		if err != nil {
			unwind()
			return fmt.Errorf("failed to load product %s: %w", id, err)
		}
		product.Stock += qty
		if err := checkCounters(product); err != nil {
			unwind()
			return err
		}
		if err := s.productRepo.Update(product); err != nil {
			unwind()
			return fmt.Errorf("failed to update product %s: %w", id, err)
		}
		written = append(written, product)
	}

	// Marking the reservation released makes a second restock a no-op.
	reservation.Status = models.ReservationStatusReleased
	if err := s.reservationRepo.Update(reservation); err != nil {
		unwind()
		return fmt.Errorf("failed to update reservation %s: %w", reservationID, err)
	}
	return nil
}
