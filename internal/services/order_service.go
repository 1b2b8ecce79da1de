package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"kriptoko/internal/models"
	"kriptoko/internal/repositories"
	"kriptoko/pkg/nowpayments"

	"github.com/google/uuid"
)

// PaymentGateway is the outbound contract with the crypto payment
// processor. Both calls block on network I/O and must honor the context.
type PaymentGateway interface {
	CreateInvoice(ctx context.Context, orderID string, amount float64, currency string) (*nowpayments.Invoice, error)
	QueryStatus(ctx context.Context, invoiceID string) (*nowpayments.PaymentUpdate, error)
}

// OrderServiceConfig carries the order policy knobs.
type OrderServiceConfig struct {
	// PaymentWindow is how long a customer has to pay before the order
	// expires and its stock hold is released.
	PaymentWindow time.Duration
	// Currency is the price currency invoices are denominated in.
	Currency string
	// RestockOnRefund returns committed stock to the shelf when a paid
	// order is refunded. Off for digital goods.
	RestockOnRefund bool
}

// OrderService owns order records and drives the order state machine.
// All status changes, including those requested by the payment reconciler,
// go through Transition.
type OrderService struct {
	orderRepo       repositories.OrderRepository
	paymentRepo     repositories.PaymentRepository
	productRepo     repositories.ProductRepository
	reservationRepo repositories.ReservationRepository
	inventory       *InventoryService
	gateway         PaymentGateway
	settlement      *SettlementService
	cfg             OrderServiceConfig
}

// NewOrderService creates a new OrderService.
func NewOrderService(
	orderRepo repositories.OrderRepository,
	paymentRepo repositories.PaymentRepository,
	productRepo repositories.ProductRepository,
	reservationRepo repositories.ReservationRepository,
	inventory *InventoryService,
	gateway PaymentGateway,
	settlement *SettlementService,
	cfg OrderServiceConfig,
) *OrderService {
	if cfg.PaymentWindow <= 0 {
		cfg.PaymentWindow = 30 * time.Minute
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &OrderService{
		orderRepo:       orderRepo,
		paymentRepo:     paymentRepo,
		productRepo:     productRepo,
		reservationRepo: reservationRepo,
		inventory:       inventory,
		gateway:         gateway,
		settlement:      settlement,
		cfg:             cfg,
	}
}

// GetAllOrders retrieves all orders.
func (s *OrderService) GetAllOrders() ([]models.Order, error) {
	return s.orderRepo.GetAll()
}

// GetOrdersByUser retrieves all orders belonging to a user.
func (s *OrderService) GetOrdersByUser(userID string) ([]models.Order, error) {
	return s.orderRepo.GetAllByUser(userID)
}

// GetOrderByID retrieves a single order by its ID.
func (s *OrderService) GetOrderByID(id string) (*models.Order, error) {
	return s.orderRepo.GetByID(id)
}

// GetPaymentByOrderID retrieves the payment attached to an order.
func (s *OrderService) GetPaymentByOrderID(orderID string) (*models.Payment, error) {
	return s.paymentRepo.GetByOrderID(orderID)
}

// CreateOrder reserves stock for every requested item (all-or-nothing),
// snapshots prices, creates the order in pending_payment with a payment
// deadline, and requests an invoice from the gateway. If the gateway
// refuses or stays unavailable, the hold is released and the order is
// unwound before the error is returned.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, requested []models.OrderItem) (*models.Order, *models.Payment, error) {
	if len(requested) == 0 {
		return nil, nil, fmt.Errorf("an order needs at least one item")
	}

	// Collapse duplicate lines for the same product into one hold.
	quantities := make(map[string]int)
	for _, item := range requested {
		if item.Quantity <= 0 {
			return nil, nil, fmt.Errorf("invalid quantity %d for product %s", item.Quantity, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}

	orderID := uuid.New().String()

	// Snapshot the catalog before holding stock, so the totals the customer
	// sees are the totals that get invoiced.
	var items []models.OrderItem
	var totalAmount float64
	for productID, qty := range quantities {
		product, err := s.productRepo.GetByID(productID)
		if err != nil {
			return nil, nil, fmt.Errorf("product %s not found: %w", productID, err)
		}
		if !product.Active {
			return nil, nil, fmt.Errorf("product %s is not available for sale", productID)
		}
		items = append(items, models.OrderItem{
			OrderID:     orderID,
			ProductID:   productID,
			ProductName: product.Name,
			Quantity:    qty,
			UnitPrice:   product.Price,
			IsDigital:   product.IsDigital,
		})
		totalAmount += product.Price * float64(qty)
	}

	reservation, err := s.inventory.Reserve(orderID, quantities)
	if err != nil {
		return nil, nil, err
	}

	order := &models.Order{
		ID:              orderID,
		UserID:          userID,
		Items:           items,
		TotalAmount:     totalAmount,
		Currency:        s.cfg.Currency,
		Status:          models.OrderStatusPendingPayment,
		PaymentDeadline: time.Now().Add(s.cfg.PaymentWindow),
	}
	if err := s.orderRepo.Create(order); err != nil {
		s.releaseQuietly(reservation.ID, orderID)
		return nil, nil, fmt.Errorf("failed to create order: %w", err)
	}

	invoice, err := s.gateway.CreateInvoice(ctx, orderID, totalAmount, s.cfg.Currency)
	if err != nil {
		s.unwindOrder(order, reservation)
		return nil, nil, fmt.Errorf("failed to create invoice for order %s: %w", orderID, err)
	}

	payment := &models.Payment{
		ID:            uuid.New().String(),
		OrderID:       orderID,
		InvoiceID:     invoice.InvoiceID,
		PayAddress:    invoice.PayAddress,
		PayAmount:     invoice.PayAmount,
		PayCurrency:   invoice.PayCurrency,
		PriceAmount:   totalAmount,
		PriceCurrency: s.cfg.Currency,
		PaymentURI:    invoice.PaymentURI,
		Status:        models.PaymentStatusCreated,
		ExpiresAt:     invoice.ExpiresAt,
	}
	if err := s.paymentRepo.Create(payment); err != nil {
		s.unwindOrder(order, reservation)
		return nil, nil, fmt.Errorf("failed to record payment for order %s: %w", orderID, err)
	}

	log.Printf("Created order %s for user %s: %.2f %s, invoice %s, deadline %s",
		orderID, userID, totalAmount, s.cfg.Currency, invoice.InvoiceID, order.PaymentDeadline.Format(time.RFC3339))
	return order, payment, nil
}

// unwindOrder rolls back an order whose invoice never materialized.
func (s *OrderService) unwindOrder(order *models.Order, reservation *models.Reservation) {
	s.releaseQuietly(reservation.ID, order.ID)
	if err := s.orderRepo.Delete(order.ID); err != nil {
		log.Printf("Failed to unwind order %s: %v", order.ID, err)
	}
}

func (s *OrderService) releaseQuietly(reservationID, orderID string) {
	if err := s.inventory.Release(reservationID); err != nil {
		log.Printf("Failed to release reservation %s for order %s: %v", reservationID, orderID, err)
	}
}

// Transition moves an order to a target status, enforcing the transition
// table. The status write is a compare-and-swap against the status that was
// read, so two racing transitions (a webhook-driven paid against a
// sweeper-driven expired) can never both win. Re-applying the status an
// order is already in re-drives the side effects, all of which are
// idempotent, so at-least-once callers can heal a partially applied
// transition. Side effects are bound to the state being entered: paid
// commits the stock hold and settles; expired and cancelled release the
// hold; refunded settles the refund and optionally restocks.
func (s *OrderService) Transition(orderID string, target models.OrderStatus, cause string) error {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	if order.Status == target {
		log.Printf("Order %s already %s (%s), re-driving settlement effects", orderID, target, cause)
	} else {
		if !models.CanTransition(order.Status, target) {
			return fmt.Errorf("%w: order %s cannot move %s -> %s (%s)",
				ErrInvalidTransition, orderID, order.Status, target, cause)
		}
		err := s.orderRepo.UpdateStatus(orderID, order.Status, target)
		if errors.Is(err, repositories.ErrOrderStatusConflict) {
			// Lost the write race. If the winner applied the same target the
			// effects below still need driving; any other winner means this
			// transition must not happen at all.
			current, rerr := s.orderRepo.GetByID(orderID)
			if rerr != nil || current.Status != target {
				return fmt.Errorf("%w: order %s moved concurrently, not applying %s (%s)",
					ErrInvalidTransition, orderID, target, cause)
			}
		} else if err != nil {
			return fmt.Errorf("failed to update order %s status: %w", orderID, err)
		}
		order.Status = target
		log.Printf("Order %s transitioned to %s (%s)", orderID, target, cause)
	}

	switch target {
	case models.OrderStatusPaid:
		if err := s.settleReservation(orderID, true); err != nil {
			return err
		}
		if s.settlement != nil {
			if err := s.settlement.Emit(order, models.SettlementPaid); err != nil {
				log.Printf("Warning: settlement emission failed for order %s: %v", orderID, err)
			}
		}
	case models.OrderStatusExpired, models.OrderStatusCancelled:
		if err := s.settleReservation(orderID, false); err != nil {
			return err
		}
		if target == models.OrderStatusExpired && s.settlement != nil {
			if err := s.settlement.Emit(order, models.SettlementExpired); err != nil {
				log.Printf("Warning: settlement emission failed for order %s: %v", orderID, err)
			}
		}
	case models.OrderStatusRefunded:
		if s.cfg.RestockOnRefund {
			if reservation, err := s.reservationRepo.GetByOrderID(orderID); err == nil {
				if err := s.inventory.Restock(reservation.ID); err != nil {
					log.Printf("Warning: restock failed for order %s: %v", orderID, err)
				}
			}
		}
		if s.settlement != nil {
			if err := s.settlement.Emit(order, models.SettlementRefunded); err != nil {
				log.Printf("Warning: settlement emission failed for order %s: %v", orderID, err)
			}
		}
	}
	return nil
}

// settleReservation commits or releases the order's stock hold.
func (s *OrderService) settleReservation(orderID string, commit bool) error {
	reservation, err := s.reservationRepo.GetByOrderID(orderID)
	if err != nil {
		return fmt.Errorf("failed to load reservation for order %s: %w", orderID, err)
	}
	if commit {
		if err := s.inventory.Commit(reservation.ID); err != nil {
			return fmt.Errorf("failed to commit reservation for order %s: %w", orderID, err)
		}
		return nil
	}
	if err := s.inventory.Release(reservation.ID); err != nil {
		return fmt.Errorf("failed to release reservation for order %s: %w", orderID, err)
	}
	return nil
}

// CancelOrder is the customer-initiated cancellation: only the order's
// owner may cancel, and only while payment is still pending.
func (s *OrderService) CancelOrder(orderID, userID string) error {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	if order.UserID != userID {
		return fmt.Errorf("order %s does not belong to user %s", orderID, userID)
	}
	return s.Transition(orderID, models.OrderStatusCancelled, "cancelled by customer")
}
