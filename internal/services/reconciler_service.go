package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"kriptoko/internal/models"
	"kriptoko/internal/repositories"
)

// PaymentEvent is the normalized input to the reconciliation reducer,
// whether it arrived as a verified webhook or a gateway status poll.
type PaymentEvent struct {
	// EventID identifies this report for deduplication.
	EventID   string
	InvoiceID string
	// Status uses the gateway's vocabulary.
	Status string
	// ReceivedAmount is the gateway's running total of funds received.
	ReceivedAmount float64
}

// ReconcilerService folds verified gateway events into payment and order
// state. The reducer is idempotent: replaying any event yields the same
// final state as applying it once. A per-order lock serializes webhook
// redelivery against sweeper-triggered polls, so only one reconciliation
// is ever in flight per order.
type ReconcilerService struct {
	paymentRepo repositories.PaymentRepository
	orders      *OrderService
	gateway     PaymentGateway
	settlement  *SettlementService
	// underpaymentTolerance is the accepted shortfall as a fraction of the
	// requested amount; a finished payment short beyond it goes to manual
	// review instead of settling.
	underpaymentTolerance float64
	locks                 sync.Map // order ID -> *sync.Mutex
}

// NewReconcilerService creates a new ReconcilerService.
func NewReconcilerService(
	paymentRepo repositories.PaymentRepository,
	orders *OrderService,
	gateway PaymentGateway,
	settlement *SettlementService,
	underpaymentTolerance float64,
) *ReconcilerService {
	return &ReconcilerService{
		paymentRepo:           paymentRepo,
		orders:                orders,
		gateway:               gateway,
		settlement:            settlement,
		underpaymentTolerance: underpaymentTolerance,
	}
}

func (s *ReconcilerService) lockOrder(orderID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(orderID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ApplyEvent is the idempotent reducer. Unknown invoices are logged and
// discarded; duplicate event ids are acknowledged without reapplying;
// everything else is folded into the payment under the monotonic status
// ordering and, where a terminal state is reached, into the order.
func (s *ReconcilerService) ApplyEvent(event PaymentEvent) error {
	payment, err := s.paymentRepo.GetByInvoiceID(event.InvoiceID)
	if err != nil {
		log.Printf("Discarding payment event %s: no payment for invoice %s", event.EventID, event.InvoiceID)
		return fmt.Errorf("%w: %s", ErrUnknownInvoice, event.InvoiceID)
	}

	mu := s.lockOrder(payment.OrderID)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under the lock; a concurrent reconciliation may have moved on.
	payment, err = s.paymentRepo.GetByInvoiceID(event.InvoiceID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownInvoice, event.InvoiceID)
	}

	if payment.HasAppliedEvent(event.EventID) {
		log.Printf("Payment event %s already applied to invoice %s, skipping", event.EventID, event.InvoiceID)
		return nil
	}

	previous := payment.Status
	reported := models.MapGatewayStatus(event.Status)
	merged := models.MergeStatus(previous, reported)

	// Every event id is kept, including stale ones, so the applied-event
	// list doubles as the audit log the gateway's out-of-order deliveries
	// are reconstructed from.
	payment.AppliedEventIDs = append(payment.AppliedEventIDs, event.EventID)
	if event.ReceivedAmount > payment.ReceivedAmount {
		payment.ReceivedAmount = event.ReceivedAmount
	}
	if merged != reported {
		log.Printf("Stale status %q for invoice %s (currently %s), recorded for audit only",
			event.Status, event.InvoiceID, previous)
	}
	payment.Status = merged

	entered := func(status models.PaymentStatus) bool {
		return merged == status && previous != status
	}

	if entered(models.PaymentStatusFinished) {
		s.applyFinished(payment)
	}

	// The order is driven before the applied-event record is persisted. A
	// transition failure then leaves the payment untouched, so a redelivery
	// of the same event retries cleanly instead of hitting the dedup guard;
	// the transition side effects themselves are idempotent, so the reverse
	// failure (persist fails after the order moved) is also safe to replay.
	switch {
	case entered(models.PaymentStatusFinished) && !payment.ReviewRequired:
		if err := s.orders.Transition(payment.OrderID, models.OrderStatusPaid, "payment finished"); err != nil {
			return err
		}
	case entered(models.PaymentStatusRefunded):
		// Refunds walk the order through the refund branch; each step is
		// idempotent if a duplicate report already drove it.
		if err := s.orders.Transition(payment.OrderID, models.OrderStatusRefundRequested, "gateway reported refund"); err != nil {
			log.Printf("Refund transition for order %s: %v", payment.OrderID, err)
		}
		if err := s.orders.Transition(payment.OrderID, models.OrderStatusRefunded, "gateway reported refund"); err != nil {
			return err
		}
	case entered(models.PaymentStatusFailed), entered(models.PaymentStatusExpired):
		// Terminal on the payment side only; the sweeper expires the order
		// once its deadline passes.
		log.Printf("Payment for order %s reached %s", payment.OrderID, merged)
	}

	if err := s.paymentRepo.Update(payment); err != nil {
		return fmt.Errorf("failed to persist payment %s: %w", payment.ID, err)
	}

	if entered(models.PaymentStatusFinished) && payment.SurplusAmount > 0 && s.settlement != nil {
		order, err := s.orders.GetOrderByID(payment.OrderID)
		if err == nil {
			if err := s.settlement.CreditSurplus(order.ID, order.UserID, payment.SurplusAmount); err != nil {
				log.Printf("Warning: %v", err)
			}
		}
	}
	return nil
}

// applyFinished resolves the finished amount against the requested amount:
// enough (within tolerance) settles, a surplus is remembered for loyalty
// credit, a real shortfall routes the payment to manual review.
func (s *ReconcilerService) applyFinished(payment *models.Payment) {
	requested := payment.PriceAmount
	received := payment.ReceivedAmount
	accepted := requested * (1 - s.underpaymentTolerance)

	switch {
	case received >= requested:
		payment.SurplusAmount = received - requested
	case received >= accepted:
		log.Printf("Invoice %s finished %.8f short of %.8f, within tolerance",
			payment.InvoiceID, requested-received, requested)
	default:
		payment.ReviewRequired = true
		log.Printf("Invoice %s finished underpaid (%.8f of %.8f), routing to manual review",
			payment.InvoiceID, received, requested)
	}
}

// Reconcile polls the gateway for the order's current payment status and
// folds the answer through the same reducer webhooks use. It is the
// fallback for webhooks that are delayed or lost.
func (s *ReconcilerService) Reconcile(ctx context.Context, orderID string) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByOrderID(orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment for order %s: %w", orderID, err)
	}

	update, err := s.gateway.QueryStatus(ctx, payment.InvoiceID)
	if err != nil {
		return payment, fmt.Errorf("status query for invoice %s failed: %w", payment.InvoiceID, err)
	}

	event := PaymentEvent{
		// Deterministic id: polling the same gateway state twice dedups.
		EventID:        fmt.Sprintf("poll:%s:%s:%v", payment.InvoiceID, update.Status, update.ActuallyPaid),
		InvoiceID:      payment.InvoiceID,
		Status:         update.Status,
		ReceivedAmount: update.ActuallyPaid,
	}
	if err := s.ApplyEvent(event); err != nil {
		return payment, err
	}
	return s.paymentRepo.GetByOrderID(orderID)
}
