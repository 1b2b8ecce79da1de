package services

import (
	"context"
	"errors"
	"log"
	"time"

	"kriptoko/internal/models"
	"kriptoko/internal/repositories"
)

// Sweeper expires unpaid orders once their payment window has elapsed.
// Before expiring, it asks the gateway one last time, which covers
// webhooks that never arrived: a payment discovered to be finished or in
// flight blocks the expiration.
type Sweeper struct {
	orderRepo   repositories.OrderRepository
	paymentRepo repositories.PaymentRepository
	orders      *OrderService
	reconciler  *ReconcilerService
	interval    time.Duration
	// lookahead pulls orders whose deadline is close into proactive
	// reconciliation before they are actually due.
	lookahead time.Duration
}

// NewSweeper creates a new Sweeper.
func NewSweeper(
	orderRepo repositories.OrderRepository,
	paymentRepo repositories.PaymentRepository,
	orders *OrderService,
	reconciler *ReconcilerService,
	interval, lookahead time.Duration,
) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if lookahead < 0 {
		lookahead = 0
	}
	return &Sweeper{
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		orders:      orders,
		reconciler:  reconciler,
		interval:    interval,
		lookahead:   lookahead,
	}
}

// Run loops sweep passes until the context is cancelled. An in-flight pass
// finishes before Run returns; a half-applied transition would be worse
// than a slightly slower shutdown.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("Expiration sweeper running every %s (lookahead %s)", s.interval, s.lookahead)
	for {
		select {
		case <-ctx.Done():
			log.Println("Expiration sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs one pass: reconcile orders nearing or past their
// deadline, then expire those that are due and still unpaid.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	now := time.Now()
	orders, err := s.orderRepo.ListPendingWithDeadlineBefore(now.Add(s.lookahead))
	if err != nil {
		log.Printf("Sweep pass failed to list pending orders: %v", err)
		return
	}

	for _, order := range orders {
		if ctx.Err() != nil {
			return
		}
		s.sweepOrder(ctx, order, now)
	}
}

func (s *Sweeper) sweepOrder(ctx context.Context, order models.Order, now time.Time) {
	// One last chance for a delayed webhook: poll the gateway and fold the
	// answer through the reducer before deciding anything.
	payment, err := s.reconciler.Reconcile(ctx, order.ID)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			log.Printf("Sweep reconciliation for order %s: %v", order.ID, err)
		} else {
			log.Printf("Sweep reconciliation for order %s failed, using local state: %v", order.ID, err)
		}
	}
	if payment == nil {
		payment, err = s.paymentRepo.GetByOrderID(order.ID)
		if err != nil {
			log.Printf("No payment state for order %s, skipping: %v", order.ID, err)
			return
		}
	}

	if order.PaymentDeadline.After(now) {
		// Lookahead reconciliation only; the order is not due yet.
		return
	}
	if payment.Status.IsPaidEquivalent() {
		log.Printf("Order %s is past deadline but payment is %s, not expiring", order.ID, payment.Status)
		return
	}
	if payment.ReviewRequired {
		log.Printf("Order %s is under manual review, not expiring", order.ID)
		return
	}

	if err := s.orders.Transition(order.ID, models.OrderStatusExpired, "payment window elapsed"); err != nil {
		// A paid transition racing in between is rejected here and the
		// order keeps its money; anything else is worth a look.
		log.Printf("Could not expire order %s: %v", order.ID, err)
	}
}
