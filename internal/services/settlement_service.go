package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"kriptoko/internal/models"
	"kriptoko/internal/repositories"
)

// EventPublisher is the settlement effect sink: delivery and loyalty
// collaborators consume what is published here. Publishing is
// fire-and-forget from the core's perspective; redelivery is the
// consumer's job, never the core's.
type EventPublisher interface {
	Publish(routingKey string, body []byte) error
}

// settlementMessage is the wire form of a settlement event.
type settlementMessage struct {
	OrderID      string             `json:"order_id"`
	Kind         string             `json:"kind"`
	UserID       string             `json:"user_id"`
	Amount       float64            `json:"amount"`
	Currency     string             `json:"currency"`
	DigitalItems []models.OrderItem `json:"digital_items,omitempty"`
}

// SettlementService records terminal order outcomes and fans out their
// effects. The settlement event row is inserted before anything else and
// its (order, kind) uniqueness makes every effect at-most-once per
// terminal transition, no matter how often a transition side effect is
// re-driven.
type SettlementService struct {
	settlementRepo repositories.SettlementRepository
	userRepo       repositories.UserRepository
	publisher      EventPublisher
	// pointsPerUnit is how many loyalty points one unit of currency earns.
	pointsPerUnit float64
}

// NewSettlementService creates a new SettlementService. publisher may be
// nil, in which case effects are logged only.
func NewSettlementService(
	settlementRepo repositories.SettlementRepository,
	userRepo repositories.UserRepository,
	publisher EventPublisher,
	pointsPerUnit float64,
) *SettlementService {
	return &SettlementService{
		settlementRepo: settlementRepo,
		userRepo:       userRepo,
		publisher:      publisher,
		pointsPerUnit:  pointsPerUnit,
	}
}

// Emit records a terminal outcome for an order and triggers its downstream
// effects. A second emission for the same order and kind is recognized and
// skipped without error.
func (s *SettlementService) Emit(order *models.Order, kind models.SettlementKind) error {
	event := &models.SettlementEvent{
		OrderID:  order.ID,
		Kind:     kind,
		UserID:   order.UserID,
		Amount:   order.TotalAmount,
		Currency: order.Currency,
	}
	if err := s.settlementRepo.Create(event); err != nil {
		if errors.Is(err, repositories.ErrAlreadySettled) {
			log.Printf("Settlement %s for order %s already emitted, skipping", kind, order.ID)
			return nil
		}
		return fmt.Errorf("failed to record settlement event: %w", err)
	}

	msg := settlementMessage{
		OrderID:  order.ID,
		Kind:     string(kind),
		UserID:   order.UserID,
		Amount:   order.TotalAmount,
		Currency: order.Currency,
	}
	if kind == models.SettlementPaid {
		for _, item := range order.Items {
			if item.IsDigital {
				msg.DigitalItems = append(msg.DigitalItems, item)
			}
		}
		s.applyPaidEffects(order)
	}
	s.publish("order."+string(kind), msg)
	return nil
}

// applyPaidEffects credits loyalty points and lifetime spend counters for
// a settled order.
func (s *SettlementService) applyPaidEffects(order *models.Order) {
	if err := s.userRepo.RecordPurchase(order.UserID, order.TotalAmount); err != nil {
		log.Printf("Warning: failed to record purchase for user %s: %v", order.UserID, err)
	}

	points := int(order.TotalAmount * s.pointsPerUnit)
	if points <= 0 {
		return
	}
	tx := &models.LoyaltyTransaction{
		UserID:      order.UserID,
		OrderID:     order.ID,
		Points:      points,
		Type:        "earned",
		Description: fmt.Sprintf("Points earned from order %s", order.ID),
	}
	if err := s.userRepo.CreditLoyalty(tx); err != nil {
		log.Printf("Warning: failed to credit loyalty points for user %s: %v", order.UserID, err)
	}
}

// CreditSurplus converts an overpayment surplus into a loyalty credit
// instead of rejecting the payment.
func (s *SettlementService) CreditSurplus(orderID, userID string, surplus float64) error {
	points := int(surplus * s.pointsPerUnit)
	if points <= 0 {
		points = 1 // any surplus is worth at least a point
	}
	tx := &models.LoyaltyTransaction{
		UserID:      userID,
		OrderID:     orderID,
		Points:      points,
		Type:        "overpayment_credit",
		Description: fmt.Sprintf("Overpayment surplus of %.8f credited from order %s", surplus, orderID),
	}
	if err := s.userRepo.CreditLoyalty(tx); err != nil {
		return fmt.Errorf("failed to credit overpayment surplus: %w", err)
	}
	log.Printf("Credited overpayment surplus %.8f (%d points) to user %s for order %s",
		surplus, points, userID, orderID)
	return nil
}

func (s *SettlementService) publish(routingKey string, msg settlementMessage) {
	if s.publisher == nil {
		log.Printf("No settlement publisher configured, skipping %s for order %s", routingKey, msg.OrderID)
		return
	}
	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal settlement message for order %s: %v", msg.OrderID, err)
		return
	}
	if err := s.publisher.Publish(routingKey, body); err != nil {
		log.Printf("Warning: failed to publish settlement event %s for order %s: %v", routingKey, msg.OrderID, err)
	}
}
