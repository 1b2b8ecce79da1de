package models

import "time"

// SettlementKind classifies the terminal outcome a settlement event records.
type SettlementKind string

const (
	SettlementPaid     SettlementKind = "paid"
	SettlementExpired  SettlementKind = "expired"
	SettlementRefunded SettlementKind = "refunded"
)

// SettlementEvent is the immutable record of a terminal order outcome.
// The (OrderID, Kind) pair is unique, which is what makes downstream
// effects at-most-once per terminal transition.
type SettlementEvent struct {
	ID        string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID   string         `json:"order_id" gorm:"uniqueIndex:idx_settlement_order_kind;type:varchar(36)"`
	Kind      SettlementKind `json:"kind" gorm:"uniqueIndex:idx_settlement_order_kind;type:varchar(16)"`
	UserID    string         `json:"user_id" gorm:"type:varchar(36)"`
	Amount    float64        `json:"amount"`
	Currency  string         `json:"currency"`
	CreatedAt time.Time      `json:"created_at"`
}

// LoyaltyTransaction records points earned or spent by a user. Overpayment
// surpluses are credited here instead of being rejected.
type LoyaltyTransaction struct {
	ID          uint      `json:"-" gorm:"primaryKey;autoIncrement"`
	UserID      string    `json:"user_id" gorm:"index;type:varchar(36)"`
	OrderID     string    `json:"order_id" gorm:"type:varchar(36)"`
	Points      int       `json:"points"`
	Type        string    `json:"type"` // earned, overpayment_credit
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
