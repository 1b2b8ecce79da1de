package models

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPendingPayment  OrderStatus = "pending_payment"
	OrderStatusPaid            OrderStatus = "paid"
	OrderStatusFulfilling      OrderStatus = "fulfilling"
	OrderStatusCompleted       OrderStatus = "completed"
	OrderStatusExpired         OrderStatus = "expired"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRefundRequested OrderStatus = "refund_requested"
	OrderStatusRefunded        OrderStatus = "refunded"
)

// orderTransitions is the full transition table. Anything not listed here
// is rejected; re-applying the current state is a no-op handled by the caller.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment:  {OrderStatusPaid, OrderStatusExpired, OrderStatusCancelled},
	OrderStatusPaid:            {OrderStatusFulfilling, OrderStatusRefundRequested},
	OrderStatusFulfilling:      {OrderStatusCompleted},
	OrderStatusRefundRequested: {OrderStatusRefunded},
}

// CanTransition reports whether the order state machine allows moving
// from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// OrderItem represents a single line item within an order. Price, name and
// product type are snapshotted at order time so later catalog edits cannot
// change what the customer agreed to pay or receive.
type OrderItem struct {
	ID          uint    `json:"-" gorm:"primaryKey;autoIncrement"`
	OrderID     string  `json:"-" gorm:"index;type:varchar(36)"`
	ProductID   string  `json:"product_id" gorm:"type:varchar(36)" validate:"required"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price"`
	IsDigital   bool    `json:"is_digital"`
}

// Subtotal returns the line-item subtotal at the snapshotted unit price.
func (i OrderItem) Subtotal() float64 {
	return i.UnitPrice * float64(i.Quantity)
}

// Order represents a customer order awaiting or past crypto settlement.
// TotalAmount is computed once from the item snapshots at creation time
// and never changes afterwards.
type Order struct {
	ID              string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID          string      `json:"user_id" gorm:"index;type:varchar(36)"`
	Items           []OrderItem `json:"items" gorm:"foreignKey:OrderID"`
	TotalAmount     float64     `json:"total_amount"`
	Currency        string      `json:"currency"`
	Status          OrderStatus `json:"status" gorm:"index;type:varchar(32)"`
	PaymentDeadline time.Time   `json:"payment_deadline"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
