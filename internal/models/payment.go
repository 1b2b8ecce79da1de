package models

import "time"

// PaymentStatus is the settlement state of a payment.
type PaymentStatus string

const (
	PaymentStatusCreated       PaymentStatus = "created"
	PaymentStatusWaiting       PaymentStatus = "waiting"
	PaymentStatusConfirming    PaymentStatus = "confirming"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusConfirmed     PaymentStatus = "confirmed"
	PaymentStatusSending       PaymentStatus = "sending"
	PaymentStatusFinished      PaymentStatus = "finished"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusExpired       PaymentStatus = "expired"
	PaymentStatusRefunded      PaymentStatus = "refunded"
)

// paymentStatusRank defines the monotonic ordering of non-terminal payment
// statuses. Gateway webhooks arrive out of order; a reported status with a
// lower rank than the current one is recorded for audit but never applied.
var paymentStatusRank = map[PaymentStatus]int{
	PaymentStatusCreated:       0,
	PaymentStatusWaiting:       1,
	PaymentStatusConfirming:    2,
	PaymentStatusPartiallyPaid: 3,
	PaymentStatusConfirmed:     4,
	PaymentStatusSending:       5,
	PaymentStatusFinished:      6,
}

// IsTerminal reports whether the status absorbs all later reports.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusFinished, PaymentStatusFailed, PaymentStatusExpired, PaymentStatusRefunded:
		return true
	}
	return false
}

// IsPaidEquivalent reports whether money is finished or visibly in flight,
// which is enough to block the expiration sweeper from expiring the order.
func (s PaymentStatus) IsPaidEquivalent() bool {
	switch s {
	case PaymentStatusConfirmed, PaymentStatusSending, PaymentStatusFinished:
		return true
	}
	return false
}

// MergeStatus folds a newly reported status into the current one under the
// monotonic ordering. Terminal current statuses absorb everything except a
// refund report after finished, which is the legitimate follow-up; terminal
// reported statuses always win over non-terminal ones.
func MergeStatus(current, reported PaymentStatus) PaymentStatus {
	if current.IsTerminal() {
		if current == PaymentStatusFinished && reported == PaymentStatusRefunded {
			return reported
		}
		return current
	}
	if reported.IsTerminal() {
		return reported
	}
	if paymentStatusRank[reported] > paymentStatusRank[current] {
		return reported
	}
	return current
}

// MapGatewayStatus maps the gateway's status vocabulary onto PaymentStatus.
// Unknown strings map to the current floor rather than failing, so a new
// gateway status never breaks reconciliation.
func MapGatewayStatus(gatewayStatus string) PaymentStatus {
	switch gatewayStatus {
	case "waiting":
		return PaymentStatusWaiting
	case "confirming":
		return PaymentStatusConfirming
	case "confirmed":
		return PaymentStatusConfirmed
	case "sending":
		return PaymentStatusSending
	case "partially_paid":
		return PaymentStatusPartiallyPaid
	case "finished":
		return PaymentStatusFinished
	case "failed":
		return PaymentStatusFailed
	case "expired":
		return PaymentStatusExpired
	case "refunded":
		return PaymentStatusRefunded
	}
	return PaymentStatusCreated
}

// Payment is the one-to-one settlement record for an order. A renewed
// invoice replaces the active payment rather than duplicating it.
type Payment struct {
	ID             string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID        string        `json:"order_id" gorm:"uniqueIndex;type:varchar(36)"`
	InvoiceID      string        `json:"invoice_id" gorm:"uniqueIndex;type:varchar(64)"`
	PayAddress     string        `json:"pay_address"`
	PayAmount      float64       `json:"pay_amount"`
	PayCurrency    string        `json:"pay_currency"`
	PriceAmount    float64       `json:"price_amount"`
	PriceCurrency  string        `json:"price_currency"`
	PaymentURI     string        `json:"payment_uri"`
	ReceivedAmount float64       `json:"received_amount"`
	Status         PaymentStatus `json:"status" gorm:"index;type:varchar(32)"`
	// AppliedEventIDs is the audit log of every gateway event folded into
	// this payment; it doubles as the duplicate-delivery guard.
	AppliedEventIDs []string  `json:"applied_event_ids" gorm:"serializer:json"`
	ReviewRequired  bool      `json:"review_required"`
	SurplusAmount   float64   `json:"surplus_amount"`
	ExpiresAt       time.Time `json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasAppliedEvent reports whether a gateway event id was already folded in.
func (p *Payment) HasAppliedEvent(eventID string) bool {
	for _, id := range p.AppliedEventIDs {
		if id == eventID {
			return true
		}
	}
	return false
}
