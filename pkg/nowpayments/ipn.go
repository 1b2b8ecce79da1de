package nowpayments

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// SignatureHeader is the request header carrying the IPN signature.
const SignatureHeader = "x-nowpayments-sig"

// ErrInvalidSignature is returned when an IPN payload fails authentication.
// Nothing about the payload may be trusted or acted on in that case.
var ErrInvalidSignature = errors.New("invalid IPN signature")

// ErrMalformedPayload is returned when an authenticated payload cannot be
// decoded as a payment event.
var ErrMalformedPayload = errors.New("malformed IPN payload")

// IPNEvent is one authenticated payment notification from the gateway.
type IPNEvent struct {
	// EventID identifies this delivery for deduplication. The gateway does
	// not send one, so it is the payload's event_id field when present and
	// a digest of the raw body otherwise; identical redeliveries collapse
	// to the same id either way.
	EventID      string  `json:"event_id"`
	InvoiceID    string  `json:"payment_id"`
	OrderID      string  `json:"order_id"`
	Status       string  `json:"payment_status"`
	ActuallyPaid float64 `json:"actually_paid"`
	PayCurrency  string  `json:"pay_currency"`
}

// VerifyIPN authenticates a raw webhook body against its signature header
// and parses it only after the signature matches. The keyed hash is
// computed over the raw bytes, never a re-serialized object, so there is
// no canonicalization to disagree about.
func (c *Client) VerifyIPN(rawBody []byte, signature string) (*IPNEvent, error) {
	if signature == "" {
		return nil, fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	mac := hmac.New(sha512.New, []byte(c.cfg.IPNSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	// hmac.Equal compares in constant time.
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, ErrInvalidSignature
	}

	var event IPNEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if event.InvoiceID == "" || event.Status == "" {
		return nil, fmt.Errorf("%w: payment_id and payment_status are required", ErrMalformedPayload)
	}
	if event.EventID == "" {
		digest := sha256.Sum256(rawBody)
		event.EventID = hex.EncodeToString(digest[:])
	}
	return &event, nil
}

// SignIPN computes the signature the gateway would attach to a payload.
// Exported for collaborators and tests that emit IPN traffic.
func SignIPN(secret string, rawBody []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
