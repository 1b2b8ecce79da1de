package nowpayments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// ErrGatewayUnavailable covers network failures, timeouts and 5xx answers.
// Calls that fail with it are retried with bounded backoff before the error
// is surfaced to the caller.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// ErrGatewayRejected covers 4xx answers. The request is invalid as sent and
// retrying it cannot help.
var ErrGatewayRejected = errors.New("payment gateway rejected request")

// Config holds gateway connection details.
type Config struct {
	BaseURL   string
	APIKey    string
	IPNSecret string
	// Timeout applies per HTTP attempt. A timed-out attempt counts as
	// gateway-unavailable, not as a rejection.
	Timeout time.Duration
	// MaxAttempts bounds how often an unavailable gateway is retried.
	MaxAttempts int
	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration
}

// Client talks to the NOWPayments-style REST API. It is a pure adapter and
// holds no payment state.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new gateway client, filling in retry defaults.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Invoice is a gateway-issued request to pay a specific amount at a
// specific address, with its own expiry.
type Invoice struct {
	InvoiceID     string    `json:"invoice_id"`
	OrderID       string    `json:"order_id"`
	PayAddress    string    `json:"pay_address"`
	PayAmount     float64   `json:"pay_amount"`
	PayCurrency   string    `json:"pay_currency"`
	PriceAmount   float64   `json:"price_amount"`
	PriceCurrency string    `json:"price_currency"`
	PaymentURI    string    `json:"payment_uri"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// PaymentUpdate is the gateway-side view of a payment, as reported by a
// status query.
type PaymentUpdate struct {
	InvoiceID    string  `json:"payment_id"`
	Status       string  `json:"payment_status"`
	ActuallyPaid float64 `json:"actually_paid"`
	PayCurrency  string  `json:"pay_currency"`
}

type createPaymentRequest struct {
	PriceAmount   float64 `json:"price_amount"`
	PriceCurrency string  `json:"price_currency"`
	OrderID       string  `json:"order_id"`
}

type createPaymentResponse struct {
	PaymentID      string  `json:"payment_id"`
	PayAddress     string  `json:"pay_address"`
	PayAmount      float64 `json:"pay_amount"`
	PayCurrency    string  `json:"pay_currency"`
	PriceAmount    float64 `json:"price_amount"`
	PriceCurrency  string  `json:"price_currency"`
	ExpirationDate string  `json:"expiration_estimate_date"`
}

// CreateInvoice asks the gateway to mint a payable address/amount pair for
// an order. 4xx answers surface immediately as ErrGatewayRejected; network
// faults and 5xx answers are retried before ErrGatewayUnavailable is
// returned.
func (c *Client) CreateInvoice(ctx context.Context, orderID string, amount float64, currency string) (*Invoice, error) {
	reqBody := createPaymentRequest{
		PriceAmount:   amount,
		PriceCurrency: strings.ToLower(currency),
		OrderID:       orderID,
	}
	var resp createPaymentResponse
	if err := c.doWithRetry(ctx, http.MethodPost, "/v1/payment", &reqBody, &resp); err != nil {
		return nil, err
	}

	invoice := &Invoice{
		InvoiceID:     resp.PaymentID,
		OrderID:       orderID,
		PayAddress:    resp.PayAddress,
		PayAmount:     resp.PayAmount,
		PayCurrency:   resp.PayCurrency,
		PriceAmount:   resp.PriceAmount,
		PriceCurrency: resp.PriceCurrency,
		PaymentURI:    PaymentURI(resp.PayCurrency, resp.PayAddress, resp.PayAmount),
	}
	if resp.ExpirationDate != "" {
		if expires, err := time.Parse(time.RFC3339, resp.ExpirationDate); err == nil {
			invoice.ExpiresAt = expires
		} else {
			log.Printf("Could not parse invoice expiry %q: %v", resp.ExpirationDate, err)
		}
	}
	return invoice, nil
}

// QueryStatus polls the gateway for the current payment status. It is the
// reconciliation fallback for webhooks that are delayed or lost.
func (c *Client) QueryStatus(ctx context.Context, invoiceID string) (*PaymentUpdate, error) {
	var update PaymentUpdate
	if err := c.doWithRetry(ctx, http.MethodGet, "/v1/payment/"+invoiceID, nil, &update); err != nil {
		return nil, err
	}
	if update.InvoiceID == "" {
		update.InvoiceID = invoiceID
	}
	return &update, nil
}

// PaymentURI builds the QR-encodable payment URI for a pay-to target,
// e.g. "btc:bc1q...?amount=0.0042".
func PaymentURI(currency, address string, amount float64) string {
	uri := fmt.Sprintf("%s:%s", strings.ToLower(currency), address)
	if amount > 0 {
		uri += fmt.Sprintf("?amount=%v", amount)
	}
	return uri
}

// doWithRetry performs one logical gateway call with bounded exponential
// backoff on gateway-unavailable failures.
func (c *Client) doWithRetry(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	delay := c.cfg.RetryBaseDelay
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		err := c.do(ctx, method, path, reqBody, respBody)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrGatewayUnavailable) {
			return err
		}
		lastErr = err
		if attempt == c.cfg.MaxAttempts {
			break
		}
		log.Printf("Gateway call %s %s failed (attempt %d/%d), retrying in %s: %v",
			method, path, attempt, c.cfg.MaxAttempts, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrGatewayUnavailable, ctx.Err())
		}
		delay *= 2
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal gateway request: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection failures are retryable by definition.
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrGatewayUnavailable, resp.StatusCode, raw)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, resp.StatusCode, raw)
	}

	if respBody != nil {
		if err := json.Unmarshal(raw, respBody); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrGatewayUnavailable, err)
		}
	}
	return nil
}
