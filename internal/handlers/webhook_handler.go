package handlers

import (
	"errors"
	"log"

	"kriptoko/internal/services"
	"kriptoko/pkg/nowpayments"

	"github.com/gofiber/fiber/v2"
)

// IPNVerifier authenticates raw gateway notifications before anything
// about them is trusted.
type IPNVerifier interface {
	VerifyIPN(rawBody []byte, signature string) (*nowpayments.IPNEvent, error)
}

// WebhookHandler receives asynchronous payment notifications from the
// gateway. Verification is a hard gate: an unsigned or malformed request
// never reaches the reconciler.
type WebhookHandler struct {
	verifier   IPNVerifier
	reconciler *services.ReconcilerService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(verifier IPNVerifier, reconciler *services.ReconcilerService) *WebhookHandler {
	return &WebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
	}
}

// RegisterRoutes registers the webhook routes with the Fiber app. These
// are public: authentication is the payload signature, not a bearer token.
func (h *WebhookHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/webhook/payment-ipn", h.HandlePaymentIPN)
}

// HandlePaymentIPN applies one gateway notification. Responses follow the
// gateway's retry contract: 200 once the event is applied or recognized as
// a duplicate or unknown, 401 on signature failure, 400 on a malformed
// body, 5xx only for transient internal failures worth redelivering.
func (h *WebhookHandler) HandlePaymentIPN(c *fiber.Ctx) error {
	rawBody := c.Body()
	signature := c.Get(nowpayments.SignatureHeader)

	event, err := h.verifier.VerifyIPN(rawBody, signature)
	if err != nil {
		if errors.Is(err, nowpayments.ErrInvalidSignature) {
			log.Printf("Rejected IPN with bad signature from %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid signature",
			})
		}
		log.Printf("Rejected malformed IPN: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Malformed payload",
			"error":   err.Error(),
		})
	}

	err = h.reconciler.ApplyEvent(services.PaymentEvent{
		EventID:        event.EventID,
		InvoiceID:      event.InvoiceID,
		Status:         event.Status,
		ReceivedAmount: event.ActuallyPaid,
	})
	if err != nil {
		if errors.Is(err, services.ErrUnknownInvoice) {
			// Logged and discarded; redelivering it would change nothing.
			return c.JSON(fiber.Map{"status": "discarded"})
		}
		if errors.Is(err, services.ErrInvalidTransition) {
			// A defect or lost race, already logged; redelivery won't fix it.
			return c.JSON(fiber.Map{"status": "rejected"})
		}
		log.Printf("Transient failure applying IPN %s: %v", event.EventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Temporary failure, please redeliver",
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
