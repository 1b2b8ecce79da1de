package services

import "errors"

// ErrInsufficientStock is returned when an order asks for more units than
// are available; the caller surfaces it to the customer and no counters
// are changed.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrInvalidTransition is returned for an order status move outside the
// transition table. It indicates a programming error or a lost race, is
// logged, and the order is left untouched.
var ErrInvalidTransition = errors.New("invalid order status transition")

// ErrUnknownInvoice is returned when a payment event references an invoice
// this system never issued. The event is logged and discarded; redelivery
// has no value.
var ErrUnknownInvoice = errors.New("unknown invoice")
