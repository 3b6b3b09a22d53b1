package billing

import "github.com/odyssey-erp/odyssey-resort/internal/shared"

var (
	// ErrInvoiceNotFound indicates missing invoice.
	ErrInvoiceNotFound = shared.Classify("billing: invoice not found", shared.ErrNotFound)
	// ErrBookingNotFound indicates missing booking.
	ErrBookingNotFound = shared.Classify("billing: booking not found", shared.ErrNotFound)
	// ErrZeroAmount indicates nothing to bill; no invoice is created.
	ErrZeroAmount = shared.Classify("billing: nothing to invoice", shared.ErrValidation)
	// ErrInvalidInvoice indicates unusable invoice input.
	ErrInvalidInvoice = shared.Classify("billing: invalid invoice", shared.ErrValidation)
	// ErrMissingPaymentMode indicates the tender was left blank.
	ErrMissingPaymentMode = shared.Classify("billing: payment mode required", shared.ErrValidation)
	// ErrInvalidPaymentMode indicates an unknown tender.
	ErrInvalidPaymentMode = shared.Classify("billing: invalid payment mode", shared.ErrValidation)
	// ErrInvalidAmount indicates a payment amount that is not positive.
	ErrInvalidAmount = shared.Classify("billing: payment amount must be positive", shared.ErrValidation)
	// ErrDuplicateNumber indicates an invoice number collision.
	ErrDuplicateNumber = shared.Classify("billing: invoice number already used", shared.ErrConflict)
)
