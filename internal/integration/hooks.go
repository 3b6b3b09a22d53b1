// Package integration books the ledger side of billing events.
package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-resort/internal/billing"
	"github.com/odyssey-erp/odyssey-resort/internal/ledger"
)

// Source modules recorded on automated postings.
const (
	SourceInvoice = "BILLING.INVOICE"
	SourcePayment = "BILLING.PAYMENT"
)

// Hooks wires billing events into the ledger.
type Hooks struct {
	roles  ledger.Roles
	logger *slog.Logger
}

// NewHooks constructs integration hooks.
func NewHooks(roles ledger.Roles, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{roles: roles, logger: logger}
}

// InvoiceSourceID is the deterministic ledger source of an invoice.
func InvoiceSourceID(invoiceID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("INVOICE:%d", invoiceID)))
}

// PaymentSourceID is the deterministic ledger source of a payment.
func PaymentSourceID(paymentID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("PAYMENT:%d", paymentID)))
}

func (h *Hooks) post(ctx context.Context, tx ledger.TxRepository, input ledger.PostingInput, at time.Time) error {
	if input.SourceID == uuid.Nil {
		return errors.New("integration: source id required")
	}
	txn, err := ledger.Apply(ctx, tx, input, at)
	if err != nil {
		return err
	}
	h.logger.Debug("ledger posted",
		slog.String("source", input.SourceModule),
		slog.Int64("transaction_id", txn.ID),
		slog.String("amount", txn.Amount.StringFixed(2)))
	return nil
}

// HandleInvoiceIssued books Dr AR / Cr revenue for the invoice total. It
// returns ledger.ErrSourceAlreadyLinked when the invoice was posted before.
func (h *Hooks) HandleInvoiceIssued(ctx context.Context, tx ledger.TxRepository, evt billing.InvoiceIssuedEvent) error {
	if evt.InvoiceID <= 0 {
		return errors.New("integration: invoice id required")
	}
	if !evt.Amount.IsPositive() {
		return nil
	}
	ar, err := h.roles.Code(ledger.RoleAccountsReceivable)
	if err != nil {
		return err
	}
	revenue, err := h.roles.Code(RevenueRole(evt.Category))
	if err != nil {
		return err
	}
	location := evt.ReferenceLocation
	if location == "" {
		location = "General"
	}
	input := ledger.PostingInput{
		DebitCode:    ar,
		CreditCode:   revenue,
		Amount:       evt.Amount,
		Description:  fmt.Sprintf("Revenue Recognition: %s (%s)", evt.Number, location),
		SourceModule: SourceInvoice,
		SourceID:     InvoiceSourceID(evt.InvoiceID),
	}
	return h.post(ctx, tx, input, evt.IssuedAt)
}

// HandlePaymentReceived books Dr Cash / Cr AR for the payment amount.
func (h *Hooks) HandlePaymentReceived(ctx context.Context, tx ledger.TxRepository, evt billing.PaymentReceivedEvent) error {
	if evt.PaymentID <= 0 {
		return errors.New("integration: payment id required")
	}
	if !evt.Amount.IsPositive() {
		return nil
	}
	cash, err := h.roles.Code(ledger.RoleCash)
	if err != nil {
		return err
	}
	ar, err := h.roles.Code(ledger.RoleAccountsReceivable)
	if err != nil {
		return err
	}
	input := ledger.PostingInput{
		DebitCode:    cash,
		CreditCode:   ar,
		Amount:       evt.Amount,
		Description:  fmt.Sprintf("Payment Received: %s via %s", evt.InvoiceNumber, evt.Mode),
		SourceModule: SourcePayment,
		SourceID:     PaymentSourceID(evt.PaymentID),
	}
	return h.post(ctx, tx, input, evt.PaidAt)
}

var _ billing.LedgerPoster = (*Hooks)(nil)
