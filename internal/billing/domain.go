// Package billing issues invoices for orders, room stays and recreation passes,
// records payments against them and keeps the ledger in step with both.
package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies what an invoice bills for.
type Source string

const (
	SourceOrder    Source = "ORDER"
	SourceBooking  Source = "BOOKING"
	SourcePassSale Source = "PASS_SALE"
)

// RevenueCategory selects the revenue account an invoice is recognised in.
type RevenueCategory string

const (
	RevenueDining     RevenueCategory = "DINING"
	RevenueRecreation RevenueCategory = "RECREATION"
	RevenueGeneral    RevenueCategory = "GENERAL"
)

// PaymentMode enumerates accepted tenders.
type PaymentMode string

const (
	PaymentCash        PaymentMode = "CASH"
	PaymentMobileMoney PaymentMode = "MOBILE_MONEY"
	PaymentCard        PaymentMode = "CARD"
	PaymentOther       PaymentMode = "OTHER"
)

var paymentAliases = map[string]PaymentMode{
	"CASH":         PaymentCash,
	"MOBILE_MONEY": PaymentMobileMoney,
	"MOMO":         PaymentMobileMoney,
	"CARD":         PaymentCard,
	"VISA":         PaymentCard,
	"OTHER":        PaymentOther,
}

// ParsePaymentMode normalises raw tender names, accepting the MOMO and VISA
// aliases used at the front desk.
func ParsePaymentMode(raw string) (PaymentMode, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if key == "" {
		return "", ErrMissingPaymentMode
	}
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	mode, ok := paymentAliases[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMode, raw)
	}
	return mode, nil
}

// Invoice is a bill issued to a guest.
type Invoice struct {
	ID                int64           `json:"id"`
	Number            string          `json:"invoice_number"`
	BookingID         *int64          `json:"booking_id,omitempty"`
	ReferenceLocation string          `json:"reference_location"`
	Source            Source          `json:"source"`
	SourceRef         int64           `json:"source_ref"`
	RevenueCategory   RevenueCategory `json:"revenue_category"`
	TotalHT           decimal.Decimal `json:"total_ht"`
	TotalFT           decimal.Decimal `json:"total_ft"`
	BalancePTD        decimal.Decimal `json:"balance_ptd"`
	IsPaid            bool            `json:"is_paid"`
	IssuedAt          time.Time       `json:"issued_at"`
	Items             []InvoiceItem   `json:"items,omitempty"`
	Payments          []Payment       `json:"payments,omitempty"`
}

// InvoiceItem is one billed line. LineTotal is Quantity x UnitPrice.
type InvoiceItem struct {
	LineNo      int             `json:"line_no"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Payment is an immutable settlement against an invoice.
type Payment struct {
	ID             int64           `json:"id"`
	InvoiceID      int64           `json:"invoice_id"`
	Amount         decimal.Decimal `json:"amount"`
	Mode           PaymentMode     `json:"mode"`
	TransactionRef string          `json:"transaction_ref,omitempty"`
	PaidAt         time.Time       `json:"paid_at"`
}

// Booking is the subset of a room reservation billing reads.
type Booking struct {
	ID        int64
	Room      string
	Adults    int
	Children  int
	CheckIn   time.Time
	CheckOut  time.Time
	CheckedIn bool
}

// Nights returns the number of nights billed, never less than one.
func (b Booking) Nights() int {
	nights := int(b.CheckOut.Sub(b.CheckIn).Hours() / 24)
	if nights < 1 {
		return 1
	}
	return nights
}

// OrderLine is one order item to bill.
type OrderLine struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// OrderInvoiceInput bills a dining order.
type OrderInvoiceInput struct {
	OrderID  int64
	Room     string
	Location string
	Lines    []OrderLine
}

// BookingInvoiceInput bills a room stay at NightlyRate.
type BookingInvoiceInput struct {
	BookingID   int64           `json:"booking_id" validate:"required,gt=0"`
	NightlyRate decimal.Decimal `json:"nightly_rate"`
}

// PassSaleInvoiceInput bills a recreation pass sale.
type PassSaleInvoiceInput struct {
	SaleID   int64           `json:"sale_id" validate:"required,gt=0"`
	PassName string          `json:"pass_name" validate:"required,max=100"`
	Location string          `json:"location" validate:"max=100"`
	Price    decimal.Decimal `json:"price"`
}

// PaymentInput records a payment. A zero Amount settles the outstanding balance.
type PaymentInput struct {
	InvoiceID      int64
	Amount         decimal.Decimal
	Mode           string
	TransactionRef string
	Actor          string
}

// PaymentResult returns the payment and the invoice state after it.
type PaymentResult struct {
	Payment Payment `json:"payment"`
	Invoice Invoice `json:"invoice"`
}

// InvoiceIssuedEvent is raised inside the issuing transaction.
type InvoiceIssuedEvent struct {
	InvoiceID         int64
	Number            string
	Amount            decimal.Decimal
	Category          RevenueCategory
	ReferenceLocation string
	IssuedAt          time.Time
}

// PaymentReceivedEvent is raised inside the payment transaction.
type PaymentReceivedEvent struct {
	PaymentID     int64
	InvoiceID     int64
	InvoiceNumber string
	Amount        decimal.Decimal
	Mode          PaymentMode
	PaidAt        time.Time
}

// PaymentRef pairs a payment with its invoice number for reconciliation.
type PaymentRef struct {
	Payment
	InvoiceNumber string
}

// ReconcileOptions bounds a reconciliation run. Limit 0 scans everything.
type ReconcileOptions struct {
	DryRun bool
	Limit  int
}

// ReconcileReport summarises a reconciliation run.
type ReconcileReport struct {
	DryRun         bool     `json:"dry_run"`
	InvoicesPosted int      `json:"invoices_posted"`
	PaymentsPosted int      `json:"payments_posted"`
	Skipped        int      `json:"skipped"`
	Failed         int      `json:"failed"`
	Errors         []string `json:"errors,omitempty"`
}
