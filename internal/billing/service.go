package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-resort/internal/ledger"
	"github.com/odyssey-erp/odyssey-resort/internal/shared"
)

// RepositoryPort defines data access methods for billing.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (Invoice, error)
	ListItems(ctx context.Context, invoiceID int64) ([]InvoiceItem, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	GetBooking(ctx context.Context, id int64) (Booking, error)
	// FindCheckedInBooking returns the id of the booking currently checked in
	// to room, or nil.
	FindCheckedInBooking(ctx context.Context, room string) (*int64, error)
	ListInvoicesForReconcile(ctx context.Context, limit int) ([]Invoice, error)
	ListPaymentsForReconcile(ctx context.Context, limit int) ([]PaymentRef, error)
}

// TxRepository exposes transactional operations used by service. It embeds the
// ledger operations so postings commit with the invoice or payment.
type TxRepository interface {
	ledger.TxRepository
	// InsertInvoice returns ErrDuplicateNumber without aborting the transaction
	// when the number is taken.
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	InsertInvoiceItems(ctx context.Context, invoiceID int64, items []InvoiceItem) error
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	SumPayments(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	UpdateInvoiceSettlement(ctx context.Context, id int64, balance decimal.Decimal, isPaid bool) error
	// MarkInvoicePosted and MarkPaymentPosted record that the ledger side is
	// booked, which takes the entity out of reconcile scans.
	MarkInvoicePosted(ctx context.Context, id int64, at time.Time) error
	MarkPaymentPosted(ctx context.Context, id int64, at time.Time) error
}

// LedgerPoster books the ledger side of billing events inside the caller's
// transaction.
type LedgerPoster interface {
	HandleInvoiceIssued(ctx context.Context, tx ledger.TxRepository, evt InvoiceIssuedEvent) error
	HandlePaymentReceived(ctx context.Context, tx ledger.TxRepository, evt PaymentReceivedEvent) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles invoice and payment business logic.
type Service struct {
	repo   RepositoryPort
	poster LedgerPoster
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, poster LedgerPoster, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, poster: poster, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

const maxNumberAttempts = 5

// CreateForOrder bills every line of a dining order.
func (s *Service) CreateForOrder(ctx context.Context, in OrderInvoiceInput) (Invoice, error) {
	if in.OrderID <= 0 || len(in.Lines) == 0 {
		return Invoice{}, fmt.Errorf("%w: order id and lines required", ErrInvalidInvoice)
	}
	items := make([]InvoiceItem, 0, len(in.Lines))
	for _, line := range in.Lines {
		if line.Quantity <= 0 || line.UnitPrice.IsNegative() {
			return Invoice{}, fmt.Errorf("%w: bad line %q", ErrInvalidInvoice, line.Name)
		}
		items = append(items, InvoiceItem{
			Description: fmt.Sprintf("%s (Order #%d)", line.Name, in.OrderID),
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice.Round(2),
		})
	}
	bookingID, err := s.repo.FindCheckedInBooking(ctx, in.Room)
	if err != nil {
		return Invoice{}, err
	}
	reference := strings.TrimSpace(in.Room)
	if reference == "" {
		reference = in.Location
	}
	return s.issue(ctx, Invoice{
		BookingID:         bookingID,
		ReferenceLocation: reference,
		Source:            SourceOrder,
		SourceRef:         in.OrderID,
	}, orderPrefix, items)
}

// CreateForBooking bills a room stay: nights x rate with a one-night minimum.
func (s *Service) CreateForBooking(ctx context.Context, in BookingInvoiceInput) (Invoice, error) {
	if in.NightlyRate.IsNegative() {
		return Invoice{}, fmt.Errorf("%w: nightly rate must not be negative", ErrInvalidInvoice)
	}
	booking, err := s.repo.GetBooking(ctx, in.BookingID)
	if err != nil {
		return Invoice{}, err
	}
	bookingID := booking.ID
	item := InvoiceItem{
		Description: fmt.Sprintf("Room Stay: %s (%d Adults, %d Children)", booking.Room, booking.Adults, booking.Children),
		Quantity:    booking.Nights(),
		UnitPrice:   in.NightlyRate.Round(2),
	}
	return s.issue(ctx, Invoice{
		BookingID:         &bookingID,
		ReferenceLocation: "Room " + booking.Room,
		Source:            SourceBooking,
		SourceRef:         booking.ID,
	}, bookingPrefix, []InvoiceItem{item})
}

// CreateForPassSale bills a recreation pass. A free pass creates no invoice.
func (s *Service) CreateForPassSale(ctx context.Context, in PassSaleInvoiceInput) (Invoice, error) {
	name := strings.TrimSpace(in.PassName)
	if in.SaleID <= 0 || name == "" {
		return Invoice{}, fmt.Errorf("%w: sale id and pass name required", ErrInvalidInvoice)
	}
	if in.Price.IsNegative() {
		return Invoice{}, fmt.Errorf("%w: price must not be negative", ErrInvalidInvoice)
	}
	location := strings.TrimSpace(in.Location)
	item := InvoiceItem{
		Description: fmt.Sprintf("Recreation Pass: %s (%s)", name, location),
		Quantity:    1,
		UnitPrice:   in.Price.Round(2),
	}
	return s.issue(ctx, Invoice{
		ReferenceLocation: location,
		Source:            SourcePassSale,
		SourceRef:         in.SaleID,
	}, passPrefix, []InvoiceItem{item})
}

// issue persists the invoice with its items and books Dr AR / Cr revenue in
// one transaction.
func (s *Service) issue(ctx context.Context, inv Invoice, prefix string, items []InvoiceItem) (Invoice, error) {
	total := decimal.Zero
	for i := range items {
		items[i].LineNo = i + 1
		items[i].LineTotal = items[i].UnitPrice.Mul(decimal.NewFromInt(int64(items[i].Quantity))).Round(2)
		total = total.Add(items[i].LineTotal)
	}
	if !total.IsPositive() {
		return Invoice{}, ErrZeroAmount
	}
	inv.RevenueCategory = CategorizeRevenue(items[0].Description)
	inv.TotalHT = total
	inv.TotalFT = total
	inv.BalancePTD = total
	inv.IssuedAt = s.now()

	var created Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		for attempt := 0; attempt < maxNumberAttempts; attempt++ {
			inv.Number = invoiceNumber(prefix, suffixLen(prefix))
			created, err = tx.InsertInvoice(ctx, inv)
			if !errors.Is(err, ErrDuplicateNumber) {
				break
			}
		}
		if err != nil {
			return err
		}
		if err := tx.InsertInvoiceItems(ctx, created.ID, items); err != nil {
			return err
		}
		if s.poster == nil {
			return nil
		}
		if err := s.poster.HandleInvoiceIssued(ctx, tx, issuedEvent(created)); err != nil {
			return err
		}
		return tx.MarkInvoicePosted(ctx, created.ID, s.now())
	})
	if err != nil {
		return Invoice{}, err
	}
	created.Items = items
	s.logger.Info("invoice issued",
		slog.String("invoice", created.Number),
		slog.String("source", string(created.Source)),
		slog.Int64("source_ref", created.SourceRef),
		slog.String("total", created.TotalFT.StringFixed(2)))
	s.record(ctx, shared.AuditLog{
		Action:   "billing.invoice.issue",
		Entity:   "invoice",
		EntityID: strconv.FormatInt(created.ID, 10),
		Meta:     map[string]any{"number": created.Number, "total": created.TotalFT.StringFixed(2)},
	})
	return created, nil
}

// RecordPayment settles part or all of an invoice and books Dr Cash / Cr AR.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (PaymentResult, error) {
	mode, err := ParsePaymentMode(in.Mode)
	if err != nil {
		return PaymentResult{}, err
	}
	// Zero means "settle the outstanding balance". Any explicit amount must
	// still be positive once rounded to cents.
	settle := in.Amount.IsZero()
	if in.Amount.IsNegative() || (!settle && !in.Amount.Round(2).IsPositive()) {
		return PaymentResult{}, ErrInvalidAmount
	}
	var result PaymentResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, in.InvoiceID)
		if err != nil {
			return err
		}
		paid, err := tx.SumPayments(ctx, inv.ID)
		if err != nil {
			return err
		}
		amount := in.Amount.Round(2)
		if settle {
			amount = inv.TotalFT.Sub(paid)
		}
		if !amount.IsPositive() {
			return ErrInvalidAmount
		}
		payment, err := tx.InsertPayment(ctx, Payment{
			InvoiceID:      inv.ID,
			Amount:         amount,
			Mode:           mode,
			TransactionRef: strings.TrimSpace(in.TransactionRef),
			PaidAt:         s.now(),
		})
		if err != nil {
			return err
		}
		paid = paid.Add(amount)
		outstanding := inv.TotalFT.Sub(paid)
		if outstanding.IsNegative() {
			outstanding = decimal.Zero
		}
		isPaid := inv.IsPaid || paid.GreaterThanOrEqual(inv.TotalFT)
		if err := tx.UpdateInvoiceSettlement(ctx, inv.ID, outstanding, isPaid); err != nil {
			return err
		}
		inv.BalancePTD = outstanding
		inv.IsPaid = isPaid
		if s.poster != nil {
			if err := s.poster.HandlePaymentReceived(ctx, tx, receivedEvent(payment, inv.Number)); err != nil {
				return err
			}
			if err := tx.MarkPaymentPosted(ctx, payment.ID, s.now()); err != nil {
				return err
			}
		}
		result = PaymentResult{Payment: payment, Invoice: inv}
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}
	s.record(ctx, shared.AuditLog{
		Actor:    in.Actor,
		Action:   "billing.payment.record",
		Entity:   "payment",
		EntityID: strconv.FormatInt(result.Payment.ID, 10),
		Meta: map[string]any{
			"invoice": result.Invoice.Number,
			"amount":  result.Payment.Amount.StringFixed(2),
			"mode":    string(result.Payment.Mode),
		},
	})
	return result, nil
}

// GetInvoice loads an invoice with its items and payments.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	return s.withDetails(ctx, inv)
}

// GetInvoiceByNumber loads an invoice by its number.
func (s *Service) GetInvoiceByNumber(ctx context.Context, number string) (Invoice, error) {
	inv, err := s.repo.GetInvoiceByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
	if err != nil {
		return Invoice{}, err
	}
	return s.withDetails(ctx, inv)
}

func (s *Service) withDetails(ctx context.Context, inv Invoice) (Invoice, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := s.repo.ListItems(gctx, inv.ID)
		inv.Items = items
		return err
	})
	var payments []Payment
	g.Go(func() error {
		var err error
		payments, err = s.repo.ListPayments(gctx, inv.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Invoice{}, err
	}
	inv.Payments = payments
	return inv, nil
}

var errDryRun = errors.New("billing: dry run")

// Reconcile posts the ledger transactions missing for issued invoices and
// received payments. Only entities without a posted mark are scanned, so a
// limited run always moves on to new work. An entity whose source link
// already exists is counted as skipped and marked. A dry run performs every
// posting and rolls it back.
func (s *Service) Reconcile(ctx context.Context, opts ReconcileOptions) (ReconcileReport, error) {
	report := ReconcileReport{DryRun: opts.DryRun}
	if s.poster == nil {
		return report, errors.New("billing: ledger poster not configured")
	}
	invoices, err := s.repo.ListInvoicesForReconcile(ctx, opts.Limit)
	if err != nil {
		return report, err
	}
	for _, inv := range invoices {
		evt := issuedEvent(inv)
		id := inv.ID
		posted, err := s.reconcileOne(ctx, opts.DryRun, func(ctx context.Context, tx TxRepository) error {
			return s.poster.HandleInvoiceIssued(ctx, tx, evt)
		}, func(ctx context.Context, tx TxRepository) error {
			return tx.MarkInvoicePosted(ctx, id, s.now())
		})
		report.tally(posted, err, inv.Number, &report.InvoicesPosted)
	}
	payments, err := s.repo.ListPaymentsForReconcile(ctx, opts.Limit)
	if err != nil {
		return report, err
	}
	for _, p := range payments {
		evt := receivedEvent(p.Payment, p.InvoiceNumber)
		id := p.ID
		posted, err := s.reconcileOne(ctx, opts.DryRun, func(ctx context.Context, tx TxRepository) error {
			return s.poster.HandlePaymentReceived(ctx, tx, evt)
		}, func(ctx context.Context, tx TxRepository) error {
			return tx.MarkPaymentPosted(ctx, id, s.now())
		})
		report.tally(posted, err, fmt.Sprintf("payment %d", p.ID), &report.PaymentsPosted)
	}
	s.logger.Info("billing reconcile finished",
		slog.Bool("dry_run", opts.DryRun),
		slog.Int("invoices_posted", report.InvoicesPosted),
		slog.Int("payments_posted", report.PaymentsPosted),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed))
	return report, nil
}

func (s *Service) reconcileOne(ctx context.Context, dryRun bool, post, mark func(context.Context, TxRepository) error) (bool, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := post(ctx, tx); err != nil {
			return err
		}
		if err := mark(ctx, tx); err != nil {
			return err
		}
		if dryRun {
			return errDryRun
		}
		return nil
	})
	switch {
	case err == nil, errors.Is(err, errDryRun):
		return true, nil
	case errors.Is(err, ledger.ErrSourceAlreadyLinked):
		if dryRun {
			return false, nil
		}
		// Posted before the mark existed; record it so later scans skip it.
		return false, s.repo.WithTx(ctx, mark)
	default:
		return false, err
	}
}

func (r *ReconcileReport) tally(posted bool, err error, ref string, counter *int) {
	switch {
	case err != nil:
		r.Failed++
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", ref, err))
	case posted:
		*counter++
	default:
		r.Skipped++
	}
}

func issuedEvent(inv Invoice) InvoiceIssuedEvent {
	return InvoiceIssuedEvent{
		InvoiceID:         inv.ID,
		Number:            inv.Number,
		Amount:            inv.TotalFT,
		Category:          inv.RevenueCategory,
		ReferenceLocation: inv.ReferenceLocation,
		IssuedAt:          inv.IssuedAt,
	}
}

func receivedEvent(p Payment, number string) PaymentReceivedEvent {
	return PaymentReceivedEvent{
		PaymentID:     p.ID,
		InvoiceID:     p.InvoiceID,
		InvoiceNumber: number,
		Amount:        p.Amount,
		Mode:          p.Mode,
		PaidAt:        p.PaidAt,
	}
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if log.At.IsZero() {
		log.At = s.now()
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("billing audit", slog.String("action", log.Action), slog.Any("error", err))
	}
}
