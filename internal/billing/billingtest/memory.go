// Package billingtest provides an in-memory billing store backed by a
// ledgertest.Store so invoices and their postings roll back together.
package billingtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-resort/internal/billing"
	"github.com/odyssey-erp/odyssey-resort/internal/ledger/ledgertest"
)

// Store implements billing.RepositoryPort in memory.
type Store struct {
	Ledger *ledgertest.Store

	mu        sync.Mutex
	invoices  []billing.Invoice
	items     map[int64][]billing.InvoiceItem
	payments  []billing.Payment
	bookings  map[int64]billing.Booking
	numbers   map[string]bool
	posted    map[string]time.Time
	failItems error
}

// NewStore returns a store posting into ledger.
func NewStore(ledger *ledgertest.Store) *Store {
	return &Store{
		Ledger:   ledger,
		items:    make(map[int64][]billing.InvoiceItem),
		bookings: make(map[int64]billing.Booking),
		numbers:  make(map[string]bool),
		posted:   make(map[string]time.Time),
	}
}

func invoiceMark(id int64) string { return fmt.Sprintf("invoice:%d", id) }

func paymentMark(id int64) string { return fmt.Sprintf("payment:%d", id) }

// Posted reports whether the invoice carries a posted mark.
func (s *Store) Posted(invoiceID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.posted[invoiceMark(invoiceID)]
	return ok
}

// ForgetPostedMarks drops every posted mark, as rows written before the
// marks existed would look.
func (s *Store) ForgetPostedMarks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posted = make(map[string]time.Time)
}

// AddBooking registers a booking.
func (s *Store) AddBooking(b billing.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
}

// FailItemInserts makes InsertInvoiceItems return err until cleared with nil.
func (s *Store) FailItemInserts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failItems = err
}

// Invoices returns every stored invoice header.
func (s *Store) Invoices() []billing.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]billing.Invoice(nil), s.invoices...)
}

// WithTx implements billing.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, billing.TxRepository) error) error {
	s.mu.Lock()
	invoices := append([]billing.Invoice(nil), s.invoices...)
	payments := len(s.payments)
	items := make(map[int64][]billing.InvoiceItem, len(s.items))
	for k, v := range s.items {
		items[k] = v
	}
	numbers := make(map[string]bool, len(s.numbers))
	for k, v := range s.numbers {
		numbers[k] = v
	}
	posted := make(map[string]time.Time, len(s.posted))
	for k, v := range s.posted {
		posted[k] = v
	}
	ledgerDone := s.Ledger.Begin()
	err := fn(ctx, &tx{Tx: ledgertest.NewTx(s.Ledger), s: s})
	if err != nil {
		s.invoices = invoices
		s.payments = s.payments[:payments]
		s.items = items
		s.numbers = numbers
		s.posted = posted
	}
	ledgerDone(err)
	s.mu.Unlock()
	return err
}

func (s *Store) find(id int64) (int, bool) {
	for i, inv := range s.invoices {
		if inv.ID == id {
			return i, true
		}
	}
	return 0, false
}

// GetInvoice implements billing.RepositoryPort.
func (s *Store) GetInvoice(ctx context.Context, id int64) (billing.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.find(id)
	if !ok {
		return billing.Invoice{}, fmt.Errorf("%w: %d", billing.ErrInvoiceNotFound, id)
	}
	return s.invoices[i], nil
}

// GetInvoiceByNumber implements billing.RepositoryPort.
func (s *Store) GetInvoiceByNumber(ctx context.Context, number string) (billing.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invoices {
		if inv.Number == number {
			return inv, nil
		}
	}
	return billing.Invoice{}, fmt.Errorf("%w: %s", billing.ErrInvoiceNotFound, number)
}

// ListItems implements billing.RepositoryPort.
func (s *Store) ListItems(ctx context.Context, invoiceID int64) ([]billing.InvoiceItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]billing.InvoiceItem(nil), s.items[invoiceID]...), nil
}

// ListPayments implements billing.RepositoryPort.
func (s *Store) ListPayments(ctx context.Context, invoiceID int64) ([]billing.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []billing.Payment
	for _, p := range s.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetBooking implements billing.RepositoryPort.
func (s *Store) GetBooking(ctx context.Context, id int64) (billing.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return billing.Booking{}, fmt.Errorf("%w: %d", billing.ErrBookingNotFound, id)
	}
	return b, nil
}

// FindCheckedInBooking implements billing.RepositoryPort.
func (s *Store) FindCheckedInBooking(ctx context.Context, room string) (*int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *int64
	for _, b := range s.bookings {
		if b.CheckedIn && b.Room == room && room != "" {
			id := b.ID
			if found == nil || id > *found {
				found = &id
			}
		}
	}
	return found, nil
}

// ListInvoicesForReconcile implements billing.RepositoryPort.
func (s *Store) ListInvoicesForReconcile(ctx context.Context, limit int) ([]billing.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []billing.Invoice
	for _, inv := range s.invoices {
		if _, ok := s.posted[invoiceMark(inv.ID)]; ok {
			continue
		}
		out = append(out, inv)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListPaymentsForReconcile implements billing.RepositoryPort.
func (s *Store) ListPaymentsForReconcile(ctx context.Context, limit int) ([]billing.PaymentRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []billing.PaymentRef
	for _, p := range s.payments {
		if _, ok := s.posted[paymentMark(p.ID)]; ok {
			continue
		}
		i, _ := s.find(p.InvoiceID)
		out = append(out, billing.PaymentRef{Payment: p, InvoiceNumber: s.invoices[i].Number})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// InsertInvoiceDirect stores an invoice bypassing the ledger, as a legacy
// import would.
func (s *Store) InsertInvoiceDirect(inv billing.Invoice) billing.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv.ID = int64(len(s.invoices) + 1)
	s.invoices = append(s.invoices, inv)
	s.numbers[inv.Number] = true
	return inv
}

type tx struct {
	ledgertest.Tx
	s *Store
}

func (t *tx) InsertInvoice(ctx context.Context, inv billing.Invoice) (billing.Invoice, error) {
	if t.s.numbers[inv.Number] {
		return billing.Invoice{}, fmt.Errorf("%w: %s", billing.ErrDuplicateNumber, inv.Number)
	}
	inv.ID = int64(len(t.s.invoices) + 1)
	inv.IsPaid = false
	t.s.invoices = append(t.s.invoices, inv)
	t.s.numbers[inv.Number] = true
	return inv, nil
}

func (t *tx) InsertInvoiceItems(ctx context.Context, invoiceID int64, items []billing.InvoiceItem) error {
	if t.s.failItems != nil {
		return t.s.failItems
	}
	t.s.items[invoiceID] = append([]billing.InvoiceItem(nil), items...)
	return nil
}

func (t *tx) GetInvoiceForUpdate(ctx context.Context, id int64) (billing.Invoice, error) {
	i, ok := t.s.find(id)
	if !ok {
		return billing.Invoice{}, fmt.Errorf("%w: %d", billing.ErrInvoiceNotFound, id)
	}
	return t.s.invoices[i], nil
}

func (t *tx) SumPayments(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, p := range t.s.payments {
		if p.InvoiceID == invoiceID {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (t *tx) InsertPayment(ctx context.Context, p billing.Payment) (billing.Payment, error) {
	p.ID = int64(len(t.s.payments) + 1)
	t.s.payments = append(t.s.payments, p)
	return p, nil
}

func (t *tx) MarkInvoicePosted(ctx context.Context, id int64, at time.Time) error {
	if _, ok := t.s.posted[invoiceMark(id)]; !ok {
		t.s.posted[invoiceMark(id)] = at
	}
	return nil
}

func (t *tx) MarkPaymentPosted(ctx context.Context, id int64, at time.Time) error {
	if _, ok := t.s.posted[paymentMark(id)]; !ok {
		t.s.posted[paymentMark(id)] = at
	}
	return nil
}

func (t *tx) UpdateInvoiceSettlement(ctx context.Context, id int64, balance decimal.Decimal, isPaid bool) error {
	i, ok := t.s.find(id)
	if !ok {
		return fmt.Errorf("%w: %d", billing.ErrInvoiceNotFound, id)
	}
	t.s.invoices[i].BalancePTD = balance
	t.s.invoices[i].IsPaid = t.s.invoices[i].IsPaid || isPaid
	return nil
}
