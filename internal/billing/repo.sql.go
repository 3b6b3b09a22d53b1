package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-resort/internal/ledger"
	"github.com/odyssey-erp/odyssey-resort/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for billing.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	ledger.TxRepository
	tx pgx.Tx
}

// WithTx executes fn within repeatable-read transaction shared with the ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("billing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: ledger.NewTxRepository(tx), tx: tx})
	})
}

const invoiceColumns = `id, invoice_number, booking_id, reference_location, source, COALESCE(source_ref, 0), revenue_category,
       total_ht, total_ft, balance_ptd, is_paid, issued_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.BookingID, &inv.ReferenceLocation, &inv.Source, &inv.SourceRef,
		&inv.RevenueCategory, &inv.TotalHT, &inv.TotalFT, &inv.BalancePTD, &inv.IsPaid, &inv.IssuedAt)
	return inv, err
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: "+format, append([]any{ErrInvoiceNotFound}, args...)...)
	}
	return err
}

// GetInvoice retrieves an invoice header by ID.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id))
	if err != nil {
		return Invoice{}, notFound(err, "%d", id)
	}
	return inv, nil
}

// GetInvoiceByNumber retrieves an invoice header by number.
func (r *Repository) GetInvoiceByNumber(ctx context.Context, number string) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE invoice_number=$1`, number))
	if err != nil {
		return Invoice{}, notFound(err, "%s", number)
	}
	return inv, nil
}

// ListItems returns invoice lines in order.
func (r *Repository) ListItems(ctx context.Context, invoiceID int64) ([]InvoiceItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT line_no, description, quantity, unit_price, total_line
FROM invoice_items WHERE invoice_id=$1 ORDER BY line_no`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []InvoiceItem
	for rows.Next() {
		var it InvoiceItem
		if err := rows.Scan(&it.LineNo, &it.Description, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListPayments returns payments of an invoice oldest first.
func (r *Repository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, amount, mode, transaction_ref, paid_at
FROM payments WHERE invoice_id=$1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Mode, &p.TransactionRef, &p.PaidAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// GetBooking loads a booking.
func (r *Repository) GetBooking(ctx context.Context, id int64) (Booking, error) {
	var b Booking
	err := r.pool.QueryRow(ctx, `SELECT id, room_number, adults, children, check_in, check_out, is_checked_in
FROM bookings WHERE id=$1`, id).Scan(&b.ID, &b.Room, &b.Adults, &b.Children, &b.CheckIn, &b.CheckOut, &b.CheckedIn)
	if errors.Is(err, pgx.ErrNoRows) {
		return Booking{}, fmt.Errorf("%w: %d", ErrBookingNotFound, id)
	}
	return b, err
}

// FindCheckedInBooking returns the latest checked-in booking for room.
func (r *Repository) FindCheckedInBooking(ctx context.Context, room string) (*int64, error) {
	if room == "" {
		return nil, nil
	}
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM bookings WHERE room_number=$1 AND is_checked_in
ORDER BY check_in DESC, id DESC LIMIT 1`, room).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ListInvoicesForReconcile returns invoices without a confirmed ledger
// posting, oldest first.
func (r *Repository) ListInvoicesForReconcile(ctx context.Context, limit int) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE ledger_posted_at IS NULL ORDER BY id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ListPaymentsForReconcile returns payments without a confirmed ledger
// posting, with their invoice number, oldest first.
func (r *Repository) ListPaymentsForReconcile(ctx context.Context, limit int) ([]PaymentRef, error) {
	query := `SELECT p.id, p.invoice_id, p.amount, p.mode, p.transaction_ref, p.paid_at, i.invoice_number
FROM payments p JOIN invoices i ON i.id = p.invoice_id
WHERE p.ledger_posted_at IS NULL ORDER BY p.id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PaymentRef
	for rows.Next() {
		var p PaymentRef
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Mode, &p.TransactionRef, &p.PaidAt, &p.InvoiceNumber); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	var sourceRef any
	if inv.SourceRef > 0 {
		sourceRef = inv.SourceRef
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO invoices (invoice_number, booking_id, reference_location, source, source_ref,
       revenue_category, total_ht, total_ft, balance_ptd, is_paid, issued_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,FALSE,$10)
ON CONFLICT ON CONSTRAINT uq_invoices_number DO NOTHING
RETURNING id`,
		inv.Number, inv.BookingID, inv.ReferenceLocation, inv.Source, sourceRef,
		inv.RevenueCategory, inv.TotalHT, inv.TotalFT, inv.BalancePTD, inv.IssuedAt,
	).Scan(&inv.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("%w: %s", ErrDuplicateNumber, inv.Number)
	}
	if err != nil {
		return Invoice{}, err
	}
	inv.IsPaid = false
	return inv, nil
}

func (r *txRepository) InsertInvoiceItems(ctx context.Context, invoiceID int64, items []InvoiceItem) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO invoice_items (invoice_id, line_no, description, quantity, unit_price, total_line)
VALUES ($1,$2,$3,$4,$5,$6)`, invoiceID, it.LineNo, it.Description, it.Quantity, it.UnitPrice, it.LineTotal)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Invoice{}, notFound(err, "%d", id)
	}
	return inv, nil
}

func (r *txRepository) SumPayments(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id=$1`, invoiceID).Scan(&sum)
	return sum, err
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO payments (invoice_id, amount, mode, transaction_ref, paid_at)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, p.InvoiceID, p.Amount, p.Mode, p.TransactionRef, p.PaidAt).Scan(&p.ID)
	return p, err
}

func (r *txRepository) MarkInvoicePosted(ctx context.Context, id int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoices SET ledger_posted_at = COALESCE(ledger_posted_at, $2) WHERE id=$1`, id, at)
	return err
}

func (r *txRepository) MarkPaymentPosted(ctx context.Context, id int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE payments SET ledger_posted_at = COALESCE(ledger_posted_at, $2) WHERE id=$1`, id, at)
	return err
}

func (r *txRepository) UpdateInvoiceSettlement(ctx context.Context, id int64, balance decimal.Decimal, isPaid bool) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoices SET balance_ptd=$2, is_paid = is_paid OR $3 WHERE id=$1`, id, balance, isPaid)
	return err
}
