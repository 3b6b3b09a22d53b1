package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-resort/internal/platform/db"
)

// Repository persists stock data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository exposes stock row operations on a transaction owned by another module.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetItem loads an inventory item.
func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	var item Item
	err := r.pool.QueryRow(ctx, `SELECT id, name, sku, unit, cost_price FROM inventory_items WHERE id=$1`, id).
		Scan(&item.ID, &item.Name, &item.SKU, &item.Unit, &item.CostPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}
	return item, err
}

// ListStock returns department rows for an item ordered by department.
func (r *Repository) ListStock(ctx context.Context, itemID int64) ([]Stock, error) {
	rows, err := r.pool.Query(ctx, `SELECT item_id, department, quantity, updated_at
FROM inventory_stocks WHERE item_id=$1 ORDER BY department`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Stock
	for rows.Next() {
		var st Stock
		if err := rows.Scan(&st.ItemID, &st.Department, &st.Quantity, &st.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *txRepository) ItemExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventory_items WHERE id=$1)`, id).Scan(&ok)
	return ok, err
}

func (r *txRepository) LockStock(ctx context.Context, itemID int64, dept Department) (Stock, error) {
	if _, err := r.tx.Exec(ctx, `INSERT INTO inventory_stocks (item_id, department, quantity) VALUES ($1,$2,0)
ON CONFLICT ON CONSTRAINT uq_inventory_stocks_item_department DO NOTHING`, itemID, dept); err != nil {
		if db.IsForeignKeyViolation(err) {
			return Stock{}, fmt.Errorf("%w: %d", ErrItemNotFound, itemID)
		}
		return Stock{}, err
	}
	var st Stock
	err := r.tx.QueryRow(ctx, `SELECT item_id, department, quantity, updated_at FROM inventory_stocks
WHERE item_id=$1 AND department=$2 FOR UPDATE`, itemID, dept).Scan(&st.ItemID, &st.Department, &st.Quantity, &st.UpdatedAt)
	if err != nil {
		return Stock{}, fmt.Errorf("stock: lock %d/%s: %w", itemID, dept, err)
	}
	return st, nil
}

func (r *txRepository) SetQuantity(ctx context.Context, itemID int64, dept Department, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_stocks SET quantity=$3, updated_at=NOW() WHERE item_id=$1 AND department=$2`, itemID, dept, qty)
	return err
}

func (r *txRepository) InsertTransfer(ctx context.Context, t Transfer) (Transfer, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_transfers (item_id, from_department, to_department, quantity, performed_by)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`, t.ItemID, t.From, t.To, t.Quantity, t.PerformedBy).Scan(&t.ID, &t.CreatedAt)
	return t, err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (item_id, department, delta, ref_module, ref_id) VALUES ($1,$2,$3,$4,$5)`,
		m.ItemID, m.Department, m.Delta, m.RefModule, m.RefID)
	return err
}

func (r *txRepository) InsertItem(ctx context.Context, in ItemInput) (Item, error) {
	item := Item{Name: in.Name, SKU: in.SKU, Unit: in.Unit, CostPrice: in.CostPrice.Round(2)}
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_items (name, sku, unit, cost_price) VALUES ($1,$2,$3,$4)
ON CONFLICT ON CONSTRAINT uq_inventory_items_sku DO NOTHING RETURNING id`, item.Name, item.SKU, item.Unit, item.CostPrice).Scan(&item.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: %s", ErrDuplicateSKU, in.SKU)
	}
	return item, err
}
