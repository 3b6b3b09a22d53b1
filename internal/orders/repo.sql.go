package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-resort/internal/catalog"
	"github.com/odyssey-erp/odyssey-resort/internal/platform/db"
	"github.com/odyssey-erp/odyssey-resort/internal/stock"
)

// Repository provides PostgreSQL backed persistence for orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	stock.TxRepository
	tx pgx.Tx
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithTx executes fn within repeatable-read transaction shared with stock.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("orders repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: stock.NewTxRepository(tx), tx: tx})
	})
}

const orderColumns = `id, room, location_type, status, total_amount, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Room, &o.LocationType, &o.Status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func loadItems(ctx context.Context, q querier, orderIDs []int64) (map[int64][]Item, error) {
	rows, err := q.Query(ctx, `SELECT oi.id, oi.order_id, oi.menu_item_id, m.name, oi.quantity, oi.price_at_time,
       m.station, m.inventory_item_id
FROM order_items oi
JOIN menu_items m ON m.id = oi.menu_item_id
WHERE oi.order_id = ANY($1)
ORDER BY oi.order_id, oi.id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]Item, len(orderIDs))
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Quantity, &it.PriceAtTime,
			&it.Station, &it.InventoryItemID); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

const returnColumns = `id, order_id, reason, status, requested_at, decided_at, decided_by`

func scanReturn(row pgx.Row) (Return, error) {
	var ret Return
	err := row.Scan(&ret.ID, &ret.OrderID, &ret.Reason, &ret.Status, &ret.RequestedAt, &ret.DecidedAt, &ret.DecidedBy)
	return ret, err
}

// Get loads an order with its items and returns.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
		}
		return Order{}, err
	}
	items, err := loadItems(ctx, r.pool, []int64{id})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[id]
	rows, err := r.pool.Query(ctx, `SELECT `+returnColumns+` FROM order_returns WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return Order{}, err
		}
		o.Returns = append(o.Returns, ret)
	}
	return o, rows.Err()
}

// ListActive returns unserved orders newest first.
func (r *Repository) ListActive(ctx context.Context, filter ActiveFilter) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status <> $1`
	args := []any{StatusServed}
	if filter.Room != "" {
		query += ` AND room = $2`
		args = append(args, filter.Room)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var (
		orders []Order
		ids    []int64
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []Order{}, nil
	}
	items, err := loadItems(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

// SalesSince sums served orders created at or after since.
func (r *Repository) SalesSince(ctx context.Context, since time.Time) (SalesTotals, error) {
	totals := SalesTotals{Total: decimal.Zero, Kitchen: decimal.Zero, Bar: decimal.Zero}
	if err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total_amount), 0) FROM orders
WHERE status = $1 AND created_at >= $2`, StatusServed, since).Scan(&totals.Total); err != nil {
		return SalesTotals{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT m.station, COALESCE(SUM(oi.price_at_time * oi.quantity), 0)
FROM order_items oi
JOIN orders o ON o.id = oi.order_id
JOIN menu_items m ON m.id = oi.menu_item_id
WHERE o.status = $1 AND o.created_at >= $2
GROUP BY m.station`, StatusServed, since)
	if err != nil {
		return SalesTotals{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			station catalog.Station
			sum     decimal.Decimal
		)
		if err := rows.Scan(&station, &sum); err != nil {
			return SalesTotals{}, err
		}
		switch station {
		case catalog.StationKitchen:
			totals.Kitchen = sum
		case catalog.StationBar:
			totals.Bar = sum
		}
	}
	return totals, rows.Err()
}

// TopItemsSince ranks menu items by quantity served since the given time.
func (r *Repository) TopItemsSince(ctx context.Context, since time.Time, limit int) ([]TopItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT m.name, m.station, SUM(oi.quantity)::bigint,
       SUM(oi.price_at_time * oi.quantity)
FROM order_items oi
JOIN orders o ON o.id = oi.order_id
JOIN menu_items m ON m.id = oi.menu_item_id
WHERE o.status = $1 AND o.created_at >= $2
GROUP BY m.id, m.name, m.station
ORDER BY 3 DESC, m.name
LIMIT $3`, StatusServed, since, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[TopItem])
}

// GetReturn loads a return.
func (r *Repository) GetReturn(ctx context.Context, id int64) (Return, error) {
	ret, err := scanReturn(r.pool.QueryRow(ctx, `SELECT `+returnColumns+` FROM order_returns WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Return{}, fmt.Errorf("%w: %d", ErrReturnNotFound, id)
	}
	return ret, err
}

func (r *txRepository) InsertOrder(ctx context.Context, o Order) (Order, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO orders (room, location_type, status, total_amount)
VALUES ($1,$2,$3,$4) RETURNING id, created_at, updated_at`,
		o.Room, o.LocationType, o.Status, o.TotalAmount,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	batch := &pgx.Batch{}
	for _, it := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, menu_item_id, quantity, price_at_time)
VALUES ($1,$2,$3,$4) RETURNING id`, o.ID, it.MenuItemID, it.Quantity, it.PriceAtTime)
	}
	results := r.tx.SendBatch(ctx, batch)
	for i := range o.Items {
		if err := results.QueryRow().Scan(&o.Items[i].ID); err != nil {
			_ = results.Close()
			return Order{}, fmt.Errorf("insert order item %d: %w", i+1, err)
		}
		o.Items[i].OrderID = o.ID
	}
	if err := results.Close(); err != nil {
		return Order{}, err
	}
	if _, err := r.ClaimStatusMark(ctx, o.ID, o.Status); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
		}
		return Order{}, err
	}
	items, err := loadItems(ctx, r.tx, []int64{id})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[id]
	return o, nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	return nil
}

func (r *txRepository) ClaimStatusMark(ctx context.Context, id int64, status Status) (bool, error) {
	tag, err := r.tx.Exec(ctx, `INSERT INTO order_status_marks (order_id, status) VALUES ($1,$2)
ON CONFLICT (order_id, status) DO NOTHING`, id, status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) InsertReturn(ctx context.Context, ret Return) (Return, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO order_returns (order_id, reason, status, requested_at)
VALUES ($1,$2,$3,$4) RETURNING id`, ret.OrderID, ret.Reason, ret.Status, ret.RequestedAt).Scan(&ret.ID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Return{}, fmt.Errorf("%w: %d", ErrOrderNotFound, ret.OrderID)
		}
		return Return{}, err
	}
	return ret, nil
}

func (r *txRepository) GetReturnForUpdate(ctx context.Context, id int64) (Return, error) {
	ret, err := scanReturn(r.tx.QueryRow(ctx, `SELECT `+returnColumns+` FROM order_returns WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Return{}, fmt.Errorf("%w: %d", ErrReturnNotFound, id)
	}
	return ret, err
}

func (r *txRepository) UpdateReturn(ctx context.Context, ret Return) error {
	_, err := r.tx.Exec(ctx, `UPDATE order_returns SET status=$2, decided_at=$3, decided_by=$4 WHERE id=$1`,
		ret.ID, ret.Status, ret.DecidedAt, ret.DecidedBy)
	return err
}
