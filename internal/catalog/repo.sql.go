package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads menu items from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetMenuItems loads the available menu items in ids keyed by id. Any id that
// is missing or unavailable fails the whole lookup.
func (r *Repository) GetMenuItems(ctx context.Context, ids []int64) (map[int64]MenuItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, price, station, inventory_item_id, is_available
FROM menu_items WHERE id = ANY($1) AND is_available`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make(map[int64]MenuItem, len(ids))
	for rows.Next() {
		var m MenuItem
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.Station, &m.InventoryItemID, &m.Available); err != nil {
			return nil, err
		}
		items[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := items[id]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrMenuItemNotFound, id)
		}
	}
	return items, nil
}
