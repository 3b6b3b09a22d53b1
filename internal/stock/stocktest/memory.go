// Package stocktest provides an in-memory stock store for tests.
package stocktest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-resort/internal/stock"
)

type stockKey struct {
	itemID int64
	dept   stock.Department
}

// Store is an in-memory stock.RepositoryPort. WithTx restores the previous
// state when the callback fails.
type Store struct {
	mu        sync.Mutex
	items     map[int64]stock.Item
	stocks    map[stockKey]decimal.Decimal
	transfers []stock.Transfer
	movements []stock.Movement
	nextItem  int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{items: make(map[int64]stock.Item), stocks: make(map[stockKey]decimal.Decimal)}
}

// AddItem registers an item and returns its id.
func (s *Store) AddItem(name, sku string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextItem++
	s.items[s.nextItem] = stock.Item{ID: s.nextItem, Name: name, SKU: sku, Unit: "pcs"}
	return s.nextItem
}

// Seed sets a quantity directly.
func (s *Store) Seed(itemID int64, dept stock.Department, qty string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stocks[stockKey{itemID, dept}] = decimal.RequireFromString(qty)
}

// Quantity returns the stored quantity, zero when no row exists.
func (s *Store) Quantity(itemID int64, dept stock.Department) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stocks[stockKey{itemID, dept}]
}

// Movements returns every recorded movement.
func (s *Store) Movements() []stock.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stock.Movement(nil), s.movements...)
}

// Transfers returns every recorded transfer.
func (s *Store) Transfers() []stock.Transfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stock.Transfer(nil), s.transfers...)
}

// Begin locks the store and returns a commit func that restores the snapshot
// when passed a non-nil error.
func (s *Store) Begin() func(err error) {
	s.mu.Lock()
	items := make(map[int64]stock.Item, len(s.items))
	for k, v := range s.items {
		items[k] = v
	}
	stocks := make(map[stockKey]decimal.Decimal, len(s.stocks))
	for k, v := range s.stocks {
		stocks[k] = v
	}
	transfers, movements, nextItem := len(s.transfers), len(s.movements), s.nextItem
	return func(err error) {
		if err != nil {
			s.items = items
			s.stocks = stocks
			s.transfers = s.transfers[:transfers]
			s.movements = s.movements[:movements]
			s.nextItem = nextItem
		}
		s.mu.Unlock()
	}
}

// WithTx implements stock.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, stock.TxRepository) error) error {
	done := s.Begin()
	err := fn(ctx, Tx{s})
	done(err)
	return err
}

// GetItem implements stock.RepositoryPort.
func (s *Store) GetItem(ctx context.Context, id int64) (stock.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return stock.Item{}, fmt.Errorf("%w: %d", stock.ErrItemNotFound, id)
	}
	return item, nil
}

// ListStock implements stock.RepositoryPort.
func (s *Store) ListStock(ctx context.Context, itemID int64) ([]stock.Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []stock.Stock
	for k, qty := range s.stocks {
		if k.itemID == itemID {
			out = append(out, stock.Stock{ItemID: itemID, Department: k.dept, Quantity: qty})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Department < out[j].Department })
	return out, nil
}

// Tx implements stock.TxRepository against a Store whose scope is held.
type Tx struct {
	s *Store
}

// NewTx exposes the row operations of s. The caller must hold the scope opened by Begin.
func NewTx(s *Store) Tx {
	return Tx{s}
}

func (t Tx) ItemExists(ctx context.Context, id int64) (bool, error) {
	_, ok := t.s.items[id]
	return ok, nil
}

func (t Tx) LockStock(ctx context.Context, itemID int64, dept stock.Department) (stock.Stock, error) {
	if _, ok := t.s.items[itemID]; !ok {
		return stock.Stock{}, fmt.Errorf("%w: %d", stock.ErrItemNotFound, itemID)
	}
	key := stockKey{itemID, dept}
	qty, ok := t.s.stocks[key]
	if !ok {
		qty = decimal.Zero
		t.s.stocks[key] = qty
	}
	return stock.Stock{ItemID: itemID, Department: dept, Quantity: qty, UpdatedAt: time.Now()}, nil
}

func (t Tx) SetQuantity(ctx context.Context, itemID int64, dept stock.Department, qty decimal.Decimal) error {
	t.s.stocks[stockKey{itemID, dept}] = qty
	return nil
}

func (t Tx) InsertTransfer(ctx context.Context, tr stock.Transfer) (stock.Transfer, error) {
	tr.ID = int64(len(t.s.transfers) + 1)
	tr.CreatedAt = time.Now()
	t.s.transfers = append(t.s.transfers, tr)
	return tr, nil
}

func (t Tx) InsertMovement(ctx context.Context, m stock.Movement) error {
	t.s.movements = append(t.s.movements, m)
	return nil
}

func (t Tx) InsertItem(ctx context.Context, in stock.ItemInput) (stock.Item, error) {
	for _, item := range t.s.items {
		if item.SKU == in.SKU {
			return stock.Item{}, fmt.Errorf("%w: %s", stock.ErrDuplicateSKU, in.SKU)
		}
	}
	t.s.nextItem++
	item := stock.Item{ID: t.s.nextItem, Name: in.Name, SKU: in.SKU, Unit: in.Unit, CostPrice: in.CostPrice.Round(2)}
	t.s.items[item.ID] = item
	return item, nil
}
