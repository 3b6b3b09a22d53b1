// Package orderstest provides an in-memory order store backed by a
// stocktest.Store so status changes and stock deductions roll back together.
package orderstest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-resort/internal/catalog"
	"github.com/odyssey-erp/odyssey-resort/internal/orders"
	"github.com/odyssey-erp/odyssey-resort/internal/stock/stocktest"
)

type markKey struct {
	orderID int64
	status  orders.Status
}

// Store implements orders.RepositoryPort and orders.MenuReader in memory.
type Store struct {
	Stock *stocktest.Store

	mu        sync.Mutex
	menu      map[int64]catalog.MenuItem
	orders    map[int64]orders.Order
	returns   map[int64]orders.Return
	marks     map[markKey]bool
	nextMenu  int64
	nextOrder int64
	nextItem  int64
	nextRet   int64
	listCalls int
}

// NewStore returns an empty store deducting from st.
func NewStore(st *stocktest.Store) *Store {
	return &Store{
		Stock:   st,
		menu:    make(map[int64]catalog.MenuItem),
		orders:  make(map[int64]orders.Order),
		returns: make(map[int64]orders.Return),
		marks:   make(map[markKey]bool),
	}
}

// AddMenuItem registers an available menu item and returns its id.
func (s *Store) AddMenuItem(name, price string, station catalog.Station, inventoryItemID *int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMenu++
	s.menu[s.nextMenu] = catalog.MenuItem{
		ID:              s.nextMenu,
		Name:            name,
		Price:           decimal.RequireFromString(price),
		Station:         station,
		InventoryItemID: inventoryItemID,
		Available:       true,
	}
	return s.nextMenu
}

// SetPrice changes a menu price after orders were placed.
func (s *Store) SetPrice(id int64, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.menu[id]
	m.Price = decimal.RequireFromString(price)
	s.menu[id] = m
}

// ListCalls reports how many times ListActive reached the store.
func (s *Store) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

// GetMenuItems implements orders.MenuReader.
func (s *Store) GetMenuItems(ctx context.Context, ids []int64) (map[int64]catalog.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]catalog.MenuItem, len(ids))
	for _, id := range ids {
		m, ok := s.menu[id]
		if !ok || !m.Available {
			return nil, fmt.Errorf("%w: %d", catalog.ErrMenuItemNotFound, id)
		}
		out[id] = m
	}
	return out, nil
}

func cloneOrder(o orders.Order) orders.Order {
	o.Items = append([]orders.Item(nil), o.Items...)
	o.Returns = nil
	return o
}

// WithTx implements orders.RepositoryPort. The stock store is held for the
// whole scope and restored with this store on failure.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, orders.TxRepository) error) error {
	stockDone := s.Stock.Begin()
	s.mu.Lock()
	ordersSnap := make(map[int64]orders.Order, len(s.orders))
	for k, v := range s.orders {
		ordersSnap[k] = cloneOrder(v)
	}
	returnsSnap := make(map[int64]orders.Return, len(s.returns))
	for k, v := range s.returns {
		returnsSnap[k] = v
	}
	marksSnap := make(map[markKey]bool, len(s.marks))
	for k, v := range s.marks {
		marksSnap[k] = v
	}
	nextOrder, nextItem, nextRet := s.nextOrder, s.nextItem, s.nextRet

	err := fn(ctx, &Tx{Tx: stocktest.NewTx(s.Stock), s: s})
	if err != nil {
		s.orders = ordersSnap
		s.returns = returnsSnap
		s.marks = marksSnap
		s.nextOrder, s.nextItem, s.nextRet = nextOrder, nextItem, nextRet
	}
	s.mu.Unlock()
	stockDone(err)
	return err
}

// Get implements orders.RepositoryPort.
func (s *Store) Get(ctx context.Context, id int64) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: %d", orders.ErrOrderNotFound, id)
	}
	o = cloneOrder(o)
	for _, ret := range s.sortedReturns() {
		if ret.OrderID == id {
			o.Returns = append(o.Returns, ret)
		}
	}
	return o, nil
}

func (s *Store) sortedReturns() []orders.Return {
	out := make([]orders.Return, 0, len(s.returns))
	for _, ret := range s.returns {
		out = append(out, ret)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListActive implements orders.RepositoryPort.
func (s *Store) ListActive(ctx context.Context, filter orders.ActiveFilter) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	out := []orders.Order{}
	for _, o := range s.orders {
		if o.Status == orders.StatusServed {
			continue
		}
		if filter.Room != "" && o.Room != filter.Room {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Backdate moves an order's creation time, for windowed reports.
func (s *Store) Backdate(id int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	o.CreatedAt = at
	s.orders[id] = o
}

func (s *Store) servedSince(since time.Time) []orders.Order {
	var out []orders.Order
	for _, o := range s.orders {
		if o.Status == orders.StatusServed && !o.CreatedAt.Before(since) {
			out = append(out, o)
		}
	}
	return out
}

// SalesSince implements orders.RepositoryPort.
func (s *Store) SalesSince(ctx context.Context, since time.Time) (orders.SalesTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := orders.SalesTotals{Total: decimal.Zero, Kitchen: decimal.Zero, Bar: decimal.Zero}
	for _, o := range s.servedSince(since) {
		totals.Total = totals.Total.Add(o.TotalAmount)
		for _, it := range o.Items {
			switch it.Station {
			case catalog.StationKitchen:
				totals.Kitchen = totals.Kitchen.Add(it.LineTotal())
			case catalog.StationBar:
				totals.Bar = totals.Bar.Add(it.LineTotal())
			}
		}
	}
	return totals, nil
}

// TopItemsSince implements orders.RepositoryPort.
func (s *Store) TopItemsSince(ctx context.Context, since time.Time, limit int) ([]orders.TopItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byMenu := make(map[int64]*orders.TopItem)
	for _, o := range s.servedSince(since) {
		for _, it := range o.Items {
			top, ok := byMenu[it.MenuItemID]
			if !ok {
				top = &orders.TopItem{Name: it.Name, Station: it.Station, Revenue: decimal.Zero}
				byMenu[it.MenuItemID] = top
			}
			top.Quantity += int64(it.Quantity)
			top.Revenue = top.Revenue.Add(it.LineTotal())
		}
	}
	out := make([]orders.TopItem, 0, len(byMenu))
	for _, top := range byMenu {
		out = append(out, *top)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetReturn implements orders.RepositoryPort.
func (s *Store) GetReturn(ctx context.Context, id int64) (orders.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret, ok := s.returns[id]
	if !ok {
		return orders.Return{}, fmt.Errorf("%w: %d", orders.ErrReturnNotFound, id)
	}
	return ret, nil
}

// Tx implements orders.TxRepository while WithTx holds the store.
type Tx struct {
	stocktest.Tx
	s *Store
}

func (t *Tx) InsertOrder(ctx context.Context, o orders.Order) (orders.Order, error) {
	t.s.nextOrder++
	o.ID = t.s.nextOrder
	now := time.Now()
	o.CreatedAt, o.UpdatedAt = now, now
	o.Items = append([]orders.Item(nil), o.Items...)
	for i := range o.Items {
		t.s.nextItem++
		o.Items[i].ID = t.s.nextItem
		o.Items[i].OrderID = o.ID
	}
	t.s.orders[o.ID] = cloneOrder(o)
	t.s.marks[markKey{o.ID, o.Status}] = true
	return o, nil
}

func (t *Tx) GetOrderForUpdate(ctx context.Context, id int64) (orders.Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: %d", orders.ErrOrderNotFound, id)
	}
	return cloneOrder(o), nil
}

func (t *Tx) UpdateStatus(ctx context.Context, id int64, status orders.Status) error {
	o, ok := t.s.orders[id]
	if !ok {
		return fmt.Errorf("%w: %d", orders.ErrOrderNotFound, id)
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	t.s.orders[id] = o
	return nil
}

func (t *Tx) ClaimStatusMark(ctx context.Context, id int64, status orders.Status) (bool, error) {
	key := markKey{id, status}
	if t.s.marks[key] {
		return false, nil
	}
	t.s.marks[key] = true
	return true, nil
}

func (t *Tx) InsertReturn(ctx context.Context, ret orders.Return) (orders.Return, error) {
	if _, ok := t.s.orders[ret.OrderID]; !ok {
		return orders.Return{}, fmt.Errorf("%w: %d", orders.ErrOrderNotFound, ret.OrderID)
	}
	t.s.nextRet++
	ret.ID = t.s.nextRet
	t.s.returns[ret.ID] = ret
	return ret, nil
}

func (t *Tx) GetReturnForUpdate(ctx context.Context, id int64) (orders.Return, error) {
	ret, ok := t.s.returns[id]
	if !ok {
		return orders.Return{}, fmt.Errorf("%w: %d", orders.ErrReturnNotFound, id)
	}
	return ret, nil
}

func (t *Tx) UpdateReturn(ctx context.Context, ret orders.Return) error {
	if _, ok := t.s.returns[ret.ID]; !ok {
		return fmt.Errorf("%w: %d", orders.ErrReturnNotFound, ret.ID)
	}
	t.s.returns[ret.ID] = ret
	return nil
}
