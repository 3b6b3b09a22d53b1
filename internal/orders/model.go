// Package orders implements the dining order lifecycle: creation with price
// snapshots, the kitchen status machine, serve-time stock deduction and returns.
package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-resort/internal/catalog"
	"github.com/odyssey-erp/odyssey-resort/internal/shared"
	"github.com/odyssey-erp/odyssey-resort/internal/stock"
)

// Status represents the lifecycle of an order.
type Status string

const (
	StatusPending   Status = "PENDING"   // Placed, not yet picked up by a station
	StatusPreparing Status = "PREPARING" // Being prepared
	StatusReady     Status = "READY"     // Waiting for pickup
	StatusServed    Status = "SERVED"    // Delivered to the guest, stock consumed
	StatusReturned  Status = "RETURNED"  // Closed by an admin-approved return
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusReady, StatusServed, StatusReturned:
		return true
	default:
		return false
	}
}

// IsSettable reports whether staff may move an order to s directly.
func (s Status) IsSettable() bool {
	return s.IsValid() && s != StatusReturned
}

// IsClosed reports whether the order accepts no further transitions.
func (s Status) IsClosed() bool {
	return s == StatusReturned
}

// ReturnStatus represents the approval chain of a return.
type ReturnStatus string

const (
	ReturnRequested       ReturnStatus = "REQUESTED"
	ReturnStationApproved ReturnStatus = "STATION_APPROVED"
	ReturnAdminApproved   ReturnStatus = "ADMIN_APPROVED"
	ReturnRejected        ReturnStatus = "REJECTED"
)

// CanMoveTo reports whether a return in s may be decided as next.
func (s ReturnStatus) CanMoveTo(next ReturnStatus) bool {
	switch next {
	case ReturnStationApproved:
		return s == ReturnRequested
	case ReturnAdminApproved, ReturnRejected:
		return s == ReturnRequested || s == ReturnStationApproved
	default:
		return false
	}
}

// Order is a guest's dining order.
type Order struct {
	ID           int64                `json:"id"`
	Room         string               `json:"room"`
	LocationType catalog.LocationType `json:"location_type"`
	Status       Status               `json:"status"`
	TotalAmount  decimal.Decimal      `json:"total_amount"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	Items        []Item               `json:"items"`
	Returns      []Return             `json:"returns,omitempty"`
}

// Item is one order line. PriceAtTime is the menu price when the order was
// placed and is never re-derived.
type Item struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	MenuItemID      int64           `json:"menu_item_id"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	PriceAtTime     decimal.Decimal `json:"price_at_time"`
	Station         catalog.Station `json:"station"`
	InventoryItemID *int64          `json:"inventory_item_id,omitempty"`
}

// LineTotal is quantity x snapshot price.
func (i Item) LineTotal() decimal.Decimal {
	return i.PriceAtTime.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Return is a guest's request to send an order back.
type Return struct {
	ID          int64        `json:"id"`
	OrderID     int64        `json:"order_id"`
	Reason      string       `json:"reason"`
	Status      ReturnStatus `json:"status"`
	RequestedAt time.Time    `json:"requested_at"`
	DecidedAt   *time.Time   `json:"decided_at,omitempty"`
	DecidedBy   string       `json:"decided_by,omitempty"`
}

// ActiveFilter narrows ListActive.
type ActiveFilter struct {
	Room string
}

// CreateResult is the persisted order plus the outcome of its dependent
// effects. A failed effect does not undo the order.
type CreateResult struct {
	Order   Order                    `json:"order"`
	Effects []shared.DependentEffect `json:"effects"`
}

// Deduction reports stock consumed by serving one order line.
type Deduction struct {
	MenuItemID      int64            `json:"menu_item_id"`
	InventoryItemID int64            `json:"inventory_item_id"`
	Department      stock.Department `json:"department"`
	Quantity        decimal.Decimal  `json:"quantity"`
}

// TransitionResult describes a status change.
type TransitionResult struct {
	Order      Order       `json:"order"`
	Previous   Status      `json:"previous_status"`
	Deductions []Deduction `json:"deductions,omitempty"`
}

// Timeframe names a sales reporting window ending at report time.
type Timeframe string

const (
	TimeframeToday Timeframe = "today" // Since local midnight
	TimeframeWeek  Timeframe = "week"  // Last 7 days
	TimeframeMonth Timeframe = "month" // Last 30 days
	TimeframeYear  Timeframe = "year"  // Last 365 days
)

// Timeframes lists the windows SalesStats reports, shortest first.
var Timeframes = []Timeframe{TimeframeToday, TimeframeWeek, TimeframeMonth, TimeframeYear}

// Since returns where the window opens for a report generated at now.
func (t Timeframe) Since(now time.Time) time.Time {
	switch t {
	case TimeframeToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case TimeframeWeek:
		return now.AddDate(0, 0, -7)
	case TimeframeMonth:
		return now.AddDate(0, 0, -30)
	default:
		return now.AddDate(0, 0, -365)
	}
}

// SalesTotals is served-order revenue over one window. Kitchen and Bar sum
// line totals by preparation station.
type SalesTotals struct {
	Total   decimal.Decimal `json:"total"`
	Kitchen decimal.Decimal `json:"kitchen"`
	Bar     decimal.Decimal `json:"bar"`
}

// TopItem is one best seller ranked by quantity served.
type TopItem struct {
	Name     string          `json:"name"`
	Station  catalog.Station `json:"station"`
	Quantity int64           `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// SalesStats is the dining sales dashboard.
type SalesStats struct {
	GeneratedAt time.Time                 `json:"generated_at"`
	Revenue     map[Timeframe]SalesTotals `json:"revenue"`
	TopItems    []TopItem                 `json:"top_items"`
}
