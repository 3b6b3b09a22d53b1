// Package stock tracks per-department inventory quantities, transfers between
// departments and the deductions caused by served orders.
package stock

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-resort/internal/catalog"
)

// Department is a storage location inside the resort.
type Department string

const (
	DepartmentMain     Department = "MAIN"
	DepartmentPool     Department = "POOL"
	DepartmentBar      Department = "BAR"
	DepartmentBeachBar Department = "BEACH_BAR"
	DepartmentKitchen  Department = "KITCHEN"
	DepartmentLaundry  Department = "LAUNDRY"
	DepartmentOffice   Department = "OFFICE"
)

// IsValid reports whether the department is known.
func (d Department) IsValid() bool {
	switch d {
	case DepartmentMain, DepartmentPool, DepartmentBar, DepartmentBeachBar, DepartmentKitchen, DepartmentLaundry, DepartmentOffice:
		return true
	default:
		return false
	}
}

// ParseDepartment normalises raw input.
func ParseDepartment(raw string) (Department, error) {
	d := Department(strings.ToUpper(strings.TrimSpace(raw)))
	if !d.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDepartment, raw)
	}
	return d, nil
}

// ResolveDepartment picks the department that supplies a served item. Kitchen
// items always come from the kitchen; bar items come from the bar nearest the
// delivery location.
func ResolveDepartment(station catalog.Station, location catalog.LocationType) Department {
	if station == catalog.StationKitchen {
		return DepartmentKitchen
	}
	switch location {
	case catalog.LocationPool:
		return DepartmentPool
	case catalog.LocationBeach:
		return DepartmentBeachBar
	default:
		return DepartmentBar
	}
}

// Item is a stock-keeping unit.
type Item struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Unit      string          `json:"unit"`
	CostPrice decimal.Decimal `json:"cost_price"`
}

// Stock is the quantity of one item held by one department.
type Stock struct {
	ItemID     int64           `json:"item_id"`
	Department Department      `json:"department"`
	Quantity   decimal.Decimal `json:"quantity"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Transfer records an immutable movement between two departments.
type Transfer struct {
	ID          int64           `json:"id"`
	ItemID      int64           `json:"item_id"`
	From        Department      `json:"from_department"`
	To          Department      `json:"to_department"`
	Quantity    decimal.Decimal `json:"quantity"`
	PerformedBy string          `json:"performed_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Movement is an audit row for a quantity change caused by another module.
type Movement struct {
	ItemID     int64
	Department Department
	Delta      decimal.Decimal
	RefModule  string
	RefID      string
}

// Policy controls whether operations may drive a stock row below zero.
type Policy struct {
	AllowNegativeOnTransfer  bool
	AllowNegativeOnDeduction bool
}

// DefaultPolicy forbids negative transfers and permits negative deductions.
func DefaultPolicy() Policy {
	return Policy{AllowNegativeOnTransfer: false, AllowNegativeOnDeduction: true}
}

// ItemInput creates a stock item.
type ItemInput struct {
	Name      string          `json:"name" validate:"required,max=100"`
	SKU       string          `json:"sku" validate:"required,max=50"`
	Unit      string          `json:"unit" validate:"required,max=20"`
	CostPrice decimal.Decimal `json:"cost_price"`
}

// TransferInput moves Quantity of an item between departments. Reference, when
// set, makes the request idempotent.
type TransferInput struct {
	ItemID      int64
	From        Department
	To          Department
	Quantity    decimal.Decimal
	PerformedBy string
	Reference   string
}

// DeductionInput consumes stock for one served order line.
type DeductionInput struct {
	OrderID         int64
	InventoryItemID *int64
	Station         catalog.Station
	Location        catalog.LocationType
	Quantity        decimal.Decimal
}
