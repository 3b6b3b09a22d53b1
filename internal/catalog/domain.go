// Package catalog holds the menu and location vocabulary shared by orders,
// stock and billing.
package catalog

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-resort/internal/shared"
)

// Station is the preparation point of a menu item.
type Station string

const (
	StationKitchen Station = "KITCHEN"
	StationBar     Station = "BAR"
)

// IsValid reports whether the station is known.
func (s Station) IsValid() bool {
	return s == StationKitchen || s == StationBar
}

// LocationType is where an order is delivered.
type LocationType string

const (
	LocationRoom   LocationType = "ROOM"
	LocationTable  LocationType = "TABLE"
	LocationBeach  LocationType = "BEACH"
	LocationPool   LocationType = "POOL"
	LocationWalkIn LocationType = "WALK_IN"
)

// ErrInvalidLocation indicates an unknown location type.
var ErrInvalidLocation = shared.Classify("catalog: invalid location type", shared.ErrValidation)

// ErrMenuItemNotFound indicates a missing or unavailable menu item.
var ErrMenuItemNotFound = shared.Classify("catalog: menu item not found", shared.ErrNotFound)

// IsValid reports whether the location type is known.
func (l LocationType) IsValid() bool {
	switch l {
	case LocationRoom, LocationTable, LocationBeach, LocationPool, LocationWalkIn:
		return true
	default:
		return false
	}
}

// ParseLocationType normalises raw input; blank defaults to ROOM.
func ParseLocationType(raw string) (LocationType, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return LocationRoom, nil
	}
	loc := LocationType(strings.ReplaceAll(raw, "-", "_"))
	if !loc.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidLocation, raw)
	}
	return loc, nil
}

// MenuItem is a sellable dish or drink. InventoryItemID links it to the stock
// item consumed when it is served.
type MenuItem struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	Station         Station         `json:"station"`
	InventoryItemID *int64          `json:"inventory_item_id,omitempty"`
	Available       bool            `json:"available"`
}
