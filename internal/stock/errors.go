package stock

import "github.com/odyssey-erp/odyssey-resort/internal/shared"

var (
	// ErrInvalidTransfer indicates a transfer whose source equals its destination.
	ErrInvalidTransfer = shared.Classify("stock: source and destination department must differ", shared.ErrConflict)
	// ErrInvalidQuantity indicates non-positive quantity.
	ErrInvalidQuantity = shared.Classify("stock: quantity must be positive", shared.ErrValidation)
	// ErrInvalidDepartment indicates an unknown department.
	ErrInvalidDepartment = shared.Classify("stock: invalid department", shared.ErrValidation)
	// ErrInvalidItem indicates unusable item input.
	ErrInvalidItem = shared.Classify("stock: invalid item", shared.ErrValidation)
	// ErrInsufficientStock indicates the source department holds less than requested.
	ErrInsufficientStock = shared.Classify("stock: insufficient stock", shared.ErrConflict)
	// ErrItemNotFound indicates missing inventory item.
	ErrItemNotFound = shared.Classify("stock: item not found", shared.ErrNotFound)
	// ErrDuplicateSKU indicates the SKU is taken.
	ErrDuplicateSKU = shared.Classify("stock: sku already exists", shared.ErrConflict)
)
