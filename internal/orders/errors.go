package orders

import "github.com/odyssey-erp/odyssey-resort/internal/shared"

var (
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = shared.Classify("orders: order not found", shared.ErrNotFound)
	// ErrReturnNotFound indicates the return does not exist.
	ErrReturnNotFound = shared.Classify("orders: return not found", shared.ErrNotFound)
	// ErrInvalidStatus indicates a status staff may not set.
	ErrInvalidStatus = shared.Classify("orders: invalid status", shared.ErrValidation)
	// ErrOrderClosed indicates the order was returned and is final.
	ErrOrderClosed = shared.Classify("orders: order is closed", shared.ErrConflict)
	// ErrOrderBusy indicates another request holds the order lock.
	ErrOrderBusy = shared.Classify("orders: order busy", shared.ErrConflict, shared.ErrLockBusy)
	// ErrEmptyItems indicates an order without lines.
	ErrEmptyItems = shared.Classify("orders: at least one item required", shared.ErrValidation)
	// ErrInvalidQuantity indicates a non-positive line quantity.
	ErrInvalidQuantity = shared.Classify("orders: quantity must be positive", shared.ErrValidation)
	// ErrMissingReason indicates a return without a reason.
	ErrMissingReason = shared.Classify("orders: return reason required", shared.ErrValidation)
	// ErrInvalidReturnTransition indicates the return cannot move to the requested state.
	ErrInvalidReturnTransition = shared.Classify("orders: invalid return transition", shared.ErrConflict)
)
