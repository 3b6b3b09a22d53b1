package orders

import "fmt"

// CreateRequest represents request to place an order.
type CreateRequest struct {
	Room         string              `json:"room" validate:"max=50"`
	LocationType string              `json:"location_type" validate:"omitempty,max=20"`
	Items        []CreateItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateItemRequest represents a line in create request.
type CreateItemRequest struct {
	MenuItemID int64 `json:"menu_item_id" validate:"required,gt=0"`
	Quantity   int   `json:"quantity" validate:"required,gt=0"`
}

// StatusRequest represents request to move an order.
type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// ReturnRequest represents request to send an order back.
type ReturnRequest struct {
	Reason string `json:"reason"`
}

// ValidateCreateRequest validates create request.
func ValidateCreateRequest(req CreateRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("line %d: %w", i+1, ErrInvalidQuantity)
		}
	}
	return nil
}
