package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// InsufficientStockError reports how many units were available when a
// reservation was refused. It matches ErrInsufficientStock with errors.Is.
type InsufficientStockError struct {
	ProductID string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (available: %d)", e.ProductID, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// NewInsufficientStock creates an InsufficientStockError
func NewInsufficientStock(productID string, available int) error {
	return &InsufficientStockError{ProductID: productID, Available: available}
}
