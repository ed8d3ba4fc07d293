package domain

import "fmt"

// QuantityUpdate is one (productId, amount) pair of a deduct or restore batch
type QuantityUpdate struct {
	ProductID string `json:"product_id"`
	Amount    int    `json:"amount"`
}

// NewQuantityUpdate validates and creates a QuantityUpdate
func NewQuantityUpdate(productID string, amount int) (QuantityUpdate, error) {
	if productID == "" {
		return QuantityUpdate{}, fmt.Errorf("product id is required")
	}
	if amount <= 0 {
		return QuantityUpdate{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, amount)
	}
	return QuantityUpdate{ProductID: productID, Amount: amount}, nil
}
