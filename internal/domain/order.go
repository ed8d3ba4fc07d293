package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyOrder        = errors.New("order has no lines")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// OrderStatus is the fulfilment state of a customer order
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderConfirmed, OrderCancelled},
	OrderConfirmed: {OrderShipped},
	OrderShipped:   {OrderDelivered},
}

// Valid reports whether s is a known status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from s to next
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	return slices.Contains(orderTransitions[s], next)
}

// DeliveryInfo holds where and to whom an order is delivered
type DeliveryInfo struct {
	FullName string `json:"full_name" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
	Address  string `json:"address" validate:"required"`
	City     string `json:"city" validate:"required"`
	Notes    string `json:"notes,omitempty"`
}

// Order is an immutable snapshot of cart lines taken at checkout. Stock was
// already deducted when the lines were reserved.
type Order struct {
	ID        uuid.UUID       `json:"id"`
	Lines     []CartLine      `json:"lines"`
	Delivery  DeliveryInfo    `json:"delivery"`
	Total     decimal.Decimal `json:"total"`
	Status    OrderStatus     `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewOrder snapshots lines into a pending order
func NewOrder(lines []CartLine, delivery DeliveryInfo, now time.Time) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %s", ErrInvalidQuantity, l.Key)
		}
	}

	return &Order{
		ID:        uuid.New(),
		Lines:     slices.Clone(lines),
		Delivery:  delivery,
		Total:     LinesTotal(lines),
		Status:    OrderPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
