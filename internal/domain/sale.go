package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptySale       = errors.New("sale has no items")
	ErrInvalidSaleItem = errors.New("invalid sale item")
)

// SaleItem is a recorded cashier line
type SaleItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	SizeLabel   string          `json:"size_label,omitempty"`
	AddonLabels []string        `json:"addon_labels,omitempty"`
	Color       string          `json:"color,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// Sale is a completed cashier transaction
type Sale struct {
	ID        uuid.UUID       `json:"id"`
	Items     []SaleItem      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
}

// Cost returns the wholesale cost of all items
func (s *Sale) Cost() decimal.Decimal {
	cost := decimal.Zero
	for _, it := range s.Items {
		cost = cost.Add(it.UnitCost.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return cost
}

// NewSale validates cashier lines and records them as a sale
func NewSale(lines []CartLine, now time.Time) (*Sale, error) {
	if len(lines) == 0 {
		return nil, ErrEmptySale
	}

	items := make([]SaleItem, 0, len(lines))
	for _, l := range lines {
		switch {
		case l.Quantity <= 0:
			return nil, fmt.Errorf("%w: %s has quantity %d", ErrInvalidSaleItem, l.ProductID, l.Quantity)
		case !l.UnitFinalPrice.IsPositive():
			return nil, fmt.Errorf("%w: %s has no price", ErrInvalidSaleItem, l.ProductID)
		case l.ProductID == "" || l.ProductName == "":
			return nil, fmt.Errorf("%w: missing product identity", ErrInvalidSaleItem)
		}

		item := SaleItem{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Color:       l.Color,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitFinalPrice,
			TotalPrice:  l.TotalPrice,
			UnitCost:    l.UnitCost,
		}
		if l.Size != nil {
			item.SizeLabel = l.Size.Label
		}
		for _, a := range l.Addons {
			item.AddonLabels = append(item.AddonLabels, a.Label)
		}
		items = append(items, item)
	}

	return &Sale{
		ID:        uuid.New(),
		Items:     items,
		Total:     LinesTotal(lines),
		CreatedAt: now,
	}, nil
}
