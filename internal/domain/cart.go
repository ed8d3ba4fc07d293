package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownColor  = errors.New("unknown color")
	ErrInvalidOption = errors.New("option id contains a reserved character")
)

// lineKeySeparators join the parts of a LineKey and may not appear in them
const lineKeySeparators = "|,"

// ValidOptionID reports whether id can take part in a LineKey
func ValidOptionID(id string) bool {
	return !strings.ContainsAny(id, lineKeySeparators)
}

// LineKey is the composite identity of a cart line: product, size, the
// sorted addon ids and color. Lines with different keys are never merged.
type LineKey string

// NewLineKey builds the composite identity for a selection. Its parts must
// pass ValidOptionID or distinct selections may share a key.
func NewLineKey(productID, sizeID string, addonIDs []string, color string) LineKey {
	sorted := slices.Clone(addonIDs)
	slices.Sort(sorted)
	return LineKey(strings.Join([]string{productID, sizeID, strings.Join(sorted, ","), color}, "|"))
}

// Selection describes the options picked for a product
type Selection struct {
	SizeID   string   `json:"size_id,omitempty"`
	AddonIDs []string `json:"addon_ids,omitempty"`
	Color    string   `json:"color,omitempty"`
}

// CartLine is one entry in a customer or cashier cart
type CartLine struct {
	Key            LineKey         `json:"key"`
	ProductID      string          `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Size           *Size           `json:"size,omitempty"`
	Addons         []Addon         `json:"addons,omitempty"`
	Color          string          `json:"color,omitempty"`
	Quantity       int             `json:"quantity"`
	UnitFinalPrice decimal.Decimal `json:"unit_final_price"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
}

// NewCartLine prices a selection of product options and creates a line for
// quantity units. The unit price is fixed at this point; later catalog price
// changes do not affect the line.
func NewCartLine(p *Product, quantity int, sel Selection, now time.Time) (CartLine, error) {
	if quantity <= 0 {
		return CartLine{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	for _, id := range append([]string{p.ID, sel.SizeID, sel.Color}, sel.AddonIDs...) {
		if !ValidOptionID(id) {
			return CartLine{}, fmt.Errorf("%w: %q", ErrInvalidOption, id)
		}
	}

	unit, err := p.UnitPrice(sel.SizeID, sel.AddonIDs, now)
	if err != nil {
		return CartLine{}, err
	}

	line := CartLine{
		Key:            NewLineKey(p.ID, sel.SizeID, sel.AddonIDs, sel.Color),
		ProductID:      p.ID,
		ProductName:    p.Name,
		Color:          sel.Color,
		Quantity:       quantity,
		UnitFinalPrice: unit,
		TotalPrice:     unit.Mul(decimal.NewFromInt(int64(quantity))),
		UnitCost:       p.WholesaleInfo.Cost,
	}

	if sel.SizeID != "" {
		size, _ := p.FindSize(sel.SizeID)
		line.Size = &size
	}
	for _, id := range sel.AddonIDs {
		addon, _ := p.FindAddon(id)
		line.Addons = append(line.Addons, addon)
	}
	if sel.Color != "" && len(p.Colors) > 0 && !slices.Contains(p.Colors, sel.Color) {
		return CartLine{}, fmt.Errorf("%w: %s", ErrUnknownColor, sel.Color)
	}

	return line, nil
}

// WithQuantity returns a copy of the line with quantity and total updated together
func (l CartLine) WithQuantity(quantity int) (CartLine, error) {
	if quantity <= 0 {
		return CartLine{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	l.Quantity = quantity
	l.TotalPrice = l.UnitFinalPrice.Mul(decimal.NewFromInt(int64(quantity)))
	return l, nil
}

// SizeID returns the selected size id or empty
func (l CartLine) SizeID() string {
	if l.Size == nil {
		return ""
	}
	return l.Size.ID
}

// LinesTotal sums TotalPrice over lines
func LinesTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.TotalPrice)
	}
	return total
}
