package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownSize  = errors.New("unknown size")
	ErrUnknownAddon = errors.New("unknown addon")
)

var hundred = decimal.NewFromInt(100)

// Size is a selectable variant whose price replaces the product base price
type Size struct {
	ID    string          `json:"id"`
	Label string          `json:"label"`
	Price decimal.Decimal `json:"price"`
}

// Addon adds PriceDelta on top of the size or base price
type Addon struct {
	ID         string          `json:"id"`
	Label      string          `json:"label"`
	PriceDelta decimal.Decimal `json:"price_delta"`
}

// WholesaleInfo holds stock and cost data. Quantity is the number of units
// currently available to sell.
type WholesaleInfo struct {
	Quantity int             `json:"quantity"`
	Cost     decimal.Decimal `json:"cost"`
	Supplier string          `json:"supplier,omitempty"`
}

// Product represents a product in the catalog
type Product struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	Category           string          `json:"category"`
	ImageURL           string          `json:"image_url"`
	Price              decimal.Decimal `json:"price"`
	Sizes              []Size          `json:"sizes"`
	Addons             []Addon         `json:"addons"`
	Colors             []string        `json:"colors"`
	SpecialOffer       bool            `json:"special_offer"`
	DiscountPrice      decimal.Decimal `json:"discount_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	OfferEndsAt        *time.Time      `json:"offer_ends_at,omitempty"`
	ExpirationDate     *time.Time      `json:"expiration_date,omitempty"`
	WholesaleInfo      WholesaleInfo   `json:"wholesale_info"`
	IsArchived         bool            `json:"is_archived"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Available returns the units currently available to sell
func (p *Product) Available() int {
	return p.WholesaleInfo.Quantity
}

// HasOptions reports whether a size or addon selection applies to the product
func (p *Product) HasOptions() bool {
	return len(p.Sizes) > 0 || len(p.Addons) > 0
}

// OfferActive reports whether the special offer applies at the given time
func (p *Product) OfferActive(now time.Time) bool {
	return p.SpecialOffer && p.OfferEndsAt != nil && p.OfferEndsAt.After(now)
}

// Expired reports whether the product should be hidden from selling surfaces
func (p *Product) Expired(now time.Time) bool {
	if p.ExpirationDate != nil && !p.ExpirationDate.After(now) {
		return true
	}
	return p.SpecialOffer && p.OfferEndsAt != nil && !p.OfferEndsAt.After(now)
}

// FindSize returns the size with the given id
func (p *Product) FindSize(id string) (Size, bool) {
	for _, s := range p.Sizes {
		if s.ID == id {
			return s, true
		}
	}
	return Size{}, false
}

// FindAddon returns the addon with the given id
func (p *Product) FindAddon(id string) (Addon, bool) {
	for _, a := range p.Addons {
		if a.ID == id {
			return a, true
		}
	}
	return Addon{}, false
}

// UnitPrice computes the final unit price for a selection of options.
// A size price replaces the base price, addon deltas are added, and an active
// special offer is applied to the resulting total: a positive discount price
// overrides it, otherwise the discount percentage is taken off.
func (p *Product) UnitPrice(sizeID string, addonIDs []string, now time.Time) (decimal.Decimal, error) {
	price := p.Price
	if sizeID != "" {
		size, ok := p.FindSize(sizeID)
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownSize, sizeID)
		}
		price = size.Price
	}

	for _, id := range addonIDs {
		addon, ok := p.FindAddon(id)
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownAddon, id)
		}
		price = price.Add(addon.PriceDelta)
	}

	if p.OfferActive(now) {
		switch {
		case p.DiscountPrice.IsPositive():
			price = p.DiscountPrice
		case p.DiscountPercentage.IsPositive():
			pct := decimal.Min(p.DiscountPercentage, hundred)
			price = price.Mul(hundred.Sub(pct)).Div(hundred)
		}
	}

	return price.Round(2), nil
}
