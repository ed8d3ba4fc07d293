package reservation

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"storefront/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	ErrProductUnavailable = errors.New("product not available")
	ErrLineNotFound       = errors.New("cart line not found")
)

// State holds cart lines and a local mirror of product stock. Every mutation
// updates both in lockstep and returns the Command that makes it durable.
// State is not safe for concurrent use; Ledger serializes access.
type State struct {
	lines    []domain.CartLine
	products map[string]*domain.Product
	order    []string
}

// NewState creates an empty State
func NewState() *State {
	return &State{products: map[string]*domain.Product{}}
}

// Load replaces the product mirror with a fresh catalog and drops lines whose
// product no longer exists. The dropped lines are returned.
func (s *State) Load(products []*domain.Product) []domain.CartLine {
	s.products = make(map[string]*domain.Product, len(products))
	s.order = s.order[:0]
	for _, p := range products {
		cp := *p
		s.products[p.ID] = &cp
		s.order = append(s.order, p.ID)
	}

	var removed []domain.CartLine
	kept := s.lines[:0]
	for _, l := range s.lines {
		if _, ok := s.products[l.ProductID]; ok {
			kept = append(kept, l)
		} else {
			removed = append(removed, l)
		}
	}
	s.lines = kept
	return removed
}

// SetLines installs previously persisted lines without touching stock
func (s *State) SetLines(lines []domain.CartLine) {
	s.lines = slices.Clone(lines)
}

// Add reserves quantity units of a product selection, merging into an
// existing line with the same composite identity.
func (s *State) Add(productID string, quantity int, sel domain.Selection, now time.Time) (domain.CartLine, Command, error) {
	p, ok := s.products[productID]
	if !ok || p.IsArchived {
		return domain.CartLine{}, Command{}, fmt.Errorf("%w: %s", ErrProductUnavailable, productID)
	}
	if quantity <= 0 {
		return domain.CartLine{}, Command{}, fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, quantity)
	}

	// The mirror already excludes units this cart holds, so checking the new
	// units alone is the same as checking existing+new against the stock
	// before any reservation.
	if p.Available() < quantity {
		return domain.CartLine{}, Command{}, domain.NewInsufficientStock(productID, p.Available())
	}

	line, err := domain.NewCartLine(p, quantity, sel, now)
	if err != nil {
		return domain.CartLine{}, Command{}, err
	}

	if i := s.index(line.Key); i >= 0 {
		merged, err := s.lines[i].WithQuantity(s.lines[i].Quantity + quantity)
		if err != nil {
			return domain.CartLine{}, Command{}, err
		}
		s.lines[i] = merged
		line = merged
	} else {
		s.lines = append(s.lines, line)
	}

	p.WholesaleInfo.Quantity -= quantity
	return line, deduct(productID, quantity), nil
}

// SetQuantity changes a line's quantity. Zero or less removes the line.
func (s *State) SetQuantity(key domain.LineKey, quantity int) (*domain.CartLine, Command, error) {
	if quantity <= 0 {
		cmd, err := s.Remove(key)
		return nil, cmd, err
	}

	i := s.index(key)
	if i < 0 {
		return nil, Command{}, fmt.Errorf("%w: %s", ErrLineNotFound, key)
	}
	current := s.lines[i]
	p, ok := s.products[current.ProductID]
	if !ok {
		return nil, Command{}, fmt.Errorf("%w: %s", ErrProductUnavailable, current.ProductID)
	}

	delta := quantity - current.Quantity
	if delta > 0 && p.Available() < delta {
		return nil, Command{}, domain.NewInsufficientStock(p.ID, p.Available())
	}

	updated, err := current.WithQuantity(quantity)
	if err != nil {
		return nil, Command{}, err
	}
	s.lines[i] = updated
	p.WholesaleInfo.Quantity -= delta

	switch {
	case delta > 0:
		return &updated, deduct(p.ID, delta), nil
	case delta < 0:
		return &updated, restore(p.ID, -delta), nil
	}
	return &updated, Command{}, nil
}

// Remove deletes a line and releases its full reserved quantity
func (s *State) Remove(key domain.LineKey) (Command, error) {
	i := s.index(key)
	if i < 0 {
		return Command{}, fmt.Errorf("%w: %s", ErrLineNotFound, key)
	}
	line := s.lines[i]
	s.lines = slices.Delete(s.lines, i, i+1)

	if p, ok := s.products[line.ProductID]; ok {
		p.WholesaleInfo.Quantity += line.Quantity
	}
	return restore(line.ProductID, line.Quantity), nil
}

// Clear empties the cart and releases every line in one batch
func (s *State) Clear() Command {
	cmd := Command{Kind: CommandRestore}
	for _, l := range s.lines {
		if p, ok := s.products[l.ProductID]; ok {
			p.WholesaleInfo.Quantity += l.Quantity
		}
		cmd.Updates = append(cmd.Updates, domain.QuantityUpdate{ProductID: l.ProductID, Amount: l.Quantity})
	}
	s.lines = nil
	return cmd
}

// Detach empties the cart without releasing stock. Used once lines have been
// recorded as an order or sale.
func (s *State) Detach() []domain.CartLine {
	lines := s.lines
	s.lines = nil
	return lines
}

// Line returns the line with the given key
func (s *State) Line(key domain.LineKey) (domain.CartLine, bool) {
	if i := s.index(key); i >= 0 {
		return s.lines[i], true
	}
	return domain.CartLine{}, false
}

// FindLine returns the first line for a product and size
func (s *State) FindLine(productID, sizeID string) (domain.CartLine, bool) {
	for _, l := range s.lines {
		if l.ProductID == productID && l.SizeID() == sizeID {
			return l, true
		}
	}
	return domain.CartLine{}, false
}

// Lines returns a copy of the cart lines in insertion order
func (s *State) Lines() []domain.CartLine {
	return slices.Clone(s.lines)
}

// Total sums all line totals
func (s *State) Total() decimal.Decimal {
	return domain.LinesTotal(s.lines)
}

// Product returns a copy of the mirrored product
func (s *State) Product(id string) (domain.Product, bool) {
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, false
	}
	return *p, true
}

// Products returns copies of the mirrored products in catalog order
func (s *State) Products() []domain.Product {
	out := make([]domain.Product, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.products[id])
	}
	return out
}

func (s *State) index(key domain.LineKey) int {
	return slices.IndexFunc(s.lines, func(l domain.CartLine) bool { return l.Key == key })
}
