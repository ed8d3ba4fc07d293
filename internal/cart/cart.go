package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/kv"
	"storefront/internal/reservation"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// persistTimeout bounds a single write of the cart to the client store
const persistTimeout = 5 * time.Second

// ProductSource lists the catalog as stored
type ProductSource interface {
	List(ctx context.Context) ([]*domain.Product, error)
}

// Manager is a customer's shopping cart. Lines are persisted to the client
// store after every change; products are always reloaded from the source.
type Manager struct {
	ledger *reservation.Ledger
	store  kv.Store
	logger *zap.Logger
}

// NewManager creates a Manager and restores any lines persisted for the client
func NewManager(ctx context.Context, dispatcher reservation.Dispatcher, store kv.Store, logger *zap.Logger, opts ...reservation.Option) *Manager {
	m := &Manager{
		store:  store,
		logger: logger.Named("cart"),
	}
	opts = append(opts, reservation.WithObserver(m.persist))
	m.ledger = reservation.NewLedger(reservation.ChannelOnline, dispatcher, logger, opts...)

	var lines []domain.CartLine
	if err := kv.GetJSON(ctx, store, kv.KeyCart, &lines); err != nil && !errors.Is(err, kv.ErrNotFound) {
		m.logger.Warn("Discarding unreadable persisted cart", zap.Error(err))
	}
	m.ledger.SetLines(lines)

	return m
}

// AddToCart reserves quantity units of a product with the selected options
func (m *Manager) AddToCart(ctx context.Context, productID string, quantity int, sel domain.Selection) (domain.CartLine, error) {
	line, err := m.ledger.Add(ctx, productID, quantity, sel)
	if err != nil {
		return domain.CartLine{}, err
	}

	m.logger.Debug("Added to cart",
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
		zap.String("line", string(line.Key)),
	)
	return line, nil
}

// UpdateCartItemQuantity sets a line's quantity; zero or less removes it
func (m *Manager) UpdateCartItemQuantity(ctx context.Context, key domain.LineKey, quantity int) (*domain.CartLine, error) {
	return m.ledger.SetQuantity(ctx, key, quantity)
}

// RemoveFromCart deletes a line and releases its stock
func (m *Manager) RemoveFromCart(ctx context.Context, key domain.LineKey) error {
	return m.ledger.Remove(ctx, key)
}

// ClearCart releases every line and empties the cart
func (m *Manager) ClearCart(ctx context.Context) error {
	return m.ledger.Clear(ctx)
}

// GetCartTotal sums all line totals
func (m *Manager) GetCartTotal() decimal.Decimal {
	return m.ledger.Total()
}

// Lines returns the cart lines
func (m *Manager) Lines() []domain.CartLine {
	return m.ledger.Lines()
}

// FindLine returns the first line for a product and size
func (m *Manager) FindLine(productID, sizeID string) (domain.CartLine, bool) {
	return m.ledger.FindLine(productID, sizeID)
}

// Products returns the locally mirrored sellable products
func (m *Manager) Products() []domain.Product {
	return m.ledger.Sellable()
}

// Settle records the lines and empties the cart without releasing stock
func (m *Manager) Settle(record func([]domain.CartLine) error) error {
	return m.ledger.Settle(record)
}

// LoadProducts reloads the catalog and removes lines for deleted products
func (m *Manager) LoadProducts(ctx context.Context, source ProductSource) ([]domain.CartLine, error) {
	products, err := source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	return m.ledger.Load(products), nil
}

// Wait blocks until pending stock writes have completed
func (m *Manager) Wait() {
	m.ledger.Wait()
}

func (m *Manager) persist(lines []domain.CartLine) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := kv.SetJSON(ctx, m.store, kv.KeyCart, lines); err != nil {
		m.logger.Error("Failed to persist cart", zap.Error(err))
	}
}
