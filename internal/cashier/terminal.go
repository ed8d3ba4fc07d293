package cashier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/kv"
	"storefront/internal/repository"
	"storefront/internal/reservation"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrOptionsRequired = errors.New("product options must be selected")
	ErrSaleBackedUp    = errors.New("sale saved locally, store write failed")
)

// ProductSource lists the catalog as stored
type ProductSource interface {
	List(ctx context.Context) ([]*domain.Product, error)
}

// Terminal is an in-store point of sale with its own cart
type Terminal struct {
	ledger *reservation.Ledger
	sales  repository.SaleRepository
	store  kv.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewTerminal creates a Terminal with an empty cart
func NewTerminal(dispatcher reservation.Dispatcher, sales repository.SaleRepository, store kv.Store, logger *zap.Logger, opts ...reservation.Option) *Terminal {
	t := &Terminal{
		sales:  sales,
		store:  store,
		logger: logger.Named("cashier"),
		now:    time.Now,
	}
	t.ledger = reservation.NewLedger(reservation.ChannelCashier, dispatcher, logger, opts...)
	return t
}

// AddProduct adds one unit of a product that has no options
func (t *Terminal) AddProduct(ctx context.Context, productID string) (domain.CartLine, error) {
	if p, ok := t.ledger.Product(productID); ok && p.HasOptions() {
		return domain.CartLine{}, fmt.Errorf("%w: %s", ErrOptionsRequired, productID)
	}
	return t.ledger.Add(ctx, productID, 1, domain.Selection{})
}

// AddWithOptions adds quantity units after the options were chosen. A size
// must be picked when the product has sizes.
func (t *Terminal) AddWithOptions(ctx context.Context, productID string, quantity int, sel domain.Selection) (domain.CartLine, error) {
	if p, ok := t.ledger.Product(productID); ok && len(p.Sizes) > 0 && sel.SizeID == "" {
		return domain.CartLine{}, fmt.Errorf("%w: %s requires a size", ErrOptionsRequired, productID)
	}
	return t.ledger.Add(ctx, productID, quantity, sel)
}

// UpdateQuantity sets a line's quantity; zero or less removes it
func (t *Terminal) UpdateQuantity(ctx context.Context, key domain.LineKey, quantity int) (*domain.CartLine, error) {
	return t.ledger.SetQuantity(ctx, key, quantity)
}

// Remove deletes a line and releases its stock
func (t *Terminal) Remove(ctx context.Context, key domain.LineKey) error {
	return t.ledger.Remove(ctx, key)
}

// ClearCart releases every line and empties the cart
func (t *Terminal) ClearCart(ctx context.Context) error {
	return t.ledger.Clear(ctx)
}

// Lines returns the cart lines
func (t *Terminal) Lines() []domain.CartLine {
	return t.ledger.Lines()
}

// Total sums all line totals
func (t *Terminal) Total() decimal.Decimal {
	return t.ledger.Total()
}

// Products returns sellable products from the local mirror
func (t *Terminal) Products() []domain.Product {
	return t.ledger.Sellable()
}

// LoadProducts reloads the catalog and removes lines for deleted products
func (t *Terminal) LoadProducts(ctx context.Context, source ProductSource) ([]domain.CartLine, error) {
	products, err := source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	return t.ledger.Load(products), nil
}

// Wait blocks until pending stock writes have completed
func (t *Terminal) Wait() {
	t.ledger.Wait()
}

// CompleteSale records the cart as a sale. Stock was deducted as lines were
// added, so nothing is adjusted here. If the store write fails the sale is
// kept in the client backup and returned together with ErrSaleBackedUp.
func (t *Terminal) CompleteSale(ctx context.Context) (*domain.Sale, error) {
	var (
		sale   *domain.Sale
		backed error
	)

	err := t.ledger.Settle(func(lines []domain.CartLine) error {
		var err error
		sale, err = domain.NewSale(lines, t.now())
		if err != nil {
			return err
		}

		if err := t.sales.Create(ctx, sale); err != nil {
			t.logger.Error("Failed to save sale, writing local backup",
				zap.String("sale_id", sale.ID.String()),
				zap.Error(err),
			)
			if berr := t.backup(ctx, sale); berr != nil {
				return fmt.Errorf("failed to save sale: %w", errors.Join(err, berr))
			}
			backed = fmt.Errorf("%w: %v", ErrSaleBackedUp, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.logger.Info("Sale completed",
		zap.String("sale_id", sale.ID.String()),
		zap.String("total", sale.Total.String()),
		zap.Int("items", len(sale.Items)),
	)
	return sale, backed
}

// Backups returns sales saved locally after a failed store write
func (t *Terminal) Backups(ctx context.Context) ([]*domain.Sale, error) {
	var sales []*domain.Sale
	if err := kv.GetJSON(ctx, t.store, kv.KeyCashierSalesBackup, &sales); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return nil, err
	}
	return sales, nil
}

// SyncBackups retries saving locally backed up sales and keeps the ones that
// still fail.
func (t *Terminal) SyncBackups(ctx context.Context) (int, error) {
	backups, err := t.Backups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) == 0 {
		return 0, nil
	}

	var remaining []*domain.Sale
	for _, sale := range backups {
		if err := t.sales.Create(ctx, sale); err != nil {
			t.logger.Warn("Backed up sale still cannot be saved",
				zap.String("sale_id", sale.ID.String()),
				zap.Error(err),
			)
			remaining = append(remaining, sale)
		}
	}

	if len(remaining) == 0 {
		err = t.store.Remove(ctx, kv.KeyCashierSalesBackup)
	} else {
		err = kv.SetJSON(ctx, t.store, kv.KeyCashierSalesBackup, remaining)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update sale backup: %w", err)
	}

	return len(backups) - len(remaining), nil
}

func (t *Terminal) backup(ctx context.Context, sale *domain.Sale) error {
	sales, err := t.Backups(ctx)
	if err != nil {
		return err
	}
	return kv.SetJSON(ctx, t.store, kv.KeyCashierSalesBackup, append(sales, sale))
}
