package inventory

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"storefront/internal/domain"

	"go.uber.org/zap"
)

var ErrProductNotFound = errors.New("product not found")

// Tx is the scope of one quantity transaction. Reads lock the product until
// the transaction ends.
type Tx interface {
	Quantity(ctx context.Context, productID string) (int, error)
	SetQuantity(ctx context.Context, productID string, quantity int) error
}

// Store runs fn atomically: all writes made through tx commit together, or
// none do if fn returns an error.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Adjuster is the single entry point for changing product stock
type Adjuster struct {
	store  Store
	logger *zap.Logger
}

// NewAdjuster creates a new Adjuster
func NewAdjuster(store Store, logger *zap.Logger) *Adjuster {
	return &Adjuster{
		store:  store,
		logger: logger.Named("adjuster"),
	}
}

// Deduct subtracts each amount from its product in one transaction. A deduction
// larger than the stored quantity is clamped at zero and logged; it is not an
// error because the caller has already committed the reservation locally.
func (a *Adjuster) Deduct(ctx context.Context, updates []domain.QuantityUpdate) error {
	return a.apply(ctx, updates, func(productID string, current, amount int) int {
		if current < amount {
			a.logger.Warn("Deduction exceeds available stock, clamping at zero",
				zap.String("product_id", productID),
				zap.Int("current", current),
				zap.Int("requested", amount),
			)
			return 0
		}
		return current - amount
	})
}

// Restore adds each amount back to its product in one transaction
func (a *Adjuster) Restore(ctx context.Context, updates []domain.QuantityUpdate) error {
	return a.apply(ctx, updates, func(_ string, current, amount int) int {
		return current + amount
	})
}

func (a *Adjuster) apply(ctx context.Context, updates []domain.QuantityUpdate, next func(productID string, current, amount int) int) error {
	amounts, ids, err := merge(updates)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	err = a.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		current := make(map[string]int, len(ids))
		for _, id := range ids {
			qty, err := tx.Quantity(ctx, id)
			if err != nil {
				return err
			}
			current[id] = qty
		}

		for _, id := range ids {
			if err := tx.SetQuantity(ctx, id, next(id, current[id], amounts[id])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to adjust quantities: %w", err)
	}

	return nil
}

// merge sums amounts per product and returns the product ids in sorted order so
// concurrent batches always lock rows in the same sequence.
func merge(updates []domain.QuantityUpdate) (map[string]int, []string, error) {
	amounts := make(map[string]int, len(updates))
	for _, u := range updates {
		if u.ProductID == "" || u.Amount <= 0 {
			return nil, nil, fmt.Errorf("%w: %q amount %d", domain.ErrInvalidQuantity, u.ProductID, u.Amount)
		}
		amounts[u.ProductID] += u.Amount
	}

	ids := make([]string, 0, len(amounts))
	for id := range amounts {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return amounts, ids, nil
}
