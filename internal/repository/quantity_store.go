package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/inventory"
)

// QuantityStore runs adjuster transactions against the products table. Each
// read takes a row lock that is held until commit, so concurrent adjustments
// of the same product serialize.
type QuantityStore struct {
	db *sql.DB
}

// NewQuantityStore creates a new QuantityStore
func NewQuantityStore(db *sql.DB) *QuantityStore {
	return &QuantityStore{db: db}
}

// RunInTx implements inventory.Store
func (s *QuantityStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx inventory.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &quantityTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type quantityTx struct {
	tx *sql.Tx
}

func (t *quantityTx) Quantity(ctx context.Context, productID string) (int, error) {
	var quantity int
	err := t.tx.QueryRowContext(ctx,
		`SELECT quantity FROM products WHERE id = $1 FOR UPDATE`,
		productID,
	).Scan(&quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return 0, fmt.Errorf("failed to read quantity: %w", err)
	}
	return quantity, nil
}

func (t *quantityTx) SetQuantity(ctx context.Context, productID string, quantity int) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE products SET quantity = $2, updated_at = NOW() WHERE id = $1`,
		productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("failed to write quantity: %w", err)
	}
	return expectOne(result, fmt.Errorf("%w: %s", ErrProductNotFound, productID))
}
