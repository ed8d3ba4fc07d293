package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var ErrSaleNotFound = errors.New("sale not found")

// SaleRepository defines the interface for cashier sale data access
type SaleRepository interface {
	Create(ctx context.Context, sale *domain.Sale) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Sale, error)
	List(ctx context.Context, from, to time.Time) ([]*domain.Sale, error)
	Delete(ctx context.Context, id uuid.UUID) (*domain.Sale, error)
}

type saleRepository struct {
	db *sql.DB
}

// NewSaleRepository creates a new instance of SaleRepository
func NewSaleRepository(db *sql.DB) SaleRepository {
	return &saleRepository{db: db}
}

// Create stores a sale. Creating the same sale twice is a no-op, which lets
// locally backed up sales be pushed again safely.
func (r *saleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return fmt.Errorf("failed to encode sale items: %w", err)
	}

	query := `
		INSERT INTO sales (id, items, total, cost, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = r.db.ExecContext(ctx, query, sale.ID, items, sale.Total, sale.Cost(), sale.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sale: %w", err)
	}

	return nil
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	s := &domain.Sale{}
	var items []byte

	if err := row.Scan(&s.ID, &items, &s.Total, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &s.Items); err != nil {
		return nil, fmt.Errorf("failed to decode sale items: %w", err)
	}
	return s, nil
}

// FindByID retrieves a sale by ID
func (r *saleRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	sale, err := scanSale(r.db.QueryRowContext(ctx,
		`SELECT id, items, total, created_at FROM sales WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("failed to find sale by ID: %w", err)
	}

	return sale, nil
}

// List returns sales created in [from, to), newest first
func (r *saleRepository) List(ctx context.Context, from, to time.Time) ([]*domain.Sale, error) {
	query := `
		SELECT id, items, total, created_at
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	sales := []*domain.Sale{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, sale)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sales: %w", err)
	}

	return sales, nil
}

// Delete removes a sale record and returns it. Only one of several
// concurrent callers gets the sale back; the others get ErrSaleNotFound.
func (r *saleRepository) Delete(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	sale, err := scanSale(r.db.QueryRowContext(ctx,
		`DELETE FROM sales WHERE id = $1 RETURNING id, items, total, created_at`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("failed to delete sale: %w", err)
	}

	return sale, nil
}
