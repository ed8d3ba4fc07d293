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

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderStatusChanged = errors.New("order status changed concurrently")
)

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	o := &domain.Order{}
	var lines, delivery []byte

	if err := row.Scan(&o.ID, &lines, &delivery, &o.Total, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return nil, fmt.Errorf("failed to decode order lines: %w", err)
	}
	if err := json.Unmarshal(delivery, &o.Delivery); err != nil {
		return nil, fmt.Errorf("failed to decode delivery info: %w", err)
	}
	return o, nil
}

// Create stores an order snapshot
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	lines, err := json.Marshal(order.Lines)
	if err != nil {
		return fmt.Errorf("failed to encode order lines: %w", err)
	}
	delivery, err := json.Marshal(order.Delivery)
	if err != nil {
		return fmt.Errorf("failed to encode delivery info: %w", err)
	}

	query := `
		INSERT INTO orders (id, lines, delivery, total, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		lines,
		delivery,
		order.Total,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

// FindByID retrieves an order by ID
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `
		SELECT id, lines, delivery, total, status, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}

	return order, nil
}

// List returns orders newest first, optionally filtered by status
func (r *orderRepository) List(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	query := `
		SELECT id, lines, delivery, total, status, created_at, updated_at
		FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

// UpdateStatus moves the order from one status to another. It fails with
// ErrOrderStatusChanged when the order is no longer in the from status.
func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`,
		id, to, at, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check order: %w", err)
	}
	if !exists {
		return ErrOrderNotFound
	}
	return ErrOrderStatusChanged
}

// Delete removes an order
func (r *orderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}

	return expectOne(result, ErrOrderNotFound)
}
