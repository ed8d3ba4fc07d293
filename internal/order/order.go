package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrUnknownStatus = errors.New("unknown order status")

// Cart is the customer cart an order is taken from
type Cart interface {
	Settle(record func([]domain.CartLine) error) error
}

// OrderService defines the interface for order business logic
type OrderService interface {
	Checkout(ctx context.Context, cart Cart, delivery domain.DeliveryInfo) (*domain.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error
}

type orderService struct {
	orders   repository.OrderRepository
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(orders repository.OrderRepository, logger *zap.Logger) OrderService {
	return &orderService{
		orders:   orders,
		validate: validator.New(),
		logger:   logger.Named("orders"),
		now:      time.Now,
	}
}

// Checkout snapshots the cart into a pending order and empties the cart.
// The lines' stock was deducted when they were reserved, so nothing is
// released or deducted here.
func (s *orderService) Checkout(ctx context.Context, cart Cart, delivery domain.DeliveryInfo) (*domain.Order, error) {
	if err := s.validate.Struct(delivery); err != nil {
		return nil, err
	}

	var order *domain.Order
	err := cart.Settle(func(lines []domain.CartLine) error {
		var err error
		order, err = domain.NewOrder(lines, delivery, s.now())
		if err != nil {
			return err
		}
		if err := s.orders.Create(ctx, order); err != nil {
			return fmt.Errorf("failed to save order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("total", order.Total.String()),
		zap.Int("lines", len(order.Lines)),
	)
	return order, nil
}

// GetOrder retrieves an order by ID
func (s *orderService) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.orders.FindByID(ctx, id)
}

// ListOrders returns orders newest first; an empty status lists all
func (s *orderService) ListOrders(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	return s.orders.List(ctx, status)
}

// UpdateStatus moves an order forward. Stock is never touched, including on
// cancellation.
func (s *orderService) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !order.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, order.Status, status)
	}

	now := s.now()
	if err := s.orders.UpdateStatus(ctx, id, order.Status, status, now); err != nil {
		if !errors.Is(err, repository.ErrOrderStatusChanged) {
			return nil, err
		}
		current, ferr := s.orders.FindByID(ctx, id)
		if ferr != nil {
			return nil, ferr
		}
		return nil, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, current.Status, status)
	}

	s.logger.Info("Order status changed",
		zap.String("order_id", id.String()),
		zap.String("from", string(order.Status)),
		zap.String("to", string(status)),
	)

	order.Status = status
	order.UpdatedAt = now
	return order, nil
}

// DeleteOrder removes the order record only. Unlike sale deletion it does
// not return stock.
func (s *orderService) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	if err := s.orders.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Order deleted", zap.String("order_id", id.String()))
	return nil
}
