package cashier

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/reservation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CommandExecutor applies a stock command and waits for the result
type CommandExecutor interface {
	Execute(ctx context.Context, cmd reservation.Command) error
}

// Summary aggregates sales over a period
type Summary struct {
	From    time.Time       `json:"from"`
	To      time.Time       `json:"to"`
	Count   int             `json:"count"`
	Units   int             `json:"units"`
	Revenue decimal.Decimal `json:"revenue"`
	Cost    decimal.Decimal `json:"cost"`
	Profit  decimal.Decimal `json:"profit"`
}

// SaleService manages recorded sales
type SaleService struct {
	sales    repository.SaleRepository
	executor CommandExecutor
	logger   *zap.Logger
}

// NewSaleService creates a new SaleService
func NewSaleService(sales repository.SaleRepository, executor CommandExecutor, logger *zap.Logger) *SaleService {
	return &SaleService{
		sales:    sales,
		executor: executor,
		logger:   logger.Named("sales"),
	}
}

// Get returns a sale by id
func (s *SaleService) Get(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	return s.sales.FindByID(ctx, id)
}

// List returns sales created in [from, to)
func (s *SaleService) List(ctx context.Context, from, to time.Time) ([]*domain.Sale, error) {
	return s.sales.List(ctx, from, to)
}

// DeleteSale removes the sale record and returns every item's quantity to
// stock. The record is removed first so that concurrent or repeated deletes
// restore at most once; if the restore fails the record is put back.
// Order deletion has no such compensation.
func (s *SaleService) DeleteSale(ctx context.Context, id uuid.UUID) error {
	sale, err := s.sales.Delete(ctx, id)
	if err != nil {
		return err
	}

	cmd := reservation.Command{Kind: reservation.CommandRestore, Channel: reservation.ChannelCashier}
	for _, item := range sale.Items {
		cmd.Updates = append(cmd.Updates, domain.QuantityUpdate{ProductID: item.ProductID, Amount: item.Quantity})
	}

	if err := s.executor.Execute(ctx, cmd); err != nil {
		if rerr := s.sales.Create(context.WithoutCancel(ctx), sale); rerr != nil {
			s.logger.Error("Sale deleted but stock was not restored and the record could not be put back",
				zap.String("sale_id", id.String()),
				zap.Any("items", sale.Items),
				zap.Error(rerr),
			)
		}
		return fmt.Errorf("failed to restore stock for sale %s: %w", id, err)
	}

	s.logger.Info("Sale deleted and stock restored",
		zap.String("sale_id", id.String()),
		zap.Int("items", len(sale.Items)),
	)
	return nil
}

// Summary computes revenue, cost and profit for sales in [from, to)
func (s *SaleService) Summary(ctx context.Context, from, to time.Time) (*Summary, error) {
	sales, err := s.sales.List(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}

	sum := &Summary{From: from, To: to, Revenue: decimal.Zero, Cost: decimal.Zero}
	for _, sale := range sales {
		sum.Count++
		sum.Revenue = sum.Revenue.Add(sale.Total)
		sum.Cost = sum.Cost.Add(sale.Cost())
		for _, it := range sale.Items {
			sum.Units += it.Quantity
		}
	}
	sum.Profit = sum.Revenue.Sub(sum.Cost)

	return sum, nil
}
