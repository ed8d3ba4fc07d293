package catalog

import (
	"context"
	"time"

	"storefront/internal/repository"

	"go.uber.org/zap"
)

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock
var SystemClock Clock = systemClock{}

// ExpiryScanner archives products whose expiration date or special offer
// end has passed, hiding them from selling surfaces.
type ExpiryScanner struct {
	products repository.ProductRepository
	clock    Clock
	logger   *zap.Logger
}

// NewExpiryScanner creates a new ExpiryScanner
func NewExpiryScanner(products repository.ProductRepository, clock Clock, logger *zap.Logger) *ExpiryScanner {
	return &ExpiryScanner{
		products: products,
		clock:    clock,
		logger:   logger.Named("expiry"),
	}
}

// ScanOnce archives every expired product and returns their ids. A failure
// on one product does not stop the pass.
func (s *ExpiryScanner) ScanOnce(ctx context.Context) ([]string, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var archived []string
	for _, p := range products {
		if p.IsArchived || !p.Expired(now) {
			continue
		}
		if err := s.products.SetArchived(ctx, p.ID, true, now); err != nil {
			s.logger.Error("Failed to archive expired product",
				zap.String("product_id", p.ID),
				zap.Error(err),
			)
			continue
		}
		archived = append(archived, p.ID)
	}

	if len(archived) > 0 {
		s.logger.Info("Archived expired products", zap.Strings("product_ids", archived))
	}
	return archived, nil
}

// Run scans immediately and then every interval until ctx is done
func (s *ExpiryScanner) Run(ctx context.Context, interval time.Duration) error {
	s.logger.Info("Expiry scanner started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.ScanOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Expiry scan failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Expiry scanner stopped")
			return nil
		case <-ticker.C:
		}
	}
}
