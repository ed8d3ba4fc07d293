package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxSlugAttempts bounds the numbered suffixes tried before falling back to a
// timestamp suffix.
const maxSlugAttempts = 20

var (
	ErrInvalidProduct    = errors.New("invalid product")
	ErrQuantityImmutable = errors.New("quantity can only change through stock adjustments")
)

// Adjuster changes stored product quantities
type Adjuster interface {
	Deduct(ctx context.Context, updates []domain.QuantityUpdate) error
	Restore(ctx context.Context, updates []domain.QuantityUpdate) error
}

// ProductPatch holds the fields of a partial update. Nil fields are left
// unchanged. Quantity is accepted only so that a request carrying it can be
// rejected.
type ProductPatch struct {
	Name               *string
	Description        *string
	Category           *string
	ImageURL           *string
	Price              *decimal.Decimal
	Sizes              *[]domain.Size
	Addons             *[]domain.Addon
	Colors             *[]string
	SpecialOffer       *bool
	DiscountPrice      *decimal.Decimal
	DiscountPercentage *decimal.Decimal
	OfferEndsAt        *time.Time
	ClearOfferEndsAt   bool
	ExpirationDate     *time.Time
	ClearExpiration    bool
	WholesaleCost      *decimal.Decimal
	Supplier           *string
	IsArchived         *bool
	Quantity           *int
}

// ProductService defines the interface for catalog management
type ProductService interface {
	CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]*domain.Product, error)
	UpdateProduct(ctx context.Context, id string, patch ProductPatch) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	Restock(ctx context.Context, id string, amount int) error
	WriteOff(ctx context.Context, id string, amount int) error
}

type productService struct {
	products repository.ProductRepository
	adjuster Adjuster
	logger   *zap.Logger
	now      func() time.Time
}

// NewProductService creates a new instance of ProductService
func NewProductService(products repository.ProductRepository, adjuster Adjuster, logger *zap.Logger) ProductService {
	return &productService{
		products: products,
		adjuster: adjuster,
		logger:   logger.Named("catalog"),
		now:      time.Now,
	}
}

func validateProduct(p *domain.Product) error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	case p.WholesaleInfo.Quantity < 0:
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidProduct)
	case p.DiscountPercentage.IsNegative() || p.DiscountPercentage.GreaterThan(decimal.NewFromInt(100)):
		return fmt.Errorf("%w: discount percentage must be between 0 and 100", ErrInvalidProduct)
	}
	for _, s := range p.Sizes {
		if s.ID == "" || !domain.ValidOptionID(s.ID) || s.Price.IsNegative() {
			return fmt.Errorf("%w: size %q", ErrInvalidProduct, s.Label)
		}
	}
	for _, a := range p.Addons {
		if a.ID == "" || !domain.ValidOptionID(a.ID) {
			return fmt.Errorf("%w: addon %q has no usable id", ErrInvalidProduct, a.Label)
		}
	}
	for _, c := range p.Colors {
		if c == "" || !domain.ValidOptionID(c) {
			return fmt.Errorf("%w: color %q", ErrInvalidProduct, c)
		}
	}
	return nil
}

// CreateProduct assigns a unique slug id and stores the product. The id is
// never changed afterwards.
func (s *productService) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	now := s.now()
	id, err := s.uniqueID(ctx, Slugify(product.Name), now)
	if err != nil {
		return nil, err
	}

	p := *product
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.products.Create(ctx, &p); err != nil {
		return nil, err
	}

	s.logger.Info("Product created",
		zap.String("product_id", p.ID),
		zap.Int("quantity", p.WholesaleInfo.Quantity),
	)
	return &p, nil
}

func (s *productService) uniqueID(ctx context.Context, slug string, now time.Time) (string, error) {
	candidate := slug
	for i := 2; i <= maxSlugAttempts+1; i++ {
		exists, err := s.products.Exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = slug + "-" + strconv.Itoa(i)
	}
	return slug + "-" + strconv.FormatInt(now.UnixMilli(), 10), nil
}

// GetProduct retrieves a product by ID
func (s *productService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.products.FindByID(ctx, id)
}

// ListProducts returns all products, newest first
func (s *productService) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	return s.products.List(ctx)
}

// UpdateProduct merges patch into the stored product
func (s *productService) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (*domain.Product, error) {
	if patch.Quantity != nil {
		return nil, ErrQuantityImmutable
	}

	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	apply(p, patch)
	if err := validateProduct(p); err != nil {
		return nil, err
	}

	p.UpdatedAt = s.now()
	if err := s.products.Update(ctx, p); err != nil {
		return nil, err
	}

	return p, nil
}

func apply(p *domain.Product, patch ProductPatch) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setDec := func(dst *decimal.Decimal, src *decimal.Decimal) {
		if src != nil {
			*dst = *src
		}
	}

	set(&p.Name, patch.Name)
	set(&p.Description, patch.Description)
	set(&p.Category, patch.Category)
	set(&p.ImageURL, patch.ImageURL)
	set(&p.WholesaleInfo.Supplier, patch.Supplier)
	setDec(&p.Price, patch.Price)
	setDec(&p.DiscountPrice, patch.DiscountPrice)
	setDec(&p.DiscountPercentage, patch.DiscountPercentage)
	setDec(&p.WholesaleInfo.Cost, patch.WholesaleCost)

	if patch.Sizes != nil {
		p.Sizes = *patch.Sizes
	}
	if patch.Addons != nil {
		p.Addons = *patch.Addons
	}
	if patch.Colors != nil {
		p.Colors = *patch.Colors
	}
	if patch.SpecialOffer != nil {
		p.SpecialOffer = *patch.SpecialOffer
	}
	if patch.IsArchived != nil {
		p.IsArchived = *patch.IsArchived
	}

	switch {
	case patch.ClearOfferEndsAt:
		p.OfferEndsAt = nil
	case patch.OfferEndsAt != nil:
		t := *patch.OfferEndsAt
		p.OfferEndsAt = &t
	}
	switch {
	case patch.ClearExpiration:
		p.ExpirationDate = nil
	case patch.ExpirationDate != nil:
		t := *patch.ExpirationDate
		p.ExpirationDate = &t
	}
}

// DeleteProduct removes a product. Carts holding it drop their lines on the
// next reload.
func (s *productService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Product deleted", zap.String("product_id", id))
	return nil
}

// Restock adds received units to stock
func (s *productService) Restock(ctx context.Context, id string, amount int) error {
	u, err := domain.NewQuantityUpdate(id, amount)
	if err != nil {
		return err
	}
	return s.adjuster.Restore(ctx, []domain.QuantityUpdate{u})
}

// WriteOff removes damaged or lost units from stock
func (s *productService) WriteOff(ctx context.Context, id string, amount int) error {
	u, err := domain.NewQuantityUpdate(id, amount)
	if err != nil {
		return err
	}
	return s.adjuster.Deduct(ctx, []domain.QuantityUpdate{u})
}
