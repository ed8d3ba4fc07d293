package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/inventory"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrProductNotFound is shared with the quantity store so that adjuster
	// transactions and catalog reads report missing products the same way.
	ErrProductNotFound = inventory.ErrProductNotFound
	ErrProductExists   = errors.New("product with this id already exists")
)

const uniqueViolation = "23505"

// ProductRepository defines the interface for product data access. Quantity
// is written only on Create; later changes go through the quantity store.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]*domain.Product, error)
	SetArchived(ctx context.Context, id string, archived bool, at time.Time) error
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, name, description, category, image_url, price, sizes, addons, colors,
	special_offer, discount_price, discount_percentage, offer_ends_at, expiration_date,
	quantity, wholesale_cost, supplier, is_archived, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	p := &domain.Product{}
	var sizes, addons, colors []byte

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Category,
		&p.ImageURL,
		&p.Price,
		&sizes,
		&addons,
		&colors,
		&p.SpecialOffer,
		&p.DiscountPrice,
		&p.DiscountPercentage,
		&p.OfferEndsAt,
		&p.ExpirationDate,
		&p.WholesaleInfo.Quantity,
		&p.WholesaleInfo.Cost,
		&p.WholesaleInfo.Supplier,
		&p.IsArchived,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(sizes, &p.Sizes); err != nil {
		return nil, fmt.Errorf("failed to decode sizes: %w", err)
	}
	if err := json.Unmarshal(addons, &p.Addons); err != nil {
		return nil, fmt.Errorf("failed to decode addons: %w", err)
	}
	if err := json.Unmarshal(colors, &p.Colors); err != nil {
		return nil, fmt.Errorf("failed to decode colors: %w", err)
	}

	return p, nil
}

// options encodes the JSONB option columns. nil slices are stored as [].
func options(p *domain.Product) (sizes, addons, colors []byte, err error) {
	enc := func(v any, empty bool) ([]byte, error) {
		if empty {
			return []byte("[]"), nil
		}
		return json.Marshal(v)
	}

	if sizes, err = enc(p.Sizes, len(p.Sizes) == 0); err != nil {
		return nil, nil, nil, err
	}
	if addons, err = enc(p.Addons, len(p.Addons) == 0); err != nil {
		return nil, nil, nil, err
	}
	if colors, err = enc(p.Colors, len(p.Colors) == 0); err != nil {
		return nil, nil, nil, err
	}
	return sizes, addons, colors, nil
}

// Create inserts a new product into the database using parameterized queries
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	sizes, addons, colors, err := options(product)
	if err != nil {
		return fmt.Errorf("failed to encode product options: %w", err)
	}

	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Category,
		product.ImageURL,
		product.Price,
		sizes,
		addons,
		colors,
		product.SpecialOffer,
		product.DiscountPrice,
		product.DiscountPercentage,
		product.OfferEndsAt,
		product.ExpirationDate,
		product.WholesaleInfo.Quantity,
		product.WholesaleInfo.Cost,
		product.WholesaleInfo.Supplier,
		product.IsArchived,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrProductExists
		}
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// Update rewrites every product field except id, quantity and created_at
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	sizes, addons, colors, err := options(product)
	if err != nil {
		return fmt.Errorf("failed to encode product options: %w", err)
	}

	query := `
		UPDATE products
		SET name = $2, description = $3, category = $4, image_url = $5, price = $6,
		    sizes = $7, addons = $8, colors = $9, special_offer = $10, discount_price = $11,
		    discount_percentage = $12, offer_ends_at = $13, expiration_date = $14,
		    wholesale_cost = $15, supplier = $16, is_archived = $17, updated_at = $18
		WHERE id = $1
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Category,
		product.ImageURL,
		product.Price,
		sizes,
		addons,
		colors,
		product.SpecialOffer,
		product.DiscountPrice,
		product.DiscountPercentage,
		product.OfferEndsAt,
		product.ExpirationDate,
		product.WholesaleInfo.Cost,
		product.WholesaleInfo.Supplier,
		product.IsArchived,
		product.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	return expectOne(result, ErrProductNotFound)
}

// Delete removes a product from the database using parameterized queries
func (r *productRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	return expectOne(result, ErrProductNotFound)
}

// FindByID retrieves a product by ID using parameterized queries
func (r *productRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// Exists reports whether a product id is taken
func (r *productRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check product id: %w", err)
	}
	return exists, nil
}

// List returns every product, newest first
func (r *productRepository) List(ctx context.Context) ([]*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// SetArchived flips the archive flag without touching any other field
func (r *productRepository) SetArchived(ctx context.Context, id string, archived bool, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE products SET is_archived = $2, updated_at = $3 WHERE id = $1`,
		id, archived, at,
	)
	if err != nil {
		return fmt.Errorf("failed to archive product: %w", err)
	}

	return expectOne(result, ErrProductNotFound)
}

func expectOne(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return notFound
	}

	return nil
}
