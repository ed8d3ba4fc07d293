package transport

import (
	"context"
	"net/http"
	"time"

	"storefront/internal/catalog"
	"storefront/internal/domain"
	"storefront/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductRequest is the payload for creating a product
type ProductRequest struct {
	Name               string          `json:"name" validate:"required,max=200"`
	Description        string          `json:"description"`
	Category           string          `json:"category"`
	ImageURL           string          `json:"image_url" validate:"omitempty,url"`
	Price              decimal.Decimal `json:"price"`
	Sizes              []domain.Size   `json:"sizes" validate:"dive"`
	Addons             []domain.Addon  `json:"addons" validate:"dive"`
	Colors             []string        `json:"colors"`
	SpecialOffer       bool            `json:"special_offer"`
	DiscountPrice      decimal.Decimal `json:"discount_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	OfferEndsAt        *time.Time      `json:"offer_ends_at"`
	ExpirationDate     *time.Time      `json:"expiration_date"`
	Quantity           int             `json:"quantity" validate:"gte=0"`
	Cost               decimal.Decimal `json:"cost"`
	Supplier           string          `json:"supplier"`
}

func (r ProductRequest) product() *domain.Product {
	return &domain.Product{
		Name:               r.Name,
		Description:        r.Description,
		Category:           r.Category,
		ImageURL:           r.ImageURL,
		Price:              r.Price,
		Sizes:              r.Sizes,
		Addons:             r.Addons,
		Colors:             r.Colors,
		SpecialOffer:       r.SpecialOffer,
		DiscountPrice:      r.DiscountPrice,
		DiscountPercentage: r.DiscountPercentage,
		OfferEndsAt:        r.OfferEndsAt,
		ExpirationDate:     r.ExpirationDate,
		WholesaleInfo: domain.WholesaleInfo{
			Quantity: r.Quantity,
			Cost:     r.Cost,
			Supplier: r.Supplier,
		},
	}
}

// ProductUpdateRequest is a partial product update. Absent fields are left
// unchanged; quantity is rejected.
type ProductUpdateRequest struct {
	Name               *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Description        *string          `json:"description"`
	Category           *string          `json:"category"`
	ImageURL           *string          `json:"image_url" validate:"omitempty,url"`
	Price              *decimal.Decimal `json:"price"`
	Sizes              *[]domain.Size   `json:"sizes"`
	Addons             *[]domain.Addon  `json:"addons"`
	Colors             *[]string        `json:"colors"`
	SpecialOffer       *bool            `json:"special_offer"`
	DiscountPrice      *decimal.Decimal `json:"discount_price"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage"`
	OfferEndsAt        *time.Time       `json:"offer_ends_at"`
	ClearOfferEndsAt   bool             `json:"clear_offer_ends_at"`
	ExpirationDate     *time.Time       `json:"expiration_date"`
	ClearExpiration    bool             `json:"clear_expiration_date"`
	Cost               *decimal.Decimal `json:"cost"`
	Supplier           *string          `json:"supplier"`
	IsArchived         *bool            `json:"is_archived"`
	Quantity           *int             `json:"quantity"`
}

func (r ProductUpdateRequest) patch() catalog.ProductPatch {
	return catalog.ProductPatch{
		Name:               r.Name,
		Description:        r.Description,
		Category:           r.Category,
		ImageURL:           r.ImageURL,
		Price:              r.Price,
		Sizes:              r.Sizes,
		Addons:             r.Addons,
		Colors:             r.Colors,
		SpecialOffer:       r.SpecialOffer,
		DiscountPrice:      r.DiscountPrice,
		DiscountPercentage: r.DiscountPercentage,
		OfferEndsAt:        r.OfferEndsAt,
		ClearOfferEndsAt:   r.ClearOfferEndsAt,
		ExpirationDate:     r.ExpirationDate,
		ClearExpiration:    r.ClearExpiration,
		WholesaleCost:      r.Cost,
		Supplier:           r.Supplier,
		IsArchived:         r.IsArchived,
		Quantity:           r.Quantity,
	}
}

// StockRequest is the payload for restock and write-off
type StockRequest struct {
	Amount int `json:"amount" validate:"required,gte=1"`
}

// ProductHandler handles catalog requests
type ProductHandler struct {
	products catalog.ProductService
	logger   *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(products catalog.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		logger:   logger,
	}
}

// RegisterRoutes registers the public catalog routes
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.ListPublic)
		r.Get("/{id}", h.GetProduct)
	})
}

// RegisterAdminRoutes registers catalog management routes on an
// authenticated router
func (h *ProductHandler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListAll)
		r.Post("/", h.CreateProduct)
		r.Patch("/{id}", h.UpdateProduct)
		r.Delete("/{id}", h.DeleteProduct)
		r.Post("/{id}/restock", h.Restock)
		r.Post("/{id}/write-off", h.WriteOff)
	})
}

// ListPublic lists products that are not archived
func (h *ProductHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListProducts(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "list products")
		return
	}

	visible := make([]*domain.Product, 0, len(products))
	for _, p := range products {
		if !p.IsArchived {
			visible = append(visible, p)
		}
	}
	middleware.RespondWithJSON(w, http.StatusOK, visible)
}

// ListAll lists every product including archived ones
func (h *ProductHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListProducts(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "list products")
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, products)
}

// GetProduct returns one product
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.logger, err, "get product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// CreateProduct handles product creation
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	product, err := h.products.CreateProduct(r.Context(), req.product())
	if err != nil {
		respondError(w, h.logger, err, "create product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

// UpdateProduct applies a partial update
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductUpdateRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	product, err := h.products.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req.patch())
	if err != nil {
		respondError(w, h.logger, err, "update product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// DeleteProduct removes a product
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, h.logger, err, "delete product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Restock adds units to stock
func (h *ProductHandler) Restock(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, "restock product", h.products.Restock)
}

// WriteOff removes units from stock
func (h *ProductHandler) WriteOff(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, "write off stock", h.products.WriteOff)
}

func (h *ProductHandler) adjust(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, string, int) error) {
	var req StockRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	if err := fn(r.Context(), id, req.Amount); err != nil {
		respondError(w, h.logger, err, action)
		return
	}

	product, err := h.products.GetProduct(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "get product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}
