package transport

import (
	"net/http"
	"net/url"

	"storefront/internal/client"
	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/order"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AddLineRequest is the payload for adding a product selection
type AddLineRequest struct {
	ProductID string   `json:"product_id" validate:"required"`
	Quantity  int      `json:"quantity" validate:"required,gte=1,lte=999"`
	SizeID    string   `json:"size_id"`
	AddonIDs  []string `json:"addon_ids"`
	Color     string   `json:"color"`
}

func (r AddLineRequest) selection() domain.Selection {
	return domain.Selection{SizeID: r.SizeID, AddonIDs: r.AddonIDs, Color: r.Color}
}

// UpdateLineRequest sets a line quantity; zero removes the line
type UpdateLineRequest struct {
	Quantity int `json:"quantity" validate:"gte=0,lte=999"`
}

// CartResponse is the current cart of a client
type CartResponse struct {
	Lines []domain.CartLine `json:"lines"`
	Total decimal.Decimal   `json:"total"`
}

func cartResponse(lines []domain.CartLine, total decimal.Decimal) CartResponse {
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return CartResponse{Lines: lines, Total: total}
}

// resolveClient loads the caller's state from the registry
func resolveClient(w http.ResponseWriter, r *http.Request, clients *client.Registry, logger *zap.Logger) (*client.Client, bool) {
	c, err := clients.Get(r.Context(), middleware.GetClientID(r.Context()))
	if err != nil {
		respondError(w, logger, err, "load client")
		return nil, false
	}
	return c, true
}

// lineKey reads the line key path parameter
func lineKey(r *http.Request) domain.LineKey {
	raw := chi.URLParam(r, "key")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	return domain.LineKey(raw)
}

// CartHandler handles the customer cart and checkout
type CartHandler struct {
	clients *client.Registry
	orders  order.OrderService
	logger  *zap.Logger
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(clients *client.Registry, orders order.OrderService, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		clients: clients,
		orders:  orders,
		logger:  logger,
	}
}

// RegisterRoutes registers cart routes. The router must carry the client id
// middleware.
func (h *CartHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddItem)
		r.Put("/items/{key}", h.UpdateItem)
		r.Delete("/items/{key}", h.RemoveItem)
		r.Post("/checkout", h.Checkout)
	})
}

// GetCart returns the lines and total
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, ok := resolveClient(w, r, h.clients, h.logger)
	if !ok {
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, cartResponse(c.Cart.Lines(), c.Cart.GetCartTotal()))
}

// AddItem reserves stock for a product selection
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddLineRequest
	if !decode(w, r, h.logger, &req) {
		return
	}
	c, ok := resolveClient(w, r, h.clients, h.logger)
	if !ok {
		return
	}

	line, err := c.Cart.AddToCart(r.Context(), req.ProductID, req.Quantity, req.selection())
	if err != nil {
		respondError(w, h.logger, err, "add to cart")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, line)
}

// UpdateItem changes a line quantity
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateLineRequest
	if !decode(w, r, h.logger, &req) {
		return
	}
	c, ok := resolveClient(w, r, h.clients, h.logger)
	if !ok {
		return
	}

	line, err := c.Cart.UpdateCartItemQuantity(r.Context(), lineKey(r), req.Quantity)
	if err != nil {
		respondError(w, h.logger, err, "update cart")
		return
	}
	if line == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, line)
}

// RemoveItem deletes a line
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, ok := resolveClient(w, r, h.clients, h.logger)
	if !ok {
		return
	}
	if err := c.Cart.RemoveFromCart(r.Context(), lineKey(r)); err != nil {
		respondError(w, h.logger, err, "remove from cart")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCart empties the cart and releases its stock
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	c, ok := resolveClient(w, r, h.clients, h.logger)
	if !ok {
		return
	}
	if err := c.Cart.ClearCart(r.Context()); err != nil {
		respondError(w, h.logger, err, "clear cart")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout turns the cart into a pending order
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req domain.DeliveryInfo
	if !decode(w, r, h.logger, &req) {
		return
	}
	c, ok := resolveClient(w, r, h.clients, h.logger)
	if !ok {
		return
	}

	placed, err := h.orders.Checkout(r.Context(), c.Cart, req)
	if err != nil {
		respondError(w, h.logger, err, "place order")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, placed)
}
