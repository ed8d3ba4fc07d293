package transport

import (
	"errors"
	"net/http"
	"time"

	"storefront/internal/cashier"
	"storefront/internal/client"
	"storefront/internal/domain"
	"storefront/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CashierAddRequest adds a product to the till. Without options one unit of
// a product that has none is added.
type CashierAddRequest struct {
	ProductID string   `json:"product_id" validate:"required"`
	Quantity  int      `json:"quantity" validate:"omitempty,gte=1,lte=999"`
	SizeID    string   `json:"size_id"`
	AddonIDs  []string `json:"addon_ids"`
	Color     string   `json:"color"`
}

func (r CashierAddRequest) withOptions() bool {
	return r.Quantity > 0 || r.SizeID != "" || len(r.AddonIDs) > 0 || r.Color != ""
}

// TillResponse is the cashier cart with the products that can be sold
type TillResponse struct {
	CartResponse
	Products []domain.Product `json:"products"`
}

// SaleResponse is a completed sale. Warning is set when the sale was only
// saved to the client backup.
type SaleResponse struct {
	Sale    *domain.Sale `json:"sale"`
	Warning string       `json:"warning,omitempty"`
}

// CashierHandler handles the point of sale and sale records
type CashierHandler struct {
	clients *client.Registry
	sales   *cashier.SaleService
	logger  *zap.Logger
}

// NewCashierHandler creates a new CashierHandler
func NewCashierHandler(clients *client.Registry, sales *cashier.SaleService, logger *zap.Logger) *CashierHandler {
	return &CashierHandler{
		clients: clients,
		sales:   sales,
		logger:  logger,
	}
}

// RegisterAdminRoutes registers cashier and sales routes on an
// authenticated router
func (h *CashierHandler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/cashier", func(r chi.Router) {
		r.Get("/", h.GetTill)
		r.Delete("/", h.ClearTill)
		r.Post("/items", h.AddItem)
		r.Put("/items/{key}", h.UpdateItem)
		r.Delete("/items/{key}", h.RemoveItem)
		r.Post("/complete", h.CompleteSale)
		r.Get("/backups", h.ListBackups)
		r.Post("/backups/sync", h.SyncBackups)
	})

	r.Route("/sales", func(r chi.Router) {
		r.Get("/", h.ListSales)
		r.Get("/summary", h.Summary)
		r.Get("/{id}", h.GetSale)
		r.Delete("/{id}", h.DeleteSale)
	})
}

// GetTill returns the till lines, total and sellable products
func (h *CashierHandler) GetTill(w http.ResponseWriter, r *http.Request) {
	c, ok := resolveClient(w, r, h.clients, h.logger)
	if !ok {
		return
	}

	products := c.Till.Products()
	if products == nil {
		products = []domain.Product{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, TillResponse{
		CartResponse: cartResponse(c.Till.Lines(), c.Till.Total()),
		Products:     products,
	})
}

// AddItem adds a product to the till
func (h *CashierHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req CashierAddRequest
	if !decode(w, r, h.logger, &req) {
		return
	}
	c, ok := resolveClient(w, r, h.clients, h.logger)
	if !ok {
		return
	}

	var (
		line domain.CartLine
		err  error
	)
	if req.withOptions() {
		qty := req.Quantity
		if qty == 0 {
			qty = 1
		}
		sel := domain.Selection{SizeID: req.SizeID, AddonIDs: req.AddonIDs, Color: req.Color}
		line, err = c.Till.AddWithOptions(r.Context(), req.ProductID, qty, sel)
	} else {
		line, err = c.Till.AddProduct(r.Context(), req.ProductID)
	}
	if err != nil {
		respondError(w, h.logger, err, "add to till")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, line)
}

// UpdateItem changes a till line quantity
func (h *CashierHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateLineRequest
	if !decode(w, r, h.logger, &req) {
		return
	}
	c, ok := resolveClient(w, r, h.clients, h.logger)
	if !ok {
		return
	}

	line, err := c.Till.UpdateQuantity(r.Context(), lineKey(r), req.Quantity)
	if err != nil {
		respondError(w, h.logger, err, "update till")
		return
	}
	if line == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, line)
}

// RemoveItem deletes a till line
func (h *CashierHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, ok := resolveClient(w, r, h.clients, h.logger)
	if !ok {
		return
	}
	if err := c.Till.Remove(r.Context(), lineKey(r)); err != nil {
		respondError(w, h.logger, err, "remove from till")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearTill empties the till and releases its stock
func (h *CashierHandler) ClearTill(w http.ResponseWriter, r *http.Request) {
	c, ok := resolveClient(w, r, h.clients, h.logger)
	if !ok {
		return
	}
	if err := c.Till.ClearCart(r.Context()); err != nil {
		respondError(w, h.logger, err, "clear till")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteSale records the till as a sale
func (h *CashierHandler) CompleteSale(w http.ResponseWriter, r *http.Request) {
	c, ok := resolveClient(w, r, h.clients, h.logger)
	if !ok {
		return
	}

	sale, err := c.Till.CompleteSale(r.Context())
	switch {
	case err == nil:
		middleware.RespondWithJSON(w, http.StatusCreated, SaleResponse{Sale: sale})
	case errors.Is(err, cashier.ErrSaleBackedUp) && sale != nil:
		middleware.RespondWithJSON(w, http.StatusAccepted, SaleResponse{Sale: sale, Warning: cashier.ErrSaleBackedUp.Error()})
	default:
		respondError(w, h.logger, err, "complete sale")
	}
}

// ListBackups returns sales waiting to be synced
func (h *CashierHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	c, ok := resolveClient(w, r, h.clients, h.logger)
	if !ok {
		return
	}

	backups, err := c.Till.Backups(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "read sale backups")
		return
	}
	if backups == nil {
		backups = []*domain.Sale{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, backups)
}

// SyncBackups retries saving backed up sales
func (h *CashierHandler) SyncBackups(w http.ResponseWriter, r *http.Request) {
	c, ok := resolveClient(w, r, h.clients, h.logger)
	if !ok {
		return
	}

	synced, err := c.Till.SyncBackups(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "sync sale backups")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]int{"synced": synced})
}

// period reads the from and to query parameters. Missing bounds default to
// the last 30 days.
func period(r *http.Request) (time.Time, time.Time, error) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = t
	}
	return from, to, nil
}

// ListSales lists sales in a period
func (h *CashierHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	from, to, err := period(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "from and to must be RFC 3339 timestamps")
		return
	}

	sales, err := h.sales.List(r.Context(), from, to)
	if err != nil {
		respondError(w, h.logger, err, "list sales")
		return
	}
	if sales == nil {
		sales = []*domain.Sale{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, sales)
}

// Summary reports revenue, cost and profit for a period
func (h *CashierHandler) Summary(w http.ResponseWriter, r *http.Request) {
	from, to, err := period(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "from and to must be RFC 3339 timestamps")
		return
	}

	summary, err := h.sales.Summary(r.Context(), from, to)
	if err != nil {
		respondError(w, h.logger, err, "summarize sales")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, summary)
}

// GetSale returns one sale
func (h *CashierHandler) GetSale(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid sale id")
		return
	}

	sale, err := h.sales.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "get sale")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, sale)
}

// DeleteSale removes a sale and returns its units to stock
func (h *CashierHandler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid sale id")
		return
	}

	if err := h.sales.DeleteSale(r.Context(), id); err != nil {
		respondError(w, h.logger, err, "delete sale")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
