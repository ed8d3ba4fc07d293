package transport

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/order"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StatusRequest moves an order to a new status
type StatusRequest struct {
	Status domain.OrderStatus `json:"status" validate:"required,oneof=pending confirmed shipped delivered cancelled"`
}

// OrderHandler handles order administration
type OrderHandler struct {
	orders order.OrderService
	logger *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders order.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// RegisterAdminRoutes registers order routes on an authenticated router
func (h *OrderHandler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.Patch("/{id}/status", h.UpdateStatus)
		r.Delete("/{id}", h.DeleteOrder)
	})
}

// ListOrders lists orders, optionally filtered by the status query parameter
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context(), domain.OrderStatus(r.URL.Query().Get("status")))
	if err != nil {
		respondError(w, h.logger, err, "list orders")
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

// GetOrder returns one order
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	o, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "get order")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, o)
}

// UpdateStatus advances an order
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req StatusRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		respondError(w, h.logger, err, "update order status")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, o)
}

// DeleteOrder removes an order record
func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	if err := h.orders.DeleteOrder(r.Context(), id); err != nil {
		respondError(w, h.logger, err, "delete order")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return uuid.Nil, false
	}
	return id, true
}
