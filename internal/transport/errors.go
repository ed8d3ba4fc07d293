package transport

import (
	"errors"
	"net/http"

	"storefront/internal/adminauth"
	"storefront/internal/cashier"
	"storefront/internal/catalog"
	"storefront/internal/domain"
	"storefront/internal/identity"
	"storefront/internal/inventory"
	"storefront/internal/middleware"
	"storefront/internal/order"
	"storefront/internal/repository"
	"storefront/internal/reservation"

	"go.uber.org/zap"
)

// respondError maps a service error to a status code and writes it. Errors
// without a mapping are logged and reported as failed action.
func respondError(w http.ResponseWriter, logger *zap.Logger, err error, action string) {
	var stock *domain.InsufficientStockError
	if errors.As(err, &stock) {
		middleware.RespondWithErrorDetails(w, http.StatusConflict, "insufficient stock", map[string]any{
			"product_id": stock.ProductID,
			"available":  stock.Available,
		})
		return
	}

	var authErr *identity.AuthError
	if errors.As(err, &authErr) {
		switch authErr.Code {
		case identity.CodeEmailInUse:
			middleware.RespondWithError(w, http.StatusConflict, "username already taken")
		case identity.CodeWeakPassword:
			middleware.RespondWithError(w, http.StatusBadRequest, "password is too weak")
		default:
			middleware.RespondWithError(w, http.StatusUnauthorized, adminauth.ErrInvalidCredentials.Error())
		}
		return
	}

	switch {
	case errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrSaleNotFound),
		errors.Is(err, repository.ErrAdminNotFound),
		errors.Is(err, reservation.ErrLineNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, reservation.ErrInFlight),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, repository.ErrProductExists),
		errors.Is(err, repository.ErrAdminAlreadyExists):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())

	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrUnknownSize),
		errors.Is(err, domain.ErrUnknownAddon),
		errors.Is(err, domain.ErrUnknownColor),
		errors.Is(err, domain.ErrInvalidOption),
		errors.Is(err, domain.ErrEmptyOrder),
		errors.Is(err, domain.ErrEmptySale),
		errors.Is(err, reservation.ErrProductUnavailable),
		errors.Is(err, cashier.ErrOptionsRequired),
		errors.Is(err, catalog.ErrInvalidProduct),
		errors.Is(err, catalog.ErrQuantityImmutable),
		errors.Is(err, order.ErrUnknownStatus):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, adminauth.ErrInvalidCredentials),
		errors.Is(err, adminauth.ErrNoSession),
		errors.Is(err, adminauth.ErrInvalidSession),
		errors.Is(err, adminauth.ErrExpired):
		middleware.RespondWithError(w, http.StatusUnauthorized, err.Error())

	case errors.Is(err, adminauth.ErrAccountLocked):
		middleware.RespondWithError(w, http.StatusLocked, err.Error())

	case errors.Is(err, adminauth.ErrMustChangePassword):
		middleware.RespondWithErrorDetails(w, http.StatusForbidden, err.Error(), map[string]any{
			"must_change_password": true,
		})

	case errors.Is(err, adminauth.ErrDeactivated):
		middleware.RespondWithError(w, http.StatusForbidden, err.Error())

	case errors.Is(err, reservation.ErrExecutorClosed):
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "shutting down")

	default:
		logger.Error("Request failed", zap.String("action", action), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

// decode reads and validates a JSON body, writing the error response itself
// when it fails
func decode(w http.ResponseWriter, r *http.Request, logger *zap.Logger, v any) bool {
	if err := middleware.DecodeAndValidate(r, v); err != nil {
		logger.Debug("Request validation failed", zap.String("path", r.URL.Path), zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return false
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
