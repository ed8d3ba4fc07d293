package transport

import (
	"net/http"
	"time"

	"storefront/internal/adminauth"
	"storefront/internal/client"
	"storefront/internal/domain"
	"storefront/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordRequest replaces an admin password
type ChangePasswordRequest struct {
	Username        string `json:"username" validate:"required,max=64"`
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,nefield=CurrentPassword"`
}

// CreateAdminRequest registers a new admin
type CreateAdminRequest struct {
	Username           string `json:"username" validate:"required,alphanum,max=64"`
	Password           string `json:"password" validate:"required,min=8"`
	MustChangePassword bool   `json:"must_change_password"`
}

// ActiveRequest activates or deactivates an admin
type ActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// SessionResponse describes the caller's admin session
type SessionResponse struct {
	AdminID   uuid.UUID `json:"admin_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginResponse carries the session token the client must present on admin
// requests, as a bearer token or the session cookie
type LoginResponse struct {
	SessionResponse
	Token string `json:"token"`
}

func sessionCookie(r *http.Request, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    value,
		Path:     "/api/admin",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	}
}

func sessionResponse(s *domain.AdminSession) SessionResponse {
	return SessionResponse{
		AdminID:   s.AdminID,
		Username:  s.Username,
		Email:     s.Email,
		ExpiresAt: s.ExpiresAt,
	}
}

// AdminHandler handles admin login, logout and account management
type AdminHandler struct {
	auth    *adminauth.Service
	clients *client.Registry
	logger  *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(auth *adminauth.Service, clients *client.Registry, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		auth:    auth,
		clients: clients,
		logger:  logger,
	}
}

// RegisterRoutes registers the session routes that work without a session
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Post("/login", h.Login)
	r.Post("/password", h.ChangePassword)
}

// RegisterAdminRoutes registers routes on an authenticated router
func (h *AdminHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/logout", h.Logout)
	r.Get("/session", h.Session)
	r.Post("/admins", h.CreateAdmin)
	r.Patch("/admins/{id}/active", h.SetActive)
}

// Login opens an admin session for the calling client
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	store := h.clients.Store(middleware.GetClientID(r.Context()))
	session, err := h.auth.Login(r.Context(), store, req.Username, req.Password)
	if err != nil {
		h.logger.Debug("Login failed", zap.String("username", req.Username), zap.Error(err))
		respondError(w, h.logger, err, "login")
		return
	}
	http.SetCookie(w, sessionCookie(r, session.Token, session.ExpiresAt))
	middleware.RespondWithJSON(w, http.StatusOK, LoginResponse{
		SessionResponse: sessionResponse(session),
		Token:           session.Token,
	})
}

// Logout ends the calling client's session
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	store := h.clients.Store(middleware.GetClientID(r.Context()))
	if err := h.auth.Logout(r.Context(), store); err != nil {
		respondError(w, h.logger, err, "logout")
		return
	}
	http.SetCookie(w, sessionCookie(r, "", time.Unix(0, 0)))
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword replaces a password, clearing a pending change requirement
func (h *AdminHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	if err := h.auth.ChangePassword(r.Context(), req.Username, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(w, h.logger, err, "change password")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session returns the verified session of the caller
func (h *AdminHandler) Session(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetAdminSession(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, adminauth.ErrNoSession.Error())
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, sessionResponse(session))
}

// CreateAdmin registers another admin account
func (h *AdminHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req CreateAdminRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	admin, err := h.auth.CreateAdmin(r.Context(), req.Username, req.Password, req.MustChangePassword)
	if err != nil {
		respondError(w, h.logger, err, "create admin")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, admin)
}

// SetActive activates or deactivates an admin
func (h *AdminHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid admin id")
		return
	}
	var req ActiveRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	if session, ok := middleware.GetAdminSession(r.Context()); ok && session.AdminID == id && !*req.Active {
		middleware.RespondWithError(w, http.StatusConflict, "cannot deactivate your own account")
		return
	}

	admin, err := h.auth.SetActive(r.Context(), id, *req.Active)
	if err != nil {
		respondError(w, h.logger, err, "update admin")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, admin)
}
