package middleware

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"storefront/internal/adminauth"
	"storefront/internal/domain"
	"storefront/internal/kv"

	"go.uber.org/zap"
)

type contextKey string

const (
	ClientIDKey     contextKey = "client_id"
	AdminSessionKey contextKey = "admin_session"

	// ClientIDHeader identifies the browser tab or till a request belongs to
	ClientIDHeader = "X-Client-ID"

	// SessionCookie carries the admin session token when no bearer token is sent
	SessionCookie = "admin_session"
)

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ClientIDMiddleware requires a well formed client id header and stores it
// in the request context.
func ClientIDMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := r.Header.Get(ClientIDHeader)
			if !clientIDPattern.MatchString(clientID) {
				logger.Debug("Missing or malformed client id", zap.String("client_id", clientID))
				RespondWithError(w, http.StatusBadRequest, "missing or invalid "+ClientIDHeader+" header")
				return
			}

			ctx := context.WithValue(r.Context(), ClientIDKey, clientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClientID extracts the client id from request context
func GetClientID(ctx context.Context) string {
	id, _ := ctx.Value(ClientIDKey).(string)
	return id
}

// SessionVerifier checks a presented token against the admin session held in
// a client store
type SessionVerifier interface {
	Authenticate(ctx context.Context, store kv.Store, token string) (*domain.AdminSession, error)
}

// SessionToken returns the admin session token sent with r, from a bearer
// Authorization header or else the session cookie.
func SessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// AdminSessionMiddleware admits requests that present the token of a valid
// admin session held by their client. It must run after ClientIDMiddleware.
func AdminSessionMiddleware(verifier SessionVerifier, backing kv.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := GetClientID(r.Context())
			if clientID == "" {
				RespondWithError(w, http.StatusBadRequest, "missing "+ClientIDHeader+" header")
				return
			}

			session, err := verifier.Authenticate(r.Context(), kv.Namespace(backing, clientID), SessionToken(r))
			if err != nil {
				switch {
				case errors.Is(err, adminauth.ErrNoSession),
					errors.Is(err, adminauth.ErrInvalidSession),
					errors.Is(err, adminauth.ErrExpired):
					RespondWithError(w, http.StatusUnauthorized, err.Error())
				case errors.Is(err, adminauth.ErrDeactivated):
					RespondWithError(w, http.StatusForbidden, err.Error())
				default:
					logger.Error("Session verification failed", zap.Error(err))
					RespondWithError(w, http.StatusInternalServerError, "failed to verify session")
				}
				return
			}

			logger.Debug("Admin authenticated",
				zap.String("admin_id", session.AdminID.String()),
				zap.String("client_id", clientID),
			)

			ctx := context.WithValue(r.Context(), AdminSessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAdminSession extracts the verified admin session from request context
func GetAdminSession(ctx context.Context) (*domain.AdminSession, bool) {
	session, ok := ctx.Value(AdminSessionKey).(*domain.AdminSession)
	return session, ok
}
