package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/adminauth"
	"storefront/internal/domain"
	"storefront/internal/kv"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// tokenVerifier accepts a presented token that matches the one in the store
type tokenVerifier struct {
	token string
	err   error
}

func (v *tokenVerifier) Authenticate(ctx context.Context, store kv.Store, presented string) (*domain.AdminSession, error) {
	if v.err != nil {
		return nil, v.err
	}
	if presented == "" {
		return nil, adminauth.ErrNoSession
	}
	token, err := store.Get(ctx, kv.KeyAdminSessionToken)
	if errors.Is(err, kv.ErrNotFound) || token != presented || token != v.token {
		return nil, adminauth.ErrInvalidSession
	}
	return &domain.AdminSession{Token: token, AdminID: uuid.New(), Username: "owner", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func guarded(verifier SessionVerifier, backing kv.Store) http.Handler {
	logger := zap.NewNop()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := GetAdminSession(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write([]byte(session.Username))
	})
	return ClientIDMiddleware(logger)(AdminSessionMiddleware(verifier, backing, logger)(inner))
}

func adminRequest(clientID, token string) *http.Request {
	req := httptest.NewRequest("GET", "/admin/sales", nil)
	if clientID != "" {
		req.Header.Set(ClientIDHeader, clientID)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestClientIDIsRequired(t *testing.T) {
	handler := guarded(&tokenVerifier{token: "t"}, kv.NewMemory())

	for _, id := range []string{"", "has space", "semi;colon"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, adminRequest(id, "t"))
		assert.Equal(t, http.StatusBadRequest, w.Code, id)
	}
}

func TestAdminSessionIsScopedToClient(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemory()
	require.NoError(t, kv.Namespace(backing, "tab-a").Set(ctx, kv.KeyAdminSessionToken, "t"))

	handler := guarded(&tokenVerifier{token: "t"}, backing)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, adminRequest("tab-a", "t"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "owner", w.Body.String())

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, adminRequest("tab-b", "t"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClientIDAloneDoesNotAuthenticate(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemory()
	require.NoError(t, kv.Namespace(backing, "pos1").Set(ctx, kv.KeyAdminSessionToken, "t"))

	handler := guarded(&tokenVerifier{token: "t"}, backing)

	for _, token := range []string{"", "guess"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, adminRequest("pos1", token))
		assert.Equal(t, http.StatusUnauthorized, w.Code, "token %q", token)
		assert.NotContains(t, w.Body.String(), "owner")
	}
}

func TestSessionTokenSources(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	assert.Empty(t, SessionToken(req))

	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", SessionToken(req))

	req.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", SessionToken(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, SessionToken(req))
}

func TestSessionErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{adminauth.ErrExpired, http.StatusUnauthorized},
		{adminauth.ErrInvalidSession, http.StatusUnauthorized},
		{adminauth.ErrDeactivated, http.StatusForbidden},
		{errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		handler := guarded(&tokenVerifier{err: tt.err}, kv.NewMemory())
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, adminRequest("tab-a", "t"))
		assert.Equal(t, tt.want, w.Code, tt.err.Error())
	}
}
