package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func limited(t *testing.T, limit int) (http.Handler, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	mw := RateLimitMiddleware(client, RateLimitConfig{
		RequestsPerWindow: limit,
		Window:            time.Minute,
		KeyPrefix:         "rate_limit",
	}, zap.NewNop())

	handler := ClientIDMiddleware(zap.NewNop())(mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	return handler, mr
}

func hit(handler http.Handler, clientID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/products", nil)
	req.Header.Set(ClientIDHeader, clientID)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// Feature: storefront, Property 13: Rate limiting blocks excessive requests
func TestProperty_RateLimitingBlocksExcessiveRequests(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("requests beyond the window limit get 429", prop.ForAll(
		func(limit int, excess int) bool {
			handler, mr := limited(t, limit)
			defer mr.FlushAll()

			ok, blocked := 0, 0
			for i := 0; i < limit+excess; i++ {
				switch hit(handler, "till-1").Code {
				case http.StatusOK:
					ok++
				case http.StatusTooManyRequests:
					blocked++
				}
			}
			return ok == limit && blocked == excess
		},
		gen.IntRange(2, 15),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRateLimitIsPerClient(t *testing.T) {
	handler, _ := limited(t, 1)

	assert.Equal(t, http.StatusOK, hit(handler, "tab-a").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "tab-a").Code)
	assert.Equal(t, http.StatusOK, hit(handler, "tab-b").Code)
}

func TestRateLimitHeaders(t *testing.T) {
	handler, _ := limited(t, 3)

	w := hit(handler, "tab-a")
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRedisOutageLetsRequestsThrough(t *testing.T) {
	handler, mr := limited(t, 1)
	mr.Close()

	w := hit(handler, "tab-a")
	require.Equal(t, http.StatusOK, w.Code)
}
