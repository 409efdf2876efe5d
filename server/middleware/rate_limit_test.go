package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRateLimiter(t *testing.T) {
	tests := []struct {
		name         string
		ip           string
		expectStatus int
		numRequests  int
		sleep        time.Duration
		burst        int
		limit        rate.Limit
	}{
		{
			name:         "within rate limit",
			ip:           "192.168.1.1:5123",
			expectStatus: http.StatusOK,
			numRequests:  20,
			limit:        rate.Every(time.Millisecond),
			burst:        20,
			sleep:        time.Millisecond,
		},
		{
			name:         "exceed rate limit per second",
			ip:           "192.168.1.1:5123",
			expectStatus: http.StatusTooManyRequests,
			numRequests:  65,
			limit:        rate.Every(time.Millisecond),
			burst:        60,
			sleep:        0,
		},
		{
			name:         "ok within limit as limits refresh 1",
			ip:           "192.168.1.1:5123",
			expectStatus: http.StatusOK,
			numRequests:  10,
			limit:        rate.Every(time.Millisecond),
			burst:        1,
			sleep:        time.Millisecond,
		},
		{
			name:         "ok within limit as limits refresh 2",
			ip:           "192.168.1.1:5123",
			expectStatus: http.StatusOK,
			numRequests:  11,
			limit:        rate.Every(time.Millisecond),
			burst:        10,
			sleep:        time.Millisecond / 10,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Create a new rate limiter
			rl := NewRateLimiter(slog.Default(), IPAddressKeyFunc, tc.limit, tc.burst)
			defer rl.Stop()

			testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("test"))
			})

			handler := rl.Limit(testHandler)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = tc.ip

			var rec *httptest.ResponseRecorder
			for i := 0; i < tc.numRequests; i++ {
				rec = httptest.NewRecorder()
				handler.ServeHTTP(rec, req)
				time.Sleep(tc.sleep)
			}

			assert.Equal(t, tc.expectStatus, rec.Code)
		})
	}
}

func TestRateLimiterSkipper(t *testing.T) {
	rl := NewRateLimiter(slog.Default(), IPAddressKeyFunc, rate.Every(time.Hour), 1, WithSkipper(PathSkipper("/healthz")))
	defer rl.Stop()
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestIPAddressKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:4242"
	assert.Equal(t, "10.0.0.7", IPAddressKeyFunc(req))
	req.RemoteAddr = "10.0.0.7"
	assert.Equal(t, "10.0.0.7", IPAddressKeyFunc(req))
}

func TestRateLimiterRejectsWithEnvelope(t *testing.T) {
	rl := NewRateLimiter(slog.Default(), ClientKeyFunc, rate.Every(time.Hour), 1)
	defer rl.Stop()
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer K3y!alpha")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"status":429,"error":{"code":"rate_limited","details":{"retryAfter":3600}}}`, rec.Body.String())

	// another key from the same address has its own budget
	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.Header.Set("Authorization", "Bearer K3y!bravo")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:4242"
	assert.Equal(t, "ip:10.0.0.7", ClientKeyFunc(req))
	req.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "key:abc", ClientKeyFunc(req))
}
