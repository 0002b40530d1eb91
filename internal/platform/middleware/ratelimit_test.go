package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRateLimit_AllowsBurstThenRejects(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})
	h := mw(okHandler)

	for i := 0; i < 2; i++ {
		c, _ := newTestContext(http.MethodGet, "/api/v1/patients", "")
		if err := h(c); err != nil {
			t.Fatalf("request %d should pass, got %v", i+1, err)
		}
	}

	c, rec := newTestContext(http.MethodGet, "/api/v1/patients", "")
	err := h(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimit_SeparateTenants(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})
	h := mw(okHandler)

	for _, tenant := range []string{"st_marys", "general"} {
		c, _ := newTestContext(http.MethodGet, "/", "")
		c.Set("jwt_tenant_id", tenant)
		if err := h(c); err != nil {
			t.Errorf("first request for %s should pass, got %v", tenant, err)
		}
	}
}

func TestRateLimiterStore_EvictsIdle(t *testing.T) {
	store := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.get("a")
	now = now.Add(2 * time.Minute)
	store.get("b")

	if _, ok := store.limiters["a"]; ok {
		t.Error("expected idle limiter to be evicted")
	}
	if _, ok := store.limiters["b"]; !ok {
		t.Error("expected active limiter to remain")
	}
}
