package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticLimiter struct {
	allow bool
}

func (s *staticLimiter) Allow() bool {
	return s.allow
}

func TestRateLimitMiddlewareBlocksWhenLimiterDenies(t *testing.T) {
	var rejected int
	middleware := rateLimitMiddleware(&staticLimiter{allow: false}, func(*http.Request) { rejected++ },
		http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			t.Fatalf("handler should not execute when rate limited")
		}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	middleware.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if rejected != 1 {
		t.Fatalf("expected reject callback once, got %d", rejected)
	}
}

func TestRateLimitMiddlewarePassesWhenLimiterAllows(t *testing.T) {
	var called bool
	middleware := rateLimitMiddleware(&staticLimiter{allow: true}, nil, http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	middleware.ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to execute when limiter allows")
	}
}

func TestNewTokenBucketLimiterDisabledWhenNotPositive(t *testing.T) {
	if limiter := newTokenBucketLimiter(0, 10); limiter != nil {
		t.Fatalf("expected nil limiter for zero rate")
	}
	if limiter := newTokenBucketLimiter(10, 0); limiter != nil {
		t.Fatalf("expected nil limiter for zero burst")
	}

	limiter := newTokenBucketLimiter(1, 1)
	if !limiter.Allow() {
		t.Fatalf("expected first request to be allowed")
	}
	if limiter.Allow() {
		t.Fatalf("expected second immediate request to be denied")
	}
}
