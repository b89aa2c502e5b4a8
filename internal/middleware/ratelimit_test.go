package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat/request-agent", http.NoBody)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	handler := NewRateLimiter(10, 10).Handler(okHandler())

	for i := range 10 {
		if rec := hit(handler, "192.168.1.1:5000"); rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	handler := NewRateLimiter(10, 5).Handler(okHandler())

	for range 5 {
		hit(handler, "192.168.1.1:5000")
	}

	rec := hit(handler, "192.168.1.1:5001")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }
	handler := rl.Handler(okHandler())

	if rec := hit(handler, "10.0.0.1:1"); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	if rec := hit(handler, "10.0.0.1:1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d", rec.Code)
	}
	now = now.Add(time.Second)
	if rec := hit(handler, "10.0.0.1:1"); rec.Code != http.StatusOK {
		t.Fatalf("after refill: %d", rec.Code)
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	handler := NewRateLimiter(10, 2).Handler(okHandler())

	for range 2 {
		hit(handler, "10.0.0.1:1")
	}
	if rec := hit(handler, "10.0.0.1:1"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("IP 10.0.0.1: expected 429, got %d", rec.Code)
	}
	if rec := hit(handler, "10.0.0.2:1"); rec.Code != http.StatusOK {
		t.Errorf("IP 10.0.0.2: expected 200, got %d", rec.Code)
	}
}

func TestRateLimiterWithKey(t *testing.T) {
	rl := NewRateLimiter(10, 1).WithKey(func(r *http.Request) string {
		return r.Header.Get("X-Customer")
	})
	handler := rl.Handler(okHandler())

	send := func(customer string) int {
		req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		req.RemoteAddr = "10.0.0.9:1"
		req.Header.Set("X-Customer", customer)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("a@example.com"); code != http.StatusOK {
		t.Fatalf("a first: %d", code)
	}
	if code := send("b@example.com"); code != http.StatusOK {
		t.Fatalf("b shares the IP but has its own bucket: %d", code)
	}
	if code := send("a@example.com"); code != http.StatusTooManyRequests {
		t.Fatalf("a second: %d", code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(10, 5)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }
	handler := rl.Handler(okHandler())

	hit(handler, "10.0.0.1:1")
	hit(handler, "10.0.0.2:1")
	if rl.Len() != 2 {
		t.Fatalf("expected 2 buckets, got %d", rl.Len())
	}

	now = now.Add(time.Minute)
	hit(handler, "10.0.0.2:1")
	rl.cleanup(30 * time.Second)

	if rl.Len() != 1 {
		t.Fatalf("expected idle bucket dropped, got %d", rl.Len())
	}
}
