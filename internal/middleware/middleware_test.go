package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Fatal("third request within the window should be rejected")
	}
	if !rl.Allow("b") {
		t.Fatal("keys must be limited independently")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("a") {
		t.Fatal("request after the window should pass")
	}
}

func TestRateLimiterEvictsIdleKeys(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)
	defer rl.Stop()

	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	rl.Allow("idle")

	now = now.Add(2 * time.Minute)
	rl.evict()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.requests["idle"]; ok {
		t.Fatal("expected idle key to be evicted")
	}
}

func TestRateLimiterStopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, time.Second)
	rl.Stop()
	rl.Stop()
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	handler := RateLimit(rl, func(r *http.Request) string {
		return r.Header.Get("X-Owner")
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(owner string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/chats", nil)
		if owner != "" {
			req.Header.Set("X-Owner", owner)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("a"); code != http.StatusNoContent {
		t.Fatalf("first request: got %d", code)
	}
	if code := send("a"); code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", code)
	}
	if code := send(""); code != http.StatusNoContent {
		t.Fatalf("keyless request: got %d", code)
	}
}

func TestRateLimitRetryAfterRoundsUp(t *testing.T) {
	rl := NewRateLimiter(1, 500*time.Millisecond)
	defer rl.Stop()

	handler := RateLimit(rl, func(*http.Request) string { return "a" })(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/chats", nil))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chats", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After 1, got %q", got)
	}

	for window, want := range map[time.Duration]string{
		time.Millisecond:        "1",
		1500 * time.Millisecond: "2",
		time.Minute:             "60",
	} {
		if got := retryAfter(window); got != want {
			t.Errorf("retryAfter(%v) = %q, want %q", window, got, want)
		}
	}
}

func TestCORSCredentialsOnlyForExplicitOrigins(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})

	preflight := func(origins []string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/chats", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		CORS(origins)(next).ServeHTTP(rec, req)
		return rec
	}

	rec := preflight([]string{"http://localhost:5173"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("expected origin echoed, got %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials for explicit origin")
	}

	rec = preflight([]string{"*"})
	if rec.Header().Get("Access-Control-Allow-Credentials") == "true" {
		t.Fatal("credentials must not be allowed for wildcard origins")
	}

	rec = preflight([]string{"https://other.example"})
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unlisted origin must not be allowed")
	}
}
