package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/hubdesk/internal/store"
)

func newRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func serve(t *testing.T, repo store.Repository, cookie *http.Cookie) (string, *httptest.ResponseRecorder) {
	t.Helper()
	var seen string
	h := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
		if UsernameFromContext(r.Context()) == "" {
			t.Error("expected username in context")
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return seen, rec
}

func ownerCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == OwnerCookieName {
			return c
		}
	}
	return nil
}

func TestMiddlewareIssuesAndReusesOwner(t *testing.T) {
	repo := newRepo(t)

	first, rec := serve(t, repo, nil)
	if !isValidOwnerID(first) {
		t.Fatalf("expected generated owner id, got %q", first)
	}
	cookie := ownerCookie(rec)
	if cookie == nil || cookie.Value != first || !cookie.HttpOnly {
		t.Fatalf("unexpected cookie: %+v", cookie)
	}

	user, err := repo.GetUser(context.Background(), first)
	if err != nil || user == nil {
		t.Fatalf("expected user persisted, got %v, %v", user, err)
	}
	if user.Username != deriveUsername(first) {
		t.Errorf("unexpected username %q", user.Username)
	}

	second, _ := serve(t, repo, cookie)
	if second != first {
		t.Fatalf("expected owner %s reused, got %s", first, second)
	}
}

func TestMiddlewareReplacesInvalidCookie(t *testing.T) {
	repo := newRepo(t)
	got, _ := serve(t, repo, &http.Cookie{Name: OwnerCookieName, Value: "../../etc/passwd"})
	if got == "../../etc/passwd" || !isValidOwnerID(got) {
		t.Fatalf("invalid cookie must be replaced, got %q", got)
	}
}

func TestEnsureUserRefreshesLastSeen(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	id, _ := generateOwnerID()

	if err := ensureUser(ctx, repo, id); err != nil {
		t.Fatalf("ensureUser failed: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := repo.UpdateLastSeen(ctx, id, old); err != nil {
		t.Fatalf("UpdateLastSeen failed: %v", err)
	}

	if err := ensureUser(ctx, repo, id); err != nil {
		t.Fatalf("ensureUser failed: %v", err)
	}
	user, _ := repo.GetUser(ctx, id)
	if time.Since(user.LastSeenAt) > time.Minute {
		t.Fatalf("expected last seen refreshed, got %v", user.LastSeenAt)
	}
}

func TestWithUser(t *testing.T) {
	ctx := WithUser(context.Background(), "anon_0123456789abcdef0123456789abcdef")
	if UserIDFromContext(ctx) != "anon_0123456789abcdef0123456789abcdef" {
		t.Fatal("owner id not carried")
	}
	if UsernameFromContext(ctx) != "guest-abcdef" {
		t.Fatalf("unexpected username %q", UsernameFromContext(ctx))
	}
	if UserIDFromContext(context.Background()) != "" {
		t.Fatal("empty context should have no owner")
	}
}
