// Package identity provides anonymous per-device owner identity.
// Chats are owned by the ID carried in a long-lived cookie.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/ashureev/hubdesk/internal/domain"
	"github.com/ashureev/hubdesk/internal/store"
)

const (
	OwnerCookieName    = "hubdesk_owner"
	ownerCookieMaxAge  = 180 * 24 * time.Hour
	lastSeenResolution = 5 * time.Minute
)

type contextKey int

const (
	userIDKey contextKey = iota
	usernameKey
)

var ownerIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)

// UserIDFromContext extracts the owner ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// UsernameFromContext extracts the display name from the request context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// WithUser returns a context carrying the given owner, for callers outside HTTP.
func WithUser(ctx context.Context, userID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, usernameKey, deriveUsername(userID))
}

func generateOwnerID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate owner id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidOwnerID(id string) bool {
	return ownerIDPattern.MatchString(id)
}

func deriveUsername(userID string) string {
	if len(userID) > 13 {
		return "guest-" + userID[len(userID)-6:]
	}
	return "guest"
}

func ensureUser(ctx context.Context, repo store.Repository, userID string) error {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	now := time.Now()
	if user != nil {
		if now.Sub(user.LastSeenAt) > lastSeenResolution {
			if err := repo.UpdateLastSeen(ctx, userID, now); err != nil {
				slog.Warn("Failed to update last seen", "user_id", userID, "error", err)
			}
		}
		return nil
	}

	return repo.UpsertUser(ctx, &domain.User{
		UserID:     userID,
		Username:   deriveUsername(userID),
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func setOwnerCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     OwnerCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ownerCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(ownerCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateOwnerID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(OwnerCookieName); err == nil && isValidOwnerID(c.Value) {
		setOwnerCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateOwnerID()
	if err != nil {
		return "", err
	}
	setOwnerCookie(w, id, isDev)
	return id, nil
}

// Middleware injects the anonymous owner identity into the request context.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := getOrCreateOwnerID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish identity"}`, http.StatusInternalServerError)
				return
			}

			if err := ensureUser(r.Context(), repo, userID); err != nil {
				slog.Error("Failed to initialize user", "user_id", userID, "error", err)
				http.Error(w, `{"error":"failed to initialize user"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
		})
	}
}
