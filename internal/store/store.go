// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/hubdesk/internal/domain"
)

// Repository defines the interface for persisting owners and their chats.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// CreateChat allocates a new, empty chat record owned by ownerID.
	CreateChat(ctx context.Context, ownerID, title string) (*domain.Chat, error)

	// LoadChat returns the chat if it exists and belongs to ownerID.
	// Fails with domain.ErrNotFound or domain.ErrUnauthorized.
	LoadChat(ctx context.Context, chatID, ownerID string) (*domain.Chat, error)

	// SaveChat persists the message log, escalation flag and step pointer.
	// Last write wins.
	SaveChat(ctx context.Context, chat *domain.Chat) error

	// ListChats returns the owner's chats, most recently updated first.
	ListChats(ctx context.Context, ownerID string) ([]domain.ChatSummary, error)

	// DeleteChat removes a chat owned by ownerID.
	DeleteChat(ctx context.Context, chatID, ownerID string) error

	// DeleteIdleChats removes chats not updated within ttl and returns their IDs.
	DeleteIdleChats(ctx context.Context, ttl time.Duration) ([]string, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
