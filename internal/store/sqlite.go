package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/hubdesk/internal/domain"
	"github.com/ashureev/hubdesk/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	return NewSQLiteWithRetry(dbPath, shared.DefaultRetryPolicy())
}

// NewSQLiteWithRetry creates a SQLite-backed repository that retries writes
// hitting SQLITE_BUSY according to policy.
func NewSQLiteWithRetry(dbPath string, policy shared.RetryPolicy) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: policy}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chats (
		chat_id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		escalated INTEGER NOT NULL DEFAULT 0,
		current_step INTEGER,
		message_count INTEGER NOT NULL DEFAULT 0,
		messages_json TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chats_owner ON chats(owner_id, updated_at);
	CREATE INDEX IF NOT EXISTS idx_chats_updated ON chats(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	return shared.RetryOnConflict(ctx, s.retry, "upsert user", func() error {
		_, err := s.db.ExecContext(ctx, query,
			user.UserID, user.Username, user.LastSeenAt.Unix(),
			user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		return nil
	})
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}
	return nil
}

// CreateChat allocates a new, empty chat record.
func (s *SQLiteStore) CreateChat(ctx context.Context, ownerID, title string) (*domain.Chat, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	now := time.Now().UTC()
	chat := &domain.Chat{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		Messages:  []domain.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO chats (chat_id, owner_id, title, escalated, current_step,
		                   message_count, messages_json, created_at, updated_at)
		VALUES (?, ?, ?, 0, NULL, 0, '[]', ?, ?)`

	err := shared.RetryOnConflict(ctx, s.retry, "create chat", func() error {
		_, err := s.db.ExecContext(ctx, query,
			chat.ID, chat.OwnerID, chat.Title, now.UnixMilli(), now.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert chat: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// LoadChat retrieves a chat and enforces ownership.
func (s *SQLiteStore) LoadChat(ctx context.Context, chatID, ownerID string) (*domain.Chat, error) {
	query := `
		SELECT chat_id, owner_id, title, escalated, current_step,
		       messages_json, created_at, updated_at
		FROM chats WHERE chat_id = ?`

	var chat domain.Chat
	var step sql.NullInt64
	var messagesJSON string
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, chatID).Scan(
		&chat.ID, &chat.OwnerID, &chat.Title, &chat.Escalated, &step,
		&messagesJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat row: %w", err)
	}
	if chat.OwnerID != ownerID {
		return nil, domain.ErrUnauthorized
	}

	if err := json.Unmarshal([]byte(messagesJSON), &chat.Messages); err != nil {
		return nil, fmt.Errorf("decode messages of chat %s: %w", chat.ID, err)
	}
	if chat.Messages == nil {
		chat.Messages = []domain.Message{}
	}
	chat.CurrentStep = domain.NoStep
	if step.Valid {
		chat.CurrentStep = domain.StepID(step.Int64)
	}
	chat.CreatedAt = time.UnixMilli(createdAt).UTC()
	chat.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &chat, nil
}

// SaveChat persists the full chat state in one statement.
func (s *SQLiteStore) SaveChat(ctx context.Context, chat *domain.Chat) error {
	messagesJSON, err := json.Marshal(chat.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	var step interface{}
	if chat.CurrentStep.Valid() {
		step = int64(chat.CurrentStep)
	}

	updatedAt := chat.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
		UPDATE chats SET title = ?, escalated = ?, current_step = ?,
		       message_count = ?, messages_json = ?, updated_at = ?
		WHERE chat_id = ? AND owner_id = ?`

	return shared.RetryOnConflict(ctx, s.retry, "save chat", func() error {
		result, err := s.db.ExecContext(ctx, query,
			chat.Title, chat.Escalated, step,
			len(chat.Messages), string(messagesJSON), updatedAt.UnixMilli(),
			chat.ID, chat.OwnerID,
		)
		if err != nil {
			return fmt.Errorf("update chat: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// ListChats returns summaries of the owner's chats, newest activity first.
func (s *SQLiteStore) ListChats(ctx context.Context, ownerID string) ([]domain.ChatSummary, error) {
	query := `
		SELECT chat_id, title, escalated, message_count, created_at, updated_at
		FROM chats WHERE owner_id = ?
		ORDER BY updated_at DESC, chat_id`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close chat rows", "error", closeErr)
		}
	}()

	out := []domain.ChatSummary{}
	for rows.Next() {
		var sum domain.ChatSummary
		var createdAt, updatedAt int64
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Escalated, &sum.MessageCount, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan chat summary: %w", err)
		}
		sum.CreatedAt = time.UnixMilli(createdAt).UTC()
		sum.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return out, nil
}

// DeleteChat removes a chat after checking ownership.
func (s *SQLiteStore) DeleteChat(ctx context.Context, chatID, ownerID string) error {
	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT owner_id FROM chats WHERE chat_id = ?`, chatID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup chat owner: %w", err)
	}
	if owner != ownerID {
		return domain.ErrUnauthorized
	}

	return shared.RetryOnConflict(ctx, s.retry, "delete chat", func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE chat_id = ? AND owner_id = ?`, chatID, ownerID); err != nil {
			return fmt.Errorf("delete chat: %w", err)
		}
		return nil
	})
}

// DeleteIdleChats removes chats whose last update is older than ttl and
// returns their IDs.
func (s *SQLiteStore) DeleteIdleChats(ctx context.Context, ttl time.Duration) ([]string, error) {
	threshold := time.Now().Add(-ttl).UnixMilli()
	var deleted []string
	err := shared.RetryOnConflict(ctx, s.retry, "delete idle chats", func() error {
		deleted = deleted[:0]
		rows, err := s.db.QueryContext(ctx, `DELETE FROM chats WHERE updated_at < ? RETURNING chat_id`, threshold)
		if err != nil {
			return fmt.Errorf("delete idle chats: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("scan deleted chat: %w", err)
			}
			deleted = append(deleted, id)
		}
		return rows.Err()
	})
	return deleted, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
