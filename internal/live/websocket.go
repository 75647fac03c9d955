package live

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/hubdesk/internal/domain"
	"github.com/ashureev/hubdesk/internal/identity"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

const writeTimeout = 10 * time.Second

// ChatLoader loads a chat on behalf of its owner.
type ChatLoader interface {
	GetChat(ctx context.Context, chatID, ownerID string) (*domain.Chat, error)
}

// WebSocketHandler serves GET /ws/chats/{id}.
type WebSocketHandler struct {
	hub            *Hub
	chats          ChatLoader
	originPatterns []string
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(hub *Hub, chats ChatLoader, originPatterns []string) *WebSocketHandler {
	if len(originPatterns) == 0 {
		originPatterns = []string{"*"}
	}
	return &WebSocketHandler{hub: hub, chats: chats, originPatterns: originPatterns}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ownerID := identity.UserIDFromContext(r.Context())
	chatID := chi.URLParam(r, "id")

	// Subscribe before loading so a mutation published while the chat is
	// read still reaches this view.
	sub := h.hub.Subscribe(chatID)
	defer h.hub.Unsubscribe(sub)

	chat, err := h.chats.GetChat(r.Context(), chatID, ownerID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, `{"error":"chat not found"}`, http.StatusNotFound)
		return
	case errors.Is(err, domain.ErrUnauthorized):
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return
	case err != nil:
		slog.Error("Failed to load chat for live view", "error", err, "chat_id", chatID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "chat_id", chatID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "view closed"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "chat_id", chatID)
		}
	}()

	// Clients only listen; CloseRead handles control frames and cancels on close.
	ctx := ws.CloseRead(r.Context())

	if err := writeChat(ctx, ws, chat); err != nil {
		slog.Debug("Failed to send initial snapshot", "error", err, "chat_id", chatID)
		return
	}
	slog.Info("Live view connected", "chat_id", chatID, "owner_id", ownerID)
	seen := lastMessageID(chat)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Live view disconnected", "chat_id", chatID)
			return
		case snapshot, ok := <-sub.C:
			if !ok {
				return
			}
			// Already covered by the initial load.
			if lastMessageID(snapshot) <= seen {
				continue
			}
			seen = lastMessageID(snapshot)
			if err := writeChat(ctx, ws, snapshot); err != nil {
				slog.Debug("WebSocket write error", "error", err, "chat_id", chatID)
				return
			}
		}
	}
}

func writeChat(ctx context.Context, ws *websocket.Conn, chat *domain.Chat) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, map[string]any{
		"type": "chat",
		"chat": chat,
	})
}

// lastMessageID orders snapshots of one chat: every applied mutation appends.
func lastMessageID(chat *domain.Chat) int {
	if n := len(chat.Messages); n > 0 {
		return chat.Messages[n-1].ID
	}
	return 0
}
