package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/hubdesk/internal/domain"
	"github.com/ashureev/hubdesk/internal/identity"
	"github.com/go-chi/chi/v5"
)

// ChatHandler handles chat endpoints.
type ChatHandler struct {
	*Handler
	// limit wraps mutating routes; nil means unlimited.
	limit func(http.Handler) http.Handler
}

// NewChatHandler creates a chat handler. limit, when non-nil, is applied to
// every route that changes a chat.
func NewChatHandler(base *Handler, limit func(http.Handler) http.Handler) *ChatHandler {
	return &ChatHandler{Handler: base, limit: limit}
}

type createChatRequest struct {
	Title string `json:"title"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type selectOptionRequest struct {
	Outcome *domain.Outcome `json:"outcome"`
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/catalog", h.GetCatalog)
		r.Get("/chats", h.ListChats)
		r.Get("/chats/{id}", h.GetChat)

		r.Group(func(r chi.Router) {
			if h.limit != nil {
				r.Use(h.limit)
			}
			r.Post("/chats", h.CreateChat)
			r.Post("/chats/{id}/messages", h.SendMessage)
			r.Post("/chats/{id}/options", h.SelectOption)
			r.Post("/chats/{id}/escalate", h.Escalate)
			r.Delete("/chats/{id}", h.DeleteChat)
		})
	})
}

// GetMe returns the current owner's information.
func (h *ChatHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":    user.UserID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	})
}

// GetCatalog returns the troubleshooting steps.
func (h *ChatHandler) GetCatalog(w http.ResponseWriter, _ *http.Request) {
	catalog := h.chats.Catalog()
	JSON(w, http.StatusOK, map[string]interface{}{
		"root":  domain.RootStep,
		"steps": catalog.Steps(),
	})
}

// ListChats returns the owner's chats.
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	ownerID := identity.UserIDFromContext(r.Context())
	chats, err := h.chats.ListChats(r.Context(), ownerID)
	if err != nil {
		serviceError(w, err, "")
		return
	}
	if chats == nil {
		chats = []domain.ChatSummary{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"chats": chats})
}

// CreateChat starts a new chat seeded with the root prompt.
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ownerID := identity.UserIDFromContext(r.Context())
	c, err := h.chats.Start(r.Context(), ownerID, req.Title)
	if err != nil {
		serviceError(w, err, "")
		return
	}
	JSON(w, http.StatusCreated, c)
}

// GetChat returns one chat.
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	c, err := h.chats.GetChat(r.Context(), chatID, identity.UserIDFromContext(r.Context()))
	if err != nil {
		serviceError(w, err, chatID)
		return
	}
	JSON(w, http.StatusOK, c)
}

// SendMessage appends free text from the user.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	var req sendMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.chats.SendMessage(r.Context(), chatID, identity.UserIDFromContext(r.Context()), req.Text)
	if err != nil {
		serviceError(w, err, chatID)
		return
	}
	JSON(w, http.StatusOK, c)
}

// SelectOption applies a chosen option.
func (h *ChatHandler) SelectOption(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	var req selectOptionRequest
	if err := decodeBody(w, r, &req); err != nil || req.Outcome == nil {
		Error(w, http.StatusBadRequest, "outcome must be a step id, \"resolve\" or \"escalate\"")
		return
	}

	slog.Debug("Option selected", "chat_id", chatID, "outcome", req.Outcome.String())
	c, err := h.chats.SelectOption(r.Context(), chatID, identity.UserIDFromContext(r.Context()), *req.Outcome)
	if err != nil {
		serviceError(w, err, chatID)
		return
	}
	JSON(w, http.StatusOK, c)
}

// Escalate hands the chat to human support.
func (h *ChatHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	c, err := h.chats.Escalate(r.Context(), chatID, identity.UserIDFromContext(r.Context()))
	if err != nil {
		serviceError(w, err, chatID)
		return
	}
	JSON(w, http.StatusOK, c)
}

// DeleteChat removes a chat.
func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	if err := h.chats.Delete(r.Context(), chatID, identity.UserIDFromContext(r.Context())); err != nil {
		serviceError(w, err, chatID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
