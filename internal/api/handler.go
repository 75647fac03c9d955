// Package api provides HTTP handlers for the support chat API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/hubdesk/internal/chat"
	"github.com/ashureev/hubdesk/internal/domain"
	"github.com/ashureev/hubdesk/internal/store"
)

const maxBodyBytes = 64 << 10

// Handler provides common handler utilities.
type Handler struct {
	repo  store.Repository
	chats *chat.Service
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, chats *chat.Service) *Handler {
	return &Handler{repo: repo, chats: chats}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeBody reads a bounded JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// serviceError maps chat service errors onto HTTP responses.
func serviceError(w http.ResponseWriter, err error, chatID string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		Error(w, http.StatusNotFound, "chat not found")
	case errors.Is(err, domain.ErrUnauthorized):
		Error(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrChatBusy):
		Error(w, http.StatusConflict, "chat_busy")
	case errors.Is(err, domain.ErrOptionNotOffered):
		Error(w, http.StatusBadRequest, "option not offered")
	case errors.Is(err, domain.ErrEmptyMessage):
		Error(w, http.StatusBadRequest, "message text is required")
	default:
		slog.Error("Chat operation failed", "error", err, "chat_id", chatID)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
