// Package live pushes chat snapshots to every open WebSocket view of a chat.
package live

import (
	"log/slog"
	"sync"

	"github.com/ashureev/hubdesk/internal/domain"
)

const subscriberBuffer = 16

// Subscription receives snapshots of one chat.
type Subscription struct {
	ChatID string
	C      <-chan *domain.Chat

	ch     chan *domain.Chat
	closed bool
}

// Hub fans chat snapshots out to subscribers, keyed by chat ID.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers interest in a chat.
func (h *Hub) Subscribe(chatID string) *Subscription {
	ch := make(chan *domain.Chat, subscriberBuffer)
	sub := &Subscription{ChatID: chatID, C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[chatID]; !ok {
		h.subs[chatID] = make(map[*Subscription]struct{})
	}
	h.subs[chatID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	if set, ok := h.subs[sub.ChatID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.ChatID)
		}
	}
}

// Publish delivers a snapshot to every subscriber of the chat. A subscriber
// whose buffer is full is dropped; its connection closes and the client reconnects.
func (h *Hub) Publish(chat *domain.Chat) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[chat.ID] {
		select {
		case sub.ch <- chat.Clone():
		default:
			slog.Warn("Live subscriber too slow, dropping", "chat_id", chat.ID)
			h.removeLocked(sub)
		}
	}
}

// Drop disconnects every subscriber of a chat, e.g. after deletion.
func (h *Hub) Drop(chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[chatID] {
		h.removeLocked(sub)
	}
}

// Count returns the number of subscribers of a chat.
func (h *Hub) Count(chatID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[chatID])
}
