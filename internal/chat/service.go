// Package chat coordinates chat operations: it loads a chat through the store,
// applies one lifecycle transformation, persists the result and notifies
// live views, transcripts and metrics.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/hubdesk/internal/dialogue"
	"github.com/ashureev/hubdesk/internal/domain"
	"github.com/ashureev/hubdesk/internal/metrics"
	"github.com/ashureev/hubdesk/internal/session"
	"github.com/ashureev/hubdesk/internal/store"
	"github.com/ashureev/hubdesk/internal/transcript"
)

// Publisher receives every persisted chat snapshot.
type Publisher interface {
	Publish(chat *domain.Chat)
	Drop(chatID string)
}

type nopPublisher struct{}

func (nopPublisher) Publish(*domain.Chat) {}
func (nopPublisher) Drop(string)          {}

// Service is the entry point for chat operations.
type Service struct {
	repo       store.Repository
	life       *session.Lifecycle
	locks      *inflight
	publisher  Publisher
	transcript transcript.Logger
	metrics    metrics.Recorder
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the live-update publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithTranscript sets the transcript logger.
func WithTranscript(l transcript.Logger) Option {
	return func(s *Service) { s.transcript = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

// NewService creates a chat service.
func NewService(repo store.Repository, life *session.Lifecycle, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		life:       life,
		locks:      newInflight(),
		publisher:  nopPublisher{},
		transcript: transcript.NopLogger{},
		metrics:    metrics.NopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the step catalog behind the dialogue.
func (s *Service) Catalog() *dialogue.Catalog {
	return s.life.Engine().Catalog()
}

// Start creates a chat seeded with the root prompt. An empty title becomes
// "New Chat N" where N follows the highest default number the owner holds.
func (s *Service) Start(ctx context.Context, ownerID, title string) (*domain.Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		existing, err := s.repo.ListChats(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("list chats: %w", err)
		}
		title = fmt.Sprintf("%s%d", defaultTitlePrefix, nextDefaultNumber(existing))
	}

	record, err := s.repo.CreateChat(ctx, ownerID, title)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}

	res := s.life.StartNew(record)
	if err := s.repo.SaveChat(ctx, res.Chat); err != nil {
		if delErr := s.repo.DeleteChat(context.WithoutCancel(ctx), record.ID, ownerID); delErr != nil {
			slog.Warn("Failed to remove unseeded chat", "chat_id", record.ID, "error", delErr)
		}
		return nil, fmt.Errorf("save new chat: %w", err)
	}

	s.metrics.ObserveChatStarted()
	s.transcript.Log(transcript.Event{
		OwnerID:   ownerID,
		ChatID:    record.ID,
		EventType: "chat_started",
		Meta:      map[string]any{"title": title},
	})
	s.record(res)

	slog.Info("Chat started", "chat_id", record.ID, "owner_id", ownerID)
	return res.Chat, nil
}

const defaultTitlePrefix = "New Chat "

func nextDefaultNumber(chats []domain.ChatSummary) int {
	highest := 0
	for _, c := range chats {
		rest, ok := strings.CutPrefix(c.Title, defaultTitlePrefix)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(rest); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1
}

// GetChat returns the chat if the owner may see it.
func (s *Service) GetChat(ctx context.Context, chatID, ownerID string) (*domain.Chat, error) {
	return s.repo.LoadChat(ctx, chatID, ownerID)
}

// ListChats returns the owner's chat summaries.
func (s *Service) ListChats(ctx context.Context, ownerID string) ([]domain.ChatSummary, error) {
	return s.repo.ListChats(ctx, ownerID)
}

// SendMessage appends user free text and the agent's reply.
func (s *Service) SendMessage(ctx context.Context, chatID, ownerID, text string) (*domain.Chat, error) {
	return s.mutate(ctx, "send_message", chatID, ownerID, func(c *domain.Chat) (session.Result, error) {
		return s.life.SendUserMessage(c, text)
	})
}

// SelectOption applies a chosen option outcome.
func (s *Service) SelectOption(ctx context.Context, chatID, ownerID string, outcome domain.Outcome) (*domain.Chat, error) {
	return s.mutate(ctx, "select_option", chatID, ownerID, func(c *domain.Chat) (session.Result, error) {
		return s.life.SelectOption(c, outcome)
	})
}

// Escalate hands the chat to human support.
func (s *Service) Escalate(ctx context.Context, chatID, ownerID string) (*domain.Chat, error) {
	return s.mutate(ctx, "escalate", chatID, ownerID, s.life.Escalate)
}

// Delete removes the chat and disconnects its live views.
func (s *Service) Delete(ctx context.Context, chatID, ownerID string) error {
	if !s.locks.tryAcquire(chatID) {
		s.metrics.ObserveRejected("delete", "busy")
		return domain.ErrChatBusy
	}
	defer s.locks.release(chatID)

	if err := s.repo.DeleteChat(ctx, chatID, ownerID); err != nil {
		return err
	}
	s.publisher.Drop(chatID)
	s.transcript.Log(transcript.Event{OwnerID: ownerID, ChatID: chatID, EventType: "chat_deleted"})
	slog.Info("Chat deleted", "chat_id", chatID, "owner_id", ownerID)
	return nil
}

// mutate runs one transformation with at most one mutation in flight per chat.
// Either the whole result is saved or nothing is.
func (s *Service) mutate(ctx context.Context, op, chatID, ownerID string, fn func(*domain.Chat) (session.Result, error)) (*domain.Chat, error) {
	if !s.locks.tryAcquire(chatID) {
		slog.Warn("Chat mutation already in progress", "chat_id", chatID, "op", op)
		s.metrics.ObserveRejected(op, "busy")
		return nil, domain.ErrChatBusy
	}
	defer s.locks.release(chatID)

	current, err := s.repo.LoadChat(ctx, chatID, ownerID)
	if err != nil {
		return nil, err
	}

	res, err := fn(current)
	if err != nil {
		s.metrics.ObserveRejected(op, rejectReason(err))
		if errors.Is(err, domain.ErrUnknownStep) {
			slog.Error("Dialogue catalog mismatch", "chat_id", chatID, "op", op, "error", err)
		}
		return nil, err
	}
	if !res.Changed {
		slog.Debug("Chat unchanged", "chat_id", chatID, "op", op, "escalated", current.Escalated)
		return res.Chat, nil
	}

	if err := s.repo.SaveChat(ctx, res.Chat); err != nil {
		return nil, fmt.Errorf("save chat: %w", err)
	}
	s.record(res)
	s.publisher.Publish(res.Chat)
	return res.Chat, nil
}

// record emits transcript lines and metrics for an applied result.
func (s *Service) record(res session.Result) {
	if res.Reply != nil {
		s.metrics.ObserveTransition(string(res.Reply.Transition), res.Reply.Rule)
		if res.Reply.Escalate {
			slog.Info("Chat escalated", "chat_id", res.Chat.ID, "owner_id", res.Chat.OwnerID)
		}
	}
	for _, m := range res.Appended {
		meta := map[string]any{"current_step": int(res.Chat.CurrentStep)}
		if len(m.Options) > 0 {
			meta["options"] = len(m.Options)
		}
		s.transcript.Log(transcript.Event{
			Timestamp: m.CreatedAt.Format(time.RFC3339Nano),
			OwnerID:   res.Chat.OwnerID,
			ChatID:    res.Chat.ID,
			EventType: string(m.Sender) + "_message",
			MessageID: m.ID,
			Sender:    string(m.Sender),
			Text:      m.Text,
			Meta:      meta,
		})
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrOptionNotOffered):
		return "option_not_offered"
	case errors.Is(err, domain.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, domain.ErrUnknownStep):
		return "unknown_step"
	default:
		return "error"
	}
}
