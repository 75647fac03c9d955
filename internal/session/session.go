// Package session implements the chat lifecycle as pure transformations:
// every operation takes a chat snapshot and returns a new one, leaving the
// input untouched. A failed operation returns no snapshot at all.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/hubdesk/internal/dialogue"
	"github.com/ashureev/hubdesk/internal/domain"
)

// Result is the outcome of one lifecycle operation.
type Result struct {
	Chat *domain.Chat
	// Changed is false when the operation was a no-op (escalated chat).
	Changed bool
	// Appended holds the messages added by this operation, in order.
	Appended []domain.Message
	// Reply is the engine output, nil when the engine was not consulted.
	Reply *dialogue.Reply
}

// Lifecycle applies user intents to chats using a dialogue engine.
type Lifecycle struct {
	engine *dialogue.Engine
	now    func() time.Time
}

// New creates a lifecycle bound to engine.
func New(engine *dialogue.Engine) *Lifecycle {
	return &Lifecycle{engine: engine, now: time.Now}
}

// Engine returns the dialogue engine.
func (l *Lifecycle) Engine() *dialogue.Engine {
	return l.engine
}

// StartNew seeds a freshly allocated chat record with the root prompt.
func (l *Lifecycle) StartNew(record *domain.Chat) Result {
	next := record.Clone()
	next.Messages = next.Messages[:0]
	next.Escalated = false
	reply := l.engine.Start()
	return l.apply(next, reply, nil)
}

// SendUserMessage appends the user's text followed by the engine's free-text reply.
func (l *Lifecycle) SendUserMessage(chat *domain.Chat, text string) (Result, error) {
	if chat.Escalated {
		return unchanged(chat), nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, domain.ErrEmptyMessage
	}

	next := chat.Clone()
	userMsg := l.appendMessage(next, domain.SenderUser, text, nil)
	reply := l.engine.FreeText(text)
	return l.apply(next, reply, []domain.Message{userMsg}), nil
}

// SelectOption applies a chosen outcome. Step outcomes must be among the
// options most recently offered; resolve and escalate are always accepted.
func (l *Lifecycle) SelectOption(chat *domain.Chat, outcome domain.Outcome) (Result, error) {
	if chat.Escalated {
		return unchanged(chat), nil
	}
	if outcome.IsStep() && !domain.OffersOutcome(chat.LastOffered(), outcome) {
		return Result{}, fmt.Errorf("select %s: %w", outcome, domain.ErrOptionNotOffered)
	}

	reply, err := l.engine.Advance(chat.CurrentStep, outcome)
	if err != nil {
		return Result{}, err
	}
	return l.apply(chat.Clone(), reply, nil), nil
}

// Escalate hands the chat to human support. Escalating twice is a no-op.
func (l *Lifecycle) Escalate(chat *domain.Chat) (Result, error) {
	if chat.Escalated {
		return unchanged(chat), nil
	}
	reply, err := l.engine.Advance(chat.CurrentStep, domain.Escalate())
	if err != nil {
		return Result{}, err
	}
	return l.apply(chat.Clone(), reply, nil), nil
}

// apply records the reply on next as a single state transition.
func (l *Lifecycle) apply(next *domain.Chat, reply dialogue.Reply, appended []domain.Message) Result {
	sender := domain.SenderAgent
	if reply.Escalate {
		sender = domain.SenderHuman
	}
	msg := l.appendMessage(next, sender, reply.Message, reply.Options)
	next.CurrentStep = reply.NextStep
	if reply.Escalate {
		next.Escalated = true
		next.CurrentStep = domain.NoStep
	}
	next.UpdatedAt = msg.CreatedAt
	return Result{
		Chat:     next,
		Changed:  true,
		Appended: append(appended, msg),
		Reply:    &reply,
	}
}

func (l *Lifecycle) appendMessage(c *domain.Chat, sender domain.Sender, text string, options []domain.Option) domain.Message {
	msg := domain.Message{
		ID:        c.NextMessageID(),
		Text:      text,
		Sender:    sender,
		CreatedAt: l.now().UTC(),
	}
	if len(options) > 0 {
		msg.Options = append([]domain.Option(nil), options...)
	}
	c.Messages = append(c.Messages, msg)
	return msg
}

func unchanged(chat *domain.Chat) Result {
	return Result{Chat: chat.Clone()}
}
