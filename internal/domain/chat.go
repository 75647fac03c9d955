package domain

import (
	"encoding/json"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
	SenderHuman Sender = "human"
)

// Message is one append-only entry of a chat log.
type Message struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Options   []Option  `json:"options,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Chat is the full conversation state of one support interaction.
type Chat struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Messages    []Message `json:"messages"`
	Escalated   bool      `json:"escalated"`
	CurrentStep StepID    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MarshalJSON renders CurrentStep as null when no step is active.
func (c Chat) MarshalJSON() ([]byte, error) {
	type plain Chat
	var step *StepID
	if c.CurrentStep.Valid() {
		s := c.CurrentStep
		step = &s
	}
	msgs := c.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	p := plain(c)
	p.Messages = msgs
	return json.Marshal(struct {
		plain
		CurrentStep *StepID `json:"current_step"`
	}{plain: p, CurrentStep: step})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Chat) UnmarshalJSON(data []byte) error {
	type plain Chat
	var aux struct {
		plain
		CurrentStep *StepID `json:"current_step"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Chat(aux.plain)
	c.CurrentStep = NoStep
	if aux.CurrentStep != nil {
		c.CurrentStep = *aux.CurrentStep
	}
	return nil
}

// Clone returns a deep copy so transformations never alias a stored snapshot.
func (c *Chat) Clone() *Chat {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		if m.Options != nil {
			m.Options = append([]Option(nil), m.Options...)
		}
		out.Messages[i] = m
	}
	return &out
}

// NextMessageID returns the identifier the next appended message receives.
func (c *Chat) NextMessageID() int {
	if len(c.Messages) == 0 {
		return 1
	}
	return c.Messages[len(c.Messages)-1].ID + 1
}

// LastOffered returns the options of the most recent agent message that carried any.
func (c *Chat) LastOffered() []Option {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		m := c.Messages[i]
		if m.Sender == SenderAgent && len(m.Options) > 0 {
			return m.Options
		}
	}
	return nil
}

// ChatSummary is the list view of a chat.
type ChatSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Escalated    bool      `json:"escalated"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
