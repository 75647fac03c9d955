package session

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/ashureev/hubdesk/internal/dialogue"
	"github.com/ashureev/hubdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLifecycle(t *testing.T) *Lifecycle {
	t.Helper()
	def, err := dialogue.DefaultDefinition()
	require.NoError(t, err)
	return New(dialogue.NewEngine(def))
}

func newChat(t *testing.T, l *Lifecycle) *domain.Chat {
	t.Helper()
	res := l.StartNew(&domain.Chat{ID: "chat-1", OwnerID: "owner-1", Title: "New Chat 1"})
	require.True(t, res.Changed)
	return res.Chat
}

func TestStartNew(t *testing.T) {
	l := newLifecycle(t)
	chat := newChat(t, l)
	root := l.Engine().Catalog().Root()

	require.Len(t, chat.Messages, 1)
	first := chat.Messages[0]
	assert.Equal(t, domain.SenderAgent, first.Sender)
	assert.Equal(t, root.Text, first.Text)
	assert.Equal(t, root.Options, first.Options)
	assert.Equal(t, 1, first.ID)
	assert.False(t, chat.Escalated)
	assert.Equal(t, domain.RootStep, chat.CurrentStep)
	assert.Equal(t, "chat-1", chat.ID)
}

func TestSelectOptionFromRoot(t *testing.T) {
	l := newLifecycle(t)
	chat := newChat(t, l)

	res, err := l.SelectOption(chat, domain.GoTo(2))
	require.NoError(t, err)

	step2, _ := l.Engine().Catalog().Get(2)
	require.Len(t, res.Chat.Messages, 2)
	last := res.Chat.Messages[1]
	assert.Equal(t, domain.SenderAgent, last.Sender)
	assert.Equal(t, step2.Text, last.Text)
	assert.Equal(t, step2.Options, last.Options)
	assert.Equal(t, domain.StepID(2), res.Chat.CurrentStep)
	assert.Len(t, chat.Messages, 1, "input snapshot must not change")
}

func TestSelectOptionEscalate(t *testing.T) {
	l := newLifecycle(t)
	chat := newChat(t, l)
	res, err := l.SelectOption(chat, domain.GoTo(3))
	require.NoError(t, err)

	res, err = l.SelectOption(res.Chat, domain.Escalate())
	require.NoError(t, err)

	last := res.Chat.Messages[len(res.Chat.Messages)-1]
	assert.Equal(t, domain.SenderHuman, last.Sender)
	assert.Empty(t, last.Options)
	assert.True(t, res.Chat.Escalated)
	assert.Equal(t, domain.NoStep, res.Chat.CurrentStep)
}

func TestSelectOptionResolveReturnsToRoot(t *testing.T) {
	l := newLifecycle(t)
	chat := newChat(t, l)
	for _, next := range []domain.StepID{2, 5} {
		res, err := l.SelectOption(chat, domain.GoTo(next))
		require.NoError(t, err)
		chat = res.Chat
	}

	res, err := l.SelectOption(chat, domain.Resolve())
	require.NoError(t, err)
	assert.Equal(t, domain.RootStep, res.Chat.CurrentStep)
	last := res.Chat.Messages[len(res.Chat.Messages)-1]
	assert.Equal(t, l.Engine().Catalog().Root().Options, last.Options)
}

func TestSelectOptionNotOffered(t *testing.T) {
	l := newLifecycle(t)
	chat := newChat(t, l)

	_, err := l.SelectOption(chat, domain.GoTo(12))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOptionNotOffered))
}

func TestSendUserMessageWifi(t *testing.T) {
	l := newLifecycle(t)
	chat := newChat(t, l)

	res, err := l.SendUserMessage(chat, "my wifi is broken")
	require.NoError(t, err)
	require.Len(t, res.Chat.Messages, 3)
	require.Len(t, res.Appended, 2)

	user := res.Chat.Messages[1]
	assert.Equal(t, domain.SenderUser, user.Sender)
	assert.Equal(t, "my wifi is broken", user.Text)

	agent := res.Chat.Messages[2]
	assert.Equal(t, domain.SenderAgent, agent.Sender)
	assert.Contains(t, agent.Text, "Wi-Fi issues")
	require.NotEmpty(t, agent.Options)
	assert.Contains(t, agent.Options[0].Text, "Wi-Fi")
	assert.Equal(t, "wifi", res.Reply.Rule)

	// The keyword reply's options become the offered set.
	res, err = l.SelectOption(res.Chat, agent.Options[1].Next)
	require.NoError(t, err)
	assert.Equal(t, agent.Options[1].Next.Step, res.Chat.CurrentStep)
}

func TestSendUserMessageRejectsBlank(t *testing.T) {
	l := newLifecycle(t)
	chat := newChat(t, l)
	_, err := l.SendUserMessage(chat, "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)
}

func TestEscalatedChatIsFrozen(t *testing.T) {
	l := newLifecycle(t)
	chat := newChat(t, l)

	res, err := l.Escalate(chat)
	require.NoError(t, err)
	require.True(t, res.Changed)
	frozen := res.Chat

	res, err = l.SendUserMessage(frozen, "hello?")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, frozen, res.Chat)

	res, err = l.SelectOption(frozen, domain.GoTo(2))
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, frozen, res.Chat)

	res, err = l.Escalate(frozen)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, frozen, res.Chat)
}

func TestMessageIDsStrictlyIncrease(t *testing.T) {
	l := newLifecycle(t)
	rng := rand.New(rand.NewSource(7))
	texts := []string{"wifi down", "my device", "help", "bulb blinking"}

	for run := 0; run < 50; run++ {
		chat := newChat(t, l)
		for i := 0; i < 30; i++ {
			var res Result
			var err error
			switch rng.Intn(6) {
			case 0, 1:
				res, err = l.SendUserMessage(chat, texts[rng.Intn(len(texts))])
			case 2:
				res, err = l.SelectOption(chat, domain.Resolve())
			case 3:
				res, err = l.Escalate(chat)
			default:
				offered := chat.LastOffered()
				if len(offered) == 0 {
					continue
				}
				res, err = l.SelectOption(chat, offered[rng.Intn(len(offered))].Next)
			}
			require.NoError(t, err)
			chat = res.Chat

			for j := 1; j < len(chat.Messages); j++ {
				require.Greater(t, chat.Messages[j].ID, chat.Messages[j-1].ID)
			}
			if chat.CurrentStep.Valid() {
				_, ok := l.Engine().Catalog().Get(chat.CurrentStep)
				require.True(t, ok)
			}
			if chat.Escalated {
				require.Equal(t, domain.NoStep, chat.CurrentStep)
			}
		}
	}
}
