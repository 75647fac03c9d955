package dialogue

import (
	"fmt"

	"github.com/ashureev/hubdesk/internal/domain"
)

// Transition names how a reply was produced.
type Transition string

const (
	TransitionStart    Transition = "start"
	TransitionStep     Transition = "step"
	TransitionResolve  Transition = "resolve"
	TransitionEscalate Transition = "escalate"
	TransitionKeyword  Transition = "keyword"
	TransitionFallback Transition = "fallback"
)

// Reply is the engine's answer to one user intent.
type Reply struct {
	Message  string
	Options  []domain.Option
	NextStep domain.StepID
	Escalate bool

	Transition Transition
	// Rule is the name of the keyword rule that matched, if any.
	Rule string
}

// Engine walks the troubleshooting tree. It holds no per-chat state and is
// safe for concurrent use.
type Engine struct {
	catalog *Catalog
	rules   []Rule
	replies Replies
}

// NewEngine creates an engine from a validated definition.
func NewEngine(def *Definition) *Engine {
	return &Engine{
		catalog: def.Catalog,
		rules:   append([]Rule(nil), def.Rules...),
		replies: def.Replies,
	}
}

// Catalog returns the step catalog the engine walks.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Start returns the root prompt that seeds a new chat.
func (e *Engine) Start() Reply {
	root := e.catalog.Root()
	return Reply{
		Message:    root.Text,
		Options:    root.Options,
		NextStep:   root.ID,
		Transition: TransitionStart,
	}
}

// Advance applies a chosen outcome. The current step does not constrain the
// transition; it is accepted so callers can pass the chat's pointer verbatim.
func (e *Engine) Advance(current domain.StepID, chosen domain.Outcome) (Reply, error) {
	switch {
	case chosen.IsEscalate():
		return Reply{
			Message:    e.replies.Escalate,
			NextStep:   domain.NoStep,
			Escalate:   true,
			Transition: TransitionEscalate,
		}, nil
	case chosen.IsResolve():
		root := e.catalog.Root()
		return Reply{
			Message:    e.replies.Resolve,
			Options:    root.Options,
			NextStep:   root.ID,
			Transition: TransitionResolve,
		}, nil
	case chosen.IsStep():
		step, ok := e.catalog.Get(chosen.Step)
		if !ok {
			return Reply{}, fmt.Errorf("advance from step %d: %w", current, &domain.UnknownStepError{Step: chosen.Step})
		}
		return Reply{
			Message:    step.Text,
			Options:    step.Options,
			NextStep:   step.ID,
			Transition: TransitionStep,
		}, nil
	default:
		return Reply{}, fmt.Errorf("advance from step %d: unsupported outcome %q", current, chosen.Terminal)
	}
}

// FreeText answers a typed message with the first matching keyword rule, or
// a clarifying prompt with the root options when nothing matches.
func (e *Engine) FreeText(text string) Reply {
	for _, r := range e.rules {
		if r.Matches(text) {
			return Reply{
				Message:    r.Response,
				Options:    append([]domain.Option(nil), r.Options...),
				NextStep:   domain.NoStep,
				Transition: TransitionKeyword,
				Rule:       r.Name,
			}
		}
	}
	root := e.catalog.Root()
	return Reply{
		Message:    e.replies.Fallback,
		Options:    root.Options,
		NextStep:   root.ID,
		Transition: TransitionFallback,
	}
}
