package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// StepID identifies a node of the troubleshooting tree. Zero means no step.
type StepID int

// RootStep is the entry point of the troubleshooting tree.
const RootStep StepID = 1

// NoStep marks the absence of an active guided step.
const NoStep StepID = 0

// Valid reports whether the ID can name a catalog step.
func (id StepID) Valid() bool {
	return id > 0
}

// Terminal is a sentinel outcome that does not name a step.
type Terminal string

const (
	// TerminalResolve closes the current issue and re-offers the root menu.
	TerminalResolve Terminal = "resolve"
	// TerminalEscalate hands the chat off to human support.
	TerminalEscalate Terminal = "escalate"
)

// Outcome is the result of choosing an option: either a step or a terminal.
type Outcome struct {
	Step     StepID
	Terminal Terminal
}

// GoTo returns an outcome that moves to the given step.
func GoTo(id StepID) Outcome { return Outcome{Step: id} }

// Resolve returns the resolve outcome.
func Resolve() Outcome { return Outcome{Terminal: TerminalResolve} }

// Escalate returns the escalate outcome.
func Escalate() Outcome { return Outcome{Terminal: TerminalEscalate} }

// IsStep reports whether the outcome names a step.
func (o Outcome) IsStep() bool { return o.Terminal == "" }

// IsResolve reports whether the outcome is the resolve sentinel.
func (o Outcome) IsResolve() bool { return o.Terminal == TerminalResolve }

// IsEscalate reports whether the outcome is the escalate sentinel.
func (o Outcome) IsEscalate() bool { return o.Terminal == TerminalEscalate }

func (o Outcome) String() string {
	if o.IsStep() {
		return strconv.Itoa(int(o.Step))
	}
	return string(o.Terminal)
}

// ParseOutcome parses "resolve", "escalate" or a positive step number.
func ParseOutcome(s string) (Outcome, error) {
	switch Terminal(s) {
	case TerminalResolve, TerminalEscalate:
		return Outcome{Terminal: Terminal(s)}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return Outcome{}, fmt.Errorf("invalid outcome %q", s)
	}
	return GoTo(StepID(n)), nil
}

// MarshalJSON encodes step outcomes as numbers and terminals as strings.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.IsStep() {
		return json.Marshal(int(o.Step))
	}
	return json.Marshal(string(o.Terminal))
}

// UnmarshalJSON accepts a number, a numeric string or a terminal name.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n <= 0 {
			return fmt.Errorf("invalid outcome step %d", n)
		}
		*o = GoTo(StepID(n))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("outcome must be a number or string: %w", err)
	}
	parsed, err := ParseOutcome(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Option is one selectable choice attached to a step or agent message.
type Option struct {
	Text string  `json:"text"`
	Next Outcome `json:"next"`
}

// Step is one node of the troubleshooting tree.
type Step struct {
	ID      StepID   `json:"id"`
	Text    string   `json:"text"`
	Options []Option `json:"options"`
}

// Offers reports whether any option of the step leads to the outcome.
func (s *Step) Offers(o Outcome) bool {
	return OffersOutcome(s.Options, o)
}

// OffersOutcome reports whether the option list contains the outcome.
func OffersOutcome(options []Option, o Outcome) bool {
	for _, opt := range options {
		if opt.Next == o {
			return true
		}
	}
	return false
}
