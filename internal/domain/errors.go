package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStep indicates a catalog/engine mismatch.
	ErrUnknownStep = errors.New("unknown step")
	// ErrNotFound indicates the requested chat does not exist.
	ErrNotFound = errors.New("chat not found")
	// ErrUnauthorized indicates the chat belongs to another owner.
	ErrUnauthorized = errors.New("unauthorized access to chat")
	// ErrChatBusy indicates another mutation of the same chat is in flight.
	ErrChatBusy = errors.New("chat update already in progress")
	// ErrOptionNotOffered indicates a step outcome that was never offered.
	ErrOptionNotOffered = errors.New("option not offered")
	// ErrEmptyMessage indicates a blank free-text message.
	ErrEmptyMessage = errors.New("message text is required")
)

// UnknownStepError names the step that could not be resolved.
type UnknownStepError struct {
	Step StepID
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("unknown step %d", e.Step)
}

// Is makes errors.Is(err, ErrUnknownStep) match.
func (e *UnknownStepError) Is(target error) bool {
	return target == ErrUnknownStep
}
