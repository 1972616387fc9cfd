package engine

import (
	"errors"
	"fmt"
	"strings"

	"insightline/internal/domain"
)

// Error codes reported in bulk results, API error bodies and metric labels.
const (
	CodeNotFound          = "NotFound"
	CodeIllegalTransition = "IllegalTransition"
	CodeGuardRejected     = "GuardRejected"
	CodePersistence       = "PersistenceFailure"
	CodeConflict          = "Conflict"
	CodeEmptyBatch        = "EmptyBatch"
	CodeUnknownAction     = "UnknownAction"
	CodeDuplicate         = "DuplicateInBatch"
	CodeInternal          = "Internal"
)

var (
	ErrEmptyBatch    = errors.New("bulk operation requires at least one insight id")
	ErrUnknownAction = errors.New("unknown action")
	errDuplicate     = errors.New("insight id repeated in batch")
)

// NotFoundError reports a missing insight.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("insight %s not found", e.ID)
}

func (e NotFoundError) Is(target error) bool {
	return target == domain.ErrNotFound
}

// IllegalTransitionError reports an event that is not defined for the current state.
type IllegalTransitionError struct {
	From  domain.State
	Event domain.Event
	Legal []domain.Event
}

func (e IllegalTransitionError) Error() string {
	legal := make([]string, len(e.Legal))
	for i, ev := range e.Legal {
		legal[i] = string(ev)
	}
	if len(legal) == 0 {
		return fmt.Sprintf("illegal transition: %s + %s (no actions available)", e.From, e.Event)
	}
	return fmt.Sprintf("illegal transition: %s + %s (available: %s)", e.From, e.Event, strings.Join(legal, ", "))
}

// GuardRejectedError reports a legal event blocked by a guard condition.
type GuardRejectedError struct {
	Event  domain.Event
	Reason string
}

func (e GuardRejectedError) Error() string {
	return fmt.Sprintf("cannot %s: %s", strings.ToLower(string(e.Event)), e.Reason)
}

// PersistenceError wraps a repository write failure.
type PersistenceError struct {
	ID  string
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("persist insight %s: %v", e.ID, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

// Code classifies err into one of the Code* constants.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var (
		illegal IllegalTransitionError
		guard   GuardRejectedError
		persist PersistenceError
	)
	switch {
	case errors.Is(err, ErrEmptyBatch):
		return CodeEmptyBatch
	case errors.Is(err, ErrUnknownAction):
		return CodeUnknownAction
	case errors.Is(err, errDuplicate):
		return CodeDuplicate
	case errors.As(err, &illegal):
		return CodeIllegalTransition
	case errors.As(err, &guard):
		return CodeGuardRejected
	case errors.As(err, &persist):
		if errors.Is(persist.Err, domain.ErrConflict) {
			return CodeConflict
		}
		return CodePersistence
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}
