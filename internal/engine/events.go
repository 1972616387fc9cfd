package engine

import (
	"context"
	"time"

	"insightline/internal/domain"
)

// Domain event names.
const (
	EventStateChanged = "insight.state_changed"
	EventApproved     = "insight.approved"
	EventRejected     = "insight.rejected"
)

// DefaultPlatforms are the post-generation targets announced on approval.
var DefaultPlatforms = []string{"linkedin", "x"}

// DomainEvent is published after a committed transition.
type DomainEvent struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	EntityID      string               `json:"entity_id"`
	Event         domain.Event         `json:"event"`
	PreviousState domain.State         `json:"previous_state"`
	NewState      domain.State         `json:"new_state"`
	Timestamp     time.Time            `json:"timestamp"`
	Actor         string               `json:"actor,omitempty"`
	Context       domain.ReviewContext `json:"context"`
	Platforms     []string             `json:"platforms,omitempty"`
	Reason        string               `json:"reason,omitempty"`
}

// Update is the single write the executor hands to the repository.
type Update struct {
	// From is the state the executor read; adapters may use it for a conditional update.
	From      domain.State
	To        domain.State
	Review    domain.ReviewContext
	UpdatedAt string
}

// Repository loads and persists insights.
type Repository interface {
	FindByID(ctx context.Context, id string) (domain.Insight, error)
	Persist(ctx context.Context, id string, u Update) (domain.Insight, error)
}

// EventSink receives domain events. Implementations may deliver synchronously.
type EventSink interface {
	Publish(ctx context.Context, evt DomainEvent) error
}

// Notifier triggers post generation for an approved insight and returns a job id.
type Notifier interface {
	Notify(ctx context.Context, entityID string, platforms []string) (string, error)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, evt DomainEvent) error

func (f EventSinkFunc) Publish(ctx context.Context, evt DomainEvent) error { return f(ctx, evt) }

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, entityID string, platforms []string) (string, error)

func (f NotifierFunc) Notify(ctx context.Context, entityID string, platforms []string) (string, error) {
	return f(ctx, entityID, platforms)
}

type discardSink struct{}

func (discardSink) Publish(context.Context, DomainEvent) error { return nil }
