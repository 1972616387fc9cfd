package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"insightline/internal/domain"
)

// Executor applies one transition to one insight.
type Executor struct {
	Repo      Repository
	Sink      EventSink
	Platforms []string
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

func NewExecutor(repo Repository, sink EventSink, logger *slog.Logger) Executor {
	return Executor{
		Repo:      repo,
		Sink:      sink,
		Platforms: DefaultPlatforms,
		Logger:    logger,
		Now:       time.Now,
	}
}

func (e Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Executor) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Executor) platforms() []string {
	if len(e.Platforms) == 0 {
		return append([]string(nil), DefaultPlatforms...)
	}
	return append([]string(nil), e.Platforms...)
}

// Load returns the insight or a NotFoundError.
func (e Executor) Load(ctx context.Context, id string) (domain.Insight, error) {
	ins, err := e.Repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Insight{}, NotFoundError{ID: id}
		}
		return domain.Insight{}, err
	}
	return ins, nil
}

// Execute loads the insight, validates the event, persists the new state and
// review context in one write and then publishes the domain events.
func (e Executor) Execute(ctx context.Context, req Request) (domain.Insight, error) {
	ins, err := e.execute(ctx, req)
	if err != nil {
		transitionFailuresTotal.WithLabelValues(eventLabel(req.Event), sanitizeCode(Code(err))).Inc()
		return domain.Insight{}, err
	}
	return ins, nil
}

func (e Executor) execute(ctx context.Context, req Request) (domain.Insight, error) {
	if !req.Event.Valid() {
		return domain.Insight{}, fmt.Errorf("%w: %s", ErrUnknownAction, req.Event)
	}
	current, err := e.Load(ctx, req.EntityID)
	if err != nil {
		return domain.Insight{}, err
	}
	decision, err := Evaluate(current, req.Event, req.Payload)
	if err != nil {
		return domain.Insight{}, err
	}
	now := e.now().UTC()
	updated, err := e.Repo.Persist(ctx, current.ID, Update{
		From:      decision.From,
		To:        decision.To,
		Review:    decision.Review,
		UpdatedAt: now.Format(time.RFC3339),
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Insight{}, NotFoundError{ID: current.ID}
		}
		return domain.Insight{}, PersistenceError{ID: current.ID, Err: err}
	}
	transitionsTotal.WithLabelValues(string(req.Event), string(decision.From), string(decision.To)).Inc()
	e.publishAll(ctx, e.eventsFor(decision, updated, req.Payload, now))
	return updated, nil
}

func (e Executor) eventsFor(d Decision, ins domain.Insight, p Payload, ts time.Time) []DomainEvent {
	base := DomainEvent{
		EntityID:      ins.ID,
		Event:         d.Event,
		PreviousState: d.From,
		NewState:      d.To,
		Timestamp:     ts,
		Actor:         p.ActorID,
		Context:       ins.Review.Clone(),
	}
	changed := base
	changed.ID = e.newID()
	changed.Name = EventStateChanged
	out := []DomainEvent{changed}
	switch d.To {
	case domain.StateApproved:
		approved := base
		approved.ID = e.newID()
		approved.Name = EventApproved
		approved.Platforms = e.platforms()
		out = append(out, approved)
	case domain.StateRejected:
		rejected := base
		rejected.ID = e.newID()
		rejected.Name = EventRejected
		if ins.Review.RejectionReason != nil {
			rejected.Reason = *ins.Review.RejectionReason
		}
		out = append(out, rejected)
	}
	return out
}

// publishAll delivers events in order. Delivery failures never fail the
// transition; they are logged and counted.
func (e Executor) publishAll(ctx context.Context, evts []DomainEvent) {
	sink := e.Sink
	if sink == nil {
		sink = discardSink{}
	}
	for _, evt := range evts {
		if err := publishOne(ctx, sink, evt); err != nil {
			eventPublishFailuresTotal.WithLabelValues(evt.Name).Inc()
			e.logger().WarnContext(ctx, "event publish failed",
				"event", evt.Name,
				"insight_id", evt.EntityID,
				"new_state", evt.NewState,
				"error", err)
		}
	}
}

func publishOne(ctx context.Context, sink EventSink, evt DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()
	return sink.Publish(ctx, evt)
}
