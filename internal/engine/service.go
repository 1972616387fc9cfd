package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"insightline/internal/domain"
)

// Actions maps the public action names to lifecycle events.
var Actions = map[string]domain.Event{
	"submit_for_review": domain.EventSubmitForReview,
	"approve":           domain.EventApprove,
	"reject":            domain.EventReject,
	"edit":              domain.EventEdit,
	"archive":           domain.EventArchive,
	"restore":           domain.EventRestore,
	"mark_failed":       domain.EventMarkFailed,
	"retry":             domain.EventRetry,
	"delete":            domain.EventDelete,
}

// ActionName returns the public action name for ev.
func ActionName(ev domain.Event) string {
	return strings.ToLower(string(ev))
}

// ParseAction accepts an action name ("approve", "submit-for-review") or an
// event name ("APPROVE").
func ParseAction(name string) (domain.Event, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "-", "_")
	if ev, ok := Actions[key]; ok {
		return ev, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// Options configure a Service.
type Options struct {
	Platforms       []string
	BulkConcurrency int
	Logger          *slog.Logger
}

// Service is the lifecycle API used by controllers and the CLI.
type Service struct {
	exec     Executor
	bulk     *BulkExecutor
	notifier Notifier
	logger   *slog.Logger
}

func NewService(repo Repository, sink EventSink, notifier Notifier, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exec := NewExecutor(repo, sink, logger)
	if len(opts.Platforms) > 0 {
		exec.Platforms = append([]string(nil), opts.Platforms...)
	}
	return &Service{
		exec:     exec,
		bulk:     NewBulkExecutor(exec, notifier, opts.BulkConcurrency, logger),
		notifier: notifier,
		logger:   logger,
	}
}

// Executor exposes the single-entity executor, mainly for tests.
func (s *Service) Executor() Executor { return s.exec }

// Close releases the bulk worker pool.
func (s *Service) Close() { s.bulk.Close() }

// Get returns the current insight.
func (s *Service) Get(ctx context.Context, id string) (domain.Insight, error) {
	return s.exec.Load(ctx, id)
}

// LegalActions lists the events available from the insight's current state.
func (s *Service) LegalActions(ctx context.Context, id string) ([]domain.Event, error) {
	ins, err := s.exec.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	events := LegalEvents(ins.Status)
	if events == nil {
		events = []domain.Event{}
	}
	return events, nil
}

// CanTransition is a read-only precheck that includes guards.
func (s *Service) CanTransition(ctx context.Context, id string, ev domain.Event) (bool, error) {
	ins, err := s.exec.Load(ctx, id)
	if err != nil {
		return false, err
	}
	_, err = Evaluate(ins, ev, Payload{})
	return err == nil, nil
}

// Transition applies ev to one insight. A successful approval also triggers
// post generation; trigger failures are logged, not returned.
func (s *Service) Transition(ctx context.Context, id string, ev domain.Event, p Payload) (domain.Insight, error) {
	ins, err := s.exec.Execute(ctx, Request{EntityID: id, Event: ev, Payload: p})
	if err != nil {
		return domain.Insight{}, err
	}
	if ev == domain.EventApprove && s.notifier != nil {
		_ = notifyOne(ctx, s.notifier, ins.ID, s.exec.platforms(), s.logger)
	}
	return ins, nil
}

func (s *Service) SubmitForReview(ctx context.Context, id string, p Payload) (domain.Insight, error) {
	return s.Transition(ctx, id, domain.EventSubmitForReview, p)
}

func (s *Service) Approve(ctx context.Context, id string, p Payload) (domain.Insight, error) {
	return s.Transition(ctx, id, domain.EventApprove, p)
}

func (s *Service) Reject(ctx context.Context, id string, p Payload) (domain.Insight, error) {
	return s.Transition(ctx, id, domain.EventReject, p)
}

func (s *Service) EditInsight(ctx context.Context, id string, p Payload) (domain.Insight, error) {
	return s.Transition(ctx, id, domain.EventEdit, p)
}

func (s *Service) Archive(ctx context.Context, id string, p Payload) (domain.Insight, error) {
	return s.Transition(ctx, id, domain.EventArchive, p)
}

func (s *Service) Restore(ctx context.Context, id string, p Payload) (domain.Insight, error) {
	return s.Transition(ctx, id, domain.EventRestore, p)
}

func (s *Service) MarkFailed(ctx context.Context, id string, p Payload) (domain.Insight, error) {
	return s.Transition(ctx, id, domain.EventMarkFailed, p)
}

func (s *Service) Retry(ctx context.Context, id string, p Payload) (domain.Insight, error) {
	return s.Transition(ctx, id, domain.EventRetry, p)
}

func (s *Service) Delete(ctx context.Context, id string, p Payload) (domain.Insight, error) {
	return s.Transition(ctx, id, domain.EventDelete, p)
}

// BulkTransition maps action to one event and applies it to every id.
func (s *Service) BulkTransition(ctx context.Context, ids []string, action string, p Payload) (BulkResult, error) {
	if len(ids) == 0 {
		return BulkResult{}, ErrEmptyBatch
	}
	ev, err := ParseAction(action)
	if err != nil {
		return BulkResult{}, err
	}
	res, err := s.bulk.ExecuteBulk(ctx, ids, ev, p)
	if err != nil {
		return BulkResult{}, err
	}
	res.Action = ActionName(ev)
	return res, nil
}
