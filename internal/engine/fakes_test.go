package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"

	"insightline/internal/domain"
	"insightline/internal/engine"
)

// memRepo is an in-memory engine.Repository.
type memRepo struct {
	mu         sync.Mutex
	items      map[string]domain.Insight
	persistErr map[string]error
	writes     int
}

func newMemRepo(items ...domain.Insight) *memRepo {
	r := &memRepo{items: map[string]domain.Insight{}, persistErr: map[string]error{}}
	for _, it := range items {
		r.items[it.ID] = it.Clone()
	}
	return r
}

func (r *memRepo) FindByID(_ context.Context, id string) (domain.Insight, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return domain.Insight{}, domain.ErrNotFound
	}
	return it.Clone(), nil
}

func (r *memRepo) Persist(_ context.Context, id string, u engine.Update) (domain.Insight, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.persistErr[id]; err != nil {
		return domain.Insight{}, err
	}
	it, ok := r.items[id]
	if !ok {
		return domain.Insight{}, domain.ErrNotFound
	}
	if it.Status != u.From {
		return domain.Insight{}, domain.ErrConflict
	}
	r.writes++
	it.Status = u.To
	it.Review = u.Review.Clone()
	it.UpdatedAt = u.UpdatedAt
	if u.To == domain.StateDeleted {
		delete(r.items, id)
		return it, nil
	}
	r.items[id] = it
	return it.Clone(), nil
}

func (r *memRepo) get(t *testing.T, id string) domain.Insight {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		t.Fatalf("insight %s missing from repo", id)
	}
	return it.Clone()
}

// recordingSink captures published events in order.
type recordingSink struct {
	mu     sync.Mutex
	events []engine.DomainEvent
	err    error
}

func (s *recordingSink) Publish(_ context.Context, evt engine.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, evt)
	return nil
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Name
	}
	return out
}

func (s *recordingSink) byName(name string) []engine.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []engine.DomainEvent
	for _, e := range s.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// recordingNotifier captures post-generation triggers.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (n *recordingNotifier) Notify(_ context.Context, id string, platforms []string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, id)
	if n.fail[id] {
		return "", errors.New("post generation unavailable")
	}
	return fmt.Sprintf("job-%s-%d", id, len(platforms)), nil
}

func (n *recordingNotifier) called() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func insight(id string, status domain.State) domain.Insight {
	return domain.Insight{
		ID:        id,
		Title:     "Insight " + id,
		Status:    status,
		CreatedAt: "2024-01-01T00:00:00Z",
		UpdatedAt: "2024-01-01T00:00:00Z",
	}
}

func strp(s string) *string { return &s }

type testEnv struct {
	Repo     *memRepo
	Sink     *recordingSink
	Notifier *recordingNotifier
	Service  *engine.Service
}

func newTestEnv(t *testing.T, items ...domain.Insight) testEnv {
	t.Helper()
	repo := newMemRepo(items...)
	sink := &recordingSink{}
	notifier := &recordingNotifier{fail: map[string]bool{}}
	svc := engine.NewService(repo, sink, notifier, engine.Options{
		BulkConcurrency: 4,
		Logger:          slogt.New(t),
	})
	t.Cleanup(svc.Close)
	return testEnv{Repo: repo, Sink: sink, Notifier: notifier, Service: svc}
}
