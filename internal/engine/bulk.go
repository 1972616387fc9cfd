package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alitto/pond/v2"

	"insightline/internal/domain"
)

// DefaultBulkConcurrency bounds the per-id transitions running at once.
const DefaultBulkConcurrency = 8

var errPanic = errors.New("panic recovered")

// BulkFailure describes one id that did not transition.
type BulkFailure struct {
	ID      string `json:"id"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

// BulkResult reports the outcome of every id in a batch.
type BulkResult struct {
	Action               string        `json:"action,omitempty"`
	Event                domain.Event  `json:"event"`
	TotalRequested       int           `json:"total_requested"`
	Succeeded            []string      `json:"succeeded"`
	Failed               []BulkFailure `json:"failed"`
	Notified             int           `json:"notified"`
	NotificationFailures int           `json:"notification_failures"`
}

// BulkExecutor runs one event over many ids on a bounded worker pool.
type BulkExecutor struct {
	Executor  Executor
	Notifier  Notifier
	Logger    *slog.Logger
	Pool      pond.Pool
	Platforms []string
}

// NewBulkExecutor creates a bulk executor with its own pool. Call Close to release it.
func NewBulkExecutor(exec Executor, notifier Notifier, concurrency int, logger *slog.Logger) *BulkExecutor {
	if concurrency < 1 {
		concurrency = DefaultBulkConcurrency
	}
	return &BulkExecutor{
		Executor:  exec,
		Notifier:  notifier,
		Logger:    logger,
		Pool:      pond.NewPool(concurrency),
		Platforms: exec.Platforms,
	}
}

// Close waits for in-flight work and stops the pool.
func (b *BulkExecutor) Close() {
	if b.Pool != nil {
		b.Pool.StopAndWait()
	}
}

func (b *BulkExecutor) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

type itemOutcome struct {
	err error
}

// ExecuteBulk applies ev to every id and waits for all of them to settle.
// Only an empty batch fails the call; per-id errors are reported in the result.
func (b *BulkExecutor) ExecuteBulk(ctx context.Context, ids []string, ev domain.Event, p Payload) (BulkResult, error) {
	if len(ids) == 0 {
		return BulkResult{}, ErrEmptyBatch
	}
	if !ev.Valid() {
		return BulkResult{}, fmt.Errorf("%w: %s", ErrUnknownAction, ev)
	}
	start := time.Now()
	defer func() {
		bulkDuration.WithLabelValues(eventLabel(ev)).Observe(time.Since(start).Seconds())
	}()

	outcomes := make([]itemOutcome, len(ids))
	seen := make(map[string]struct{}, len(ids))
	group := b.Pool.NewGroup()
	for i, id := range ids {
		if _, dup := seen[id]; dup {
			outcomes[i] = itemOutcome{err: fmt.Errorf("%w: %s", errDuplicate, id)}
			continue
		}
		seen[id] = struct{}{}
		group.Submit(func() {
			outcomes[i] = b.runOne(ctx, id, ev, p)
		})
	}
	// runOne recovers its own panics, so Wait has nothing further to report.
	_ = group.Wait()

	res := BulkResult{
		Event:          ev,
		TotalRequested: len(ids),
		Succeeded:      []string{},
		Failed:         []BulkFailure{},
	}
	for i, out := range outcomes {
		if out.err == nil {
			res.Succeeded = append(res.Succeeded, ids[i])
			continue
		}
		res.Failed = append(res.Failed, BulkFailure{
			ID:      ids[i],
			Reason:  Code(out.err),
			Message: out.err.Error(),
		})
	}
	bulkItemsTotal.WithLabelValues(eventLabel(ev), "succeeded").Add(float64(len(res.Succeeded)))
	bulkItemsTotal.WithLabelValues(eventLabel(ev), "failed").Add(float64(len(res.Failed)))

	if ev == domain.EventApprove {
		res.Notified, res.NotificationFailures = b.notifyApproved(ctx, res.Succeeded)
	}
	b.logger().InfoContext(ctx, "bulk transition settled",
		"event", ev,
		"requested", res.TotalRequested,
		"succeeded", len(res.Succeeded),
		"failed", len(res.Failed),
		"notification_failures", res.NotificationFailures)
	return res, nil
}

func (b *BulkExecutor) runOne(ctx context.Context, id string, ev domain.Event, p Payload) (out itemOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = itemOutcome{err: fmt.Errorf("%w: %v", errPanic, r)}
		}
	}()
	_, err := b.Executor.Execute(ctx, Request{EntityID: id, Event: ev, Payload: p})
	return itemOutcome{err: err}
}

// notifyApproved fires one post-generation trigger per approved id. The
// transitions are already committed, so failures are only logged and counted.
func (b *BulkExecutor) notifyApproved(ctx context.Context, ids []string) (notified, failed int) {
	if b.Notifier == nil || len(ids) == 0 {
		return 0, 0
	}
	platforms := b.platforms()
	errs := make([]error, len(ids))
	group := b.Pool.NewGroup()
	for i, id := range ids {
		group.Submit(func() {
			errs[i] = notifyOne(ctx, b.Notifier, id, platforms, b.logger())
		})
	}
	_ = group.Wait()
	for _, err := range errs {
		if err != nil {
			failed++
			continue
		}
		notified++
	}
	return notified, failed
}

func (b *BulkExecutor) platforms() []string {
	if len(b.Platforms) == 0 {
		return append([]string(nil), DefaultPlatforms...)
	}
	return append([]string(nil), b.Platforms...)
}

func notifyOne(ctx context.Context, n Notifier, id string, platforms []string, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
		if err != nil {
			notifyFailuresTotal.Inc()
			logger.WarnContext(ctx, "post generation trigger failed", "insight_id", id, "error", err)
		}
	}()
	jobID, err := n.Notify(ctx, id, platforms)
	if err != nil {
		return err
	}
	logger.DebugContext(ctx, "post generation triggered", "insight_id", id, "job_id", jobID, "platforms", strings.Join(platforms, ","))
	return nil
}
