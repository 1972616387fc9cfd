package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"insightline/internal/domain"
	"insightline/internal/engine"
	"insightline/internal/repo"
)

// Queue records a generation job row per approval for a worker to pick up.
type Queue struct {
	Repo repo.Repo
	Now  func() time.Time
}

var _ engine.Notifier = Queue{}

func (q Queue) Notify(ctx context.Context, insightID string, platforms []string) (string, error) {
	now := time.Now
	if q.Now != nil {
		now = q.Now
	}
	job := domain.GenerationJob{
		ID:        uuid.NewString(),
		InsightID: insightID,
		Platforms: append([]string(nil), platforms...),
		Status:    "queued",
		CreatedAt: now().UTC().Format(time.RFC3339),
	}
	if err := q.Repo.InsertGenerationJob(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// Discard accepts every request without doing anything.
type Discard struct{}

func (Discard) Notify(context.Context, string, []string) (string, error) { return "", nil }
