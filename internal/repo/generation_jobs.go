package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"insightline/internal/domain"
)

// InsertGenerationJob records a post-generation request for an approved insight.
func (r Repo) InsertGenerationJob(ctx context.Context, job domain.GenerationJob) error {
	if job.ID == "" {
		return errors.New("id required")
	}
	if job.InsightID == "" {
		return errors.New("insight_id required")
	}
	if job.Status == "" {
		job.Status = "queued"
	}
	if job.CreatedAt == "" {
		job.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	platforms := job.Platforms
	if platforms == nil {
		platforms = []string{}
	}
	data, err := json.Marshal(platforms)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO generation_jobs(id, insight_id, platforms_json, status, created_at) VALUES (?,?,?,?,?)`,
		job.ID, job.InsightID, string(data), job.Status, job.CreatedAt)
	return err
}

// ListGenerationJobs returns jobs oldest first, optionally for one insight.
func (r Repo) ListGenerationJobs(ctx context.Context, insightID string) ([]domain.GenerationJob, error) {
	query := `SELECT id, insight_id, platforms_json, status, created_at FROM generation_jobs`
	var args []any
	if insightID != "" {
		query += ` WHERE insight_id=?`
		args = append(args, insightID)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []domain.GenerationJob
	for rows.Next() {
		var job domain.GenerationJob
		var platforms string
		if err := rows.Scan(&job.ID, &job.InsightID, &platforms, &job.Status, &job.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(platforms), &job.Platforms); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
