package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"insightline/internal/domain"
	"insightline/internal/engine"
)

// Repo is the SQLite-backed insight store. It implements engine.Repository.
type Repo struct {
	DB *sql.DB
}

// ErrNotFound aliases the domain sentinel so callers can match either.
var ErrNotFound = domain.ErrNotFound

var _ engine.Repository = Repo{}

const insightColumns = `id,title,COALESCE(summary,''),COALESCE(category,''),status,
reviewed_by,rejection_reason,approved_by,score,failure_reason,archived_reason,retry_count,
created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInsight(row rowScanner) (domain.Insight, error) {
	var ins domain.Insight
	var status string
	var reviewedBy, rejection, approvedBy, failure, archived sql.NullString
	var score sql.NullFloat64
	err := row.Scan(&ins.ID, &ins.Title, &ins.Summary, &ins.Category, &status,
		&reviewedBy, &rejection, &approvedBy, &score, &failure, &archived, &ins.Review.RetryCount,
		&ins.CreatedAt, &ins.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Insight{}, ErrNotFound
	}
	if err != nil {
		return domain.Insight{}, err
	}
	ins.Status = domain.State(status)
	ins.Review.ReviewedBy = nullStringPtr(reviewedBy)
	ins.Review.RejectionReason = nullStringPtr(rejection)
	ins.Review.ApprovedBy = nullStringPtr(approvedBy)
	ins.Review.FailureReason = nullStringPtr(failure)
	ins.Review.ArchivedReason = nullStringPtr(archived)
	if score.Valid {
		v := score.Float64
		ins.Review.Score = &v
	}
	return ins, nil
}

// InsertInsight stores a new insight. Status defaults to DRAFT and timestamps to now.
func (r Repo) InsertInsight(ctx context.Context, ins domain.Insight) (domain.Insight, error) {
	if strings.TrimSpace(ins.ID) == "" {
		return domain.Insight{}, errors.New("id required")
	}
	if strings.TrimSpace(ins.Title) == "" {
		return domain.Insight{}, errors.New("title required")
	}
	if ins.Status == "" {
		ins.Status = domain.StateDraft
	}
	if !ins.Status.Valid() || ins.Status.Terminal() {
		return domain.Insight{}, fmt.Errorf("invalid initial status %q", ins.Status)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if ins.CreatedAt == "" {
		ins.CreatedAt = now
	}
	if ins.UpdatedAt == "" {
		ins.UpdatedAt = ins.CreatedAt
	}
	rc := ins.Review
	_, err := r.DB.ExecContext(ctx, `INSERT INTO insights(id,title,summary,category,status,
reviewed_by,rejection_reason,approved_by,score,failure_reason,archived_reason,retry_count,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		ins.ID, ins.Title, nullable(ins.Summary), nullable(ins.Category), string(ins.Status),
		nullableStringPtr(rc.ReviewedBy), nullableStringPtr(rc.RejectionReason), nullableStringPtr(rc.ApprovedBy),
		nullableFloatPtr(rc.Score), nullableStringPtr(rc.FailureReason), nullableStringPtr(rc.ArchivedReason),
		rc.RetryCount, ins.CreatedAt, ins.UpdatedAt)
	if err != nil {
		return domain.Insight{}, fmt.Errorf("insert insight %s: %w", ins.ID, err)
	}
	return ins, nil
}

func (r Repo) FindByID(ctx context.Context, id string) (domain.Insight, error) {
	return scanInsight(r.DB.QueryRowContext(ctx, `SELECT `+insightColumns+` FROM insights WHERE id=?`, id))
}

// Persist writes status and review context in one statement, conditional on
// the row still being in u.From. A DELETE event removes the row and returns
// its last image with status "deleted".
func (r Repo) Persist(ctx context.Context, id string, u engine.Update) (domain.Insight, error) {
	var (
		ins domain.Insight
		err error
	)
	if u.To == domain.StateDeleted {
		ins, err = scanInsight(r.DB.QueryRowContext(ctx,
			`DELETE FROM insights WHERE id=? AND status=? RETURNING `+insightColumns, id, string(u.From)))
		if err == nil {
			ins.Status = domain.StateDeleted
			ins.Review = u.Review.Clone()
			ins.UpdatedAt = u.UpdatedAt
		}
	} else {
		rc := u.Review
		ins, err = scanInsight(r.DB.QueryRowContext(ctx, `UPDATE insights SET status=?,
reviewed_by=?,rejection_reason=?,approved_by=?,score=?,failure_reason=?,archived_reason=?,retry_count=?,updated_at=?
WHERE id=? AND status=? RETURNING `+insightColumns,
			string(u.To),
			nullableStringPtr(rc.ReviewedBy), nullableStringPtr(rc.RejectionReason), nullableStringPtr(rc.ApprovedBy),
			nullableFloatPtr(rc.Score), nullableStringPtr(rc.FailureReason), nullableStringPtr(rc.ArchivedReason),
			rc.RetryCount, u.UpdatedAt, id, string(u.From)))
	}
	if errors.Is(err, ErrNotFound) {
		return domain.Insight{}, r.missOrConflict(ctx, id)
	}
	if err != nil {
		return domain.Insight{}, fmt.Errorf("persist insight %s: %w", id, err)
	}
	return ins, nil
}

func (r Repo) missOrConflict(ctx context.Context, id string) error {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM insights WHERE id=?`, id).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return domain.ErrConflict
}

type InsightFilters struct {
	Status          domain.State
	Category        string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListInsights returns insights newest first with keyset pagination.
func (r Repo) ListInsights(ctx context.Context, f InsightFilters) ([]domain.Insight, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + insightColumns + ` FROM insights WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Insight
	for rows.Next() {
		ins, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, ins)
	}
	return res, rows.Err()
}

func (r Repo) CountByStatus(ctx context.Context) (map[domain.State]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM insights GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.State]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[domain.State(status)] = count
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
