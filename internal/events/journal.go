package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"insightline/internal/domain"
	"insightline/internal/engine"
)

// Journal appends domain events to the SQLite events table.
type Journal struct {
	DB  *sql.DB
	Now func() time.Time
}

var _ engine.EventSink = Journal{}

// Publish stores evt as one journal row keyed by its event id.
func (j Journal) Publish(ctx context.Context, evt engine.DomainEvent) error {
	ts := evt.Timestamp
	if ts.IsZero() {
		now := time.Now
		if j.Now != nil {
			now = j.Now
		}
		ts = now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = j.DB.ExecContext(ctx, `INSERT INTO events(event_id,ts,type,entity_id,actor_id,from_state,to_state,payload_json) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(event_id) DO NOTHING`,
		evt.ID, ts.UTC().Format(time.RFC3339Nano), evt.Name, evt.EntityID, nullable(evt.Actor),
		nullable(string(evt.PreviousState)), nullable(string(evt.NewState)), string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", evt.Name, err)
	}
	return nil
}

type Filter struct {
	Type     string
	EntityID string
	Limit    int
	// Before returns rows with ids lower than the cursor.
	Before int64
}

const journalColumns = `id,event_id,ts,type,entity_id,COALESCE(actor_id,''),COALESCE(from_state,''),COALESCE(to_state,''),payload_json`

// Latest returns the newest events first.
func (j Journal) Latest(ctx context.Context, f Filter) ([]domain.JournalEvent, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Before > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Before)
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id DESC LIMIT ?`, journalColumns, strings.Join(clauses, " AND "))
	args = append(args, f.Limit)
	return j.query(ctx, query, args...)
}

// After returns events with ids greater than cursor in ascending order.
func (j Journal) After(ctx context.Context, cursor int64, limit int) ([]domain.JournalEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, journalColumns)
	return j.query(ctx, query, cursor, limit)
}

// LatestID returns the id of the newest journal row, 0 when empty.
func (j Journal) LatestID(ctx context.Context) (int64, error) {
	var id int64
	if err := j.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (j Journal) query(ctx context.Context, query string, args ...any) ([]domain.JournalEvent, error) {
	rows, err := j.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.JournalEvent
	for rows.Next() {
		var e domain.JournalEvent
		if err := rows.Scan(&e.ID, &e.EventID, &e.TS, &e.Type, &e.EntityID, &e.ActorID, &e.FromState, &e.ToState, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
