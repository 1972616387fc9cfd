package server

import (
	"encoding/json"
	"time"

	"insightline/internal/domain"
	"insightline/internal/engine"
)

// Request payloads

type CreateInsightRequest struct {
	ID       *string `json:"id,omitempty"`
	Title    string  `json:"title" minLength:"1"`
	Summary  string  `json:"summary,omitempty"`
	Category string  `json:"category,omitempty"`
}

// TransitionRequest carries the optional annotations of a lifecycle action.
type TransitionRequest struct {
	ApprovedBy string   `json:"approved_by,omitempty"`
	ReviewedBy string   `json:"reviewed_by,omitempty"`
	Score      *float64 `json:"score,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

func (r TransitionRequest) payload(actorID string) engine.Payload {
	return engine.Payload{
		ActorID:    actorID,
		ApprovedBy: r.ApprovedBy,
		ReviewedBy: r.ReviewedBy,
		Score:      r.Score,
		Reason:     r.Reason,
	}
}

type BulkRequest struct {
	IDs        []string `json:"ids"`
	Action     string   `json:"action"`
	ApprovedBy string   `json:"approved_by,omitempty"`
	ReviewedBy string   `json:"reviewed_by,omitempty"`
	Score      *float64 `json:"score,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

func (r BulkRequest) payload(actorID string) engine.Payload {
	return TransitionRequest{
		ApprovedBy: r.ApprovedBy,
		ReviewedBy: r.ReviewedBy,
		Score:      r.Score,
		Reason:     r.Reason,
	}.payload(actorID)
}

// Responses

type InsightResponse struct {
	ID        string               `json:"id"`
	Title     string               `json:"title"`
	Summary   string               `json:"summary,omitempty"`
	Category  string               `json:"category,omitempty"`
	Status    string               `json:"status" enum:"DRAFT,NEEDS_REVIEW,APPROVED,REJECTED,ARCHIVED,FAILED,deleted"`
	Review    domain.ReviewContext `json:"review"`
	Actions   []string             `json:"actions"`
	CreatedAt string               `json:"created_at" format:"date-time"`
	UpdatedAt string               `json:"updated_at" format:"date-time"`
}

type paginatedInsights struct {
	Items      []InsightResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type ActionsResponse struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Actions []string `json:"actions"`
	Events  []string `json:"events"`
}

type CanResponse struct {
	ID      string `json:"id"`
	Action  string `json:"action"`
	Allowed bool   `json:"allowed"`
}

type BulkFailureResponse struct {
	ID      string `json:"id"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

type BulkResponse struct {
	Action               string                `json:"action"`
	Event                string                `json:"event"`
	TotalRequested       int                   `json:"total_requested"`
	Succeeded            []string              `json:"succeeded"`
	Failed               []BulkFailureResponse `json:"failed"`
	Notified             int                   `json:"notified"`
	NotificationFailures int                   `json:"notification_failures"`
}

type EventResponse struct {
	ID        int64          `json:"id"`
	EventID   string         `json:"event_id"`
	Type      string         `json:"type"`
	EntityID  string         `json:"entity_id"`
	ActorID   string         `json:"actor_id,omitempty"`
	FromState string         `json:"from_state,omitempty"`
	ToState   string         `json:"to_state,omitempty"`
	TS        string         `json:"ts" format:"date-time"`
	Payload   map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// StreamEvent is one live domain event on the SSE stream.
type StreamEvent struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	EntityID      string               `json:"entity_id"`
	Event         string               `json:"event"`
	PreviousState string               `json:"previous_state"`
	NewState      string               `json:"new_state"`
	Timestamp     string               `json:"timestamp" format:"date-time"`
	Actor         string               `json:"actor,omitempty"`
	Context       domain.ReviewContext `json:"context"`
	Platforms     []string             `json:"platforms,omitempty"`
	Reason        string               `json:"reason,omitempty"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source"`
}

// Mappers

func insightResponse(ins domain.Insight) InsightResponse {
	return InsightResponse{
		ID:        ins.ID,
		Title:     ins.Title,
		Summary:   ins.Summary,
		Category:  ins.Category,
		Status:    string(ins.Status),
		Review:    ins.Review,
		Actions:   actionNames(engine.LegalEvents(ins.Status)),
		CreatedAt: ins.CreatedAt,
		UpdatedAt: ins.UpdatedAt,
	}
}

func actionNames(events []domain.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, engine.ActionName(ev))
	}
	return out
}

func eventNames(events []domain.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, string(ev))
	}
	return out
}

func bulkResponse(res engine.BulkResult) BulkResponse {
	out := BulkResponse{
		Action:               res.Action,
		Event:                string(res.Event),
		TotalRequested:       res.TotalRequested,
		Succeeded:            nonNilSlice(res.Succeeded),
		Failed:               make([]BulkFailureResponse, 0, len(res.Failed)),
		Notified:             res.Notified,
		NotificationFailures: res.NotificationFailures,
	}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, BulkFailureResponse{ID: f.ID, Reason: f.Reason, Message: f.Message})
	}
	return out
}

func eventResponse(evt domain.JournalEvent) EventResponse {
	payload := map[string]any{}
	if evt.Payload != "" {
		if err := json.Unmarshal([]byte(evt.Payload), &payload); err != nil {
			payload = map[string]any{"raw": evt.Payload}
		}
	}
	return EventResponse{
		ID:        evt.ID,
		EventID:   evt.EventID,
		Type:      evt.Type,
		EntityID:  evt.EntityID,
		ActorID:   evt.ActorID,
		FromState: evt.FromState,
		ToState:   evt.ToState,
		TS:        evt.TS,
		Payload:   payload,
	}
}

func streamEvent(evt engine.DomainEvent) StreamEvent {
	return StreamEvent{
		ID:            evt.ID,
		Name:          evt.Name,
		EntityID:      evt.EntityID,
		Event:         string(evt.Event),
		PreviousState: string(evt.PreviousState),
		NewState:      string(evt.NewState),
		Timestamp:     evt.Timestamp.UTC().Format(time.RFC3339Nano),
		Actor:         evt.Actor,
		Context:       evt.Context,
		Platforms:     evt.Platforms,
		Reason:        evt.Reason,
	}
}

func nonNilSlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
