package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when an insight id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional update lost a race with another writer.
	ErrConflict = errors.New("conflict")
)

// State is the lifecycle status of an insight.
type State string

const (
	StateDraft       State = "DRAFT"
	StateNeedsReview State = "NEEDS_REVIEW"
	StateApproved    State = "APPROVED"
	StateRejected    State = "REJECTED"
	StateArchived    State = "ARCHIVED"
	StateFailed      State = "FAILED"
	StateDeleted     State = "deleted"
)

// States lists every lifecycle state in declaration order.
var States = []State{
	StateDraft,
	StateNeedsReview,
	StateApproved,
	StateRejected,
	StateArchived,
	StateFailed,
	StateDeleted,
}

func (s State) Valid() bool {
	for _, st := range States {
		if st == s {
			return true
		}
	}
	return false
}

func (s State) Terminal() bool { return s == StateDeleted }

// Event names a lifecycle transition.
type Event string

const (
	EventSubmitForReview Event = "SUBMIT_FOR_REVIEW"
	EventApprove         Event = "APPROVE"
	EventReject          Event = "REJECT"
	EventEdit            Event = "EDIT"
	EventArchive         Event = "ARCHIVE"
	EventRestore         Event = "RESTORE"
	EventMarkFailed      Event = "MARK_FAILED"
	EventRetry           Event = "RETRY"
	EventDelete          Event = "DELETE"
)

// Events lists every lifecycle event in declaration order.
var Events = []Event{
	EventSubmitForReview,
	EventApprove,
	EventReject,
	EventEdit,
	EventArchive,
	EventRestore,
	EventMarkFailed,
	EventRetry,
	EventDelete,
}

func (e Event) Valid() bool {
	for _, ev := range Events {
		if ev == e {
			return true
		}
	}
	return false
}

// ReviewContext holds the annotations written by lifecycle transitions.
type ReviewContext struct {
	ReviewedBy      *string  `json:"reviewed_by"`
	RejectionReason *string  `json:"rejection_reason"`
	ApprovedBy      *string  `json:"approved_by"`
	Score           *float64 `json:"score"`
	FailureReason   *string  `json:"failure_reason"`
	ArchivedReason  *string  `json:"archived_reason"`
	RetryCount      int      `json:"retry_count"`
}

// Clone returns a deep copy so callers can mutate without aliasing pointers.
func (c ReviewContext) Clone() ReviewContext {
	return ReviewContext{
		ReviewedBy:      cloneString(c.ReviewedBy),
		RejectionReason: cloneString(c.RejectionReason),
		ApprovedBy:      cloneString(c.ApprovedBy),
		Score:           cloneFloat(c.Score),
		FailureReason:   cloneString(c.FailureReason),
		ArchivedReason:  cloneString(c.ArchivedReason),
		RetryCount:      c.RetryCount,
	}
}

type Insight struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Summary   string        `json:"summary,omitempty"`
	Category  string        `json:"category,omitempty"`
	Status    State         `json:"status" enum:"DRAFT,NEEDS_REVIEW,APPROVED,REJECTED,ARCHIVED,FAILED,deleted"`
	Review    ReviewContext `json:"review"`
	CreatedAt string        `json:"created_at" format:"date-time"`
	UpdatedAt string        `json:"updated_at" format:"date-time"`
}

// Clone returns a deep copy of the insight.
func (i Insight) Clone() Insight {
	out := i
	out.Review = i.Review.Clone()
	return out
}

type JournalEvent struct {
	ID        int64  `json:"id"`
	EventID   string `json:"event_id"`
	TS        string `json:"ts" format:"date-time"`
	Type      string `json:"type"`
	EntityID  string `json:"entity_id"`
	ActorID   string `json:"actor_id,omitempty"`
	FromState string `json:"from_state,omitempty"`
	ToState   string `json:"to_state,omitempty"`
	Payload   string `json:"payload_json"`
}

type GenerationJob struct {
	ID        string   `json:"id"`
	InsightID string   `json:"insight_id"`
	Platforms []string `json:"platforms"`
	Status    string   `json:"status"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string   `json:"id"`
	ActorID   string   `json:"actor_id"`
	Name      string   `json:"name,omitempty"`
	KeyHash   string   `json:"key_hash"`
	Roles     []string `json:"roles,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
