package engine

import (
	"fmt"

	"insightline/internal/domain"
)

// MaxRetries caps how many times a failed insight may be retried.
const MaxRetries = 3

const (
	defaultActor           = "system"
	defaultRejectionReason = "Rejected during review"
	defaultArchiveReason   = "Insight archived"
	defaultFailureReason   = "Processing failed"
)

// Payload carries the event-specific inputs of a transition request.
type Payload struct {
	// ActorID is the authenticated caller; used when ApprovedBy/ReviewedBy are empty.
	ActorID    string   `json:"actor_id,omitempty"`
	ApprovedBy string   `json:"approved_by,omitempty"`
	ReviewedBy string   `json:"reviewed_by,omitempty"`
	Score      *float64 `json:"score,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// Request is the unit of work handed to the executor.
type Request struct {
	EntityID string
	Event    domain.Event
	Payload  Payload
}

// GuardResult is the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Decision is the pure outcome of evaluating an event against an insight.
type Decision struct {
	From   domain.State
	To     domain.State
	Event  domain.Event
	Review domain.ReviewContext
}

// CanRetry evaluates the retry cap.
func CanRetry(review domain.ReviewContext) GuardResult {
	if review.RetryCount >= MaxRetries {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("retry limit reached (%d of %d attempts used)", review.RetryCount, MaxRetries),
		}
	}
	return GuardResult{Allowed: true}
}

func guardFor(tr Transition, review domain.ReviewContext) GuardResult {
	if !tr.Guarded {
		return GuardResult{Allowed: true}
	}
	switch tr.Event {
	case domain.EventRetry:
		return CanRetry(review)
	default:
		return GuardResult{Allowed: true}
	}
}

// Evaluate decides whether ev may be applied to ins and computes the resulting
// review context. It never mutates ins.
func Evaluate(ins domain.Insight, ev domain.Event, p Payload) (Decision, error) {
	tr, ok := TransitionFor(ins.Status, ev)
	if !ok {
		return Decision{}, IllegalTransitionError{From: ins.Status, Event: ev, Legal: LegalEvents(ins.Status)}
	}
	if g := guardFor(tr, ins.Review); !g.Allowed {
		return Decision{}, GuardRejectedError{Event: ev, Reason: g.Reason}
	}
	return Decision{
		From:   tr.From,
		To:     tr.To,
		Event:  ev,
		Review: applyAction(ins.Review.Clone(), ev, p),
	}, nil
}

func applyAction(rc domain.ReviewContext, ev domain.Event, p Payload) domain.ReviewContext {
	switch ev {
	case domain.EventApprove:
		rc.ApprovedBy = strPtr(firstNonEmpty(p.ApprovedBy, p.ActorID, defaultActor))
		rc.Score = nil
		if p.Score != nil {
			v := *p.Score
			rc.Score = &v
		}
		rc.ReviewedBy = nil
		rc.RejectionReason = nil
		rc.FailureReason = nil
	case domain.EventReject:
		rc.ReviewedBy = strPtr(firstNonEmpty(p.ReviewedBy, p.ActorID, defaultActor))
		rc.RejectionReason = strPtr(firstNonEmpty(p.Reason, defaultRejectionReason))
		rc.ApprovedBy = nil
		rc.Score = nil
	case domain.EventArchive:
		reason := firstNonEmpty(p.Reason, defaultArchiveReason) + archiveProvenance(rc)
		rc.ArchivedReason = &reason
	case domain.EventMarkFailed:
		rc.FailureReason = strPtr(firstNonEmpty(p.Reason, defaultFailureReason))
		rc.RetryCount++
	}
	return rc
}

// archiveProvenance picks exactly one suffix, in priority order.
func archiveProvenance(rc domain.ReviewContext) string {
	switch {
	case isSet(rc.ApprovedBy):
		return " (was approved)"
	case isSet(rc.ReviewedBy):
		return " (was rejected)"
	case isSet(rc.FailureReason):
		return " (had failed)"
	default:
		return ""
	}
}

func isSet(s *string) bool { return s != nil && *s != "" }

func strPtr(s string) *string { return &s }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
