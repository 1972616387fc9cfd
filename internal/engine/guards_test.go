package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insightline/internal/domain"
	"insightline/internal/engine"
)

func TestEvaluateApprove(t *testing.T) {
	t.Parallel()

	ins := insight("i1", domain.StateNeedsReview)
	ins.Review.ReviewedBy = strp("bob")
	ins.Review.RejectionReason = strp("old")
	ins.Review.FailureReason = strp("timeout")
	score := 0.82

	t.Run("explicit approver and score", func(t *testing.T) {
		d, err := engine.Evaluate(ins, domain.EventApprove, engine.Payload{ApprovedBy: "alice", Score: &score})
		require.NoError(t, err)
		assert.Equal(t, domain.StateApproved, d.To)
		require.NotNil(t, d.Review.ApprovedBy)
		assert.Equal(t, "alice", *d.Review.ApprovedBy)
		require.NotNil(t, d.Review.Score)
		assert.InDelta(t, 0.82, *d.Review.Score, 1e-9)
		assert.Nil(t, d.Review.ReviewedBy)
		assert.Nil(t, d.Review.RejectionReason)
		assert.Nil(t, d.Review.FailureReason)
	})

	t.Run("defaults to actor then system", func(t *testing.T) {
		d, err := engine.Evaluate(ins, domain.EventApprove, engine.Payload{ActorID: "carol"})
		require.NoError(t, err)
		assert.Equal(t, "carol", *d.Review.ApprovedBy)
		assert.Nil(t, d.Review.Score)

		d, err = engine.Evaluate(ins, domain.EventApprove, engine.Payload{})
		require.NoError(t, err)
		assert.Equal(t, "system", *d.Review.ApprovedBy)
	})

	t.Run("input is not mutated", func(t *testing.T) {
		before := ins.Clone()
		_, err := engine.Evaluate(ins, domain.EventApprove, engine.Payload{ApprovedBy: "alice"})
		require.NoError(t, err)
		assert.Equal(t, before, ins)
	})
}

func TestEvaluateReject(t *testing.T) {
	t.Parallel()

	ins := insight("i1", domain.StateNeedsReview)
	ins.Review.ApprovedBy = strp("alice")
	ins.Review.Score = new(float64)

	d, err := engine.Evaluate(ins, domain.EventReject, engine.Payload{ReviewedBy: "bob"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateRejected, d.To)
	assert.Equal(t, "bob", *d.Review.ReviewedBy)
	assert.Equal(t, "Rejected during review", *d.Review.RejectionReason)
	assert.Nil(t, d.Review.ApprovedBy)
	assert.Nil(t, d.Review.Score)

	d, err = engine.Evaluate(ins, domain.EventReject, engine.Payload{ActorID: "dana", Reason: "off-brand"})
	require.NoError(t, err)
	assert.Equal(t, "dana", *d.Review.ReviewedBy)
	assert.Equal(t, "off-brand", *d.Review.RejectionReason)
}

func TestEvaluateArchiveProvenance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		state  domain.State
		review domain.ReviewContext
		reason string
		want   string
	}{
		{
			name:   "approved wins over rejected",
			state:  domain.StateApproved,
			review: domain.ReviewContext{ApprovedBy: strp("alice"), ReviewedBy: strp("bob")},
			want:   "Insight archived (was approved)",
		},
		{
			name:   "rejected",
			state:  domain.StateRejected,
			review: domain.ReviewContext{ReviewedBy: strp("bob"), FailureReason: strp("x")},
			reason: "stale",
			want:   "stale (was rejected)",
		},
		{
			name:   "failed",
			state:  domain.StateFailed,
			review: domain.ReviewContext{FailureReason: strp("timeout"), RetryCount: 1},
			want:   "Insight archived (had failed)",
		},
		{
			name:  "no provenance",
			state: domain.StateDraft,
			want:  "Insight archived",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ins := insight("i1", tc.state)
			ins.Review = tc.review
			d, err := engine.Evaluate(ins, domain.EventArchive, engine.Payload{Reason: tc.reason})
			require.NoError(t, err)
			assert.Equal(t, domain.StateArchived, d.To)
			require.NotNil(t, d.Review.ArchivedReason)
			assert.Equal(t, tc.want, *d.Review.ArchivedReason)
		})
	}
}

func TestEvaluateMarkFailedHasNoEdge(t *testing.T) {
	t.Parallel()

	for _, state := range []domain.State{domain.StateDraft, domain.StateNeedsReview, domain.StateFailed} {
		_, err := engine.Evaluate(insight("i1", state), domain.EventMarkFailed, engine.Payload{})
		var illegal engine.IllegalTransitionError
		require.ErrorAs(t, err, &illegal, state)
		assert.Equal(t, state, illegal.From)
	}
}

func TestEvaluateRetryKeepsFailureContext(t *testing.T) {
	t.Parallel()

	failed := insight("i1", domain.StateFailed)
	failed.Review = domain.ReviewContext{FailureReason: strp("Processing failed"), RetryCount: 1}

	d, err := engine.Evaluate(failed, domain.EventRetry, engine.Payload{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateDraft, d.To)
	assert.Equal(t, 1, d.Review.RetryCount, "retry count carries forward")
	assert.Equal(t, "Processing failed", *d.Review.FailureReason, "failure reason is kept")
}

func TestRetryCap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		retries int
		allowed bool
	}{
		{retries: 0, allowed: true},
		{retries: 2, allowed: true},
		{retries: 3, allowed: false},
		{retries: 7, allowed: false},
	}
	for _, tc := range tests {
		ins := insight("i1", domain.StateFailed)
		ins.Review.RetryCount = tc.retries
		d, err := engine.Evaluate(ins, domain.EventRetry, engine.Payload{})
		if tc.allowed {
			require.NoError(t, err)
			assert.Equal(t, domain.StateDraft, d.To)
			continue
		}
		var guard engine.GuardRejectedError
		require.ErrorAs(t, err, &guard)
		assert.Equal(t, domain.EventRetry, guard.Event)
		assert.Contains(t, guard.Reason, "retry limit reached")
		assert.Equal(t, engine.CodeGuardRejected, engine.Code(err))
	}
}

func TestEvaluateIllegal(t *testing.T) {
	t.Parallel()

	_, err := engine.Evaluate(insight("i1", domain.StateApproved), domain.EventRetry, engine.Payload{})
	var illegal engine.IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, domain.StateApproved, illegal.From)
	assert.Equal(t, []domain.Event{domain.EventArchive, domain.EventDelete}, illegal.Legal)
	assert.Equal(t, engine.CodeIllegalTransition, engine.Code(err))

	// Legality is checked before the guard.
	_, err = engine.Evaluate(insight("i1", domain.StateDraft), domain.EventRetry, engine.Payload{})
	require.ErrorAs(t, err, &illegal)
}

func TestPureStatusEvents(t *testing.T) {
	t.Parallel()

	review := domain.ReviewContext{ReviewedBy: strp("bob"), RejectionReason: strp("nope"), RetryCount: 2}
	cases := []struct {
		from domain.State
		ev   domain.Event
	}{
		{domain.StateRejected, domain.EventEdit},
		{domain.StateDraft, domain.EventSubmitForReview},
		{domain.StateArchived, domain.EventRestore},
		{domain.StateRejected, domain.EventDelete},
	}
	for _, c := range cases {
		ins := insight("i1", c.from)
		ins.Review = review
		d, err := engine.Evaluate(ins, c.ev, engine.Payload{Reason: "ignored", ApprovedBy: "ignored"})
		require.NoError(t, err)
		assert.Equal(t, review, d.Review, "%s must not touch the review context", c.ev)
	}
}
