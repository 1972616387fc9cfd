package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insightline/internal/domain"
	"insightline/internal/engine"
)

func TestBulkApprovePartialFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t,
		insight("id1", domain.StateNeedsReview),
		insight("id2", domain.StateNeedsReview),
		insight("id4", domain.StateNeedsReview),
		insight("id5", domain.StateNeedsReview),
	)

	res, err := env.Service.BulkTransition(context.Background(),
		[]string{"id1", "id2", "id3", "id4", "id5"}, "approve", engine.Payload{ApprovedBy: "alice"})
	require.NoError(t, err)

	assert.Equal(t, "approve", res.Action)
	assert.Equal(t, domain.EventApprove, res.Event)
	assert.Equal(t, 5, res.TotalRequested)
	assert.Equal(t, []string{"id1", "id2", "id4", "id5"}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "id3", res.Failed[0].ID)
	assert.Equal(t, engine.CodeNotFound, res.Failed[0].Reason)

	for _, id := range res.Succeeded {
		ins := env.Repo.get(t, id)
		assert.Equal(t, domain.StateApproved, ins.Status)
		assert.Equal(t, "alice", *ins.Review.ApprovedBy)
	}
	assert.Len(t, env.Sink.byName(engine.EventApproved), 4)
	assert.Len(t, env.Sink.byName(engine.EventStateChanged), 4)
	assert.ElementsMatch(t, res.Succeeded, env.Notifier.called())
	assert.Equal(t, 4, res.Notified)
	assert.Zero(t, res.NotificationFailures)
}

func TestBulkMixedStates(t *testing.T) {
	t.Parallel()

	failed := insight("f1", domain.StateFailed)
	failed.Review.RetryCount = engine.MaxRetries
	approved := insight("a1", domain.StateApproved)
	approved.Review.ApprovedBy = strp("alice")
	env := newTestEnv(t,
		insight("d1", domain.StateDraft),
		approved,
		failed,
	)

	res, err := env.Service.BulkTransition(context.Background(), []string{"a1", "d1", "f1", "d1"}, "archive", engine.Payload{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a1", "d1", "f1"}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, engine.BulkFailure{
		ID:      "d1",
		Reason:  engine.CodeDuplicate,
		Message: "insight id repeated in batch: d1",
	}, res.Failed[0])
	assert.Equal(t, "Insight archived (was approved)", *env.Repo.get(t, "a1").Review.ArchivedReason)
	assert.Empty(t, env.Notifier.called(), "only approvals trigger post generation")
}

func TestBulkAllFailedIsAResult(t *testing.T) {
	t.Parallel()

	approved := insight("a1", domain.StateApproved)
	approved.Review.ApprovedBy = strp("alice")
	env := newTestEnv(t, approved)

	res, err := env.Service.BulkTransition(context.Background(), []string{"a1", "x", "y"}, "approve", engine.Payload{})
	require.NoError(t, err)

	assert.NotNil(t, res.Succeeded)
	assert.Empty(t, res.Succeeded)
	require.Len(t, res.Failed, 3)
	assert.Equal(t, []string{"a1", "x", "y"}, []string{res.Failed[0].ID, res.Failed[1].ID, res.Failed[2].ID})
	assert.Equal(t, engine.CodeIllegalTransition, res.Failed[0].Reason)
	assert.Equal(t, engine.CodeNotFound, res.Failed[1].Reason)
	assert.Equal(t, engine.CodeNotFound, res.Failed[2].Reason)
	assert.Zero(t, res.Notified)
	assert.Empty(t, env.Notifier.called())
	assert.Empty(t, env.Sink.byName(engine.EventStateChanged))
}

func TestBulkReportsEveryFailureKind(t *testing.T) {
	t.Parallel()

	failed := insight("f1", domain.StateFailed)
	failed.Review.RetryCount = engine.MaxRetries
	env := newTestEnv(t, insight("d1", domain.StateDraft), failed, insight("f2", domain.StateFailed))

	res, err := env.Service.BulkTransition(context.Background(), []string{"d1", "f1", "missing", "f2"}, "RETRY", engine.Payload{})
	require.NoError(t, err)

	assert.Equal(t, []string{"f2"}, res.Succeeded)
	reasons := map[string]string{}
	for _, f := range res.Failed {
		reasons[f.ID] = f.Reason
	}
	assert.Equal(t, map[string]string{
		"d1":      engine.CodeIllegalTransition,
		"f1":      engine.CodeGuardRejected,
		"missing": engine.CodeNotFound,
	}, reasons)
	assert.Equal(t, len(res.Succeeded)+len(res.Failed), res.TotalRequested)
}

func TestBulkNotifierFailuresAreCounted(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, insight("i1", domain.StateNeedsReview), insight("i2", domain.StateNeedsReview))
	env.Notifier.fail["i2"] = true

	res, err := env.Service.BulkTransition(context.Background(), []string{"i1", "i2"}, "approve", engine.Payload{})
	require.NoError(t, err)
	assert.Equal(t, []string{"i1", "i2"}, res.Succeeded)
	assert.Equal(t, 1, res.Notified)
	assert.Equal(t, 1, res.NotificationFailures)
	assert.Equal(t, domain.StateApproved, env.Repo.get(t, "i2").Status)
}

func TestBulkRejectsBadRequests(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, insight("i1", domain.StateDraft))

	_, err := env.Service.BulkTransition(context.Background(), nil, "approve", engine.Payload{})
	require.ErrorIs(t, err, engine.ErrEmptyBatch)
	assert.Equal(t, engine.CodeEmptyBatch, engine.Code(err))

	// Empty batch wins over an unknown action.
	_, err = env.Service.BulkTransition(context.Background(), []string{}, "publish", engine.Payload{})
	require.ErrorIs(t, err, engine.ErrEmptyBatch)

	_, err = env.Service.BulkTransition(context.Background(), []string{"i1"}, "publish", engine.Payload{})
	require.ErrorIs(t, err, engine.ErrUnknownAction)
	assert.Equal(t, domain.StateDraft, env.Repo.get(t, "i1").Status)
}

func TestBulkLargeBatchSettlesInOrder(t *testing.T) {
	t.Parallel()

	var items []domain.Insight
	var ids []string
	for i := 0; i < 50; i++ {
		id := "n" + string(rune('A'+i%26)) + string(rune('a'+i/26))
		items = append(items, insight(id, domain.StateDraft))
		ids = append(ids, id)
	}
	env := newTestEnv(t, items...)

	res, err := env.Service.BulkTransition(context.Background(), ids, "submit-for-review", engine.Payload{})
	require.NoError(t, err)
	assert.Equal(t, ids, res.Succeeded)
	assert.Empty(t, res.Failed)
}
