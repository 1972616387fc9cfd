package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"insightline/internal/domain"
	"insightline/internal/engine"
)

func TestIsLegalMatchesTable(t *testing.T) {
	t.Parallel()

	legal := map[domain.State]map[domain.Event]domain.State{
		domain.StateDraft: {
			domain.EventSubmitForReview: domain.StateNeedsReview,
			domain.EventArchive:         domain.StateArchived,
			domain.EventDelete:          domain.StateDeleted,
		},
		domain.StateNeedsReview: {
			domain.EventApprove: domain.StateApproved,
			domain.EventReject:  domain.StateRejected,
			domain.EventEdit:    domain.StateDraft,
			domain.EventArchive: domain.StateArchived,
			domain.EventDelete:  domain.StateDeleted,
		},
		domain.StateApproved: {
			domain.EventArchive: domain.StateArchived,
			domain.EventDelete:  domain.StateDeleted,
		},
		domain.StateRejected: {
			domain.EventEdit:    domain.StateDraft,
			domain.EventArchive: domain.StateArchived,
			domain.EventDelete:  domain.StateDeleted,
		},
		domain.StateArchived: {
			domain.EventRestore: domain.StateDraft,
			domain.EventDelete:  domain.StateDeleted,
		},
		domain.StateFailed: {
			domain.EventRetry:   domain.StateDraft,
			domain.EventArchive: domain.StateArchived,
			domain.EventDelete:  domain.StateDeleted,
		},
		domain.StateDeleted: {},
	}

	for _, state := range domain.States {
		for _, ev := range domain.Events {
			want, wantLegal := legal[state][ev]
			t.Run(string(state)+"/"+string(ev), func(t *testing.T) {
				assert.Equal(t, wantLegal, engine.IsLegal(state, ev))
				got, ok := engine.Target(state, ev)
				assert.Equal(t, wantLegal, ok)
				if wantLegal {
					assert.Equal(t, want, got)
				}
			})
		}
	}
	assert.Len(t, engine.Transitions(), 18)
	for _, state := range domain.States {
		assert.False(t, engine.IsLegal(state, domain.EventMarkFailed), state)
	}
}

func TestLegalEvents(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []domain.Event{
		domain.EventSubmitForReview,
		domain.EventArchive,
		domain.EventDelete,
	}, engine.LegalEvents(domain.StateDraft))
	assert.Equal(t, []domain.Event{
		domain.EventArchive,
		domain.EventRetry,
		domain.EventDelete,
	}, engine.LegalEvents(domain.StateFailed))
	assert.Empty(t, engine.LegalEvents(domain.StateDeleted))
	assert.Empty(t, engine.LegalEvents(domain.State("bogus")))
}

func TestRetryIsTheOnlyGuardedEdge(t *testing.T) {
	t.Parallel()

	for _, tr := range engine.Transitions() {
		if tr.Guarded {
			assert.Equal(t, domain.StateFailed, tr.From)
			assert.Equal(t, domain.EventRetry, tr.Event)
		}
	}
}
