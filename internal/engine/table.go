package engine

import "insightline/internal/domain"

// Transition is a single allowed edge in the insight lifecycle.
type Transition struct {
	From  domain.State
	Event domain.Event
	To    domain.State
	// Guarded marks edges whose legality additionally depends on the review context.
	Guarded bool
}

// MARK_FAILED has no edge; FAILED rows are written by the generation pipeline.
var transitionsTable = []Transition{
	{From: domain.StateDraft, Event: domain.EventSubmitForReview, To: domain.StateNeedsReview},
	{From: domain.StateDraft, Event: domain.EventArchive, To: domain.StateArchived},
	{From: domain.StateDraft, Event: domain.EventDelete, To: domain.StateDeleted},

	{From: domain.StateNeedsReview, Event: domain.EventApprove, To: domain.StateApproved},
	{From: domain.StateNeedsReview, Event: domain.EventReject, To: domain.StateRejected},
	{From: domain.StateNeedsReview, Event: domain.EventEdit, To: domain.StateDraft},
	{From: domain.StateNeedsReview, Event: domain.EventArchive, To: domain.StateArchived},
	{From: domain.StateNeedsReview, Event: domain.EventDelete, To: domain.StateDeleted},

	{From: domain.StateApproved, Event: domain.EventArchive, To: domain.StateArchived},
	{From: domain.StateApproved, Event: domain.EventDelete, To: domain.StateDeleted},

	{From: domain.StateRejected, Event: domain.EventEdit, To: domain.StateDraft},
	{From: domain.StateRejected, Event: domain.EventArchive, To: domain.StateArchived},
	{From: domain.StateRejected, Event: domain.EventDelete, To: domain.StateDeleted},

	{From: domain.StateArchived, Event: domain.EventRestore, To: domain.StateDraft},
	{From: domain.StateArchived, Event: domain.EventDelete, To: domain.StateDeleted},

	{From: domain.StateFailed, Event: domain.EventRetry, To: domain.StateDraft, Guarded: true},
	{From: domain.StateFailed, Event: domain.EventArchive, To: domain.StateArchived},
	{From: domain.StateFailed, Event: domain.EventDelete, To: domain.StateDeleted},
}

type edgeKey struct {
	from  domain.State
	event domain.Event
}

var transitionIndex = buildIndex(transitionsTable)

func buildIndex(table []Transition) map[edgeKey]Transition {
	idx := make(map[edgeKey]Transition, len(table))
	for _, tr := range table {
		k := edgeKey{from: tr.From, event: tr.Event}
		if _, dup := idx[k]; dup {
			panic("engine: duplicate transition " + string(tr.From) + " + " + string(tr.Event))
		}
		if tr.From.Terminal() {
			panic("engine: transition out of terminal state " + string(tr.From))
		}
		idx[k] = tr
	}
	return idx
}

// TransitionFor returns the edge for a state+event pair.
func TransitionFor(from domain.State, ev domain.Event) (Transition, bool) {
	tr, ok := transitionIndex[edgeKey{from: from, event: ev}]
	return tr, ok
}

// IsLegal reports whether ev is defined for state. Guards are not consulted.
func IsLegal(state domain.State, ev domain.Event) bool {
	_, ok := TransitionFor(state, ev)
	return ok
}

// Target returns the state ev leads to from state.
func Target(state domain.State, ev domain.Event) (domain.State, bool) {
	tr, ok := TransitionFor(state, ev)
	return tr.To, ok
}

// LegalEvents returns the events defined for state, in domain.Events order.
func LegalEvents(state domain.State) []domain.Event {
	var out []domain.Event
	for _, ev := range domain.Events {
		if IsLegal(state, ev) {
			out = append(out, ev)
		}
	}
	return out
}

// Transitions returns a copy of the full table.
func Transitions() []Transition {
	out := make([]Transition, len(transitionsTable))
	copy(out, transitionsTable)
	return out
}
