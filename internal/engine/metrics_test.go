package engine

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insightline/internal/domain"
)

func TestEventLabelIsBounded(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "APPROVE", eventLabel(domain.EventApprove))
	assert.Equal(t, "unknown", eventLabel(domain.Event("PUBLISH_EVERYWHERE")))
	assert.Equal(t, "unknown", eventLabel(""))
}

func TestExecuteUnknownEventUsesFixedLabel(t *testing.T) {
	t.Parallel()

	failures := transitionFailuresTotal.WithLabelValues("unknown", CodeUnknownAction)
	before := testutil.ToFloat64(failures)

	_, err := Executor{}.Execute(context.Background(), Request{EntityID: "i1", Event: "PUBLISH_EVERYWHERE"})
	require.ErrorIs(t, err, ErrUnknownAction)

	assert.GreaterOrEqual(t, testutil.ToFloat64(failures), before+1)
}
