package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insightline/internal/domain"
	"insightline/internal/engine/auth"
	"insightline/internal/repo"
	"insightline/internal/testutil"
)

func TestActionPermission(t *testing.T) {
	assert.Equal(t, "insight.approve", auth.ActionPermission(domain.EventApprove))
	assert.Equal(t, "insight.submit_for_review", auth.ActionPermission(domain.EventSubmitForReview))
	assert.Len(t, auth.Permissions(), 3+len(domain.Events))
}

func TestAllowed(t *testing.T) {
	assert.True(t, auth.Allowed([]string{"*"}, "insight.delete"))
	assert.True(t, auth.Allowed([]string{"insight.*"}, "insight.approve"))
	assert.False(t, auth.Allowed([]string{"insight.*"}, "events.read"))
	assert.True(t, auth.Allowed([]string{"insight.approve"}, "insight.approve"))
	assert.False(t, auth.Allowed([]string{"insight.approve"}, "insight.reject"))
	assert.False(t, auth.Allowed(nil, "insight.read"))
}

func TestResolveWithStoredRoles(t *testing.T) {
	ctx := context.Background()
	r := repo.Repo{DB: testutil.OpenDB(t)}
	require.NoError(t, r.SyncRoles(ctx, map[string][]string{
		"reviewer": {"insight.read", "insight.approve"},
		"operator": {"insight.retry"},
	}))
	require.NoError(t, r.AssignRole(ctx, "alice", "operator"))

	svc := auth.Service{Store: r}
	p, err := svc.Resolve(ctx, auth.Principal{ActorID: "alice", Roles: []string{"reviewer"}, Permissions: []string{"events.read"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"operator", "reviewer"}, p.Roles)
	assert.Equal(t, []string{"events.read", "insight.approve", "insight.read", "insight.retry"}, p.Permissions)

	require.NoError(t, auth.Require(p, "insight.approve"))
	err = auth.Require(p, "insight.delete")
	var forbidden auth.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, "insight.delete", forbidden.Permission)
}

func TestResolveWithoutStore(t *testing.T) {
	p, err := auth.Service{}.Resolve(context.Background(), auth.Principal{ActorID: "bot", Permissions: []string{"insight.*", "insight.*"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"insight.*"}, p.Permissions)
	assert.True(t, p.Allows("insight.archive"))
}
