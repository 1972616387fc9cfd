package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insightline/internal/app"
	"insightline/internal/config"
	"insightline/internal/domain"
	"insightline/internal/engine"
	"insightline/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	App *app.App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "server.db")
	cfg.Notify.Mode = config.NotifyQueue
	a, err := app.Build(context.Background(), cfg, app.Options{Logger: slogt.New(t)})
	require.NoError(t, err)

	handler, err := New(ConfigFromApp(a, AuthConfig{JWTSecret: testSecret, DevAuth: true}))
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		_ = a.Close()
	})
	return &testServer{Server: srv, App: a}
}

func signToken(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, method, target string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env
}

func seed(t *testing.T, srv *testServer, id string, status domain.State) {
	t.Helper()
	_, err := srv.App.Repo.InsertInsight(context.Background(), domain.Insight{ID: id, Title: "insight " + id, Status: status})
	require.NoError(t, err)
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Contains(t, string(data), `"ok"`)
}

func TestRequestsRequireAuthentication(t *testing.T) {
	srv := newTestServer(t)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/insights", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", decodeError(t, data).Error.Code)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/insights", nil, bearer("not-a-token"))
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_credentials", decodeError(t, data).Error.Code)
}

func TestReviewFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := signToken(t, "alice", "admin")

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/insights", map[string]any{
		"title":    "Churn spikes after onboarding",
		"category": "retention",
	}, bearer(token))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created InsightResponse
	require.NoError(t, json.Unmarshal(data, &created))
	assert.Equal(t, "DRAFT", created.Status)
	assert.Contains(t, created.Actions, "submit_for_review")
	base := srv.URL + "/v1/insights/" + created.ID

	res, data = doJSON(t, http.MethodPost, base+"/submit_for_review", nil, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodGet, base+"/can/approve", nil, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var can CanResponse
	require.NoError(t, json.Unmarshal(data, &can))
	assert.True(t, can.Allowed)

	res, data = doJSON(t, http.MethodPost, base+"/approve", map[string]any{"score": 0.9}, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var approved InsightResponse
	require.NoError(t, json.Unmarshal(data, &approved))
	assert.Equal(t, "APPROVED", approved.Status)
	require.NotNil(t, approved.Review.ApprovedBy)
	assert.Equal(t, "alice", *approved.Review.ApprovedBy)

	jobs, err := srv.App.Repo.ListGenerationJobs(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, []string{"linkedin", "x"}, jobs[0].Platforms)

	res, data = doJSON(t, http.MethodPost, base+"/approve", nil, bearer(token))
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	env := decodeError(t, data)
	assert.Equal(t, engine.CodeIllegalTransition, env.Error.Code)
	assert.ElementsMatch(t, []any{"ARCHIVE", "DELETE"}, env.Error.Details["legal_events"])

	res, data = doJSON(t, http.MethodGet, base+"/actions", nil, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var actions ActionsResponse
	require.NoError(t, json.Unmarshal(data, &actions))
	assert.ElementsMatch(t, []string{"archive", "delete"}, actions.Actions)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/events?entity_id="+created.ID, nil, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var evts paginatedEvents
	require.NoError(t, json.Unmarshal(data, &evts))
	require.Len(t, evts.Items, 3)
	assert.Equal(t, engine.EventApproved, evts.Items[0].Type)
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)
	token := signToken(t, "root", "admin")
	failure := "render timeout"
	_, err := srv.App.Repo.InsertInsight(context.Background(), domain.Insight{
		ID:     "exhausted",
		Title:  "insight exhausted",
		Status: domain.StateFailed,
		Review: domain.ReviewContext{FailureReason: &failure, RetryCount: engine.MaxRetries},
	})
	require.NoError(t, err)

	cases := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"missing insight", "/v1/insights/nope/approve", http.StatusNotFound, engine.CodeNotFound},
		{"unknown action", "/v1/insights/exhausted/publish", http.StatusBadRequest, engine.CodeUnknownAction},
		{"illegal transition", "/v1/insights/exhausted/approve", http.StatusBadRequest, engine.CodeIllegalTransition},
		{"guard rejected", "/v1/insights/exhausted/retry", http.StatusBadRequest, engine.CodeGuardRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, data := doJSON(t, http.MethodPost, srv.URL+tc.path, nil, bearer(token))
			require.Equal(t, tc.status, res.StatusCode, string(data))
			assert.Equal(t, tc.code, decodeError(t, data).Error.Code)
		})
	}

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/insights", map[string]any{"id": "exhausted", "title": "dup"}, bearer(token))
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, engine.CodeConflict, decodeError(t, data).Error.Code)
}

func TestPermissionsFromAssignedRoles(t *testing.T) {
	srv := newTestServer(t)
	seed(t, srv, "r1", domain.StateNeedsReview)
	require.NoError(t, srv.App.Repo.AssignRole(context.Background(), "vic", "viewer"))
	viewer := map[string]string{"X-Actor-Id": "vic"}

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/insights/r1", nil, viewer)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/insights/r1/approve", nil, viewer)
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
	env := decodeError(t, data)
	assert.Equal(t, "forbidden", env.Error.Code)
	assert.Equal(t, "insight.approve", env.Error.Details["permission"])

	ins, err := srv.App.Service.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateNeedsReview, ins.Status)
}

func TestAPIKeyAuthentication(t *testing.T) {
	srv := newTestServer(t)
	err := srv.App.Repo.InsertAPIKey(context.Background(), domain.APIKey{
		ID:      "k1",
		ActorID: "bot",
		KeyHash: repo.HashAPIKey("secret-key"),
		Roles:   []string{"reviewer"},
	})
	require.NoError(t, err)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": "secret-key"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var who WhoAmIResponse
	require.NoError(t, json.Unmarshal(data, &who))
	assert.Equal(t, "bot", who.ActorID)
	assert.Equal(t, "api_key", who.Source)
	assert.Contains(t, who.Permissions, "insight.approve")
	assert.NotContains(t, who.Permissions, "insight.delete")

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestBulkEndpoint(t *testing.T) {
	srv := newTestServer(t)
	token := signToken(t, "alice", "reviewer")
	seed(t, srv, "b1", domain.StateNeedsReview)
	seed(t, srv, "b2", domain.StateNeedsReview)
	seed(t, srv, "b3", domain.StateDraft)

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/insights/bulk", map[string]any{
		"ids":    []string{"b1", "missing", "b2", "b3"},
		"action": "approve",
	}, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out BulkResponse
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "approve", out.Action)
	assert.Equal(t, 4, out.TotalRequested)
	assert.Equal(t, []string{"b1", "b2"}, out.Succeeded)
	require.Len(t, out.Failed, 2)
	assert.Equal(t, BulkFailureResponse{ID: "missing", Reason: engine.CodeNotFound, Message: out.Failed[0].Message}, out.Failed[0])
	assert.Equal(t, engine.CodeIllegalTransition, out.Failed[1].Reason)
	assert.Equal(t, 2, out.Notified)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/insights/bulk", map[string]any{
		"ids":    []string{},
		"action": "explode",
	}, bearer(token))
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, engine.CodeEmptyBatch, decodeError(t, data).Error.Code)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/insights/bulk", map[string]any{
		"ids":    []string{"b1"},
		"action": "explode",
	}, bearer(token))
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, engine.CodeUnknownAction, decodeError(t, data).Error.Code)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/insights/bulk", map[string]any{
		"ids":    []string{"b1"},
		"action": "delete",
	}, bearer(token))
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
}

func TestListInsightsPaginates(t *testing.T) {
	srv := newTestServer(t)
	token := signToken(t, "alice", "viewer")
	for _, id := range []string{"p1", "p2", "p3"} {
		seed(t, srv, id, domain.StateDraft)
	}

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/insights?limit=2", nil, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page paginatedInsights
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/insights?limit=2&cursor="+page.NextCursor, nil, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var next paginatedInsights
	require.NoError(t, json.Unmarshal(data, &next))
	require.Len(t, next.Items, 1)
	assert.Empty(t, next.NextCursor)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/insights?cursor=broken", nil, bearer(token))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	seed(t, srv, "m1", domain.StateNeedsReview)
	_, err := srv.App.Service.Approve(context.Background(), "m1", engine.Payload{ApprovedBy: "alice"})
	require.NoError(t, err)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "insightline_transitions_total")
}

func TestOpenAPIDocumentServedConcurrently(t *testing.T) {
	srv := newTestServer(t)

	const workers = 8
	bodies := make([][]byte, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := http.Get(srv.URL + "/v1/openapi.json")
			if !assert.NoError(t, err) {
				return
			}
			defer res.Body.Close()
			assert.Equal(t, http.StatusOK, res.StatusCode)
			bodies[i], err = io.ReadAll(res.Body)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var doc map[string]any
	require.NoError(t, json.Unmarshal(bodies[0], &doc))
	assert.Contains(t, string(bodies[0]), `"bearerAuth"`)
	assert.Contains(t, string(bodies[0]), "#/components/schemas/ApiError")
	for i := 1; i < workers; i++ {
		assert.Equal(t, bodies[0], bodies[i])
	}
}

func TestWebhookDispatcherDeliversFilteredEvents(t *testing.T) {
	srv := newTestServer(t)
	seed(t, srv, "w1", domain.StateNeedsReview)

	var (
		mu       sync.Mutex
		received []webhookEvent
		secrets  []string
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		received = append(received, evt)
		secrets = append(secrets, r.Header.Get("X-Insightline-Secret"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	ctx := context.Background()
	d := NewWebhookDispatcher(srv.App.Journal, []config.WebhookConfig{{
		URL:    hook.URL,
		Events: []string{engine.EventApproved},
		Secret: "shh",
	}}, slogt.New(t))
	d.DispatchAll(ctx)

	_, err := srv.App.Service.Approve(ctx, "w1", engine.Payload{ApprovedBy: "alice"})
	require.NoError(t, err)
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, engine.EventApproved, received[0].Type)
	assert.Equal(t, "w1", received[0].EntityID)
	assert.Equal(t, []string{"shh"}, secrets)
}
