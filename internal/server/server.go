// Package server exposes the insight lifecycle over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"reflect"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"insightline/internal/app"
	"insightline/internal/domain"
	"insightline/internal/engine"
	"insightline/internal/engine/auth"
	"insightline/internal/events"
	"insightline/internal/repo"
)

const (
	DefaultBasePath = "/v1"
	streamBuffer    = 64
)

// InsightStore is the storage the API needs beyond the lifecycle service.
type InsightStore interface {
	InsertInsight(ctx context.Context, ins domain.Insight) (domain.Insight, error)
	FindByID(ctx context.Context, id string) (domain.Insight, error)
	ListInsights(ctx context.Context, f repo.InsightFilters) ([]domain.Insight, error)
}

// Config for the HTTP API handler.
type Config struct {
	Service  *engine.Service
	Insights InsightStore
	APIKeys  APIKeyStore
	Roles    auth.Service
	// Journal backs GET /events; nil disables it.
	Journal *events.Journal
	// Bus backs the live event stream; nil disables it.
	Bus      *events.Bus
	BasePath string
	Auth     AuthConfig
	Logger   *slog.Logger
}

// ConfigFromApp builds a handler config from a wired App.
func ConfigFromApp(a *app.App, authCfg AuthConfig) Config {
	if authCfg.Logger == nil {
		authCfg.Logger = a.Logger
	}
	return Config{
		Service:  a.Service,
		Insights: a.Repo,
		APIKeys:  a.Repo,
		Roles:    a.Auth,
		Journal:  a.Journal,
		Bus:      a.Bus,
		BasePath: a.Config.Server.BasePath,
		Auth:     authCfg,
		Logger:   a.Logger,
	}
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"IllegalTransition"`
	Message string         `json:"message" example:"illegal transition: APPROVED + APPROVE"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"legal_events\":[\"ARCHIVE\"]}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type handlers struct {
	cfg    Config
	logger *slog.Logger
}

// New returns an HTTP handler exposing the insight API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Service == nil {
		return nil, errors.New("server: lifecycle service required")
	}
	if cfg.Insights == nil {
		return nil, errors.New("server: insight store required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Request validation failures are client errors.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, e := range errs {
				msgs = append(msgs, e.Error())
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.APIKeys, cfg.Roles))
	router.Handle("/metrics", promhttp.Handler())

	hcfg := huma.DefaultConfig("Insightline API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	api.OpenAPI().Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	group := huma.NewGroup(api, basePath)

	h := handlers{cfg: cfg, logger: logger}
	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group)
	h.registerInsights(group)
	h.registerActions(group)
	h.registerBulk(group)
	h.registerEvents(group)
	h.registerStream(group)
	if err := registerOpenAPI(router, api, basePath); err != nil {
		return nil, err
	}

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps lifecycle and auth errors onto the API envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	code := engine.Code(err)
	switch code {
	case engine.CodeNotFound:
		return newAPIError(http.StatusNotFound, code, err.Error(), nil)
	case engine.CodeIllegalTransition:
		var ill engine.IllegalTransitionError
		errors.As(err, &ill)
		return newAPIError(http.StatusBadRequest, code, err.Error(), map[string]any{
			"from":          string(ill.From),
			"event":         string(ill.Event),
			"legal_events":  eventNames(ill.Legal),
			"legal_actions": actionNames(ill.Legal),
		})
	case engine.CodeGuardRejected:
		var guard engine.GuardRejectedError
		errors.As(err, &guard)
		return newAPIError(http.StatusBadRequest, code, err.Error(), map[string]any{
			"event":  string(guard.Event),
			"reason": guard.Reason,
		})
	case engine.CodeEmptyBatch, engine.CodeUnknownAction:
		return newAPIError(http.StatusBadRequest, code, err.Error(), nil)
	case engine.CodeConflict:
		return newAPIError(http.StatusConflict, code, err.Error(), nil)
	case engine.CodePersistence:
		return newAPIError(http.StatusInternalServerError, code, "insight could not be saved", map[string]any{"error": err.Error()})
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func errorBody(err huma.StatusError) apiErrorBody {
	if ae, ok := err.(*apiError); ok {
		return ae.Body
	}
	return apiErrorBody{Code: defaultCodeForStatus(err.GetStatus()), Message: err.Error()}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

// registerOpenAPI renders the document once, after every operation is registered.
func registerOpenAPI(r chi.Router, api huma.API, basePath string) error {
	oas := api.OpenAPI()
	ensureDefaultErrorResponses(oas)
	applyAuthSecurity(oas, basePath)
	spec, err := json.Marshal(oas)
	if err != nil {
		return fmt.Errorf("server: render openapi: %w", err)
	}
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
	return nil
}

func operations(item *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{
		item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
	}
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range operations(item) {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range operations(item) {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Insightline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current actor and permissions",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     p.ActorID,
			Roles:       nonNilSlice(p.Roles),
			Permissions: nonNilSlice(p.Permissions),
			Source:      p.Source,
		}}, nil
	})
}

func (h handlers) registerInsights(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-insight",
		Method:        http.MethodPost,
		Path:          "/insights",
		Summary:       "Create an insight in DRAFT",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateInsightRequest `json:"body"`
	}) (*struct {
		Body InsightResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermCreate); err != nil {
			return nil, handleError(err)
		}
		id := uuid.NewString()
		if input.Body.ID != nil && strings.TrimSpace(*input.Body.ID) != "" {
			id = strings.TrimSpace(*input.Body.ID)
			if _, err := h.cfg.Insights.FindByID(ctx, id); err == nil {
				return nil, newAPIError(http.StatusConflict, engine.CodeConflict, fmt.Sprintf("insight %s already exists", id), map[string]any{"id": id})
			} else if !errors.Is(err, repo.ErrNotFound) {
				return nil, handleError(err)
			}
		}
		if strings.TrimSpace(input.Body.Title) == "" {
			return nil, newAPIError(http.StatusBadRequest, "", "title is required", nil)
		}
		ins, err := h.cfg.Insights.InsertInsight(ctx, domain.Insight{
			ID:       id,
			Title:    strings.TrimSpace(input.Body.Title),
			Summary:  input.Body.Summary,
			Category: input.Body.Category,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InsightResponse `json:"body"`
		}{Body: insightResponse(ins)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-insights",
		Method:      http.MethodGet,
		Path:        "/insights",
		Summary:     "List insights, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status" enum:"DRAFT,NEEDS_REVIEW,APPROVED,REJECTED,ARCHIVED,FAILED"`
		Category string `query:"category"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body paginatedInsights `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermRead); err != nil {
			return nil, handleError(err)
		}
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "", err.Error(), map[string]any{"cursor": input.Cursor})
		}
		limit := normalizeLimit(input.Limit)
		items, err := h.cfg.Insights.ListInsights(ctx, repo.InsightFilters{
			Status:          domain.State(input.Status),
			Category:        input.Category,
			Limit:           limit + 1,
			CursorCreatedAt: cursorTS,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedInsights{Items: []InsightResponse{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			items = items[:limit]
		}
		for _, ins := range items {
			resp.Items = append(resp.Items, insightResponse(ins))
		}
		return &struct {
			Body paginatedInsights `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-insight",
		Method:      http.MethodGet,
		Path:        "/insights/{id}",
		Summary:     "Get insight",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body InsightResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermRead); err != nil {
			return nil, handleError(err)
		}
		ins, err := h.cfg.Service.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InsightResponse `json:"body"`
		}{Body: insightResponse(ins)}, nil
	})
}

func (h handlers) registerActions(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-insight-actions",
		Method:      http.MethodGet,
		Path:        "/insights/{id}/actions",
		Summary:     "Actions available from the current state",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ActionsResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermRead); err != nil {
			return nil, handleError(err)
		}
		ins, err := h.cfg.Service.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		legal := engine.LegalEvents(ins.Status)
		return &struct {
			Body ActionsResponse `json:"body"`
		}{Body: ActionsResponse{
			ID:      ins.ID,
			Status:  string(ins.Status),
			Actions: actionNames(legal),
			Events:  eventNames(legal),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "can-transition",
		Method:      http.MethodGet,
		Path:        "/insights/{id}/can/{action}",
		Summary:     "Check whether an action would be accepted",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Action string `path:"action"`
	}) (*struct {
		Body CanResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermRead); err != nil {
			return nil, handleError(err)
		}
		ev, err := engine.ParseAction(input.Action)
		if err != nil {
			return nil, handleError(err)
		}
		ok, err := h.cfg.Service.CanTransition(ctx, input.ID, ev)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CanResponse `json:"body"`
		}{Body: CanResponse{ID: input.ID, Action: engine.ActionName(ev), Allowed: ok}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-insight",
		Method:      http.MethodPost,
		Path:        "/insights/{id}/{action}",
		Summary:     "Apply a lifecycle action",
		Description: "Actions: submit_for_review, approve, reject, edit, archive, restore, mark_failed, retry, delete.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID     string             `path:"id"`
		Action string             `path:"action"`
		Body   *TransitionRequest `json:"body,omitempty" required:"false"`
	}) (*struct {
		Body InsightResponse `json:"body"`
	}, error) {
		ev, err := engine.ParseAction(input.Action)
		if err != nil {
			return nil, handleError(err)
		}
		p, err := requirePermission(ctx, auth.ActionPermission(ev))
		if err != nil {
			return nil, handleError(err)
		}
		var body TransitionRequest
		if input.Body != nil {
			body = *input.Body
		}
		ins, err := h.cfg.Service.Transition(ctx, input.ID, ev, body.payload(p.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InsightResponse `json:"body"`
		}{Body: insightResponse(ins)}, nil
	})
}

func (h handlers) registerBulk(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "bulk-transition",
		Method:      http.MethodPost,
		Path:        "/insights/bulk",
		Summary:     "Apply one action to many insights",
		Description: "Per-id failures are reported in the result; the request fails only for an empty batch or an unknown action.",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body BulkRequest `json:"body"`
	}) (*struct {
		Body BulkResponse `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(input.Body.IDs) == 0 {
			return nil, handleError(engine.ErrEmptyBatch)
		}
		ev, err := engine.ParseAction(input.Body.Action)
		if err != nil {
			return nil, handleError(err)
		}
		if err := auth.Require(p, auth.ActionPermission(ev)); err != nil {
			return nil, handleError(err)
		}
		res, err := h.cfg.Service.BulkTransition(ctx, input.Body.IDs, input.Body.Action, input.Body.payload(p.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BulkResponse `json:"body"`
		}{Body: bulkResponse(res)}, nil
	})
}

func (h handlers) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent journal events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Type     string `query:"type"`
		EntityID string `query:"entity_id"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermEventsRead); err != nil {
			return nil, handleError(err)
		}
		if h.cfg.Journal == nil {
			return nil, newAPIError(http.StatusNotFound, "", "event journal disabled", nil)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := h.cfg.Journal.Latest(ctx, events.Filter{
			Type:     input.Type,
			EntityID: input.EntityID,
			Limit:    limit + 1,
			Before:   cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func (h handlers) registerStream(api huma.API) {
	sse.Register(api, huma.Operation{
		OperationID: "stream-events",
		Method:      http.MethodGet,
		Path:        "/events/stream",
		Summary:     "Live domain events",
	}, map[string]any{
		"message": StreamEvent{},
		"error":   apiErrorBody{},
	}, func(ctx context.Context, input *struct {
		Type     string `query:"type"`
		EntityID string `query:"entity_id"`
	}, send sse.Sender) {
		if _, err := requirePermission(ctx, auth.PermEventsRead); err != nil {
			_ = send.Data(errorBody(handleError(err)))
			return
		}
		if h.cfg.Bus == nil {
			_ = send.Data(apiErrorBody{Code: "not_found", Message: "event stream disabled"})
			return
		}
		ch, cancel := h.cfg.Bus.Subscribe(streamBuffer)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if input.Type != "" && evt.Name != input.Type {
					continue
				}
				if input.EntityID != "" && evt.EntityID != input.EntityID {
					continue
				}
				if err := send.Data(streamEvent(evt)); err != nil {
					h.logger.Debug("event stream closed", "error", err)
					return
				}
			}
		}
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
