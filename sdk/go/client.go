package insightsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Insightline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Review holds the annotations written by lifecycle actions.
type Review struct {
	ReviewedBy      *string  `json:"reviewed_by"`
	RejectionReason *string  `json:"rejection_reason"`
	ApprovedBy      *string  `json:"approved_by"`
	Score           *float64 `json:"score"`
	FailureReason   *string  `json:"failure_reason"`
	ArchivedReason  *string  `json:"archived_reason"`
	RetryCount      int      `json:"retry_count"`
}

// Insight represents the API insight model.
type Insight struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary,omitempty"`
	Category  string   `json:"category,omitempty"`
	Status    string   `json:"status"`
	Review    Review   `json:"review"`
	Actions   []string `json:"actions"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

// Payload carries optional annotations for an action.
type Payload struct {
	ApprovedBy string   `json:"approved_by,omitempty"`
	ReviewedBy string   `json:"reviewed_by,omitempty"`
	Score      *float64 `json:"score,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// BulkFailure is one id that did not transition.
type BulkFailure struct {
	ID      string `json:"id"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

// BulkResult is the outcome of a bulk action.
type BulkResult struct {
	Action               string        `json:"action"`
	Event                string        `json:"event"`
	TotalRequested       int           `json:"total_requested"`
	Succeeded            []string      `json:"succeeded"`
	Failed               []BulkFailure `json:"failed"`
	Notified             int           `json:"notified"`
	NotificationFailures int           `json:"notification_failures"`
}

// APIError wraps non-2xx responses. Code and Message come from the error envelope when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Create creates an insight in DRAFT. An empty id lets the server generate one.
func (c *Client) Create(ctx context.Context, id, title, summary, category string) (Insight, error) {
	body := map[string]any{"title": title}
	if id != "" {
		body["id"] = id
	}
	if summary != "" {
		body["summary"] = summary
	}
	if category != "" {
		body["category"] = category
	}
	var resp Insight
	err := c.do(ctx, http.MethodPost, "insights", body, &resp)
	return resp, err
}

// Get fetches one insight.
func (c *Client) Get(ctx context.Context, id string) (Insight, error) {
	var resp Insight
	err := c.do(ctx, http.MethodGet, "insights/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Actions lists the actions available from the insight's current state.
func (c *Client) Actions(ctx context.Context, id string) ([]string, error) {
	var resp struct {
		Actions []string `json:"actions"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("insights/%s/actions", url.PathEscape(id)), nil, &resp)
	return resp.Actions, err
}

// Can reports whether action would currently be accepted, guards included.
func (c *Client) Can(ctx context.Context, id, action string) (bool, error) {
	var resp struct {
		Allowed bool `json:"allowed"`
	}
	endpoint := fmt.Sprintf("insights/%s/can/%s", url.PathEscape(id), url.PathEscape(action))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Allowed, err
}

// Transition applies action (e.g. "approve") to one insight.
func (c *Client) Transition(ctx context.Context, id, action string, p Payload) (Insight, error) {
	var resp Insight
	endpoint := fmt.Sprintf("insights/%s/%s", url.PathEscape(id), url.PathEscape(action))
	err := c.do(ctx, http.MethodPost, endpoint, p, &resp)
	return resp, err
}

// Bulk applies action to every id. Per-id failures are in the result, not the error.
func (c *Client) Bulk(ctx context.Context, ids []string, action string, p Payload) (BulkResult, error) {
	body := struct {
		IDs    []string `json:"ids"`
		Action string   `json:"action"`
		Payload
	}{IDs: ids, Action: action, Payload: p}
	if body.IDs == nil {
		body.IDs = []string{}
	}
	var resp BulkResult
	err := c.do(ctx, http.MethodPost, "insights/bulk", body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
