// Package notify triggers post generation for approved insights.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"insightline/internal/engine"
)

const defaultTimeout = 5 * time.Second

// Webhook posts {insight_id, platforms} to the post-generation service and
// reads back {job_id}.
type Webhook struct {
	URL    string
	Secret string
	Client *http.Client
}

var _ engine.Notifier = Webhook{}

func NewWebhook(url, secret string, timeout time.Duration) Webhook {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return Webhook{URL: url, Secret: secret, Client: &http.Client{Timeout: timeout}}
}

type generateRequest struct {
	InsightID string   `json:"insight_id"`
	Platforms []string `json:"platforms"`
}

type generateResponse struct {
	JobID string `json:"job_id"`
}

func (w Webhook) Notify(ctx context.Context, insightID string, platforms []string) (string, error) {
	if strings.TrimSpace(w.URL) == "" {
		return "", errors.New("webhook url not configured")
	}
	data, err := json.Marshal(generateRequest{InsightID: insightID, Platforms: platforms})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Insightline-Insight", insightID)
	if strings.TrimSpace(w.Secret) != "" {
		req.Header.Set("X-Insightline-Secret", w.Secret)
	}
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, readErr := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("post generation status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	if readErr != nil {
		return "", fmt.Errorf("read post generation response: %w", readErr)
	}
	var out generateResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return "", fmt.Errorf("decode post generation response: %w", err)
		}
	}
	return out.JobID, nil
}
