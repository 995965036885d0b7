// Package provider implements the remote search API client: job
// submission, status polling, and result fetching over HTTP, with
// provider status strings normalized to the five-state enum.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/user/gopherfeed/internal/types"
)

// Client talks to the asynchronous search API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a Client for the given API base URL.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

var _ types.JobClient = (*Client)(nil)

type submitRequest struct {
	SourceType string `json:"source_type"`
	Method     string `json:"method"`
	Query      string `json:"query"`
	Limit      int    `json:"limit,omitempty"`
	SinceID    string `json:"since_id,omitempty"`
	MaxID      string `json:"max_id,omitempty"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// Submit creates a search job and returns its id. A rejected parameter
// set surfaces as ErrInvalidRequest; a 2xx response without a job id
// as ErrProviderUnavailable.
func (c *Client) Submit(ctx context.Context, q *types.Query, page types.Page) (string, error) {
	body, err := json.Marshal(submitRequest{
		SourceType: q.SourceType,
		Method:     q.Method,
		Query:      q.Text,
		Limit:      page.Limit,
		SinceID:    page.SinceID,
		MaxID:      page.MaxID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, "/jobs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	var resp submitResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse submit response: %w", err)
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("no job id in submit response: %w", types.ErrProviderUnavailable)
	}
	return resp.JobID, nil
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Status returns the normalized job status. Provider "no new results"
// error shapes are remapped to JobEmpty rather than treated as
// failures: many providers signal "nothing found" as an error-shaped
// response.
func (c *Client) Status(ctx context.Context, jobID string) (types.JobStatus, error) {
	data, err := c.do(ctx, http.MethodGet, "/jobs/"+jobID, nil)
	if err != nil {
		if isNoNewResults(err.Error()) {
			return types.JobEmpty, nil
		}
		return types.JobError, err
	}

	var resp statusResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return types.JobError, fmt.Errorf("parse status response: %w", err)
	}
	if isNoNewResults(resp.Error) {
		return types.JobEmpty, nil
	}
	return NormalizeStatus(resp.Status), nil
}

type resultItem struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	CreatedAt string            `json:"created_at,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

type resultsResponse struct {
	Items []resultItem `json:"items"`
}

// Results fetches the items of a completed job, in provider order.
func (c *Client) Results(ctx context.Context, jobID string) ([]*types.Item, error) {
	data, err := c.do(ctx, http.MethodGet, "/jobs/"+jobID+"/results", nil)
	if err != nil {
		return nil, err
	}

	var resp resultsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse results response: %w", err)
	}

	items := make([]*types.Item, 0, len(resp.Items))
	for _, r := range resp.Items {
		item := &types.Item{
			ExternalID: r.ID,
			Content:    r.Content,
			Metadata:   r.Extra,
		}
		if r.CreatedAt != "" {
			if ts, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
				item.SourceTimestamp = &ts
			}
		}
		NormalizeContent(item)
		items = append(items, item)
	}
	return items, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, fmt.Errorf("provider returned %d: %s: %w",
		resp.StatusCode, strings.TrimSpace(string(data)), classifyHTTP(resp.StatusCode))
}

// classifyHTTP maps an HTTP status code onto the error taxonomy.
func classifyHTTP(code int) error {
	switch code {
	case http.StatusBadRequest:
		return types.ErrInvalidRequest
	case http.StatusUnauthorized:
		return types.ErrUnauthorized
	case http.StatusForbidden:
		return types.ErrForbidden
	case http.StatusNotFound:
		return types.ErrNotFound
	case http.StatusTooManyRequests:
		return types.ErrRateLimited
	default:
		return types.ErrProviderUnavailable
	}
}

// NormalizeStatus maps provider-specific status strings onto the
// five-state enum. Unknown strings are treated as error.
func NormalizeStatus(s string) types.JobStatus {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", " ")) {
	case "submitted", "pending", "queued", "accepted", "created":
		return types.JobSubmitted
	case "in progress", "in-progress", "running", "processing", "started":
		return types.JobInProgress
	case "done", "completed", "complete", "finished", "ready", "success":
		return types.JobDone
	case "empty", "no results", "no new results":
		return types.JobEmpty
	default:
		return types.JobError
	}
}

func isNoNewResults(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "no new results") || strings.Contains(m, "no results found")
}
