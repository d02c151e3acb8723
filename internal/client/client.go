// Package client implements the HTTP side of the analysis backend
// contract.
package client

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

	"github.com/jfrid/logsleuth/pkg/models"
)

const defaultTimeout = 30 * time.Second

// Client talks to one analysis backend. It is safe for concurrent use.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for the backend at baseURL (scheme + host + optional
// prefix, no trailing slash required).
func New(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}
}

// NewWithHTTPClient allows injecting a custom http.Client (tests, custom
// transports).
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	c := New(baseURL)
	if hc != nil {
		c.http = hc
	}
	return c
}

// jobPath maps a job kind to its REST resource.
func jobPath(session string, kind models.JobKind) string {
	prefix := "/analysis/"
	if kind == models.KindAISubanalysis {
		prefix = "/ai-analysis/"
	}
	return prefix + url.PathEscape(session)
}

// StartJob issues POST /analysis/{session} (or the AI sibling). The request
// body is only sent for the AI sub-analysis; a nil req or nil
// SelectedIndices means "analyze all patterns".
func (c *Client) StartJob(ctx context.Context, session string, kind models.JobKind, req *models.StartRequest) (*models.StartResponse, error) {
	var body io.Reader
	if kind == models.KindAISubanalysis {
		payload, err := json.Marshal(orEmptyStart(req))
		if err != nil {
			return nil, fmt.Errorf("encoding start request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	var resp models.StartResponse
	if err := c.do(ctx, http.MethodPost, jobPath(session, kind), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobStatus issues GET /analysis/{session} and returns the snapshot, which
// has the same shape as a push message.
func (c *Client) JobStatus(ctx context.Context, session string, kind models.JobKind) (*models.StatusSnapshot, error) {
	var snap models.StatusSnapshot
	if err := c.do(ctx, http.MethodGet, jobPath(session, kind), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ClearJob issues DELETE /analysis/{session}, dropping the job and any
// stored result on the backend.
func (c *Client) ClearJob(ctx context.Context, session string, kind models.JobKind) error {
	return c.do(ctx, http.MethodDelete, jobPath(session, kind), nil, nil)
}

// StreamURL returns the websocket endpoint delivering push updates for the
// job.
func (c *Client) StreamURL(session string, kind models.JobKind) string {
	ws := c.base
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return ws + "/ws" + jobPath(session, kind)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: backend returned %s: %s",
			method, path, resp.Status, readErrorBody(resp.Body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// readErrorBody extracts the backend's error message, falling back to raw
// text.
func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "(no body)"
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(data))
}

// orEmptyStart keeps a nil request encodable as {"selected_indices":null}.
func orEmptyStart(req *models.StartRequest) *models.StartRequest {
	if req == nil {
		return &models.StartRequest{}
	}
	return req
}
