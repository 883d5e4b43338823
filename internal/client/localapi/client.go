package localapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iudanet/chartsync/internal/client/storage"
	chsync "github.com/iudanet/chartsync/internal/client/sync"
	"github.com/iudanet/chartsync/internal/models"
	"github.com/iudanet/chartsync/pkg/api"
)

// Client talks to a running daemon over the local API. It mirrors the
// engine methods so CLI commands work the same with or without a daemon.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client for the daemon listening on bind (host:port)
func NewClient(bind string) *Client {
	base := bind
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Ping reports whether a daemon answers within timeout
func (c *Client) Ping(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.GetStatus(ctx)
	return err == nil
}

func (c *Client) GetStatus(ctx context.Context) (models.SyncStatus, error) {
	var status models.SyncStatus
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &status)
	return status, err
}

func (c *Client) Queue(ctx context.Context) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	err := c.do(ctx, http.MethodGet, "/v1/queue", nil, &items)
	return items, err
}

func (c *Client) Enqueue(ctx context.Context, action models.Action, table models.Table, payload json.RawMessage, priority models.Priority) (string, error) {
	return c.enqueue(ctx, action, table, payload, priority, false)
}

func (c *Client) ApplyMutation(ctx context.Context, action models.Action, table models.Table, payload json.RawMessage, priority models.Priority) (string, error) {
	return c.enqueue(ctx, action, table, payload, priority, true)
}

func (c *Client) enqueue(ctx context.Context, action models.Action, table models.Table, payload json.RawMessage, priority models.Priority, cache bool) (string, error) {
	var resp api.EnqueueResponse
	err := c.do(ctx, http.MethodPost, "/v1/queue", api.EnqueueRequest{
		Action:   string(action),
		Table:    string(table),
		Priority: string(priority),
		Payload:  payload,
		Cache:    cache,
	}, &resp)
	return resp.ID, err
}

// TriggerSyncNow asks the daemon for a drain cycle. A cycle already in
// flight is reported as a skipped result, not an error.
func (c *Client) TriggerSyncNow(ctx context.Context) (chsync.Result, error) {
	var resp api.SyncResponse
	err := c.do(ctx, http.MethodPost, "/v1/sync", nil, &resp)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
		return chsync.Result{Skipped: true}, nil
	}
	if err != nil {
		return chsync.Result{}, err
	}
	return chsync.Result{
		Synced:    resp.Synced,
		Failed:    resp.Failed,
		Conflicts: resp.Conflicts,
		Discarded: resp.Discarded,
		Skipped:   resp.Skipped,
	}, nil
}

func (c *Client) RetryItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/v1/queue/"+url.PathEscape(id)+"/retry", nil, nil)
}

func (c *Client) RetryAllFailed(ctx context.Context) (int, error) {
	return c.count(ctx, "/v1/queue/retry-failed")
}

func (c *Client) ClearSynced(ctx context.Context) (int, error) {
	return c.count(ctx, "/v1/queue/clear-synced")
}

func (c *Client) ClearFailed(ctx context.Context) (int, error) {
	return c.count(ctx, "/v1/queue/clear-failed")
}

func (c *Client) ClearQueue(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/v1/queue?confirm=yes", nil, nil)
}

func (c *Client) Conflicts(ctx context.Context) ([]*models.Conflict, error) {
	var conflicts []*models.Conflict
	err := c.do(ctx, http.MethodGet, "/v1/conflicts", nil, &conflicts)
	return conflicts, err
}

func (c *Client) ResolveConflict(ctx context.Context, id string, resolution models.Resolution) error {
	return c.do(ctx, http.MethodPost, "/v1/conflicts/"+url.PathEscape(id)+"/resolve",
		api.ResolveRequest{Resolution: string(resolution)}, nil)
}

func (c *Client) Records(ctx context.Context, table models.Table) ([]json.RawMessage, error) {
	var records []json.RawMessage
	err := c.do(ctx, http.MethodGet, "/v1/records/"+url.PathEscape(string(table)), nil, &records)
	return records, err
}

func (c *Client) Record(ctx context.Context, table models.Table, id string) (json.RawMessage, error) {
	var record json.RawMessage
	err := c.do(ctx, http.MethodGet, "/v1/records/"+url.PathEscape(string(table))+"/"+url.PathEscape(id), nil, &record)
	return record, err
}

func (c *Client) count(ctx context.Context, path string) (int, error) {
	var resp api.CountResponse
	err := c.do(ctx, http.MethodPost, path, nil, &resp)
	return resp.Count, err
}

// StatusError is a non-2xx answer from the daemon
type StatusError struct {
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("daemon error (%d): %s", e.StatusCode, e.Message)
}

// Unwrap maps well-known statuses back to engine and storage errors
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return chsync.ErrInvalidMutation
	case http.StatusNotFound:
		if strings.Contains(e.Message, storage.ErrRecordNotFound.Error()) {
			return storage.ErrRecordNotFound
		}
		return storage.ErrItemNotFound
	case http.StatusServiceUnavailable:
		return chsync.ErrOffline
	case http.StatusConflict:
		return chsync.ErrNotAwaitingResolution
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		var errResp api.ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Message != "" {
			msg = errResp.Message
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
