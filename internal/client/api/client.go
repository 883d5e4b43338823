package api

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

	"github.com/iudanet/chartsync/internal/models"
	"github.com/iudanet/chartsync/pkg/api"
)

// DefaultTimeout ограничивает время одного запроса к backend
const DefaultTimeout = 30 * time.Second

var (
	// ErrNotFound indicates that the backend has no such record
	ErrNotFound = errors.New("record not found on server")

	// ErrUnauthorized indicates a missing, invalid or expired access token
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusError is any other non-2xx response
type StatusError struct {
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// Client представляет HTTP клиент для взаимодействия с backend.
// Реализует Remote Adapter для планировщика синхронизации.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
}

// NewClient создает новый API клиент
func NewClient(baseURL, accessToken string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// WithTimeout overrides the per-request timeout. Non-positive values are ignored.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.httpClient.Timeout = d
	}
	return c
}

// Health проверяет доступность backend. Не требует токена.
func (c *Client) Health(ctx context.Context) error {
	var resp api.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("backend status %q", resp.Status)
	}
	return nil
}

// Insert creates a record and returns the server-assigned id. The backend
// deduplicates on the payload id, so a retried Insert returns the same record.
func (c *Client) Insert(ctx context.Context, table models.Table, payload json.RawMessage) (string, error) {
	var rec api.Record
	if err := c.doRequest(ctx, http.MethodPost, recordsPath(table), payload, &rec); err != nil {
		return "", fmt.Errorf("insert %s failed: %w", table, err)
	}
	if rec.ID == "" {
		return "", fmt.Errorf("insert %s: server returned empty id", table)
	}
	return rec.ID, nil
}

// Update merges payload fields into the record
func (c *Client) Update(ctx context.Context, table models.Table, id string, payload json.RawMessage) error {
	if err := c.doRequest(ctx, http.MethodPatch, recordPath(table, id), payload, nil); err != nil {
		return fmt.Errorf("update %s/%s failed: %w", table, id, err)
	}
	return nil
}

// Delete removes the record. A record that is already gone counts as deleted.
func (c *Client) Delete(ctx context.Context, table models.Table, id string) error {
	err := c.doRequest(ctx, http.MethodDelete, recordPath(table, id), nil, nil)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete %s/%s failed: %w", table, id, err)
	}
	return nil
}

// FetchLastModified returns the record's last-modified time and current data.
// A missing record is reported as a snapshot with Exists=false.
func (c *Client) FetchLastModified(ctx context.Context, table models.Table, id string) (*models.RemoteSnapshot, error) {
	var rec api.Record
	err := c.doRequest(ctx, http.MethodGet, recordPath(table, id), nil, &rec)
	if errors.Is(err, ErrNotFound) {
		return &models.RemoteSnapshot{Exists: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s failed: %w", table, id, err)
	}
	return &models.RemoteSnapshot{
		Exists:        true,
		LastModified:  rec.UpdatedAt,
		FieldModified: rec.FieldUpdatedAt,
		Record:        rec.Data,
	}, nil
}

func recordsPath(table models.Table) string {
	return "/api/v1/tables/" + url.PathEscape(string(table)) + "/records"
}

func recordPath(table models.Table, id string) string {
	return recordsPath(table) + "/" + url.PathEscape(id)
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, respBody)
	}

	// Декодируем успешный ответ
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func statusError(code int, body []byte) error {
	switch code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	}

	msg := strings.TrimSpace(string(body))
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		msg = errResp.Error
		if errResp.Message != "" {
			msg += ": " + errResp.Message
		}
	}
	return &StatusError{StatusCode: code, Message: msg}
}
