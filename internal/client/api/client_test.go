package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/chartsync/internal/models"
	"github.com/iudanet/chartsync/pkg/api"
)

// TestNewClient проверяет создание нового клиента
func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/", "tok")

	assert.NotNil(t, client)
	assert.Equal(t, "http://localhost:8080", client.baseURL)
	assert.Equal(t, "tok", client.accessToken)
	assert.Equal(t, DefaultTimeout, client.httpClient.Timeout)
}

func TestClient_Insert(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/tables/patients/records", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"temp_1","name":"Amina"}`, string(body))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(api.Record{
			ID:        "srv-1",
			Table:     "patients",
			ClientKey: "temp_1",
			Data:      json.RawMessage(`{"id":"srv-1","name":"Amina"}`),
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	id, err := client.Insert(context.Background(), models.TablePatients, json.RawMessage(`{"id":"temp_1","name":"Amina"}`))
	require.NoError(t, err)
	assert.Equal(t, "srv-1", id)
}

func TestClient_Update(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/v1/tables/encounters/records/e-1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"e-1"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	err := client.Update(context.Background(), models.TableEncounters, "e-1", json.RawMessage(`{"id":"e-1","notes":"x"}`))
	assert.NoError(t, err)
}

func TestClient_Delete(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "deleted", status: http.StatusNoContent},
		{name: "already gone", status: http.StatusNotFound},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := NewClient(server.URL, "tok").Delete(context.Background(), models.TablePatients, "p-1")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestClient_FetchLastModified(t *testing.T) {
	updated := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/api/v1/tables/patients/records/p-1":
			_ = json.NewEncoder(w).Encode(api.Record{
				ID:             "p-1",
				UpdatedAt:      updated,
				Data:           json.RawMessage(`{"id":"p-1","name":"Amina"}`),
				FieldUpdatedAt: map[string]time.Time{"name": updated},
			})
		case "/api/v1/tables/patients/records/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "not found"})
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")

	snap, err := client.FetchLastModified(context.Background(), models.TablePatients, "p-1")
	require.NoError(t, err)
	assert.True(t, snap.Exists)
	assert.True(t, updated.Equal(snap.LastModified))
	assert.True(t, updated.Equal(snap.FieldModified["name"]))
	assert.JSONEq(t, `{"id":"p-1","name":"Amina"}`, string(snap.Record))

	snap, err = client.FetchLastModified(context.Background(), models.TablePatients, "missing")
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	_, err = client.FetchLastModified(context.Background(), models.TablePatients, "broken")
	assert.Error(t, err)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		check  func(t *testing.T, err error)
		name   string
		body   string
		status int
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrUnauthorized)
			},
		},
		{
			name:   "validation error",
			status: http.StatusBadRequest,
			body:   `{"error":"invalid record","message":"record cannot be empty"}`,
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, http.StatusBadRequest, se.StatusCode)
				assert.Equal(t, "invalid record: record cannot be empty", se.Message)
			},
		},
		{
			name:   "plain text error",
			status: http.StatusBadGateway,
			body:   "upstream down",
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, "upstream down", se.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL, "tok").Insert(context.Background(), models.TablePatients, json.RawMessage(`{"name":"x"}`))
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(api.HealthResponse{Status: "ok"})
	}))

	client := NewClient(server.URL, "")
	require.NoError(t, client.Health(context.Background()))

	server.Close()
	assert.Error(t, client.Health(context.Background()))
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	err := NewClient(server.URL, "tok").Update(context.Background(), models.TablePatients, "p-1", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_WithTimeout(t *testing.T) {
	client := NewClient("http://localhost", "").WithTimeout(5 * time.Second)
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)

	client.WithTimeout(0)
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
}
