package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(srv.URL, "test-key",
		WithRetryAttempts(2),
		WithBackoff(time.Millisecond, 5*time.Millisecond))
	require.NoError(t, err)
	return client, srv
}

func TestGet_Success(t *testing.T) {
	var gotAuth, gotAccept string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		assert.Equal(t, "/api/v1/service/workflows/mcp", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"count":0,"results":[]}`))
	}))

	resp, err := client.Get(context.Background(), "/api/v1/service/workflows/mcp", url.Values{"limit": {"5"}})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "OK", resp.StatusText)
	assert.JSONEq(t, `{"count":0,"results":[]}`, string(resp.Data))
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
}

func TestPost_EncodesBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "application", body["source"])

		w.Write([]byte(`{"correlation_id":"c1","workflow_id":"w1"}`))
	}))

	resp, err := client.Post(context.Background(), "/api/v1/service/workflows/5/start",
		map[string]interface{}{"input": map[string]interface{}{}, "source": "application"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestRetry_ServerErrorThenSuccess(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "upstream exploded", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))

	resp, err := client.Get(context.Background(), "/flaky", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetry_ExhaustedReturnsAPIError(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "still broken", http.StatusInternalServerError)
	}))

	_, err := client.Get(context.Background(), "/broken", nil)
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok, "expected *APIError, got %T", err)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Contains(t, apiErr.Body, "still broken")
	// Initial attempt plus two retries.
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"detail":"unknown workflow"}`, http.StatusNotFound)
	}))

	_, err := client.Get(context.Background(), "/missing", nil)
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok, "expected *APIError, got %T", err)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.False(t, apiErr.Retryable())
	assert.Equal(t, int32(1), calls.Load())
}

func TestNetworkErrorIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // nothing listening anymore

	client, err := New(srv.URL, "test-key",
		WithRetryAttempts(1),
		WithBackoff(time.Millisecond, time.Millisecond))
	require.NoError(t, err)

	_, err = client.Get(context.Background(), "/anything", nil)
	require.Error(t, err)

	_, ok := err.(*NetworkError)
	assert.True(t, ok, "expected *NetworkError, got %T", err)
}

func TestContextCancellationStopsRetries(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow failure", http.StatusServiceUnavailable)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Get(ctx, "/never", nil)
	require.Error(t, err)
}

func TestCalculateBackoff(t *testing.T) {
	client, err := New("https://api.example.com", "k",
		WithBackoff(100*time.Millisecond, 400*time.Millisecond))
	require.NoError(t, err)

	assert.Equal(t, 100*time.Millisecond, client.calculateBackoff(1))
	assert.Equal(t, 200*time.Millisecond, client.calculateBackoff(2))
	assert.Equal(t, 400*time.Millisecond, client.calculateBackoff(3))
	// Capped at max.
	assert.Equal(t, 400*time.Millisecond, client.calculateBackoff(6))
}

func TestNew_RejectsInvalidBaseURL(t *testing.T) {
	_, err := New("not a url", "k")
	assert.Error(t, err)
}
