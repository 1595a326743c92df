package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"flowbridge/internal/apiclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const startedResponse = `{"correlation_id": "corr-123", "workflow_id": "inst-456"}`

func statusBody(state string, extra map[string]interface{}) string {
	body := map[string]interface{}{
		"create_time": 1700000000000,
		"update_time": 1700000005000,
		"start_time":  1700000001000,
		"status":      state,
		"workflow_id": "561",
		"input":       map[string]interface{}{},
		"output":      map[string]interface{}{},
	}
	for k, v := range extra {
		body[k] = v
	}
	data, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return string(data)
}

func newExecution(api *stubAPI, cfg ExecutionConfig) *ExecutionService {
	s := NewExecutionService(api, NewErrorHandler(), cfg)
	// Fast polling for tests; the constructor clamps the configured value.
	s.pollInterval = 5 * time.Millisecond
	return s
}

func TestExecutionPayload(t *testing.T) {
	payload := executionPayload(map[string]interface{}{"a": 1})
	assert.Equal(t, map[string]interface{}{
		"input":  map[string]interface{}{"a": 1},
		"source": "application",
	}, payload)

	empty := executionPayload(nil)
	assert.Equal(t, map[string]interface{}{}, empty["input"])
}

func TestEndpoints(t *testing.T) {
	assert.Equal(t, "/api/v1/service/workflows/2724/start", startEndpoint("2724"))
	assert.Equal(t, "/api/v1/service/workflows/2724/runs/uuid-1/status", statusEndpoint("2724", "uuid-1"))
}

func TestExecuteWorkflow_Completes(t *testing.T) {
	var polls atomic.Int64
	api := &stubAPI{
		postFunc: func(path string, body interface{}) (*apiclient.Response, error) {
			assert.Equal(t, "/api/v1/service/workflows/561/start", path)
			payload, ok := body.(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, "application", payload["source"])
			return jsonResponse(startedResponse), nil
		},
		getFunc: func(path string) (*apiclient.Response, error) {
			assert.Equal(t, "/api/v1/service/workflows/561/runs/inst-456/status", path)
			if polls.Add(1) < 3 {
				return jsonResponse(statusBody(StateRunning, nil)), nil
			}
			return jsonResponse(statusBody(StateCompleted, map[string]interface{}{
				"end_time": 1700000004000,
				"output":   map[string]interface{}{"result": "ok"},
			})), nil
		},
	}
	s := newExecution(api, ExecutionConfig{Timeout: 5 * time.Second, MaxConcurrent: 2})

	result := s.ExecuteWorkflow(context.Background(), "561", map[string]interface{}{"competitor_page": "https://example.com"})

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, StateCompleted, result.Status)
	assert.Equal(t, "corr-123", result.CorrelationID)
	assert.Equal(t, "inst-456", result.WorkflowInstanceID)
	assert.Equal(t, "561", result.OriginalWorkflowID)
	assert.Equal(t, int64(3000), result.DurationMs)
	assert.Equal(t, map[string]interface{}{"result": "ok"}, result.Metadata["output"])
	assert.EqualValues(t, 3, polls.Load())
	assert.Equal(t, 0, s.ActiveCount())
}

func TestExecuteWorkflow_FailedMessageFromOutput(t *testing.T) {
	tests := []struct {
		name     string
		extra    map[string]interface{}
		expected string
	}{
		{
			name:     "output error field",
			extra:    map[string]interface{}{"output": map[string]interface{}{"error": "upstream exploded"}},
			expected: "upstream exploded",
		},
		{
			name:     "output message field",
			extra:    map[string]interface{}{"output": map[string]interface{}{"message": "quota exceeded"}},
			expected: "quota exceeded",
		},
		{
			name:     "top-level error field",
			extra:    map[string]interface{}{"error": "run aborted"},
			expected: "run aborted",
		},
		{
			name:     "no detail at all",
			extra:    nil,
			expected: "workflow execution failed",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			api := &stubAPI{
				postFunc: func(path string, body interface{}) (*apiclient.Response, error) {
					return jsonResponse(startedResponse), nil
				},
				getFunc: func(path string) (*apiclient.Response, error) {
					return jsonResponse(statusBody(StateFailed, test.extra)), nil
				},
			}
			s := newExecution(api, ExecutionConfig{Timeout: time.Second, MaxConcurrent: 1})

			result := s.ExecuteWorkflow(context.Background(), "561", nil)
			assert.False(t, result.Success)
			assert.Equal(t, StateFailed, result.Status)
			assert.Equal(t, FailureExecution, result.Class)
			assert.Equal(t, test.expected, result.Error)
		})
	}
}

func TestExecuteWorkflow_StartFailure(t *testing.T) {
	api := &stubAPI{
		postFunc: func(path string, body interface{}) (*apiclient.Response, error) {
			return jsonResponse(`{"correlation_id": "corr-123"}`), nil
		},
	}
	s := newExecution(api, ExecutionConfig{Timeout: time.Second, MaxConcurrent: 1})

	result := s.ExecuteWorkflow(context.Background(), "561", nil)
	assert.False(t, result.Success)
	assert.Equal(t, StateFailed, result.Status)
	assert.Equal(t, FailureExecution, result.Class)
	assert.Contains(t, result.Error, "workflow_id")
}

func TestExecuteWorkflow_Timeout(t *testing.T) {
	api := &stubAPI{
		postFunc: func(path string, body interface{}) (*apiclient.Response, error) {
			return jsonResponse(startedResponse), nil
		},
		getFunc: func(path string) (*apiclient.Response, error) {
			return jsonResponse(statusBody(StateRunning, nil)), nil
		},
	}
	s := newExecution(api, ExecutionConfig{MaxConcurrent: 1})
	s.timeout = 20 * time.Millisecond

	result := s.ExecuteWorkflow(context.Background(), "561", nil)

	assert.False(t, result.Success)
	assert.Equal(t, FailureTimeout, result.Class)
	// The remote run may still be going; only the local wait ended.
	assert.Equal(t, StateRunning, result.Status)
	assert.Equal(t, ErrExecutionTimeout.Error(), result.Error)
}

func TestExecuteWorkflow_CancelledMidPoll(t *testing.T) {
	api := &stubAPI{
		postFunc: func(path string, body interface{}) (*apiclient.Response, error) {
			return jsonResponse(startedResponse), nil
		},
		getFunc: func(path string) (*apiclient.Response, error) {
			return jsonResponse(statusBody(StateRunning, nil)), nil
		},
	}
	s := newExecution(api, ExecutionConfig{Timeout: 10 * time.Second, MaxConcurrent: 1})

	go func() {
		for s.ActiveCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		assert.True(t, s.CancelExecution("561", "inst-456"))
	}()

	result := s.ExecuteWorkflow(context.Background(), "561", nil)

	assert.False(t, result.Success)
	assert.Equal(t, StateCancelled, result.Status)
	assert.Equal(t, FailureCancelled, result.Class)
	assert.Equal(t, ErrExecutionCancelled.Error(), result.Error)
	assert.Equal(t, 0, s.ActiveCount())
}

func TestCancelExecution_UnknownIsIdempotentSuccess(t *testing.T) {
	s := newExecution(&stubAPI{}, ExecutionConfig{MaxConcurrent: 1})
	assert.True(t, s.CancelExecution("no-such", "run"))
	assert.True(t, s.CancelExecution("no-such", "run"))
}

func TestExecuteWorkflow_ConcurrencyLimit(t *testing.T) {
	release := make(chan struct{})
	api := &stubAPI{
		postFunc: func(path string, body interface{}) (*apiclient.Response, error) {
			return jsonResponse(startedResponse), nil
		},
		getFunc: func(path string) (*apiclient.Response, error) {
			<-release
			return jsonResponse(statusBody(StateCompleted, nil)), nil
		},
	}
	s := newExecution(api, ExecutionConfig{Timeout: 10 * time.Second, MaxConcurrent: 1})

	done := make(chan *ExecutionResult, 1)
	go func() {
		done <- s.ExecuteWorkflow(context.Background(), "561", nil)
	}()
	for s.ActiveCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	// The slot is taken: a second execution is rejected, not queued.
	rejected := s.ExecuteWorkflow(context.Background(), "562", nil)
	assert.False(t, rejected.Success)
	assert.Equal(t, StateFailed, rejected.Status)
	assert.Contains(t, rejected.Error, "too many concurrent workflow executions (limit 1)")

	close(release)
	first := <-done
	assert.True(t, first.Success)
}

func TestCancelAll(t *testing.T) {
	api := &stubAPI{
		postFunc: func(path string, body interface{}) (*apiclient.Response, error) {
			return jsonResponse(startedResponse), nil
		},
		getFunc: func(path string) (*apiclient.Response, error) {
			return jsonResponse(statusBody(StateRunning, nil)), nil
		},
	}
	s := newExecution(api, ExecutionConfig{Timeout: 10 * time.Second, MaxConcurrent: 2})

	done := make(chan *ExecutionResult, 1)
	go func() {
		done <- s.ExecuteWorkflow(context.Background(), "561", nil)
	}()
	for s.ActiveCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	s.CancelAll()

	result := <-done
	assert.Equal(t, StateCancelled, result.Status)
	assert.Equal(t, 0, s.ActiveCount())
}

func TestPollUntilComplete_StatusCheckError(t *testing.T) {
	api := &stubAPI{
		getFunc: func(path string) (*apiclient.Response, error) {
			return nil, errors.New("boom")
		},
	}
	s := newExecution(api, ExecutionConfig{Timeout: time.Second, MaxConcurrent: 1})

	_, err := s.PollUntilComplete(context.Background(), "561", "inst-456", 0)
	require.Error(t, err)
	assert.Equal(t, FailureStatusCheck, s.errors.Classify(err, FailureStatusCheck))
}

func TestNewExecutionService_ClampsConfig(t *testing.T) {
	s := NewExecutionService(&stubAPI{}, NewErrorHandler(), ExecutionConfig{
		StatusCheckInterval: 100 * time.Millisecond,
		Timeout:             -1,
		MaxConcurrent:       0,
	})

	assert.Equal(t, minStatusCheckInterval, s.pollInterval)
	assert.Equal(t, 5*time.Minute, s.timeout)
	assert.Equal(t, 1, cap(s.sem))
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "valid running",
			body: statusBody(StateRunning, nil),
		},
		{
			name: "valid with optional fields",
			body: statusBody(StateCompleted, map[string]interface{}{
				"end_time":           1700000004000,
				"error":              "",
				"workflowInstanceId": "inst-456",
			}),
		},
		{
			name:    "not an object",
			body:    `[1, 2, 3]`,
			wantErr: "not an object",
		},
		{
			name:    "missing create_time",
			body:    `{"update_time":1,"start_time":1,"status":"RUNNING","workflow_id":"561","input":{},"output":{}}`,
			wantErr: "create_time",
		},
		{
			name:    "string start_time",
			body:    `{"create_time":1,"update_time":1,"start_time":"soon","status":"RUNNING","workflow_id":"561","input":{},"output":{}}`,
			wantErr: "start_time",
		},
		{
			name:    "missing status",
			body:    `{"create_time":1,"update_time":1,"start_time":1,"workflow_id":"561","input":{},"output":{}}`,
			wantErr: "missing status",
		},
		{
			name:    "missing output object",
			body:    `{"create_time":1,"update_time":1,"start_time":1,"status":"RUNNING","workflow_id":"561","input":{},"output":"done"}`,
			wantErr: "output",
		},
		{
			name:    "non-numeric end_time",
			body:    statusBody(StateCompleted, map[string]interface{}{"end_time": "later"}),
			wantErr: "end_time",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			status, err := parseStatus(json.RawMessage(test.body))
			if test.wantErr == "" {
				require.NoError(t, err)
				require.NotNil(t, status)
				return
			}
			require.Error(t, err)
			assert.True(t, IsAPIFormatError(err), "expected an API format error, got %v", err)
			assert.Contains(t, err.Error(), test.wantErr)
		})
	}
}

func TestStatusDurationMs(t *testing.T) {
	end := int64(1700000004000)
	status := &Status{StartTime: 1700000001000, EndTime: &end}
	dur, ok := status.DurationMs()
	require.True(t, ok)
	assert.Equal(t, int64(3000), dur)

	_, ok = (&Status{StartTime: 1700000001000}).DurationMs()
	assert.False(t, ok)
}
