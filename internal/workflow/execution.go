package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"flowbridge/internal/apiclient"
	"flowbridge/pkg/logging"

	"github.com/google/uuid"
)

// minStatusCheckInterval is the floor for poll spacing, enforced at
// construction regardless of configuration.
const minStatusCheckInterval = time.Second

// workflowStartSource tags started runs with their origin.
const workflowStartSource = "application"

var (
	// ErrExecutionTimeout terminates polling when the wall-clock budget is
	// exceeded, regardless of remote status.
	ErrExecutionTimeout = errors.New("workflow execution timeout")

	// ErrExecutionCancelled terminates polling after CancelExecution.
	ErrExecutionCancelled = errors.New("workflow execution was cancelled")
)

// apiDoer is what execution needs from the API client.
type apiDoer interface {
	Get(ctx context.Context, path string, query url.Values) (*apiclient.Response, error)
	Post(ctx context.Context, path string, body interface{}) (*apiclient.Response, error)
}

// ExecutionConfig sizes an ExecutionService.
type ExecutionConfig struct {
	// Timeout bounds one execution, measured from the start of polling.
	Timeout time.Duration
	// StatusCheckInterval spaces polls; clamped to minStatusCheckInterval.
	StatusCheckInterval time.Duration
	// MaxConcurrent caps simultaneous executions.
	MaxConcurrent int
}

// ExecutionService starts remote workflow runs and polls them to a terminal
// state.
//
// Each in-flight execution holds an entry in the active-run registry, giving
// CancelExecution a handle to terminate its polling loop cooperatively: the
// cancellation takes effect at the loop's next suspension point, it does not
// abort an in-flight HTTP request. Polls for one run are strictly
// sequential; runs poll independently of each other.
type ExecutionService struct {
	client       apiDoer
	errors       *ErrorHandler
	timeout      time.Duration
	pollInterval time.Duration
	sem          chan struct{}

	mu     sync.Mutex
	active map[executionKey]*executionHandle
}

type executionKey struct {
	workflowID string
	instanceID string
}

type executionHandle struct {
	trackingID string
	cancel     context.CancelCauseFunc
	startedAt  time.Time
}

// NewExecutionService creates an execution service. Out-of-range config
// values are clamped, not rejected: the floor on the poll interval protects
// the remote API from misconfiguration.
func NewExecutionService(client apiDoer, errorHandler *ErrorHandler, cfg ExecutionConfig) *ExecutionService {
	if cfg.StatusCheckInterval < minStatusCheckInterval {
		logging.Debug("Execution", "Status check interval %v below floor, clamping to %v",
			cfg.StatusCheckInterval, minStatusCheckInterval)
		cfg.StatusCheckInterval = minStatusCheckInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}

	return &ExecutionService{
		client:       client,
		errors:       errorHandler,
		timeout:      cfg.Timeout,
		pollInterval: cfg.StatusCheckInterval,
		sem:          make(chan struct{}, cfg.MaxConcurrent),
		active:       make(map[executionKey]*executionHandle),
	}
}

// ExecuteWorkflow starts a remote run and polls it to a terminal state.
// It never returns an error: every failure mode is expressed through the
// returned result's Success/Error/Class fields.
func (s *ExecutionService) ExecuteWorkflow(ctx context.Context, workflowID string, params map[string]interface{}) *ExecutionResult {
	result := &ExecutionResult{
		OriginalWorkflowID: workflowID,
		Status:             StateRunning,
		Metadata:           map[string]interface{}{},
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	default:
		err := fmt.Errorf("too many concurrent workflow executions (limit %d)", cap(s.sem))
		s.errors.Handle(FailureExecution, "execute workflow "+workflowID, err, params)
		result.Status = StateFailed
		result.Error = err.Error()
		result.Class = FailureExecution
		return result
	}

	correlationID, instanceID, err := s.startWorkflow(ctx, workflowID, params)
	if err != nil {
		s.errors.Handle(FailureExecution, "start workflow "+workflowID, err, params)
		result.Status = StateFailed
		result.Error = err.Error()
		result.Class = FailureExecution
		return result
	}
	result.CorrelationID = correlationID
	result.WorkflowInstanceID = instanceID

	status, err := s.PollUntilComplete(ctx, workflowID, instanceID, s.timeout)
	if err != nil {
		class := s.errors.Classify(err, FailureStatusCheck)
		s.errors.Handle(class, "poll workflow "+workflowID, err, nil)
		result.Error = err.Error()
		result.Class = class
		switch class {
		case FailureTimeout:
			// The remote run may still be going; only the local wait ended.
			result.Status = StateRunning
		case FailureCancelled:
			result.Status = StateCancelled
		default:
			result.Status = StateFailed
		}
		return result
	}

	result.Status = status.State
	result.Metadata["output"] = status.Output
	result.Metadata["workflowId"] = status.WorkflowID
	if dur, ok := status.DurationMs(); ok {
		result.DurationMs = dur
	}

	switch status.State {
	case StateCompleted:
		result.Success = true
	case StateFailed:
		result.Error = failureMessage(status)
		result.Class = FailureExecution
	case StateCancelled:
		result.Error = ErrExecutionCancelled.Error()
		result.Class = FailureCancelled
	}
	return result
}

// startWorkflow issues the start call and extracts the run identifiers.
// A response missing either identifier is a fatal parse error for the call.
func (s *ExecutionService) startWorkflow(ctx context.Context, workflowID string, params map[string]interface{}) (correlationID, instanceID string, err error) {
	resp, err := s.client.Post(ctx, startEndpoint(workflowID), executionPayload(params))
	if err != nil {
		return "", "", err
	}

	var started struct {
		CorrelationID string `json:"correlation_id"`
		WorkflowID    string `json:"workflow_id"`
	}
	if err := json.Unmarshal(resp.Data, &started); err != nil {
		return "", "", newAPIFormatError("malformed start response: %v", err)
	}
	if started.CorrelationID == "" || started.WorkflowID == "" {
		return "", "", newAPIFormatError("start response missing correlation_id or workflow_id")
	}

	logging.Debug("Execution", "Started workflow %s (instance: %s, correlation: %s)",
		workflowID, started.WorkflowID, started.CorrelationID)
	return started.CorrelationID, started.WorkflowID, nil
}

// PollUntilComplete polls the run's status until it reaches a terminal
// state. It returns ErrExecutionTimeout when the wall-clock budget elapses
// and ErrExecutionCancelled when CancelExecution interrupts the loop.
// A zero timeout uses the service default.
func (s *ExecutionService) PollUntilComplete(ctx context.Context, workflowID, instanceID string, timeout time.Duration) (*Status, error) {
	if timeout <= 0 {
		timeout = s.timeout
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	key := executionKey{workflowID: workflowID, instanceID: instanceID}
	handle := &executionHandle{
		trackingID: uuid.New().String(),
		cancel:     cancel,
		startedAt:  time.Now(),
	}
	s.mu.Lock()
	s.active[key] = handle
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, key)
		s.mu.Unlock()
	}()

	deadline := handle.startedAt.Add(timeout)
	for {
		status, err := s.fetchStatus(runCtx, workflowID, instanceID)
		if err != nil {
			if cause := context.Cause(runCtx); errors.Is(cause, ErrExecutionCancelled) {
				return nil, ErrExecutionCancelled
			}
			return nil, err
		}
		status.InstanceID = instanceID

		if IsTerminal(status.State) {
			logging.Debug("Execution", "Workflow %s instance %s reached %s", workflowID, instanceID, status.State)
			return status, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrExecutionTimeout
		}

		timer := time.NewTimer(s.pollInterval)
		select {
		case <-runCtx.Done():
			timer.Stop()
			if cause := context.Cause(runCtx); errors.Is(cause, ErrExecutionCancelled) {
				return nil, ErrExecutionCancelled
			}
			return nil, runCtx.Err()
		case <-timer.C:
		}
	}
}

// CancelExecution requests cooperative cancellation of an active run's
// polling loop. Cancelling an unknown run is a no-op success, so the call
// is idempotent and always returns true.
func (s *ExecutionService) CancelExecution(workflowID, instanceID string) bool {
	s.mu.Lock()
	handle, ok := s.active[executionKey{workflowID: workflowID, instanceID: instanceID}]
	s.mu.Unlock()

	if !ok {
		logging.Debug("Execution", "Cancel requested for unknown execution %s/%s", workflowID, instanceID)
		return true
	}

	handle.cancel(ErrExecutionCancelled)
	logging.Info("Execution", "Cancelled workflow %s instance %s", workflowID, instanceID)
	return true
}

// CancelAll cancels every active execution. Used at shutdown to drain the
// polling loops.
func (s *ExecutionService) CancelAll() {
	s.mu.Lock()
	handles := make([]*executionHandle, 0, len(s.active))
	for _, handle := range s.active {
		handles = append(handles, handle)
	}
	count := len(handles)
	s.mu.Unlock()

	for _, handle := range handles {
		handle.cancel(ErrExecutionCancelled)
	}
	if count > 0 {
		logging.Info("Execution", "Cancelled %d active executions", count)
	}
}

// ActiveCount reports the number of runs currently polling.
func (s *ExecutionService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// fetchStatus retrieves and validates one status snapshot.
func (s *ExecutionService) fetchStatus(ctx context.Context, workflowID, instanceID string) (*Status, error) {
	resp, err := s.client.Get(ctx, statusEndpoint(workflowID, instanceID), nil)
	if err != nil {
		return nil, err
	}
	return parseStatus(resp.Data)
}

// executionPayload builds the start request body.
func executionPayload(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		params = map[string]interface{}{}
	}
	return map[string]interface{}{
		"input":  params,
		"source": workflowStartSource,
	}
}

func startEndpoint(workflowID string) string {
	return fmt.Sprintf("/api/v1/service/workflows/%s/start", workflowID)
}

func statusEndpoint(workflowID, instanceID string) string {
	return fmt.Sprintf("/api/v1/service/workflows/%s/runs/%s/status", workflowID, instanceID)
}

// parseStatus validates a status payload field by field. A response that
// deserializes but misses required fields (or carries wrong types) is an
// API format error, distinct from a business-level FAILED status.
func parseStatus(data json.RawMessage) (*Status, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newAPIFormatError("status response is not an object: %v", err)
	}

	status := &Status{}
	var ok bool

	if status.CreateTime, ok = asInt64(raw["create_time"]); !ok {
		return nil, newAPIFormatError("status response missing numeric create_time")
	}
	if status.UpdateTime, ok = asInt64(raw["update_time"]); !ok {
		return nil, newAPIFormatError("status response missing numeric update_time")
	}
	if status.StartTime, ok = asInt64(raw["start_time"]); !ok {
		return nil, newAPIFormatError("status response missing numeric start_time")
	}
	if status.State, ok = raw["status"].(string); !ok || status.State == "" {
		return nil, newAPIFormatError("status response missing status")
	}
	if status.WorkflowID, ok = raw["workflow_id"].(string); !ok || status.WorkflowID == "" {
		return nil, newAPIFormatError("status response missing workflow_id")
	}
	if status.Input, ok = raw["input"].(map[string]interface{}); !ok {
		return nil, newAPIFormatError("status response missing input object")
	}
	if status.Output, ok = raw["output"].(map[string]interface{}); !ok {
		return nil, newAPIFormatError("status response missing output object")
	}

	if rawEnd, present := raw["end_time"]; present && rawEnd != nil {
		end, ok := asInt64(rawEnd)
		if !ok {
			return nil, newAPIFormatError("status response has non-numeric end_time")
		}
		status.EndTime = &end
	}
	if errMsg, ok := raw["error"].(string); ok {
		status.Error = errMsg
	}
	if instance, ok := raw["workflowInstanceId"].(string); ok {
		status.InstanceID = instance
	}

	return status, nil
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

// failureMessage extracts a human-readable error from a FAILED snapshot.
func failureMessage(status *Status) string {
	if msg, ok := status.Output["error"].(string); ok && msg != "" {
		return msg
	}
	if msg, ok := status.Output["message"].(string); ok && msg != "" {
		return msg
	}
	if status.Error != "" {
		return status.Error
	}
	return "workflow execution failed"
}
