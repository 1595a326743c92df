package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"flowbridge/pkg/logging"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// FailureClass identifies a category of workflow subsystem failure. The
// class drives log severity and tells callers whether the condition is worth
// retrying, keeping cached data, or skipping an item.
type FailureClass string

const (
	FailureDiscovery       FailureClass = "DISCOVERY_FAILED"
	FailureValidation      FailureClass = "VALIDATION_FAILED"
	FailureExecution       FailureClass = "EXECUTION_FAILED"
	FailureStatusCheck     FailureClass = "STATUS_CHECK_FAILED"
	FailureToolGeneration  FailureClass = "TOOL_GENERATION_FAILED"
	FailureListUnavailable FailureClass = "WORKFLOWS_LIST_TOOL_UNAVAILABLE"
	FailureTimeout         FailureClass = "TIMEOUT"
	FailureCancelled       FailureClass = "CANCELLED"
)

// Severity of a failure class, aligned with log levels.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

type classification struct {
	severity  Severity
	retryable bool
}

// classifications fixes severity and retryability per failure class.
// Discovery and status-check failures are retryable (stale data keeps
// serving); validation and tool generation are not (the item is skipped).
var classifications = map[FailureClass]classification{
	FailureDiscovery:       {SeverityWarning, true},
	FailureValidation:      {SeverityError, false},
	FailureExecution:       {SeverityError, false},
	FailureStatusCheck:     {SeverityWarning, true},
	FailureToolGeneration:  {SeverityWarning, false},
	FailureListUnavailable: {SeverityCritical, false},
	FailureTimeout:         {SeverityError, true},
	FailureCancelled:       {SeverityInfo, false},
}

// Severity returns the fixed severity for the class.
func (c FailureClass) Severity() Severity {
	if cl, ok := classifications[c]; ok {
		return cl.severity
	}
	return SeverityError
}

// Retryable reports whether failures of this class are worth retrying.
func (c FailureClass) Retryable() bool {
	if cl, ok := classifications[c]; ok {
		return cl.retryable
	}
	return false
}

// maxErrorEvents bounds the in-memory event buffer; oldest entries are
// dropped beyond this.
const maxErrorEvents = 1000

// secretKeyPattern matches parameter keys whose values must never reach
// logs or error payloads.
var secretKeyPattern = regexp.MustCompile(`(?i)(password|token|apikey|api[_-]?key|secret|auth|key)`)

const redactedPlaceholder = "[REDACTED]"

// ErrorEvent is one recorded failure.
type ErrorEvent struct {
	ID        string
	Time      time.Time
	Class     FailureClass
	Severity  Severity
	Operation string
	Message   string
	Params    map[string]interface{}
}

// ErrorStats summarizes recorded failures.
type ErrorStats struct {
	Total   uint64
	ByClass map[FailureClass]uint64
}

// ErrorHandler classifies, logs and records workflow failures. It has no
// side effects beyond logging and its bounded in-memory buffer; callers use
// the classification to decide how to degrade.
type ErrorHandler struct {
	mu     sync.Mutex
	events []ErrorEvent
	head   int
	count  int
	counts map[FailureClass]uint64
	total  uint64
}

// NewErrorHandler creates an error handler with an empty event buffer.
func NewErrorHandler() *ErrorHandler {
	return &ErrorHandler{
		events: make([]ErrorEvent, maxErrorEvents),
		counts: make(map[FailureClass]uint64),
	}
}

// Classify maps an error to a failure class, falling back to the given
// class when the error carries no better signal. Timeout and cancellation
// sentinels win over everything; transport-level errors from the API client
// keep the caller's class.
func (h *ErrorHandler) Classify(err error, fallback FailureClass) FailureClass {
	switch {
	case errors.Is(err, ErrExecutionTimeout):
		return FailureTimeout
	case errors.Is(err, ErrExecutionCancelled):
		return FailureCancelled
	default:
		return fallback
	}
}

// Handle logs a failure at the severity of its class and records it in the
// event buffer. Params are redacted before they are stored or logged.
func (h *ErrorHandler) Handle(class FailureClass, operation string, err error, params map[string]interface{}) ErrorEvent {
	event := ErrorEvent{
		ID:        uuid.New().String(),
		Time:      time.Now(),
		Class:     class,
		Severity:  class.Severity(),
		Operation: operation,
		Params:    RedactParams(params),
	}
	if err != nil {
		event.Message = err.Error()
	}

	h.record(event)
	h.log(event, err)
	return event
}

func (h *ErrorHandler) record(event ErrorEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := (h.head + h.count) % maxErrorEvents
	if h.count == maxErrorEvents {
		// Buffer full: overwrite the oldest entry.
		h.head = (h.head + 1) % maxErrorEvents
	} else {
		h.count++
	}
	h.events[idx] = event

	h.counts[event.Class]++
	h.total++
}

func (h *ErrorHandler) log(event ErrorEvent, err error) {
	msg := "Workflow failure %s during %s"
	switch event.Severity {
	case SeverityInfo:
		logging.Info("WorkflowErrors", msg+": %v", event.Class, event.Operation, err)
	case SeverityWarning:
		logging.Warn("WorkflowErrors", msg+": %v", event.Class, event.Operation, err)
	default:
		logging.Error("WorkflowErrors", err, msg, event.Class, event.Operation)
	}
}

// Stats returns aggregate failure counters.
func (h *ErrorHandler) Stats() ErrorStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	byClass := make(map[FailureClass]uint64, len(h.counts))
	for class, n := range h.counts {
		byClass[class] = n
	}
	return ErrorStats{Total: h.total, ByClass: byClass}
}

// RecentEvents returns up to n recorded events, newest first.
func (h *ErrorHandler) RecentEvents(n int) []ErrorEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > h.count {
		n = h.count
	}
	out := make([]ErrorEvent, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.head + h.count - 1 - i + maxErrorEvents) % maxErrorEvents
		out = append(out, h.events[idx])
	}
	return out
}

// toolErrorEnvelope is the JSON body of an MCP error result.
type toolErrorEnvelope struct {
	Error toolErrorBody `json:"error"`
}

type toolErrorBody struct {
	Code      FailureClass `json:"code"`
	Message   string       `json:"message"`
	Severity  Severity     `json:"severity"`
	Retryable bool         `json:"retryable"`
}

// ToolErrorResult renders a failure as an MCP-compliant error payload: text
// content carrying a structured JSON envelope, with IsError set. Tool calls
// always return such a payload instead of crossing the protocol boundary as
// a failure.
func (h *ErrorHandler) ToolErrorResult(class FailureClass, message string) *mcp.CallToolResult {
	envelope := toolErrorEnvelope{
		Error: toolErrorBody{
			Code:      class,
			Message:   message,
			Severity:  class.Severity(),
			Retryable: class.Retryable(),
		},
	}

	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", class, message))
	}
	result := mcp.NewToolResultText(string(data))
	result.IsError = true
	return result
}

// RedactParams returns a copy of params with secret-looking values replaced.
// Nested maps are redacted recursively; the input is never mutated.
func RedactParams(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	out := make(map[string]interface{}, len(params))
	for key, value := range params {
		if secretKeyPattern.MatchString(key) {
			out[key] = redactedPlaceholder
			continue
		}
		if nested, ok := value.(map[string]interface{}); ok {
			out[key] = RedactParams(nested)
			continue
		}
		out[key] = value
	}
	return out
}

// IsAPIFormatError reports whether err represents a malformed remote
// payload rather than a transport failure.
func IsAPIFormatError(err error) bool {
	var formatErr *apiFormatError
	return errors.As(err, &formatErr)
}

// apiFormatError marks responses that arrived but failed structural
// validation. Distinct from *apiclient.APIError (HTTP-level) and
// *apiclient.NetworkError (transport-level).
type apiFormatError struct {
	reason string
}

func (e *apiFormatError) Error() string {
	return "invalid API response: " + e.reason
}

func newAPIFormatError(format string, args ...interface{}) error {
	return &apiFormatError{reason: fmt.Sprintf(format, args...)}
}
