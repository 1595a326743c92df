package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureClassifications(t *testing.T) {
	tests := []struct {
		class     FailureClass
		severity  Severity
		retryable bool
	}{
		{FailureDiscovery, SeverityWarning, true},
		{FailureValidation, SeverityError, false},
		{FailureExecution, SeverityError, false},
		{FailureStatusCheck, SeverityWarning, true},
		{FailureToolGeneration, SeverityWarning, false},
		{FailureListUnavailable, SeverityCritical, false},
		{FailureTimeout, SeverityError, true},
		{FailureCancelled, SeverityInfo, false},
	}

	for _, test := range tests {
		t.Run(string(test.class), func(t *testing.T) {
			assert.Equal(t, test.severity, test.class.Severity())
			assert.Equal(t, test.retryable, test.class.Retryable())
		})
	}
}

func TestClassify_SentinelsWin(t *testing.T) {
	h := NewErrorHandler()

	assert.Equal(t, FailureTimeout, h.Classify(ErrExecutionTimeout, FailureStatusCheck))
	assert.Equal(t, FailureTimeout, h.Classify(fmt.Errorf("poll: %w", ErrExecutionTimeout), FailureStatusCheck))
	assert.Equal(t, FailureCancelled, h.Classify(ErrExecutionCancelled, FailureStatusCheck))
	assert.Equal(t, FailureStatusCheck, h.Classify(errors.New("boom"), FailureStatusCheck))
}

func TestHandle_RecordsAndCounts(t *testing.T) {
	h := NewErrorHandler()

	event := h.Handle(FailureDiscovery, "list workflows", errors.New("connection refused"), nil)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, SeverityWarning, event.Severity)
	assert.Equal(t, "connection refused", event.Message)

	h.Handle(FailureDiscovery, "list workflows", errors.New("again"), nil)
	h.Handle(FailureExecution, "start workflow", errors.New("500"), nil)

	stats := h.Stats()
	assert.Equal(t, uint64(3), stats.Total)
	assert.Equal(t, uint64(2), stats.ByClass[FailureDiscovery])
	assert.Equal(t, uint64(1), stats.ByClass[FailureExecution])

	recent := h.RecentEvents(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "start workflow", recent[0].Operation, "newest first")
	assert.Equal(t, "list workflows", recent[1].Operation)
}

func TestHandle_BufferIsBounded(t *testing.T) {
	h := NewErrorHandler()

	for i := 0; i < maxErrorEvents+50; i++ {
		h.Handle(FailureStatusCheck, fmt.Sprintf("op-%d", i), errors.New("x"), nil)
	}

	assert.Equal(t, uint64(maxErrorEvents+50), h.Stats().Total)

	recent := h.RecentEvents(maxErrorEvents + 50)
	require.Len(t, recent, maxErrorEvents, "buffer holds at most %d events", maxErrorEvents)
	assert.Equal(t, fmt.Sprintf("op-%d", maxErrorEvents+49), recent[0].Operation)
	assert.Equal(t, "op-50", recent[len(recent)-1].Operation, "oldest entries are dropped")
}

func TestRedactParams(t *testing.T) {
	params := map[string]interface{}{
		"username": "alice",
		"password": "hunter2",
		"apiKey":   "abc",
		"api_key":  "def",
		"Token":    "ghi",
		"nested": map[string]interface{}{
			"client_secret": "jkl",
			"page":          3,
		},
	}

	redacted := RedactParams(params)

	assert.Equal(t, "alice", redacted["username"])
	assert.Equal(t, "[REDACTED]", redacted["password"])
	assert.Equal(t, "[REDACTED]", redacted["apiKey"])
	assert.Equal(t, "[REDACTED]", redacted["api_key"])
	assert.Equal(t, "[REDACTED]", redacted["Token"])

	nested := redacted["nested"].(map[string]interface{})
	assert.Equal(t, "[REDACTED]", nested["client_secret"])
	assert.Equal(t, 3, nested["page"])

	// The input is never mutated.
	assert.Equal(t, "hunter2", params["password"])

	assert.Nil(t, RedactParams(nil))
}

func TestToolErrorResult(t *testing.T) {
	h := NewErrorHandler()

	result := h.ToolErrorResult(FailureTimeout, "workflow execution timeout")
	require.True(t, result.IsError)
	require.Len(t, result.Content, 1)

	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)

	var envelope struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			Severity  string `json:"severity"`
			Retryable bool   `json:"retryable"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &envelope))
	assert.Equal(t, "TIMEOUT", envelope.Error.Code)
	assert.Equal(t, "workflow execution timeout", envelope.Error.Message)
	assert.Equal(t, "error", envelope.Error.Severity)
	assert.True(t, envelope.Error.Retryable)
}

func TestIsAPIFormatError(t *testing.T) {
	err := newAPIFormatError("missing %s", "results")
	assert.True(t, IsAPIFormatError(err))
	assert.True(t, IsAPIFormatError(fmt.Errorf("fetch: %w", err)))
	assert.False(t, IsAPIFormatError(errors.New("missing results")))
	assert.Contains(t, err.Error(), "invalid API response: missing results")
}
