package workflow

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
)

// Execution states reported by the remote platform. COMPLETED, FAILED and
// CANCELLED are terminal; polling stops on the first terminal snapshot.
const (
	StateRunning   = "RUNNING"
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
	StateCancelled = "CANCELLED"
)

// IsTerminal reports whether a workflow run state ends polling.
func IsTerminal(state string) bool {
	switch state {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Definition is a remote workflow after boundary validation: identifiers
// stringified, name sanitized, input schema normalized. Everything past
// discovery operates on this type and never on raw API shapes.
type Definition struct {
	ID            string
	Name          string
	Description   string
	Category      string
	Version       string
	InputSchema   InputSchema
	ExecutionType string
	Metadata      Metadata
}

// Metadata preserves the raw identifiers a Definition was derived from, for
// logging and troubleshooting against the remote platform.
type Metadata struct {
	OriginalID     string
	OriginalTitle  string
	OriginalInputs map[string]interface{}
	Source         string
}

// InputSchema is the validated, internal form of a workflow's parameter
// schema. Type is always "object".
type InputSchema struct {
	Type       string
	Properties map[string]Property
	Required   []string
}

// Property describes a single workflow parameter.
type Property struct {
	Type        string
	Description string
}

// DefaultInputSchema is substituted when a remote workflow carries no
// usable input declaration: a single free-form parameters object.
func DefaultInputSchema() InputSchema {
	return InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"parameters": {
				Type:        "object",
				Description: "Workflow input parameters",
			},
		},
		Required: []string{},
	}
}

// Equal reports whether two schemas are semantically identical. Required
// lists are compared as sets. Used by the refresh diff to decide whether a
// registered tool needs replacing.
func (s InputSchema) Equal(other InputSchema) bool {
	if s.Type != other.Type || len(s.Properties) != len(other.Properties) {
		return false
	}
	for name, prop := range s.Properties {
		if other.Properties[name] != prop {
			return false
		}
	}
	if len(s.Required) != len(other.Required) {
		return false
	}
	a := append([]string(nil), s.Required...)
	b := append([]string(nil), other.Required...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ToMCP converts the schema into the MCP tool input schema shape.
func (s InputSchema) ToMCP() mcp.ToolInputSchema {
	properties := make(map[string]interface{}, len(s.Properties))
	for name, prop := range s.Properties {
		propSchema := map[string]interface{}{
			"type": prop.Type,
		}
		if prop.Description != "" {
			propSchema["description"] = prop.Description
		}
		properties[name] = propSchema
	}

	required := s.Required
	if required == nil {
		required = []string{}
	}

	return mcp.ToolInputSchema{
		Type:       s.Type,
		Properties: properties,
		Required:   required,
	}
}

// Status is one poll snapshot of a workflow run, validated at the API
// boundary. Times are epoch milliseconds as reported by the platform.
// EndTime is nil while the run is still RUNNING; Error is populated only for
// FAILED runs.
type Status struct {
	CreateTime int64
	UpdateTime int64
	StartTime  int64
	EndTime    *int64
	State      string
	WorkflowID string
	Input      map[string]interface{}
	Output     map[string]interface{}
	InstanceID string
	Error      string
}

// DurationMs returns end_time - start_time when both are known.
func (s *Status) DurationMs() (int64, bool) {
	if s.EndTime == nil || s.StartTime == 0 {
		return 0, false
	}
	return *s.EndTime - s.StartTime, true
}

// ExecutionResult is the terminal outcome of a single workflow execution
// call. It is created when execution starts and mutated only by the owning
// call; failures are expressed through Success/Error/Class, never panics.
type ExecutionResult struct {
	Success            bool
	CorrelationID      string
	WorkflowInstanceID string
	OriginalWorkflowID string
	Status             string
	Error              string
	Class              FailureClass
	DurationMs         int64
	Metadata           map[string]interface{}
}
