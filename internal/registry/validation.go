package registry

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// validPropertyTypes constrains the JSON schema property types a tool may
// declare. Anything outside this set is rejected at registration.
var validPropertyTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
	"array":   true,
	"object":  true,
}

// validateDefinition performs structural validation of a tool definition.
func validateDefinition(def *ToolDefinition) error {
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(def.Name, " \t\n") {
		return fmt.Errorf("name must not contain whitespace")
	}
	if strings.TrimSpace(def.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("handler is required")
	}
	return validateSchema(def.InputSchema)
}

func validateSchema(schema mcp.ToolInputSchema) error {
	if schema.Type != "object" {
		return fmt.Errorf("input schema type must be %q, got %q", "object", schema.Type)
	}

	for name, raw := range schema.Properties {
		prop, ok := raw.(map[string]interface{})
		if !ok {
			return fmt.Errorf("property %q must be a schema object", name)
		}
		propType, ok := prop["type"].(string)
		if !ok {
			return fmt.Errorf("property %q is missing a type", name)
		}
		if !validPropertyTypes[propType] {
			return fmt.Errorf("property %q has unsupported type %q", name, propType)
		}
	}

	for _, req := range schema.Required {
		if _, declared := schema.Properties[req]; !declared {
			return fmt.Errorf("required argument %q is not a declared property", req)
		}
	}
	return nil
}

// validateArguments checks a call's arguments against the tool schema.
// Missing required arguments and type mismatches are rejected before the
// handler runs; undeclared arguments are passed through untouched.
func validateArguments(schema mcp.ToolInputSchema, args map[string]interface{}) error {
	for _, req := range schema.Required {
		if _, present := args[req]; !present {
			return fmt.Errorf("missing required argument %q", req)
		}
	}

	for name, value := range args {
		raw, declared := schema.Properties[name]
		if !declared {
			continue
		}
		prop, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		propType, ok := prop["type"].(string)
		if !ok {
			continue
		}
		if value == nil {
			continue
		}
		if !matchesType(propType, value) {
			return fmt.Errorf("argument %q must be of type %s", name, propType)
		}
	}
	return nil
}

// matchesType reports whether a decoded JSON value conforms to a schema
// primitive type. Arguments arrive either JSON-decoded (numbers as float64)
// or directly from Go callers, so native integer types are accepted too.
func matchesType(propType string, value interface{}) bool {
	switch propType {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		return isNumeric(value)
	case "integer":
		switch v := value.(type) {
		case float64:
			return v == math.Trunc(v)
		case float32:
			return float64(v) == math.Trunc(float64(v))
		case int, int32, int64:
			return true
		case json.Number:
			_, err := v.Int64()
			return err == nil
		default:
			return false
		}
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	default:
		return false
	}
}

func isNumeric(value interface{}) bool {
	switch value.(type) {
	case float64, float32, int, int32, int64, json.Number:
		return true
	default:
		return false
	}
}
