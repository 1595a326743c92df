package registry

import (
	"fmt"
	"sort"
	"strings"
)

// GenerateDocumentation renders a human-readable listing of every registered
// tool: name, category, version, description, and argument schema. Intended
// for the CLI and for debugging, not for machine consumption.
func (r *Registry) GenerateDocumentation() string {
	tools := r.Tools()

	var b strings.Builder
	fmt.Fprintf(&b, "# Available Tools (%d)\n", len(tools))

	for _, def := range tools {
		b.WriteString("\n## ")
		b.WriteString(def.Name)
		if def.Category != "" || def.Version != "" {
			b.WriteString(" (")
			if def.Category != "" {
				b.WriteString(def.Category)
			}
			if def.Version != "" {
				if def.Category != "" {
					b.WriteString(", ")
				}
				b.WriteString("v" + def.Version)
			}
			b.WriteString(")")
		}
		b.WriteString("\n")
		b.WriteString(def.Description)
		b.WriteString("\n")

		if len(def.InputSchema.Properties) == 0 {
			b.WriteString("\nNo arguments.\n")
			continue
		}

		required := make(map[string]bool, len(def.InputSchema.Required))
		for _, req := range def.InputSchema.Required {
			required[req] = true
		}

		names := make([]string, 0, len(def.InputSchema.Properties))
		for name := range def.InputSchema.Properties {
			names = append(names, name)
		}
		sort.Strings(names)

		b.WriteString("\nArguments:\n")
		for _, name := range names {
			propType := "any"
			description := ""
			if prop, ok := def.InputSchema.Properties[name].(map[string]interface{}); ok {
				if t, ok := prop["type"].(string); ok {
					propType = t
				}
				if d, ok := prop["description"].(string); ok {
					description = d
				}
			}

			requirement := "optional"
			if required[name] {
				requirement = "required"
			}
			fmt.Fprintf(&b, "  - %s (%s, %s)", name, propType, requirement)
			if description != "" {
				fmt.Fprintf(&b, ": %s", description)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}
