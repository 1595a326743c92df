package workflow

import (
	"regexp"
	"strings"
)

// maxWorkflowNameLength caps sanitized names so generated tool names stay
// readable in MCP clients.
const maxWorkflowNameLength = 50

// fallbackWorkflowName is used when sanitization strips a title down to
// nothing.
const fallbackWorkflowName = "unnamed-workflow"

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	invalidNameChar = regexp.MustCompile(`[^a-z0-9_-]`)
	hyphenRun       = regexp.MustCompile(`-{2,}`)
	leadingLetter   = regexp.MustCompile(`^[a-z]`)
)

// SanitizeWorkflowName derives a deterministic tool-safe name from a remote
// workflow title. The result always matches ^[a-z][a-z0-9_-]*$, is at most
// maxWorkflowNameLength characters, and is idempotent: sanitizing an already
// sanitized name returns it unchanged.
func SanitizeWorkflowName(title string) string {
	name := strings.ToLower(strings.TrimSpace(title))
	name = whitespaceRun.ReplaceAllString(name, "-")
	name = invalidNameChar.ReplaceAllString(name, "")
	name = hyphenRun.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")

	if name == "" {
		return fallbackWorkflowName
	}
	if !leadingLetter.MatchString(name) {
		name = "wf-" + name
	}
	if len(name) > maxWorkflowNameLength {
		name = strings.TrimRight(name[:maxWorkflowNameLength], "-")
	}
	return name
}

// filterMatcher applies the configured workflow name filters. A workflow
// survives filtering when its name matches any pattern; an empty pattern
// list matches everything.
type filterMatcher struct {
	patterns []compiledPattern
}

type compiledPattern struct {
	raw string
	// re is set for wildcard patterns ('*' present), substr for plain ones.
	re     *regexp.Regexp
	substr string
}

func newFilterMatcher(patterns []string) *filterMatcher {
	m := &filterMatcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(p, "*") {
			parts := strings.Split(p, "*")
			for i, part := range parts {
				parts[i] = regexp.QuoteMeta(part)
			}
			re, err := regexp.Compile("(?i)^" + strings.Join(parts, ".*") + "$")
			if err != nil {
				// QuoteMeta makes this unreachable, but a broken pattern
				// must not take discovery down.
				continue
			}
			m.patterns = append(m.patterns, compiledPattern{raw: p, re: re})
		} else {
			m.patterns = append(m.patterns, compiledPattern{raw: p, substr: strings.ToLower(p)})
		}
	}
	return m
}

func (m *filterMatcher) matches(name string) bool {
	if len(m.patterns) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, p := range m.patterns {
		if p.re != nil {
			if p.re.MatchString(name) {
				return true
			}
		} else if strings.Contains(lower, p.substr) {
			return true
		}
	}
	return false
}
