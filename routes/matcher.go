package routes

import (
	"fmt"
	"strings"
)

// matcher is a compiled route pattern. Patterns are matched segment by
// segment: a raw string-prefix match would let "/api/base" capture
// "/api/base-sepolia/...", which routes one network's traffic to another's
// policy.
type matcher struct {
	segments []string
	rest     bool // trailing "/*": any suffix, including empty
	method   string
}

func compile(pattern, method string) (*matcher, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("pattern must start with '/': %q", pattern)
	}

	m := &matcher{method: strings.ToUpper(method)}

	trimmed := strings.TrimSuffix(pattern, "/*")
	if trimmed != pattern {
		m.rest = true
	}
	trimmed = strings.Trim(trimmed, "/")
	if trimmed != "" {
		m.segments = strings.Split(trimmed, "/")
	}

	for _, seg := range m.segments {
		if strings.Contains(seg, "*") && seg != "*" {
			return nil, fmt.Errorf("wildcard must be a whole segment: %q", pattern)
		}
	}
	return m, nil
}

func (m *matcher) matches(path, method string) bool {
	if m.method != "*" && !strings.EqualFold(m.method, method) {
		return false
	}

	trimmed := strings.Trim(path, "/")
	var got []string
	if trimmed != "" {
		got = strings.Split(trimmed, "/")
	}

	if m.rest {
		if len(got) < len(m.segments) {
			return false
		}
	} else if len(got) != len(m.segments) {
		return false
	}

	for i, want := range m.segments {
		if want == "*" {
			continue
		}
		if got[i] != want {
			return false
		}
	}
	return true
}
