// Package routes maps inbound requests to payment policies and turns a policy
// into the payment requirements offered in a 402 challenge. The table is built
// once at startup and read-only afterwards.
package routes

import (
	"encoding/json"
	"fmt"

	x402 "github.com/caasxyz/x402-echo-merchant"
	"github.com/go-playground/validator/v10"
)

// Route is one protected path prefix and its payment policy.
type Route struct {
	// Pattern is the path pattern. Literal segments match exactly; a "*"
	// segment matches any single segment; a trailing "/*" matches any suffix.
	// Matching is per path segment, so "/api/base/*" does not capture
	// "/api/base-sepolia/paid-content".
	Pattern string `validate:"required,startswith=/"`

	// Method is the HTTP verb guarded, or "*" for any. Empty means "*".
	Method string

	// Network is the chain clients must pay on to use this route.
	Network string `validate:"required"`

	// Price is the cost of one request.
	Price x402.Price

	// Description shows up in the 402 challenge and the paywall.
	Description string

	// MimeType of the protected resource; defaults to "application/json".
	MimeType string

	// MaxTimeoutSeconds bounds the payment authorization validity window;
	// defaults to 300.
	MaxTimeoutSeconds int `validate:"gte=0"`

	// OutputSchema is passed through to the requirement untouched.
	OutputSchema json.RawMessage
}

// Table holds the compiled route policies in declaration order.
type Table struct {
	entries []entry
}

type entry struct {
	route   Route
	matcher *matcher
}

var validate = validator.New()

// NewTable validates and compiles the given routes. Patterns are compiled
// once; the first declared route wins when several match.
func NewTable(rts []Route) (*Table, error) {
	t := &Table{entries: make([]entry, 0, len(rts))}
	for i, r := range rts {
		if err := validate.Struct(r); err != nil {
			return nil, fmt.Errorf("route %d (%s): %w", i, r.Pattern, err)
		}
		if r.Method == "" {
			r.Method = "*"
		}
		m, err := compile(r.Pattern, r.Method)
		if err != nil {
			return nil, fmt.Errorf("route %d (%s): %w", i, r.Pattern, err)
		}
		t.entries = append(t.entries, entry{route: r, matcher: m})
	}
	return t, nil
}

// Match resolves a request path and method to a route policy. The boolean is
// false when no route applies and the request must pass through unguarded.
func (t *Table) Match(path, method string) (Route, bool) {
	for _, e := range t.entries {
		if e.matcher.matches(path, method) {
			return e.route, true
		}
	}
	return Route{}, false
}
