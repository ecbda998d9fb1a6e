package http

import (
	"net/http"
	"regexp"
	"strings"
)

// Browser detection is a presentation heuristic, not part of the payment
// protocol. Misclassifying a client only changes whether it gets HTML or
// JSON; the X-PAYMENT-RESPONSE header is set either way.
var (
	browserAgents    = regexp.MustCompile(`(?i)(Mozilla|Chrome|Safari|Firefox|Edge|OPR|Edg)`)
	nonBrowserAgents = regexp.MustCompile(`(?i)(curl|wget|httpie|Postman|Insomnia|Go-http-client|node|node-fetch)`)
)

// wantsPaywall reports whether an unpaid request should get the HTML paywall
// instead of the JSON 402 body. The bar is deliberately high: the client must
// both accept HTML and carry a Mozilla-family User-Agent.
func wantsPaywall(r *http.Request) bool {
	if !strings.Contains(r.Header.Get("Accept"), "text/html") {
		return false
	}
	return strings.Contains(r.Header.Get("User-Agent"), "Mozilla")
}

// wantsReceipt reports whether a paid response should be rendered as the HTML
// receipt page. Looser than wantsPaywall: an HTML Accept header or a browser
// User-Agent is enough, as long as the agent is not a known CLI client.
func wantsReceipt(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		return true
	}
	ua := r.Header.Get("User-Agent")
	return browserAgents.MatchString(ua) && !nonBrowserAgents.MatchString(ua)
}
