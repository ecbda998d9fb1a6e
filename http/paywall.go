package http

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	x402 "github.com/caasxyz/x402-echo-merchant"
	"github.com/caasxyz/x402-echo-merchant/routes"
)

// paywallState is published to the page as window.x402 so client-side payment
// tooling can read the challenge without re-fetching the JSON 402 body.
type paywallState struct {
	Amount              float64                   `json:"amount"`
	Testnet             bool                      `json:"testnet"`
	PaymentRequirements []x402.PaymentRequirement `json:"paymentRequirements"`
	CurrentURL          string                    `json:"currentUrl"`
	Config              paywallConfig             `json:"config"`
}

type paywallConfig struct {
	ChainConfig map[string]any `json:"chainConfig"`
}

type paywallData struct {
	Amount      string
	Network     string
	Description string
	State       template.JS
}

var paywallTmpl = template.Must(template.New("paywall").Parse(paywallHTML))

// writePaywall renders the 402 challenge as an HTML page for browsers.
func writePaywall(w http.ResponseWriter, route routes.Route, requirements []x402.PaymentRequirement, currentURL string) {
	chain, _ := x402.ChainByNetwork(route.Network)
	state := paywallState{
		Amount:              route.Price.Display(),
		Testnet:             chain.Testnet,
		PaymentRequirements: requirements,
		CurrentURL:          currentURL,
		Config:              paywallConfig{ChainConfig: map[string]any{}},
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		writePaymentRequired(w, "X-PAYMENT header is required", requirements, "")
		return
	}

	data := paywallData{
		Amount:      fmt.Sprintf("$%.2f", state.Amount),
		Network:     route.Network,
		Description: route.Description,
		State:       template.JS(stateJSON),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusPaymentRequired)
	if err := paywallTmpl.Execute(w, data); err != nil {
		// Headers are already committed; nothing sensible left to send.
		return
	}
}

const paywallHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1.0" />
  <title>Payment Required</title>
  <script>
    window.x402 = {{.State}};
  </script>
  <style>
    body { font-family: 'Inter', sans-serif; background: #fff; color: #222; margin: 0; padding: 0; }
    .container { max-width: 600px; margin: 0 auto; padding: 0 10%; }
    .header { font-size: 2.2rem; font-weight: 600; margin-top: 2.5rem; margin-bottom: 1rem; letter-spacing: -1px; text-align: center; }
    .subheader { font-size: 1.1rem; color: #666; text-align: center; margin-bottom: 2.5rem; }
    .amount { font-size: 3rem; font-weight: 600; color: #4f46e5; text-align: center; margin-bottom: 0.5rem; }
    .network { font-family: Menlo, monospace; color: #888; text-align: center; margin-bottom: 2.5rem; }
    .hint { background: #f3f4f6; border-radius: 8px; padding: 1rem; font-family: Menlo, monospace; font-size: 0.95rem; color: #222; overflow-x: auto; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">Payment Required</div>
    {{if .Description}}<div class="subheader">{{.Description}}</div>{{end}}
    <div class="amount">{{.Amount}}</div>
    <div class="network">{{.Network}}</div>
    <div class="hint">Retry this request with an X-PAYMENT header carrying a signed payment for one of the requirements in window.x402.paymentRequirements.</div>
  </div>
</body>
</html>
`
