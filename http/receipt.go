package http

import (
	"encoding/json"
	"html/template"
	"net/http"

	x402 "github.com/caasxyz/x402-echo-merchant"
)

type receiptData struct {
	PaymentTx     string
	PaymentTxLink string
	RefundTx      string
	RefundTxLink  string
	RefundFailed  bool
	ResponseJSON  string
}

var receiptTmpl = template.Must(template.New("receipt").Parse(receiptHTML))

// writeReceipt renders the paid response as an HTML receipt with block
// explorer links for the payment and refund transactions.
func writeReceipt(w http.ResponseWriter, settlement x402.SettlementResponse, refund x402.RefundResult) {
	paymentTx := settlement.Transaction
	if paymentTx == "" {
		paymentTx = "N/A"
	}

	responseJSON, err := json.MarshalIndent(settlement, "", "  ")
	if err != nil {
		responseJSON = []byte("{}")
	}

	data := receiptData{
		PaymentTx:     paymentTx,
		PaymentTxLink: x402.ExplorerTxLink(settlement.Network, settlement.Transaction),
		RefundTx:      refund.Transaction,
		RefundTxLink:  x402.ExplorerTxLink(settlement.Network, refund.Transaction),
		RefundFailed:  refund.Transaction == "",
		ResponseJSON:  string(responseJSON),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := receiptTmpl.Execute(w, data); err != nil {
		return
	}
}

const receiptHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1.0" />
  <title>Have some rizz!</title>
  <link href="https://fonts.googleapis.com/css2?family=Inter:wght@400;600&display=swap" rel="stylesheet">
  <style>
    body { font-family: 'Inter', sans-serif; background: #fff; color: #222; margin: 0; padding: 0; }
    .container { max-width: 600px; margin: 0 auto; padding: 0 10%; }
    .top-header { font-size: 1.3rem; font-weight: 600; margin-top: 2.5rem; margin-bottom: 1.5rem; letter-spacing: -0.5px; text-align: center; color: #4f46e5; }
    .header { font-size: 2.2rem; font-weight: 600; margin-top: 1.5rem; margin-bottom: 2rem; letter-spacing: -1px; text-align: center; }
    .section { margin-bottom: 2.5rem; }
    .label { font-size: 1.1rem; font-weight: 500; color: #444; margin-bottom: 0.3rem; }
    .tx { font-family: Menlo, monospace; color: #4f46e5; font-size: 1rem; margin-bottom: 1.2rem; word-break: break-all; overflow-wrap: anywhere; }
    .refund { color: #ec4899; }
    .code-title { font-weight: 600; color: #444; margin-bottom: 0.5rem; }
    .code-block { background: #f3f4f6; border-radius: 8px; padding: 1rem; font-family: Menlo, monospace; font-size: 0.95rem; color: #222; overflow-x: auto; margin-bottom: 2.5rem; }
    .back-link { display: inline-block; margin: 1.5rem auto 0 auto; padding: 0.7rem 2rem; background: #4f46e5; color: #fff; border-radius: 6px; font-weight: 500; text-decoration: none; text-align: center; }
    .back-link:hover { background: #3730a3; }
    .tx-link { color: inherit; text-decoration: none; }
    .tx-link:hover { text-decoration: underline; }
    @media (max-width: 700px) { .container { padding: 0 4%; } }
  </style>
</head>
<body>
  <div class="container">
    <div class="top-header">Thank you for your payment!</div>
    <div class="header">Have some rizz</div>
    <div class="section">
      <div class="label">Payment transaction:</div>
      <div class="tx">{{if .PaymentTxLink}}<a href="{{.PaymentTxLink}}" class="tx-link" target="_blank" rel="noopener noreferrer">{{.PaymentTx}}</a>{{else}}{{.PaymentTx}}{{end}}</div>
      <div class="label">Refund {{if .RefundFailed}}status{{else}}transaction{{end}}:</div>
      <div class="tx refund">{{if .RefundFailed}}Refund failed{{else}}<a href="{{.RefundTxLink}}" class="tx-link" target="_blank" rel="noopener noreferrer">{{.RefundTx}}</a>{{end}}</div>
    </div>
    <div class="section">
      <div class="code-title">X-PAYMENT-RESPONSE HEADER</div>
      <div class="code-block"><pre><code>{{.ResponseJSON}}</code></pre></div>
    </div>
    <a href="/" class="back-link">Back to Home</a>
  </div>
</body>
</html>
`
