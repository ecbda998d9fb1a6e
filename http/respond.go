package http

import (
	"encoding/json"
	"net/http"

	x402 "github.com/caasxyz/x402-echo-merchant"
	"github.com/caasxyz/x402-echo-merchant/encoding"
)

// PaymentResponseHeader carries the base64-encoded settlement result back to
// the client on paid responses.
const PaymentResponseHeader = "X-PAYMENT-RESPONSE"

// writePaymentRequired sends the standard 402 challenge body.
func writePaymentRequired(w http.ResponseWriter, reason string, accepts []x402.PaymentRequirement, payer string) {
	writeJSON(w, http.StatusPaymentRequired, x402.PaymentRequiredResponse{
		X402Version: x402.X402Version,
		Error:       reason,
		Accepts:     accepts,
		Payer:       payer,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// setPaymentResponseHeader attaches the settlement result to the response.
func setPaymentResponseHeader(h http.Header, settlement x402.SettlementResponse) error {
	encoded, err := encoding.EncodeSettlement(settlement)
	if err != nil {
		return err
	}
	h.Set(PaymentResponseHeader, encoded)
	return nil
}
