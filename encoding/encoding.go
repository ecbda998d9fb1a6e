// Package encoding frames x402 payment data for HTTP transport: base64-encoded
// JSON in the X-PAYMENT request header and the X-PAYMENT-RESPONSE response
// header. Encoding is deterministic, so decoding a header produced here and
// re-encoding it yields the identical string.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	x402 "github.com/caasxyz/x402-echo-merchant"
)

// EncodePayment serializes a payment proof for the X-PAYMENT header.
func EncodePayment(payment x402.PaymentPayload) (string, error) {
	data, err := json.Marshal(payment)
	if err != nil {
		return "", fmt.Errorf("marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePayment parses an X-PAYMENT header value into a payment proof.
// Wraps x402.ErrMalformedHeader on any framing failure so callers can map it
// to an "Invalid payment" 402 rather than a server error.
func DecodePayment(encoded string) (x402.PaymentPayload, error) {
	var payment x402.PaymentPayload

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return payment, fmt.Errorf("%w: bad base64: %v", x402.ErrMalformedHeader, err)
	}
	if err := json.Unmarshal(decoded, &payment); err != nil {
		return payment, fmt.Errorf("%w: bad JSON: %v", x402.ErrMalformedHeader, err)
	}
	return payment, nil
}

// EncodeSettlement serializes a settlement result for the X-PAYMENT-RESPONSE header.
func EncodeSettlement(settlement x402.SettlementResponse) (string, error) {
	data, err := json.Marshal(settlement)
	if err != nil {
		return "", fmt.Errorf("marshal settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeSettlement parses an X-PAYMENT-RESPONSE header value.
func DecodeSettlement(encoded string) (x402.SettlementResponse, error) {
	var settlement x402.SettlementResponse

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return settlement, fmt.Errorf("decode base64: %w", err)
	}
	if err := json.Unmarshal(decoded, &settlement); err != nil {
		return settlement, fmt.Errorf("unmarshal settlement: %w", err)
	}
	return settlement, nil
}
