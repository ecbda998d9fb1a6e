// Package facilitator talks to the external x402 facilitator service that
// verifies payment proofs against their requirements and settles them on
// chain. The gate treats any transport failure here as a degraded response,
// never a crash.
package facilitator

import (
	"context"

	x402 "github.com/caasxyz/x402-echo-merchant"
)

// Facilitator is the contract the payment gate depends on. The production
// implementation is Client; tests substitute recording fakes.
type Facilitator interface {
	// Verify checks a payment proof against a requirement without moving funds.
	Verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*VerifyResponse, error)

	// Settle executes a verified payment on chain. Settle is not guaranteed
	// idempotent at the facilitator, so callers must not retry it blindly.
	Settle(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*x402.SettlementResponse, error)

	// Supported lists the payment kinds the facilitator can process, including
	// network-specific extras such as the Solana fee payer.
	Supported(ctx context.Context) (*SupportedResponse, error)
}

// VerifyResponse is the facilitator's verdict on a payment proof.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SupportedKind describes one payment kind the facilitator accepts.
type SupportedKind struct {
	X402Version int            `json:"x402Version"`
	Scheme      string         `json:"scheme"`
	Network     string         `json:"network"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// SupportedResponse is the body of the facilitator's GET /supported endpoint.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// FeePayer returns the sponsor account advertised for a network and scheme, or
// "" when the facilitator does not sponsor that combination.
func (s *SupportedResponse) FeePayer(network, scheme string) string {
	for _, kind := range s.Kinds {
		if kind.Network != network || kind.Scheme != scheme {
			continue
		}
		if fp, ok := kind.Extra["feePayer"].(string); ok {
			return fp
		}
	}
	return ""
}
