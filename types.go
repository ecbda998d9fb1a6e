package x402

import (
	"encoding/json"
	"fmt"
)

// X402Version is the protocol version this merchant speaks.
const X402Version = 1

// SchemeExact is the only payment scheme the merchant accepts.
const SchemeExact = "exact"

// PaymentRequirement describes a single payment option offered in a 402 response.
type PaymentRequirement struct {
	// Scheme is the payment scheme identifier (currently always "exact").
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier (e.g., "base-sepolia", "solana").
	Network string `json:"network"`

	// MaxAmountRequired is the payment amount in atomic units, as a decimal string.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Resource is the canonical URL of the protected resource.
	Resource string `json:"resource"`

	// Description is a human-readable description of what is being paid for.
	Description string `json:"description"`

	// MimeType is the content type of the protected resource.
	MimeType string `json:"mimeType"`

	// PayTo is the recipient address for the payment.
	PayTo string `json:"payTo"`

	// MaxTimeoutSeconds is the validity window for the payment authorization.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Asset is the token contract address (EVM) or mint address (Solana).
	Asset string `json:"asset"`

	// OutputSchema optionally describes the shape of the protected response.
	// It is passed through to clients untouched.
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`

	// Extra carries scheme/network specific data: the EIP-712 domain name and
	// version for EVM chains, and the facilitator fee payer for SVM chains.
	Extra map[string]any `json:"extra,omitempty"`
}

// PaymentRequiredResponse is the JSON body of a 402 response.
type PaymentRequiredResponse struct {
	X402Version int                  `json:"x402Version"`
	Error       string               `json:"error"`
	Accepts     []PaymentRequirement `json:"accepts"`

	// Payer is set when verification identified the payer before rejecting.
	Payer string `json:"payer,omitempty"`
}

// PaymentPayload is the decoded X-PAYMENT header: a signed payment proof.
type PaymentPayload struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`

	// Payload is the network-specific signed authorization. After JSON decoding
	// it is a map[string]any; use EVMPayload or SVMPayload for typed access.
	Payload any `json:"payload"`
}

// EVMPayload is an EVM payment proof: an EIP-3009 transfer authorization
// plus the payer's EIP-712 signature over it.
type EVMPayload struct {
	Signature     string           `json:"signature"`
	Authorization EVMAuthorization `json:"authorization"`
}

// EVMAuthorization holds the EIP-3009 transferWithAuthorization parameters.
type EVMAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// SVMPayload is a Solana payment proof: a base64-encoded transaction signed by
// the payer, with the fee payer signature left for the facilitator to add.
type SVMPayload struct {
	Transaction string `json:"transaction"`
}

// EVMPayload extracts the typed EVM payload from a decoded payment.
func (p PaymentPayload) EVMPayload() (EVMPayload, error) {
	var out EVMPayload
	if err := remarshal(p.Payload, &out); err != nil {
		return out, fmt.Errorf("not an EVM payload: %w", err)
	}
	if out.Authorization.From == "" {
		return out, fmt.Errorf("not an EVM payload: missing authorization")
	}
	return out, nil
}

// SVMPayload extracts the typed Solana payload from a decoded payment.
func (p PaymentPayload) SVMPayload() (SVMPayload, error) {
	var out SVMPayload
	if err := remarshal(p.Payload, &out); err != nil {
		return out, fmt.Errorf("not an SVM payload: %w", err)
	}
	if out.Transaction == "" {
		return out, fmt.Errorf("not an SVM payload: missing transaction")
	}
	return out, nil
}

func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// SettlementResponse is the facilitator's answer to a settle call, and the
// payload of the X-PAYMENT-RESPONSE header on successful requests.
type SettlementResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`

	// Transaction is the on-chain transaction id of the settled payment.
	Transaction string `json:"transaction,omitempty"`

	Network string `json:"network"`
	Payer   string `json:"payer,omitempty"`
}

// RefundResult reports the outcome of the post-settlement refund leg.
// A failed refund never fails the request; it is surfaced to the client as
// refundFailed and otherwise only logged.
type RefundResult struct {
	Transaction string `json:"refundTransaction,omitempty"`
	Failed      bool   `json:"refundFailed,omitempty"`
}
