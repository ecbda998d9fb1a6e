package x402

import (
	"errors"
	"fmt"
)

// Error taxonomy for the payment gate. Errors raised before the protected
// resource runs always short-circuit the request; refund errors after a
// successful settlement never do.

var (
	// ErrPaymentRequired indicates the X-PAYMENT header is absent.
	ErrPaymentRequired = errors.New("payment required")

	// ErrMalformedHeader indicates the X-PAYMENT header could not be decoded.
	ErrMalformedHeader = errors.New("malformed payment header")

	// ErrUnsupportedVersion indicates an unsupported x402 protocol version.
	ErrUnsupportedVersion = errors.New("unsupported x402 version")

	// ErrUnsupportedScheme indicates a payment scheme other than "exact".
	ErrUnsupportedScheme = errors.New("unsupported payment scheme")

	// ErrUnsupportedNetwork indicates a network the merchant is not configured for.
	ErrUnsupportedNetwork = errors.New("unsupported network")

	// ErrNoMatchingRequirement indicates the proof's network/scheme matches none
	// of the payment requirements offered for the route.
	ErrNoMatchingRequirement = errors.New("unable to find matching payment requirements")

	// ErrFacilitatorUnavailable indicates a transport failure talking to the
	// facilitator service.
	ErrFacilitatorUnavailable = errors.New("facilitator unavailable")

	// ErrVerificationFailed indicates the facilitator rejected the proof.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrSettlementFailed indicates on-chain settlement did not happen.
	ErrSettlementFailed = errors.New("settlement failed")

	// ErrRefundFailed indicates the post-settlement refund could not be
	// submitted. Non-fatal: the resource is still delivered.
	ErrRefundFailed = errors.New("refund failed")

	// ErrInvalidAmount indicates a malformed or negative amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidAddress indicates an address that fails network-specific validation.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidKey indicates an unusable signing key.
	ErrInvalidKey = errors.New("invalid private key")

	// ErrInvalidKeystore indicates an unreadable or undecryptable keystore file.
	ErrInvalidKeystore = errors.New("invalid keystore")

	// ErrInvalidMnemonic indicates a BIP-39 mnemonic that fails validation.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
)

// PriceError reports a price that cannot be resolved to an atomic amount for a
// network. It is a configuration error: routes pointing at networks without an
// asset table entry are a deployment mistake, so the gate surfaces it as HTTP
// 500 rather than 402.
type PriceError struct {
	Network string
	Reason  string
}

func (e *PriceError) Error() string {
	return fmt.Sprintf("cannot resolve price on network %q: %s", e.Network, e.Reason)
}

// IsPriceError reports whether err is a price resolution failure.
func IsPriceError(err error) bool {
	var pe *PriceError
	return errors.As(err, &pe)
}
