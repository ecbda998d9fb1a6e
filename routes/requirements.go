package routes

import (
	"context"
	"fmt"

	x402 "github.com/caasxyz/x402-echo-merchant"
	"github.com/ethereum/go-ethereum/common"
)

// FeePayerSource resolves the sponsor account for SVM payments. Implemented by
// the facilitator client: Solana transactions need a fee payer signature the
// facilitator adds, so the requirement must name that account up front. EVM
// chains have no equivalent round trip because the settling party pays its own
// gas.
type FeePayerSource interface {
	FeePayer(ctx context.Context, network, scheme string) (string, error)
}

// Builder turns a route policy into the payment requirements advertised in a
// 402 challenge.
type Builder struct {
	// EVMPayTo is the payee address for EVM networks.
	EVMPayTo string

	// SVMPayTo is the payee address for Solana networks.
	SVMPayTo string

	// FeePayers supplies the sponsor account for SVM requirements.
	FeePayers FeePayerSource
}

// Build derives the requirement list for one request. The contract is zero or
// more requirements; this merchant emits exactly one, for the route's network.
func (b *Builder) Build(ctx context.Context, route Route, resourceURL string) ([]x402.PaymentRequirement, error) {
	amount, asset, err := route.Price.Resolve(route.Network)
	if err != nil {
		return nil, err
	}

	req := x402.PaymentRequirement{
		Scheme:            x402.SchemeExact,
		Network:           route.Network,
		MaxAmountRequired: amount,
		Resource:          resourceURL,
		Description:       route.Description,
		MimeType:          route.MimeType,
		MaxTimeoutSeconds: route.MaxTimeoutSeconds,
		Asset:             asset.Address,
		OutputSchema:      route.OutputSchema,
	}
	if req.MimeType == "" {
		req.MimeType = "application/json"
	}
	if req.MaxTimeoutSeconds == 0 {
		req.MaxTimeoutSeconds = 300
	}

	switch x402.NetworkTypeOf(route.Network) {
	case x402.NetworkTypeEVM:
		payTo, err := checksumAddress(b.EVMPayTo)
		if err != nil {
			return nil, err
		}
		req.PayTo = payTo
		if asset.EIP712Name != "" {
			req.Extra = map[string]any{
				"name":    asset.EIP712Name,
				"version": asset.EIP712Version,
			}
		}

	case x402.NetworkTypeSVM:
		if b.SVMPayTo == "" {
			return nil, fmt.Errorf("%w: no SVM payee configured", x402.ErrInvalidAddress)
		}
		if b.FeePayers == nil {
			return nil, fmt.Errorf("%w: no fee payer source for %s", x402.ErrUnsupportedNetwork, route.Network)
		}
		feePayer, err := b.FeePayers.FeePayer(ctx, route.Network, x402.SchemeExact)
		if err != nil {
			return nil, err
		}
		req.PayTo = b.SVMPayTo
		req.Extra = map[string]any{"feePayer": feePayer}

	default:
		return nil, fmt.Errorf("%w: %s", x402.ErrUnsupportedNetwork, route.Network)
	}

	return []x402.PaymentRequirement{req}, nil
}

// checksumAddress validates an EVM address and normalizes it to its EIP-55
// checksummed form. Mixed-case input must already carry a valid checksum.
func checksumAddress(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: %q is not an EVM address", x402.ErrInvalidAddress, addr)
	}
	checksummed := common.HexToAddress(addr).Hex()
	if hasMixedCase(addr) && addr != checksummed {
		return "", fmt.Errorf("%w: %q fails EIP-55 checksum", x402.ErrInvalidAddress, addr)
	}
	return checksummed, nil
}

func hasMixedCase(addr string) bool {
	var upper, lower bool
	for _, c := range addr[2:] {
		switch {
		case c >= 'A' && c <= 'F':
			upper = true
		case c >= 'a' && c <= 'f':
			lower = true
		}
	}
	return upper && lower
}
