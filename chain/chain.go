// Package chain abstracts the per-network-family capabilities the refund path
// needs: recovering the paying address from a proof and submitting a token
// transfer back to it. One Adapter implementation exists per virtual machine
// family (chain/evm, chain/svm); the registry maps network identifiers onto
// adapter instances built once at startup.
package chain

import (
	"context"
	"fmt"
	"sync"

	x402 "github.com/caasxyz/x402-echo-merchant"
)

// Adapter is the signer/transfer capability for one network.
type Adapter interface {
	// Network returns the network identifier this adapter serves.
	Network() string

	// RecoverPayer extracts the paying address from a decoded payment proof.
	// For EVM proofs this is the authorization's from address. For Solana the
	// facilitator does not reliably report the true payer, so the adapter
	// decodes the signed transaction and reads it out of the token transfer
	// instruction itself.
	RecoverPayer(payment x402.PaymentPayload) (string, error)

	// SubmitRefund sends requirement.MaxAmountRequired of the settled asset
	// back to recipient and returns the transaction id. The payment proof is
	// passed along because Solana refunds must reverse the original transfer
	// instruction's accounts.
	SubmitRefund(ctx context.Context, recipient string, requirement x402.PaymentRequirement, payment x402.PaymentPayload) (string, error)
}

// Registry maps network identifiers to adapters. Populated at process start,
// read-only afterwards; RPC connections behind the adapters dial lazily and
// are cached for the process lifetime.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its network identifier.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Network()] = a
}

// Adapter returns the adapter for a network.
func (r *Registry) Adapter(network string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[network]
	if !ok {
		return nil, fmt.Errorf("%w: no refund adapter for %s", x402.ErrUnsupportedNetwork, network)
	}
	return a, nil
}

// Networks lists the networks with a registered adapter.
func (r *Registry) Networks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	return out
}
