// Package refund reverses settled payments back to the payer. The refund is a
// courtesy, not a guarantee: it runs after settlement, its failure never fails
// the request, and it is attempted at most once per settled payment.
package refund

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	x402 "github.com/caasxyz/x402-echo-merchant"
	"github.com/caasxyz/x402-echo-merchant/chain"
	"github.com/caasxyz/x402-echo-merchant/logger"
	"github.com/caasxyz/x402-echo-merchant/metrics"
)

// Store tracks which settled payments have had a refund attempted, keyed by
// the proof's unique authorization nonce (EVM) or transaction digest (SVM).
// Without it, a client retry racing a slow refund could be refunded twice.
type Store interface {
	// TryBegin records an attempt for key. Returns false when a refund for
	// this payment was already attempted.
	TryBegin(key string) bool
}

// Orchestrator submits refunds through the chain adapter registry.
type Orchestrator struct {
	registry *chain.Registry
	store    Store
	timeout  time.Duration
	log      logger.Logger
	rec      metrics.Recorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore replaces the idempotency store.
func WithStore(s Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithTimeout bounds a single refund submission. A timed-out submission is
// reported as a failed refund rather than left hanging.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithLogger sets the orchestrator logger.
func WithLogger(log logger.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(o *Orchestrator) { o.rec = rec }
}

// New builds an orchestrator over the given adapter registry.
func New(registry *chain.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		store:    NewMemoryStore(),
		timeout:  60 * time.Second,
		log:      logger.Noop{},
		rec:      metrics.Noop{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Refund sends the settled amount back to recipient and returns the refund
// transaction id. An empty recipient is resolved by recovering the payer from
// the proof through the chain adapter; the facilitator does not reliably
// report the true payer, Solana especially, while the proof always names it.
// Once a settlement has happened the refund must be allowed to finish even if
// the inbound client disconnects, so the submission runs on a context detached
// from request cancellation, bounded only by the configured timeout. All
// failures are wrapped in x402.ErrRefundFailed.
func (o *Orchestrator) Refund(ctx context.Context, recipient string, requirement x402.PaymentRequirement, payment x402.PaymentPayload) (string, error) {
	key, err := dedupKey(payment)
	if err != nil {
		return "", fmt.Errorf("%w: %v", x402.ErrRefundFailed, err)
	}
	if !o.store.TryBegin(key) {
		o.log.Warn("duplicate refund suppressed", map[string]any{
			"network": requirement.Network,
			"key":     key,
		})
		return "", fmt.Errorf("%w: refund already attempted for this payment", x402.ErrRefundFailed)
	}

	adapter, err := o.registry.Adapter(requirement.Network)
	if err != nil {
		return "", fmt.Errorf("%w: %v", x402.ErrRefundFailed, err)
	}

	if recipient == "" {
		recipient, err = adapter.RecoverPayer(payment)
		if err != nil {
			return "", fmt.Errorf("%w: recovering payer: %v", x402.ErrRefundFailed, err)
		}
	}

	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	start := time.Now()
	txHash, err := adapter.SubmitRefund(detached, recipient, requirement, payment)
	o.rec.ObserveLatency(metrics.OpRefund, time.Since(start), map[string]string{"network": requirement.Network})

	if err != nil {
		o.rec.IncCounter(metrics.EventRefundFailed, map[string]string{"network": requirement.Network})
		o.log.Error("refund submission failed", map[string]any{
			"network":   requirement.Network,
			"recipient": recipient,
			"error":     err.Error(),
		})
		return "", fmt.Errorf("%w: %v", x402.ErrRefundFailed, err)
	}

	o.rec.IncCounter(metrics.EventRefunded, map[string]string{"network": requirement.Network})
	o.log.Info("refund submitted", map[string]any{
		"network":     requirement.Network,
		"recipient":   recipient,
		"transaction": txHash,
	})
	return txHash, nil
}

// dedupKey derives the at-most-once key for a payment proof.
func dedupKey(payment x402.PaymentPayload) (string, error) {
	switch x402.NetworkTypeOf(payment.Network) {
	case x402.NetworkTypeEVM:
		payload, err := payment.EVMPayload()
		if err != nil {
			return "", err
		}
		if payload.Authorization.Nonce == "" {
			return "", fmt.Errorf("payment authorization has no nonce")
		}
		return payment.Network + ":" + payload.Authorization.Nonce, nil

	case x402.NetworkTypeSVM:
		payload, err := payment.SVMPayload()
		if err != nil {
			return "", err
		}
		sum := sha256.Sum256([]byte(payload.Transaction))
		return payment.Network + ":" + hex.EncodeToString(sum[:]), nil

	default:
		return "", fmt.Errorf("unknown network family %q", payment.Network)
	}
}
