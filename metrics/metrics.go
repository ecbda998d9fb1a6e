// Package metrics defines the event counters and latency observations the
// payment gate emits, with a Prometheus-backed recorder and a noop for tests.
package metrics

import "time"

// Event names recorded by the gate and refund orchestrator.
const (
	EventPaymentRequired  = "payment_required"
	EventInvalidPayment   = "invalid_payment"
	EventVerifyRejected   = "verify_rejected"
	EventSettled          = "settled"
	EventSettlementFailed = "settlement_failed"
	EventRefunded         = "refunded"
	EventRefundFailed     = "refund_failed"
)

// Operation names for latency observations.
const (
	OpVerify = "verify"
	OpSettle = "settle"
	OpRefund = "refund"
)

// Recorder receives gate events and operation latencies.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, d time.Duration, labels map[string]string)
}

// Noop drops all observations.
type Noop struct{}

func (Noop) IncCounter(string, map[string]string) {}

func (Noop) ObserveLatency(string, time.Duration, map[string]string) {}
