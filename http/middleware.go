// Package http gates HTTP handlers behind x402 payments. The middleware
// challenges unpaid requests with 402, verifies and settles proofs through a
// facilitator, and refunds settled demo payments back to the payer.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	x402 "github.com/caasxyz/x402-echo-merchant"
	"github.com/caasxyz/x402-echo-merchant/encoding"
	"github.com/caasxyz/x402-echo-merchant/facilitator"
	"github.com/caasxyz/x402-echo-merchant/logger"
	"github.com/caasxyz/x402-echo-merchant/metrics"
	"github.com/caasxyz/x402-echo-merchant/routes"
)

// Refunder sends a settled payment back to its payer. An empty recipient asks
// the refunder to recover the payer from the payment proof. The gate treats
// refund failures as non-fatal: the paid response is still served, with the
// failure surfaced in the response metadata.
type Refunder interface {
	Refund(ctx context.Context, recipient string, requirement x402.PaymentRequirement, payment x402.PaymentPayload) (string, error)
}

// Gate enforces the payment policy of a route table.
type Gate struct {
	table       *routes.Table
	builder     *routes.Builder
	facilitator facilitator.Facilitator
	refunder    Refunder
	verifyOnly  bool
	log         logger.Logger
	rec         metrics.Recorder
}

// Option configures a Gate.
type Option func(*Gate)

// WithRefunder enables the post-settlement refund leg.
func WithRefunder(r Refunder) Option {
	return func(g *Gate) { g.refunder = r }
}

// WithVerifyOnly makes the gate verify proofs without settling them. No funds
// move and no refund is attempted.
func WithVerifyOnly(v bool) Option {
	return func(g *Gate) { g.verifyOnly = v }
}

// WithLogger sets the gate logger.
func WithLogger(log logger.Logger) Option {
	return func(g *Gate) { g.log = log }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(g *Gate) { g.rec = rec }
}

// NewGate builds a payment gate over the given route table, requirements
// builder, and facilitator.
func NewGate(table *routes.Table, builder *routes.Builder, fac facilitator.Facilitator, opts ...Option) *Gate {
	g := &Gate{
		table:       table,
		builder:     builder,
		facilitator: fac,
		log:         logger.Noop{},
		rec:         metrics.Noop{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// contextKey is a private type so gate context values cannot collide.
type contextKey string

const paymentContextKey = contextKey("x402_payment")

// PaymentFromContext returns the facilitator's verification result for the
// current request. Only set on requests that passed the gate.
func PaymentFromContext(ctx context.Context) (*facilitator.VerifyResponse, bool) {
	v, ok := ctx.Value(paymentContextKey).(*facilitator.VerifyResponse)
	return v, ok
}

// Middleware wraps next with payment gating. Requests not matching any route
// pass through untouched.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, ok := g.table.Match(r.URL.Path, r.Method)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		g.serve(w, r, route, next)
	})
}

func (g *Gate) serve(w http.ResponseWriter, r *http.Request, route routes.Route, next http.Handler) {
	labels := map[string]string{"network": route.Network}

	requirements, err := g.builder.Build(r.Context(), route, resourceURL(r))
	if err != nil {
		if x402.IsPriceError(err) {
			// A misconfigured price is an operator mistake, not a client one.
			g.log.Error("route price configuration invalid", map[string]any{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		g.log.Error("building payment requirements failed", map[string]any{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		http.Error(w, "Payment requirements unavailable", http.StatusServiceUnavailable)
		return
	}

	paymentHeader := r.Header.Get("X-PAYMENT")
	if paymentHeader == "" {
		g.rec.IncCounter(metrics.EventPaymentRequired, labels)
		g.log.Info("payment required", map[string]any{
			"path":    r.URL.Path,
			"network": route.Network,
		})
		if wantsPaywall(r) {
			writePaywall(w, route, requirements, fullRequestURL(r))
			return
		}
		writePaymentRequired(w, "X-PAYMENT header is required", requirements, "")
		return
	}

	payment, err := encoding.DecodePayment(paymentHeader)
	if err != nil {
		g.rec.IncCounter(metrics.EventInvalidPayment, labels)
		g.log.Warn("malformed payment header", map[string]any{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		writePaymentRequired(w, "Invalid payment", requirements, "")
		return
	}
	payment.X402Version = x402.X402Version

	requirement, err := x402.FindMatchingRequirement(payment, requirements)
	if err != nil {
		g.rec.IncCounter(metrics.EventInvalidPayment, labels)
		writePaymentRequired(w, x402.ErrNoMatchingRequirement.Error(), requirements, "")
		return
	}

	start := time.Now()
	verify, err := g.facilitator.Verify(r.Context(), payment, *requirement)
	g.rec.ObserveLatency(metrics.OpVerify, time.Since(start), labels)
	if err != nil {
		g.log.Error("facilitator verify failed", map[string]any{
			"network": requirement.Network,
			"error":   err.Error(),
		})
		http.Error(w, "Payment verification failed", http.StatusServiceUnavailable)
		return
	}
	if !verify.IsValid {
		g.rec.IncCounter(metrics.EventVerifyRejected, labels)
		g.log.Warn("payment rejected", map[string]any{
			"network": requirement.Network,
			"reason":  verify.InvalidReason,
		})
		reason := verify.InvalidReason
		if reason == "" {
			reason = "Payment verification failed"
		}
		writePaymentRequired(w, reason, requirements, verify.Payer)
		return
	}

	ctx := context.WithValue(r.Context(), paymentContextKey, verify)
	recorder := newResponseRecorder()
	next.ServeHTTP(recorder, r.WithContext(ctx))

	// A failing handler means nothing was delivered, so nothing is charged.
	if recorder.status() >= http.StatusBadRequest {
		g.log.Warn("handler failed, skipping settlement", map[string]any{
			"path":   r.URL.Path,
			"status": recorder.status(),
		})
		recorder.flushTo(w)
		return
	}

	if g.verifyOnly {
		recorder.flushTo(w)
		return
	}

	// Once settlement is issued it must run to completion. A client disconnect
	// mid-settle would otherwise abort the RPC after funds may have moved,
	// leaving a settled payment with no refund attempt. The facilitator
	// client's own settle timeout still bounds the call.
	settleCtx := context.WithoutCancel(r.Context())

	start = time.Now()
	settlement, err := g.facilitator.Settle(settleCtx, payment, *requirement)
	g.rec.ObserveLatency(metrics.OpSettle, time.Since(start), labels)
	if err != nil {
		g.rec.IncCounter(metrics.EventSettlementFailed, labels)
		g.log.Error("facilitator settle failed", map[string]any{
			"network": requirement.Network,
			"error":   err.Error(),
		})
		http.Error(w, "Payment settlement failed", http.StatusServiceUnavailable)
		return
	}
	if !settlement.Success {
		g.rec.IncCounter(metrics.EventSettlementFailed, labels)
		g.log.Warn("settlement unsuccessful", map[string]any{
			"network": requirement.Network,
			"reason":  settlement.ErrorReason,
		})
		reason := settlement.ErrorReason
		if reason == "" {
			reason = "Settlement failed"
		}
		writePaymentRequired(w, reason, requirements, settlement.Payer)
		return
	}

	g.rec.IncCounter(metrics.EventSettled, labels)
	g.log.Info("payment settled", map[string]any{
		"network":     settlement.Network,
		"payer":       settlement.Payer,
		"transaction": settlement.Transaction,
	})

	refund := g.refund(r.Context(), verify, settlement, *requirement, payment)

	if err := setPaymentResponseHeader(w.Header(), *settlement); err != nil {
		// The payment already settled, so the response still ships.
		g.log.Warn("encoding payment response header failed", map[string]any{"error": err.Error()})
	}

	if wantsReceipt(r) {
		writeReceipt(w, *settlement, refund)
		return
	}
	g.flushWithRefund(w, recorder, refund)
}

// refund runs the post-settlement refund leg and reports its outcome. The
// demo returns every settled payment; a missing refunder shows up as a failed
// refund rather than an error. The recipient is the payer the facilitator
// reported; when the facilitator reported none, it is left empty and the
// refunder recovers the payer from the proof itself.
func (g *Gate) refund(ctx context.Context, verify *facilitator.VerifyResponse, settlement *x402.SettlementResponse, requirement x402.PaymentRequirement, payment x402.PaymentPayload) x402.RefundResult {
	if g.refunder == nil {
		return x402.RefundResult{Failed: true}
	}

	recipient := settlement.Payer
	if recipient == "" {
		recipient = verify.Payer
	}

	tx, err := g.refunder.Refund(ctx, recipient, requirement, payment)
	if err != nil {
		g.log.Error("refund failed", map[string]any{
			"network":   requirement.Network,
			"recipient": recipient,
			"error":     err.Error(),
		})
		return x402.RefundResult{Failed: true}
	}
	return x402.RefundResult{Transaction: tx}
}

// flushWithRefund replays the handler's buffered response, folding the refund
// outcome into JSON object bodies so API clients see the refund status inline.
func (g *Gate) flushWithRefund(w http.ResponseWriter, recorder *responseRecorder, refund x402.RefundResult) {
	merged, ok := mergeRefundIntoJSON(recorder.bodyBytes(), refund)
	if !ok {
		recorder.flushTo(w)
		return
	}
	recorder.header().Del("Content-Length")
	recorder.setBody(merged)
	recorder.flushTo(w)
}

// mergeRefundIntoJSON adds refundTransaction or refundFailed to a JSON object
// body. Returns ok=false when the body is not a JSON object.
func mergeRefundIntoJSON(body []byte, refund x402.RefundResult) ([]byte, bool) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, false
	}
	if refund.Transaction != "" {
		fields["refundTransaction"] = refund.Transaction
	} else {
		fields["refundFailed"] = true
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, false
	}
	return merged, true
}

// resourceURL is the canonical resource identifier used in payment
// requirements: scheme, host, and path without the query string.
func resourceURL(r *http.Request) string {
	return requestScheme(r) + "://" + r.Host + r.URL.Path
}

// fullRequestURL keeps the query string; the paywall needs it to retry the
// exact request after payment.
func fullRequestURL(r *http.Request) string {
	return requestScheme(r) + "://" + r.Host + r.URL.RequestURI()
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
