package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	x402 "github.com/caasxyz/x402-echo-merchant"
	"github.com/caasxyz/x402-echo-merchant/encoding"
	"github.com/caasxyz/x402-echo-merchant/facilitator"
	"github.com/caasxyz/x402-echo-merchant/routes"
)

const testPayTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"

type fakeFacilitator struct {
	verifyResp   *facilitator.VerifyResponse
	verifyErr    error
	settleResp   *x402.SettlementResponse
	settleErr    error
	verifyCalls  int
	settleCalls  int
	settleCtxErr error
}

func (f *fakeFacilitator) Verify(context.Context, x402.PaymentPayload, x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	f.verifyCalls++
	return f.verifyResp, f.verifyErr
}

func (f *fakeFacilitator) Settle(ctx context.Context, _ x402.PaymentPayload, _ x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	f.settleCalls++
	f.settleCtxErr = ctx.Err()
	return f.settleResp, f.settleErr
}

func (f *fakeFacilitator) Supported(context.Context) (*facilitator.SupportedResponse, error) {
	return &facilitator.SupportedResponse{}, nil
}

type fakeRefunder struct {
	tx        string
	err       error
	calls     int
	recipient string
}

func (f *fakeRefunder) Refund(_ context.Context, recipient string, _ x402.PaymentRequirement, _ x402.PaymentPayload) (string, error) {
	f.calls++
	f.recipient = recipient
	return f.tx, f.err
}

func happyFacilitator() *fakeFacilitator {
	return &fakeFacilitator{
		verifyResp: &facilitator.VerifyResponse{IsValid: true, Payer: "0xpayer"},
		settleResp: &x402.SettlementResponse{
			Success:     true,
			Transaction: "0xsettled",
			Network:     "base-sepolia",
			Payer:       "0xpayer",
		},
	}
}

func testTable(t *testing.T) *routes.Table {
	t.Helper()
	table, err := routes.NewTable([]routes.Route{{
		Pattern:     "/api/base-sepolia/paid-content",
		Network:     "base-sepolia",
		Price:       x402.USD("$0.01"),
		Description: "Access to protected content on base-sepolia",
	}})
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	return table
}

func testGate(t *testing.T, fac facilitator.Facilitator, opts ...Option) *Gate {
	t.Helper()
	return NewGate(testTable(t), &routes.Builder{EVMPayTo: testPayTo}, fac, opts...)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"premiumContent": "Have some rizz!"})
	})
}

func paymentHeader(t *testing.T, network string) string {
	t.Helper()
	payment := x402.PaymentPayload{
		X402Version: 1,
		Scheme:      x402.SchemeExact,
		Network:     network,
		Payload: map[string]any{
			"signature": "0xsig",
			"authorization": map[string]any{
				"from":  "0x1111111111111111111111111111111111111111",
				"nonce": "0xabc",
			},
		},
	}
	header, err := encoding.EncodePayment(payment)
	if err != nil {
		t.Fatalf("EncodePayment failed: %v", err)
	}
	return header
}

func decode402(t *testing.T, rec *httptest.ResponseRecorder) x402.PaymentRequiredResponse {
	t.Helper()
	var body x402.PaymentRequiredResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("402 body is not JSON: %v\n%s", err, rec.Body.String())
	}
	return body
}

func TestGate_PassThroughUnmatchedRoute(t *testing.T) {
	fac := happyFacilitator()
	handler := testGate(t, fac).Middleware(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Unmatched route should pass through, got %d", rec.Code)
	}
	if fac.verifyCalls != 0 || fac.settleCalls != 0 {
		t.Errorf("Facilitator must not be called for unmatched routes")
	}
}

func TestGate_NoPaymentReturns402JSON(t *testing.T) {
	fac := happyFacilitator()
	handler := testGate(t, fac).Middleware(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/base-sepolia/paid-content", nil))

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", rec.Code)
	}
	body := decode402(t, rec)
	if body.X402Version != 1 {
		t.Errorf("Expected x402Version 1, got %d", body.X402Version)
	}
	if body.Error != "X-PAYMENT header is required" {
		t.Errorf("Unexpected error %q", body.Error)
	}
	if len(body.Accepts) != 1 {
		t.Fatalf("Expected 1 requirement, got %d", len(body.Accepts))
	}
	req := body.Accepts[0]
	if req.MaxAmountRequired != "10000" || req.Network != "base-sepolia" {
		t.Errorf("Unexpected requirement: %+v", req)
	}
	if !strings.HasSuffix(req.Resource, "/api/base-sepolia/paid-content") {
		t.Errorf("Resource should be the request URL, got %s", req.Resource)
	}
	if fac.verifyCalls != 0 {
		t.Error("Verify must not be called without a payment header")
	}
}

func TestGate_NoPaymentBrowserGetsPaywall(t *testing.T) {
	handler := testGate(t, happyFacilitator()).Middleware(okHandler())

	req := httptest.NewRequest("GET", "/api/base-sepolia/paid-content", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh) AppleWebKit/537.36")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("Expected HTML paywall, got %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "window.x402") {
		t.Error("Paywall should publish window.x402 state")
	}
}

func TestGate_MalformedPaymentIs402Not500(t *testing.T) {
	fac := happyFacilitator()
	handler := testGate(t, fac).Middleware(okHandler())

	req := httptest.NewRequest("GET", "/api/base-sepolia/paid-content", nil)
	req.Header.Set("X-PAYMENT", "!!! not base64 !!!")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Malformed header must be a 402, got %d", rec.Code)
	}
	body := decode402(t, rec)
	if body.Error != "Invalid payment" {
		t.Errorf("Unexpected error %q", body.Error)
	}
	if fac.verifyCalls != 0 {
		t.Error("Malformed proofs must not reach the facilitator")
	}
}

func TestGate_NoMatchingRequirement(t *testing.T) {
	fac := happyFacilitator()
	handler := testGate(t, fac).Middleware(okHandler())

	req := httptest.NewRequest("GET", "/api/base-sepolia/paid-content", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t, "polygon"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", rec.Code)
	}
	body := decode402(t, rec)
	if !strings.Contains(body.Error, "matching payment requirements") {
		t.Errorf("Unexpected error %q", body.Error)
	}
	if fac.verifyCalls != 0 || fac.settleCalls != 0 {
		t.Errorf("A mismatched proof must not reach the facilitator, got %d/%d", fac.verifyCalls, fac.settleCalls)
	}
}

func TestGate_VerifyRejected(t *testing.T) {
	fac := happyFacilitator()
	fac.verifyResp = &facilitator.VerifyResponse{IsValid: false, InvalidReason: "invalid_signature", Payer: "0xpayer"}
	handler := testGate(t, fac).Middleware(okHandler())

	req := httptest.NewRequest("GET", "/api/base-sepolia/paid-content", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t, "base-sepolia"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", rec.Code)
	}
	body := decode402(t, rec)
	if body.Error != "invalid_signature" {
		t.Errorf("Expected the facilitator's reason, got %q", body.Error)
	}
	if body.Payer != "0xpayer" {
		t.Errorf("Payer should be echoed on rejection, got %q", body.Payer)
	}
	if fac.settleCalls != 0 {
		t.Error("Rejected payments must not settle")
	}
}

func TestGate_VerifyTransportFailureIs503(t *testing.T) {
	fac := happyFacilitator()
	fac.verifyErr = x402.ErrFacilitatorUnavailable
	handler := testGate(t, fac).Middleware(okHandler())

	req := httptest.NewRequest("GET", "/api/base-sepolia/paid-content", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t, "base-sepolia"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", rec.Code)
	}
}

func TestGate_HandlerErrorSkipsSettlement(t *testing.T) {
	fac := happyFacilitator()
	refunder := &fakeRefunder{tx: "0xrefund"}
	gate := testGate(t, fac, WithRefunder(refunder))

	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))

	req := httptest.NewRequest("GET", "/api/base-sepolia/paid-content", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t, "base-sepolia"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Handler status should pass through, got %d", rec.Code)
	}
	if fac.settleCalls != 0 {
		t.Error("Nothing was delivered, nothing must be charged")
	}
	if refunder.calls != 0 {
		t.Error("No settlement means no refund")
	}
}

func TestGate_VerifyOnlySkipsSettlement(t *testing.T) {
	fac := happyFacilitator()
	refunder := &fakeRefunder{tx: "0xrefund"}
	gate := testGate(t, fac, WithRefunder(refunder), WithVerifyOnly(true))
	handler := gate.Middleware(okHandler())

	req := httptest.NewRequest("GET", "/api/base-sepolia/paid-content", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t, "base-sepolia"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if fac.verifyCalls != 1 {
		t.Errorf("Expected exactly one verify, got %d", fac.verifyCalls)
	}
	if fac.settleCalls != 0 || refunder.calls != 0 {
		t.Error("Verify-only mode must not settle or refund")
	}
	if rec.Header().Get(PaymentResponseHeader) != "" {
		t.Error("No settlement means no X-PAYMENT-RESPONSE header")
	}
}

func TestGate_FullFlowJSONClient(t *testing.T) {
	fac := happyFacilitator()
	refunder := &fakeRefunder{tx: "0xrefund"}
	gate := testGate(t, fac, WithRefunder(refunder))

	var payerInHandler string
	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if verify, ok := PaymentFromContext(r.Context()); ok {
			payerInHandler = verify.Payer
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"premiumContent": "Have some rizz!"})
	}))

	req := httptest.NewRequest("GET", "/api/base-sepolia/paid-content", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t, "base-sepolia"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if fac.verifyCalls != 1 || fac.settleCalls != 1 {
		t.Errorf("Expected one verify and one settle, got %d/%d", fac.verifyCalls, fac.settleCalls)
	}
	if payerInHandler != "0xpayer" {
		t.Errorf("Handler should see the payer, got %q", payerInHandler)
	}
	if refunder.recipient != "0xpayer" {
		t.Errorf("Refund should go to the payer, got %q", refunder.recipient)
	}

	settlement, err := encoding.DecodeSettlement(rec.Header().Get(PaymentResponseHeader))
	if err != nil {
		t.Fatalf("X-PAYMENT-RESPONSE not decodable: %v", err)
	}
	if settlement.Transaction != "0xsettled" {
		t.Errorf("Unexpected settlement in header: %+v", settlement)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Body is not JSON: %v", err)
	}
	if body["premiumContent"] != "Have some rizz!" {
		t.Errorf("Handler content lost: %v", body)
	}
	if body["refundTransaction"] != "0xrefund" {
		t.Errorf("Refund transaction missing from body: %v", body)
	}
	if _, present := body["refundFailed"]; present {
		t.Error("A successful refund must not set refundFailed")
	}
}

func TestGate_RefundFailureIsNonFatal(t *testing.T) {
	fac := happyFacilitator()
	refunder := &fakeRefunder{err: errors.New("rpc down")}
	gate := testGate(t, fac, WithRefunder(refunder))
	handler := gate.Middleware(okHandler())

	req := httptest.NewRequest("GET", "/api/base-sepolia/paid-content", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t, "base-sepolia"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("A failed refund must not fail the request, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Body is not JSON: %v", err)
	}
	if body["refundFailed"] != true {
		t.Errorf("refundFailed flag missing: %v", body)
	}
}

func TestGate_SettlementSurvivesClientDisconnect(t *testing.T) {
	fac := happyFacilitator()
	refunder := &fakeRefunder{tx: "0xrefund"}
	gate := testGate(t, fac, WithRefunder(refunder))

	ctx, cancel := context.WithCancel(context.Background())
	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"premiumContent": "Have some rizz!"})
		// The client hangs up right after the handler finishes.
		cancel()
	}))

	req := httptest.NewRequest("GET", "/api/base-sepolia/paid-content", nil).WithContext(ctx)
	req.Header.Set("X-PAYMENT", paymentHeader(t, "base-sepolia"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if fac.settleCalls != 1 {
		t.Fatalf("Settlement must still run after a disconnect, got %d calls", fac.settleCalls)
	}
	if fac.settleCtxErr != nil {
		t.Errorf("Settlement context inherited request cancellation: %v", fac.settleCtxErr)
	}
	if refunder.calls != 1 {
		t.Errorf("Refund must still be attempted, got %d calls", refunder.calls)
	}
}

func TestGate_UnknownPayerDelegatedToRefunder(t *testing.T) {
	fac := happyFacilitator()
	fac.verifyResp = &facilitator.VerifyResponse{IsValid: true}
	fac.settleResp = &x402.SettlementResponse{Success: true, Transaction: "0xsettled", Network: "base-sepolia"}
	refunder := &fakeRefunder{tx: "0xrefund"}
	gate := testGate(t, fac, WithRefunder(refunder))
	handler := gate.Middleware(okHandler())

	req := httptest.NewRequest("GET", "/api/base-sepolia/paid-content", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t, "base-sepolia"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	// Neither response named the payer, but the proof does; the refunder gets
	// the payment and recovers the recipient itself.
	if refunder.calls != 1 {
		t.Fatalf("Refund must be attempted even without a reported payer, got %d calls", refunder.calls)
	}
	if refunder.recipient != "" {
		t.Errorf("Recipient should be left for the refunder to recover, got %q", refunder.recipient)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Body is not JSON: %v", err)
	}
	if body["refundTransaction"] != "0xrefund" {
		t.Errorf("Refund transaction missing from body: %v", body)
	}
}

func TestGate_SettlementRejectedIs402(t *testing.T) {
	fac := happyFacilitator()
	fac.settleResp = &x402.SettlementResponse{Success: false, ErrorReason: "authorization_expired"}
	handler := testGate(t, fac).Middleware(okHandler())

	req := httptest.NewRequest("GET", "/api/base-sepolia/paid-content", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t, "base-sepolia"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", rec.Code)
	}
	if body := decode402(t, rec); body.Error != "authorization_expired" {
		t.Errorf("Unexpected error %q", body.Error)
	}
}

func TestGate_SettlementTransportFailureIs503(t *testing.T) {
	fac := happyFacilitator()
	fac.settleErr = x402.ErrFacilitatorUnavailable
	handler := testGate(t, fac).Middleware(okHandler())

	req := httptest.NewRequest("GET", "/api/base-sepolia/paid-content", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t, "base-sepolia"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", rec.Code)
	}
}

func TestGate_BrowserGetsReceipt(t *testing.T) {
	fac := happyFacilitator()
	refunder := &fakeRefunder{tx: "0xrefund"}
	gate := testGate(t, fac, WithRefunder(refunder))
	handler := gate.Middleware(okHandler())

	req := httptest.NewRequest("GET", "/api/base-sepolia/paid-content", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t, "base-sepolia"))
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("Expected HTML receipt, got %s", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Have some rizz") {
		t.Error("Receipt page content missing")
	}
	if !strings.Contains(body, "0xsettled") || !strings.Contains(body, "0xrefund") {
		t.Error("Receipt should show both transactions")
	}
	if !strings.Contains(body, "https://sepolia.basescan.org/tx/0xsettled") {
		t.Error("Receipt should link the block explorer")
	}
	if rec.Header().Get(PaymentResponseHeader) == "" {
		t.Error("Receipt responses still carry X-PAYMENT-RESPONSE")
	}
}

func TestGate_PriceConfigErrorIs500(t *testing.T) {
	table, err := routes.NewTable([]routes.Route{{
		Pattern: "/api/base-sepolia/paid-content",
		Network: "base-sepolia",
		Price:   x402.USD("$not-a-price"),
	}})
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	gate := NewGate(table, &routes.Builder{EVMPayTo: testPayTo}, happyFacilitator())
	handler := gate.Middleware(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/base-sepolia/paid-content", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Operator misconfiguration is a 500, got %d", rec.Code)
	}
}

func TestGate_NoRefunderMarksRefundFailed(t *testing.T) {
	handler := testGate(t, happyFacilitator()).Middleware(okHandler())

	req := httptest.NewRequest("GET", "/api/base-sepolia/paid-content", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t, "base-sepolia"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Body is not JSON: %v", err)
	}
	if body["refundFailed"] != true {
		t.Errorf("Expected refundFailed without a refunder: %v", body)
	}
}
