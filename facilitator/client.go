package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	x402 "github.com/caasxyz/x402-echo-merchant"
	"github.com/caasxyz/x402-echo-merchant/logger"
	"github.com/caasxyz/x402-echo-merchant/retry"
)

// Operation names passed to AuthProvider so credentials can differ per call.
const (
	OpVerify    = "verify"
	OpSettle    = "settle"
	OpSupported = "supported"
)

// AuthProvider returns an Authorization header value for a facilitator call,
// or "" when the call needs no credentials. The testnet facilitator is open;
// the Coinbase mainnet facilitator wants a fresh CDP JWT per request.
type AuthProvider func(ctx context.Context, operation string) (string, error)

// Client is the HTTP facilitator client.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	verifyTimeout time.Duration
	settleTimeout time.Duration
	authorization string
	authProvider  AuthProvider
	retryConfig   retry.Config
	log           logger.Logger

	mu           sync.Mutex
	supported    *SupportedResponse
	supportedAt  time.Time
	supportedTTL time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithVerifyTimeout bounds verify and supported calls.
func WithVerifyTimeout(d time.Duration) Option {
	return func(c *Client) { c.verifyTimeout = d }
}

// WithSettleTimeout bounds settle calls. Settlement involves an on-chain
// transaction and needs more headroom than verification.
func WithSettleTimeout(d time.Duration) Option {
	return func(c *Client) { c.settleTimeout = d }
}

// WithAuthorization sets a static Authorization header value.
func WithAuthorization(value string) Option {
	return func(c *Client) { c.authorization = value }
}

// WithAuthProvider sets a per-call Authorization provider. Takes precedence
// over WithAuthorization.
func WithAuthProvider(p AuthProvider) Option {
	return func(c *Client) { c.authProvider = p }
}

// WithRetryConfig tunes the backoff used for the idempotent supported call.
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) { c.retryConfig = cfg }
}

// WithSupportedTTL sets how long a supported response is cached.
func WithSupportedTTL(d time.Duration) Option {
	return func(c *Client) { c.supportedTTL = d }
}

// WithLogger sets the client logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient builds a facilitator client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       baseURL,
		httpClient:    &http.Client{},
		verifyTimeout: 30 * time.Second,
		settleTimeout: 60 * time.Second,
		retryConfig:   retry.DefaultConfig,
		supportedTTL:  5 * time.Minute,
		log:           logger.Noop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// request is the body of verify and settle calls.
type request struct {
	X402Version         int                     `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirement `json:"paymentRequirements"`
}

// Verify implements Facilitator.
func (c *Client) Verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := c.post(ctx, OpVerify, c.verifyTimeout, payment, requirement, &out); err != nil {
		return nil, err
	}
	c.log.Debug("facilitator verify", map[string]any{
		"network": payment.Network,
		"isValid": out.IsValid,
		"reason":  out.InvalidReason,
	})
	return &out, nil
}

// Settle implements Facilitator.
func (c *Client) Settle(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	var out x402.SettlementResponse
	if err := c.post(ctx, OpSettle, c.settleTimeout, payment, requirement, &out); err != nil {
		return nil, err
	}
	c.log.Debug("facilitator settle", map[string]any{
		"network":     payment.Network,
		"success":     out.Success,
		"transaction": out.Transaction,
	})
	return &out, nil
}

func (c *Client) post(ctx context.Context, operation string, timeout time.Duration, payment x402.PaymentPayload, requirement x402.PaymentRequirement, out any) error {
	body, err := json.Marshal(request{
		X402Version:         x402.X402Version,
		PaymentPayload:      payment,
		PaymentRequirements: requirement,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+operation, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.setAuthorization(ctx, req, operation); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", x402.ErrFacilitatorUnavailable, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned status %d: %s", x402.ErrFacilitatorUnavailable, operation, resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", x402.ErrFacilitatorUnavailable, operation, err)
	}
	return nil
}

// Supported implements Facilitator. Responses are cached for the configured
// TTL; the call is idempotent so transient failures are retried with backoff.
func (c *Client) Supported(ctx context.Context) (*SupportedResponse, error) {
	c.mu.Lock()
	if c.supported != nil && time.Since(c.supportedAt) < c.supportedTTL {
		cached := c.supported
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	supported, err := retry.Do(ctx, c.retryConfig, nil, func() (*SupportedResponse, error) {
		return c.fetchSupported(ctx)
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.supported = supported
	c.supportedAt = time.Now()
	c.mu.Unlock()
	return supported, nil
}

func (c *Client) fetchSupported(ctx context.Context) (*SupportedResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.verifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("build supported request: %w", err)
	}
	if err := c.setAuthorization(ctx, req, OpSupported); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: supported: %v", x402.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: supported returned status %d", x402.ErrFacilitatorUnavailable, resp.StatusCode)
	}

	var out SupportedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode supported response: %v", x402.ErrFacilitatorUnavailable, err)
	}
	return &out, nil
}

// FeePayer resolves the sponsor account for a network and scheme from the
// facilitator's supported kinds. Returns x402.ErrUnsupportedNetwork when no
// fee payer is advertised.
func (c *Client) FeePayer(ctx context.Context, network, scheme string) (string, error) {
	supported, err := c.Supported(ctx)
	if err != nil {
		return "", err
	}
	fp := supported.FeePayer(network, scheme)
	if fp == "" {
		return "", fmt.Errorf("%w: facilitator advertises no fee payer for %s/%s", x402.ErrUnsupportedNetwork, network, scheme)
	}
	return fp, nil
}

func (c *Client) setAuthorization(ctx context.Context, req *http.Request, operation string) error {
	if c.authProvider != nil {
		value, err := c.authProvider(ctx, operation)
		if err != nil {
			return fmt.Errorf("%w: authorization: %v", x402.ErrFacilitatorUnavailable, err)
		}
		if value != "" {
			req.Header.Set("Authorization", value)
		}
		return nil
	}
	if c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}
	return nil
}
