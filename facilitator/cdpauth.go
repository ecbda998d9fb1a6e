package facilitator

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/url"
	"time"

	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// CDPAuth mints short-lived JWT bearer tokens for the Coinbase Developer
// Platform facilitator. The testnet facilitator at x402.org needs no
// credentials; the mainnet one authenticates every call.
//
// Immutable after construction and safe for concurrent use.
type CDPAuth struct {
	apiKeyName  string
	privateKey  any
	facilitator *url.URL
	tokenTTL    time.Duration
}

type cdpClaims struct {
	*jwt.Claims
	URI string `json:"uri"`
}

// NewCDPAuth parses a PEM-encoded ECDSA or Ed25519 CDP API key secret and
// returns an auth source for the facilitator at facilitatorURL.
func NewCDPAuth(apiKeyName, apiKeySecret, facilitatorURL string) (*CDPAuth, error) {
	if apiKeyName == "" {
		return nil, fmt.Errorf("cdp auth: apiKeyName must not be empty")
	}

	block, _ := pem.Decode([]byte(apiKeySecret))
	if block == nil {
		return nil, fmt.Errorf("cdp auth: apiKeySecret is not valid PEM")
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	var privateKey any = key
	if err != nil {
		privateKey, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cdp auth: parse private key: %w", err)
		}
	}

	switch privateKey.(type) {
	case *ecdsa.PrivateKey, ed25519.PrivateKey:
	default:
		return nil, fmt.Errorf("cdp auth: unsupported key type, want ECDSA or Ed25519")
	}

	u, err := url.Parse(facilitatorURL)
	if err != nil {
		return nil, fmt.Errorf("cdp auth: parse facilitator URL: %w", err)
	}

	return &CDPAuth{
		apiKeyName:  apiKeyName,
		privateKey:  privateKey,
		facilitator: u,
		tokenTTL:    2 * time.Minute,
	}, nil
}

// Provider returns an AuthProvider minting a fresh bearer token per call.
func (a *CDPAuth) Provider() AuthProvider {
	return func(_ context.Context, operation string) (string, error) {
		method := "POST"
		if operation == OpSupported {
			method = "GET"
		}
		token, err := a.bearerToken(method, a.facilitator.Path+"/"+operation)
		if err != nil {
			return "", err
		}
		return "Bearer " + token, nil
	}
}

func (a *CDPAuth) bearerToken(method, path string) (string, error) {
	alg := jose.SignatureAlgorithm(jose.EdDSA)
	if _, ok := a.privateKey.(*ecdsa.PrivateKey); ok {
		alg = jose.ES256
	}

	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: alg, Key: a.privateKey},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", a.apiKeyName),
	)
	if err != nil {
		return "", fmt.Errorf("cdp auth: create signer: %w", err)
	}

	now := time.Now()
	claims := &cdpClaims{
		Claims: &jwt.Claims{
			Subject:   a.apiKeyName,
			Issuer:    "coinbase-cloud",
			NotBefore: jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
		URI: fmt.Sprintf("%s %s%s", method, a.facilitator.Host, path),
	}

	token, err := jwt.Signed(sig).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("cdp auth: serialize token: %w", err)
	}
	return token, nil
}
