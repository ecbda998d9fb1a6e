package main

import (
	"os"
	"strings"
)

// config is read entirely from the environment so the merchant can run
// unmodified in containers and CI.
type config struct {
	ListenAddr     string
	LogLevel       string
	FacilitatorURL string

	// FacilitatorAuth is a static Authorization header value. Ignored when
	// CDP API credentials are set.
	FacilitatorAuth string
	CDPAPIKeyID     string
	CDPAPIKeySecret string

	// Payee addresses per chain family. Routes for a family are only served
	// when its address is configured.
	EVMPayTo string
	SVMPayTo string

	// Refund wallet keys. Refunds for a family are disabled when its key is
	// missing; payments still settle, clients just see refundFailed.
	EVMPrivateKey string
	SVMPrivateKey string
	SVMKeygenFile string

	Price      string
	VerifyOnly bool
}

func loadConfig() config {
	return config{
		ListenAddr:      envOr("LISTEN_ADDR", ":8080"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		FacilitatorURL:  envOr("FACILITATOR_URL", "https://x402.org/facilitator"),
		FacilitatorAuth: os.Getenv("FACILITATOR_AUTHORIZATION"),
		CDPAPIKeyID:     os.Getenv("CDP_API_KEY_ID"),
		CDPAPIKeySecret: os.Getenv("CDP_API_KEY_SECRET"),
		EVMPayTo:        os.Getenv("RECEIVE_PAYMENTS_ADDRESS"),
		SVMPayTo:        os.Getenv("RECEIVE_PAYMENTS_SVM_ADDRESS"),
		EVMPrivateKey:   os.Getenv("EVM_PRIVATE_KEY"),
		SVMPrivateKey:   os.Getenv("SVM_PRIVATE_KEY"),
		SVMKeygenFile:   os.Getenv("SVM_KEYGEN_FILE"),
		Price:           envOr("PRICE", "$0.01"),
		VerifyOnly:      os.Getenv("VERIFY_ONLY") == "true",
	}
}

// rpcURL returns the refund RPC endpoint for a network, e.g. BASE_SEPOLIA_RPC_URL
// for base-sepolia.
func (c config) rpcURL(network string) string {
	key := strings.ToUpper(strings.ReplaceAll(network, "-", "_")) + "_RPC_URL"
	return os.Getenv(key)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
