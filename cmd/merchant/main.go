// Command merchant runs the x402 demo merchant: an HTTP server selling access
// to a trivial piece of premium content on several chains, refunding every
// settled payment back to the payer.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	x402 "github.com/caasxyz/x402-echo-merchant"
	"github.com/caasxyz/x402-echo-merchant/chain"
	"github.com/caasxyz/x402-echo-merchant/chain/evm"
	"github.com/caasxyz/x402-echo-merchant/chain/svm"
	"github.com/caasxyz/x402-echo-merchant/facilitator"
	httpx402 "github.com/caasxyz/x402-echo-merchant/http"
	"github.com/caasxyz/x402-echo-merchant/logger"
	"github.com/caasxyz/x402-echo-merchant/metrics"
	"github.com/caasxyz/x402-echo-merchant/refund"
	"github.com/caasxyz/x402-echo-merchant/routes"
)

// servedNetworks fixes the route order; one paid route per network.
var servedNetworks = []string{
	"base",
	"base-sepolia",
	"polygon",
	"polygon-amoy",
	"avalanche",
	"avalanche-fuji",
	"solana",
	"solana-devnet",
}

func main() {
	cfg := loadConfig()

	log := logger.NewZap(cfg.LogLevel)
	defer log.Sync()

	registry := prometheus.NewRegistry()
	rec := metrics.NewPrometheus(registry)

	fac, err := newFacilitator(cfg, log)
	if err != nil {
		log.Error("facilitator setup failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	table, builder, err := newRoutes(cfg, fac)
	if err != nil {
		log.Error("route setup failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	refunder := refund.New(newChainRegistry(cfg, log),
		refund.WithLogger(log),
		refund.WithMetrics(rec),
	)

	gate := httpx402.NewGate(table, builder, fac,
		httpx402.WithRefunder(refunder),
		httpx402.WithVerifyOnly(cfg.VerifyOnly),
		httpx402.WithLogger(log),
		httpx402.WithMetrics(rec),
	)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(gate.Middleware)
		r.Get("/api/{network}/paid-content", paidContent)
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Settlement plus refund can take two block confirmations.
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		log.Info("merchant listening", map[string]any{
			"addr":        cfg.ListenAddr,
			"facilitator": cfg.FacilitatorURL,
			"verify_only": cfg.VerifyOnly,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown incomplete", map[string]any{"error": err.Error()})
	}
}

// paidContent is the protected resource. By the time it runs, the gate has
// already verified the payment; settlement and refund happen on the way out.
func paidContent(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"message":        "Payment received. Enjoy your premium content.",
		"premiumContent": "Have some rizz!",
	}
	if verify, ok := httpx402.PaymentFromContext(r.Context()); ok && verify.Payer != "" {
		body["payer"] = verify.Payer
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func newFacilitator(cfg config, log logger.Logger) (*facilitator.Client, error) {
	opts := []facilitator.Option{facilitator.WithLogger(log)}

	switch {
	case cfg.CDPAPIKeyID != "" && cfg.CDPAPIKeySecret != "":
		auth, err := facilitator.NewCDPAuth(cfg.CDPAPIKeyID, cfg.CDPAPIKeySecret, cfg.FacilitatorURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, facilitator.WithAuthProvider(auth.Provider()))
	case cfg.FacilitatorAuth != "":
		opts = append(opts, facilitator.WithAuthorization(cfg.FacilitatorAuth))
	}

	return facilitator.NewClient(cfg.FacilitatorURL, opts...), nil
}

func newRoutes(cfg config, fac *facilitator.Client) (*routes.Table, *routes.Builder, error) {
	var rts []routes.Route
	for _, network := range servedNetworks {
		switch x402.NetworkTypeOf(network) {
		case x402.NetworkTypeEVM:
			if cfg.EVMPayTo == "" {
				continue
			}
		case x402.NetworkTypeSVM:
			if cfg.SVMPayTo == "" {
				continue
			}
		default:
			continue
		}
		rts = append(rts, routes.Route{
			Pattern:     "/api/" + network + "/paid-content",
			Method:      http.MethodGet,
			Network:     network,
			Price:       x402.USD(cfg.Price),
			Description: "Access to protected content on " + network,
		})
	}
	if len(rts) == 0 {
		return nil, nil, errors.New("no payee addresses configured, nothing to sell")
	}

	table, err := routes.NewTable(rts)
	if err != nil {
		return nil, nil, err
	}
	builder := &routes.Builder{
		EVMPayTo:  cfg.EVMPayTo,
		SVMPayTo:  cfg.SVMPayTo,
		FeePayers: fac,
	}
	return table, builder, nil
}

// newChainRegistry wires a refund adapter for every network with both a wallet
// key and an RPC endpoint configured. Networks missing either still accept
// payments; their refunds report as failed.
func newChainRegistry(cfg config, log logger.Logger) *chain.Registry {
	registry := chain.NewRegistry()

	for _, network := range servedNetworks {
		rpcURL := cfg.rpcURL(network)

		var (
			adapter chain.Adapter
			err     error
		)
		switch x402.NetworkTypeOf(network) {
		case x402.NetworkTypeEVM:
			if cfg.EVMPrivateKey == "" || rpcURL == "" {
				continue
			}
			adapter, err = evm.NewAdapter(network, rpcURL, evm.WithPrivateKey(cfg.EVMPrivateKey))
		case x402.NetworkTypeSVM:
			if rpcURL == "" {
				continue
			}
			switch {
			case cfg.SVMKeygenFile != "":
				adapter, err = svm.NewAdapter(network, rpcURL, svm.WithKeygenFile(cfg.SVMKeygenFile))
			case cfg.SVMPrivateKey != "":
				adapter, err = svm.NewAdapter(network, rpcURL, svm.WithPrivateKey(cfg.SVMPrivateKey))
			default:
				continue
			}
		default:
			continue
		}

		if err != nil {
			log.Warn("refunds disabled for network", map[string]any{
				"network": network,
				"error":   err.Error(),
			})
			continue
		}
		registry.Register(adapter)
		log.Info("refunds enabled", map[string]any{"network": network})
	}

	return registry
}
