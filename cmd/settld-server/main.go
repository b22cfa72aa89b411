// Command settld-server runs the x402 gate HTTP control plane: config load,
// structured logging, OpenTelemetry wiring, and the gateway middleware stack
// fronting the x402 gate operations.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"settld/gateway/middleware"
	"settld/internal/config"
	"settld/internal/cryptoutil"
	"settld/internal/identity"
	otelinit "settld/observability/otel"

	"settld/internal/httpapi"
	"settld/internal/logging"
	"settld/internal/wallet"
	"settld/internal/x402"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := os.Getenv("SETTLD_CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./settld.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Printf("load config: %v", err)
		return 1
	}

	base := logging.Setup("settld-server", os.Getenv("SETTLD_ENV"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	otelEndpoint := os.Getenv("SETTLD_OTEL_ENDPOINT")
	var shutdown func(context.Context) error
	if otelEndpoint != "" {
		shutdown, err = otelinit.Init(ctx, otelinit.Config{
			ServiceName: "settld-server",
			Environment: os.Getenv("SETTLD_ENV"),
			Endpoint:    otelEndpoint,
			Insecure:    true,
			Traces:      true,
			Metrics:     true,
		})
		if err != nil {
			base.Error("otel init failed", slog.String("error", err.Error()))
		}
	}
	if shutdown != nil {
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				base.Error("otel shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName:   "settld-server",
		MetricsPrefix: "settld",
		LogRequests:   true,
		Enabled:       true,
	}, nil)

	jwtSecret := os.Getenv("SETTLD_JWT_SECRET")
	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:       jwtSecret != "",
		HMACSecret:    jwtSecret,
		OptionalPaths: []string{"/healthz", "/metrics"},
	}, nil)

	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		"x402": {RatePerSecond: 50, Burst: 100},
	}, nil)

	policies := map[string]wallet.Policy{}
	if policiesPath := os.Getenv("SETTLD_POLICIES_PATH"); policiesPath != "" {
		loaded, err := wallet.LoadPoliciesYAML(policiesPath)
		if err != nil {
			base.Error("load wallet policies failed", slog.String("error", err.Error()))
			return 1
		}
		policies = loaded
	}

	var identityOpts []identity.RegistryOption
	if cfg.CapabilityIssuerKeyID != "" {
		identityOpts = append(identityOpts, identity.RequireIssuerAttestation(cfg.CapabilityIssuerKeyID, cfg.CapabilityIssuerPublicKeyPEM))
	}

	handler := httpapi.New(httpapi.Config{
		Authenticator: auth,
		RateLimiter:   limiter,
		Observability: obs,
		Reserve:       x402.NoReserveAdapter{},
		Escrow:        wallet.NewEscrowLedger(),
		Gates:         httpapi.NewGateStore(),
		Pilot: x402.PilotPolicy{
			KillSwitchActive: cfg.PilotKillSwitchActive,
		},
		Policies: policies,
		RealMoney: x402.RealMoneyPolicy{
			Enabled:                cfg.RealMoneyEnabled,
			StripeConnectAccountID: cfg.StripeConnectAccountID,
			PayoutKillSwitchActive: cfg.PayoutKillSwitchActive,
			PayoutPerCallCapCents:  cfg.PayoutPerCallCapCents,
			PayoutDailyCapCents:    cfg.PayoutDailyCapCents,
		},
		Payouts:     httpapi.NewGateStore(),
		TokenSigner: cryptoutil.Signer{PrivateKeyPEM: cfg.ServerSignerKeyPEM},
		Idempotency: x402.NewIdempotencyStore(),

		Identity:       identity.NewRegistry(identityOpts...),
		IdentitySigner: cryptoutil.Signer{PrivateKeyPEM: cfg.ServerSignerKeyPEM},
	})

	base.Info("settld-server listening", slog.String("addr", cfg.ListenAddress))
	if err := http.ListenAndServe(cfg.ListenAddress, handler); err != nil {
		base.Error("server exited", slog.String("error", err.Error()))
		return 1
	}
	return 0
}
