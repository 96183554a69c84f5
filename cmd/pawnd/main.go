package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pawnchain/cmd/internal/passphrase"
	"pawnchain/config"
	"pawnchain/core"
	"pawnchain/core/state"
	"pawnchain/crypto"
	"pawnchain/observability"
	"pawnchain/observability/logging"
	telemetry "pawnchain/observability/otel"
	"pawnchain/rpc"
	"pawnchain/storage"
)

const serviceName = "pawnd"

var version = "dev"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	allowMigrate := flag.Bool("allow-migrate", false, "Start even when the stored schema version differs (manual migrations only)")
	flag.Parse()

	if err := run(*configFile, *allowMigrate); err != nil {
		fmt.Fprintf(os.Stderr, "pawnd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, allowMigrate bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.SetupWithOptions(logging.Options{
		Service:    serviceName,
		Env:        cfg.Log.Env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Log.Env,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        cfg.Telemetry.Headers,
		Metrics:        cfg.Telemetry.Metrics,
		Traces:         cfg.Telemetry.Traces,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err.Error())
		}
	}()

	pass, err := passphrase.NewSource(cfg.KeystorePassphraseEnv).Get()
	if err != nil {
		return fmt.Errorf("deployer keystore: %w", err)
	}
	deployerKey, created, err := crypto.LoadOrCreate(cfg.KeystorePath, pass)
	if err != nil {
		return fmt.Errorf("deployer keystore: %w", err)
	}
	if created {
		logger.Info("generated deployer key", "keystore", cfg.KeystorePath, "address", deployerKey.Address().Hex())
	}

	db, err := storage.Open(cfg.StorageBackend, cfg.DataDir)
	if err != nil {
		return err
	}
	store := state.NewStore(db)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("state close failed", "error", err.Error())
		}
	}()
	store.SetLogger(logger)
	if err := store.EnsureSchema(ctx, allowMigrate); err != nil {
		return err
	}
	store.SetEmitter(observability.CountingEmitter{Next: observability.LogEmitter{Logger: logger}})

	dep, err := core.Deploy(ctx, store, core.DeployConfig{
		Deployer:         deployerKey.Address(),
		ChainID:          new(big.Int).SetUint64(cfg.Protocol.ChainID),
		ProtocolName:     cfg.Protocol.Name,
		CurrencySymbol:   cfg.Protocol.CurrencySymbol,
		CurrencyDecimals: cfg.Protocol.CurrencyDecimals,
		FlashFeeBps:      cfg.Protocol.FlashFeeBps,
		FixCurrency:      cfg.Protocol.FixCurrency,
		Pauses:           cfg.Pauses.View(),
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	server, err := rpc.NewServer(rpc.Config{
		Deployment: dep,
		Logger:     logger,
		RateLimit: rpc.RateLimit{
			RequestsPerSecond: cfg.RPC.RateLimitPerSec,
			Burst:             cfg.RPC.RateLimitBurst,
		},
	})
	if err != nil {
		return err
	}
	return serve(ctx, logger, cfg.RPC, traced(server.Handler(), cfg.Telemetry.Traces))
}

// traced wraps h in a server span per request when tracing is enabled.
func traced(h http.Handler, enabled bool) http.Handler {
	if !enabled {
		return h
	}
	return otelhttp.NewHandler(h, serviceName)
}

func serve(ctx context.Context, logger *slog.Logger, cfg config.RPC, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeout) * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("rpc listening", "addr", cfg.Address)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
