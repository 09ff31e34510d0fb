package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vsachain/config"
	"vsachain/core"
	"vsachain/integrations/archive"
	"vsachain/integrations/exports"
	"vsachain/integrations/webhooks"
	"vsachain/observability/logging"
	telemetry "vsachain/observability/otel"
	"vsachain/rpc"
	"vsachain/storage"
)

const serviceName = "vsad"

var version = "dev"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file (.toml or .yaml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.SetupWithOptions(cfg.LoggingOptions(serviceName))
	logger.Info("Configuration loaded", slog.Any("config", cfg.LogsRedacted()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("vsad exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// run wires storage, the node, the integrations and the RPC server, then
// blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Env,
		Version:     version,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := storage.Open(cfg.Node.Storage, cfg.Node.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	node, err := core.NewNode(db, core.Options{
		NativeToken:      cfg.Auction.NativeToken,
		Tokens:           cfg.Auction.Tokens,
		MaxPhaseDuration: cfg.Auction.MaxPhaseSeconds,
		Faucet:           cfg.RPC.Faucet,
		Logger:           logger,
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("create node: %w", err)
	}
	defer func() {
		if err := node.Close(); err != nil {
			logger.Warn("Failed to close node", slog.Any("error", err))
		}
	}()

	if cfg.Genesis != nil {
		applied, err := node.InitGenesis(ctx, cfg.Genesis)
		if err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		if applied {
			logger.Info("Genesis applied",
				slog.Int("collections", len(cfg.Genesis.Collections)),
				slog.Int("allocations", len(cfg.Genesis.Allocations())))
		}
	}

	opts := []rpc.Option{rpc.WithLogger(logger)}

	if cfg.Archive.Enabled {
		store, err := archive.Open(cfg.Archive.Driver, cfg.Archive.DSN)
		if err != nil {
			return fmt.Errorf("open event archive: %w", err)
		}
		defer store.Close()
		sink := archive.NewSink(store, logger, 0)
		defer sink.Close()
		node.AddSink(sink)
		opts = append(opts, rpc.WithArchive(store))
		logger.Info("Event archive enabled", slog.String("driver", cfg.Archive.Driver))
	}

	dispatchers, err := buildDispatchers(cfg.Webhooks, logger)
	if err != nil {
		return err
	}
	for _, dispatcher := range dispatchers {
		defer dispatcher.Close()
		node.AddSink(dispatcher)
	}

	if dir := strings.TrimSpace(cfg.Exports.Dir); dir != "" {
		exporter, err := exports.NewExporter(dir)
		if err != nil {
			return fmt.Errorf("prepare exports: %w", err)
		}
		opts = append(opts, rpc.WithExporter(exporter))
	}

	server, err := rpc.NewServer(node, rpc.Config{
		JWTSecret:          cfg.RPC.JWTSecret,
		JWTIssuer:          cfg.RPC.JWTIssuer,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		TrustedProxies:     cfg.RPC.TrustedProxies,
		AllowedOrigins:     cfg.RPC.AllowedOrigins,
		ReadHeaderTimeout:  time.Duration(cfg.RPC.ReadHeaderTimeoutSecs) * time.Second,
	}, opts...)
	if err != nil {
		return fmt.Errorf("build rpc server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("RPC server listening", slog.String("address", cfg.RPC.ListenAddress))
		errCh <- server.Start(cfg.RPC.ListenAddress)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("RPC shutdown failed", slog.Any("error", err))
	}
	return nil
}

func buildDispatchers(cfg config.WebhookConfig, logger *slog.Logger) ([]*webhooks.Dispatcher, error) {
	out := make([]*webhooks.Dispatcher, 0, len(cfg.Endpoints))
	for i, endpoint := range cfg.Endpoints {
		opts := []webhooks.Option{
			webhooks.WithLogger(logger),
			webhooks.WithEvents(endpoint.Events...),
		}
		if cfg.QueueSize > 0 {
			opts = append(opts, webhooks.WithQueueSize(cfg.QueueSize))
		}
		if cfg.MaxAttempts > 0 {
			backoff := time.Duration(cfg.InitialBackoffMillis) * time.Millisecond
			opts = append(opts, webhooks.WithRetryPolicy(cfg.MaxAttempts, backoff, 64*backoff))
		}
		if cfg.TimeoutSeconds > 0 {
			opts = append(opts, webhooks.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}))
		}
		dispatcher, err := webhooks.NewDispatcher(endpoint.URL, []byte(endpoint.Secret), opts...)
		if err != nil {
			for _, d := range out {
				d.Close()
			}
			return nil, fmt.Errorf("webhook endpoint %d: %w", i, err)
		}
		out = append(out, dispatcher)
	}
	return out, nil
}
