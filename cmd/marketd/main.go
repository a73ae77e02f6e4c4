// Marketd is the marketplace orchestration daemon: it drives commissioned
// work sessions over an append-only record log and exposes an HTTP control
// surface with a live event feed.
//
// Usage:
//
//	# Start with defaults (expects NATS at nats://127.0.0.1:4222)
//	marketd
//
//	# Fully self-contained: embedded JetStream server
//	MARKETD_NATS_EMBEDDED=true marketd
//
//	# Explicit config file
//	marketd -config /etc/marketd/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/marketd/internal/chainlog"
	"github.com/fyrsmithlabs/marketd/internal/config"
	"github.com/fyrsmithlabs/marketd/internal/ledger"
	"github.com/fyrsmithlabs/marketd/internal/logging"
	"github.com/fyrsmithlabs/marketd/internal/marketplace"
	"github.com/fyrsmithlabs/marketd/internal/reputation"
	"github.com/fyrsmithlabs/marketd/internal/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  marketd            Start the marketd daemon\n")
			fmt.Fprintf(os.Stderr, "  marketd version    Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("marketd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the marketd server and blocks until the context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize the logger
//  3. Bring up the record log backend (embedded or external JetStream)
//  4. Provision the ledger and reputation registry
//  5. Wire the orchestrator, event hub, and metrics
//  6. Start the HTTP server; shut everything down on cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info(ctx, "starting marketd",
		zap.Int("port", cfg.Server.Port),
		zap.String("stream", cfg.NATS.Stream),
		zap.Bool("embedded_nats", cfg.NATS.Embedded))

	chain, closeChain, err := initChainLog(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize record log: %w", err)
	}
	defer closeChain()

	led := ledger.NewMemory()
	led.Mint(cfg.Marketplace.TreasuryAccount, cfg.Marketplace.Asset, cfg.Marketplace.TreasuryFunds)
	logger.Info(ctx, "ledger provisioned",
		zap.String("asset", cfg.Marketplace.Asset),
		zap.String("treasury", cfg.Marketplace.TreasuryAccount),
		zap.Int64("funds", cfg.Marketplace.TreasuryFunds))

	registrar := reputation.NewMemory()

	metrics := server.NewMetrics()
	hub := server.NewHub(metrics)
	sink := marketplace.MultiSink(hub, metrics.Sink())

	orc := marketplace.New(chain, led, registrar, marketplace.Infra{
		TreasuryAccount:  cfg.Marketplace.TreasuryAccount,
		EscrowAccount:    cfg.Marketplace.EscrowAccount,
		AnalystAccount:   cfg.Marketplace.AnalystAccount,
		ArchitectAccount: cfg.Marketplace.ArchitectAccount,
		Asset:            cfg.Marketplace.Asset,
	}, marketplace.Config{
		PollInterval: cfg.Marketplace.PollInterval,
		BidTimeout:   cfg.Marketplace.BidTimeout,
		WorkTimeout:  cfg.Marketplace.WorkTimeout,
		SettleDelay:  cfg.Marketplace.SettleDelay,
	}, logger.Named("marketplace"), sink)

	srv, err := server.NewServer(orc, hub, metrics, chain, led, logger.Named("http"), server.Config{
		Host:  cfg.Server.Host,
		Port:  cfg.Server.Port,
		Asset: cfg.Marketplace.Asset,
		Accounts: map[string]string{
			"treasury":  cfg.Marketplace.TreasuryAccount,
			"escrow":    cfg.Marketplace.EscrowAccount,
			"analyst":   cfg.Marketplace.AnalystAccount,
			"architect": cfg.Marketplace.ArchitectAccount,
		},
		MonitorInterval: cfg.Marketplace.PollInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info(ctx, "server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("feed_endpoint", "/api/marketplace/feed"),
		zap.String("metrics_endpoint", "/metrics"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	// Cancel any in-flight session before taking the server down.
	orc.Reset()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// initChainLog brings up the JetStream-backed record log, starting an
// embedded server first when configured.
func initChainLog(ctx context.Context, cfg *config.Config, logger *logging.Logger) (chainlog.Log, func(), error) {
	url := cfg.NATS.URL
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.NATS.Embedded {
		storeDir := cfg.NATS.StoreDir
		if storeDir == "" {
			dir, err := os.MkdirTemp("", "marketd-jetstream-")
			if err != nil {
				return nil, nil, fmt.Errorf("jetstream store dir: %w", err)
			}
			storeDir = dir
		}

		ns, err := chainlog.RunEmbedded(storeDir)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, ns.Shutdown)
		url = ns.ClientURL()
		logger.Info(ctx, "embedded nats server started",
			zap.String("url", url),
			zap.String("store_dir", storeDir))
	}

	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	closers = append(closers, nc.Close)
	logger.Info(ctx, "connected to nats", zap.String("url", url))

	chain, err := chainlog.NewJetStream(nc, cfg.NATS.Stream)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return chain, closeAll, nil
}
