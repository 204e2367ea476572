package settlementd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	marketconfig "github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/config"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/marketplace"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/observability"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/observability/logging"
	telemetry "github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/observability/otel"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/services/settlementd/indexer"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/services/settlementd/outbox"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/storage"
)

// Main initialises and runs the settlement daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/settlementd/config.yaml", "path to settlementd configuration")
	flag.Parse()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("SOFTLAW_ENV"))
	logger := logging.SetupWriter(logging.WithFile(logging.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}), serviceName, env)

	endpoint := cfg.Telemetry.Endpoint
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	genesisCfg, err := marketconfig.Load(cfg.GenesisPath)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	genesis, err := genesisCfg.Genesis()
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}

	db, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	idx, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN, logger)
	if err != nil {
		return err
	}
	defer idx.Close()

	queue, err := outbox.Open(cfg.Outbox.Path)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer queue.Close()

	market, err := marketplace.New(db,
		marketplace.WithEmitter(idx),
		marketplace.WithSink(queue),
		marketplace.WithLogger(logger.With("component", "marketplace")),
		marketplace.WithMetrics(observability.Settlement()),
	)
	if err != nil {
		return err
	}
	if err := market.Init(context.Background(), genesis); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	observability.Settlement().SetPause(market.Paused())

	auth, err := NewAuthenticator(cfg.Auth, logger)
	if err != nil {
		return err
	}
	logger.Info("settlementd: auth configured",
		"issuer", cfg.Auth.Issuer,
		"audience", cfg.Auth.Audience,
		logging.MaskField("hmac_secret", cfg.Auth.HMACSecret))
	server, err := NewServer(ServerConfig{
		Market:  market,
		Events:  idx,
		Outbox:  queue,
		Auth:    auth,
		Limiter: NewRateLimiter(cfg.RateLimit),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(server.Handler(), serviceName),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("settlementd listening", "addr", cfg.ListenAddress, "store", cfg.Store.Backend)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace.Duration)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func openStore(cfg StoreConfig) (storage.Database, error) {
	switch cfg.Backend {
	case StoreLevelDB:
		return storage.NewLevelDB(cfg.Path)
	case StoreBolt:
		return storage.NewBoltDB(cfg.Path, nil)
	case StoreMemory, "":
		return storage.NewMemDB(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

