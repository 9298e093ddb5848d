package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vnFuhung2903/rubyams/internal/adapters/http/api"
	"github.com/vnFuhung2903/rubyams/internal/adapters/http/swagger"
	"github.com/vnFuhung2903/rubyams/internal/adapters/journal"
	"github.com/vnFuhung2903/rubyams/internal/adapters/ledger/blockfrost"
	"github.com/vnFuhung2903/rubyams/internal/adapters/ledger/emulator"
	"github.com/vnFuhung2903/rubyams/internal/adapters/signer"
	app "github.com/vnFuhung2903/rubyams/internal/app"
	"github.com/vnFuhung2903/rubyams/internal/config"
	"github.com/vnFuhung2903/rubyams/internal/domain/contract"
	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
	"github.com/vnFuhung2903/rubyams/internal/domain/txbuilder"
	"github.com/vnFuhung2903/rubyams/pkg/logger"
	"github.com/vnFuhung2903/rubyams/pkg/metrics"
)

// HTTP server timeout constants. WriteTimeout covers a full confirmation wait.
const (
	readTimeout               = 10 * time.Second
	writeTimeoutSlack         = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, err := wire(ctx, cfg, loggerInstance)
	if err != nil {
		loggerInstance.Error(ctx, "failed to wire service", logger.Error(err))
		return
	}
	if err := svc.Start(ctx); err != nil {
		loggerInstance.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	defer svc.Stop(context.Background())

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      cfg.ConfirmTimeout() + writeTimeoutSlack,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("network", cfg.Network),
			logger.String("ledger", cfg.LedgerProvider),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			loggerInstance.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

// wire builds the service and its adapters from cfg.
func wire(ctx context.Context, cfg *config.Config, l logger.Logger) (*app.Service, error) {
	network := ledger.Network(cfg.Network)

	contracts, err := contract.Load(cfg.BlueprintPath, contract.Options{
		Network:         network,
		AuctionTitle:    cfg.AuctionTitle,
		EvaluationTitle: cfg.EvaluationTitle,
		PolicyID:        cfg.PolicyID,
		AssetName:       cfg.AssetName,
	})
	if err != nil {
		return nil, err
	}

	sig, err := newSigner(ctx, cfg, network)
	if err != nil {
		return nil, err
	}

	params, err := builderParams(cfg)
	if err != nil {
		return nil, err
	}

	var chain ledger.Ledger
	switch cfg.LedgerProvider {
	case config.LedgerBlockfrost:
		bf := blockfrost.New(cfg.BlockfrostURL, cfg.BlockfrostProjectID, blockfrost.WithLogger(l.Named("blockfrost")))
		pp, err := bf.ProtocolParams(ctx)
		if err != nil {
			return nil, err
		}
		params.FeePerByte = pp.MinFeeA
		params.FeeConstant = pp.MinFeeB
		params.PriceMem = pp.PriceMem
		params.PriceSteps = pp.PriceSteps
		if pp.CollateralPercent > 0 {
			params.CollateralPercent = pp.CollateralPercent
		}
		if len(cfg.CostModelV2) == 0 {
			params.CostModel = pp.CostModelV2
		}
		l.Info(ctx, "protocol parameters loaded",
			logger.Uint64("min_fee_a", pp.MinFeeA),
			logger.Uint64("min_fee_b", pp.MinFeeB),
			logger.String("price_mem", pp.PriceMem.String()),
			logger.String("price_steps", pp.PriceSteps.String()),
			logger.Int("cost_model_len", len(params.CostModel)),
		)
		chain = bf
	default:
		emu := emulator.New(
			emulator.WithFeeParams(params.FeePerByte, params.FeeConstant),
			emulator.WithExUnitPrices(params.PriceMem, params.PriceSteps),
			emulator.WithLogger(l.Named("emulator")),
		)
		emu.Fund(sig.Address(), cfg.EmulatorFundLovelace)
		chain = emu
	}

	var j journal.Journal
	switch cfg.JournalDriver {
	case config.JournalPostgres:
		pg, err := journal.OpenPostgres(ctx, cfg.JournalDSN)
		if err != nil {
			return nil, err
		}
		j = pg
	default:
		j = journal.NewMemory()
	}

	return app.New(contracts, chain, sig,
		app.WithLogger(l),
		app.WithJournal(j),
		app.WithParams(params),
		app.WithPollInterval(cfg.PollInterval()),
		app.WithConfirmTimeout(cfg.ConfirmTimeout()),
		app.WithSubmitRate(cfg.SubmitRatePerSec, cfg.SubmitBurst),
		app.WithTracker(cfg.TrackerWorkers, cfg.TrackerQueueSize, cfg.TrackerWindow()),
		app.WithDedupeSize(cfg.DedupeSize),
	), nil
}

func builderParams(cfg *config.Config) (txbuilder.Params, error) {
	mem, steps, err := cfg.ExUnitPrices()
	if err != nil {
		return txbuilder.Params{}, err
	}
	return txbuilder.Params{
		MinDeposit:        cfg.MinDepositLovelace,
		FeePerByte:        cfg.FeePerByte,
		FeeConstant:       cfg.FeeConstant,
		CollateralPercent: cfg.CollateralPercent,
		MinCollateral:     cfg.MinCollateralLovelace,
		MinChange:         cfg.MinChangeLovelace,
		PriceMem:          mem,
		PriceSteps:        steps,
		CostModel:         cfg.CostModelV2,
	}, nil
}

func newSigner(ctx context.Context, cfg *config.Config, network ledger.Network) (ledger.Signer, error) {
	switch cfg.Signer {
	case config.SignerRemote:
		return signer.NewRemoteSigner(ctx, signer.RemoteConfig{
			BaseURL:   cfg.SignerURL,
			ServiceID: cfg.SignerServiceID,
			Network:   network,
		})
	default:
		if cfg.SignerKeyHex == "" {
			if cfg.LedgerProvider != config.LedgerEmulator {
				return nil, fmt.Errorf("%w: signer_key_hex is required outside the emulator", config.ErrInvalidConfig)
			}
			return signer.GenerateKeySigner(network)
		}
		return signer.NewKeySigner(cfg.SignerKeyHex, network)
	}
}

// newMux registers documentation and API routes.
func newMux(ctx context.Context, svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc.Auctions(), svc.Evaluations(), svc.Journal(), svc).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics updates service-level metrics.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["trackerQueueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
}
