package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/fetch-orchestrator/config"
	"github.com/angeloszaimis/fetch-orchestrator/internal/catalog"
	"github.com/angeloszaimis/fetch-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/fetch-orchestrator/internal/dispatch"
	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
	"github.com/angeloszaimis/fetch-orchestrator/internal/handler"
	"github.com/angeloszaimis/fetch-orchestrator/internal/health"
	"github.com/angeloszaimis/fetch-orchestrator/internal/httpserver"
	"github.com/angeloszaimis/fetch-orchestrator/internal/metrics"
	"github.com/angeloszaimis/fetch-orchestrator/internal/orchestrator"
	"github.com/angeloszaimis/fetch-orchestrator/internal/provider"
	"github.com/angeloszaimis/fetch-orchestrator/internal/snapshot"
	"github.com/angeloszaimis/fetch-orchestrator/internal/strategy"
	"github.com/angeloszaimis/fetch-orchestrator/internal/telemetry"
	"github.com/angeloszaimis/fetch-orchestrator/pkg/clock"
	"github.com/angeloszaimis/fetch-orchestrator/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.AddSource, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, log)
	if err != nil {
		log.Error("Failed to initialize", slog.Any("err", err))
		os.Exit(1)
	}
	defer a.close()

	if err := a.run(ctx); err != nil {
		log.Error("Orchestrator stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("Orchestrator stopped")
}

// app holds every long-lived component built from the configuration.
type app struct {
	cfg          *config.Config
	log          *slog.Logger
	orchestrator *orchestrator.Orchestrator
	collector    *metrics.Collector
	exporter     *metrics.Exporter
	snapshotter  *snapshot.Snapshotter
	handler      http.Handler
	server       *httpserver.Server
	closers      []func() error
}

func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{
		cfg:       cfg,
		log:       log,
		collector: metrics.NewCollector(cfg.Telemetry.MetricsBuffer, log),
		exporter:  metrics.NewExporter(),
	}

	clk := clock.Real{}
	buffer := telemetry.NewBuffer(cfg.Telemetry.Capacity)

	breakers := circuitbreaker.NewRegistry(circuitbreaker.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		InitialBackoff:   cfg.Breaker.InitialBackoffDuration(),
		MaxBackoff:       cfg.Breaker.MaxBackoffDuration(),
	}, clk)
	breakers.OnTransition(a.observeTransition)

	providers, err := initializeProviders(cfg.Providers)
	if err != nil {
		return nil, err
	}

	cat, err := initializeCatalog(cfg)
	if err != nil {
		return nil, err
	}

	strat, err := strategy.New(cfg.Dispatch.Strategy, cfg.Dispatch.VirtualNodes)
	if err != nil {
		return nil, err
	}

	a.orchestrator, err = orchestrator.New(orchestrator.Config{
		Catalog:   cat,
		Providers: providers,
		Strategy:  strat,
		Buffer:    buffer,
		Breakers:  breakers,
		Dispatch: dispatch.Settings{
			MaxRetries:     uint64(cfg.Retry.MaxRetries),
			BaseDelay:      cfg.Retry.BaseDelayDuration(),
			MaxDelay:       cfg.Retry.MaxDelayDuration(),
			Jitter:         cfg.Retry.JitterDuration(),
			AttemptTimeout: cfg.Retry.AttemptTimeoutDuration(),
		},
		Health: health.Settings{
			WindowSize:           cfg.Health.WindowSize,
			WindowDuration:       cfg.Health.WindowDurationDuration(),
			DegradedRatio:        cfg.Health.DegradedRatio,
			CriticalRatio:        cfg.Health.CriticalRatio,
			CriticalOpenFraction: cfg.Health.CriticalOpenFraction,
		},
		Clock:  clk,
		Logger: log,
		DispatchOptions: []dispatch.Option{
			dispatch.WithObserver(a.collector.ObserveTrace),
			dispatch.WithObserver(a.exporter.ObserveTrace),
		},
		OnFetch: a.observeFetch,
	})
	if err != nil {
		return nil, err
	}

	sinks, closers := initializeSinks(cfg.Snapshot, log)
	a.closers = append(a.closers, closers...)
	a.snapshotter = snapshot.New(buffer, cfg.Snapshot.IntervalDuration(), cfg.Snapshot.Limit, log, sinks...)

	fetchHandler := handler.NewFetchHandler(log, a.orchestrator)
	router := setupRouter(fetchHandler, a.collector, a.exporter, cfg.Dispatch.Strategy)

	a.handler = handler.Logging(log, router)

	a.server, err = httpserver.New(cfg.Server.Address, a.handler, httpserver.Timeouts{
		Read:     cfg.Server.ReadTimeoutDuration(),
		Write:    cfg.Server.WriteTimeoutDuration(),
		Idle:     cfg.Server.IdleTimeoutDuration(),
		Shutdown: cfg.Server.ShutdownTimeoutDuration(),
	})
	if err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}

	return a, nil
}

// run serves until ctx ends or a component fails, then shuts everything
// down.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.collector.Start(gctx)

	g.Go(func() error {
		a.log.Info("Fetch orchestrator listening",
			slog.String("addr", a.server.Addr()),
			slog.String("strategy", a.cfg.Dispatch.Strategy),
			slog.Int("providers", len(a.cfg.Providers)),
		)
		return a.server.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("Shutting down gracefully...")
		return a.server.Shutdown(context.Background())
	})

	g.Go(func() error {
		health.Monitor(gctx, a.orchestrator.HealthAggregator(), a.cfg.Health.IntervalDuration(), a.log,
			func(r health.Report) { a.exporter.SetHealth(r.Status.Level()) })
		return nil
	})

	g.Go(func() error {
		return a.snapshotter.Run(gctx)
	})

	return g.Wait()
}

func (a *app) close() {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("Error releasing resources", slog.Any("err", err))
	}
}

func (a *app) observeTransition(t circuitbreaker.Transition) {
	attrs := []any{
		slog.String("provider", t.Key.Provider),
		slog.String("engine", t.Key.Engine.String()),
		slog.String("from", t.From.String()),
		slog.String("to", t.To.String()),
		slog.Int("consecutive_failures", t.Record.ConsecutiveFailures),
	}
	switch t.To {
	case circuitbreaker.StateOpen:
		a.log.Warn("Circuit opened", append(attrs, slog.Duration("backoff", t.Record.Backoff))...)
	case circuitbreaker.StateHalfOpen:
		a.log.Info("Circuit probing", attrs...)
	default:
		a.log.Info("Circuit closed", attrs...)
	}

	a.collector.ObserveTransition(t)
	a.exporter.ObserveTransition(t)
}

func (a *app) observeFetch(e engine.Engine, t telemetry.Trace) {
	a.collector.ObserveFetch(e, t)
	a.exporter.ObserveFetch(e, t.Success)
}

func initializeProviders(cfgs []config.ProviderConfig) ([]*provider.Tracked, error) {
	providers := make([]*provider.Tracked, 0, len(cfgs))
	for _, pc := range cfgs {
		p, err := provider.NewHTTPProvider(provider.HTTPConfig{
			ID:           pc.ID,
			BaseURL:      pc.BaseURL,
			APIKey:       pc.Key(),
			APIKeyParam:  pc.APIKeyParam,
			APIKeyHeader: pc.APIKeyHeader,
			Endpoints:    pc.EngineEndpoints(),
			Timeout:      pc.TimeoutDuration(),
			MaxBodyBytes: pc.MaxBodyBytes,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.ID, err)
		}
		providers = append(providers, provider.Track(p, pc.Weight))
	}

	if len(providers) == 0 {
		return nil, errors.New("no providers configured")
	}
	return providers, nil
}

func initializeCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	classes := make([]catalog.Class, 0, len(cfg.AssetClasses))
	for _, ac := range cfg.AssetClasses {
		classes = append(classes, catalog.Class{
			Name:      ac.Name,
			Providers: ac.Providers,
			Suffixes:  ac.Suffixes,
			Prefixes:  ac.Prefixes,
			Default:   ac.Default,
		})
	}
	return catalog.New(classes, cfg.Aliases)
}

// initializeSinks builds the configured snapshot sinks and the functions
// that release their connections.
func initializeSinks(cfg config.SnapshotConfig, log *slog.Logger) ([]snapshot.Sink, []func() error) {
	var (
		sinks   []snapshot.Sink
		closers []func() error
	)

	if cfg.File.Path != "" {
		sinks = append(sinks, snapshot.NewFileSink(cfg.File.Path))
	}

	if cfg.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		sinks = append(sinks, snapshot.NewRedisSink(client, cfg.Redis.Key, cfg.Redis.TTLDuration()))
		closers = append(closers, client.Close)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		k := snapshot.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		sinks = append(sinks, k)
		closers = append(closers, k.Close)
	}

	for _, s := range sinks {
		log.Info("Snapshot sink enabled", slog.String("sink", s.Name()))
	}
	return sinks, closers
}
