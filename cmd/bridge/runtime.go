package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openbridge/openbridge-backend/internal/analytics"
	"github.com/openbridge/openbridge-backend/internal/bridge"
	"github.com/openbridge/openbridge-backend/internal/bridge/simkit"
	"github.com/openbridge/openbridge-backend/internal/config"
	"github.com/openbridge/openbridge-backend/internal/fees"
	"github.com/openbridge/openbridge-backend/internal/log"
	"github.com/openbridge/openbridge-backend/internal/metrics"
	"github.com/openbridge/openbridge-backend/internal/storage"
	"github.com/openbridge/openbridge-backend/pkg/kv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	_ "github.com/openbridge/openbridge-backend/pkg/kv/memory"
	_ "github.com/openbridge/openbridge-backend/pkg/kv/redis"
	_ "github.com/openbridge/openbridge-backend/pkg/kv/sqlite"
)

// runtime holds the wired dependencies of one command invocation.
type runtime struct {
	cfg       *config.Config
	logger    *zap.SugaredLogger
	metrics   *metrics.Metrics
	kv        kv.Store
	store     *storage.Store
	fees      *fees.Client
	analytics *analytics.Client
	server    *http.Server
	stepDelay time.Duration
}

func newRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := log.NewSugar(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	metricsObj, metricsHandler, err := metrics.Setup("openbridge-cli")
	if err != nil {
		return nil, fmt.Errorf("failed to setup metrics: %w", err)
	}

	backend, err := kv.NewStoreFromConfig(cfg.KV(func(msg string, fields ...any) {
		logger.Infow(msg, fields...)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Backend, err)
	}

	httpClient := &http.Client{Timeout: cfg.Bridge.HTTPTimeout}
	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: metricsObj,
		kv:      backend,
		store:   storage.New(backend, logger, storage.WithKey(cfg.Storage.Key)),
		fees: fees.NewClient(fees.Network(cfg.Iris.Network), logger,
			fees.WithBaseURL(cfg.IrisBaseURL()),
			fees.WithHTTPClient(httpClient),
			fees.WithCache(backend, cfg.Iris.QuoteTTL),
			fees.WithCacheRecorder(metricsObj),
		),
		analytics: analytics.NewClient(cfg.Analytics.URL, logger, analytics.WithHTTPClient(httpClient)),
		stepDelay: c.Duration(stepDelayFlag.Name),
	}

	if addr := c.String(metricsAddrFlag.Name); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		rt.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := rt.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warnw("Metrics server stopped", "addr", addr, "error", err)
			}
		}()
	}
	return rt, nil
}

// orchestrator builds an orchestrator over the simulated SDK. opts are
// applied after the defaults.
func (rt *runtime) orchestrator(kitOpts []simkit.Option, opts ...bridge.Option) *bridge.Orchestrator {
	kitOpts = append([]simkit.Option{simkit.WithStepDelay(rt.stepDelay)}, kitOpts...)
	base := []bridge.Option{
		bridge.WithFeeQuoter(rt.fees),
		bridge.WithReporter(rt.analytics),
		bridge.WithRecorder(rt.metrics),
	}
	return bridge.NewOrchestrator(simkit.New(rt.logger, kitOpts...), rt.store, rt.logger, append(base, opts...)...)
}

func (rt *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), rt.cfg.Bridge.HTTPTimeout)
	defer cancel()

	if err := rt.analytics.Flush(ctx); err != nil {
		rt.logger.Warnw("Analytics events not delivered", "error", err)
	}
	if rt.server != nil {
		rt.server.Shutdown(ctx)
	}
	if err := rt.kv.Close(); err != nil {
		rt.logger.Warnw("Failed to close store", "error", err)
	}
	rt.logger.Sync()
}

// withRuntime wires dependencies around a command action.
func withRuntime(fn func(c *cli.Context, rt *runtime) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := newRuntime(c)
		if err != nil {
			return err
		}
		defer rt.Close()
		return fn(c, rt)
	}
}
