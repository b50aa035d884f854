package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sony/gobreaker"

	"github.com/snow-ghost/healer/api"
	"github.com/snow-ghost/healer/core"
	"github.com/snow-ghost/healer/decision"
	"github.com/snow-ghost/healer/detector"
	"github.com/snow-ghost/healer/engine"
	"github.com/snow-ghost/healer/healer"
	"github.com/snow-ghost/healer/learner"
	"github.com/snow-ghost/healer/oracle/mock"
	"github.com/snow-ghost/healer/oracle/openai"
	"github.com/snow-ghost/healer/pkg/cache"
	"github.com/snow-ghost/healer/pkg/limiter"
	"github.com/snow-ghost/healer/pkg/logging"
	"github.com/snow-ghost/healer/pkg/metrics"
	"github.com/snow-ghost/healer/pkg/tracing"
	"github.com/snow-ghost/healer/store/memory"
	"github.com/snow-ghost/healer/store/sqlite"
)

func main() {
	cfg := engine.LoadConfig()

	logger, err := logging.NewLogger(logging.Config{Level: cfg.LogLevel, Format: "json"})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Stores: SQLite when DB_PATH is set, otherwise in-memory.
	var (
		errorStore   core.ErrorStore
		patternStore core.PatternStore
		decisionLog  core.DecisionLog
	)
	if cfg.DBPath != "" {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
			os.Exit(1)
		}
		defer store.Close()
		if err := store.Seed(ctx, memory.SeedPatterns()); err != nil {
			logger.Error("failed to seed patterns", "error", err)
			os.Exit(1)
		}
		errorStore = store.ErrorStoreView()
		patternStore = store.PatternStoreView()
		decisionLog = store.DecisionLogView()
		logger.Info("using sqlite store", "path", cfg.DBPath)
	} else {
		errorStore = memory.NewErrorStore()
		patternStore = memory.NewPatternStore()
		decisionLog = memory.NewDecisionLog()
		logger.Info("using in-memory store")
	}

	m := metrics.NewPrometheusMetrics()

	// Optional tracing.
	var tracer *tracing.Tracer
	if cfg.JaegerEndpoint != "" {
		tracer, err = tracing.NewTracer(tracing.Config{
			ServiceName:    "healerd",
			ServiceVersion: "1.0.0",
			JaegerEndpoint: cfg.JaegerEndpoint,
			Environment:    "production",
		})
		if err != nil {
			logger.Warn("failed to create tracer, tracing disabled", "error", err)
			tracer = nil
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tracer.Shutdown(shutdownCtx); err != nil {
					logger.Warn("tracer shutdown failed", "error", err)
				}
			}()
		}
	}

	oracle := buildOracle(cfg, logger, m)

	scorer := decision.NewScorer(decisionLog, oracle)
	scorer.Observe(func(requiresUserInput bool) {
		m.DecisionsTotal.WithLabelValues(strconv.FormatBool(requiresUserInput)).Inc()
	})
	lrn := learner.New(patternStore)

	fixes, err := healer.LoadFixTable(cfg.FixTablePath)
	if err != nil {
		logger.Error("failed to load fix table", "path", cfg.FixTablePath, "error", err)
		os.Exit(1)
	}

	rules, err := detector.LoadRules(cfg.DetectorRulesPath)
	if err != nil {
		logger.Error("failed to load detector rules", "path", cfg.DetectorRulesPath, "error", err)
		os.Exit(1)
	}

	ladder := healer.New(errorStore, patternStore, lrn, oracle, scorer, fixes, healer.Config{
		MaxAttempts:         cfg.MaxAttempts,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
	})
	eng := engine.New(detector.NewWithRules(errorStore, rules), ladder, lrn, m, tracer)

	// Optional background healing loop.
	if cfg.HealInterval > 0 {
		go runLoop(ctx, eng, cfg, logger)
	}

	server := api.NewServer(cfg.HTTPPort, logger.GetSlog(), eng, scorer, errorStore)
	logger.Info("healerd starting",
		"port", cfg.HTTPPort,
		"oracle_mode", cfg.OracleMode,
		"heal_interval", cfg.HealInterval,
		"auto_apply", cfg.AutoApply)
	log.Fatal(server.Start())
}

// buildOracle assembles the oracle chain: client, then circuit breaker
// and rate limiter, then the prediction cache on the outside so cached
// answers skip the guards.
func buildOracle(cfg *engine.Config, logger *logging.Logger, m *metrics.PrometheusMetrics) core.Oracle {
	var inner core.Oracle
	switch cfg.OracleMode {
	case "openai":
		client, err := openai.New(openai.Config{
			BaseURL: cfg.OracleBaseURL,
			APIKey:  cfg.OracleAPIKey,
			Model:   cfg.OracleModel,
		})
		if err != nil {
			logger.Warn("failed to create openai oracle, falling back to mock", "error", err)
			inner = mock.New()
		} else {
			inner = client
		}
	default:
		inner = mock.New()
	}

	guarded := limiter.NewGuardedOracle(inner,
		limiter.DefaultBreakerConfig("oracle"),
		float64(cfg.OracleRPM),
		func(name string, from, to gobreaker.State) {
			logger.LogCircuitBreaker(context.Background(), name, from.String(), to.String())
			if to == gobreaker.StateOpen {
				m.CircuitOpenTotal.WithLabelValues(name).Inc()
			}
		})

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Observer = func(hit bool) {
		if hit {
			m.PredictionCacheHits.Inc()
		} else {
			m.PredictionCacheMisses.Inc()
		}
	}
	instrumented := metrics.NewInstrumentedOracle(guarded, m)

	cached, err := cache.NewPredictions(instrumented, cacheCfg)
	if err != nil {
		logger.Warn("failed to create prediction cache, caching disabled", "error", err)
		return instrumented
	}
	return cached
}

// runLoop triggers a healing cycle on every tick until shutdown.
func runLoop(ctx context.Context, eng *engine.Engine, cfg *engine.Config, logger *logging.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.HealInterval)
	defer ticker.Stop()

	logger.Info("background healing loop started", "interval", cfg.HealInterval)
	for {
		select {
		case <-ticker.C:
			report := eng.RunCycle(ctx, engine.CycleOptions{
				MaxErrors: cfg.MaxErrors,
				AutoApply: cfg.AutoApply,
			})
			slog.InfoContext(ctx, "scheduled cycle finished",
				"outcome", report.Outcome, "healed", report.Healed)
		case sig := <-stop:
			logger.Info("background healing loop stopping", "signal", sig.String())
			return
		case <-ctx.Done():
			return
		}
	}
}
