package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rfplab/proposal-agent/internal/agent"
	"github.com/rfplab/proposal-agent/internal/classify"
	"github.com/rfplab/proposal-agent/internal/compose"
	"github.com/rfplab/proposal-agent/internal/config"
	"github.com/rfplab/proposal-agent/internal/conversation"
	"github.com/rfplab/proposal-agent/internal/decompose"
	"github.com/rfplab/proposal-agent/internal/health"
	"github.com/rfplab/proposal-agent/internal/memory"
	"github.com/rfplab/proposal-agent/internal/metrics"
	"github.com/rfplab/proposal-agent/internal/server"
	"github.com/rfplab/proposal-agent/internal/textgen"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddr).
		Str("storage_dir", cfg.StorageDir).
		Bool("generator_enabled", cfg.GeneratorEnabled()).
		Bool("retriever_enabled", cfg.RetrieverEnabled()).
		Msg("starting proposal agent")

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	collector := metrics.New()

	// Memory context: TTL cache, short/long-term stores, working slot
	mem, err := memory.NewContext(memory.ContextConfig{
		StorageDir:       cfg.StorageDir,
		CacheTTL:         cfg.CacheTTL,
		MaxHistory:       cfg.MaxHistory,
		PatternThreshold: cfg.PatternThreshold,
		PatternCacheSize: cfg.PatternCacheSize,
		OnCacheLookup: func(namespace string, hit bool) {
			result := "miss"
			if hit {
				result = "hit"
			}
			collector.RecordCacheLookup(namespace, result)
		},
		OnPatternPromote: collector.PatternsPromotedTotal.Inc,
		Logger:           logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init memory")
	}

	// Health checker
	checker := health.NewChecker(logger)
	checker.Register("storage", health.StorageCheck(cfg.StorageDir))

	// Session store: Redis when configured, local files otherwise
	var sessions memory.SessionStore
	if cfg.RedisEnabled() {
		redisStore, err := memory.NewRedisSessionStore(ctx, cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisStore.Close()
		checker.Register("redis", health.PingCheck(redisStore.Ping))
		sessions = redisStore
		logger.Info().Msg("redis session store initialized")
	} else {
		fileStore, err := memory.NewFileSessionStore(cfg.StorageDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init file session store")
		}
		sessions = fileStore
		logger.Info().Msg("file session store initialized")
	}

	// Text generation: HTTP service when configured, canned output otherwise
	var gen textgen.TextGenerator
	if cfg.GeneratorEnabled() {
		gen = textgen.NewHTTPGenerator(cfg.GeneratorURL,
			textgen.WithAPIKey(cfg.GeneratorAPIKey),
			textgen.WithGeneratorLogger(logger),
		)
	} else {
		logger.Warn().Msg("no generator configured, running in offline mode")
		gen = textgen.NewStaticGenerator(map[string]any{
			"content": "생성 서비스가 구성되지 않았습니다.",
		})
	}

	// Category catalog
	categories := classify.DefaultCatalog()
	if cfg.CatalogPath != "" {
		categories, err = classify.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("failed to load category catalog")
		}
	}

	classifierOpts := []classify.ClassifierOption{
		classify.WithThreshold(cfg.ConfidenceThreshold),
		classify.WithHistory(mem.LongTerm),
		classify.WithResultCache(mem.Cache),
		classify.WithClassifierLogger(logger),
	}
	trackerOpts := []conversation.TrackerOption{
		conversation.WithAnalysisCache(mem.Cache),
		conversation.WithShortTermMemory(mem.ShortTerm),
		conversation.WithTrackerLogger(logger),
	}
	if cfg.RetrieverEnabled() {
		retriever := textgen.NewHTTPRetriever(cfg.RetrieverURL,
			textgen.WithRetrieverLogger(logger))
		classifierOpts = append(classifierOpts, classify.WithRetriever(retriever))
		trackerOpts = append(trackerOpts, conversation.WithExampleRetriever(retriever))
	}

	// Task types with a poor recorded track record run later.
	rates := func(taskType string) float64 {
		outcome, ok := mem.LongTerm.PatternStats().CategoryOutcomes[taskType]
		if !ok || outcome.Success+outcome.Failure == 0 {
			return 1
		}
		return outcome.SuccessRate()
	}

	ag := agent.New(agent.Deps{
		Memory:     mem,
		Tracker:    conversation.NewTracker(gen, trackerOpts...),
		Classifier: classify.New(categories, classifierOpts...),
		Decomposer: decompose.New(
			decompose.WithWorkingMemory(mem.Working),
			decompose.WithSuccessRates(rates),
			decompose.WithDecomposerLogger(logger),
		),
		Composer:  compose.New(compose.WithComposerLogger(logger)),
		Generator: gen,
		Logger:    logger,
	})

	srv := server.New(server.Config{ListenAddr: cfg.ListenAddr}, server.Deps{
		Agent:    ag,
		Memory:   mem,
		Sessions: sessions,
		Checker:  checker,
		Metrics:  collector,
		Logger:   logger,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		_ = srv.Shutdown()
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn().Msg("shutdown timed out")
	}
}
