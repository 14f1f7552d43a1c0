package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"storyradar/internal/alert"
	"storyradar/internal/config"
	"storyradar/internal/enrich"
	"storyradar/internal/exemplar"
	"storyradar/internal/gemini"
	"storyradar/internal/ingest"
	"storyradar/internal/learning"
	"storyradar/internal/logger"
	"storyradar/internal/outcome"
	"storyradar/internal/scoring"
	"storyradar/internal/server"
	"storyradar/internal/sources"
	"storyradar/internal/storage"
	"storyradar/internal/telegram"
)

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	store, err := storage.Open(cfg.PostgresDSN)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("database ready")

	ctx := context.Background()

	if err := seedProfilesIfEmpty(ctx, store, cfg); err != nil {
		logger.Error("topic profile seeding failed", "error", err)
		os.Exit(1)
	}

	srcCfg, err := config.LoadSources(cfg.SourcesConfigPath)
	if err != nil {
		logger.Error("source config load failed", "path", cfg.SourcesConfigPath, "error", err)
		os.Exit(1)
	}

	var seen *redis.Client
	if cfg.RedisAddr != "" {
		seen = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := seen.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, dedup fast path disabled", "addr", cfg.RedisAddr, "error", err)
			seen = nil
		}
	}

	srcs := []sources.Source{
		sources.NewNewswire(srcCfg.Feeds, cfg.RequestTimeout),
		sources.NewReddit(srcCfg.Subreddits, cfg.DiscussionItemCap, cfg.RequestTimeout),
		sources.NewTrends(srcCfg.TrendsFeed, cfg.RequestTimeout),
	}

	thresholds := scoring.Thresholds{
		Telegram: cfg.TelegramThreshold,
		Queue:    cfg.QueueThreshold,
	}
	aggregator := ingest.New(store, srcs, thresholds, seen)

	generator, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.DeepModel, cfg.FastModel)
	if err != nil {
		logger.Error("gemini client init failed", "error", err)
		os.Exit(1)
	}
	defer generator.Close()

	engine := learning.New(store)
	processor := enrich.New(store, generator, engine, enrich.Options{
		BatchSize:         cfg.EnrichBatchSize,
		Concurrency:       cfg.EnrichConcurrency,
		DeepTierThreshold: cfg.DeepTierThreshold,
	})

	evaluator := outcome.New(store)

	sender := telegram.NewSender(cfg.TelegramToken, cfg.TelegramChatID, cfg.RetryAttempts, cfg.RetryDelay)
	dispatcher := alert.New(store, sender, cfg.AlertBatchSize)

	exemplars := exemplar.New(store, engine, cfg.RequestTimeout)

	router := server.NewRouter(server.Deps{
		Secret:    cfg.SharedSecret,
		Ingestor:  aggregator,
		Enricher:  processor,
		Outcomes:  evaluator,
		Alerts:    dispatcher,
		Exemplars: exemplars,
		Store:     store,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// seedProfilesIfEmpty installs the seed topic profiles on first boot so
// ingestion has weights to score against.
func seedProfilesIfEmpty(ctx context.Context, store *storage.Store, cfg *config.Config) error {
	profiles, err := store.TopicProfiles(ctx)
	if err != nil {
		return err
	}
	if len(profiles) > 0 {
		return nil
	}

	topics, err := config.LoadTopics(cfg.TopicsConfigPath)
	if err != nil {
		return err
	}
	n, err := store.SeedTopicProfiles(ctx, topics.Topics)
	if err != nil {
		return err
	}
	logger.Info("seeded topic profiles", "count", n)
	return nil
}
