// Command seed installs or refreshes the topic profile seeds from
// configs/topics.yaml without starting the API server.
package main

import (
	"context"
	"flag"
	"os"

	"storyradar/internal/config"
	"storyradar/internal/logger"
	"storyradar/internal/storage"
)

func main() {
	logger.Init()

	topicsPath := flag.String("topics", "configs/topics.yaml", "path to the topic seed file")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	store, err := storage.Open(dsn)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	topics, err := config.LoadTopics(*topicsPath)
	if err != nil {
		logger.Error("topic seed load failed", "path", *topicsPath, "error", err)
		os.Exit(1)
	}

	n, err := store.SeedTopicProfiles(context.Background(), topics.Topics)
	if err != nil {
		logger.Error("seeding failed", "error", err)
		os.Exit(1)
	}
	logger.Info("seeding complete", "inserted", n, "categories", len(topics.Topics))
}
