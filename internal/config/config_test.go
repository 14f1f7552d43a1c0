package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RADAR_SHARED_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "postgres://localhost/radar")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "gemini-1.5-pro", cfg.DeepModel)
	assert.Equal(t, "gemini-1.5-flash", cfg.FastModel)
	assert.Equal(t, 140, cfg.TelegramThreshold)
	assert.Equal(t, 90, cfg.QueueThreshold)
	assert.Equal(t, 70, cfg.DeepTierThreshold)
	assert.Equal(t, 50, cfg.EnrichBatchSize)
	assert.Equal(t, 5, cfg.AlertBatchSize)
	assert.Equal(t, 15, cfg.DiscussionItemCap)
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("ALERT_TELEGRAM_THRESHOLD", "160")
	t.Setenv("ENRICH_BATCH_SIZE", "25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 160, cfg.TelegramThreshold)
	assert.Equal(t, 25, cfg.EnrichBatchSize)
}

func TestLoadMissingRequired(t *testing.T) {
	keys := []string{
		"RADAR_SHARED_SECRET", "DATABASE_URL", "GEMINI_API_KEY",
		"TELEGRAM_TOKEN", "TELEGRAM_CHAT_ID",
	}
	for _, missing := range keys {
		t.Run(missing, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(missing, "")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), missing)
		})
	}
}

func TestValidateThresholdOrdering(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ALERT_QUEUE_THRESHOLD", "150")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below")
}

func TestLoadSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
feeds:
  - https://example.com/rss
subreddits:
  - news
trends_feed: https://trends.example.com/rss
`), 0o644))

	cfg, err := LoadSources(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/rss"}, cfg.Feeds)
	assert.Equal(t, []string{"news"}, cfg.Subreddits)
	assert.Equal(t, "https://trends.example.com/rss", cfg.TrendsFeed)
}

func TestLoadTopics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
topics:
  - category: Immigration
    keywords:
      border: 5
      asylum: 3.5
`), 0o644))

	cfg, err := LoadTopics(path)
	require.NoError(t, err)
	require.Len(t, cfg.Topics, 1)
	assert.Equal(t, "Immigration", cfg.Topics[0].Category)
	assert.Equal(t, 5.0, cfg.Topics[0].Keywords["border"])
}

func TestLoadTopicsMissingFile(t *testing.T) {
	_, err := LoadTopics(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
