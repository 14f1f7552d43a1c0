// Package config loads runtime configuration from the environment plus the
// YAML source/topic files under configs/.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// HTTP API
	ListenAddr   string
	SharedSecret string // required on every trigger endpoint

	// Storage
	PostgresDSN string
	RedisAddr   string // optional fast-path dedup cache; empty disables it

	// Telegram settings
	TelegramToken  string
	TelegramChatID string

	// Gemini settings
	GeminiAPIKey string
	DeepModel    string // expensive tier
	FastModel    string // cheap tier

	// Scoring thresholds
	TelegramThreshold int // combined score above this -> TELEGRAM
	QueueThreshold    int // combined score above this -> QUEUE
	DeepTierThreshold int // combined score above this -> deep model

	// Batch caps
	EnrichBatchSize   int
	AlertBatchSize    int
	DiscussionItemCap int
	EnrichConcurrency int

	// Paths
	SourcesConfigPath string
	TopicsConfigPath  string

	// App settings
	Debug          bool
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		// Default values
		ListenAddr:        ":8080",
		DeepModel:         "gemini-1.5-pro",
		FastModel:         "gemini-1.5-flash",
		TelegramThreshold: 140,
		QueueThreshold:    90,
		DeepTierThreshold: 70,
		EnrichBatchSize:   50,
		AlertBatchSize:    5,
		DiscussionItemCap: 15,
		EnrichConcurrency: 4,
		SourcesConfigPath: "configs/sources.yaml",
		TopicsConfigPath:  "configs/topics.yaml",
		RequestTimeout:    15 * time.Second,
		RetryAttempts:     3,
		RetryDelay:        2 * time.Second,
	}

	// Load from environment
	cfg.SharedSecret = os.Getenv("RADAR_SHARED_SECRET")
	cfg.PostgresDSN = os.Getenv("DATABASE_URL")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", cfg.ListenAddr)
	cfg.DeepModel = getEnvOrDefault("GEMINI_DEEP_MODEL", cfg.DeepModel)
	cfg.FastModel = getEnvOrDefault("GEMINI_FAST_MODEL", cfg.FastModel)
	cfg.SourcesConfigPath = getEnvOrDefault("SOURCES_CONFIG_PATH", cfg.SourcesConfigPath)
	cfg.TopicsConfigPath = getEnvOrDefault("TOPICS_CONFIG_PATH", cfg.TopicsConfigPath)

	cfg.TelegramThreshold = getEnvIntOrDefault("ALERT_TELEGRAM_THRESHOLD", cfg.TelegramThreshold)
	cfg.QueueThreshold = getEnvIntOrDefault("ALERT_QUEUE_THRESHOLD", cfg.QueueThreshold)
	cfg.DeepTierThreshold = getEnvIntOrDefault("AI_DEEP_TIER_THRESHOLD", cfg.DeepTierThreshold)
	cfg.EnrichBatchSize = getEnvIntOrDefault("ENRICH_BATCH_SIZE", cfg.EnrichBatchSize)
	cfg.AlertBatchSize = getEnvIntOrDefault("ALERT_BATCH_SIZE", cfg.AlertBatchSize)
	cfg.DiscussionItemCap = getEnvIntOrDefault("DISCUSSION_ITEM_CAP", cfg.DiscussionItemCap)
	cfg.EnrichConcurrency = getEnvIntOrDefault("ENRICH_CONCURRENCY", cfg.EnrichConcurrency)
	cfg.RetryAttempts = getEnvIntOrDefault("RETRY_ATTEMPTS", cfg.RetryAttempts)

	if v := os.Getenv("REQUEST_TIMEOUT_SECONDS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			cfg.RequestTimeout = time.Duration(val) * time.Second
		}
	}
	if debug := os.Getenv("DEBUG"); debug == "true" {
		cfg.Debug = true
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	if c.SharedSecret == "" {
		return fmt.Errorf("RADAR_SHARED_SECRET is required")
	}
	if c.PostgresDSN == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if c.TelegramChatID == "" {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required")
	}
	if c.QueueThreshold >= c.TelegramThreshold {
		return fmt.Errorf("ALERT_QUEUE_THRESHOLD must be below ALERT_TELEGRAM_THRESHOLD")
	}
	return nil
}

// SourcesConfig is the YAML structure for configs/sources.yaml.
type SourcesConfig struct {
	Feeds      []string `yaml:"feeds"`
	Subreddits []string `yaml:"subreddits"`
	TrendsFeed string   `yaml:"trends_feed"`
}

// LoadSources reads the source collaborator configuration from YAML.
func LoadSources(path string) (*SourcesConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg SourcesConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TopicSeed is one seed category in configs/topics.yaml.
type TopicSeed struct {
	Category string             `yaml:"category"`
	Keywords map[string]float64 `yaml:"keywords"`
}

// TopicsConfig is the YAML structure for configs/topics.yaml.
type TopicsConfig struct {
	Topics []TopicSeed `yaml:"topics"`
}

// LoadTopics reads the topic-profile seed list from YAML.
func LoadTopics(path string) (*TopicsConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg TopicsConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
