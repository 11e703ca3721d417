// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"tutorgate/internal/core"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Gemini    GeminiConfig
	Chatbase  ChatbaseConfig
	Storage   StorageConfig
	Cache     CacheConfig
	Usage     UsageConfig
	Features  map[core.FeatureType]FeatureConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	MasterKey       string
	MetricsEnabled  bool
	MetricsEndpoint string
}

// OpenAIConfig holds OpenAI-specific configuration
type OpenAIConfig struct {
	APIKey string
}

// AnthropicConfig holds Anthropic-specific configuration
type AnthropicConfig struct {
	APIKey string
}

// GeminiConfig holds Google Gemini-specific configuration
type GeminiConfig struct {
	APIKey string
}

// ChatbaseConfig holds Chatbase-specific configuration
type ChatbaseConfig struct {
	APIKey    string
	ChatbotID string
}

// StorageConfig selects the persistence backend shared by the cache,
// quota and usage layers.
type StorageConfig struct {
	// Backend is one of: memory, sqlite, postgresql, mongodb
	Backend       string
	SQLitePath    string
	PostgresURL   string
	MongoURI      string
	MongoDatabase string
}

// CacheConfig holds response cache configuration. The cache can run on the
// shared storage backend or on Redis independently of it.
type CacheConfig struct {
	Enabled  bool
	Backend  string // "storage", "redis" or "memory"
	RedisURL string
}

// UsageConfig holds usage tracking configuration
type UsageConfig struct {
	Enabled       bool
	BufferSize    int
	FlushSeconds  int
	RetentionDays int
}

// FeatureConfig holds one feature's model defaults and quota limits.
// Zero quota values mean unlimited; zero TTL falls back to the cache default.
type FeatureConfig struct {
	Provider          string   `yaml:"provider"`
	Model             string   `yaml:"model"`
	Temperature       *float64 `yaml:"temperature"`
	MaxTokens         int      `yaml:"max_tokens"`
	CacheEnabled      bool     `yaml:"cache_enabled"`
	CacheTTLSeconds   int      `yaml:"cache_ttl_seconds"`
	MaxRequestsPerDay int64    `yaml:"max_requests_per_day"`
	MaxTokensPerDay   int64    `yaml:"max_tokens_per_day"`
}

// DefaultFeatures returns the built-in feature table, used when no features
// file overrides it. Interactive features run on fast models with short
// cache windows; generator features cache aggressively.
func DefaultFeatures() map[core.FeatureType]FeatureConfig {
	temp := func(v float64) *float64 { return &v }
	return map[core.FeatureType]FeatureConfig{
		core.FeatureCourseTutor: {
			Provider: "openai", Model: "gpt-4o",
			Temperature: temp(0.7), MaxTokens: 1024,
			CacheEnabled: true, CacheTTLSeconds: 3600,
			MaxRequestsPerDay: 200, MaxTokensPerDay: 500_000,
		},
		core.FeatureChat: {
			Provider: "openai", Model: "gpt-4o-mini",
			Temperature: temp(0.8), MaxTokens: 512,
			MaxRequestsPerDay: 500, MaxTokensPerDay: 300_000,
		},
		core.FeatureSchedulingAssistant: {
			Provider: "anthropic", Model: "claude-3-5-haiku",
			Temperature: temp(0.2), MaxTokens: 1024,
			MaxRequestsPerDay: 100, MaxTokensPerDay: 200_000,
		},
		core.FeatureStudyCoach: {
			Provider: "anthropic", Model: "claude-3-5-sonnet",
			Temperature: temp(0.6), MaxTokens: 2048,
			CacheEnabled: true, CacheTTLSeconds: 1800,
			MaxRequestsPerDay: 100, MaxTokensPerDay: 400_000,
		},
		core.FeatureQuizGenerator: {
			Provider: "gemini", Model: "gemini-1.5-flash",
			Temperature: temp(0.9), MaxTokens: 2048,
			CacheEnabled: true, CacheTTLSeconds: 86400,
			MaxRequestsPerDay: 50, MaxTokensPerDay: 250_000,
		},
		core.FeatureFlashcardGenerator: {
			Provider: "gemini", Model: "gemini-1.5-flash",
			Temperature: temp(0.9), MaxTokens: 2048,
			CacheEnabled: true, CacheTTLSeconds: 86400,
			MaxRequestsPerDay: 50, MaxTokensPerDay: 250_000,
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	// Load .env file using Viper (optional, won't fail if not found)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if .env file doesn't exist

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("METRICS_ENABLED", true)
	viper.SetDefault("METRICS_ENDPOINT", "/metrics")
	viper.SetDefault("STORAGE_BACKEND", "sqlite")
	viper.SetDefault("SQLITE_PATH", "tutorgate.db")
	viper.SetDefault("MONGO_DATABASE", "tutorgate")
	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_BACKEND", "storage")
	viper.SetDefault("REDIS_URL", "redis://localhost:6379")
	viper.SetDefault("USAGE_ENABLED", true)
	viper.SetDefault("USAGE_BUFFER_SIZE", 1000)
	viper.SetDefault("USAGE_FLUSH_SECONDS", 5)
	viper.SetDefault("USAGE_RETENTION_DAYS", 90)

	// Enable automatic environment variable reading
	viper.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:            viper.GetString("PORT"),
			MasterKey:       viper.GetString("MASTER_KEY"),
			MetricsEnabled:  viper.GetBool("METRICS_ENABLED"),
			MetricsEndpoint: viper.GetString("METRICS_ENDPOINT"),
		},
		OpenAI: OpenAIConfig{
			APIKey: viper.GetString("OPENAI_API_KEY"),
		},
		Anthropic: AnthropicConfig{
			APIKey: viper.GetString("ANTHROPIC_API_KEY"),
		},
		Gemini: GeminiConfig{
			APIKey: viper.GetString("GEMINI_API_KEY"),
		},
		Chatbase: ChatbaseConfig{
			APIKey:    viper.GetString("CHATBASE_API_KEY"),
			ChatbotID: viper.GetString("CHATBASE_CHATBOT_ID"),
		},
		Storage: StorageConfig{
			Backend:       viper.GetString("STORAGE_BACKEND"),
			SQLitePath:    viper.GetString("SQLITE_PATH"),
			PostgresURL:   viper.GetString("DATABASE_URL"),
			MongoURI:      viper.GetString("MONGO_URI"),
			MongoDatabase: viper.GetString("MONGO_DATABASE"),
		},
		Cache: CacheConfig{
			Enabled:  viper.GetBool("CACHE_ENABLED"),
			Backend:  viper.GetString("CACHE_BACKEND"),
			RedisURL: viper.GetString("REDIS_URL"),
		},
		Usage: UsageConfig{
			Enabled:       viper.GetBool("USAGE_ENABLED"),
			BufferSize:    viper.GetInt("USAGE_BUFFER_SIZE"),
			FlushSeconds:  viper.GetInt("USAGE_FLUSH_SECONDS"),
			RetentionDays: viper.GetInt("USAGE_RETENTION_DAYS"),
		},
		Features: DefaultFeatures(),
	}

	// Optional per-deployment feature table overriding the built-in one
	if path := viper.GetString("FEATURES_FILE"); path != "" {
		features, err := loadFeaturesFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading features file %s: %w", path, err)
		}
		for feature, fc := range features {
			cfg.Features[feature] = fc
		}
	}

	return cfg, cfg.validate()
}

// loadFeaturesFile parses a YAML feature table keyed by feature name.
func loadFeaturesFile(path string) (map[core.FeatureType]FeatureConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed map[string]FeatureConfig
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}

	features := make(map[core.FeatureType]FeatureConfig, len(parsed))
	for name, fc := range parsed {
		feature := core.FeatureType(name)
		if !feature.Valid() {
			return nil, fmt.Errorf("unknown feature %q", name)
		}
		features[feature] = fc
	}
	return features, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "memory", "sqlite":
	case "postgresql":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgresql backend")
		}
	case "mongodb":
		if c.Storage.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongodb backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Cache.Backend {
	case "storage", "redis", "memory":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	for feature, fc := range c.Features {
		if fc.Model == "" {
			return fmt.Errorf("feature %s has no model configured", feature)
		}
		if fc.Provider == "" {
			return fmt.Errorf("feature %s has no provider configured", feature)
		}
	}
	return nil
}
