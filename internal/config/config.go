package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Supabase  SupabaseConfig  `mapstructure:"supabase"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

// SupabaseConfig holds Supabase-specific configuration
type SupabaseConfig struct {
	URL        string `mapstructure:"url"`
	ServiceKey string `mapstructure:"service_key"`
}

// AnalyticsConfig tunes the adaptive threshold and cross-tab engines
type AnalyticsConfig struct {
	// LearningRate is the EMA alpha applied when a threshold absorbs a new
	// sample window
	LearningRate float64 `mapstructure:"learning_rate"`
	// MinSampleSize is the number of observations required before a
	// threshold is computed for a key
	MinSampleSize int `mapstructure:"min_sample_size"`
	// ConfidenceGate is the minimum confidence for above/below-threshold
	// queries to report a signal
	ConfidenceGate float64 `mapstructure:"confidence_gate"`
	// RecommendationWindow caps how many recent observations feed a
	// threshold retargeting recommendation
	RecommendationWindow int `mapstructure:"recommendation_window"`
	// SyncInterval is the minimum time between effective cross-tab syncs
	SyncInterval time.Duration `mapstructure:"sync_interval"`
	// CacheTTL is the default time-to-live for cross-tab cache entries
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("analytics.learning_rate", 0.1)
	v.SetDefault("analytics.min_sample_size", 10)
	v.SetDefault("analytics.confidence_gate", 0.7)
	v.SetDefault("analytics.recommendation_window", 30)
	v.SetDefault("analytics.sync_interval", 30*time.Second)
	v.SetDefault("analytics.cache_ttl", 5*time.Minute)

	v.SetEnvPrefix("HABITLOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Non-prefixed fallbacks for deployment platforms that inject these
	v.BindEnv("server.port", "PORT")
	v.BindEnv("supabase.url", "SUPABASE_URL")
	v.BindEnv("supabase.service_key", "SUPABASE_SERVICE_KEY")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// A missing config file is fine; env vars alone are enough
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks that all required configuration values are present and sane
func (c *Config) Validate() error {
	if c.Supabase.URL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.Supabase.ServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	if c.Analytics.LearningRate <= 0 || c.Analytics.LearningRate > 1 {
		return fmt.Errorf("analytics.learning_rate must be in (0, 1], got %v", c.Analytics.LearningRate)
	}
	if c.Analytics.MinSampleSize < 2 {
		return fmt.Errorf("analytics.min_sample_size must be at least 2, got %d", c.Analytics.MinSampleSize)
	}
	if c.Analytics.ConfidenceGate < 0 || c.Analytics.ConfidenceGate > 1 {
		return fmt.Errorf("analytics.confidence_gate must be in [0, 1], got %v", c.Analytics.ConfidenceGate)
	}
	return nil
}
