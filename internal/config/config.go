package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	SourceURL string

	// Lake roots: a local path, file://, s3:// or gs:// URL each.
	BronzeRoot string
	SilverRoot string
	GoldRoot   string

	S3Region         string
	S3Endpoint       string
	S3ForcePathStyle bool

	// Publishing is off when KafkaBrokers is empty.
	KafkaBrokers        []string
	KafkaAggregateTopic string

	// RunInterval of zero means a single run, then exit.
	RunInterval     time.Duration
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is read first if present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	runInterval, err := time.ParseDuration(sharedcfg.EnvOrDefault("RUN_INTERVAL", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid RUN_INTERVAL: %w", err)
	}
	if runInterval < 0 {
		return nil, errors.New("RUN_INTERVAL must not be negative")
	}

	forcePathStyle, err := parseBool("S3_FORCE_PATH_STYLE", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		SourceURL:           sharedcfg.EnvOrDefault("BREWERY_API_URL", "https://api.openbrewerydb.org/breweries"),
		BronzeRoot:          sharedcfg.EnvOrDefault("LAKE_BRONZE_ROOT", "gs://data-pipeline-brewery/data_lake_1/"),
		SilverRoot:          sharedcfg.EnvOrDefault("LAKE_SILVER_ROOT", "gs://data-pipeline-brewery/data_lake_2/"),
		GoldRoot:            sharedcfg.EnvOrDefault("LAKE_GOLD_ROOT", "gs://data-pipeline-brewery/data_lake_3/"),
		S3Region:            sharedcfg.EnvOrDefault("S3_REGION", "us-east-1"),
		S3Endpoint:          os.Getenv("S3_ENDPOINT"),
		S3ForcePathStyle:    forcePathStyle,
		KafkaBrokers:        sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaAggregateTopic: sharedcfg.EnvOrDefault("KAFKA_AGGREGATE_TOPIC", "brewery-location-aggregates"),
		RunInterval:         runInterval,
		HTTPAddr:            sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:            sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:     shutdownTimeout,
	}

	u, err := url.Parse(cfg.SourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid BREWERY_API_URL %q", cfg.SourceURL)
	}
	if cfg.PublishEnabled() && cfg.KafkaAggregateTopic == "" {
		return nil, errors.New("KAFKA_AGGREGATE_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// PublishEnabled reports whether gold rows are sent to Kafka.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Scheduled reports whether the service runs on an interval instead of once.
func (c *Config) Scheduled() bool {
	return c.RunInterval > 0
}

func parseBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
