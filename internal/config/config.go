package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	APIAddr          string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Storage. An empty DatabaseURL runs on the YAML fixture instead.
	DatabaseURL string
	FixturePath string

	// Model artifacts.
	ModelPath     string
	ScalersPath   string
	TemplatesPath string
	ModelVersion  string

	// Forecast noise. A nil NoiseSeed draws a fresh seed per forecast.
	NoiseSigma float64
	NoiseSeed  *uint64

	FreshnessWindow time.Duration
	CacheSize       int
	EvaluationCron  string
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present; variables already
// set in the environment take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}
	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	noiseSigma, err := parseFloat("NOISE_SIGMA", "0.05")
	if err != nil {
		return nil, err
	}
	if noiseSigma < 0 {
		return nil, errors.New("invalid NOISE_SIGMA: must be non-negative")
	}
	noiseSeed, err := parseSeed()
	if err != nil {
		return nil, err
	}
	freshness, err := parseDuration("FRESHNESS_WINDOW", "6h")
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("CACHE_SIZE", "500")
	if err != nil {
		return nil, err
	}
	kafkaEnabled, err := strconv.ParseBool(sharedcfg.EnvOrDefault("KAFKA_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid KAFKA_ENABLED: %w", err)
	}

	cfg := &Config{
		KafkaEnabled:       kafkaEnabled,
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "reservoir-evaluation-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "reservoir-risk-assessments"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "reservoir-risk-service"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		APIAddr:            sharedcfg.EnvOrDefault("API_ADDR", ":8000"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		DatabaseURL: os.Getenv("DATABASE_URL"),
		FixturePath: sharedcfg.EnvOrDefault("FIXTURE_PATH", "data/fixture.yaml"),

		ModelPath:     sharedcfg.EnvOrDefault("MODEL_PATH", "data/model.json"),
		ScalersPath:   sharedcfg.EnvOrDefault("SCALERS_PATH", "data/scalers.yaml"),
		TemplatesPath: os.Getenv("TEMPLATES_PATH"),
		ModelVersion:  os.Getenv("MODEL_VERSION"),

		NoiseSigma: noiseSigma,
		NoiseSeed:  noiseSeed,

		FreshnessWindow: freshness,
		CacheSize:       cacheSize,
		EvaluationCron:  os.Getenv("EVALUATION_CRON"),
	}
	if _, set := os.LookupEnv("EVALUATION_CRON"); !set {
		cfg.EvaluationCron = "0 0 */6 * * *"
	}

	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.ModelPath == "" || cfg.ScalersPath == "" {
		return nil, errors.New("MODEL_PATH and SCALERS_PATH are required")
	}

	return cfg, nil
}

func parseFloat(key, def string) (float64, error) {
	v, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseInt(key, def string) (int, error) {
	v, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative integer", key)
	}
	return v, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseSeed() (*uint64, error) {
	s := os.Getenv("NOISE_SEED")
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid NOISE_SEED: %w", err)
	}
	return &v, nil
}
