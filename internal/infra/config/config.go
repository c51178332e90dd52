package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env      string
	HTTPAddr string
	Currency string

	StoreMode string
	MongoURI  string
	MongoDB   string

	KafkaBrokers       []string
	KafkaUnitTopic     string
	KafkaEventTopic    string
	KafkaConsumerGroup string

	BaseRateURL     string
	BaseRateTimeout time.Duration
	BaseRateTable   string

	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3Bucket      string
	S3UseSSL      bool
	ArchiveEnable bool

	SnapshotMaxAge time.Duration
	PruneInterval  time.Duration
	DemandWindow   time.Duration
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:                getEnv("APP_ENV", "dev"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		Currency:           getEnv("PRICING_CURRENCY", "USD"),
		StoreMode:          strings.ToLower(getEnv("STORE_MODE", "memory")),
		MongoURI:           os.Getenv("MONGO_URI"),
		MongoDB:            getEnv("MONGO_DB", "storagepricing"),
		KafkaUnitTopic:     getEnv("KAFKA_UNIT_TOPIC", "storage.unit-changes"),
		KafkaEventTopic:    getEnv("KAFKA_EVENT_TOPIC", "storage.availability-events"),
		KafkaConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "pricingd"),
		BaseRateURL:        getEnv("BASE_RATE_URL", ""),
		BaseRateTable:      os.Getenv("BASE_RATE_TABLE"),
		S3Endpoint:         getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:        getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:        getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:           getEnv("S3_BUCKET", "pricing-archive"),
	}
	brokers := getEnv("KAFKA_BROKERS", "")
	if brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	baseRateTimeout, err := parseDurationEnv("BASE_RATE_TIMEOUT", 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.BaseRateTimeout = baseRateTimeout

	snapshotMaxAge, err := parseDurationEnv("SNAPSHOT_MAX_AGE", 90*24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	cfg.SnapshotMaxAge = snapshotMaxAge

	pruneInterval, err := parseDurationEnv("PRUNE_INTERVAL", time.Hour)
	if err != nil {
		return Config{}, err
	}
	cfg.PruneInterval = pruneInterval

	demandWindow, err := parseDurationEnv("DEMAND_WINDOW", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	cfg.DemandWindow = demandWindow

	useSSL, err := parseBoolEnv("S3_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg.S3UseSSL = useSSL

	archive, err := parseBoolEnv("ARCHIVE_ENABLE", false)
	if err != nil {
		return Config{}, err
	}
	cfg.ArchiveEnable = archive

	switch cfg.StoreMode {
	case "memory":
	case "mongo":
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required when STORE_MODE=mongo")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_MODE %q", cfg.StoreMode)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}
