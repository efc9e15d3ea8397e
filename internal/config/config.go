package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// It is the single source of truth for runtime parameters.
type Config struct {
	Port             string
	Env              string
	JWTSecret        string
	CORSAllowedHosts []string

	DB        DatabaseConfig
	Redis     RedisConfig
	VCGamers  VCGamersConfig
	Digiflazz DigiflazzConfig
	Catalog   CatalogConfig
	Worker    WorkerConfig
	S3        S3Config
	Kafka     KafkaConfig
}

// DatabaseConfig contains PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MigrationsPath string

	// Embedded starts a local PostgreSQL process for development.
	Embedded         bool
	EmbeddedDataPath string
}

// RedisConfig contains Redis connection parameters.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// VCGamersConfig contains credentials and limits for the VCGamers catalog API.
type VCGamersConfig struct {
	BaseURL   string
	APIKey    string
	SecretKey string
	RateLimit float64 // requests per second
	Timeout   time.Duration
}

// DigiflazzConfig contains credentials for the Digiflazz price-list API.
type DigiflazzConfig struct {
	Username      string
	KeyProduction string
}

// CatalogConfig holds catalog pricing and sync policy. It is passed to the
// sync and merge engines when they are constructed.
type CatalogConfig struct {
	DefaultMarkupPercent float64
	PlaceholderIcon      string
	ProgressEvery        int
	DefaultProvider      string
	LockTTL              time.Duration
	ImageFolder          string
}

// WorkerConfig contains interval configuration for background workers.
type WorkerConfig struct {
	CatalogSyncInterval time.Duration
}

// S3Config contains object storage configuration for internalised images.
type S3Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	CDNBaseURL      string
}

// Enabled reports whether enough S3 settings are present to upload images.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.CDNBaseURL != ""
}

// KafkaConfig contains audit event publishing configuration.
type KafkaConfig struct {
	Brokers      []string
	CatalogTopic string
}

// Load reads configuration from environment variables. If a .env file exists
// in the working directory, it will be loaded first. It returns a populated
// Config or an error with a human-friendly message.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Server
	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("ENV", "development")
	cfg.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.CORSAllowedHosts = splitList(getEnv("CORS_ALLOWED_HOSTS", ""))

	// Database
	cfg.DB = DatabaseConfig{
		Host:           getEnv("DB_HOST", ""),
		Port:           getEnv("DB_PORT", "5432"),
		User:           getEnv("DB_USER", ""),
		Password:       getEnv("DB_PASSWORD", ""),
		Name:           getEnv("DB_NAME", ""),
		SSLMode:        getEnv("DB_SSLMODE", "disable"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "file://migrations"),

		Embedded:         getEnv("DB_EMBEDDED", "false") == "true",
		EmbeddedDataPath: getEnv("DB_EMBEDDED_DATA", "./db_data"),
	}
	if cfg.DB.Embedded {
		cfg.DB.Host = "localhost"
		cfg.DB.Port = getEnv("DB_PORT", "5433")
		cfg.DB.User = getEnv("DB_USER", "postgres")
		cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
		cfg.DB.Name = getEnv("DB_NAME", "catalog")
		cfg.DB.SSLMode = "disable"
	}

	// Redis
	cfg.Redis = RedisConfig{
		Host:     getEnv("REDIS_HOST", "redis"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	var err error

	// VCGamers
	cfg.VCGamers = VCGamersConfig{
		BaseURL:   getEnv("VCGAMERS_BASE_URL", "https://api.vcgamers.com/v1"),
		APIKey:    getEnv("VCGAMERS_API_KEY", ""),
		SecretKey: getEnv("VCGAMERS_SECRET_KEY", ""),
		RateLimit: getEnvFloat("VCGAMERS_RATE_LIMIT", 5),
	}
	if cfg.VCGamers.Timeout, err = parseDurationEnv("VCGAMERS_TIMEOUT", "30s"); err != nil {
		return nil, fmt.Errorf("invalid VCGAMERS_TIMEOUT: %w", err)
	}

	// Digiflazz
	cfg.Digiflazz = DigiflazzConfig{
		Username:      getEnv("DIGIFLAZZ_USERNAME", ""),
		KeyProduction: getEnv("DIGIFLAZZ_KEY_PRODUCTION", ""),
	}

	// Catalog policy
	cfg.Catalog = CatalogConfig{
		DefaultMarkupPercent: getEnvFloat("CATALOG_DEFAULT_MARKUP", 10),
		PlaceholderIcon:      getEnv("CATALOG_PLACEHOLDER_ICON", "/static/img/placeholder-game.png"),
		ProgressEvery:        getEnvInt("CATALOG_PROGRESS_EVERY", 25),
		DefaultProvider:      getEnv("CATALOG_DEFAULT_PROVIDER", "vcgamers"),
		ImageFolder:          getEnv("CATALOG_IMAGE_FOLDER", "catalog"),
	}
	if cfg.Catalog.LockTTL, err = parseDurationEnv("CATALOG_LOCK_TTL", "30m"); err != nil {
		return nil, fmt.Errorf("invalid CATALOG_LOCK_TTL: %w", err)
	}
	if cfg.Catalog.ProgressEvery <= 0 {
		cfg.Catalog.ProgressEvery = 25
	}

	// S3 (image internalisation)
	cfg.S3 = S3Config{
		Region:          getEnv("S3_REGION", "ap-southeast-3"),
		Bucket:          getEnv("S3_BUCKET", ""),
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		CDNBaseURL:      strings.TrimSuffix(getEnv("CDN_BASE_URL", ""), "/"),
	}

	// Kafka (audit events)
	cfg.Kafka = KafkaConfig{
		Brokers:      splitList(getEnv("KAFKA_BROKERS", "")),
		CatalogTopic: getEnv("KAFKA_CATALOG_TOPIC", "catalog-events"),
	}

	// Workers (durations)
	if cfg.Worker.CatalogSyncInterval, err = parseDurationEnv("CATALOG_SYNC_INTERVAL", "6h"); err != nil {
		return nil, fmt.Errorf("invalid CATALOG_SYNC_INTERVAL: %w", err)
	}

	if cfg.DB.Host == "" || cfg.DB.User == "" || cfg.DB.Name == "" {
		return nil, errors.New("database configuration incomplete: ensure DB_HOST, DB_USER, and DB_NAME are set")
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET must be set for authentication")
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default if empty.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the value of an environment variable as an integer or a default if empty/invalid.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// getEnvFloat returns the value of an environment variable as a float or a default if empty/invalid.
func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// parseDurationEnv reads an environment variable and parses it as time.Duration.
// If the variable is empty, it falls back to the provided default value.
func parseDurationEnv(key, def string) (time.Duration, error) {
	raw := getEnv(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0")
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
