package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Seat inventory backends.
const (
	SeatBackendPostgres = "postgres"
	SeatBackendRedis    = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database       DatabaseConfig
	Redis          RedisConfig
	JWT            JWTConfig
	CORS           CORSConfig
	Log            LogConfig
	Enrollment     EnrollmentConfig
	Catalog        CatalogConfig
	Reconciliation ReconciliationConfig
	Migrations     MigrationsConfig
	Diagnostics    DiagnosticsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedHeaders []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EnrollmentConfig tunes the admission pipeline and the reservation saga.
type EnrollmentConfig struct {
	MaxActivePerStudent int
	StepTimeout         time.Duration
	AdmissionTimeout    time.Duration
	SeatBackend         string
}

// CatalogConfig controls caching of course descriptors.
type CatalogConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// ReconciliationConfig configures the seat drift repair worker.
type ReconciliationConfig struct {
	Enabled     bool
	Workers     int
	Retries     int
	RetryDelay  time.Duration
	SettleDelay time.Duration
	JournalPath string
}

// MigrationsConfig toggles schema migration on boot.
type MigrationsConfig struct {
	AutoMigrate bool
}

// DiagnosticsConfig exposes internal error text in API responses when enabled.
type DiagnosticsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{
		AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS")),
		AllowedHeaders: splitAndTrim(v.GetString("ALLOWED_HEADERS")),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxActive := v.GetInt("ENROLLMENT_MAX_ACTIVE_PER_STUDENT")
	if maxActive <= 0 {
		maxActive = 8
	}
	backend := strings.ToLower(v.GetString("SEAT_BACKEND"))
	if backend != SeatBackendRedis {
		backend = SeatBackendPostgres
	}
	cfg.Enrollment = EnrollmentConfig{
		MaxActivePerStudent: maxActive,
		StepTimeout:         parseDuration(v.GetString("ENROLLMENT_STEP_TIMEOUT"), 5*time.Second),
		AdmissionTimeout:    parseDuration(v.GetString("ENROLLMENT_ADMISSION_TIMEOUT"), 5*time.Second),
		SeatBackend:         backend,
	}

	cfg.Catalog = CatalogConfig{
		CacheEnabled: v.GetBool("ENABLE_CATALOG_CACHE"),
		CacheTTL:     parseDuration(v.GetString("CATALOG_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Reconciliation = ReconciliationConfig{
		Enabled:     v.GetBool("ENABLE_SEAT_RECONCILIATION"),
		Workers:     v.GetInt("RECONCILIATION_WORKERS"),
		Retries:     v.GetInt("RECONCILIATION_RETRIES"),
		RetryDelay:  parseDuration(v.GetString("RECONCILIATION_RETRY_DELAY"), 5*time.Second),
		SettleDelay: parseDuration(v.GetString("RECONCILIATION_SETTLE_DELAY"), 2*cfg.Enrollment.StepTimeout),
		JournalPath: v.GetString("RECONCILIATION_JOURNAL_PATH"),
	}

	cfg.Migrations = MigrationsConfig{
		AutoMigrate: v.GetBool("AUTO_MIGRATE"),
	}

	cfg.Diagnostics = DiagnosticsConfig{
		Enabled: v.GetBool("DIAGNOSTICS_ENABLED"),
	}
	if !v.IsSet("DIAGNOSTICS_ENABLED") {
		cfg.Diagnostics.Enabled = cfg.Env != EnvProduction
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "course_enrollment")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("ALLOWED_HEADERS", "Authorization,Content-Type,X-Requested-With,X-Request-ID")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENROLLMENT_MAX_ACTIVE_PER_STUDENT", 8)
	v.SetDefault("ENROLLMENT_STEP_TIMEOUT", "5s")
	v.SetDefault("ENROLLMENT_ADMISSION_TIMEOUT", "5s")
	v.SetDefault("SEAT_BACKEND", SeatBackendPostgres)

	v.SetDefault("ENABLE_CATALOG_CACHE", false)
	v.SetDefault("CATALOG_CACHE_TTL", "5m")

	v.SetDefault("ENABLE_SEAT_RECONCILIATION", true)
	v.SetDefault("RECONCILIATION_WORKERS", 1)
	v.SetDefault("RECONCILIATION_RETRIES", 3)
	v.SetDefault("RECONCILIATION_RETRY_DELAY", "5s")
	v.SetDefault("RECONCILIATION_SETTLE_DELAY", "")
	v.SetDefault("RECONCILIATION_JOURNAL_PATH", "./data/reconciliation.db")

	v.SetDefault("AUTO_MIGRATE", false)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
