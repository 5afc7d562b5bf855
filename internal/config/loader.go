package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "cadence.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CADENCE_PORT")
	setString(&cfg.Server.CORSOrigin, "CADENCE_CORS_ORIGIN")
	setFloat64(&cfg.Server.RateLimit, "CADENCE_RATE_LIMIT")
	setInt(&cfg.Server.RateBurst, "CADENCE_RATE_BURST")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CADENCE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CADENCE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CADENCE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CADENCE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "CADENCE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setInt64(&cfg.Cache.MaxSizeMB, "CADENCE_CACHE_MAX_SIZE_MB")
	setDuration(&cfg.Cache.TenantTTL, "CADENCE_CACHE_TENANT_TTL")
	setString(&cfg.Logging.Level, "CADENCE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CADENCE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CADENCE_LOG_ASYNC")
	setInt(&cfg.Audit.RetentionDays, "CADENCE_AUDIT_RETENTION_DAYS")
	setDuration(&cfg.Audit.PruneInterval, "CADENCE_AUDIT_PRUNE_INTERVAL")
	setInt(&cfg.Quotas.Basic, "CADENCE_QUOTA_BASIC")
	setInt(&cfg.Quotas.Professional, "CADENCE_QUOTA_PROFESSIONAL")
	setInt(&cfg.Quotas.Enterprise, "CADENCE_QUOTA_ENTERPRISE")
	setInt(&cfg.Auth.BcryptCost, "CADENCE_BCRYPT_COST")
	setBool(&cfg.Otel.Enabled, "CADENCE_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "CADENCE_OTEL_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Audit.RetentionDays < 1 {
		return errors.New("audit.retention_days must be >= 1")
	}
	if cfg.Quotas.Basic < 1 || cfg.Quotas.Professional < 1 || cfg.Quotas.Enterprise < 1 {
		return errors.New("quotas must be >= 1 for every plan")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
