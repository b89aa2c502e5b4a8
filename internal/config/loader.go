package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "repairdesk.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := os.Getenv("REPAIRDESK_CONFIG"); p != "" {
		path = p
	}
	return LoadFrom(path)
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
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
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
	setString(&cfg.Server.Port, "REPAIRDESK_PORT")
	setString(&cfg.Server.CORSOrigin, "REPAIRDESK_CORS_ORIGIN")
	setList(&cfg.Server.WSOrigins, "REPAIRDESK_WS_ORIGINS")
	setDuration(&cfg.Server.RequestTimeout, "REPAIRDESK_REQUEST_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "REPAIRDESK_SHUTDOWN_TIMEOUT")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "REPAIRDESK_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "REPAIRDESK_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "REPAIRDESK_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "REPAIRDESK_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "REPAIRDESK_PG_HEALTH_CHECK")

	// NATS_URL may be set to "none" to run without NATS.
	setString(&cfg.NATS.URL, "NATS_URL")
	if cfg.NATS.URL == "none" {
		cfg.NATS.URL = ""
	}

	setString(&cfg.Logging.Level, "REPAIRDESK_LOG_LEVEL")
	setString(&cfg.Logging.Service, "REPAIRDESK_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "REPAIRDESK_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "REPAIRDESK_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "REPAIRDESK_BREAKER_TIMEOUT")

	setFloat64(&cfg.Rate.RequestsPerSecond, "REPAIRDESK_RATE_RPS")
	setInt(&cfg.Rate.Burst, "REPAIRDESK_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "REPAIRDESK_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "REPAIRDESK_RATE_MAX_IDLE_TIME")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "REPAIRDESK_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "REPAIRDESK_CACHE_L1_TTL")
	setString(&cfg.Cache.L2Bucket, "REPAIRDESK_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "REPAIRDESK_CACHE_L2_TTL")

	// Registry
	setString(&cfg.Registry.Backend, "REPAIRDESK_REGISTRY_BACKEND")
	setString(&cfg.Registry.AgentBucket, "REPAIRDESK_REGISTRY_AGENT_BUCKET")
	setString(&cfg.Registry.NotificationBucket, "REPAIRDESK_REGISTRY_NOTIFICATION_BUCKET")
	setInt(&cfg.Registry.DefaultMaxChats, "REPAIRDESK_MAX_CHATS")
	setInt(&cfg.Registry.NotificationCap, "REPAIRDESK_NOTIFICATION_CAP")

	// Chat
	setString(&cfg.Chat.Store, "REPAIRDESK_CHAT_STORE")
	setInt(&cfg.Chat.EstimatedWaitMinutes, "REPAIRDESK_ESTIMATED_WAIT_MINUTES")
	setDuration(&cfg.Chat.StatusCacheTTL, "REPAIRDESK_STATUS_CACHE_TTL")

	// Notify
	setList(&cfg.Notify.Providers, "REPAIRDESK_NOTIFY_PROVIDERS")
	setList(&cfg.Notify.Events, "REPAIRDESK_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Timeout, "REPAIRDESK_NOTIFY_TIMEOUT")
	setString(&cfg.Notify.BaseURL, "REPAIRDESK_NOTIFY_BASE_URL")
	setString(&cfg.Notify.SlackWebhookURL, "REPAIRDESK_SLACK_WEBHOOK_URL")
	setString(&cfg.Notify.SMTPHost, "REPAIRDESK_SMTP_HOST")
	setString(&cfg.Notify.SMTPPort, "REPAIRDESK_SMTP_PORT")
	setString(&cfg.Notify.SMTPFrom, "REPAIRDESK_SMTP_FROM")
	setString(&cfg.Notify.SMTPUser, "REPAIRDESK_SMTP_USER")
	setString(&cfg.Notify.SMTPPassword, "REPAIRDESK_SMTP_PASSWORD")
	setList(&cfg.Notify.Recipients, "REPAIRDESK_NOTIFY_RECIPIENTS")

	// OTEL
	setBool(&cfg.OTEL.Enabled, "REPAIRDESK_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "REPAIRDESK_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "REPAIRDESK_OTEL_SAMPLE_RATE")

	// Idempotency
	setString(&cfg.Idempotency.Bucket, "REPAIRDESK_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "REPAIRDESK_IDEMPOTENCY_TTL")
}

// validate checks that required fields are set and the backends chosen
// are consistent with the available infrastructure.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Chat.Store {
	case StorePostgres:
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required when chat.store is postgres")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("chat.store must be %q or %q, got %q", StorePostgres, StoreMemory, cfg.Chat.Store)
	}
	switch cfg.Registry.Backend {
	case BackendMemory:
	case BackendNATSKV:
		if cfg.NATS.URL == "" {
			return errors.New("nats.url is required when registry.backend is natskv")
		}
	default:
		return fmt.Errorf("registry.backend must be %q or %q, got %q", BackendMemory, BackendNATSKV, cfg.Registry.Backend)
	}
	if cfg.Registry.DefaultMaxChats < 1 {
		return errors.New("registry.default_max_chats must be >= 1")
	}
	if cfg.Registry.NotificationCap < 1 {
		return errors.New("registry.notification_cap must be >= 1")
	}
	if cfg.Chat.EstimatedWaitMinutes < 0 {
		return errors.New("chat.estimated_wait_minutes must be >= 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.RequestsPerSecond <= 0 {
		return errors.New("rate.requests_per_second must be > 0")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Cache.L1MaxSizeMB < 1 {
		return errors.New("cache.l1_max_size_mb must be >= 1")
	}
	if cfg.OTEL.SampleRate < 0 || cfg.OTEL.SampleRate > 1 {
		return errors.New("otel.sample_rate must be between 0 and 1")
	}
	if slices.Contains(cfg.Notify.Providers, "email") && (cfg.Notify.SMTPHost == "" || len(cfg.Notify.Recipients) == 0) {
		return errors.New("notify.smtp_host and notify.recipients are required for the email provider")
	}
	if slices.Contains(cfg.Notify.Providers, "slack") && cfg.Notify.SlackWebhookURL == "" {
		return errors.New("notify.slack_webhook_url is required for the slack provider")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setList splits a comma-separated value, dropping empty items.
func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
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
