package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"throttler/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "THROTTLER_"

// Load loads configuration from defaults, an optional .env file, the YAML file
// at configPath and THROTTLER_* environment variables, in that order.
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Populate the environment from a .env file; real variables win
	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	if err := loadFromEnvironment(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadDotEnv reads THROTTLER_ENV_FILE (default ".env"). A missing default
// file is ignored; a missing explicitly named file is an error.
func loadDotEnv() error {
	path, explicit := os.LookupEnv(EnvPrefix + "ENV_FILE")
	if !explicit || path == "" {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	slog.Debug("Loaded environment file", "path", path)
	return nil
}

// legacyConfig mirrors keys used by other rate limiter deployments so that
// operators get a pointer instead of a silently ignored setting.
type legacyConfig struct {
	RateLimit struct {
		DefaultLimits interface{} `yaml:"default_limits"`
		StorageURI    string      `yaml:"storage_uri"`
	} `yaml:"rate_limit"`
}

// warnLegacyKeys logs a warning for each unsupported key found in the YAML data.
func warnLegacyKeys(data []byte) {
	var legacy legacyConfig
	if err := yaml.Unmarshal(data, &legacy); err != nil {
		return
	}
	if legacy.RateLimit.DefaultLimits != nil {
		slog.Warn("Config key is not supported; use rate_limit.additional_limits instead.", "config_key", "rate_limit.default_limits")
	}
	if legacy.RateLimit.StorageURI != "" {
		slog.Warn("Config key is not supported; counters are always kept in process memory.", "config_key", "rate_limit.storage_uri")
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnLegacyKeys(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// envLoader collects the first parse error so that every override can be
// written as a single line.
type envLoader struct {
	err error
}

func (l *envLoader) lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
}

func (l *envLoader) fail(name, value string, err error) {
	if l.err == nil {
		l.err = fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, value, err)
	}
}

func (l *envLoader) string(name string, dst *string) {
	if v, ok := l.lookup(name); ok {
		*dst = v
	}
}

func (l *envLoader) int(name string, dst *int) {
	if v, ok := l.lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			l.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (l *envLoader) float(name string, dst *float64) {
	if v, ok := l.lookup(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			l.fail(name, v, err)
			return
		}
		*dst = f
	}
}

func (l *envLoader) bool(name string, dst *bool) {
	if v, ok := l.lookup(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			l.fail(name, v, err)
			return
		}
		*dst = b
	}
}

func (l *envLoader) duration(name string, dst *time.Duration) {
	if v, ok := l.lookup(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			l.fail(name, v, err)
			return
		}
		*dst = d
	}
}

// list splits a comma separated value. "none" clears the list.
func (l *envLoader) list(name string, dst *[]string) {
	v, ok := l.lookup(name)
	if !ok {
		return
	}
	if strings.EqualFold(v, "none") {
		*dst = nil
		return
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*dst = items
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) error {
	var env envLoader

	// Server configuration
	env.int("PORT", &config.Server.Port)
	env.string("HOST", &config.Server.Host)
	env.duration("READ_TIMEOUT", &config.Server.ReadTimeout)
	env.duration("WRITE_TIMEOUT", &config.Server.WriteTimeout)
	env.duration("IDLE_TIMEOUT", &config.Server.IdleTimeout)
	env.bool("TLS_ENABLED", &config.Server.TLSEnabled)
	env.string("TLS_CERT_FILE", &config.Server.TLSCertFile)
	env.string("TLS_KEY_FILE", &config.Server.TLSKeyFile)

	// Rate limit configuration
	env.int("RATE_LIMIT", &config.RateLimit.Limit)
	env.duration("RATE_WINDOW", &config.RateLimit.Window)
	env.list("ADDITIONAL_LIMITS", &config.RateLimit.AdditionalLimits)
	env.int("SHARDS", &config.RateLimit.Shards)
	env.duration("CLEANUP_INTERVAL", &config.RateLimit.CleanupInterval)
	env.duration("RETENTION", &config.RateLimit.Retention)
	env.bool("TRUST_PROXY_HEADERS", &config.RateLimit.TrustProxyHeaders)

	// Security configuration
	env.string("ADMIN_TOKEN", &config.Security.AdminToken)
	env.float("ADMIN_REQUESTS_PER_SECOND", &config.Security.AdminRequestsPerSecond)
	env.int("ADMIN_BURST", &config.Security.AdminBurst)

	// Storage configuration
	env.string("STORAGE_TYPE", &config.Storage.Type)
	env.string("DATABASE_DSN", &config.Storage.Database.DSN)
	env.int("DATABASE_MAX_OPEN_CONNS", &config.Storage.Database.MaxOpenConns)
	env.duration("DATABASE_CONN_MAX_LIFETIME", &config.Storage.Database.ConnMaxLifetime)

	// Stats configuration
	env.bool("STATS_ENABLED", &config.Stats.Enabled)
	env.string("STATS_TYPE", &config.Stats.Type)
	env.bool("STATS_TRACK_KEYS", &config.Stats.TrackKeys)
	env.duration("STATS_TTL", &config.Stats.TTL)
	env.string("REDIS_ADDR", &config.Stats.Redis.Addr)
	env.string("REDIS_PASSWORD", &config.Stats.Redis.Password)
	env.int("REDIS_DB", &config.Stats.Redis.DB)
	env.int("REDIS_POOL_SIZE", &config.Stats.Redis.PoolSize)
	env.string("REDIS_PREFIX", &config.Stats.Redis.Prefix)

	// Logging configuration
	env.string("LOG_LEVEL", &config.Logging.Level)
	env.string("LOG_FORMAT", &config.Logging.Format)
	env.string("LOG_OUTPUT", &config.Logging.Output)
	env.string("LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics configuration
	env.bool("METRICS_ENABLED", &config.Metrics.Enabled)
	env.string("METRICS_PATH", &config.Metrics.Path)
	env.int("METRICS_PORT", &config.Metrics.Port)

	// Observability configuration
	env.string("SERVICE_NAME", &config.Observability.ServiceName)
	env.string("ENVIRONMENT", &config.Observability.Environment)
	env.bool("TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	env.string("TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	env.string("OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	env.float("TRACING_SAMPLE_RATE", &config.Observability.Tracing.SampleRate)

	return env.err
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Get default config with some example values
	config := models.NewDefaultConfig()

	// Example proxy deployment
	config.RateLimit.TrustProxyHeaders = true

	// Example stacked windows
	config.RateLimit.AdditionalLimits = []string{"200 per day", "50 per hour"}

	// Example admin protection
	config.Security.AdminToken = "change-me"

	// Example TLS configuration
	config.Server.TLSEnabled = false
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	// Example database audit log
	config.Storage.Type = models.StorageTypeSQLite
	config.Storage.Database.DSN = "./data/throttler.db"

	// Marshal to YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// Write to file
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
