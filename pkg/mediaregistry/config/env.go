package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvConfig lists the environment variables read by WithEnv
type EnvConfig struct {
	Port        string `env:"PORT" env-default:"8080" env-description:"HTTP listen port"`
	Environment string `env:"ENVIRONMENT" env-default:"development" env-description:"development, production or testing"`

	DatabaseURL string `env:"DATABASE_URL" env-default:"memory" env-description:"'memory' or a postgres connection URL"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" env-default:"true" env-description:"apply schema migrations on startup"`

	Admin string `env:"REGISTRY_ADMIN" env-description:"admin address used to initialize an empty ledger"`

	StorageURL     string `env:"STORAGE_URL" env-default:"memory://" env-description:"none, memory://, file:///path or s3://bucket/prefix?region=&endpoint=&path_style=true"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" env-default:"67108864" env-description:"largest accepted upload in bytes"`
	AWSAccessKeyID string `env:"AWS_ACCESS_KEY_ID" env-description:"S3 access key, falls back to the default credential chain"`
	AWSSecretKey   string `env:"AWS_SECRET_ACCESS_KEY" env-description:"S3 secret key"`
	AWSRegion      string `env:"AWS_REGION" env-description:"S3 region when not set in STORAGE_URL"`
	S3EnableSSE    bool   `env:"S3_ENABLE_SSE" env-default:"false" env-description:"request server-side encryption"`
	S3SSEAlgorithm string `env:"S3_SSE_ALGORITHM" env-default:"AES256" env-description:"AES256 or aws:kms"`
	S3SSEKMSKeyID  string `env:"S3_SSE_KMS_KEY_ID" env-description:"KMS key for aws:kms encryption"`

	AuthMode     string `env:"AUTH_MODE" env-default:"header" env-description:"header or jwt"`
	JWTSecret    string `env:"JWT_SECRET" env-description:"HS256 secret for jwt auth mode"`
	CallerHeader string `env:"CALLER_HEADER" env-default:"X-Caller-Address" env-description:"caller header for header auth mode"`

	CacheSize int           `env:"CACHE_SIZE" env-default:"0" env-description:"read cache entries, 0 disables the cache"`
	CacheTTL  time.Duration `env:"CACHE_TTL" env-default:"5m" env-description:"read cache entry lifetime"`

	EventsURL          string        `env:"EVENTS_URL" env-description:"CloudEvents receiver for ledger notifications"`
	EventsSource       string        `env:"EVENTS_SOURCE" env-default:"media-registry" env-description:"CloudEvents source attribute"`
	EventsTimeout      time.Duration `env:"EVENTS_TIMEOUT" env-default:"5s" env-description:"per-notification delivery timeout"`
	EnableEventLogging bool          `env:"EVENT_LOGGING" env-default:"true" env-description:"log every ledger notification"`

	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" env-default:"60s" env-description:"HTTP request timeout"`
}

// WithEnv reads configuration from the process environment
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var env EnvConfig
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return env.apply(c)
	}
}

// EnvHelp describes every environment variable WithEnv understands
func EnvHelp() string {
	help, err := cleanenv.GetDescription(&EnvConfig{}, nil)
	if err != nil {
		return err.Error()
	}
	return help
}

func (e EnvConfig) apply(c *ServerConfig) error {
	c.Port = e.Port
	c.Environment = e.Environment
	c.AutoMigrate = e.AutoMigrate
	c.Admin = e.Admin
	c.MaxUploadBytes = e.MaxUploadBytes
	c.AuthMode = strings.ToLower(e.AuthMode)
	c.JWTSecret = e.JWTSecret
	c.CallerHeader = e.CallerHeader
	c.CacheSize = e.CacheSize
	c.CacheTTL = e.CacheTTL
	c.EventsURL = e.EventsURL
	c.EventsSource = e.EventsSource
	c.EventsTimeout = e.EventsTimeout
	c.EnableEventLogging = e.EnableEventLogging
	c.RequestTimeout = e.RequestTimeout

	applyDatabaseURL(c, e.DatabaseURL)

	storage, err := parseStorageURL(e.StorageURL)
	if err != nil {
		return err
	}
	if storage.Type == "s3" {
		if e.AWSAccessKeyID != "" {
			storage.Config["access_key_id"] = e.AWSAccessKeyID
			storage.Config["secret_access_key"] = e.AWSSecretKey
		}
		if _, ok := storage.Config["region"]; !ok && e.AWSRegion != "" {
			storage.Config["region"] = e.AWSRegion
		}
		storage.Config["enable_sse"] = e.S3EnableSSE
		storage.Config["sse_algorithm"] = e.S3SSEAlgorithm
		storage.Config["sse_kms_key_id"] = e.S3SSEKMSKeyID
	}
	c.Storage = storage
	return nil
}

func applyDatabaseURL(c *ServerConfig, value string) {
	value = strings.TrimSpace(value)
	switch {
	case value == "", strings.EqualFold(value, "memory"):
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
	default:
		c.DatabaseType = "postgres"
		c.DatabaseURL = value
	}
}

func parseStorageURL(raw string) (StorageConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "none") {
		return StorageConfig{Type: "none", Config: map[string]interface{}{}}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_URL: %w", err)
	}

	switch u.Scheme {
	case "memory":
		return StorageConfig{Type: "memory", Config: map[string]interface{}{}}, nil

	case "file", "fs":
		dir := u.Path
		if u.Host != "" {
			// file://relative/dir
			dir = u.Host + u.Path
		}
		if dir == "" {
			return StorageConfig{}, fmt.Errorf("STORAGE_URL %q has no directory", raw)
		}
		return StorageConfig{Type: "fs", Config: map[string]interface{}{"base_dir": dir}}, nil

	case "s3":
		if u.Host == "" {
			return StorageConfig{}, fmt.Errorf("STORAGE_URL %q has no bucket", raw)
		}
		cfg := map[string]interface{}{"bucket": u.Host}
		if prefix := strings.Trim(u.Path, "/"); prefix != "" {
			cfg["prefix"] = prefix
		}
		q := u.Query()
		if v := q.Get("region"); v != "" {
			cfg["region"] = v
		}
		if v := q.Get("endpoint"); v != "" {
			cfg["endpoint"] = v
		}
		if v := q.Get("path_style"); v != "" {
			cfg["use_path_style"] = v
		}
		if v := q.Get("create_bucket"); v != "" {
			cfg["create_bucket_if_not_exist"] = v
		}
		return StorageConfig{Type: "s3", Config: cfg}, nil

	default:
		return StorageConfig{}, fmt.Errorf("unsupported STORAGE_URL scheme: %q", u.Scheme)
	}
}
