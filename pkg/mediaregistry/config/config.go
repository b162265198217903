package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/media-registry/pkg/mediaregistry"
	"github.com/tendant/media-registry/pkg/mediaregistry/api"
	"github.com/tendant/media-registry/pkg/mediaregistry/contentstore"
	fsstorage "github.com/tendant/media-registry/pkg/mediaregistry/contentstore/fs"
	memorystorage "github.com/tendant/media-registry/pkg/mediaregistry/contentstore/memory"
	s3storage "github.com/tendant/media-registry/pkg/mediaregistry/contentstore/s3"
	cesink "github.com/tendant/media-registry/pkg/mediaregistry/eventsink/cloudevents"
	"github.com/tendant/media-registry/pkg/mediaregistry/metrics"
	"github.com/tendant/media-registry/pkg/mediaregistry/repo/cached"
	"github.com/tendant/media-registry/pkg/mediaregistry/repo/memory"
	repopg "github.com/tendant/media-registry/pkg/mediaregistry/repo/postgres"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: "memory",
		AutoMigrate:  true,
		Storage: StorageConfig{
			Type:   "memory",
			Config: map[string]interface{}{},
		},
		MaxUploadBytes:     contentstore.DefaultMaxBytes,
		AuthMode:           "header",
		CallerHeader:       api.DefaultCallerHeader,
		CacheTTL:           5 * time.Minute,
		EventsSource:       "media-registry",
		EventsTimeout:      cesink.DefaultTimeout,
		EnableEventLogging: true,
		RequestTimeout:     60 * time.Second,
	}
}

// ServerConfig represents server configuration for the media registry
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	AutoMigrate  bool   // Apply schema migrations on startup (postgres)

	// Admin used when the ledger has no control state yet
	Admin string

	// Content storage
	Storage        StorageConfig
	MaxUploadBytes int64

	// Caller identity
	AuthMode     string // "header", "jwt"
	JWTSecret    string
	CallerHeader string

	// Read cache in front of the repository; disabled when CacheSize is 0
	CacheSize int
	CacheTTL  time.Duration

	// Notifications
	EventsURL          string // CloudEvents receiver; disabled when empty
	EventsSource       string
	EventsTimeout      time.Duration
	EnableEventLogging bool

	RequestTimeout time.Duration
}

// StorageConfig represents configuration for the content storage backend
type StorageConfig struct {
	Type   string // "none", "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.Storage.Type {
	case "none", "memory":
	case "fs":
		if getString(c.Storage.Config, "base_dir", "") == "" {
			return errors.New("base_dir is required for fs storage")
		}
	case "s3":
		if getString(c.Storage.Config, "bucket", "") == "" {
			return errors.New("bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if c.MaxUploadBytes <= 0 {
		return errors.New("max_upload_bytes must be positive")
	}

	switch c.AuthMode {
	case "header":
	case "jwt":
		if c.JWTSecret == "" {
			return errors.New("jwt_secret is required when auth_mode is 'jwt'")
		}
	default:
		return fmt.Errorf("auth_mode must be 'header' or 'jwt', got: %s", c.AuthMode)
	}

	if c.CacheSize < 0 {
		return errors.New("cache_size cannot be negative")
	}

	return nil
}

// Components holds everything built from the configuration
type Components struct {
	Registry   mediaregistry.Service
	Repository mediaregistry.Repository
	Store      *contentstore.Store // nil when storage type is "none"
	Identity   api.Identity
	Metrics    *metrics.Metrics

	closers []func()
}

// Close releases database pools and other resources
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// Build creates the registry and its collaborators. Collectors are
// registered with reg.
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger, reg prometheus.Registerer) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	components := &Components{Metrics: metrics.New(reg)}

	repo, err := c.BuildRepository(ctx, logger, reg, components)
	if err != nil {
		components.Close()
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	components.Repository = repo

	registry, err := mediaregistry.New(ctx,
		mediaregistry.WithRepository(repo),
		mediaregistry.WithAdmin(mediaregistry.Address(c.Admin)),
		mediaregistry.WithEventSink(c.BuildEventSink(logger, components.Metrics)),
		mediaregistry.WithLogger(logger),
	)
	if err != nil {
		components.Close()
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}
	components.Registry = registry

	if status, err := registry.Status(ctx); err == nil {
		components.Metrics.SetPaused(status.Paused)
	}

	store, err := c.BuildContentStore(ctx, logger)
	if err != nil {
		components.Close()
		return nil, fmt.Errorf("failed to build content store: %w", err)
	}
	components.Store = store

	identity, err := c.BuildIdentity()
	if err != nil {
		components.Close()
		return nil, err
	}
	components.Identity = identity

	return components, nil
}

// BuildRepository creates a Repository based on the configuration. A pool
// opened for postgres is closed by components.Close.
func (c *ServerConfig) BuildRepository(ctx context.Context, logger *slog.Logger, reg prometheus.Registerer, components *Components) (mediaregistry.Repository, error) {
	var repo mediaregistry.Repository

	switch c.DatabaseType {
	case "memory":
		repo = memory.New()
	case "postgres":
		if c.AutoMigrate {
			if err := repopg.Migrate(c.DatabaseURL, logger); err != nil {
				return nil, err
			}
		}
		pool, err := OpenPostgres(ctx, c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if components != nil {
			components.closers = append(components.closers, pool.Close)
		}
		repo = repopg.NewWithPool(pool)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}

	if c.CacheSize > 0 {
		return cached.New(repo, c.CacheSize, c.CacheTTL, reg)
	}
	return repo, nil
}

// OpenPostgres opens a pool and verifies connectivity
func OpenPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// BuildContentStore creates the content store, or nil for storage type "none"
func (c *ServerConfig) BuildContentStore(ctx context.Context, logger *slog.Logger) (*contentstore.Store, error) {
	var backend contentstore.Backend
	var err error

	switch c.Storage.Type {
	case "none":
		return nil, nil

	case "memory":
		backend = memorystorage.New()

	case "fs":
		backend, err = fsstorage.New(fsstorage.Config{
			BaseDir: getString(c.Storage.Config, "base_dir", "./data/storage"),
		})

	case "s3":
		backend, err = s3storage.New(ctx, s3storage.Config{
			Region:                 getString(c.Storage.Config, "region", "us-east-1"),
			Bucket:                 getString(c.Storage.Config, "bucket", ""),
			Prefix:                 getString(c.Storage.Config, "prefix", ""),
			AccessKeyID:            getString(c.Storage.Config, "access_key_id", ""),
			SecretAccessKey:        getString(c.Storage.Config, "secret_access_key", ""),
			Endpoint:               getString(c.Storage.Config, "endpoint", ""),
			UsePathStyle:           getBool(c.Storage.Config, "use_path_style", false),
			EnableSSE:              getBool(c.Storage.Config, "enable_sse", false),
			SSEAlgorithm:           getString(c.Storage.Config, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(c.Storage.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(c.Storage.Config, "create_bucket_if_not_exist", false),
		})

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	if err != nil {
		return nil, err
	}

	return contentstore.New(backend,
		contentstore.WithMaxBytes(c.MaxUploadBytes),
		contentstore.WithLogger(logger),
	)
}

// BuildEventSink combines the configured notification sinks
func (c *ServerConfig) BuildEventSink(logger *slog.Logger, m *metrics.Metrics) mediaregistry.EventSink {
	var sinks []mediaregistry.EventSink
	if c.EnableEventLogging {
		sinks = append(sinks, mediaregistry.NewLoggingEventSink(logger))
	}
	if m != nil {
		sinks = append(sinks, m)
	}
	if c.EventsURL != "" {
		sink, err := cesink.New(cesink.Config{
			Target:  c.EventsURL,
			Source:  c.EventsSource,
			Timeout: c.EventsTimeout,
		})
		if err != nil {
			// Log error but don't fail startup
			logger.Error("Failed to create CloudEvents sink", "url", c.EventsURL, "error", err)
		} else {
			sinks = append(sinks, sink)
		}
	}
	if len(sinks) == 0 {
		return mediaregistry.NewNoopEventSink()
	}
	return mediaregistry.NewMultiEventSink(sinks...)
}

// BuildIdentity creates the caller identity provider
func (c *ServerConfig) BuildIdentity() (api.Identity, error) {
	switch c.AuthMode {
	case "jwt":
		return api.NewJWTIdentity([]byte(c.JWTSecret))
	case "header":
		return api.HeaderIdentity{Header: c.CallerHeader}, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", c.AuthMode)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}
