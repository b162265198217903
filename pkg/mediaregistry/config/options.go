package config

import (
	"fmt"
	"time"
)

// WithPort sets the HTTP listen port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the deployment environment name
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		c.Environment = env
		return nil
	}
}

// WithDatabase selects the repository backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithAutoMigrate toggles startup migrations
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithAdmin sets the admin used to initialize an empty ledger
func WithAdmin(admin string) Option {
	return func(c *ServerConfig) error {
		c.Admin = admin
		return nil
	}
}

// WithStorage sets the content storage backend
func WithStorage(storageType string, cfg map[string]interface{}) Option {
	return func(c *ServerConfig) error {
		if cfg == nil {
			cfg = map[string]interface{}{}
		}
		c.Storage = StorageConfig{Type: storageType, Config: cfg}
		return nil
	}
}

// WithStorageURL parses a STORAGE_URL style value
func WithStorageURL(raw string) Option {
	return func(c *ServerConfig) error {
		storage, err := parseStorageURL(raw)
		if err != nil {
			return err
		}
		c.Storage = storage
		return nil
	}
}

// WithMaxUploadBytes caps upload size
func WithMaxUploadBytes(n int64) Option {
	return func(c *ServerConfig) error {
		c.MaxUploadBytes = n
		return nil
	}
}

// WithJWTAuth authenticates callers with HS256 bearer tokens
func WithJWTAuth(secret string) Option {
	return func(c *ServerConfig) error {
		c.AuthMode = "jwt"
		c.JWTSecret = secret
		return nil
	}
}

// WithHeaderAuth trusts the caller address in the given header
func WithHeaderAuth(header string) Option {
	return func(c *ServerConfig) error {
		if header == "" {
			return fmt.Errorf("caller header cannot be empty")
		}
		c.AuthMode = "header"
		c.CallerHeader = header
		return nil
	}
}

// WithCache puts an LRU read cache in front of the repository
func WithCache(size int, ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		c.CacheSize = size
		c.CacheTTL = ttl
		return nil
	}
}

// WithEventsURL delivers notifications to a CloudEvents receiver
func WithEventsURL(target, source string) Option {
	return func(c *ServerConfig) error {
		c.EventsURL = target
		if source != "" {
			c.EventsSource = source
		}
		return nil
	}
}

// WithEventLogging toggles logging of ledger notifications
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// WithRequestTimeout bounds HTTP request handling
func WithRequestTimeout(d time.Duration) Option {
	return func(c *ServerConfig) error {
		c.RequestTimeout = d
		return nil
	}
}
