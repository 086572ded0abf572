package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/your-org/esi-client/pkg/logger"
)

// Config holds all configuration for the upstream client subsystem.
type Config struct {
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	Cipher    CipherConfig    `mapstructure:"cipher"`
	Logging   logger.Config   `mapstructure:"logging"`
}

// UpstreamConfig holds the upstream OAuth2 and resource API endpoints.
type UpstreamConfig struct {
	// AuthURL is the authorization endpoint the user is redirected to
	AuthURL string `mapstructure:"auth_url"`

	// TokenURL is the token exchange/refresh endpoint
	TokenURL string `mapstructure:"token_url"`

	// VerifyURL resolves a bearer token to an upstream identity
	VerifyURL string `mapstructure:"verify_url"`

	// BaseURL is the resource API base
	BaseURL string `mapstructure:"base_url"`

	// ClientID and ClientSecret authenticate this application at the token endpoint
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`

	// RedirectURI must match the URI registered with upstream
	RedirectURI string `mapstructure:"redirect_uri"`

	// Scopes requested during authorization
	Scopes []string `mapstructure:"scopes"`

	// UserAgent is sent on every upstream request
	UserAgent string `mapstructure:"user_agent"`
}

// RedisConfig holds connection settings for the shared ephemeral store.
type RedisConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Password   string   `mapstructure:"password"`
	DB         int      `mapstructure:"db"`
	KeyPrefix  string   `mapstructure:"key_prefix"`
	MasterName string   `mapstructure:"master_name"`
	PoolSize   int      `mapstructure:"pool_size"`
}

// RateLimitConfig holds per-endpoint admission control settings.
type RateLimitConfig struct {
	// Ceiling is the maximum requests per window per endpoint key
	Ceiling int64 `mapstructure:"ceiling"`

	// Window is the rolling window length
	Window time.Duration `mapstructure:"window"`

	// KeyPrefix namespaces limiter counters in the shared store
	KeyPrefix string `mapstructure:"key_prefix"`
}

// CacheConfig holds conditional-cache TTLs.
type CacheConfig struct {
	// ETagTTL is how long a validated ETag is remembered
	ETagTTL time.Duration `mapstructure:"etag_ttl"`

	// BodyTTL is how long the 304-fallback body is kept
	BodyTTL time.Duration `mapstructure:"body_ttl"`

	// KeyPrefix namespaces cache entries in the shared store
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ExecutorConfig holds request execution settings.
type ExecutorConfig struct {
	// Timeout bounds a single upstream call
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxRetries is the total attempt ceiling for transient failures
	MaxRetries int `mapstructure:"max_retries"`

	// RetryAfterCap bounds how long an upstream Retry-After is honored
	RetryAfterCap time.Duration `mapstructure:"retry_after_cap"`
}

// BreakerConfig holds circuit breaker settings for upstream resource calls.
type BreakerConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// FailureThreshold is consecutive failures before the breaker opens
	FailureThreshold uint32 `mapstructure:"failure_threshold"`

	// OpenTimeout is how long the breaker stays open before probing
	OpenTimeout time.Duration `mapstructure:"open_timeout"`

	// MaxRequests allowed through while half-open
	MaxRequests uint32 `mapstructure:"max_requests"`
}

// SweepConfig holds scheduled refresh sweep settings.
type SweepConfig struct {
	// Interval between sweep runs
	Interval time.Duration `mapstructure:"interval"`

	// ExpiryWindow selects records expiring within this horizon
	ExpiryWindow time.Duration `mapstructure:"expiry_window"`
}

// CipherConfig holds credential cipher settings.
type CipherConfig struct {
	// Key is the base64-encoded 32-byte AES-256 key
	Key string `mapstructure:"key"`

	// AllowDerivedKey permits stretching an arbitrary secret into a key via
	// SHA-256. Weak; rejected at startup unless explicitly enabled.
	AllowDerivedKey bool `mapstructure:"allow_derived_key"`
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("esi-client")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/esi-client")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("ESI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Upstream
	v.SetDefault("upstream.auth_url", "https://login.eveonline.com/v2/oauth/authorize")
	v.SetDefault("upstream.token_url", "https://login.eveonline.com/v2/oauth/token")
	v.SetDefault("upstream.verify_url", "https://login.eveonline.com/oauth/verify")
	v.SetDefault("upstream.base_url", "https://esi.evetech.net/latest")
	v.SetDefault("upstream.user_agent", "esi-client")

	// Redis
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "esi:")
	v.SetDefault("redis.pool_size", 10)

	// Rate limiting
	v.SetDefault("rate_limit.ceiling", 100)
	v.SetDefault("rate_limit.window", time.Second)
	v.SetDefault("rate_limit.key_prefix", "esi:ratelimit")

	// Conditional cache
	v.SetDefault("cache.etag_ttl", time.Hour)
	v.SetDefault("cache.body_ttl", 5*time.Minute)
	v.SetDefault("cache.key_prefix", "cache:")

	// Executor
	v.SetDefault("executor.timeout", 30*time.Second)
	v.SetDefault("executor.max_retries", 3)
	v.SetDefault("executor.retry_after_cap", 60*time.Second)

	// Circuit breaker
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.failure_threshold", 10)
	v.SetDefault("breaker.open_timeout", 30*time.Second)
	v.SetDefault("breaker.max_requests", 1)

	// Sweep
	v.SetDefault("sweep.interval", 15*time.Minute)
	v.SetDefault("sweep.expiry_window", 5*time.Minute)

	// Cipher
	v.SetDefault("cipher.allow_derived_key", false)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_caller", true)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Upstream.ClientID == "" {
		errs = append(errs, "upstream.client_id is required")
	}
	if c.Upstream.ClientSecret == "" {
		errs = append(errs, "upstream.client_secret is required")
	}
	if c.Upstream.RedirectURI == "" {
		errs = append(errs, "upstream.redirect_uri is required")
	}
	if c.Cipher.Key == "" {
		errs = append(errs, "cipher.key is required")
	}
	if c.RateLimit.Ceiling <= 0 {
		errs = append(errs, "rate_limit.ceiling must be positive")
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, "rate_limit.window must be positive")
	}
	if c.Executor.MaxRetries < 1 {
		errs = append(errs, "executor.max_retries must be at least 1")
	}
	if c.Executor.Timeout <= 0 {
		errs = append(errs, "executor.timeout must be positive")
	}
	if c.Sweep.Interval <= 0 {
		errs = append(errs, "sweep.interval must be positive")
	}
	if c.Sweep.ExpiryWindow <= 0 {
		errs = append(errs, "sweep.expiry_window must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
