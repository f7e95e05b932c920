// Package config provides application configuration management using Viper.
// Configuration is loaded from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Lock     LockConfig     `mapstructure:"lock"`
	Cache    CacheConfig    `mapstructure:"cache"`
	History  HistoryConfig  `mapstructure:"history"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Provider ProviderConfig `mapstructure:"provider"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name  string `mapstructure:"name" validate:"required"`
	Env   string `mapstructure:"env" validate:"oneof=development staging production"`
	Port  int    `mapstructure:"port" validate:"min=1,max=65535"`
	Debug bool   `mapstructure:"debug"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	Output string `mapstructure:"output"` // stdout, stderr, file path
}

// SentryConfig holds Sentry error tracking settings.
type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// RedisConfig holds Redis connection settings shared by the lock and cache.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LockConfig selects the run lock backend.
type LockConfig struct {
	Backend string        `mapstructure:"backend" validate:"oneof=memory redis"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// CacheConfig holds gallery query cache settings.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// HistoryConfig holds the optional PostgreSQL run history settings.
type HistoryConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host" validate:"required_if=Enabled true"`
	Port           int           `mapstructure:"port"`
	Name           string        `mapstructure:"name"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	SSLMode        string        `mapstructure:"ssl_mode"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	SlowQuery      time.Duration `mapstructure:"slow_query"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
}

// StorageConfig holds snapshot and backup locations.
type StorageConfig struct {
	DataDir    string            `mapstructure:"data_dir" validate:"required"`
	BackupDir  string            `mapstructure:"backup_dir"`
	BackupKeep int               `mapstructure:"backup_keep" validate:"min=1"`
	Files      map[string]string `mapstructure:"files"`
}

// SyncConfig holds background sync settings.
type SyncConfig struct {
	Interval  time.Duration `mapstructure:"interval"` // 0 disables the scheduler
	OnStartup bool          `mapstructure:"on_startup"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ProviderConfig holds both source configurations.
type ProviderConfig struct {
	Ex ExConfig `mapstructure:"ex"`
	JM JMConfig `mapstructure:"jm"`
}

// HTTPConfig holds transport settings shared by both sources.
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	Retry     RetryConfig   `mapstructure:"retry"`
	CB        CBConfig      `mapstructure:"circuit_breaker"`
}

// RetryConfig holds transport retry settings.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"min=0"`
	WaitTime    time.Duration `mapstructure:"wait_time"`
	MaxWaitTime time.Duration `mapstructure:"max_wait_time"`
}

// CBConfig holds circuit breaker settings.
type CBConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	MinRequests  uint32        `mapstructure:"min_requests" validate:"min=1"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio" validate:"min=0,max=1"`
}

// ExConfig configures the authenticated-scrape source.
type ExConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	FavoritesURL string `mapstructure:"favorites_url" validate:"required_if=Enabled true,omitempty,url"`
	APIURL       string `mapstructure:"api_url" validate:"omitempty,url"`

	MemberID string `mapstructure:"ipb_member_id" validate:"required_if=Enabled true"`
	PassHash string `mapstructure:"ipb_pass_hash" validate:"required_if=Enabled true"`
	Igneous  string `mapstructure:"igneous"`

	BatchSize      int           `mapstructure:"batch_size" validate:"min=1,max=25"`
	MaxRetryRounds int           `mapstructure:"max_retry_rounds" validate:"min=1"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	RequestRate    float64       `mapstructure:"request_rate" validate:"min=0"`
	MaxPages       int           `mapstructure:"max_pages" validate:"min=0"`

	HTTP HTTPConfig `mapstructure:",squash"`
}

// JMConfig configures the encrypted source.
type JMConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Mirrors      []string      `mapstructure:"mirrors" validate:"required_if=Enabled true,dive,url"`
	AppVersion   string        `mapstructure:"app_version" validate:"required_if=Enabled true"`
	TokenSecret  string        `mapstructure:"token_secret" validate:"required_if=Enabled true"`
	DataSecret   string        `mapstructure:"data_secret" validate:"required_if=Enabled true"`
	Username     string        `mapstructure:"username" validate:"required_if=Enabled true"`
	Password     string        `mapstructure:"password" validate:"required_if=Enabled true"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`

	Workers        int           `mapstructure:"workers" validate:"min=1"`
	PerItemRetries int           `mapstructure:"per_item_retries" validate:"min=1"`
	ItemBackoff    time.Duration `mapstructure:"item_backoff"`
	SaveEvery      int           `mapstructure:"save_every" validate:"min=1"`
	MaxRetryRounds int           `mapstructure:"max_retry_rounds" validate:"min=1"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	MaxPages       int           `mapstructure:"max_pages" validate:"min=0"`

	CoverURLTemplate string `mapstructure:"cover_url_template"`

	HTTP HTTPConfig `mapstructure:",squash"`
}

// Load reads configuration from file and environment variables.
// Priority: env vars > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// no file: defaults + env vars
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct constraints and the cross-section rules.
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" {
			return fld.Name
		}
		return name
	})

	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if !c.Provider.Ex.Enabled && !c.Provider.JM.Enabled {
		return errors.New("invalid config: no provider enabled")
	}
	if c.Provider.JM.Enabled && len(c.Provider.JM.Mirrors) == 0 {
		return errors.New("invalid config: provider.jm.mirrors is empty")
	}

	return nil
}

// EnabledProviders returns the names of the enabled sources.
func (c *Config) EnabledProviders() []string {
	var names []string
	if c.Provider.Ex.Enabled {
		names = append(names, "ex")
	}
	if c.Provider.JM.Enabled {
		names = append(names, "jm")
	}

	return names
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "favorites-sync-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.debug", false)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output", "stdout")

	// Sentry defaults
	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")
	v.SetDefault("sentry.sample_rate", 1.0)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Lock and cache defaults
	v.SetDefault("lock.backend", "memory")
	v.SetDefault("lock.ttl", "2h")
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", "5m")

	// History defaults
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.host", "localhost")
	v.SetDefault("history.port", 5432)
	v.SetDefault("history.name", "favorites_sync")
	v.SetDefault("history.user", "app")
	v.SetDefault("history.password", "secret")
	v.SetDefault("history.ssl_mode", "disable")
	v.SetDefault("history.connect_timeout", "5s")
	v.SetDefault("history.slow_query", "200ms")
	v.SetDefault("history.max_open_conns", 5)
	v.SetDefault("history.max_idle_conns", 2)
	v.SetDefault("history.max_lifetime", "5m")

	// Storage defaults
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.backup_dir", "./data/backups")
	v.SetDefault("storage.backup_keep", 10)
	v.SetDefault("storage.files", map[string]string{
		"ex": "favorites_metadata.json",
		"jm": "jm_favorites.json",
	})

	// Sync defaults
	v.SetDefault("sync.interval", "0s")
	v.SetDefault("sync.on_startup", false)
	v.SetDefault("sync.timeout", "2h")

	// ex defaults
	v.SetDefault("provider.ex.enabled", false)
	v.SetDefault("provider.ex.favorites_url", "https://exhentai.org/favorites.php")
	v.SetDefault("provider.ex.api_url", "https://api.e-hentai.org/api.php")
	v.SetDefault("provider.ex.ipb_member_id", "")
	v.SetDefault("provider.ex.ipb_pass_hash", "")
	v.SetDefault("provider.ex.igneous", "")
	v.SetDefault("provider.ex.batch_size", 25)
	v.SetDefault("provider.ex.max_retry_rounds", 3)
	v.SetDefault("provider.ex.retry_delay", "2s")
	v.SetDefault("provider.ex.request_rate", 1.0)
	v.SetDefault("provider.ex.max_pages", 0)
	setHTTPDefaults(v, "provider.ex")

	// jm defaults
	v.SetDefault("provider.jm.enabled", false)
	v.SetDefault("provider.jm.mirrors", []string{})
	v.SetDefault("provider.jm.app_version", "")
	v.SetDefault("provider.jm.token_secret", "")
	v.SetDefault("provider.jm.data_secret", "")
	v.SetDefault("provider.jm.username", "")
	v.SetDefault("provider.jm.password", "")
	v.SetDefault("provider.jm.probe_timeout", "5s")
	v.SetDefault("provider.jm.workers", 16)
	v.SetDefault("provider.jm.per_item_retries", 3)
	v.SetDefault("provider.jm.item_backoff", "500ms")
	v.SetDefault("provider.jm.save_every", 50)
	v.SetDefault("provider.jm.max_retry_rounds", 2)
	v.SetDefault("provider.jm.retry_delay", "2s")
	v.SetDefault("provider.jm.max_pages", 0)
	v.SetDefault("provider.jm.cover_url_template", "https://cdn-msp.18comic.vip/media/albums/{id}_3x4.jpg")
	setHTTPDefaults(v, "provider.jm")
}

func setHTTPDefaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".timeout", "30s")
	v.SetDefault(prefix+".user_agent", "")
	v.SetDefault(prefix+".retry.max_attempts", 2)
	v.SetDefault(prefix+".retry.wait_time", "1s")
	v.SetDefault(prefix+".retry.max_wait_time", "5s")
	v.SetDefault(prefix+".circuit_breaker.max_requests", 3)
	v.SetDefault(prefix+".circuit_breaker.min_requests", 5)
	v.SetDefault(prefix+".circuit_breaker.interval", "60s")
	v.SetDefault(prefix+".circuit_breaker.timeout", "15s")
	v.SetDefault(prefix+".circuit_breaker.failure_ratio", 0.6)
}
