package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/email"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/invitation"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/notification"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/worker"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/docstore/postgres"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/messaging/redis"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/ratelimit"
)

const envPrefix = "FAMILY"

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Store        StoreConfig        `mapstructure:"store"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Invitation   InvitationConfig   `mapstructure:"invitation"`
	RateLimit    RateLimitConfig    `mapstructure:"ratelimit"`
	Guard        GuardConfig        `mapstructure:"guard"`
	Notification NotificationConfig `mapstructure:"notification"`
	Reconcile    ReconcileConfig    `mapstructure:"reconcile"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
	ShutdownGrace  time.Duration `mapstructure:"shutdownGrace"`
	MaxBodyBytes   int64         `mapstructure:"maxBodyBytes"`
	AllowedOrigins []string      `mapstructure:"allowedOrigins"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

type StoreConfig struct {
	// Backend is "memory" or "postgres".
	Backend        string `mapstructure:"backend"`
	MigrationsPath string `mapstructure:"migrationsPath"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"maxRetries"`
	RetryBackoff time.Duration `mapstructure:"retryBackoff"`
	PoolSize     int           `mapstructure:"poolSize"`
	MinIdleConns int           `mapstructure:"minIdleConns"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type InvitationConfig struct {
	TTL                   time.Duration `mapstructure:"ttl"`
	InviterDefaultsAsFull bool          `mapstructure:"inviterDefaultsAsFull"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Backend  string        `mapstructure:"backend"`
	RPS      float64       `mapstructure:"rps"`
	Burst    int           `mapstructure:"burst"`
	Window   time.Duration `mapstructure:"window"`
	Requests int           `mapstructure:"requests"`
}

type GuardConfig struct {
	CacheTTL time.Duration `mapstructure:"cacheTTL"`
}

type NotificationConfig struct {
	// Channel is "email", "in_app", "all" or "none".
	Channel    string           `mapstructure:"channel"`
	MaxRetries int              `mapstructure:"maxRetries"`
	RetryDelay time.Duration    `mapstructure:"retryDelay"`
	SMTP       email.SMTPConfig `mapstructure:"smtp"`
}

type ReconcileConfig struct {
	Schedule    string        `mapstructure:"schedule"`
	Concurrency int           `mapstructure:"concurrency"`
	SweepEvery  time.Duration `mapstructure:"sweepEvery"`
	RunTimeout  time.Duration `mapstructure:"runTimeout"`
	RunOnStart  bool          `mapstructure:"runOnStart"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// WorkerOverrides are read from the plain environment by the worker binary.
type WorkerOverrides struct {
	Schedule    string `envconfig:"SCHEDULE"`
	Concurrency int    `envconfig:"CONCURRENCY"`
	RunOnStart  *bool  `envconfig:"RUN_ON_START"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 15*time.Second)
	v.SetDefault("server.writeTimeout", 15*time.Second)
	v.SetDefault("server.requestTimeout", 10*time.Second)
	v.SetDefault("server.shutdownGrace", 20*time.Second)
	v.SetDefault("server.maxBodyBytes", 1<<20)
	v.SetDefault("server.allowedOrigins", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.migrationsPath", "migrations")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "family")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.maxRetries", 3)
	v.SetDefault("redis.retryBackoff", 200*time.Millisecond)
	v.SetDefault("redis.poolSize", 10)

	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "family-access")

	v.SetDefault("invitation.ttl", invitation.DefaultTTL)
	v.SetDefault("invitation.inviterDefaultsAsFull", true)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.backend", "local")
	v.SetDefault("ratelimit.rps", 10.0)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("ratelimit.requests", 300)

	v.SetDefault("guard.cacheTTL", 30*time.Second)

	v.SetDefault("notification.channel", "email")
	v.SetDefault("notification.maxRetries", 3)
	v.SetDefault("notification.retryDelay", time.Second)
	v.SetDefault("notification.smtp.host", "")
	v.SetDefault("notification.smtp.port", 587)
	v.SetDefault("notification.smtp.username", "")
	v.SetDefault("notification.smtp.password", "")
	v.SetDefault("notification.smtp.from", "no-reply@family.local")

	v.SetDefault("reconcile.schedule", "*/15 * * * *")
	v.SetDefault("reconcile.concurrency", 4)
	v.SetDefault("reconcile.sweepEvery", time.Hour)
	v.SetDefault("reconcile.runTimeout", 10*time.Minute)
	v.SetDefault("reconcile.runOnStart", false)

	v.SetDefault("metrics.namespace", "family")
}

// LoadConfig reads config.yml from the usual locations. A missing file is
// fine; defaults and FAMILY_* variables still apply.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app/config")
	return load(v)
}

// LoadFile reads a specific config file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	switch c.Store.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.RateLimit.Backend {
	case "local":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("ratelimit.backend redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("unknown rate limit backend %q", c.RateLimit.Backend)
	}
	return nil
}

// ApplyWorkerOverrides layers RECONCILER_* variables over the reconcile section.
func (c *Config) ApplyWorkerOverrides() error {
	var o WorkerOverrides
	if err := envconfig.Process("reconciler", &o); err != nil {
		return fmt.Errorf("failed to read worker overrides: %w", err)
	}
	if o.Schedule != "" {
		c.Reconcile.Schedule = o.Schedule
	}
	if o.Concurrency > 0 {
		c.Reconcile.Concurrency = o.Concurrency
	}
	if o.RunOnStart != nil {
		c.Reconcile.RunOnStart = *o.RunOnStart
	}
	return nil
}

func (c *Config) ToPostgresConfig() postgres.Config {
	return postgres.Config{
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Database.Password,
		Name:     c.Database.Name,
		SSLMode:  c.Database.SSLMode,
	}
}

func (c *Config) ToRedisConfig() redis.Config {
	return redis.Config{
		URL:          c.Redis.URL,
		MaxRetries:   c.Redis.MaxRetries,
		RetryBackoff: c.Redis.RetryBackoff,
		PoolSize:     c.Redis.PoolSize,
		MinIdleConns: c.Redis.MinIdleConns,
	}
}

func (c *Config) ToRateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		Backend:  c.RateLimit.Backend,
		RPS:      c.RateLimit.RPS,
		Burst:    c.RateLimit.Burst,
		Window:   c.RateLimit.Window,
		Requests: c.RateLimit.Requests,
	}
}

func (c *Config) ToInvitationConfig() invitation.Config {
	return invitation.Config{
		TTL:                   c.Invitation.TTL,
		InviterDefaultsAsFull: c.Invitation.InviterDefaultsAsFull,
	}
}

func (c *Config) ToNotificationConfig() notification.Config {
	return notification.Config{
		Channel:    c.Notification.Channel,
		MaxRetries: c.Notification.MaxRetries,
		RetryDelay: c.Notification.RetryDelay,
	}
}

func (c *Config) ToSchedulerConfig() worker.Config {
	return worker.Config{
		Schedule:   c.Reconcile.Schedule,
		SweepEvery: c.Reconcile.SweepEvery,
		RunTimeout: c.Reconcile.RunTimeout,
		RunOnStart: c.Reconcile.RunOnStart,
	}
}
