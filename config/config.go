package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Booking  BookingConfig  `yaml:"booking"`
	Worker   WorkerConfig   `yaml:"worker"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers                []string `yaml:"brokers"`
	ReservationEventsTopic string   `yaml:"reservation_events_topic"`
	NotificationsTopic     string   `yaml:"notifications_topic"`
	GroupID                string   `yaml:"group_id"`
}

// UpstreamConfig describes the booking vendor API and the retry/credential policy around it.
type UpstreamConfig struct {
	BaseURL                  string   `yaml:"base_url"`
	TokenURL                 string   `yaml:"token_url"`
	ClientID                 string   `yaml:"client_id"`
	ClientSecret             string   `yaml:"client_secret"`
	Scopes                   []string `yaml:"scopes"`
	TokenTimeoutSeconds      int      `yaml:"token_timeout_seconds"`
	TokenBufferSeconds       int      `yaml:"token_buffer_seconds"`
	RequestTimeoutSeconds    int      `yaml:"request_timeout_seconds"`
	MaxRetries               int      `yaml:"max_retries"`
	BackoffBaseMillis        int      `yaml:"backoff_base_ms"`
	DefaultRetryAfterSeconds int      `yaml:"default_retry_after_seconds"`
	RequestsPerSecond        float64  `yaml:"requests_per_second"`
	Burst                    int      `yaml:"burst"`
}

func (u UpstreamConfig) TokenTimeout() time.Duration {
	return time.Duration(u.TokenTimeoutSeconds) * time.Second
}

func (u UpstreamConfig) TokenBuffer() time.Duration {
	return time.Duration(u.TokenBufferSeconds) * time.Second
}

func (u UpstreamConfig) RequestTimeout() time.Duration {
	return time.Duration(u.RequestTimeoutSeconds) * time.Second
}

func (u UpstreamConfig) BackoffBase() time.Duration {
	return time.Duration(u.BackoffBaseMillis) * time.Millisecond
}

func (u UpstreamConfig) DefaultRetryAfter() time.Duration {
	return time.Duration(u.DefaultRetryAfterSeconds) * time.Second
}

type BookingConfig struct {
	IdempotencyLockTTLSeconds int `yaml:"idempotency_lock_ttl_seconds"`
	SideEffectTimeoutSeconds  int `yaml:"side_effect_timeout_seconds"`
	AvailabilityCacheTTL      int `yaml:"availability_cache_ttl_seconds"`
}

func (b BookingConfig) IdempotencyLockTTL() time.Duration {
	return time.Duration(b.IdempotencyLockTTLSeconds) * time.Second
}

func (b BookingConfig) SideEffectTimeout() time.Duration {
	return time.Duration(b.SideEffectTimeoutSeconds) * time.Second
}

func (b BookingConfig) AvailabilityCacheTTLDuration() time.Duration {
	return time.Duration(b.AvailabilityCacheTTL) * time.Second
}

type WorkerConfig struct {
	StaleSweepMinutes   int `yaml:"stale_sweep_minutes"`
	StalePendingMinutes int `yaml:"stale_pending_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes raw YAML, applies environment overrides and defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("UPSTREAM_CLIENT_SECRET"); v != "" {
		c.Upstream.ClientSecret = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	u := &c.Upstream
	if u.TokenTimeoutSeconds <= 0 {
		u.TokenTimeoutSeconds = 15
	}
	if u.TokenBufferSeconds <= 0 {
		u.TokenBufferSeconds = 300
	}
	if u.RequestTimeoutSeconds <= 0 {
		u.RequestTimeoutSeconds = 30
	}
	if u.MaxRetries <= 0 {
		u.MaxRetries = 3
	}
	if u.BackoffBaseMillis <= 0 {
		u.BackoffBaseMillis = 1000
	}
	if u.DefaultRetryAfterSeconds <= 0 {
		u.DefaultRetryAfterSeconds = 2
	}

	b := &c.Booking
	if b.IdempotencyLockTTLSeconds <= 0 {
		b.IdempotencyLockTTLSeconds = 300
	}
	if b.SideEffectTimeoutSeconds <= 0 {
		b.SideEffectTimeoutSeconds = 30
	}
	if b.AvailabilityCacheTTL <= 0 {
		b.AvailabilityCacheTTL = 30
	}

	if c.Worker.StaleSweepMinutes <= 0 {
		c.Worker.StaleSweepMinutes = 5
	}
	if c.Worker.StalePendingMinutes <= 0 {
		c.Worker.StalePendingMinutes = 30
	}
}

// Validate checks the settings every binary needs.
func (c *Config) Validate() error {
	if c.Database.Name == "" {
		return fmt.Errorf("invalid config: %w", errors.New("database.name is required"))
	}
	return nil
}

// ValidateUpstream checks the vendor settings. Only the API server talks to
// the vendor.
func (c *Config) ValidateUpstream() error {
	var errs []error
	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream.base_url is required"))
	}
	if c.Upstream.TokenURL == "" {
		errs = append(errs, errors.New("upstream.token_url is required"))
	}
	if c.Upstream.ClientID == "" || c.Upstream.ClientSecret == "" {
		errs = append(errs, errors.New("upstream client credentials are required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
