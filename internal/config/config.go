package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	// Email/push transports are optional: a missing endpoint disables
	// the channel instead of failing startup.
	EmailAPIURL string `env:"EMAIL_API_URL"`
	EmailAPIKey string `env:"EMAIL_API_KEY"`
	PushAPIURL  string `env:"PUSH_API_URL"`
	PushAPIKey  string `env:"PUSH_API_KEY"`

	NodeName string `env:"NODE_NAME"`

	RateLimitPerSec     int `env:"RATE_LIMIT_PER_SEC,default=100"`
	DispatchConcurrency int `env:"DISPATCH_CONCURRENCY,default=16"`
	ConsumerPrefetch    int `env:"CONSUMER_PREFETCH,default=32"`

	RetryBaseDelayMillis int `env:"RETRY_BASE_DELAY_MS,default=1000"`
	RetryMaxDelayMillis  int `env:"RETRY_MAX_DELAY_MS,default=60000"`
	RetryMultiplier      int `env:"RETRY_MULTIPLIER,default=2"`
	RetryMaxRetries      int `env:"RETRY_MAX_RETRIES,default=5"`
	RetryMaxJitterMillis int `env:"RETRY_MAX_JITTER_MS,default=250"`

	BatchMaxSize       int `env:"BATCH_MAX_SIZE,default=50"`
	BatchMaxWaitMillis int `env:"BATCH_MAX_WAIT_MS,default=2000"`
	BatchCeiling       int `env:"BATCH_CEILING,default=1000"`

	ScanIntervalSeconds  int `env:"SCAN_INTERVAL_SECONDS,default=5"`
	ScanLimit            int `env:"SCAN_LIMIT,default=100"`
	StaleSendingMinutes  int `env:"STALE_SENDING_MINUTES,default=5"`
	ConnectionTTLSeconds int `env:"CONNECTION_TTL_SECONDS,default=90"`
	AttemptRetentionDays int `env:"ATTEMPT_RETENTION_DAYS,default=90"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// EmailEnabled reports whether the email transport is configured.
func (c *Config) EmailEnabled() bool {
	return strings.TrimSpace(c.EmailAPIURL) != "" && strings.TrimSpace(c.EmailAPIKey) != ""
}

// PushEnabled reports whether the push transport is configured.
func (c *Config) PushEnabled() bool {
	return strings.TrimSpace(c.PushAPIURL) != "" && strings.TrimSpace(c.PushAPIKey) != ""
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMillis) * time.Millisecond
}

func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMillis) * time.Millisecond
}

func (c *Config) RetryMaxJitter() time.Duration {
	return time.Duration(c.RetryMaxJitterMillis) * time.Millisecond
}

func (c *Config) BatchMaxWait() time.Duration {
	return time.Duration(c.BatchMaxWaitMillis) * time.Millisecond
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

func (c *Config) StaleSendingAfter() time.Duration {
	return time.Duration(c.StaleSendingMinutes) * time.Minute
}

func (c *Config) ConnectionTTL() time.Duration {
	return time.Duration(c.ConnectionTTLSeconds) * time.Second
}

func (c *Config) AttemptRetention() time.Duration {
	return time.Duration(c.AttemptRetentionDays) * 24 * time.Hour
}
