package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	// OneSignal integration. Empty credentials leave the service in the
	// "not configured" state; Enabled is the separate operator switch.
	OneSignalAppID      string `env:"ONESIGNAL_APP_ID"`
	OneSignalAPIKey     string `env:"ONESIGNAL_API_KEY"`
	OneSignalAPIURL     string `env:"ONESIGNAL_API_URL,default=https://onesignal.com/api/v1"`
	OneSignalEnabled    bool   `env:"ONESIGNAL_ENABLED,default=true"`
	ProviderTimeoutSecs int    `env:"PROVIDER_TIMEOUT_SEC,default=30"`

	RateLimitPerSec   int    `env:"RATE_LIMIT_PER_SEC,default=100"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=4"`
	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) ProviderTimeout() time.Duration {
	if c.ProviderTimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ProviderTimeoutSecs) * time.Second
}
