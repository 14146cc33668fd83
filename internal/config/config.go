// Package config loads the daemon's process configuration from the
// environment. Engine tunables live in correlator.Options; this package only
// covers process-level wiring: broker addresses, endpoints, credentials.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Kafka configures the gateway event consumer.
type Kafka struct {
	Brokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	GroupID string `env:"KAFKA_GROUP_ID" envDefault:"modwatch"`
	Topic   string `env:"KAFKA_TOPIC" envDefault:"modwatch.events"`
}

// Redis configures the guild settings store.
type Redis struct {
	URL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
}

// Sink configures record delivery.
type Sink struct {
	WebhookURL string        `env:"SINK_WEBHOOK_URL,required"`
	AuthToken  string        `env:"SINK_AUTH_TOKEN"`
	Timeout    time.Duration `env:"SINK_TIMEOUT" envDefault:"10s"`
}

// AuditAPI configures the audit-log query client.
type AuditAPI struct {
	BaseURL   string        `env:"AUDIT_API_URL,required"`
	AuthToken string        `env:"AUDIT_API_TOKEN"`
	Timeout   time.Duration `env:"AUDIT_API_TIMEOUT" envDefault:"5s"`
}

// Engine overrides the correlation engine's tunables. Zero values mean "use
// the built-in default"; the defaults are empirical, see correlator.Options.
type Engine struct {
	AttributionWindow   time.Duration `env:"ATTRIBUTION_WINDOW"`
	DebounceWait        time.Duration `env:"DEBOUNCE_WAIT"`
	DebounceTTL         time.Duration `env:"DEBOUNCE_TTL" envDefault:"10m"`
	BounceThreshold     time.Duration `env:"BOUNCE_THRESHOLD"`
	NewAccountThreshold time.Duration `env:"NEW_ACCOUNT_THRESHOLD"`
}

// Config is the daemon's full process configuration.
type Config struct {
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":8080"`

	Kafka    Kafka
	Redis    Redis
	Sink     Sink
	AuditAPI AuditAPI
	Engine   Engine
}

// Load reads the configuration from the environment, after loading an
// optional .env file for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
