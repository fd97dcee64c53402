package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const (
	AuthProviderJWT      = "jwt"
	AuthProviderFirebase = "firebase"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Env         string `envconfig:"ENV" default:"development"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	AuthProvider            string `envconfig:"AUTH_PROVIDER" default:"jwt"`
	JWTSecret               string `envconfig:"JWT_SECRET"`
	FirebaseCredentialsPath string `envconfig:"FIREBASE_CREDENTIALS_PATH" default:"./firebase_credentials.json"`

	PostgresConnStr string `envconfig:"POSTGRES_CONN_STR" required:"true"`
	AutoMigrate     bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	// Redis backs the unread count cache. Empty disables it.
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	UnreadCacheTTL time.Duration `envconfig:"UNREAD_CACHE_TTL" default:"30s"`

	// NATS carries realtime fan-out and interaction events. Empty keeps
	// realtime delivery local to this instance.
	NatsURL        string `envconfig:"NATS_URL"`
	RealtimeBuffer int    `envconfig:"REALTIME_BUFFER" default:"32"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "configuration error")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.PostgresConnStr == "" {
		return errors.New("POSTGRES_CONN_STR is required")
	}
	switch c.AuthProvider {
	case AuthProviderJWT:
		if c.JWTSecret == "" {
			return errors.New("JWT_SECRET is required when AUTH_PROVIDER=jwt")
		}
	case AuthProviderFirebase:
		if c.FirebaseCredentialsPath == "" {
			return errors.New("FIREBASE_CREDENTIALS_PATH is required when AUTH_PROVIDER=firebase")
		}
	default:
		return errors.Errorf("unknown AUTH_PROVIDER %q", c.AuthProvider)
	}
	if c.RealtimeBuffer <= 0 {
		return errors.New("REALTIME_BUFFER must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
