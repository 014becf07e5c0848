package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port string `envconfig:"PORT" default:"3001"`
	Env  string `envconfig:"APP_ENV" default:"development"`

	Gemini GeminiConfig
	Relay  RelayConfig
	HTTP   HTTPConfig

	Breaker BreakerConfig

	RedisURL    string        `envconfig:"REDIS_URL"`
	CacheTTL    time.Duration `envconfig:"CACHE_TTL" default:"10m"`
	DatabaseURL string        `envconfig:"DATABASE_URL"`

	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	WebhookURL       string `envconfig:"WEBHOOK_URL"`
}

// GeminiConfig describes the upstream generation endpoint. APIKey is
// intentionally optional here: handlers report its absence per request.
type GeminiConfig struct {
	APIKey     string        `envconfig:"GEMINI_API_KEY"`
	Model      string        `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	BaseURL    string        `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com"`
	APIVersion string        `envconfig:"GEMINI_API_VERSION" default:"v1beta"`
	Transport  string        `envconfig:"GEMINI_TRANSPORT" default:"rest"`
	Timeout    time.Duration `envconfig:"GEMINI_TIMEOUT" default:"60s"`
}

type RelayConfig struct {
	Strategy       string        `envconfig:"RELAY_STRATEGY" default:"retry"`
	FallbackFields []string      `envconfig:"RELAY_FALLBACK_FIELDS" default:"imei,price"`
	RequestTimeout time.Duration `envconfig:"RELAY_REQUEST_TIMEOUT" default:"180s"`
}

type HTTPConfig struct {
	BodyLimit  int64  `envconfig:"BODY_LIMIT_BYTES" default:"10485760"`
	CORSOrigin string `envconfig:"CORS_ORIGIN" default:"*"`
}

type BreakerConfig struct {
	MaxFailures uint32        `envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	Timeout     time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s"`
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Gemini.APIKey = strings.TrimSpace(cfg.Gemini.APIKey)
	cfg.Gemini.Model = strings.TrimSpace(cfg.Gemini.Model)
	cfg.Gemini.Transport = strings.ToLower(strings.TrimSpace(cfg.Gemini.Transport))
	cfg.Relay.Strategy = strings.ToLower(strings.TrimSpace(cfg.Relay.Strategy))
	if strings.TrimSpace(cfg.Port) == "" {
		cfg.Port = "3001"
	}

	switch cfg.Gemini.Transport {
	case "rest", "sdk":
	default:
		return nil, fmt.Errorf("config: unknown GEMINI_TRANSPORT %q; use rest|sdk", cfg.Gemini.Transport)
	}
	switch cfg.Relay.Strategy {
	case "none", "retry", "fields":
	default:
		return nil, fmt.Errorf("config: unknown RELAY_STRATEGY %q; use none|retry|fields", cfg.Relay.Strategy)
	}
	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
