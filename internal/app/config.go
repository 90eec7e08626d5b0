package app

import (
	"net/url"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Telegram bot run modes.
const (
	ModeWebhook = "webhook"
	ModePolling = "polling"
	ModeOff     = "off"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (MERCH_ prefix), flags, or YAML config files. It is
// loaded once at start and passed down explicitly.
type Config struct {
	Addr           string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL    string `usage:"PostgreSQL connection URL (MERCH_DATABASE_URL or DATABASE_URL); empty uses an in-memory store" flag:"database-url"`
	SeedFile       string `usage:"Products JSON loaded with the default promo codes into the in-memory store" flag:"seed-file"`
	RedisAddr      string `usage:"Redis address for per-order callback locks; empty uses in-process locks" flag:"redis-addr"`
	AdminURLPrefix string `default:"http://127.0.0.1:8000" usage:"Prefix of the order management link in staff notifications" flag:"admin-url-prefix"`
	PublicURL      string `default:"http://127.0.0.1:8080" usage:"Base URL of this service, probed by the /health bot command" flag:"public-url"`
	Telegram       TelegramConfig
	Notify         NotifyConfig
	Lock           LockConfig
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Graceful       GracefulConfig
}

// TelegramConfig configures the bot and the staff group channel.
type TelegramConfig struct {
	Token         string        `usage:"Bot API token"`
	GroupChatID   string        `usage:"Staff group chat id that receives order notifications" flag:"telegram-group-chat-id"`
	Enabled       bool          `default:"true" usage:"Send group notifications"`
	APIURL        string        `default:"https://api.telegram.org" usage:"Bot API base URL" flag:"telegram-api-url"`
	Timeout       time.Duration `default:"5s" usage:"Timeout of a single Bot API call"`
	Mode          string        `default:"webhook" usage:"Update delivery: webhook, polling or off"`
	WebhookURL    string        `usage:"Public webhook URL registered on start" flag:"telegram-webhook-url"`
	WebhookSecret string        `usage:"Secret token Telegram sends with webhook updates" flag:"telegram-webhook-secret"`
	MiniAppURL    string        `usage:"Mini App URL offered by /start" flag:"telegram-mini-app-url"`
	PollTimeout   time.Duration `default:"30s" usage:"Long poll timeout" flag:"telegram-poll-timeout"`
}

// NotifyConfig sizes the notification worker pool.
type NotifyConfig struct {
	Workers        int           `default:"4" usage:"Notification workers"`
	QueueSize      int           `default:"256" usage:"Pending notification queue size" flag:"notify-queue-size"`
	MaxAttempts    int           `default:"1" usage:"Send attempts per notification" flag:"notify-max-attempts"`
	RetryBaseDelay time.Duration `default:"500ms" usage:"First retry delay, doubled per attempt" flag:"notify-retry-base-delay"`
}

// LockConfig configures per-order locks.
type LockConfig struct {
	TTL time.Duration `default:"10s" usage:"Redis lock expiry"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML files,
// then applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "MERCH",
		Files:     []string{"config.yaml", "/etc/merch/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Telegram.Mode {
	case ModeWebhook, ModePolling, ModeOff:
	default:
		return errors.Errorf("invalid telegram mode %q: want webhook, polling or off", c.Telegram.Mode)
	}
	if c.Notify.Workers <= 0 || c.Notify.QueueSize <= 0 {
		return errors.New("notify workers and queue size must be positive")
	}
	return nil
}

// applyPlatformDefaults maps conventional variables (DATABASE_URL, PORT,
// the DB_* set, ADMIN_URL_PREFIX) onto the MERCH_-prefixed configuration.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if c.DatabaseURL == "" && getenv("DB_NAME") != "" {
		host := getenv("DB_HOST")
		if host == "" {
			host = "localhost"
		}
		port := getenv("DB_PORT")
		if port == "" {
			port = "5432"
		}
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(getenv("DB_USER"), getenv("DB_PASSWORD")),
			Host:   host + ":" + port,
			Path:   "/" + getenv("DB_NAME"),
		}
		c.DatabaseURL = u.String()
	}
	if v := getenv("ADMIN_URL_PREFIX"); v != "" && c.AdminURLPrefix == "http://127.0.0.1:8000" {
		c.AdminURLPrefix = v
	}
	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
