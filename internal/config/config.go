// Package config loads and validates bot configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Messenger kinds.
const (
	MessengerLog     = "log"
	MessengerWebhook = "webhook"
)

// Payment providers.
const (
	ProviderNone     = "none"
	ProviderYooKassa = "yookassa"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Site         SiteConfig         `mapstructure:"site"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	RateLimit    RateLimitConfig    `mapstructure:"ratelimit"`
	Payment      PaymentConfig      `mapstructure:"payment"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	SMTP         SMTPConfig         `mapstructure:"smtp"`
	Messenger    MessengerConfig    `mapstructure:"messenger"`
	DB           DBConfig           `mapstructure:"db"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Watcher      WatcherConfig      `mapstructure:"watcher"`
	Render       RenderConfig       `mapstructure:"render"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SiteConfig points the pipeline at the league site.
type SiteConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	SearchItemSelector string `mapstructure:"search_item_selector"`
	PayloadScriptID    string `mapstructure:"payload_script_id"`
}

// HTTPConfig configures the outbound page fetcher.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	AcceptLanguage string `mapstructure:"accept_language"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
}

// RateLimitConfig throttles requests per host. Zero RPS disables throttling.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// PaymentConfig configures the payment provider and the offered product.
type PaymentConfig struct {
	Provider       string `mapstructure:"provider"`
	BaseURL        string `mapstructure:"base_url"`
	ShopID         string `mapstructure:"shop_id"`
	SecretKey      string `mapstructure:"secret_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	VATCode        int    `mapstructure:"vat_code"`
	Price          string `mapstructure:"price"`
	Currency       string `mapstructure:"currency"`
	Description    string `mapstructure:"description"`
	ItemName       string `mapstructure:"item_name"`
	ReturnURL      string `mapstructure:"return_url"`
}

// SubscriptionConfig controls subscription length.
type SubscriptionConfig struct {
	DurationDays int `mapstructure:"duration_days"`
}

// SMTPConfig configures the feedback mailer. Disabled mailers drop feedback.
type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

// MessengerConfig selects how chat notifications leave the service.
type MessengerConfig struct {
	Kind           string `mapstructure:"kind"`
	URL            string `mapstructure:"url"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DBConfig controls access to the subscription store.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// WatcherConfig governs the payment settlement worker pool.
type WatcherConfig struct {
	Workers        int     `mapstructure:"workers"`
	QueueDepth     int     `mapstructure:"queue_depth"`
	InitialDelayMs int     `mapstructure:"initial_delay_ms"`
	StepMs         int     `mapstructure:"step_ms"`
	MaxDelayMs     int     `mapstructure:"max_delay_ms"`
	MaxAttempts    int     `mapstructure:"max_attempts"`
	Jitter         float64 `mapstructure:"jitter"`
}

// RenderConfig controls message formatting.
type RenderConfig struct {
	OffsetHours int `mapstructure:"offset_hours"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LFLBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("site.base_url", "https://page.lfl.ru")
	v.SetDefault("site.search_item_selector", "li.style_searchItem__li__mziH_")
	v.SetDefault("site.payload_script_id", "__NEXT_DATA__")
	v.SetDefault("http.user_agent", "lfl-fixtures-bot/1.0")
	v.SetDefault("http.accept_language", "ru-RU,ru;q=0.9")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("ratelimit.rps", 5)
	v.SetDefault("ratelimit.burst", 10)
	v.SetDefault("payment.provider", ProviderNone)
	v.SetDefault("payment.base_url", "https://api.yookassa.ru/v3")
	v.SetDefault("payment.timeout_seconds", 15)
	v.SetDefault("payment.vat_code", 1)
	v.SetDefault("payment.price", "299.00")
	v.SetDefault("payment.currency", "RUB")
	v.SetDefault("payment.description", "Подписка на расписание матчей ЛФЛ")
	v.SetDefault("payment.item_name", "Подписка на 30 дней")
	v.SetDefault("subscription.duration_days", 30)
	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("messenger.kind", MessengerLog)
	v.SetDefault("messenger.timeout_seconds", 10)
	v.SetDefault("db.driver", DriverMemory)
	v.SetDefault("db.table", "users")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("watcher.workers", 4)
	v.SetDefault("watcher.queue_depth", 64)
	v.SetDefault("watcher.initial_delay_ms", 2000)
	v.SetDefault("watcher.step_ms", 1000)
	v.SetDefault("watcher.max_delay_ms", 10000)
	v.SetDefault("watcher.max_attempts", 60)
	v.SetDefault("watcher.jitter", 0.1)
	v.SetDefault("render.offset_hours", 3)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if strings.TrimSpace(c.Site.BaseURL) == "" {
		return fmt.Errorf("site.base_url is required")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("ratelimit.rps must be >= 0")
	}
	if c.Subscription.DurationDays <= 0 {
		return fmt.Errorf("subscription.duration_days must be > 0")
	}
	switch c.Payment.Provider {
	case ProviderNone:
	case ProviderYooKassa:
		if c.Payment.ShopID == "" || c.Payment.SecretKey == "" {
			return fmt.Errorf("payment.shop_id and payment.secret_key are required for yookassa")
		}
		if c.Payment.Price == "" || c.Payment.Currency == "" {
			return fmt.Errorf("payment.price and payment.currency are required for yookassa")
		}
	default:
		return fmt.Errorf("payment.provider %q is not supported", c.Payment.Provider)
	}
	if c.SMTP.Enabled && (c.SMTP.Host == "" || c.SMTP.To == "") {
		return fmt.Errorf("smtp.host and smtp.to must be set when smtp is enabled")
	}
	switch c.Messenger.Kind {
	case MessengerLog:
	case MessengerWebhook:
		if c.Messenger.URL == "" {
			return fmt.Errorf("messenger.url must be set for the webhook messenger")
		}
	default:
		return fmt.Errorf("messenger.kind %q is not supported", c.Messenger.Kind)
	}
	switch c.DB.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("db.driver %q is not supported", c.DB.Driver)
	}
	if c.Watcher.Workers <= 0 || c.Watcher.QueueDepth <= 0 {
		return fmt.Errorf("watcher.workers and watcher.queue_depth must be > 0")
	}
	if c.Watcher.MaxAttempts <= 0 {
		return fmt.Errorf("watcher.max_attempts must be > 0")
	}
	if c.Watcher.Jitter < 0 || c.Watcher.Jitter >= 1 {
		return fmt.Errorf("watcher.jitter must be in [0, 1)")
	}
	return nil
}

// FetchTimeout is the per-request budget for league site pages.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// SubscriptionDuration is how long one payment keeps a user active.
func (c Config) SubscriptionDuration() time.Duration {
	return time.Duration(c.Subscription.DurationDays) * 24 * time.Hour
}

// RenderOffset is the shift applied to upstream UTC match times.
func (c Config) RenderOffset() time.Duration {
	return time.Duration(c.Render.OffsetHours) * time.Hour
}
