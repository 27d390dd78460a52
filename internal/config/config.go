package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"coinalerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Coingecko CoingeckoConfig `mapstructure:"coingecko"`
	Server    ServerConfig    `mapstructure:"server"`
	SMS       SMSConfig       `mapstructure:"sms"`
	Email     EmailConfig     `mapstructure:"email"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	FrontendURL string `mapstructure:"frontend_url"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RedisConfig covers the cache, watch index, and queue transport.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SchedulerConfig governs the two refresh cadences. Prices and market stats run
// on independent timers so a failure on one never stalls the other.
type SchedulerConfig struct {
	PricesInterval time.Duration `mapstructure:"prices_interval"`
	StatsInterval  time.Duration `mapstructure:"stats_interval"`
	StartupDelay   time.Duration `mapstructure:"startup_delay"`
}

// CoingeckoConfig parameterises the market data provider.
type CoingeckoConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	PerPage        int           `mapstructure:"per_page"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SMSConfig covers Twilio delivery.
type SMSConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	AccountSID  string  `mapstructure:"account_sid"`
	AuthToken   string  `mapstructure:"auth_token"`
	FromNumber  string  `mapstructure:"from_number"`
	Region      string  `mapstructure:"region"`
	CallbackURL string  `mapstructure:"callback_url"`
	RateLimit   float64 `mapstructure:"rate_limit"`
}

// EmailConfig covers SMTP delivery.
type EmailConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Host      string  `mapstructure:"host"`
	Port      int     `mapstructure:"port"`
	Username  string  `mapstructure:"username"`
	Password  string  `mapstructure:"password"`
	From      string  `mapstructure:"from"`
	RateLimit float64 `mapstructure:"rate_limit"`
}

// AlertsConfig tunes alert bookkeeping.
type AlertsConfig struct {
	FreeAlertLimit int `mapstructure:"free_alert_limit"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COINALERTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "coinalerts")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.frontend_url", "http://localhost:3000")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("scheduler.prices_interval", "65s")
	v.SetDefault("scheduler.stats_interval", "30m")
	v.SetDefault("scheduler.startup_delay", "10s")

	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.per_page", 250)
	v.SetDefault("coingecko.request_timeout", "15s")
	v.SetDefault("coingecko.retry_attempts", 3)
	v.SetDefault("coingecko.retry_backoff", "2s")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("sms.enabled", false)
	v.SetDefault("sms.region", "US")
	v.SetDefault("sms.rate_limit", 1.0)

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.port", 587)
	v.SetDefault("email.rate_limit", 5.0)

	v.SetDefault("alerts.free_alert_limit", 5)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.PricesInterval <= 0 {
		return fmt.Errorf("scheduler.prices_interval must be greater than zero")
	}
	if c.Scheduler.StatsInterval <= 0 {
		return fmt.Errorf("scheduler.stats_interval must be greater than zero")
	}
	if c.Coingecko.RetryAttempts <= 0 {
		return fmt.Errorf("coingecko.retry_attempts must be greater than zero")
	}
	if c.Alerts.FreeAlertLimit <= 0 {
		return fmt.Errorf("alerts.free_alert_limit must be greater than zero")
	}
	if c.SMS.Enabled {
		if c.SMS.AccountSID == "" || c.SMS.AuthToken == "" {
			return fmt.Errorf("sms.account_sid and sms.auth_token are required when sms is enabled")
		}
		if c.SMS.FromNumber == "" {
			return fmt.Errorf("sms.from_number is required when sms is enabled")
		}
	}
	if c.Email.Enabled {
		if c.Email.Host == "" {
			return fmt.Errorf("email.host is required when email is enabled")
		}
		if c.Email.From == "" {
			return fmt.Errorf("email.from is required when email is enabled")
		}
	}
	return nil
}
