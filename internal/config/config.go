package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"p2pwatch/internal/logging"
	"p2pwatch/internal/model"
)

const envPrefix = "P2PWATCH"

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app" yaml:"app"`
	Logging   logging.Config  `mapstructure:"logging" yaml:"logging"`
	Endpoint  EndpointConfig  `mapstructure:"endpoint" yaml:"endpoint"`
	Markets   []model.Market  `mapstructure:"markets" yaml:"markets"`
	Collector CollectorConfig `mapstructure:"collector" yaml:"collector"`
	Quote     QuoteConfig     `mapstructure:"quote" yaml:"quote"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Alerting  AlertingConfig  `mapstructure:"alerting" yaml:"alerting"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Queue     QueueConfig     `mapstructure:"queue" yaml:"queue"`
	Archive   ArchiveConfig   `mapstructure:"archive" yaml:"archive"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Export    ExportConfig    `mapstructure:"export" yaml:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
	DataDir     string `mapstructure:"data_dir" yaml:"data_dir"`
}

// EndpointConfig describes the upstream listing request.
type EndpointConfig struct {
	URL       string            `mapstructure:"url" yaml:"url"`
	Method    string            `mapstructure:"method" yaml:"method"`
	Timeout   time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	UserAgent string            `mapstructure:"user_agent" yaml:"user_agent"`
	Headers   map[string]string `mapstructure:"headers" yaml:"headers"`
	// BodyTemplate is a JSON object. It is kept as text so key case survives decoding.
	BodyTemplate string `mapstructure:"body_template" yaml:"body_template"`
}

// Body decodes the body template. Numbers keep their literal form.
func (e EndpointConfig) Body() (map[string]any, error) {
	if strings.TrimSpace(e.BodyTemplate) == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(e.BodyTemplate)))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("endpoint.body_template: %w", err)
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

// CollectorConfig governs collection cadence and fan-out.
type CollectorConfig struct {
	Interval          time.Duration `mapstructure:"interval" yaml:"interval"`
	StartupDelay      time.Duration `mapstructure:"startup_delay" yaml:"startup_delay"`
	MaxPages          int           `mapstructure:"max_pages" yaml:"max_pages"`
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	CountPath         string        `mapstructure:"count_path" yaml:"count_path"`
	PageSizeField     string        `mapstructure:"page_size_field" yaml:"page_size_field"`
	Retry             RetryConfig   `mapstructure:"retry" yaml:"retry"`
}

// RetryConfig bounds per-page retries.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
}

// QuoteConfig defines the two-leg trade evaluated by quote and alerting.
type QuoteConfig struct {
	Bucket      time.Duration     `mapstructure:"bucket" yaml:"bucket"`
	Acquire     LegConfig         `mapstructure:"acquire" yaml:"acquire"`
	Dispose     LegConfig         `mapstructure:"dispose" yaml:"dispose"`
	Constraints ConstraintsConfig `mapstructure:"constraints" yaml:"constraints"`
}

// LegConfig is one side of the trade. Amount is fiat for acquire and asset for dispose.
type LegConfig struct {
	Fiat           string   `mapstructure:"fiat" yaml:"fiat"`
	Amount         float64  `mapstructure:"amount" yaml:"amount"`
	PaymentMethods []string `mapstructure:"payment_methods" yaml:"payment_methods"`
}

// ConstraintsConfig applies to both legs.
type ConstraintsConfig struct {
	MerchantOnly bool    `mapstructure:"merchant_only" yaml:"merchant_only"`
	MinRating    float64 `mapstructure:"min_rating" yaml:"min_rating"`
}

// StorageConfig selects the quote history backend.
type StorageConfig struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"`
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	SQLitePath      string        `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key" yaml:"advisory_lock_key"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	MinCrossRate float64       `mapstructure:"min_cross_rate" yaml:"min_cross_rate"`
	Cooldown     time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	Channels     []string      `mapstructure:"channels" yaml:"channels"`
	// Retention prunes stored alert records older than this after each quote run. Zero keeps all.
	Retention time.Duration  `mapstructure:"retention" yaml:"retention"`
	Telegram  TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	BotToken string `mapstructure:"bot_token" yaml:"bot_token"`
	ChatID   string `mapstructure:"chat_id" yaml:"chat_id"`
	APIBase  string `mapstructure:"api_base" yaml:"api_base"`
}

// CacheConfig points at Redis. An empty address disables the cache.
type CacheConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// QueueConfig points at Kafka. No brokers disables publishing.
type QueueConfig struct {
	Brokers []string `mapstructure:"brokers" yaml:"brokers"`
	Topic   string   `mapstructure:"topic" yaml:"topic"`
}

// ArchiveConfig points at S3. An empty bucket disables uploads.
type ArchiveConfig struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Prefix          string `mapstructure:"prefix" yaml:"prefix"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
}

// MetricsConfig enables the ops HTTP server when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points" yaml:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
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

	applyEnvOverlay(&cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// applyEnvOverlay injects endpoint credentials that must stay out of checked-in files.
func applyEnvOverlay(cfg *Config, lookup func(string) (string, bool)) {
	if url, ok := lookup(envPrefix + "_ENDPOINT_URL"); ok && url != "" {
		cfg.Endpoint.URL = url
	}
	if cfg.Endpoint.Headers == nil {
		cfg.Endpoint.Headers = map[string]string{}
	}

	if raw, ok := lookup(envPrefix + "_ENDPOINT_HEADERS_JSON"); ok && raw != "" {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			for k, v := range parsed {
				if v == nil {
					continue
				}
				cfg.Endpoint.Headers[k] = fmt.Sprint(v)
			}
		}
	}

	overlay := []struct{ env, header string }{
		{envPrefix + "_ENDPOINT_COOKIE", "Cookie"},
		{envPrefix + "_ENDPOINT_GUID", "guid"},
		{envPrefix + "_ENDPOINT_RISKTOKEN", "riskToken"},
	}
	for _, o := range overlay {
		if v, ok := lookup(o.env); ok && v != "" {
			cfg.Endpoint.Headers[o.header] = v
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "p2pwatch")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.data_dir", "data")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size_mb", 50)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 14)

	v.SetDefault("endpoint.url", "https://api2.bybit.com/fiat/otc/item/online")
	v.SetDefault("endpoint.method", "POST")
	v.SetDefault("endpoint.timeout", "20s")
	v.SetDefault("endpoint.user_agent", "p2pwatch/1.0")
	v.SetDefault("endpoint.body_template",
		`{"tokenId":"USDT","currencyId":"{fiat}","side":"{endpoint_side}","size":"10","page":"{page}","amount":"","authMaker":false,"canTrade":false}`)

	v.SetDefault("markets", []map[string]any{
		{"name": "rub_sell", "fiat": "RUB", "side": "SELL", "endpoint_side": "0"},
		{"name": "vnd_buy", "fiat": "VND", "side": "BUY", "endpoint_side": "1"},
	})

	v.SetDefault("collector.interval", "30s")
	v.SetDefault("collector.startup_delay", "0s")
	v.SetDefault("collector.max_pages", 5)
	v.SetDefault("collector.concurrency", 4)
	v.SetDefault("collector.requests_per_second", 0.0)
	v.SetDefault("collector.burst", 1)
	v.SetDefault("collector.count_path", "result.count")
	v.SetDefault("collector.page_size_field", "size")
	v.SetDefault("collector.retry.max_attempts", 3)
	v.SetDefault("collector.retry.initial_interval", "1s")
	v.SetDefault("collector.retry.max_interval", "10s")

	v.SetDefault("quote.bucket", "1m")
	v.SetDefault("quote.acquire.fiat", "RUB")
	v.SetDefault("quote.acquire.amount", 50000.0)
	v.SetDefault("quote.acquire.payment_methods", []string{})
	v.SetDefault("quote.dispose.fiat", "VND")
	v.SetDefault("quote.dispose.amount", 500.0)
	v.SetDefault("quote.dispose.payment_methods", []string{})
	v.SetDefault("quote.constraints.merchant_only", false)
	v.SetDefault("quote.constraints.min_rating", 0.0)

	v.SetDefault("storage.driver", "")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.sqlite_path", "data/p2pwatch.db")
	v.SetDefault("storage.max_open_conns", 10)
	v.SetDefault("storage.max_idle_conns", 5)
	v.SetDefault("storage.conn_max_lifetime", "30m")
	v.SetDefault("storage.advisory_lock_key", int64(0x70327077))

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.min_cross_rate", 0.0)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.retention", "0s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("cache.addr", "")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.prefix", "p2pwatch")

	v.SetDefault("queue.brokers", []string{})
	v.SetDefault("queue.topic", "p2p-offers")

	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "offers")
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.access_key_id", "")
	v.SetDefault("archive.secret_access_key", "")
	v.SetDefault("archive.use_path_style", false)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("export.max_data_points", 100000)
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
	if strings.TrimSpace(c.App.DataDir) == "" {
		return fmt.Errorf("app.data_dir must be set")
	}
	switch strings.ToUpper(c.Endpoint.Method) {
	case "GET", "POST":
	default:
		return fmt.Errorf("endpoint.method must be GET or POST, got %q", c.Endpoint.Method)
	}
	if c.Endpoint.Timeout <= 0 {
		return fmt.Errorf("endpoint.timeout must be greater than zero")
	}
	if _, err := c.Endpoint.Body(); err != nil {
		return err
	}

	seen := map[string]struct{}{}
	for i, m := range c.Markets {
		if m.Name == "" || m.Fiat == "" {
			return fmt.Errorf("markets[%d]: name and fiat are required", i)
		}
		if !m.Side.Valid() {
			return fmt.Errorf("markets[%d]: side must be BUY or SELL, got %q", i, m.Side)
		}
		if _, dup := seen[m.Name]; dup {
			return fmt.Errorf("markets[%d]: duplicate name %q", i, m.Name)
		}
		seen[m.Name] = struct{}{}
	}

	if c.Collector.Interval <= 0 {
		return fmt.Errorf("collector.interval must be greater than zero")
	}
	if c.Collector.Concurrency < 0 {
		return fmt.Errorf("collector.concurrency cannot be negative")
	}
	if c.Collector.RequestsPerSecond < 0 {
		return fmt.Errorf("collector.requests_per_second cannot be negative")
	}
	if c.Collector.Retry.MaxAttempts < 1 {
		return fmt.Errorf("collector.retry.max_attempts must be at least 1")
	}

	if c.Quote.Bucket <= 0 {
		return fmt.Errorf("quote.bucket must be greater than zero")
	}
	if c.Quote.Acquire.Amount <= 0 || c.Quote.Dispose.Amount <= 0 {
		return fmt.Errorf("quote leg amounts must be greater than zero")
	}

	switch c.Storage.Driver {
	case "":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("storage.driver must be postgres, sqlite or empty, got %q", c.Storage.Driver)
	}

	if c.Alerting.MinCrossRate < 0 {
		return fmt.Errorf("alerting.min_cross_rate cannot be negative")
	}
	if c.Alerting.Retention < 0 {
		return fmt.Errorf("alerting.retention cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if len(c.Queue.Brokers) > 0 && c.Queue.Topic == "" {
		return fmt.Errorf("queue.topic is required when brokers are set")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// Market returns the configured market with the given name.
func (c *Config) Market(name string) (model.Market, bool) {
	for _, m := range c.Markets {
		if m.Name == name {
			return m, true
		}
	}
	return model.Market{}, false
}
