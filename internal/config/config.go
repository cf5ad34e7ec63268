package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"book-features/internal/logging"
	"book-features/internal/model"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Source     SourceConfig     `mapstructure:"source"`
	Database   DatabaseConfig   `mapstructure:"database"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Features   FeaturesConfig   `mapstructure:"features"`
	Validation ValidationConfig `mapstructure:"validation"`
	Export     ExportConfig     `mapstructure:"export"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// Source drivers.
const (
	DriverPostgres   = "postgres"
	DriverClickHouse = "clickhouse"
)

// SourceConfig selects where snapshots and trades are read from.
type SourceConfig struct {
	Driver string `mapstructure:"driver"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// ClickHouseConfig encapsulates ClickHouse connectivity.
type ClickHouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// EstimatorConfig names one book estimator and its depth in levels per side.
type EstimatorConfig struct {
	Kind  string `mapstructure:"kind"`
	Depth int    `mapstructure:"depth"`
}

// Crossed book policies.
const (
	CrossedKeep = "keep"
	CrossedDrop = "drop"
)

// FeaturesConfig sets the feature build parameters.
type FeaturesConfig struct {
	Symbol        string            `mapstructure:"symbol"`
	SampleLimit   int               `mapstructure:"sample_limit"`
	MidOffsets    []int64           `mapstructure:"mid_offsets"`
	TradesOffsets []int64           `mapstructure:"trades_offsets"`
	Sensitivity   float64           `mapstructure:"sensitivity"`
	Imbalance     []EstimatorConfig `mapstructure:"imbalance"`
	AdjustedPrice []EstimatorConfig `mapstructure:"adjusted_price"`
	CrossedBooks  string            `mapstructure:"crossed_books"`
}

// ValidationConfig sets walk-forward evaluation behaviour.
type ValidationConfig struct {
	Window  int      `mapstructure:"window"`
	Ridge   float64  `mapstructure:"ridge"`
	Targets []string `mapstructure:"targets"`
	Models  []string `mapstructure:"models"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxRows           int    `mapstructure:"max_rows"`
	ParquetCompressor string `mapstructure:"parquet_compression"`
}

// SchedulerConfig governs the rebuild cadence of `run`.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Evaluate        bool          `mapstructure:"evaluate"`
}

// AlertingConfig routes score alerts raised by scheduled evaluations.
// MinAccuracy applies to classifiers and MinR2 to regressors.
type AlertingConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	MinAccuracy float64        `mapstructure:"min_accuracy"`
	MinR2       float64        `mapstructure:"min_r2"`
	Timeout     time.Duration  `mapstructure:"timeout"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
}

// ScoreFloors maps each model kind to its out-of-sample alert floor.
func (c AlertingConfig) ScoreFloors() map[model.Kind]float64 {
	return map[model.Kind]float64{
		model.KindClassifier: c.MinAccuracy,
		model.KindRegressor:  c.MinR2,
	}
}

// TelegramConfig holds Telegram bot credentials.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOOKFEATURES")
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
	v.SetDefault("app.name", "bookfeatures")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("source.driver", DriverPostgres)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("features.symbol", "btcusd")
	v.SetDefault("features.sample_limit", 100000)
	v.SetDefault("features.mid_offsets", []int64{5, 10, 20})
	v.SetDefault("features.trades_offsets", []int64{30, 120, 300})
	v.SetDefault("features.sensitivity", 1.0)
	v.SetDefault("features.imbalance", []map[string]any{
		{"kind": "simple", "depth": 5},
		{"kind": "weighted", "depth": 10},
	})
	v.SetDefault("features.adjusted_price", []map[string]any{
		{"kind": "simple", "depth": 5},
		{"kind": "weighted", "depth": 10},
	})
	v.SetDefault("features.crossed_books", CrossedKeep)

	v.SetDefault("validation.window", 5000)
	v.SetDefault("validation.ridge", 1e-3)
	v.SetDefault("validation.targets", []string{})
	v.SetDefault("validation.models", []string{"classifier", "regressor"})

	v.SetDefault("export.max_rows", 1000000)
	v.SetDefault("export.parquet_compression", "snappy")

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x626f6f6b))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.evaluate", false)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.min_accuracy", 0.5)
	v.SetDefault("alerting.min_r2", 0.0)
	v.SetDefault("alerting.timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
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
	switch c.Source.Driver {
	case DriverPostgres, DriverClickHouse:
	default:
		return fmt.Errorf("source.driver must be %q or %q, got %q", DriverPostgres, DriverClickHouse, c.Source.Driver)
	}
	if c.Features.Symbol == "" {
		return fmt.Errorf("features.symbol is required")
	}
	if c.Features.SampleLimit <= 0 {
		return fmt.Errorf("features.sample_limit must be greater than zero")
	}
	if len(c.Features.MidOffsets) == 0 {
		return fmt.Errorf("features.mid_offsets needs at least one offset")
	}
	for _, off := range c.Features.MidOffsets {
		if off <= 0 {
			return fmt.Errorf("features.mid_offsets must be positive, got %d", off)
		}
	}
	for _, off := range c.Features.TradesOffsets {
		if off <= 0 {
			return fmt.Errorf("features.trades_offsets must be positive, got %d", off)
		}
	}
	if c.Features.Sensitivity <= 0 {
		return fmt.Errorf("features.sensitivity must be greater than zero")
	}
	switch c.Features.CrossedBooks {
	case CrossedKeep, CrossedDrop:
	default:
		return fmt.Errorf("features.crossed_books must be %q or %q", CrossedKeep, CrossedDrop)
	}
	if c.Validation.Window < 1 {
		return fmt.Errorf("validation.window must be at least 1")
	}
	if c.Validation.Ridge < 0 {
		return fmt.Errorf("validation.ridge cannot be negative")
	}
	if c.Export.MaxRows <= 0 {
		return fmt.Errorf("export.max_rows must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Alerting.MinAccuracy < 0 || c.Alerting.MinAccuracy > 1 {
		return fmt.Errorf("alerting.min_accuracy must be within [0, 1]")
	}
	if c.Alerting.MinR2 > 1 {
		return fmt.Errorf("alerting.min_r2 must not exceed 1")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxRows returns either the CLI override or config default.
func (c *Config) ResolveMaxRows(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRows
}
