// Package config loads application configuration from file and environment
// and owns global logger initialization.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	CryptoRank SourceConfig     `yaml:"cryptorank" mapstructure:"cryptorank"`
	DefiLlama  SourceConfig     `yaml:"defillama" mapstructure:"defillama"`
	CoinGecko  SourceConfig     `yaml:"coingecko" mapstructure:"coingecko"`
	GitHub     SourceConfig     `yaml:"github" mapstructure:"github"`
	Newsfeed   SourceConfig     `yaml:"newsfeed" mapstructure:"newsfeed"`
	Fanout     FanoutConfig     `yaml:"fanout" mapstructure:"fanout"`
	Reconcile  ReconcileConfig  `yaml:"reconcile" mapstructure:"reconcile"`
	Grader     GraderConfig     `yaml:"grader" mapstructure:"grader"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourceConfig holds one upstream source's credentials and trust weight.
type SourceConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TrustWeight float64 `yaml:"trust_weight" mapstructure:"trust_weight"`
	Disabled    bool    `yaml:"disabled" mapstructure:"disabled"`
}

// FanoutConfig configures the source fan-out pass.
type FanoutConfig struct {
	PerAdapterTimeoutSecs int `yaml:"per_adapter_timeout_secs" mapstructure:"per_adapter_timeout_secs"`
	OverallDeadlineSecs   int `yaml:"overall_deadline_secs" mapstructure:"overall_deadline_secs"`
}

// ReconcileConfig points at the field policy file.
type ReconcileConfig struct {
	PolicyPath string `yaml:"policy_path" mapstructure:"policy_path"`
}

// GraderConfig holds the rubric weights.
type GraderConfig struct {
	CapitalWeight   float64 `yaml:"capital_weight" mapstructure:"capital_weight"`
	TechnicalWeight float64 `yaml:"technical_weight" mapstructure:"technical_weight"`
	UsageWeight     float64 `yaml:"usage_weight" mapstructure:"usage_weight"`
	TeamWeight      float64 `yaml:"team_weight" mapstructure:"team_weight"`
}

// MonitoringConfig configures the background alert checker.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold  float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	ConflictRateThreshold float64 `yaml:"conflict_rate_threshold" mapstructure:"conflict_rate_threshold"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackEntries       int     `yaml:"lookback_entries" mapstructure:"lookback_entries"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FUNDFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "fundflow.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("cryptorank.base_url", "https://api.cryptorank.io/v2")
	v.SetDefault("cryptorank.trust_weight", 0.9)
	v.SetDefault("defillama.base_url", "https://api.llama.fi")
	v.SetDefault("defillama.trust_weight", 0.85)
	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.trust_weight", 0.8)
	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.trust_weight", 0.75)
	v.SetDefault("newsfeed.base_url", "https://newsapi.org/v2")
	v.SetDefault("newsfeed.trust_weight", 0.5)
	v.SetDefault("fanout.per_adapter_timeout_secs", 10)
	v.SetDefault("fanout.overall_deadline_secs", 30)
	v.SetDefault("grader.capital_weight", 35)
	v.SetDefault("grader.technical_weight", 25)
	v.SetDefault("grader.usage_weight", 25)
	v.SetDefault("grader.team_weight", 15)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.conflict_rate_threshold", 0.3)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_entries", 500)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
