package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/contract-optimizer/internal/blob"
	"github.com/sells-group/contract-optimizer/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Blob       blob.Config      `yaml:"blob" mapstructure:"blob"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	FastModel   string `yaml:"fast_model" mapstructure:"fast_model"`
	StrongModel string `yaml:"strong_model" mapstructure:"strong_model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	FastModel   string `yaml:"fast_model" mapstructure:"fast_model"`
	StrongModel string `yaml:"strong_model" mapstructure:"strong_model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ExtractionConfig configures the extraction pipeline. The escalation
// thresholds are policy values, adjustable without a rebuild.
type ExtractionConfig struct {
	PrimaryProvider               string   `yaml:"primary_provider" mapstructure:"primary_provider"`
	AlternateProvider             string   `yaml:"alternate_provider" mapstructure:"alternate_provider"`
	ForceStrong                   bool     `yaml:"force_strong" mapstructure:"force_strong"`
	MaxDocuments                  int      `yaml:"max_documents" mapstructure:"max_documents"`
	MaxFileBytes                  int64    `yaml:"max_file_bytes" mapstructure:"max_file_bytes"`
	ConfidenceEscalationThreshold float64  `yaml:"confidence_escalation_threshold" mapstructure:"confidence_escalation_threshold"`
	KeyTermsEscalationThreshold   int      `yaml:"key_terms_escalation_threshold" mapstructure:"key_terms_escalation_threshold"`
	ComplexContractTypes          []string `yaml:"complex_contract_types" mapstructure:"complex_contract_types"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
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
	v.SetEnvPrefix("CONTRACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 10)
	v.SetDefault("server.rate_limit_burst", 20)
	v.SetDefault("anthropic.fast_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.strong_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.timeout_secs", 120)
	v.SetDefault("gemini.fast_model", "gemini-2.5-flash")
	v.SetDefault("gemini.strong_model", "gemini-2.5-pro")
	v.SetDefault("gemini.timeout_secs", 120)
	v.SetDefault("extraction.primary_provider", "anthropic")
	v.SetDefault("extraction.alternate_provider", "")
	v.SetDefault("extraction.max_documents", 5)
	v.SetDefault("extraction.max_file_bytes", 10*1024*1024)
	v.SetDefault("extraction.confidence_escalation_threshold", 0.7)
	v.SetDefault("extraction.key_terms_escalation_threshold", 6)
	v.SetDefault("extraction.complex_contract_types", []string{"rental", "insurance", "service"})
	v.SetDefault("blob.bucket", "contracts")
	v.SetDefault("blob.use_ssl", true)

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
