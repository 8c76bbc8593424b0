package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SILVERFIN"

// Config holds the full application configuration.
type Config struct {
	FirmID      string `yaml:"firm_id" mapstructure:"firm_id"`
	Token       string `yaml:"token" mapstructure:"token"`
	ExportPDFID string `yaml:"export_pdf_id" mapstructure:"export_pdf_id"`
	OutputDir   string `yaml:"output_dir" mapstructure:"output_dir"`

	API       APIConfig       `yaml:"api" mapstructure:"api"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Selection SelectionConfig `yaml:"selection" mapstructure:"selection"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Mirror    MirrorConfig    `yaml:"mirror" mapstructure:"mirror"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// APIConfig configures the Silverfin API client.
type APIConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	CompaniesPerPage  int     `yaml:"companies_per_page" mapstructure:"companies_per_page"`
	PeriodsPerPage    int     `yaml:"periods_per_page" mapstructure:"periods_per_page"`
}

// Timeout returns the per-request HTTP timeout.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// BatchConfig configures how many companies are processed together.
type BatchConfig struct {
	Size int `yaml:"size" mapstructure:"size"`
}

// ExportConfig configures the export job lifecycle.
type ExportConfig struct {
	PollIntervalSecs int  `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	MaxPollAttempts  int  `yaml:"max_poll_attempts" mapstructure:"max_poll_attempts"`
	VerifyPDF        bool `yaml:"verify_pdf" mapstructure:"verify_pdf"`
}

// PollInterval returns the wait between status polls.
func (c ExportConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// SelectionConfig configures which closed fiscal years are exported.
type SelectionConfig struct {
	RequiredDepth int `yaml:"required_depth" mapstructure:"required_depth"`
	MaxDepth      int `yaml:"max_depth" mapstructure:"max_depth"`
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MirrorConfig configures the optional S3-compatible copy of every export.
type MirrorConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Region    string `yaml:"region" mapstructure:"region"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// Enabled reports whether a mirror endpoint is configured.
func (c MirrorConfig) Enabled() bool {
	return c.Endpoint != ""
}

// MetricsConfig configures the Prometheus textfile output.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ConfigError reports required settings that are missing and settings
// that are out of range. Missing entries name the environment variables so
// the operator can fix all of them at once.
type ConfigError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required configuration: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid configuration: "+strings.Join(e.Invalid, "; "))
	}
	return strings.Join(parts, "; ")
}

// required maps config keys that must be set to their struct value.
func (c *Config) required() []struct{ key, value string } {
	return []struct{ key, value string }{
		{"firm_id", c.FirmID},
		{"token", c.Token},
		{"export_pdf_id", c.ExportPDFID},
		{"output_dir", c.OutputDir},
	}
}

// Validate returns a *ConfigError listing every missing required setting
// and every out-of-range value.
func (c *Config) Validate() error {
	var missing, invalid []string
	for _, r := range c.required() {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, EnvVar(r.key))
		}
	}

	if c.Batch.Size < 1 {
		invalid = append(invalid, "batch.size must be >= 1")
	}
	if c.API.CompaniesPerPage < 1 || c.API.PeriodsPerPage < 1 {
		invalid = append(invalid, "api page sizes must be >= 1")
	}
	if c.API.RequestsPerSecond < 0 {
		invalid = append(invalid, "api.requests_per_second must be >= 0")
	}
	if c.Export.PollIntervalSecs < 1 {
		invalid = append(invalid, "export.poll_interval_secs must be >= 1")
	}
	if c.Export.MaxPollAttempts < 1 {
		invalid = append(invalid, "export.max_poll_attempts must be >= 1")
	}
	if c.Selection.MaxDepth < 1 || c.Selection.MaxDepth > 5 {
		invalid = append(invalid, "selection.max_depth must be between 1 and 5")
	}
	if c.Selection.RequiredDepth < 1 || c.Selection.RequiredDepth > c.Selection.MaxDepth {
		invalid = append(invalid, "selection.required_depth must be between 1 and selection.max_depth")
	}
	switch c.Store.Driver {
	case "", "none", "sqlite", "postgres":
	default:
		invalid = append(invalid, fmt.Sprintf("store.driver %q is not one of none, sqlite, postgres", c.Store.Driver))
	}
	if c.Mirror.Enabled() && c.Mirror.Bucket == "" {
		invalid = append(invalid, "mirror.bucket is required when mirror.endpoint is set")
	}

	if len(missing) > 0 || len(invalid) > 0 {
		return &ConfigError{Missing: missing, Invalid: invalid}
	}
	return nil
}

// EnvVar returns the environment variable that sets key.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads configuration from file and environment. It does not validate
// required settings; commands that talk to Silverfin call Validate.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key is registered so AutomaticEnv applies on Unmarshal.
	v.SetDefault("firm_id", "")
	v.SetDefault("token", "")
	v.SetDefault("export_pdf_id", "")
	v.SetDefault("output_dir", "")
	v.SetDefault("api.base_url", "https://live.getsilverfin.com")
	v.SetDefault("api.timeout_secs", 60)
	v.SetDefault("api.requests_per_second", 0.0)
	v.SetDefault("api.companies_per_page", 200)
	v.SetDefault("api.periods_per_page", 200)
	v.SetDefault("batch.size", 20)
	v.SetDefault("export.poll_interval_secs", 3)
	v.SetDefault("export.max_poll_attempts", 200)
	v.SetDefault("export.verify_pdf", false)
	v.SetDefault("selection.required_depth", 3)
	v.SetDefault("selection.max_depth", 5)
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.database_url", "")
	v.SetDefault("mirror.endpoint", "")
	v.SetDefault("mirror.bucket", "")
	v.SetDefault("mirror.prefix", "")
	v.SetDefault("mirror.access_key", "")
	v.SetDefault("mirror.secret_key", "")
	v.SetDefault("mirror.region", "")
	v.SetDefault("mirror.use_ssl", true)
	v.SetDefault("metrics.textfile", "")
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
