package config

import (
	"errors"
	"fmt"
	"io/fs"
	"nosleep/internal/lockctl"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Config represents the agent configuration
type Config struct {
	API      APIConfig     `json:"api" mapstructure:"api"`
	Journal  JournalConfig `json:"journal" mapstructure:"journal"`
	Lock     LockConfig    `json:"lock" mapstructure:"lock"`
	Logging  LoggingConfig `json:"logging" mapstructure:"logging"`
	Simulate bool          `json:"simulate" mapstructure:"simulate"`
}

// APIConfig contains the control API listener settings
type APIConfig struct {
	Host   string `json:"host" mapstructure:"host"`
	Port   int    `json:"port" mapstructure:"port"`
	APIKey string `json:"api_key" mapstructure:"api_key"`
}

// JournalConfig contains lock journal settings. An empty path disables the journal.
type JournalConfig struct {
	Path     string `json:"path" mapstructure:"path"`
	Timezone string `json:"timezone" mapstructure:"timezone"`
	// Retention is how long events are kept. Zero keeps everything.
	Retention time.Duration `json:"retention" mapstructure:"retention"`
}

// LockConfig contains countdown and permission timings
type LockConfig struct {
	WarningThreshold time.Duration `json:"warning_threshold" mapstructure:"warning_threshold"`
	TickPeriod       time.Duration `json:"tick_period" mapstructure:"tick_period"`
	RecheckDelay     time.Duration `json:"recheck_delay" mapstructure:"recheck_delay"`
	DriftCorrection  bool          `json:"drift_correction" mapstructure:"drift_correction"`
	PromptOnResume   bool          `json:"prompt_on_resume" mapstructure:"prompt_on_resume"`
	DefaultHours     int           `json:"default_hours" mapstructure:"default_hours"`
	DefaultMinutes   int           `json:"default_minutes" mapstructure:"default_minutes"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
	Path   string `json:"path" mapstructure:"path"`
}

// Address returns the listen address for the control API
func (c *APIConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("%w: api port must be between 1 and 65535", ErrInvalidConfig)
	}
	if c.Lock.TickPeriod <= 0 {
		return fmt.Errorf("%w: tick period must be positive", ErrInvalidConfig)
	}
	if c.Lock.WarningThreshold < 0 {
		return fmt.Errorf("%w: warning threshold must not be negative", ErrInvalidConfig)
	}
	if c.Lock.RecheckDelay <= 0 {
		return fmt.Errorf("%w: recheck delay must be positive", ErrInvalidConfig)
	}
	if c.Lock.DefaultHours < 0 || c.Lock.DefaultMinutes < 0 {
		return fmt.Errorf("%w: default selection must not be negative", ErrInvalidConfig)
	}
	if c.Lock.DefaultHours > 23 {
		return fmt.Errorf("%w: default hours must be below 24", ErrInvalidConfig)
	}
	if c.Lock.DefaultMinutes > 59 {
		return fmt.Errorf("%w: default minutes must be below 60", ErrInvalidConfig)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: logging format must be json or text", ErrInvalidConfig)
	}
	if c.Journal.Retention < 0 {
		return fmt.Errorf("%w: journal retention must not be negative", ErrInvalidConfig)
	}
	if c.Journal.Timezone != "" {
		if _, err := time.LoadLocation(c.Journal.Timezone); err != nil {
			return fmt.Errorf("%w: unknown journal timezone %q", ErrInvalidConfig, c.Journal.Timezone)
		}
	}
	return nil
}

// LockOptions converts the lock section into controller options
func (c *Config) LockOptions() lockctl.Options {
	return lockctl.Options{
		TickPeriod:       c.Lock.TickPeriod,
		WarningThreshold: c.Lock.WarningThreshold,
		RecheckDelay:     c.Lock.RecheckDelay,
		DriftCorrection:  c.Lock.DriftCorrection,
		PromptOnResume:   c.Lock.PromptOnResume,
		DefaultSelection: lockctl.SelectedDuration{
			Hours:   c.Lock.DefaultHours,
			Minutes: c.Lock.DefaultMinutes,
		},
	}
}

// Load reads configuration from a JSON file. Environment variables override file values.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, ErrConfigFileNotFound
		}
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return unmarshal(v)
}

// LoadFromEnv loads configuration from defaults and NOSLEEP_* environment variables
func LoadFromEnv() (*Config, error) {
	return unmarshal(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("NOSLEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// AutomaticEnv only resolves keys viper already knows about; bind the
	// ones without defaults explicitly.
	_ = v.BindEnv("api.api_key")
	_ = v.BindEnv("journal.path")
	_ = v.BindEnv("logging.path")
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8765)
	v.SetDefault("journal.timezone", "UTC")
	v.SetDefault("journal.retention", 30*24*time.Hour)
	v.SetDefault("lock.warning_threshold", lockctl.DefaultWarningThreshold)
	v.SetDefault("lock.tick_period", lockctl.DefaultTickPeriod)
	v.SetDefault("lock.recheck_delay", lockctl.DefaultRecheckDelay)
	v.SetDefault("lock.drift_correction", false)
	v.SetDefault("lock.prompt_on_resume", false)
	v.SetDefault("lock.default_hours", lockctl.DefaultSelection.Hours)
	v.SetDefault("lock.default_minutes", lockctl.DefaultSelection.Minutes)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("simulate", false)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
