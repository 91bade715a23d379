package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Automation AutomationConfig `mapstructure:"automation" yaml:"automation"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler" yaml:"scheduler"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the Chromium instance driven over CDP.
type BrowserConfig struct {
	// ShowWindow runs the browser headed. Headless Chromium is more readily
	// flagged as automated by the platform, so headed mode is a first-class
	// option, not a debug toggle.
	ShowWindow bool     `mapstructure:"show_window" yaml:"show_window"`
	ExecPath   string   `mapstructure:"exec_path" yaml:"exec_path"`
	Args       []string `mapstructure:"args" yaml:"args"`
	// Mobile persona. The platform's anti-automation heuristics are weaker
	// on the recognized mobile layout.
	ViewportWidth  int    `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int    `mapstructure:"viewport_height" yaml:"viewport_height"`
	UserAgent      string `mapstructure:"user_agent" yaml:"user_agent"`

	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	SelectorTimeout   time.Duration `mapstructure:"selector_timeout" yaml:"selector_timeout"`
}

// AutomationConfig tunes the engagement orchestrator.
type AutomationConfig struct {
	MinDelay         time.Duration `mapstructure:"min_delay" yaml:"min_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	MaxScrollRounds  int           `mapstructure:"max_scroll_rounds" yaml:"max_scroll_rounds"`
	ActionsPerMinute int           `mapstructure:"actions_per_minute" yaml:"actions_per_minute"`
	RetryInterval    time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
	RetryAttempts    int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryStrategy    string        `mapstructure:"retry_strategy" yaml:"retry_strategy"`
}

// SchedulerConfig configures the scheduled-post processor.
type SchedulerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "tmgkfl")
	v.SetDefault("logger.log_file", "tmgkfl.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.show_window", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.viewport_width", 393)
	v.SetDefault("browser.viewport_height", 852)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.selector_timeout", "30s")

	// -- Automation --
	v.SetDefault("automation.min_delay", "3s")
	v.SetDefault("automation.max_delay", "10s")
	v.SetDefault("automation.max_scroll_rounds", 5)
	v.SetDefault("automation.actions_per_minute", 20)
	v.SetDefault("automation.retry_interval", "1s")
	v.SetDefault("automation.retry_attempts", 3)
	v.SetDefault("automation.retry_strategy", "linear")

	// -- Scheduler --
	v.SetDefault("scheduler.poll_interval", "10s")

	// -- Database --
	v.SetDefault("database.path", "tmgkfl.db")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser.viewport_width and browser.viewport_height must be positive")
	}
	if c.Automation.MinDelay <= 0 || c.Automation.MaxDelay < c.Automation.MinDelay {
		return fmt.Errorf("automation delays must satisfy 0 < min_delay <= max_delay")
	}
	if c.Automation.MaxScrollRounds <= 0 {
		return fmt.Errorf("automation.max_scroll_rounds must be a positive integer")
	}
	if c.Automation.ActionsPerMinute <= 0 {
		return fmt.Errorf("automation.actions_per_minute must be a positive integer")
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler.poll_interval must be a positive duration")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is a required configuration field")
	}
	switch c.Automation.RetryStrategy {
	case "none", "linear", "exponential":
	default:
		return fmt.Errorf("automation.retry_strategy must be one of none, linear, exponential")
	}
	return nil
}
