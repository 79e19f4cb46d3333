// Package config provides configuration loading and validation for odieux.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort       = 8080
	defaultServerTimeout    = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultFetcherTimeout   = 30 * time.Second
	defaultSimpleTimeout    = 10 * time.Second
	defaultRetryAttempts    = 20
	defaultRetryDelay       = 250 * time.Millisecond
	defaultChannelCapacity  = 3
	defaultThrottleReserve  = 1024 * 1024 // 1MB
	defaultVolumeDivisor    = 4.0
	defaultLiveSleepDivisor = 2
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Player   PlayerConfig   `mapstructure:"player"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP command-server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	StaticDir       string        `mapstructure:"static_dir"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// FetcherConfig holds HTTP fetcher configuration for playlists, keys, and segments.
type FetcherConfig struct {
	// Timeout is the per-attempt timeout used by the on-demand fetcher.
	Timeout time.Duration `mapstructure:"timeout"`
	// SimpleTimeout is the single-attempt timeout used by the simple fetcher
	// (catalog lookups).
	SimpleTimeout time.Duration `mapstructure:"simple_timeout"`
	// RetryAttempts is the maximum number of attempts for the on-demand fetcher.
	RetryAttempts int `mapstructure:"retry_attempts"`
	// RetryDelay is the fixed delay between attempts.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// PipelineConfig holds segment pipeline configuration.
type PipelineConfig struct {
	// ChannelCapacity is the bounded SPSC channel capacity between producer and consumer.
	ChannelCapacity int `mapstructure:"channel_capacity"`
	// ThrottleReserve bounds unread-ahead bytes in throttled-download mode.
	ThrottleReserve ByteSize `mapstructure:"throttle_reserve"`
	// LiveOrigins is a list of URL prefixes treated as known live-stream origins.
	LiveOrigins []string `mapstructure:"live_origins"`
	// LiveSleepDivisor divides the target duration to compute the live poll interval.
	LiveSleepDivisor int `mapstructure:"live_sleep_divisor"`
}

// PlayerConfig holds player-core configuration.
type PlayerConfig struct {
	// VolumeDivisor scales the 0-100 volume command into the sink's expected range.
	VolumeDivisor float64 `mapstructure:"volume_divisor"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with ODIEUX_ and use underscores for nesting.
// Example: ODIEUX_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/odieux")
		v.AddConfigPath("$HOME/.odieux")
	}

	v.SetEnvPrefix("ODIEUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.static_dir", "./static")
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.idle_timeout", defaultIdleTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("fetcher.timeout", defaultFetcherTimeout)
	v.SetDefault("fetcher.simple_timeout", defaultSimpleTimeout)
	v.SetDefault("fetcher.retry_attempts", defaultRetryAttempts)
	v.SetDefault("fetcher.retry_delay", defaultRetryDelay)

	v.SetDefault("pipeline.channel_capacity", defaultChannelCapacity)
	v.SetDefault("pipeline.throttle_reserve", defaultThrottleReserve)
	v.SetDefault("pipeline.live_origins", []string{})
	v.SetDefault("pipeline.live_sleep_divisor", defaultLiveSleepDivisor)

	v.SetDefault("player.volume_divisor", defaultVolumeDivisor)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Fetcher.RetryAttempts < 0 {
		return fmt.Errorf("fetcher.retry_attempts must be non-negative")
	}
	if c.Pipeline.ChannelCapacity < 1 {
		return fmt.Errorf("pipeline.channel_capacity must be at least 1")
	}
	if c.Player.VolumeDivisor <= 0 {
		return fmt.Errorf("player.volume_divisor must be positive")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
