// Package config provides configuration management for Loquat using Viper:
// layered YAML plus environment variable overrides, validated once at
// startup.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultWebPort             = 8080
	defaultShutdownTimeout     = 5 * time.Second
	defaultHotReloadPlugins    = 5 * time.Second
	defaultHotReloadAdapters   = 10 * time.Second
	defaultReloadHistoryCap    = 100
	defaultLRUTrackerCapacity  = 1000
	defaultChannelIdleTTL      = 30 * time.Minute
	defaultIterationCap        = 64
	defaultReloadRetryAttempts = 3
)

// Config holds all configuration for the application.
type Config struct {
	General      GeneralConfig      `mapstructure:"general"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Plugins      ArtifactConfig     `mapstructure:"plugins"`
	Adapters     ArtifactConfig     `mapstructure:"adapters"`
	Web          WebConfig          `mapstructure:"web"`
	Shutdown     ShutdownConfig     `mapstructure:"shutdown"`
	Housekeeping HousekeepingConfig `mapstructure:"housekeeping"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
}

// GeneralConfig holds environment identity.
type GeneralConfig struct {
	Environment string `mapstructure:"environment"` // dev, test, prod
	Name        string `mapstructure:"name"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	Output     string `mapstructure:"output"` // console, file, combined
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
	FilePath   string `mapstructure:"file_path"`
}

// ArtifactConfig is the shared shape of the plugins and adapters sections:
// discovery directory, hot-reload cadence, and load filters.
type ArtifactConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	AutoLoad          bool     `mapstructure:"auto_load"`
	EnableHotReload   bool     `mapstructure:"enable_hot_reload"`
	HotReloadInterval Duration `mapstructure:"hot_reload_interval"`
	Directory         string   `mapstructure:"directory"`
	Whitelist         []string `mapstructure:"whitelist"`
	Blacklist         []string `mapstructure:"blacklist"`
}

// WebConfig holds the HTTP management surface configuration.
type WebConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	EnableCORS bool   `mapstructure:"enable_cors"`
}

// ShutdownConfig holds the Shutdown Coordinator's per-stage policy.
type ShutdownConfig struct {
	StageTimeout Duration          `mapstructure:"stage_timeout"`
	StagePolicy  map[string]string `mapstructure:"stage_policy"` // stage -> ContinueOnError|AbortOnError
}

// HousekeepingConfig holds the channel-eviction and stats-log scheduler.
type HousekeepingConfig struct {
	ChannelEvictionCron  string   `mapstructure:"channel_eviction_cron"`
	ChannelIdleTTL       Duration `mapstructure:"channel_idle_ttl"`
	StatsLogCron         string   `mapstructure:"stats_log_cron"`
	ReloadHistoryMax     int      `mapstructure:"reload_history_max"`
	LRUTrackerCapacity   int      `mapstructure:"lru_tracker_capacity"`
}

// PipelineConfig tunes the pipeline engine's defensive bounds.
type PipelineConfig struct {
	IterationCap        int      `mapstructure:"iteration_cap"`
	AutoRoute           bool     `mapstructure:"auto_route"`
	AutoCreateChannels  bool     `mapstructure:"auto_create_channels"`
	ReloadRetryAttempts int      `mapstructure:"reload_retry_attempts"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with LOQUAT_, using underscores for nesting, e.g.
// LOQUAT_WEB_PORT=8080. flags, if non-nil, is bound on top so that
// explicitly-set CLI flags win over everything else.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/loquat")
		v.AddConfigPath("$HOME/.loquat")
	}

	v.SetEnvPrefix("LOQUAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars.
	}

	if err := bindFlags(v, flags); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
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

// bindFlags binds the CLI's logging overrides onto v so an explicitly-set
// --log-level/--log-format flag takes precedence over file and env
// configuration. A flag that was never set on the command line is left
// for the config file/env/default chain to resolve.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for key, name := range map[string]string{
		"logging.level":  "log-level",
		"logging.format": "log-format",
	} {
		if flag := flags.Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return fmt.Errorf("binding flag %q to %q: %w", name, key, err)
			}
		}
	}
	return nil
}

// SetDefaults configures default values for all configuration options. It
// must run before the config file is read so file/env values win.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("general.environment", "dev")
	v.SetDefault("general.name", "loquat")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "console")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	for _, section := range []string{"plugins", "adapters"} {
		v.SetDefault(section+".enabled", true)
		v.SetDefault(section+".auto_load", true)
		v.SetDefault(section+".enable_hot_reload", true)
		v.SetDefault(section+".whitelist", []string{})
		v.SetDefault(section+".blacklist", []string{})
	}
	v.SetDefault("plugins.directory", "./plugins")
	v.SetDefault("plugins.hot_reload_interval", Duration(defaultHotReloadPlugins))
	v.SetDefault("adapters.directory", "./adapters")
	v.SetDefault("adapters.hot_reload_interval", Duration(defaultHotReloadAdapters))

	v.SetDefault("web.enabled", true)
	v.SetDefault("web.host", "0.0.0.0")
	v.SetDefault("web.port", defaultWebPort)
	v.SetDefault("web.enable_cors", true)

	v.SetDefault("shutdown.stage_timeout", Duration(defaultShutdownTimeout))
	v.SetDefault("shutdown.stage_policy", map[string]string{})

	v.SetDefault("housekeeping.channel_eviction_cron", "@every 5m")
	v.SetDefault("housekeeping.channel_idle_ttl", Duration(defaultChannelIdleTTL))
	v.SetDefault("housekeeping.stats_log_cron", "@every 1m")
	v.SetDefault("housekeeping.reload_history_max", defaultReloadHistoryCap)
	v.SetDefault("housekeeping.lru_tracker_capacity", defaultLRUTrackerCapacity)

	v.SetDefault("pipeline.iteration_cap", defaultIterationCap)
	v.SetDefault("pipeline.auto_route", true)
	v.SetDefault("pipeline.auto_create_channels", true)
	v.SetDefault("pipeline.reload_retry_attempts", defaultReloadRetryAttempts)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{"dev": true, "test": true, "prod": true}
	if !validEnvs[c.General.Environment] {
		return fmt.Errorf("general.environment must be one of: dev, test, prod")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	validOutputs := map[string]bool{"console": true, "file": true, "combined": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("logging.output must be one of: console, file, combined")
	}

	const maxPort = 65535
	if c.Web.Enabled && (c.Web.Port < 1 || c.Web.Port > maxPort) {
		return fmt.Errorf("web.port must be between 1 and %d", maxPort)
	}

	for stage, policy := range c.Shutdown.StagePolicy {
		if policy != "ContinueOnError" && policy != "AbortOnError" {
			return fmt.Errorf("shutdown.stage_policy[%s] must be ContinueOnError or AbortOnError", stage)
		}
	}
	if c.Shutdown.StageTimeout.Duration() <= 0 {
		return fmt.Errorf("shutdown.stage_timeout must be positive")
	}

	if c.Pipeline.IterationCap < 1 {
		return fmt.Errorf("pipeline.iteration_cap must be at least 1")
	}

	return nil
}

// Address returns the web surface's listen address in host:port form.
func (c *WebConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
