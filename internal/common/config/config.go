// Package config provides configuration management for Host-Elite.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for Host-Elite.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Deploy     DeployConfig     `mapstructure:"deploy"`
	Logs       LogsConfig       `mapstructure:"logs"`
	Docker     DockerConfig     `mapstructure:"docker"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// StorageConfig holds on-disk bot storage configuration.
type StorageConfig struct {
	// Root is the base directory that holds one subdirectory per bot.
	Root string `mapstructure:"root"`

	// MaxFileBytes is the ceiling for file reads and writes through the file API.
	MaxFileBytes int64 `mapstructure:"maxFileBytes"`
}

// SupervisorConfig holds process supervision configuration.
type SupervisorConfig struct {
	// StopTimeout is how long a graceful stop waits before escalating to SIGKILL (seconds).
	StopTimeout int `mapstructure:"stopTimeout"`

	// RestartDelay is the pause between the stop and start halves of a restart (milliseconds).
	RestartDelay int `mapstructure:"restartDelay"`

	// BackoffBase is the initial auto-restart delay (milliseconds).
	BackoffBase int `mapstructure:"backoffBase"`

	// BackoffMax caps the auto-restart delay (milliseconds).
	BackoffMax int `mapstructure:"backoffMax"`

	// CleanRunThreshold is how long a process must survive for its
	// restart counter to reset (seconds).
	CleanRunThreshold int `mapstructure:"cleanRunThreshold"`

	// BasePort and MaxPort bound the deterministic per-bot port range.
	BasePort int `mapstructure:"basePort"`
	MaxPort  int `mapstructure:"maxPort"`
}

// DeployConfig holds deployment pipeline configuration.
type DeployConfig struct {
	// SkipInstallSteps skips dependency-installation build commands when the
	// runtime environment has packages pre-provisioned. The skip is logged
	// into the bot's deployment log.
	SkipInstallSteps bool `mapstructure:"skipInstallSteps"`

	// BuildTimeout bounds build/clone/container-build steps (seconds).
	BuildTimeout int `mapstructure:"buildTimeout"`
}

// LogsConfig holds log aggregator configuration.
type LogsConfig struct {
	// BufferCapacity is the maximum retained lines per bot (oldest dropped first).
	BufferCapacity int `mapstructure:"bufferCapacity"`

	// SubscriberQueue is the per-subscriber delivery queue depth.
	SubscriberQueue int `mapstructure:"subscriberQueue"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	// Enabled controls whether container deployments are available.
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	APIVersion string `mapstructure:"apiVersion"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// StopTimeoutDuration returns the graceful stop escalation timeout as a time.Duration.
func (s *SupervisorConfig) StopTimeoutDuration() time.Duration {
	return time.Duration(s.StopTimeout) * time.Second
}

// RestartDelayDuration returns the restart pause as a time.Duration.
func (s *SupervisorConfig) RestartDelayDuration() time.Duration {
	return time.Duration(s.RestartDelay) * time.Millisecond
}

// BackoffBaseDuration returns the initial auto-restart delay as a time.Duration.
func (s *SupervisorConfig) BackoffBaseDuration() time.Duration {
	return time.Duration(s.BackoffBase) * time.Millisecond
}

// BackoffMaxDuration returns the auto-restart delay cap as a time.Duration.
func (s *SupervisorConfig) BackoffMaxDuration() time.Duration {
	return time.Duration(s.BackoffMax) * time.Millisecond
}

// CleanRunThresholdDuration returns the clean-run threshold as a time.Duration.
func (s *SupervisorConfig) CleanRunThresholdDuration() time.Duration {
	return time.Duration(s.CleanRunThreshold) * time.Second
}

// BuildTimeoutDuration returns the build step bound as a time.Duration.
func (d *DeployConfig) BuildTimeoutDuration() time.Duration {
	return time.Duration(d.BuildTimeout) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("HOSTELITE_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// defaultStorageRoot returns the default base directory for bot storage.
func defaultStorageRoot() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "hostelite", "bots")
	}
	return filepath.Join(homeDir, ".hostelite", "bots")
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Storage defaults
	v.SetDefault("storage.root", defaultStorageRoot())
	v.SetDefault("storage.maxFileBytes", 1024*1024) // 1 MiB

	// Supervisor defaults
	v.SetDefault("supervisor.stopTimeout", 5)
	v.SetDefault("supervisor.restartDelay", 1000)
	v.SetDefault("supervisor.backoffBase", 1000)
	v.SetDefault("supervisor.backoffMax", 60000)
	v.SetDefault("supervisor.cleanRunThreshold", 30)
	v.SetDefault("supervisor.basePort", 20000)
	v.SetDefault("supervisor.maxPort", 29999)

	// Deploy defaults
	v.SetDefault("deploy.skipInstallSteps", false)
	v.SetDefault("deploy.buildTimeout", 600)

	// Logs defaults
	v.SetDefault("logs.bufferCapacity", 1000)
	v.SetDefault("logs.subscriberQueue", 256)

	// Docker defaults
	v.SetDefault("docker.enabled", true)
	v.SetDefault("docker.host", "unix:///var/run/docker.sock")
	v.SetDefault("docker.apiVersion", "")

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "hostelite")
	v.SetDefault("nats.maxReconnects", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix HOSTELITE_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/hostelite/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("HOSTELITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for snake_case env vars (camelCase config keys)
	_ = v.BindEnv("storage.root", "HOSTELITE_STORAGE_ROOT")
	_ = v.BindEnv("deploy.skipInstallSteps", "HOSTELITE_DEPLOY_SKIP_INSTALL_STEPS")
	_ = v.BindEnv("supervisor.basePort", "HOSTELITE_SUPERVISOR_BASE_PORT")
	_ = v.BindEnv("supervisor.maxPort", "HOSTELITE_SUPERVISOR_MAX_PORT")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/hostelite/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Storage.Root == "" {
		errs = append(errs, "storage.root is required")
	}
	if cfg.Storage.MaxFileBytes <= 0 {
		errs = append(errs, "storage.maxFileBytes must be positive")
	}

	if cfg.Supervisor.StopTimeout <= 0 {
		errs = append(errs, "supervisor.stopTimeout must be positive")
	}
	if cfg.Supervisor.BackoffBase <= 0 || cfg.Supervisor.BackoffMax < cfg.Supervisor.BackoffBase {
		errs = append(errs, "supervisor.backoffMax must be >= supervisor.backoffBase > 0")
	}
	if cfg.Supervisor.BasePort <= 0 || cfg.Supervisor.MaxPort > 65535 || cfg.Supervisor.MaxPort < cfg.Supervisor.BasePort {
		errs = append(errs, "supervisor port range must satisfy 0 < basePort <= maxPort <= 65535")
	}

	if cfg.Logs.BufferCapacity <= 0 {
		errs = append(errs, "logs.bufferCapacity must be positive")
	}
	if cfg.Logs.SubscriberQueue <= 0 {
		errs = append(errs, "logs.subscriberQueue must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
