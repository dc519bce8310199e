package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/moby/sys/atomicwriter"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/alekspetrov/tunnelsync/internal/health"
	"github.com/alekspetrov/tunnelsync/internal/logging"
	"github.com/alekspetrov/tunnelsync/internal/marker"
	"github.com/alekspetrov/tunnelsync/internal/metrics"
	"github.com/alekspetrov/tunnelsync/internal/reconcile"
	"github.com/alekspetrov/tunnelsync/internal/tunnel"
)

// EnvPrefix is the prefix for environment overrides, e.g. TUNNELSYNC_LOG_PATH.
const EnvPrefix = "TUNNELSYNC"

// Config represents the main configuration
type Config struct {
	Version string            `yaml:"version"`
	Tunnel  *tunnel.Config    `yaml:"tunnel"`
	Probe   *health.Config    `yaml:"probe"`
	Target  *reconcile.Config `yaml:"target"`
	Markers *marker.Config    `yaml:"markers"`
	Logging *logging.Config   `yaml:"logging"`
	Metrics *metrics.Config   `yaml:"metrics"`
	Watch   *WatchConfig      `yaml:"watch"`
}

// WatchConfig holds settings for the long-running watch mode
type WatchConfig struct {
	Schedule  string        `yaml:"schedule"`   // cron spec or descriptor, e.g. "@every 30s"
	FollowLog bool          `yaml:"follow_log"` // Also run when the tunnel log is written
	Debounce  time.Duration `yaml:"debounce"`   // Quiet period after a log write
}

// envOverrides maps TUNNELSYNC_* variables onto the file configuration.
// Zero values mean "not set". split_words derives the names (LogPath ->
// TUNNELSYNC_LOG_PATH) without the unprefixed fallback an explicit
// envconfig tag would add.
type envOverrides struct {
	Provider        string        `split_words:"true"`
	Domain          string        `split_words:"true"`
	LogPath         string        `split_words:"true"`
	TailLines       int           `split_words:"true"`
	ScanAttempts    int           `split_words:"true"`
	TargetPath      string        `split_words:"true"`
	TargetKey       string        `split_words:"true"`
	ChangedMarker   string        `split_words:"true"`
	UnhealthyMarker string        `split_words:"true"`
	ProbeTimeout    time.Duration `split_words:"true"`
	AcceptStatus    []int         `split_words:"true"`
	LogLevel        string        `split_words:"true"`
	LogFile         string        `split_words:"true"`
	MetricsTextfile string        `split_words:"true"`
	Schedule        string        `split_words:"true"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Tunnel:  tunnel.DefaultConfig(),
		Probe:   health.DefaultConfig(),
		Target:  reconcile.DefaultConfig(),
		Markers: marker.DefaultConfig(),
		Logging: logging.DefaultConfig(),
		Metrics: &metrics.Config{},
		Watch: &WatchConfig{
			Schedule:  "@every 30s",
			FollowLog: true,
			Debounce:  500 * time.Millisecond,
		},
	}
}

// Load loads configuration from a file, then applies environment overrides
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Expand environment variables
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
		// Defaults plus environment
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config.fillDefaults()

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	// Expand paths
	config.Tunnel.LogPath = expandPath(config.Tunnel.LogPath)
	config.Target.Path = expandPath(config.Target.Path)
	config.Markers.Changed = expandPath(config.Markers.Changed)
	config.Markers.Unhealthy = expandPath(config.Markers.Unhealthy)
	config.Logging.File = expandPath(config.Logging.File)
	config.Metrics.Textfile = expandPath(config.Metrics.Textfile)

	return config, nil
}

// fillDefaults restores sections a file explicitly set to null.
func (c *Config) fillDefaults() {
	d := DefaultConfig()
	if c.Tunnel == nil {
		c.Tunnel = d.Tunnel
	}
	if c.Probe == nil {
		c.Probe = d.Probe
	}
	if c.Target == nil {
		c.Target = d.Target
	}
	if c.Markers == nil {
		c.Markers = d.Markers
	}
	if c.Logging == nil {
		c.Logging = d.Logging
	}
	if c.Metrics == nil {
		c.Metrics = d.Metrics
	}
	if c.Watch == nil {
		c.Watch = d.Watch
	}
}

// applyEnv overlays TUNNELSYNC_* environment variables
func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	setString(&c.Tunnel.Provider, env.Provider)
	setString(&c.Tunnel.Domain, env.Domain)
	setString(&c.Tunnel.LogPath, env.LogPath)
	if env.TailLines > 0 {
		c.Tunnel.TailLines = env.TailLines
	}
	if env.ScanAttempts > 0 {
		c.Tunnel.ScanAttempts = env.ScanAttempts
	}
	setString(&c.Target.Path, env.TargetPath)
	setString(&c.Target.Key, env.TargetKey)
	setString(&c.Markers.Changed, env.ChangedMarker)
	setString(&c.Markers.Unhealthy, env.UnhealthyMarker)
	if env.ProbeTimeout > 0 {
		c.Probe.Timeout = env.ProbeTimeout
	}
	if len(env.AcceptStatus) > 0 {
		c.Probe.AcceptStatus = env.AcceptStatus
	}
	setString(&c.Logging.Level, env.LogLevel)
	setString(&c.Logging.File, env.LogFile)
	setString(&c.Metrics.Textfile, env.MetricsTextfile)
	setString(&c.Watch.Schedule, env.Schedule)

	return nil
}

// Save saves configuration to a file
func Save(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := atomicwriter.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default configuration path
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".tunnelsync", "config.yaml")
}

// ResolvePath picks the config file: the flag value, then
// TUNNELSYNC_CONFIG_PATH, then DefaultConfigPath.
func ResolvePath(flagPath string) string {
	if flagPath != "" {
		return expandPath(flagPath)
	}

	var env struct {
		ConfigPath string `split_words:"true"`
	}
	if err := envconfig.Process(EnvPrefix, &env); err == nil && env.ConfigPath != "" {
		return expandPath(env.ConfigPath)
	}

	return DefaultConfigPath()
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Tunnel == nil || c.Probe == nil || c.Target == nil || c.Markers == nil {
		return fmt.Errorf("tunnel, probe, target and markers sections are required")
	}

	if c.Tunnel.LogPath == "" {
		return fmt.Errorf("tunnel.log_path is required")
	}
	if c.Tunnel.TailLines < 1 {
		return fmt.Errorf("invalid tunnel.tail_lines: %d", c.Tunnel.TailLines)
	}
	if c.Tunnel.ScanAttempts < 1 {
		return fmt.Errorf("invalid tunnel.scan_attempts: %d", c.Tunnel.ScanAttempts)
	}
	if c.Tunnel.ScanAttempts > 1 && c.Tunnel.ScanInterval <= 0 {
		return fmt.Errorf("tunnel.scan_interval must be positive when rescanning")
	}
	if _, err := tunnel.CompilePattern(c.Tunnel); err != nil {
		return err
	}

	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("invalid probe.timeout: %s", c.Probe.Timeout)
	}
	if err := health.ValidateMethod(c.Probe.Method); err != nil {
		return err
	}
	if c.Probe.MaxStatus < 0 || c.Probe.MaxStatus > 999 {
		return fmt.Errorf("invalid probe.max_status: %d", c.Probe.MaxStatus)
	}
	if c.Probe.MaxStatus == 0 && len(c.Probe.AcceptStatus) == 0 {
		return fmt.Errorf("probe policy accepts no status: set probe.max_status or probe.accept_status")
	}
	for _, code := range c.Probe.AcceptStatus {
		if code < 100 || code > 599 {
			return fmt.Errorf("invalid status in probe.accept_status: %d", code)
		}
	}

	if c.Target.Path == "" {
		return fmt.Errorf("target.path is required")
	}
	if err := reconcile.ValidateKey(c.Target.Key); err != nil {
		return err
	}

	if c.Watch != nil && c.Watch.Schedule != "" {
		if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
			return fmt.Errorf("invalid watch.schedule: %w", err)
		}
	}
	if c.Watch != nil && c.Watch.Debounce < 0 {
		return fmt.Errorf("invalid watch.debounce: %s", c.Watch.Debounce)
	}

	return nil
}
