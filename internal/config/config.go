// Package config provides configuration parsing and validation for echoprobe.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/probeworks/echoprobe/internal/resolve"
)

// Config represents the complete echoprobe configuration.
type Config struct {
	Probe  ProbeConfig  `yaml:"probe"`
	Log    LogConfig    `yaml:"log"`
	Health HealthConfig `yaml:"health"`
}

// ProbeConfig contains probing session settings.
type ProbeConfig struct {
	// Interval between periodic echo requests.
	Interval time.Duration `yaml:"interval"`

	// Timeout after which an unanswered request is retired.
	Timeout time.Duration `yaml:"timeout"`

	// PayloadSize is the echo payload length in bytes.
	PayloadSize int `yaml:"payload_size"`

	// Privileged selects raw ICMP sockets instead of datagram sockets.
	Privileged bool `yaml:"privileged"`

	// AddressFamily restricts resolution: any, ipv4, ipv6.
	AddressFamily string `yaml:"address_family"`

	// ResolveTimeout bounds hostname resolution.
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// HealthConfig contains the health/metrics HTTP listener settings.
type HealthConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Probe: ProbeConfig{
			Interval:       time.Second,
			Timeout:        5 * time.Second,
			PayloadSize:    56,
			Privileged:     false,
			AddressFamily:  "any",
			ResolveTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Health: HealthConfig{
			Enabled:      false,
			Address:      ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		// Handle default values: ${VAR:-default}
		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // Keep original if not found
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Probe.Interval < 0 {
		errs = append(errs, "probe.interval must not be negative")
	}
	if c.Probe.Timeout <= 0 {
		errs = append(errs, "probe.timeout must be positive")
	}
	if c.Probe.PayloadSize < 0 {
		errs = append(errs, "probe.payload_size must not be negative")
	}
	if c.Probe.PayloadSize > 65507 {
		errs = append(errs, fmt.Sprintf("probe.payload_size too large: %d", c.Probe.PayloadSize))
	}
	if _, err := resolve.ParseAddressStyle(c.Probe.AddressFamily); err != nil {
		errs = append(errs, fmt.Sprintf("invalid probe.address_family: %s (must be any, ipv4, or ipv6)", c.Probe.AddressFamily))
	}
	if c.Probe.ResolveTimeout <= 0 {
		errs = append(errs, "probe.resolve_timeout must be positive")
	}

	if !isValidLogLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !isValidLogFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log.format: %s (must be text or json)", c.Log.Format))
	}

	if c.Health.Enabled && c.Health.Address == "" {
		errs = append(errs, "health.address is required when health.enabled is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// AddressStyle returns the parsed address-family preference.
func (c *Config) AddressStyle() resolve.AddressStyle {
	style, err := resolve.ParseAddressStyle(c.Probe.AddressFamily)
	if err != nil {
		return resolve.StyleAny
	}
	return style
}

func isValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

func isValidLogFormat(format string) bool {
	switch strings.ToLower(format) {
	case "text", "json":
		return true
	}
	return false
}
