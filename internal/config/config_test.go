package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/probeworks/echoprobe/internal/resolve"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Probe.Interval != time.Second {
		t.Errorf("Interval = %v, want 1s", cfg.Probe.Interval)
	}
	if cfg.Probe.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Probe.Timeout)
	}
	if cfg.Probe.PayloadSize != 56 {
		t.Errorf("PayloadSize = %d, want 56", cfg.Probe.PayloadSize)
	}
	if cfg.Probe.AddressFamily != "any" {
		t.Errorf("AddressFamily = %q, want any", cfg.Probe.AddressFamily)
	}
	if cfg.Probe.Privileged {
		t.Error("Privileged should default to false")
	}
	if cfg.Health.Enabled {
		t.Error("Health should default to disabled")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestParse_Overrides(t *testing.T) {
	data := []byte(`
probe:
  interval: 250ms
  timeout: 2s
  payload_size: 16
  privileged: true
  address_family: ipv6
log:
  level: debug
  format: json
health:
  enabled: true
  address: "127.0.0.1:9100"
`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Probe.Interval != 250*time.Millisecond {
		t.Errorf("Interval = %v, want 250ms", cfg.Probe.Interval)
	}
	if cfg.Probe.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", cfg.Probe.Timeout)
	}
	if cfg.Probe.PayloadSize != 16 {
		t.Errorf("PayloadSize = %d, want 16", cfg.Probe.PayloadSize)
	}
	if !cfg.Probe.Privileged {
		t.Error("Privileged = false, want true")
	}
	if cfg.AddressStyle() != resolve.StyleForceIPv6 {
		t.Errorf("AddressStyle = %v, want ipv6", cfg.AddressStyle())
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want debug/json", cfg.Log)
	}
	if !cfg.Health.Enabled || cfg.Health.Address != "127.0.0.1:9100" {
		t.Errorf("Health = %+v", cfg.Health)
	}
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("probe:\n  interval: 3s\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Probe.Interval != 3*time.Second {
		t.Errorf("Interval = %v, want 3s", cfg.Probe.Interval)
	}
	if cfg.Probe.PayloadSize != 56 {
		t.Errorf("PayloadSize = %d, want default 56", cfg.Probe.PayloadSize)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Level = %q, want default info", cfg.Log.Level)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("probe: ["))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative interval", func(c *Config) { c.Probe.Interval = -time.Second }, "probe.interval"},
		{"zero timeout", func(c *Config) { c.Probe.Timeout = 0 }, "probe.timeout"},
		{"negative payload", func(c *Config) { c.Probe.PayloadSize = -1 }, "probe.payload_size"},
		{"oversized payload", func(c *Config) { c.Probe.PayloadSize = 100000 }, "probe.payload_size"},
		{"bad family", func(c *Config) { c.Probe.AddressFamily = "both" }, "address_family"},
		{"zero resolve timeout", func(c *Config) { c.Probe.ResolveTimeout = 0 }, "probe.resolve_timeout"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"health without address", func(c *Config) { c.Health.Enabled = true; c.Health.Address = "" }, "health.address"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("probe:\n  payload_size: 8\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Probe.PayloadSize != 8 {
		t.Errorf("PayloadSize = %d, want 8", cfg.Probe.PayloadSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("ECHOPROBE_TEST_ADDR", "127.0.0.1:9999")

	cfg, err := Parse([]byte("health:\n  enabled: true\n  address: \"${ECHOPROBE_TEST_ADDR}\"\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Health.Address != "127.0.0.1:9999" {
		t.Errorf("Address = %q, want expanded value", cfg.Health.Address)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	cfg, err := Parse([]byte("health:\n  enabled: true\n  address: \"${ECHOPROBE_UNSET_VAR:-:8080}\"\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Health.Address != ":8080" {
		t.Errorf("Address = %q, want fallback :8080", cfg.Health.Address)
	}
}

func TestAddressStyle_Values(t *testing.T) {
	cfg := Default()

	cfg.Probe.AddressFamily = "ipv4"
	if cfg.AddressStyle() != resolve.StyleForceIPv4 {
		t.Errorf("AddressStyle = %v, want ipv4", cfg.AddressStyle())
	}
	cfg.Probe.AddressFamily = "any"
	if cfg.AddressStyle() != resolve.StyleAny {
		t.Errorf("AddressStyle = %v, want any", cfg.AddressStyle())
	}
}
