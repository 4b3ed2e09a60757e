// Package config loads the root YAML configuration. Every tunable is
// explicit here and threaded into constructors; nothing reads ambient
// state at runtime.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kulu-io/kulu/checks"
	"github.com/kulu-io/kulu/collector"
	"github.com/kulu-io/kulu/gateway"
	"github.com/kulu-io/kulu/providers"
)

// Duration parses YAML values like "5s" or "2m" via time.ParseDuration
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration
type Config struct {
	Version  string    `yaml:"version"`
	Provider string    `yaml:"provider"`
	Accounts []Account `yaml:"accounts"`
	Kinds    []string  `yaml:"kinds,omitempty"`

	Storage   StorageConfig   `yaml:"storage,omitempty"`
	Collector CollectorConfig `yaml:"collector,omitempty"`
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Checks    ChecksConfig    `yaml:"checks,omitempty"`
	Retention RetentionConfig `yaml:"retention,omitempty"`
	Daemon    DaemonConfig    `yaml:"daemon,omitempty"`
	OTEL      OTELConfig      `yaml:"otel,omitempty"`

	LogLevel string `yaml:"log_level,omitempty"`
}

// Account identifies one cloud account to collect from
type Account struct {
	ID      string `yaml:"id"`
	Region  string `yaml:"region"`
	Profile string `yaml:"profile,omitempty"`
}

// StorageConfig locates the embedded database
type StorageConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// CollectorConfig tunes the collection orchestrator
type CollectorConfig struct {
	Workers        int      `yaml:"workers,omitempty"`
	BatchSize      int      `yaml:"batch_size,omitempty"`
	FlushInterval  Duration `yaml:"flush_interval,omitempty"`
	RetryAttempts  int      `yaml:"retry_attempts,omitempty"`
	RetryBaseDelay Duration `yaml:"retry_base_delay,omitempty"`
	UnitTimeout    Duration `yaml:"unit_timeout,omitempty"`
	Window         Duration `yaml:"window,omitempty"`
	Step           Duration `yaml:"step,omitempty"`
}

// GatewayConfig tunes the provider-facing rate ceilings
type GatewayConfig struct {
	RequestsPerSecond float64  `yaml:"requests_per_second,omitempty"`
	Burst             int      `yaml:"burst,omitempty"`
	MaxInFlight       int64    `yaml:"max_in_flight,omitempty"`
	RetryAttempts     int      `yaml:"retry_attempts,omitempty"`
	RetryBaseDelay    Duration `yaml:"retry_base_delay,omitempty"`
	RetryMaxDelay     Duration `yaml:"retry_max_delay,omitempty"`
}

// ChecksConfig tunes the evaluation thresholds
type ChecksConfig struct {
	MetricsWindowDays       int     `yaml:"metrics_window_days,omitempty"`
	UnattachedVolumeDays    int     `yaml:"unattached_volume_days,omitempty"`
	IdleCPUPercent          float64 `yaml:"idle_cpu_percent,omitempty"`
	IdleNetworkBytes        float64 `yaml:"idle_network_bytes,omitempty"`
	OversizedCPUPercent     float64 `yaml:"oversized_cpu_percent,omitempty"`
	SnapshotAgeDays         int     `yaml:"snapshot_age_days,omitempty"`
	IdleDatabaseConnections float64 `yaml:"idle_database_connections,omitempty"`
	HighMonthlySavings      float64 `yaml:"high_monthly_savings,omitempty"`
	CriticalMonthlySavings  float64 `yaml:"critical_monthly_savings,omitempty"`
}

// RetentionConfig bounds how long samples are kept
type RetentionConfig struct {
	Days int `yaml:"days,omitempty"`
}

// DaemonConfig tunes the periodic collection loop
type DaemonConfig struct {
	Interval   Duration `yaml:"interval,omitempty"`
	ListenAddr string   `yaml:"listen_addr,omitempty"`
}

// OTELConfig configures telemetry export
type OTELConfig struct {
	Endpoint    string `yaml:"endpoint,omitempty"`
	Insecure    bool   `yaml:"insecure,omitempty"`
	Environment string `yaml:"environment,omitempty"`
}

// Load reads, defaults and validates a config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyDefaults fills unset fields with production defaults
func (c *Config) applyDefaults() {
	if c.Storage.Dir == "" {
		c.Storage.Dir = "./data"
	}
	if c.Retention.Days <= 0 {
		c.Retention.Days = 30
	}
	if c.Daemon.Interval <= 0 {
		c.Daemon.Interval = Duration(time.Hour)
	}
	if c.Daemon.ListenAddr == "" {
		c.Daemon.ListenAddr = ":9090"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate ensures config has required fields
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	for i, account := range c.Accounts {
		if account.ID == "" {
			return fmt.Errorf("account %d: id is required", i)
		}
		if account.Region == "" {
			return fmt.Errorf("account %s: region is required", account.ID)
		}
	}
	if c.Retention.Days < 0 {
		return fmt.Errorf("retention days must not be negative")
	}
	return nil
}

// ProviderAccounts converts configured accounts to the provider type
func (c *Config) ProviderAccounts() []providers.Account {
	accounts := make([]providers.Account, len(c.Accounts))
	for i, a := range c.Accounts {
		accounts[i] = providers.Account{ID: a.ID, Region: a.Region, Profile: a.Profile}
	}
	return accounts
}

// CollectorConfig maps config onto the collector's own config type.
// Zero fields stay zero; the collector applies its defaults.
func (c *Config) CollectorConfig() collector.Config {
	return collector.Config{
		Kinds:          c.Kinds,
		Workers:        c.Collector.Workers,
		BatchSize:      c.Collector.BatchSize,
		FlushInterval:  c.Collector.FlushInterval.Std(),
		RetryAttempts:  c.Collector.RetryAttempts,
		RetryBaseDelay: c.Collector.RetryBaseDelay.Std(),
		UnitTimeout:    c.Collector.UnitTimeout.Std(),
		Window:         c.Collector.Window.Std(),
		Step:           c.Collector.Step.Std(),
	}
}

// GatewayConfig maps config onto the gateway's config type
func (c *Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		RequestsPerSecond: c.Gateway.RequestsPerSecond,
		Burst:             c.Gateway.Burst,
		MaxInFlight:       c.Gateway.MaxInFlight,
		RetryAttempts:     c.Gateway.RetryAttempts,
		RetryBaseDelay:    c.Gateway.RetryBaseDelay.Std(),
		RetryMaxDelay:     c.Gateway.RetryMaxDelay.Std(),
	}
}

// Thresholds maps the checks section onto the engine's thresholds,
// falling back to the stock model per field
func (c *Config) Thresholds() checks.Thresholds {
	t := checks.DefaultThresholds()
	if c.Checks.MetricsWindowDays > 0 {
		t.MetricsWindowDays = c.Checks.MetricsWindowDays
	}
	if c.Checks.UnattachedVolumeDays > 0 {
		t.UnattachedVolumeDays = c.Checks.UnattachedVolumeDays
	}
	if c.Checks.IdleCPUPercent > 0 {
		t.IdleCPUPercent = c.Checks.IdleCPUPercent
	}
	if c.Checks.IdleNetworkBytes > 0 {
		t.IdleNetworkBytes = c.Checks.IdleNetworkBytes
	}
	if c.Checks.OversizedCPUPercent > 0 {
		t.OversizedCPUPercent = c.Checks.OversizedCPUPercent
	}
	if c.Checks.SnapshotAgeDays > 0 {
		t.SnapshotAgeDays = c.Checks.SnapshotAgeDays
	}
	if c.Checks.IdleDatabaseConnections > 0 {
		t.IdleDatabaseConnections = c.Checks.IdleDatabaseConnections
	}
	if c.Checks.HighMonthlySavings > 0 {
		t.HighMonthlySavings = c.Checks.HighMonthlySavings
	}
	if c.Checks.CriticalMonthlySavings > 0 {
		t.CriticalMonthlySavings = c.Checks.CriticalMonthlySavings
	}
	return t
}
