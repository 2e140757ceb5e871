package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxSignalRepeat bounds the per-submission repeat count. Real
// installations use single-digit repeats; anything larger is a
// misconfiguration or a hostile request, and a huge repeat would make
// one submission monopolise the bus for minutes.
const MaxSignalRepeat = 25

// Config is the root configuration structure for Nikobus Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Nikobus  NikobusConfig  `yaml:"nikobus"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Covers   []CoverConfig  `yaml:"covers"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// NikobusConfig contains PC-Link interface connection settings.
type NikobusConfig struct {
	// Connection is the PC-Link connection URL.
	// Supported formats:
	//   - "tcp://192.168.1.50:9999" (serial-over-IP bridge)
	//   - "unix:///run/nikobus" (local socket relay)
	Connection string `yaml:"connection"`

	// ConnectTimeout is the maximum time to wait for connection (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// ReadTimeout is the timeout for read operations (seconds).
	ReadTimeout int `yaml:"read_timeout"`

	// ReconnectInterval is the initial delay between reconnection attempts (seconds).
	ReconnectInterval int `yaml:"reconnect_interval"`
}

// DispatchConfig contains command delivery and acknowledgment settings.
//
// Roller shutter actuators on the physical bus occasionally miss a single
// transmission, so cover commands can be repeated. The repeat count applies
// per submission; the delay allowances feed the derived acknowledgment
// timeout when the caller does not supply one.
type DispatchConfig struct {
	// SignalRepeat is how many copies of a cover command are sent per
	// submission. Deliberately loosely typed: a malformed value in
	// config.yaml degrades to a single send instead of aborting startup.
	// Read it through RepeatCount.
	SignalRepeat any `yaml:"signal_repeat"`

	// AckTimeoutMS is the base acknowledgment wait in milliseconds.
	AckTimeoutMS int `yaml:"ack_timeout_ms"`

	// BurstDelayMS is the per-repeat allowance (milliseconds) when repeats
	// are submitted as a single burst batch.
	BurstDelayMS int `yaml:"burst_delay_ms"`

	// SequentialDelayMS is the per-repeat allowance (milliseconds) when
	// repeats are submitted as individual queue items. Sequential submission
	// is slower than a burst, so this exceeds BurstDelayMS.
	SequentialDelayMS int `yaml:"sequential_delay_ms"`

	// MaxRetries bounds additional delivery attempts after a timeout.
	MaxRetries int `yaml:"max_retries"`

	// UseBurstQueue submits repeated commands as one batch unit.
	UseBurstQueue bool `yaml:"use_burst_queue"`
}

// CoverConfig defines a roller shutter driven by raw button codes.
// Codes are 6-digit hex button addresses learned from the physical bus.
type CoverConfig struct {
	Name           string  `yaml:"name"`
	UpCode         string  `yaml:"up_code"`
	DownCode       string  `yaml:"down_code"`
	StopCode       string  `yaml:"stop_code"`
	TravelUpTime   float64 `yaml:"travel_up_time"`
	TravelDownTime float64 `yaml:"travel_down_time"`
	AsSwitch       string  `yaml:"as_switch"` // "", "up" or "down"
	Area           string  `yaml:"area"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for delivery telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: NIKOBUS_SECTION_KEY
// For example: NIKOBUS_DATABASE_PATH, NIKOBUS_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Nikobus",
			Timezone: "UTC",
		},
		Nikobus: NikobusConfig{
			Connection:        "tcp://localhost:9999",
			ConnectTimeout:    10,
			ReadTimeout:       30,
			ReconnectInterval: 5,
		},
		Dispatch: DispatchConfig{
			SignalRepeat:      1,
			AckTimeoutMS:      2000,
			BurstDelayMS:      300,
			SequentialDelayMS: 500,
			MaxRetries:        2,
		},
		Database: DatabaseConfig{
			Path:        "./data/nikobus.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "nikobus-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NIKOBUS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NIKOBUS_CONNECTION"); v != "" {
		cfg.Nikobus.Connection = v
	}

	if v := os.Getenv("NIKOBUS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("NIKOBUS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("NIKOBUS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("NIKOBUS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("NIKOBUS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Nikobus.Connection == "" {
		errs = append(errs, "nikobus.connection is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Dispatch.MaxRetries < 0 {
		errs = append(errs, "dispatch.max_retries must not be negative")
	}

	if c.Dispatch.BurstDelayMS > c.Dispatch.SequentialDelayMS {
		errs = append(errs, "dispatch.burst_delay_ms must not exceed dispatch.sequential_delay_ms")
	}

	for i, cover := range c.Covers {
		if err := cover.validate(); err != nil {
			errs = append(errs, fmt.Sprintf("covers[%d]: %v", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validate checks a single cover definition.
func (c *CoverConfig) validate() error {
	if !IsHexCode(c.UpCode) {
		return fmt.Errorf("up_code must be 6 hex digits")
	}
	if !IsHexCode(c.DownCode) {
		return fmt.Errorf("down_code must be 6 hex digits")
	}
	if !IsHexCode(c.StopCode) {
		return fmt.Errorf("stop_code must be 6 hex digits")
	}
	if c.AsSwitch != "" && c.AsSwitch != "up" && c.AsSwitch != "down" {
		return fmt.Errorf("as_switch must be \"up\" or \"down\"")
	}
	return nil
}

// IsHexCode reports whether s is a 6-digit hexadecimal button code.
func IsHexCode(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// RepeatCount returns the effective cover signal repeat count, clamped
// to [1, MaxSignalRepeat]. Misconfigured values (zero, negative,
// non-numeric) degrade to a single send.
func (c *DispatchConfig) RepeatCount() int {
	n := 1
	switch v := c.SignalRepeat.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			n = parsed
		}
	}

	if n < 1 {
		return 1
	}
	if n > MaxSignalRepeat {
		return MaxSignalRepeat
	}
	return n
}

// GetAckTimeout returns the base acknowledgment wait as a Duration.
func (c *DispatchConfig) GetAckTimeout() time.Duration {
	return time.Duration(c.AckTimeoutMS) * time.Millisecond
}

// GetBurstDelay returns the per-repeat burst allowance as a Duration.
func (c *DispatchConfig) GetBurstDelay() time.Duration {
	return time.Duration(c.BurstDelayMS) * time.Millisecond
}

// GetSequentialDelay returns the per-repeat sequential allowance as a Duration.
func (c *DispatchConfig) GetSequentialDelay() time.Duration {
	return time.Duration(c.SequentialDelayMS) * time.Millisecond
}

// GetConnectTimeout returns the PC-Link connect timeout as a Duration.
func (c *NikobusConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// GetReadTimeout returns the PC-Link read timeout as a Duration.
func (c *NikobusConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Second
}

// GetReconnectInterval returns the PC-Link reconnect interval as a Duration.
func (c *NikobusConfig) GetReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectInterval) * time.Second
}
