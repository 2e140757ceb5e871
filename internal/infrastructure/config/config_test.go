package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTempConfig writes YAML content to a temp file and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

const validYAML = `
site:
  id: "test-site"
  name: "Test"
nikobus:
  connection: "tcp://10.0.0.5:9999"
dispatch:
  signal_repeat: 3
  ack_timeout_ms: 2000
  burst_delay_ms: 300
  sequential_delay_ms: 500
  max_retries: 2
  use_burst_queue: true
covers:
  - name: "Living room"
    up_code: "A1B2C3"
    down_code: "D4E5F6"
    stop_code: "0A1B2C"
    travel_up_time: 25.0
    travel_down_time: 22.0
    area: "Living"
database:
  path: "./test.db"
mqtt:
  broker:
    host: "broker.local"
    port: 1883
`

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, validYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Nikobus.Connection != "tcp://10.0.0.5:9999" {
		t.Errorf("Nikobus.Connection = %q, want tcp://10.0.0.5:9999", cfg.Nikobus.Connection)
	}
	if cfg.Dispatch.RepeatCount() != 3 {
		t.Errorf("Dispatch.RepeatCount() = %d, want 3", cfg.Dispatch.RepeatCount())
	}
	if !cfg.Dispatch.UseBurstQueue {
		t.Error("Dispatch.UseBurstQueue = false, want true")
	}
	if len(cfg.Covers) != 1 {
		t.Fatalf("len(Covers) = %d, want 1", len(cfg.Covers))
	}
	if cfg.Covers[0].UpCode != "A1B2C3" {
		t.Errorf("Covers[0].UpCode = %q, want A1B2C3", cfg.Covers[0].UpCode)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeTempConfig(t, `
nikobus:
  connection: "tcp://localhost:9999"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Dispatch.RepeatCount() != 1 {
		t.Errorf("default RepeatCount() = %d, want 1", cfg.Dispatch.RepeatCount())
	}
	if cfg.Dispatch.AckTimeoutMS != 2000 {
		t.Errorf("default AckTimeoutMS = %d, want 2000", cfg.Dispatch.AckTimeoutMS)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("default MQTT port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default logging level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "covers: [not: valid: yaml")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, validYAML)

	t.Setenv("NIKOBUS_CONNECTION", "unix:///run/nikobus")
	t.Setenv("NIKOBUS_MQTT_PASSWORD", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Nikobus.Connection != "unix:///run/nikobus" {
		t.Errorf("env override not applied, Connection = %q", cfg.Nikobus.Connection)
	}
	if cfg.MQTT.Auth.Password != "secret" {
		t.Errorf("env override not applied, Password = %q", cfg.MQTT.Auth.Password)
	}
}

func TestValidateCoverCodes(t *testing.T) {
	tests := []struct {
		name    string
		cover   CoverConfig
		wantErr string
	}{
		{
			name:  "valid",
			cover: CoverConfig{UpCode: "A1B2C3", DownCode: "D4E5F6", StopCode: "0A1B2C"},
		},
		{
			name:    "short up code",
			cover:   CoverConfig{UpCode: "A1B", DownCode: "D4E5F6", StopCode: "0A1B2C"},
			wantErr: "up_code",
		},
		{
			name:    "non-hex down code",
			cover:   CoverConfig{UpCode: "A1B2C3", DownCode: "ZZZZZZ", StopCode: "0A1B2C"},
			wantErr: "down_code",
		},
		{
			name:    "bad as_switch",
			cover:   CoverConfig{UpCode: "A1B2C3", DownCode: "D4E5F6", StopCode: "0A1B2C", AsSwitch: "sideways"},
			wantErr: "as_switch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cover.validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDelayOrdering(t *testing.T) {
	path := writeTempConfig(t, `
nikobus:
  connection: "tcp://localhost:9999"
dispatch:
  burst_delay_ms: 800
  sequential_delay_ms: 500
`)

	if _, err := Load(path); err == nil {
		t.Error("Load() expected error when burst delay exceeds sequential delay")
	}
}

func TestRepeatCountClamp(t *testing.T) {
	tests := []struct {
		name   string
		repeat any
		want   int
	}{
		{"positive", 3, 3},
		{"one", 1, 1},
		{"zero", 0, 1},
		{"negative", -5, 1},
		{"float truncates", 2.9, 2},
		{"numeric string", "4", 4},
		{"garbage string", "lots", 1},
		{"unset", nil, 1},
		{"excessive", 1000000, MaxSignalRepeat},
		{"excessive string", "999999", MaxSignalRepeat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DispatchConfig{SignalRepeat: tt.repeat}
			if got := cfg.RepeatCount(); got != tt.want {
				t.Errorf("RepeatCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLoadMalformedSignalRepeat(t *testing.T) {
	// A garbage signal_repeat must not abort startup; it degrades to a
	// single send.
	path := writeTempConfig(t, `
nikobus:
  connection: "tcp://localhost:9999"
dispatch:
  signal_repeat: banana
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := cfg.Dispatch.RepeatCount(); got != 1 {
		t.Errorf("RepeatCount() = %d, want 1 for malformed value", got)
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := DispatchConfig{
		AckTimeoutMS:      2000,
		BurstDelayMS:      300,
		SequentialDelayMS: 500,
	}

	if got := cfg.GetAckTimeout(); got != 2*time.Second {
		t.Errorf("GetAckTimeout() = %v, want 2s", got)
	}
	if got := cfg.GetBurstDelay(); got != 300*time.Millisecond {
		t.Errorf("GetBurstDelay() = %v, want 300ms", got)
	}
	if got := cfg.GetSequentialDelay(); got != 500*time.Millisecond {
		t.Errorf("GetSequentialDelay() = %v, want 500ms", got)
	}
}

func TestIsHexCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"A1B2C3", true},
		{"a1b2c3", true},
		{"000000", true},
		{"", false},
		{"A1B2C", false},
		{"A1B2C3D", false},
		{"G1B2C3", false},
	}

	for _, tt := range tests {
		if got := IsHexCode(tt.code); got != tt.want {
			t.Errorf("IsHexCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
