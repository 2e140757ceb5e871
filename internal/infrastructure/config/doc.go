// Package config loads and validates Nikobus Core configuration.
//
// Configuration is read from a YAML file, layered on top of hardcoded
// defaults, and finally overridden by NIKOBUS_* environment variables.
// Secrets (MQTT credentials, InfluxDB token) should always come from the
// environment rather than the file.
//
// # Sections
//
//   - nikobus: PC-Link interface connection (URL, timeouts, reconnect)
//   - dispatch: command delivery policy (repeat count, ack timeout, retries)
//   - covers: roller shutters driven by raw button codes
//   - database: SQLite command log
//   - mqtt: broker connection
//   - influxdb: optional delivery telemetry
//   - logging: level/format/output
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	timeout := cfg.Dispatch.GetAckTimeout()
package config
