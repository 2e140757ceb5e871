// Package influxdb provides delivery telemetry for Nikobus Core.
//
// Every completed command delivery operation is recorded as a point in
// InfluxDB: how many transmission attempts it took, whether the bus
// acknowledged it, and the submit-to-outcome latency. Button press events
// and PC-Link connection statistics are recorded as well.
//
// Writes are non-blocking and batched; a failed InfluxDB connection never
// delays or blocks command delivery. The package is optional - when
// disabled in config, Connect returns ErrDisabled and callers run without
// telemetry.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.WriteCommandMetric("15FF2A", "mqtt", 1, true, latency)
package influxdb
