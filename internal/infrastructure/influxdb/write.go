package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteCommandMetric records the outcome of a command delivery operation.
//
// Called after a Submit completes (acknowledged or timed out). The write is
// non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - command: The 6-char hex command code that was delivered
//   - source: Origin of the request ("mqtt", "button", "internal")
//   - attempts: Total transmission attempts made (1 = no retries)
//   - acknowledged: Whether completion was observed before the deadline
//   - latency: Wall time from submit to outcome
//
// Example:
//
//	client.WriteCommandMetric("15FF2A", "mqtt", 2, true, 740*time.Millisecond)
func (c *Client) WriteCommandMetric(command, source string, attempts int, acknowledged bool, latency time.Duration) {
	if !c.IsConnected() {
		return
	}

	outcome := "timeout"
	if acknowledged {
		outcome = "acknowledged"
	}

	point := write.NewPoint(
		"command_delivery",
		map[string]string{
			"source":  source,
			"outcome": outcome,
		},
		map[string]any{
			"command":    command,
			"attempts":   attempts,
			"latency_ms": latency.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteButtonEvent records a physical button press observed on the bus.
//
// Parameters:
//   - address: The button's bus address
//   - filtered: Whether the press was suppressed by the button filter
func (c *Client) WriteButtonEvent(address string, filtered bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"button_events",
		map[string]string{
			"address": address,
		},
		map[string]any{
			"filtered": filtered,
			"count":    1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteLinkStats records PC-Link connection statistics.
//
// Called periodically by the health reporter to track frame throughput
// and reconnection churn.
//
// Parameters:
//   - framesSent: Total frames written to the bus since startup
//   - framesReceived: Total frames read from the bus since startup
//   - reconnects: Total reconnection attempts since startup
func (c *Client) WriteLinkStats(framesSent, framesReceived, reconnects uint64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"link_stats",
		map[string]string{},
		map[string]any{
			"frames_sent":     framesSent,
			"frames_received": framesReceived,
			"reconnects":      reconnects,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
