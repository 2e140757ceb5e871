package nikobus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/nikobus-core/internal/infrastructure/mqtt"
)

// defaultHealthInterval is how often the bridge publishes a health report.
const defaultHealthInterval = 30 * time.Second

// MQTTClient is the broker contract the bridge depends on.
// Implemented by an adapter around the infrastructure MQTT client;
// mocked in tests.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Submitter is the delivery contract the bridge feeds commands into.
// Implemented by Dispatcher; mocked in tests.
type Submitter interface {
	Submit(ctx context.Context, command string, opts SubmitOptions) bool
}

// LinkStatus exposes link health to the bridge's health reporter.
// Implemented by PCLink; mocked in tests.
type LinkStatus interface {
	Stats() LinkStats
}

// ButtonTelemetry receives every completed button press for metrics.
// Satisfied by the InfluxDB client. Implementations must not block; the
// write runs on the button monitor's timer goroutine.
type ButtonTelemetry interface {
	WriteButtonEvent(address string, filtered bool)
}

// CommandMessage is the JSON payload accepted on nikobus/command/{target}.
//
// Repeat is deliberately untyped: callers send ints, floats, or strings
// and malformed values degrade to a single transmission.
type CommandMessage struct {
	Command   string `json:"command"`
	Repeat    any    `json:"repeat,omitempty"`
	Wait      bool   `json:"wait,omitempty"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
	Retries   int    `json:"retries,omitempty"`
	Burst     bool   `json:"burst,omitempty"`
}

// ResultMessage is published on nikobus/result/{target} after a waiting
// delivery completes, or immediately for fire-and-forget submissions.
type ResultMessage struct {
	Target    string `json:"target"`
	Command   string `json:"command"`
	Delivered bool   `json:"delivered"`
	Timestamp string `json:"timestamp"`
}

// ButtonEventMessage is published on nikobus/event/button/{address} for
// each completed physical button press.
type ButtonEventMessage struct {
	Address    string `json:"address"`
	DurationMS int64  `json:"duration_ms"`
	Timestamp  string `json:"timestamp"`
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	// QoS for all bridge publishes and subscriptions.
	QoS byte

	// HealthInterval between health reports; <= 0 selects the default.
	HealthInterval time.Duration
}

// Bridge glues the MQTT surface to the command delivery engine: commands
// arriving on nikobus/command/+ are validated, framed, and handed to the
// dispatcher; completed physical button presses are published as events;
// a periodic health report covers the link and delivery counters.
type Bridge struct {
	submitter Submitter
	mqttc     MQTTClient
	link      LinkStatus
	buttons   *ButtonMonitor
	opts      BridgeOptions

	topics mqtt.Topics

	telemetry   ButtonTelemetry
	telemetryMu sync.RWMutex

	closed    *closeOnce
	stopMu    sync.Mutex // guards stopped and orders wg.Add against wg.Wait
	stopped   bool
	wg        sync.WaitGroup
	startTime time.Time

	commandsReceived atomic.Uint64
	commandsInvalid  atomic.Uint64
	buttonEvents     atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a bridge. Call Start to begin processing.
func NewBridge(submitter Submitter, mqttc MQTTClient, link LinkStatus, buttons *ButtonMonitor, opts BridgeOptions, logger Logger) *Bridge {
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = defaultHealthInterval
	}
	return &Bridge{
		submitter: submitter,
		mqttc:     mqttc,
		link:      link,
		buttons:   buttons,
		opts:      opts,
		closed:    newCloseOnce(),
		logger:    logger,
	}
}

// Start subscribes to the command topic, wires button press events, and
// launches the health reporter.
//
// Parameters:
//   - ctx: Context bounding in-flight deliveries; cancelling it aborts
//     waits but does not stop the bridge (use Stop)
//
// Returns:
//   - error: If the command subscription fails
func (b *Bridge) Start(ctx context.Context) error {
	b.startTime = time.Now()

	if err := b.mqttc.Subscribe(b.topics.AllCommands(), b.opts.QoS, func(topic string, payload []byte) error {
		return b.handleCommand(ctx, topic, payload)
	}); err != nil {
		return fmt.Errorf("subscribing to command topic: %w", err)
	}

	if b.buttons != nil {
		b.buttons.SetOnPress(b.handleButtonPress)
	}

	b.wg.Add(1)
	go b.healthLoop()

	b.logInfo("bridge started", "command_topic", b.topics.AllCommands())
	return nil
}

// Stop shuts the bridge down: no further commands are accepted, the
// command subscription is dropped, and in-flight deliveries are waited
// out. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopMu.Lock()
	b.stopped = true
	b.stopMu.Unlock()

	b.closed.Close()

	if err := b.mqttc.Unsubscribe(b.topics.AllCommands()); err != nil {
		b.logWarn("unsubscribing from command topic failed", "error", err)
	}

	b.wg.Wait()
}

// handleCommand processes one inbound command message. The delivery runs
// on its own goroutine so a waiting submission never blocks the MQTT
// handler or other commands.
func (b *Bridge) handleCommand(ctx context.Context, topic string, payload []byte) error {
	b.commandsReceived.Add(1)

	target := topicTarget(topic)

	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.commandsInvalid.Add(1)
		return fmt.Errorf("parsing command message on %s: %w", topic, err)
	}

	framed, err := FormatDeviceCommand(msg.Command)
	if err != nil {
		b.commandsInvalid.Add(1)
		return fmt.Errorf("command message on %s: %w", topic, err)
	}

	opts := SubmitOptions{
		WaitForCompletion: msg.Wait,
		Timeout:           time.Duration(msg.TimeoutMS) * time.Millisecond,
		Retries:           msg.Retries,
		UseBurstQueue:     msg.Burst,
		Source:            "mqtt",
	}
	if msg.Repeat != nil {
		opts.Repeat = NormalizeRepeat(msg.Repeat)
	}

	// The stopped check and wg.Add share a critical section with Stop so
	// no delivery goroutine is added after Stop has begun waiting.
	b.stopMu.Lock()
	if b.stopped {
		b.stopMu.Unlock()
		return nil
	}
	b.wg.Add(1)
	b.stopMu.Unlock()

	go func() {
		defer b.wg.Done()
		delivered := b.submitter.Submit(ctx, framed, opts)
		b.publishResult(target, msg.Command, delivered)
	}()

	return nil
}

// publishResult reports a delivery outcome on the result topic.
func (b *Bridge) publishResult(target, command string, delivered bool) {
	result := ResultMessage{
		Target:    target,
		Command:   command,
		Delivered: delivered,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(result)
	if err != nil {
		b.logError("marshalling result message", "error", err)
		return
	}
	if err := b.mqttc.Publish(b.topics.Result(target), payload, b.opts.QoS, false); err != nil {
		b.logWarn("publishing result failed", "target", target, "error", err)
	}
}

// handleButtonPress publishes a completed physical button press.
// Filtered presses (cover-owned addresses) are counted but not published.
func (b *Bridge) handleButtonPress(press ButtonPress) {
	b.buttonEvents.Add(1)

	b.telemetryMu.RLock()
	telemetry := b.telemetry
	b.telemetryMu.RUnlock()
	if telemetry != nil {
		telemetry.WriteButtonEvent(press.Address, press.Filtered)
	}

	if press.Filtered {
		return
	}

	event := ButtonEventMessage{
		Address:    press.Address,
		DurationMS: press.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		b.logError("marshalling button event", "error", err)
		return
	}
	if err := b.mqttc.Publish(b.topics.ButtonEvent(press.Address), payload, b.opts.QoS, false); err != nil {
		b.logWarn("publishing button event failed", "address", press.Address, "error", err)
	}
}

// SetButtonTelemetry sets an optional button press metrics sink.
// Safe for concurrent use.
func (b *Bridge) SetButtonTelemetry(telemetry ButtonTelemetry) {
	b.telemetryMu.Lock()
	b.telemetry = telemetry
	b.telemetryMu.Unlock()
}

// healthLoop publishes a periodic health report until Stop.
func (b *Bridge) healthLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.opts.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.closed.Done():
			return
		case <-ticker.C:
			b.publishHealth()
		}
	}
}

// publishHealth publishes the current bridge health snapshot (retained,
// so late subscribers see the last report).
func (b *Bridge) publishHealth() {
	health := map[string]any{
		"uptime_seconds":    int64(time.Since(b.startTime).Seconds()),
		"mqtt_connected":    b.mqttc.IsConnected(),
		"commands_received": b.commandsReceived.Load(),
		"commands_invalid":  b.commandsInvalid.Load(),
		"button_events":     b.buttonEvents.Load(),
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	}
	if b.link != nil {
		stats := b.link.Stats()
		health["link"] = map[string]any{
			"connected":       stats.Connected,
			"frames_sent":     stats.FramesSent,
			"frames_received": stats.FramesReceived,
			"reconnects":      stats.Reconnects,
		}
	}

	payload, err := json.Marshal(health)
	if err != nil {
		b.logError("marshalling health report", "error", err)
		return
	}
	if err := b.mqttc.Publish(b.topics.Health(), payload, b.opts.QoS, true); err != nil {
		b.logWarn("publishing health report failed", "error", err)
	}
}

// topicTarget extracts the target id from a command topic.
// "nikobus/command/cover-living-1" -> "cover-living-1"
func topicTarget(topic string) string {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return topic
	}
	return topic[idx+1:]
}

func (b *Bridge) logInfo(msg string, args ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()
	if logger != nil {
		logger.Info(msg, args...)
	}
}

func (b *Bridge) logWarn(msg string, args ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

func (b *Bridge) logError(msg string, args ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, args...)
	}
}
