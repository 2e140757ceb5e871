// Nikobus Core - command delivery daemon for the Nikobus bus.
//
// nikobusd bridges a Nikobus installation (via the PC-Link interface) to
// MQTT. Commands published on nikobus/command/+ are repeated, transmitted,
// and acknowledged with bounded retries; physical button presses come back
// as nikobus/event/button/+ messages. Delivery outcomes are logged to
// SQLite and, optionally, to InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/nikobus-core/migrations"

	"github.com/nerrad567/nikobus-core/internal/bridges/nikobus"
	"github.com/nerrad567/nikobus-core/internal/device"
	"github.com/nerrad567/nikobus-core/internal/infrastructure/config"
	"github.com/nerrad567/nikobus-core/internal/infrastructure/database"
	"github.com/nerrad567/nikobus-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/nikobus-core/internal/infrastructure/logging"
	"github.com/nerrad567/nikobus-core/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// Delivery log retention and prune cadence.
const (
	logRetention   = 30 * 24 * time.Hour
	logPruneEvery  = 6 * time.Hour
	recordTimeout  = 5 * time.Second
	linkStatsEvery = time.Minute
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Nikobus Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database and run migrations
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	commandLog := device.NewCommandLog(db)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Normalize cover definitions; their button codes feed the press filter
	covers, err := device.NormalizeCovers(cfg.Covers)
	if err != nil {
		return fmt.Errorf("normalizing cover definitions: %w", err)
	}
	log.Info("cover definitions loaded", "covers", len(covers))

	// Connect to the PC-Link interface
	link, err := nikobus.ConnectLink(cfg.Nikobus, log.With("component", "pclink"))
	if err != nil {
		return fmt.Errorf("connecting to PC-Link: %w", err)
	}
	defer func() {
		log.Info("closing PC-Link connection")
		if closeErr := link.Close(); closeErr != nil {
			log.Error("error closing PC-Link", "error", closeErr)
		}
	}()

	// Command queue: single consumer draining into the link
	queue := nikobus.NewCommandQueue(link, 0, log.With("component", "queue"))
	queue.Start()
	defer func() {
		log.Info("stopping command queue")
		queue.Stop()
	}()

	// Dispatcher: repeat, wait, retry
	dispatcher := nikobus.NewDispatcher(queue, cfg.Dispatch, log.With("component", "dispatch"))
	dispatcher.SetRecorder(&deliveryRecorder{
		commandLog: commandLog,
		influx:     influxClient,
		logger:     log,
	})

	// Button monitor: debounced presses, cover codes filtered
	buttons := nikobus.NewButtonMonitor(device.ExcludedButtonAddresses(covers), 0,
		log.With("component", "buttons"))
	link.SetOnFrame(buttons.HandleFrame)

	// Bridge: MQTT commands in, button events and health out
	bridge := nikobus.NewBridge(dispatcher, &mqttAdapter{client: mqttClient}, link, buttons,
		nikobus.BridgeOptions{QoS: byte(cfg.MQTT.QoS)}, log.With("component", "bridge"))
	if influxClient != nil {
		bridge.SetButtonTelemetry(influxClient)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	// Periodic delivery log pruning and link telemetry
	go pruneLoop(ctx, commandLog, log)
	if influxClient != nil {
		go linkStatsLoop(ctx, link, influxClient)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	if influxClient != nil {
		influxClient.Flush()
	}
	log.Info("Nikobus Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses NIKOBUS_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("NIKOBUS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// pruneLoop trims old delivery log entries until shutdown.
func pruneLoop(ctx context.Context, commandLog *device.CommandLog, log *logging.Logger) {
	ticker := time.NewTicker(logPruneEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := commandLog.Prune(ctx, logRetention)
			if err != nil {
				log.Error("pruning delivery log", "error", err)
				continue
			}
			if deleted > 0 {
				log.Info("pruned delivery log", "deleted", deleted)
			}
		}
	}
}

// linkStatsLoop writes PC-Link frame counters to InfluxDB until shutdown.
func linkStatsLoop(ctx context.Context, link *nikobus.PCLink, influx *influxdb.Client) {
	ticker := time.NewTicker(linkStatsEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := link.Stats()
			influx.WriteLinkStats(stats.FramesSent, stats.FramesReceived, stats.Reconnects)
		}
	}
}

// mqttAdapter bridges the infrastructure MQTT client to the bridge's
// MQTTClient interface (the handler parameter types differ).
type mqttAdapter struct {
	client *mqtt.Client
}

func (a *mqttAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

func (a *mqttAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error {
	return a.client.Subscribe(topic, qos, handler)
}

func (a *mqttAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}

func (a *mqttAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// deliveryRecorder fans delivery outcomes out to the SQLite log and,
// when enabled, InfluxDB. Recording failures are logged, never surfaced
// into the delivery path.
type deliveryRecorder struct {
	commandLog *device.CommandLog
	influx     *influxdb.Client
	logger     *logging.Logger
}

func (r *deliveryRecorder) RecordDelivery(rec nikobus.DeliveryRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	err := r.commandLog.Record(ctx, device.DeliveryEntry{
		Command:      rec.Command,
		Source:       rec.Source,
		Attempts:     rec.Attempts,
		Acknowledged: rec.Acknowledged,
		LatencyMS:    rec.Latency.Milliseconds(),
	})
	if err != nil {
		r.logger.Error("recording delivery to database", "error", err)
	}

	if r.influx != nil {
		r.influx.WriteCommandMetric(rec.Command, rec.Source, rec.Attempts, rec.Acknowledged, rec.Latency)
	}
}
