// Package mqtt provides MQTT connectivity for Nikobus Core.
//
// This package wraps paho.mqtt.golang with connection management,
// automatic reconnection, subscription restoration, and Nikobus Core's
// topic scheme.
//
// # Topic Scheme
//
// All topics live under the "nikobus/" prefix:
//
//	nikobus/command/{target}       - delivery commands toward the bus
//	nikobus/result/{target}        - delivery results (ack/timeout)
//	nikobus/event/button/{address} - physical button press events
//	nikobus/state/cover/{id}       - cover state updates
//	nikobus/health                 - bridge health reports
//	nikobus/system/status          - online/offline status (retained, LWT)
//
// Use the Topics helper to build topic strings rather than hand-writing them.
//
// # Connection Lifecycle
//
// Connect establishes the initial connection and configures a Last Will and
// Testament on nikobus/system/status so that other services observe crashes.
// The client reconnects automatically with exponential backoff and restores
// all tracked subscriptions on every reconnect.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{}
//	err = client.Subscribe(topics.AllCommands(), 1, func(topic string, payload []byte) error {
//	    // handle incoming command
//	    return nil
//	})
package mqtt
