// Package nikobus implements the command delivery and acknowledgment
// engine for a Nikobus home-automation bus, plus the PC-Link transport
// and MQTT glue around it.
//
// # Architecture
//
//	MQTT (nikobus/command/+)           physical bus
//	        |                                ^
//	        v                                |
//	     Bridge --> Dispatcher --> CommandQueue --> PCLink
//	        ^                                        |
//	        |            ButtonMonitor <-- frames ---+
//	        +-- button events
//
// The Dispatcher is the heart: it repeats each command a configured
// number of times (as a burst batch or sequentially), optionally waits
// for the bus acknowledgment of the logically last copy, and retries the
// whole submission a bounded number of times on timeout. Waiting happens
// on the caller's goroutine only; the queue consumer and other callers
// keep making progress.
//
// # Delivery semantics
//
//   - The repeat count is always coerced to at least 1 - malformed
//     configuration degrades to sending once, never to sending nothing.
//   - Each attempt gets a fresh one-shot completion signal. A late
//     acknowledgment from an abandoned attempt cannot satisfy a retry,
//     and resolving a signal twice is a silent no-op.
//   - A timeout cancels only the wait, not the transmission. Retries can
//     therefore duplicate physical actuation; that trade-off is accepted.
//   - All failure paths surface as a false return, never a panic or a
//     fatal error.
//
// # Collaborator seams
//
// Transmitter, Queue, Submitter, MQTTClient, and LinkStatus are the
// interfaces between layers; tests substitute hand-rolled mocks for each.
package nikobus
