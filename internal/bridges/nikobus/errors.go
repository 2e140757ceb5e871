package nikobus

import "errors"

// Domain-specific errors for the Nikobus bridge.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidConnection is returned when the connection URL is malformed.
	// Valid formats: tcp://host:port or unix:///path/to/socket
	ErrInvalidConnection = errors.New("nikobus: invalid connection URL")

	// ErrNotConnected is returned when attempting operations while
	// disconnected from the PC-Link interface.
	ErrNotConnected = errors.New("nikobus: not connected to PC-Link")

	// ErrClosed is returned when attempting operations on a closed link.
	ErrClosed = errors.New("nikobus: link closed")

	// ErrSendFailed is returned when writing a command to the bus fails.
	ErrSendFailed = errors.New("nikobus: send failed")

	// ErrAckTimeout is returned when the bus does not acknowledge a
	// transmitted command within the read timeout.
	ErrAckTimeout = errors.New("nikobus: acknowledgment timeout")

	// ErrEmptyCommand is returned when an empty command payload is submitted.
	ErrEmptyCommand = errors.New("nikobus: empty command")

	// ErrInvalidCode is returned when a device code is not a 6-digit hex string.
	ErrInvalidCode = errors.New("nikobus: invalid device code")

	// ErrQueueFull is returned when the command queue has no capacity left.
	ErrQueueFull = errors.New("nikobus: command queue full")

	// ErrQueueStopped is returned when enqueueing on a stopped queue.
	ErrQueueStopped = errors.New("nikobus: command queue stopped")
)
