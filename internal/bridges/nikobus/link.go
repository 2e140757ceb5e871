package nikobus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/nikobus-core/internal/infrastructure/config"
)

// Link tuning constants.
const (
	// reconnectBackoffFactor grows the reconnect interval after each
	// failed attempt.
	reconnectBackoffFactor = 1.5

	// maxReconnectInterval caps the reconnect backoff.
	maxReconnectInterval = 2 * time.Minute

	// writeTimeout bounds a single frame write to the link.
	writeTimeout = 5 * time.Second

	// ackBufferSize is the capacity of the acknowledgment channel.
	// Stale acks beyond this are dropped.
	ackBufferSize = 8
)

// LinkStats is a snapshot of PC-Link connection counters.
type LinkStats struct {
	FramesSent     uint64
	FramesReceived uint64
	Reconnects     uint64
	Connected      bool
}

// closeOnce is a channel that can be closed exactly once from any goroutine.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() {
		close(c.ch)
	})
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// PCLink is a client for the Nikobus PC-Link interface, reached through a
// serial-over-IP bridge (tcp://) or a local socket relay (unix://).
//
// The wire format is CR-terminated ASCII frames. Outbound command payloads
// are written with a trailing CR; inbound frames are split on CR and
// dispatched: "$"-prefixed frames are command acknowledgments consumed by
// the in-flight SendCommand, everything else (button press frames and bus
// feedback) is delivered to the OnFrame callback.
//
// SendCommand assumes a single in-flight sender - the command queue's
// consumer goroutine. Concurrent senders would race for acknowledgments.
//
// The link reconnects automatically with exponential backoff when the
// connection drops. Close shuts it down permanently.
type PCLink struct {
	cfg config.NikobusConfig

	mu   sync.Mutex // guards conn and writes
	conn net.Conn

	onFrame func(frame string)
	frameMu sync.RWMutex

	acks chan string

	closed    *closeOnce
	wg        sync.WaitGroup
	connected atomic.Bool

	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
	reconnects     atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// ConnectLink establishes the initial connection to the PC-Link interface
// and starts the read loop.
//
// Parameters:
//   - cfg: Nikobus connection settings from config.yaml
//   - logger: Logger for connection events (may be nil)
//
// Returns:
//   - *PCLink: Connected link ready for use
//   - error: ErrInvalidConnection or a dial failure
func ConnectLink(cfg config.NikobusConfig, logger Logger) (*PCLink, error) {
	network, address, err := parseConnection(cfg.Connection)
	if err != nil {
		return nil, err
	}

	conn, err := net.DialTimeout(network, address, cfg.GetConnectTimeout())
	if err != nil {
		return nil, fmt.Errorf("connecting to PC-Link at %s: %w", cfg.Connection, err)
	}

	l := &PCLink{
		cfg:    cfg,
		conn:   conn,
		acks:   make(chan string, ackBufferSize),
		closed: newCloseOnce(),
		logger: logger,
	}
	l.connected.Store(true)

	l.wg.Add(1)
	go l.run()

	l.logInfo("connected to PC-Link", "connection", cfg.Connection)
	return l, nil
}

// parseConnection splits a connection URL into network and address.
// Supported formats: tcp://host:port, unix:///path/to/socket.
func parseConnection(url string) (network, address string, err error) {
	switch {
	case strings.HasPrefix(url, "tcp://"):
		address = strings.TrimPrefix(url, "tcp://")
		if address == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidConnection, url)
		}
		return "tcp", address, nil
	case strings.HasPrefix(url, "unix://"):
		address = strings.TrimPrefix(url, "unix://")
		if address == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidConnection, url)
		}
		return "unix", address, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrInvalidConnection, url)
	}
}

// SendCommand writes a command payload to the bus and blocks until the
// PC-Link acknowledges it or the read timeout elapses.
//
// Parameters:
//   - ctx: Context for cancellation
//   - payload: Framed command (trailing CR is appended here)
//
// Returns:
//   - error: ErrEmptyCommand, ErrNotConnected, ErrClosed, ErrSendFailed,
//     ErrAckTimeout, or the context error
func (l *PCLink) SendCommand(ctx context.Context, payload string) error {
	if payload == "" {
		return ErrEmptyCommand
	}
	select {
	case <-l.closed.Done():
		return ErrClosed
	default:
	}
	if !l.connected.Load() {
		return ErrNotConnected
	}

	// Discard acknowledgments left over from earlier traffic so this
	// send only observes its own.
	l.drainAcks()

	l.mu.Lock()
	conn := l.conn
	if conn == nil {
		l.mu.Unlock()
		return ErrNotConnected
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := conn.Write([]byte(payload + "\r"))
	l.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	l.framesSent.Add(1)

	timer := time.NewTimer(l.cfg.GetReadTimeout())
	defer timer.Stop()

	select {
	case <-l.acks:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: no ack for %q", ErrAckTimeout, payload)
	case <-ctx.Done():
		return ctx.Err()
	case <-l.closed.Done():
		return ErrClosed
	}
}

// drainAcks empties the acknowledgment channel without blocking.
func (l *PCLink) drainAcks() {
	for {
		select {
		case <-l.acks:
		default:
			return
		}
	}
}

// SetOnFrame sets the callback for non-acknowledgment frames (button
// presses, bus feedback). The callback runs on the read loop goroutine
// and must not block.
func (l *PCLink) SetOnFrame(callback func(frame string)) {
	l.frameMu.Lock()
	l.onFrame = callback
	l.frameMu.Unlock()
}

// IsConnected returns the current connection state.
func (l *PCLink) IsConnected() bool {
	return l.connected.Load()
}

// Stats returns a snapshot of link counters.
func (l *PCLink) Stats() LinkStats {
	return LinkStats{
		FramesSent:     l.framesSent.Load(),
		FramesReceived: l.framesReceived.Load(),
		Reconnects:     l.reconnects.Load(),
		Connected:      l.connected.Load(),
	}
}

// Close shuts the link down permanently. Safe to call multiple times.
func (l *PCLink) Close() error {
	l.closed.Close()

	l.mu.Lock()
	if l.conn != nil {
		l.conn.Close() //nolint:errcheck // Best effort on shutdown
		l.conn = nil
	}
	l.mu.Unlock()
	l.connected.Store(false)

	l.wg.Wait()
	return nil
}

// run is the connection supervisor: it reads frames until the connection
// drops, then reconnects with backoff until Close.
func (l *PCLink) run() {
	defer l.wg.Done()

	for {
		select {
		case <-l.closed.Done():
			return
		default:
		}

		l.mu.Lock()
		conn := l.conn
		l.mu.Unlock()

		if conn != nil {
			l.readFrames(conn)

			l.mu.Lock()
			if l.conn == conn {
				conn.Close() //nolint:errcheck // Already failed
				l.conn = nil
			}
			l.mu.Unlock()
			l.connected.Store(false)
		}

		if !l.reconnect() {
			return
		}
	}
}

// readFrames reads CR-terminated frames from the connection until an
// error occurs. Read deadline expiry on an idle bus is not an error.
func (l *PCLink) readFrames(conn net.Conn) {
	reader := bufio.NewReader(conn)

	for {
		select {
		case <-l.closed.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(l.cfg.GetReadTimeout()))
		line, err := reader.ReadString('\r')
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// Idle bus; keep waiting.
				continue
			}
			select {
			case <-l.closed.Done():
			default:
				l.logWarn("PC-Link read failed", "error", err)
			}
			return
		}

		frame := strings.TrimSuffix(line, "\r")
		if frame == "" {
			continue
		}
		l.framesReceived.Add(1)
		l.dispatchFrame(frame)
	}
}

// dispatchFrame routes one inbound frame. Acknowledgments ("$"-prefixed)
// go to the in-flight sender; everything else goes to the OnFrame
// callback.
func (l *PCLink) dispatchFrame(frame string) {
	if strings.HasPrefix(frame, "$") {
		select {
		case l.acks <- frame:
		default:
			// No sender waiting; stale ack dropped.
		}
		return
	}

	l.frameMu.RLock()
	callback := l.onFrame
	l.frameMu.RUnlock()
	if callback != nil {
		callback(frame)
	}
}

// reconnect re-dials the PC-Link with exponential backoff until it
// succeeds or the link is closed. Returns false if the link was closed.
func (l *PCLink) reconnect() bool {
	network, address, err := parseConnection(l.cfg.Connection)
	if err != nil {
		l.logError("invalid PC-Link connection URL", "error", err)
		return false
	}

	interval := l.cfg.GetReconnectInterval()
	for {
		select {
		case <-l.closed.Done():
			return false
		case <-time.After(interval):
		}

		l.reconnects.Add(1)
		conn, err := net.DialTimeout(network, address, l.cfg.GetConnectTimeout())
		if err == nil {
			l.mu.Lock()
			l.conn = conn
			l.mu.Unlock()
			l.connected.Store(true)
			l.logInfo("reconnected to PC-Link", "connection", l.cfg.Connection)
			return true
		}

		l.logWarn("PC-Link reconnect failed",
			"connection", l.cfg.Connection,
			"retry_in", interval,
			"error", err,
		)

		interval = time.Duration(float64(interval) * reconnectBackoffFactor)
		if interval > maxReconnectInterval {
			interval = maxReconnectInterval
		}
	}
}

// SetLogger replaces the link's logger. Safe for concurrent use.
func (l *PCLink) SetLogger(logger Logger) {
	l.loggerMu.Lock()
	l.logger = logger
	l.loggerMu.Unlock()
}

func (l *PCLink) logInfo(msg string, args ...any) {
	l.loggerMu.RLock()
	logger := l.logger
	l.loggerMu.RUnlock()
	if logger != nil {
		logger.Info(msg, args...)
	}
}

func (l *PCLink) logWarn(msg string, args ...any) {
	l.loggerMu.RLock()
	logger := l.logger
	l.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

func (l *PCLink) logError(msg string, args ...any) {
	l.loggerMu.RLock()
	logger := l.logger
	l.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, args...)
	}
}
