package nikobus

import (
	"context"
	"sync"
)

// defaultQueueSize is the buffered capacity of the command queue.
// Sized for bursts of repeated cover commands plus concurrent callers.
const defaultQueueSize = 64

// Logger is the logging interface used throughout this package.
// Satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Transmitter performs the physical bus transmission of one command
// payload and blocks until the bus acknowledges it (or the send fails).
// Implemented by PCLink; mocked in tests.
type Transmitter interface {
	SendCommand(ctx context.Context, payload string) error
}

// queueItem is one unit of work for the queue consumer: a single command
// or a burst batch, plus an optional completion callback. The callback is
// invoked exactly once - after the last command of the item has been
// transmitted and acknowledged, or with the error that abandoned the item.
type queueItem struct {
	commands []string
	callback func(error)
}

// CommandQueue is an ordered channel of pending outbound commands drained
// by a single consumer goroutine. FIFO ordering is guaranteed for items
// enqueued from the same caller; concurrent callers are served
// first-enqueued-first-served.
//
// The consumer is the only goroutine that touches the Transmitter, so the
// link layer never sees concurrent sends.
type CommandQueue struct {
	tx    Transmitter
	items chan queueItem

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex
}

// NewCommandQueue creates a command queue draining into the given
// transmitter. Size <= 0 selects the default capacity. The queue does not
// consume until Start is called.
func NewCommandQueue(tx Transmitter, size int, logger Logger) *CommandQueue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &CommandQueue{
		tx:     tx,
		items:  make(chan queueItem, size),
		stopCh: make(chan struct{}),
		logger: logger,
	}
}

// Start launches the consumer goroutine. Call once.
func (q *CommandQueue) Start() {
	q.wg.Add(1)
	go q.run()
}

// Stop shuts the queue down. Items not yet consumed are discarded; an
// item currently being transmitted completes first. Safe to call multiple
// times.
func (q *CommandQueue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
	})
	q.wg.Wait()
}

// Enqueue adds a single command to the queue.
//
// Parameters:
//   - command: The framed bus payload
//   - callback: Optional; invoked with the transmission outcome after the
//     command is sent and acknowledged (nil error) or abandoned
//
// Returns:
//   - error: ErrEmptyCommand, ErrQueueStopped, or ErrQueueFull
func (q *CommandQueue) Enqueue(command string, callback func(error)) error {
	if command == "" {
		return ErrEmptyCommand
	}
	return q.push(queueItem{commands: []string{command}, callback: callback})
}

// EnqueueBatch adds an ordered batch of commands as one logical unit.
// The transmission layer paces the commands within the burst; the
// callback, if present, fires once - after the last command of the batch
// is acknowledged, not after each individual command.
//
// Returns:
//   - error: ErrEmptyCommand for an empty batch, ErrQueueStopped, or ErrQueueFull
func (q *CommandQueue) EnqueueBatch(commands []string, callback func(error)) error {
	if len(commands) == 0 {
		return ErrEmptyCommand
	}
	batch := make([]string, len(commands))
	copy(batch, commands)
	return q.push(queueItem{commands: batch, callback: callback})
}

// Depth returns the number of items waiting in the queue.
func (q *CommandQueue) Depth() int {
	return len(q.items)
}

// push enqueues an item without blocking the caller.
func (q *CommandQueue) push(item queueItem) error {
	select {
	case <-q.stopCh:
		return ErrQueueStopped
	default:
	}

	select {
	case q.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// run is the single consumer loop.
func (q *CommandQueue) run() {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case item := <-q.items:
			q.process(item)
		}
	}
}

// process transmits every command of an item in order, then invokes the
// item's callback with the outcome. The first send failure abandons the
// remainder of the item.
func (q *CommandQueue) process(item queueItem) {
	var err error
	for _, command := range item.commands {
		if err = q.tx.SendCommand(context.Background(), command); err != nil {
			q.logWarn("bus transmission failed",
				"command", command,
				"error", err,
			)
			break
		}
	}

	if item.callback != nil {
		item.callback(err)
	}
}

// SetLogger replaces the queue's logger. Safe for concurrent use.
func (q *CommandQueue) SetLogger(logger Logger) {
	q.loggerMu.Lock()
	q.logger = logger
	q.loggerMu.Unlock()
}

func (q *CommandQueue) logWarn(msg string, args ...any) {
	q.loggerMu.RLock()
	logger := q.logger
	q.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}
