package nikobus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/nikobus-core/internal/infrastructure/config"
)

// Queue is the outbound contract the dispatcher submits into.
// Implemented by CommandQueue; mocked in tests.
type Queue interface {
	Enqueue(command string, callback func(error)) error
	EnqueueBatch(commands []string, callback func(error)) error
}

// SubmitOptions controls one Submit call.
type SubmitOptions struct {
	// WaitForCompletion blocks the caller until the bus acknowledges the
	// logically last repeated command or the timeout elapses. When false,
	// Submit is fire-and-forget and returns true as soon as the commands
	// are enqueued.
	WaitForCompletion bool

	// Timeout overrides the derived acknowledgment timeout. Zero derives
	// one from the dispatch config: base ack wait plus a per-repeat
	// allowance (the burst allowance for batched submission, the larger
	// sequential allowance otherwise). The derived value is computed once
	// per Submit and reused for every retry attempt.
	Timeout time.Duration

	// Retries bounds additional delivery attempts after a timeout.
	// Retries=0 means exactly one attempt; negative values are treated
	// as zero, never as "no attempts".
	Retries int

	// UseBurstQueue submits the repeated copies as one batch unit for
	// tighter on-bus timing. Ignored when the repeat count is 1, where
	// burst and sequential submission are equivalent.
	UseBurstQueue bool

	// Repeat overrides the configured signal repeat count. Values below 1
	// fall back to the configured count; either way the effective count
	// is clamped to config.MaxSignalRepeat.
	Repeat int

	// Source labels the origin of the request ("mqtt", "button",
	// "internal") for diagnostics and telemetry.
	Source string
}

// DeliveryRecord describes the outcome of one completed Submit call.
type DeliveryRecord struct {
	Command      string
	Source       string
	Attempts     int
	Acknowledged bool
	Waited       bool
	Latency      time.Duration
}

// DeliveryRecorder receives a record for every completed Submit call.
// Implementations must not block; recording runs on the caller's goroutine.
type DeliveryRecorder interface {
	RecordDelivery(rec DeliveryRecord)
}

// DispatcherStats is a snapshot of dispatcher counters.
type DispatcherStats struct {
	Submitted    uint64 // Submit calls handled
	Acknowledged uint64 // waiting submissions acknowledged in time
	Timeouts     uint64 // individual attempts that timed out
	Failed       uint64 // waiting submissions that exhausted their retry budget
}

// Dispatcher turns a logical bus command into a delivery guarantee: it
// repeats the command per configuration (burst or sequential), optionally
// waits for the bus acknowledgment, and retries the whole submission a
// bounded number of times on timeout.
//
// Retries may cause duplicate physical actuation: a command already in
// flight when its wait times out is not retracted, and a late
// acknowledgment does not cancel the retry that was already issued. This
// is an accepted trade-off - the alternative (no retry) loses commands on
// a lossy bus.
//
// Thread Safety:
//   - Submit is safe for concurrent use. Each waiting caller suspends
//     independently; commands from one Submit keep their relative order
//     on the queue.
type Dispatcher struct {
	queue Queue
	cfg   config.DispatchConfig

	recorder   DeliveryRecorder
	recorderMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	submitted    atomic.Uint64
	acknowledged atomic.Uint64
	timeouts     atomic.Uint64
	failed       atomic.Uint64
}

// NewDispatcher creates a dispatcher submitting into the given queue.
func NewDispatcher(queue Queue, cfg config.DispatchConfig, logger Logger) *Dispatcher {
	return &Dispatcher{
		queue:  queue,
		cfg:    cfg,
		logger: logger,
	}
}

// Submit delivers a command to the bus.
//
// Fire-and-forget (WaitForCompletion=false): the repeated copies are
// enqueued - as one batch when UseBurstQueue and repeat > 1, individually
// otherwise - and Submit returns true immediately. No acknowledgment is
// awaited.
//
// Waiting (WaitForCompletion=true): each attempt creates a fresh one-shot
// completion signal, enqueues the repeated copies with the resolving
// callback attached only to the logically last command, and suspends
// until the signal resolves or the per-attempt timeout elapses. An
// acknowledged attempt returns true immediately; a timed-out attempt is
// retried while budget remains (Retries+1 attempts total), after which
// Submit returns false. A transmission failure never resolves the signal,
// so the waiter observes it as a timeout.
//
// Context cancellation aborts the current wait and any remaining
// attempts, returning false.
//
// Parameters:
//   - ctx: Context bounding the waiting path
//   - command: Non-empty framed bus payload
//   - opts: Delivery options (see SubmitOptions)
//
// Returns:
//   - bool: true if enqueued (fire-and-forget) or acknowledged in time
func (d *Dispatcher) Submit(ctx context.Context, command string, opts SubmitOptions) bool {
	if command == "" {
		return false
	}

	d.submitted.Add(1)

	repeat := opts.Repeat
	if repeat < 1 {
		repeat = d.cfg.RepeatCount()
	}
	if repeat > config.MaxSignalRepeat {
		repeat = config.MaxSignalRepeat
	}
	burst := opts.UseBurstQueue && repeat > 1

	if !opts.WaitForCompletion {
		d.enqueueAttempt(command, repeat, burst, nil)
		d.record(DeliveryRecord{
			Command:      command,
			Source:       opts.Source,
			Attempts:     1,
			Acknowledged: true,
		})
		return true
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = d.deriveTimeout(repeat, burst)
	}

	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}

	start := time.Now()
	attempts := 0
	acknowledged := false

	for attempt := 0; attempt <= retries; attempt++ {
		attempts++

		// Fresh signal per attempt: a late acknowledgment from an earlier,
		// abandoned attempt must not satisfy this one.
		signal := newCompletionSignal()
		d.enqueueAttempt(command, repeat, burst, func(err error) {
			if err == nil {
				signal.resolve()
			}
		})

		if signal.await(ctx, timeout) {
			acknowledged = true
			break
		}

		if ctx.Err() != nil {
			d.logWarn("delivery wait cancelled",
				"command", command,
				"attempt", attempt+1,
			)
			break
		}

		d.timeouts.Add(1)
		d.logWarn("command delivery timed out",
			"command", command,
			"attempt", attempt+1,
			"timeout", timeout,
		)
	}

	if acknowledged {
		d.acknowledged.Add(1)
	} else {
		d.failed.Add(1)
	}

	d.record(DeliveryRecord{
		Command:      command,
		Source:       opts.Source,
		Attempts:     attempts,
		Acknowledged: acknowledged,
		Waited:       true,
		Latency:      time.Since(start),
	})

	return acknowledged
}

// enqueueAttempt submits repeat copies of a command for one attempt.
// In burst mode the copies go out as one batch; in sequential mode they
// are enqueued individually with the callback attached only to the final
// copy. Enqueue failures are logged, not returned - the signal stays
// unresolved and the waiting path observes a timeout.
func (d *Dispatcher) enqueueAttempt(command string, repeat int, burst bool, callback func(error)) {
	if burst {
		commands := make([]string, repeat)
		for i := range commands {
			commands[i] = command
		}
		if err := d.queue.EnqueueBatch(commands, callback); err != nil {
			d.logError("enqueueing command batch failed",
				"command", command,
				"repeat", repeat,
				"error", err,
			)
		}
		return
	}

	for i := 0; i < repeat; i++ {
		var cb func(error)
		if i == repeat-1 {
			cb = callback
		}
		if err := d.queue.Enqueue(command, cb); err != nil {
			d.logError("enqueueing command failed",
				"command", command,
				"copy", i+1,
				"error", err,
			)
		}
	}
}

// deriveTimeout computes the acknowledgment timeout for a submission:
// the base ack wait plus a per-repeat allowance. Burst submission paces
// repeats tighter than sequential submission, so its allowance is smaller
// and the derived timeout shorter.
func (d *Dispatcher) deriveTimeout(repeat int, burst bool) time.Duration {
	perRepeat := d.cfg.GetSequentialDelay()
	if burst {
		perRepeat = d.cfg.GetBurstDelay()
	}
	return d.cfg.GetAckTimeout() + time.Duration(repeat)*perRepeat
}

// Stats returns a snapshot of dispatcher counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Submitted:    d.submitted.Load(),
		Acknowledged: d.acknowledged.Load(),
		Timeouts:     d.timeouts.Load(),
		Failed:       d.failed.Load(),
	}
}

// SetRecorder sets an optional delivery recorder. Safe for concurrent use.
func (d *Dispatcher) SetRecorder(recorder DeliveryRecorder) {
	d.recorderMu.Lock()
	d.recorder = recorder
	d.recorderMu.Unlock()
}

func (d *Dispatcher) record(rec DeliveryRecord) {
	d.recorderMu.RLock()
	recorder := d.recorder
	d.recorderMu.RUnlock()
	if recorder != nil {
		recorder.RecordDelivery(rec)
	}
}

func (d *Dispatcher) logWarn(msg string, args ...any) {
	d.loggerMu.RLock()
	logger := d.logger
	d.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

func (d *Dispatcher) logError(msg string, args ...any) {
	d.loggerMu.RLock()
	logger := d.logger
	d.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, args...)
	}
}
