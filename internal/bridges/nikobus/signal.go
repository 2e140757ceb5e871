package nikobus

import (
	"context"
	"sync"
	"time"
)

// completionSignal is a one-shot synchronization handle resolved when the
// bus acknowledges the logically last repeated command of a submission.
//
// A signal resolves at most once; further resolve calls are silent no-ops.
// This guards against racing callbacks, e.g. an acknowledgment arriving
// fractionally after a timeout was declared. Each delivery attempt creates
// its own signal - signals are never shared between attempts, so a late
// resolution from an abandoned attempt cannot satisfy a later one.
type completionSignal struct {
	once sync.Once
	done chan struct{}
}

func newCompletionSignal() *completionSignal {
	return &completionSignal{done: make(chan struct{})}
}

// resolve marks the signal complete. Safe to call multiple times and from
// any goroutine; only the first call has an effect.
func (s *completionSignal) resolve() {
	s.once.Do(func() {
		close(s.done)
	})
}

// resolved reports whether the signal has been resolved, without blocking.
func (s *completionSignal) resolved() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// await blocks until the signal resolves, the timeout elapses, or the
// context is cancelled. Only the calling goroutine suspends; other
// submissions and the queue consumer keep making progress.
//
// Returns true if the signal resolved within the timeout.
func (s *completionSignal) await(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
