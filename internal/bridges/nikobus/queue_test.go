package nikobus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockTransmitter records transmitted payloads and can simulate failures.
type mockTransmitter struct {
	mu    sync.Mutex
	sent  []string
	err   error
	delay time.Duration
}

func (m *mockTransmitter) SendCommand(_ context.Context, payload string) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, payload)
	return nil
}

func (m *mockTransmitter) sentCommands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

// waitFor polls a condition until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestCommandQueue_SingleCommand(t *testing.T) {
	tx := &mockTransmitter{}
	q := NewCommandQueue(tx, 0, nil)
	q.Start()
	defer q.Stop()

	var mu sync.Mutex
	var callbackErr error
	called := false

	err := q.Enqueue("#N15FF2A\r#E1", func(err error) {
		mu.Lock()
		defer mu.Unlock()
		called = true
		callbackErr = err
	})
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return called
	}, "callback was not invoked")

	mu.Lock()
	defer mu.Unlock()
	if callbackErr != nil {
		t.Errorf("callback error = %v, want nil", callbackErr)
	}
	if got := tx.sentCommands(); len(got) != 1 || got[0] != "#N15FF2A\r#E1" {
		t.Errorf("sent = %v, want one command", got)
	}
}

func TestCommandQueue_BatchCallbackFiresOnceAfterLast(t *testing.T) {
	tx := &mockTransmitter{}
	q := NewCommandQueue(tx, 0, nil)
	q.Start()
	defer q.Stop()

	var mu sync.Mutex
	calls := 0
	var sentWhenCalled int

	batch := []string{"CMD", "CMD", "CMD"}
	err := q.EnqueueBatch(batch, func(err error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		sentWhenCalled = len(tx.sentCommands())
		if err != nil {
			t.Errorf("batch callback error = %v, want nil", err)
		}
	})
	if err != nil {
		t.Fatalf("EnqueueBatch() failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0
	}, "batch callback was not invoked")

	time.Sleep(20 * time.Millisecond) // would catch a second firing

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("callback fired %d times, want 1", calls)
	}
	if sentWhenCalled != 3 {
		t.Errorf("callback fired after %d sends, want after all 3", sentWhenCalled)
	}
}

func TestCommandQueue_FIFOOrdering(t *testing.T) {
	tx := &mockTransmitter{}
	q := NewCommandQueue(tx, 0, nil)

	// Enqueue before starting the consumer so ordering is deterministic.
	for _, cmd := range []string{"first", "second", "third"} {
		if err := q.Enqueue(cmd, nil); err != nil {
			t.Fatalf("Enqueue(%q) failed: %v", cmd, err)
		}
	}

	q.Start()
	defer q.Stop()

	waitFor(t, time.Second, func() bool {
		return len(tx.sentCommands()) == 3
	}, "not all commands were transmitted")

	got := tx.sentCommands()
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sent[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCommandQueue_TransmitFailureReachesCallback(t *testing.T) {
	sendErr := errors.New("wire fault")
	tx := &mockTransmitter{err: sendErr}
	q := NewCommandQueue(tx, 0, nil)
	q.Start()
	defer q.Stop()

	errCh := make(chan error, 1)
	if err := q.EnqueueBatch([]string{"a", "b"}, func(err error) {
		errCh <- err
	}); err != nil {
		t.Fatalf("EnqueueBatch() failed: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, sendErr) {
			t.Errorf("callback error = %v, want %v", err, sendErr)
		}
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}

	// The failed first command abandons the rest of the batch.
	if got := tx.sentCommands(); len(got) != 0 {
		t.Errorf("sent = %v, want none after failure", got)
	}
}

func TestCommandQueue_EnqueueValidation(t *testing.T) {
	q := NewCommandQueue(&mockTransmitter{}, 2, nil)

	if err := q.Enqueue("", nil); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("Enqueue empty: error = %v, want %v", err, ErrEmptyCommand)
	}
	if err := q.EnqueueBatch(nil, nil); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("EnqueueBatch empty: error = %v, want %v", err, ErrEmptyCommand)
	}

	// Fill the queue (consumer not started).
	if err := q.Enqueue("a", nil); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue("b", nil); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue("c", nil); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue on full queue: error = %v, want %v", err, ErrQueueFull)
	}
	if q.Depth() != 2 {
		t.Errorf("Depth() = %d, want 2", q.Depth())
	}
}

func TestCommandQueue_EnqueueAfterStop(t *testing.T) {
	q := NewCommandQueue(&mockTransmitter{}, 0, nil)
	q.Start()
	q.Stop()

	if err := q.Enqueue("cmd", nil); !errors.Is(err, ErrQueueStopped) {
		t.Errorf("Enqueue after Stop: error = %v, want %v", err, ErrQueueStopped)
	}
	// Stop is idempotent.
	q.Stop()
}
