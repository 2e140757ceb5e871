package nikobus

import (
	"strings"
	"sync"
	"time"
)

// buttonFramePrefix marks a physical button press frame on the bus.
const buttonFramePrefix = "#N"

// defaultHoldWindow is how long after the last repeated press frame a
// button is considered released. The bus repeats the press frame roughly
// every 50ms while a button is held.
const defaultHoldWindow = 150 * time.Millisecond

// ButtonPress is one logical press of a physical bus button, emitted
// after the button is released.
type ButtonPress struct {
	// Address is the button's 6-digit hex bus address.
	Address string

	// Duration is how long the button was held.
	Duration time.Duration

	// Filtered marks presses of addresses claimed by configured covers.
	// Cover button codes double as the codes this daemon transmits, so
	// treating them as independent button events would echo our own
	// commands back as user input.
	Filtered bool
}

// ButtonMonitor turns the stream of repeated press frames from the bus
// into debounced logical press events.
//
// While a button is held, the bus emits its press frame repeatedly.
// The first frame starts a press; each further frame extends it; when no
// frame arrives within the hold window, the press is complete and one
// ButtonPress is emitted.
type ButtonMonitor struct {
	mu         sync.Mutex
	excluded   map[string]struct{}
	active     map[string]*activePress
	holdWindow time.Duration
	onPress    func(ButtonPress)
	logger     Logger
}

type activePress struct {
	first time.Time
	last  time.Time
	timer *time.Timer
}

// NewButtonMonitor creates a monitor.
//
// Parameters:
//   - excluded: Button addresses claimed by configured covers (case-insensitive)
//   - holdWindow: Release detection window; <= 0 selects the default
//   - logger: Logger for filtered presses (may be nil)
func NewButtonMonitor(excluded []string, holdWindow time.Duration, logger Logger) *ButtonMonitor {
	if holdWindow <= 0 {
		holdWindow = defaultHoldWindow
	}
	set := make(map[string]struct{}, len(excluded))
	for _, addr := range excluded {
		set[strings.ToUpper(addr)] = struct{}{}
	}
	return &ButtonMonitor{
		excluded:   set,
		active:     make(map[string]*activePress),
		holdWindow: holdWindow,
		logger:     logger,
	}
}

// SetOnPress sets the callback invoked for each completed press,
// including filtered ones (check ButtonPress.Filtered). The callback
// runs on a timer goroutine and must not block.
func (m *ButtonMonitor) SetOnPress(callback func(ButtonPress)) {
	m.mu.Lock()
	m.onPress = callback
	m.mu.Unlock()
}

// HandleFrame processes one inbound bus frame. Non-button frames are
// ignored. Safe for concurrent use, though frames normally arrive from
// the single link read loop.
func (m *ButtonMonitor) HandleFrame(frame string) {
	address, ok := parseButtonFrame(frame)
	if !ok {
		return
	}

	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	press := m.active[address]
	if press == nil {
		press = &activePress{first: now}
		press.timer = time.AfterFunc(m.holdWindow, func() {
			m.finish(address)
		})
		m.active[address] = press
	} else {
		press.timer.Reset(m.holdWindow)
	}
	press.last = now
}

// ActiveCount returns the number of buttons currently held.
func (m *ButtonMonitor) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// finish completes a press after the hold window elapses without a
// further frame.
func (m *ButtonMonitor) finish(address string) {
	m.mu.Lock()
	press := m.active[address]
	delete(m.active, address)
	_, filtered := m.excluded[address]
	callback := m.onPress
	logger := m.logger
	m.mu.Unlock()

	if press == nil {
		return
	}

	event := ButtonPress{
		Address:  address,
		Duration: press.last.Sub(press.first),
		Filtered: filtered,
	}

	if filtered && logger != nil {
		logger.Debug("suppressed cover-owned button press", "address", address)
	}
	if callback != nil {
		callback(event)
	}
}

// parseButtonFrame extracts the button address from a press frame.
// Expected shape: "#N" followed by a 6-digit hex address.
func parseButtonFrame(frame string) (string, bool) {
	if !strings.HasPrefix(frame, buttonFramePrefix) {
		return "", false
	}
	code := frame[len(buttonFramePrefix):]
	if !IsValidCode(code) {
		return "", false
	}
	return strings.ToUpper(code), true
}
