package nikobus

import (
	"sync"
	"testing"
	"time"
)

func TestParseButtonFrame(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantAddr string
		wantOK   bool
	}{
		{"valid press", "#N15FF2A", "15FF2A", true},
		{"lowercase", "#N15ff2a", "15FF2A", true},
		{"ack frame", "$0515", "", false},
		{"short code", "#N15FF", "", false},
		{"long code", "#N15FF2A00", "", false},
		{"non-hex", "#NZZZZZZ", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, ok := parseButtonFrame(tt.frame)
			if addr != tt.wantAddr || ok != tt.wantOK {
				t.Errorf("parseButtonFrame(%q) = (%q, %v), want (%q, %v)",
					tt.frame, addr, ok, tt.wantAddr, tt.wantOK)
			}
		})
	}
}

func TestButtonMonitor_SinglePress(t *testing.T) {
	m := NewButtonMonitor(nil, 40*time.Millisecond, nil)

	events := make(chan ButtonPress, 1)
	m.SetOnPress(func(p ButtonPress) { events <- p })

	m.HandleFrame("#N15FF2A")

	select {
	case press := <-events:
		if press.Address != "15FF2A" {
			t.Errorf("address = %q, want 15FF2A", press.Address)
		}
		if press.Filtered {
			t.Error("press marked filtered without an exclusion list")
		}
	case <-time.After(time.Second):
		t.Fatal("press event was not emitted")
	}
}

func TestButtonMonitor_HeldButtonEmitsOneEvent(t *testing.T) {
	m := NewButtonMonitor(nil, 60*time.Millisecond, nil)

	var mu sync.Mutex
	var presses []ButtonPress
	m.SetOnPress(func(p ButtonPress) {
		mu.Lock()
		defer mu.Unlock()
		presses = append(presses, p)
	})

	// Simulate the bus repeating the press frame while the button is held.
	for i := 0; i < 5; i++ {
		m.HandleFrame("#N15FF2A")
		time.Sleep(20 * time.Millisecond)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(presses) > 0
	}, "press event was not emitted")

	time.Sleep(100 * time.Millisecond) // would catch extra events

	mu.Lock()
	defer mu.Unlock()
	if len(presses) != 1 {
		t.Fatalf("emitted %d events, want 1 for a held button", len(presses))
	}
	if presses[0].Duration < 60*time.Millisecond {
		t.Errorf("hold duration = %v, want at least the repeat span", presses[0].Duration)
	}
}

func TestButtonMonitor_IndependentButtons(t *testing.T) {
	m := NewButtonMonitor(nil, 40*time.Millisecond, nil)

	var mu sync.Mutex
	seen := make(map[string]int)
	m.SetOnPress(func(p ButtonPress) {
		mu.Lock()
		defer mu.Unlock()
		seen[p.Address]++
	})

	m.HandleFrame("#N111111")
	m.HandleFrame("#N222222")

	if m.ActiveCount() != 2 {
		t.Errorf("ActiveCount() = %d, want 2", m.ActiveCount())
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, "both presses were not emitted")

	mu.Lock()
	defer mu.Unlock()
	if seen["111111"] != 1 || seen["222222"] != 1 {
		t.Errorf("events = %v, want one per button", seen)
	}
}

func TestButtonMonitor_ExcludedAddressFiltered(t *testing.T) {
	m := NewButtonMonitor([]string{"15ff2a"}, 40*time.Millisecond, nil)

	events := make(chan ButtonPress, 1)
	m.SetOnPress(func(p ButtonPress) { events <- p })

	m.HandleFrame("#N15FF2A")

	select {
	case press := <-events:
		if !press.Filtered {
			t.Error("cover-owned address was not marked filtered")
		}
	case <-time.After(time.Second):
		t.Fatal("press event was not emitted")
	}
}

func TestButtonMonitor_IgnoresNonButtonFrames(t *testing.T) {
	m := NewButtonMonitor(nil, 40*time.Millisecond, nil)

	m.HandleFrame("$0515")
	m.HandleFrame("garbage")

	if m.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0 for non-button frames", m.ActiveCount())
	}
}
