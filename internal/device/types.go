package device

import "time"

// Cover is a normalized roller shutter definition driven by raw button
// codes learned from the physical bus.
type Cover struct {
	// ID is a stable unique identifier derived from the cover's button
	// codes, so renaming or reordering covers in config never orphans
	// historical data.
	ID string

	// Name is the display name ("Jalousie N" when unset in config).
	Name string

	// Slug is the suggested machine id ("<area> <n>" slugified when an
	// area is set, the slugified name otherwise).
	Slug string

	// Area is the optional room/zone label.
	Area string

	// UpCode, DownCode, StopCode are the uppercase 6-digit hex button
	// addresses that drive the shutter.
	UpCode   string
	DownCode string
	StopCode string

	// TravelUpTime and TravelDownTime are the full-travel durations in
	// seconds. Either both are set or both are zero (position tracking
	// needs the pair).
	TravelUpTime   float64
	TravelDownTime float64

	// AsSwitch exposes the cover as a simple switch bound to one
	// direction: "", "up", or "down".
	AsSwitch string
}

// DeliveryEntry is one row of the command delivery log.
type DeliveryEntry struct {
	ID           int64
	Command      string
	Target       string
	Source       string
	Attempts     int
	Acknowledged bool
	LatencyMS    int64
	CreatedAt    time.Time
}
