package nikobus

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/nikobus-core/internal/infrastructure/config"
)

// deviceCodeLength is the length of a Nikobus button/device address:
// six hexadecimal characters learned from the physical bus.
const deviceCodeLength = 6

// IsValidCode reports whether s is a valid 6-digit hex device code.
func IsValidCode(s string) bool {
	if len(s) != deviceCodeLength {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// FormatDeviceCommand builds the bus payload that simulates a press of the
// button with the given address. The PC-Link interface expects the press
// frame immediately followed by the #E1 execute marker:
//
//	#N<CODE>\r#E1
//
// The link layer appends the trailing CR when transmitting.
//
// Parameters:
//   - code: 6-digit hex button address (case-insensitive)
//
// Returns:
//   - string: The framed payload ready for enqueueing
//   - error: ErrInvalidCode if the code is malformed
func FormatDeviceCommand(code string) (string, error) {
	if !IsValidCode(code) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	return "#N" + strings.ToUpper(code) + "\r#E1", nil
}

// NormalizeRepeat coerces an arbitrary repeat-count value to a usable
// count in [1, config.MaxSignalRepeat].
//
// Repeat counts arrive from YAML config and MQTT JSON payloads, so the
// value may be an int, a float, a numeric string, or garbage. Malformed
// input degrades to sending once - never to sending zero times, and
// never to an error. The upper clamp keeps a hostile or fat-fingered
// repeat from turning one submission into a bus-flooding allocation:
//
//	NormalizeRepeat(3)      // 3
//	NormalizeRepeat(2.7)    // 2 (truncated)
//	NormalizeRepeat("4")    // 4
//	NormalizeRepeat(0)      // 1
//	NormalizeRepeat(-5)     // 1
//	NormalizeRepeat(1e12)   // config.MaxSignalRepeat
//	NormalizeRepeat("abc")  // 1
//	NormalizeRepeat(nil)    // 1
func NormalizeRepeat(value any) int {
	var n int
	switch v := value.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 1
		}
		n = parsed
	default:
		return 1
	}

	if n < 1 {
		return 1
	}
	if n > config.MaxSignalRepeat {
		return config.MaxSignalRepeat
	}
	return n
}
