package device

import (
	"crypto/sha1" //nolint:gosec // Stable id derivation, not security
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/nerrad567/nikobus-core/internal/infrastructure/config"
)

// idDigestLength truncates the code digest used in cover ids.
const idDigestLength = 12

// NormalizeCovers validates and normalizes raw cover definitions from
// config.yaml.
//
// Normalization:
//   - Button codes are uppercased and validated as 6-digit hex.
//   - Each cover gets a stable unique id derived from a digest of its
//     sorted button codes ("nikobus_yaml_cover_<digest>"), independent
//     of name, ordering, and area.
//   - Unnamed covers get sequential default names ("Jalousie N").
//   - The suggested slug is "<area> <n>" (per-area counter) when an area
//     is set, the slugified name otherwise.
//   - Travel times must be supplied as a pair; a one-sided value is a
//     configuration error.
//
// Returns:
//   - []Cover: Normalized definitions in config order
//   - error: On invalid codes, travel-time pairing, or as_switch values
func NormalizeCovers(raw []config.CoverConfig) ([]Cover, error) {
	covers := make([]Cover, 0, len(raw))

	areaCounters := make(map[string]int)
	defaultCounter := 0

	for i, rc := range raw {
		up := strings.ToUpper(rc.UpCode)
		down := strings.ToUpper(rc.DownCode)
		stop := strings.ToUpper(rc.StopCode)

		for _, code := range []string{up, down, stop} {
			if !config.IsHexCode(code) {
				return nil, fmt.Errorf("cover %d: invalid button code %q", i, code)
			}
		}

		name := rc.Name
		if name == "" {
			defaultCounter++
			name = fmt.Sprintf("Jalousie %d", defaultCounter)
		}

		var slug string
		if rc.Area != "" {
			areaCounters[rc.Area]++
			slug = Slugify(fmt.Sprintf("%s %d", rc.Area, areaCounters[rc.Area]))
		} else {
			slug = Slugify(name)
		}

		upTime, downTime := rc.TravelUpTime, rc.TravelDownTime
		if (upTime == 0) != (downTime == 0) {
			return nil, fmt.Errorf("cover %q: travel_up_time and travel_down_time must be set together", name)
		}
		if upTime < 0 || downTime < 0 {
			return nil, fmt.Errorf("cover %q: travel times must be positive", name)
		}

		switch rc.AsSwitch {
		case "", "up", "down":
		default:
			return nil, fmt.Errorf("cover %q: as_switch must be \"up\" or \"down\", got %q", name, rc.AsSwitch)
		}

		covers = append(covers, Cover{
			ID:             coverID(up, down, stop),
			Name:           name,
			Slug:           slug,
			Area:           rc.Area,
			UpCode:         up,
			DownCode:       down,
			StopCode:       stop,
			TravelUpTime:   upTime,
			TravelDownTime: downTime,
			AsSwitch:       rc.AsSwitch,
		})
	}

	return covers, nil
}

// coverID derives a stable unique id from a cover's button codes.
// The codes are sorted so code role reassignment (swapping up/down)
// still maps to the same physical hardware.
func coverID(codes ...string) string {
	sorted := make([]string, len(codes))
	copy(sorted, codes)
	sort.Strings(sorted)

	sum := sha1.Sum([]byte(strings.Join(sorted, ":"))) //nolint:gosec // Stable id, not security
	return "nikobus_yaml_cover_" + hex.EncodeToString(sum[:])[:idDigestLength]
}

// ExcludedButtonAddresses returns the button addresses claimed by cover
// definitions. Presses of these addresses are echoes of cover commands,
// not independent user input, and are filtered from the button event
// stream.
func ExcludedButtonAddresses(covers []Cover) []string {
	seen := make(map[string]struct{})
	var addresses []string
	for _, c := range covers {
		for _, code := range []string{c.UpCode, c.DownCode, c.StopCode} {
			if code == "" {
				continue
			}
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			addresses = append(addresses, code)
		}
	}
	return addresses
}

// Slugify converts a display name to a lowercase machine id:
// letters and digits survive, everything else collapses to single
// underscores. "Living Room 2" -> "living_room_2".
func Slugify(s string) string {
	var b strings.Builder
	lastUnderscore := true // suppress leading underscore

	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	return strings.TrimSuffix(b.String(), "_")
}
