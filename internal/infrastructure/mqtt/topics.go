package mqtt

import "fmt"

// Topic prefixes for the Nikobus Core MQTT surface.
//
// All topics use the flat scheme: nikobus/{category}/{id...}
const (
	// TopicPrefix is the base for all Nikobus Core topics.
	TopicPrefix = "nikobus"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "nikobus/system"
)

// Topics provides builders for Nikobus Core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.Command("cover-living-1")
//	// Returns: "nikobus/command/cover-living-1"
type Topics struct{}

// Command returns the topic for delivery commands to a target.
//
// Example: nikobus/command/cover-living-1
func (Topics) Command(target string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, target)
}

// Result returns the topic for command delivery results.
//
// Example: nikobus/result/cover-living-1
func (Topics) Result(target string) string {
	return fmt.Sprintf("%s/result/%s", TopicPrefix, target)
}

// ButtonEvent returns the topic for physical button press events.
//
// Example: nikobus/event/button/A1B2C3
func (Topics) ButtonEvent(address string) string {
	return fmt.Sprintf("%s/event/button/%s", TopicPrefix, address)
}

// Health returns the bridge health status topic.
//
// Example: nikobus/health
func (Topics) Health() string {
	return fmt.Sprintf("%s/health", TopicPrefix)
}

// SystemStatus returns the system status topic (also used for LWT).
//
// Example: nikobus/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllCommands returns a pattern matching all delivery command topics.
//
// Pattern: nikobus/command/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefix)
}
