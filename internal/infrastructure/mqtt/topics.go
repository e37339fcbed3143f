package mqtt

import "fmt"

// Topic prefixes for the Hearth MQTT namespace.
//
// Announce topics carry retained device announcements consumed by the
// MQTT discovery binding: hearth/announce/{binding}/{device}
const (
	// TopicPrefix is the base for all Hearth topics.
	TopicPrefix = "hearth"

	// TopicPrefixAnnounce is the base for device announcements.
	TopicPrefixAnnounce = "hearth/announce"

	// TopicPrefixEvent is the base for hub event topics.
	TopicPrefixEvent = "hearth/event"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "hearth/system"
)

// Topics provides builders for Hearth MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.Announce("shelly", "kitchen-plug")
//	// Returns: "hearth/announce/shelly/kitchen-plug"
type Topics struct{}

// Announce returns the retained announcement topic for a device.
//
// Example: hearth/announce/shelly/kitchen-plug
func (Topics) Announce(bindingID, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixAnnounce, bindingID, deviceID)
}

// AllAnnouncements returns a pattern matching every device announcement.
//
// Pattern: hearth/announce/#
func (Topics) AllAnnouncements() string {
	return TopicPrefixAnnounce + "/#"
}

// Event returns the topic for a hub event type.
//
// Example: hearth/event/inbox.added
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEvent, eventType)
}

// AllEvents returns a pattern matching all hub events.
//
// Pattern: hearth/event/#
func (Topics) AllEvents() string {
	return TopicPrefixEvent + "/#"
}

// ThingState returns the canonical state topic for a registered thing.
//
// Example: hearth/thing/hue:bulb:kitchen-1/state
func (Topics) ThingState(thingUID string) string {
	return fmt.Sprintf("%s/thing/%s/state", TopicPrefix, thingUID)
}

// ThingCommand returns the command topic for a registered thing.
//
// Example: hearth/thing/hue:bulb:kitchen-1/command
func (Topics) ThingCommand(thingUID string) string {
	return fmt.Sprintf("%s/thing/%s/command", TopicPrefix, thingUID)
}

// SystemStatus returns the system status topic.
//
// Example: hearth/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: hearth/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// AllTopics returns a pattern matching all Hearth topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: hearth/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
