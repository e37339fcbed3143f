package mqttbridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/hearth-home/hearth-core/internal/discovery"
	"github.com/hearth-home/hearth-core/internal/infrastructure/mqtt"
)

// BindingID is the identifier of the MQTT discovery binding.
const BindingID = "mqtt"

// ThingTypeDevice is the thing type for announced devices that do not
// declare their own type.
var ThingTypeDevice = discovery.NewThingTypeUID(BindingID, "device")

// statusOffline in an announcement payload marks the device as gone.
const statusOffline = "offline"

// Announcement is the JSON payload a device publishes (retained) to
// hearth/announce/{binding}/{device}.
//
// An empty payload, or one with status "offline", retracts the device.
type Announcement struct {
	// Type is the device's type segment, e.g. "plug". Optional.
	Type string `json:"type,omitempty"`

	// Label is a human-readable device name. Optional.
	Label string `json:"label,omitempty"`

	// Status is "online" or "offline". Empty counts as online.
	Status string `json:"status,omitempty"`

	// Properties carries device attributes (model, firmware, address).
	Properties map[string]any `json:"properties,omitempty"`

	// RepresentationProperty names the property that uniquely represents
	// the device. Optional.
	RepresentationProperty string `json:"representation_property,omitempty"`
}

// subscriber is the part of the MQTT client the scanner uses.
type subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Scanner discovers devices from retained MQTT announcements.
//
// Subscribing to the announcement wildcard delivers every retained
// announcement immediately, so an active scan and background discovery
// are the same operation: hold the subscription, convert messages to
// results. The subscription is shared between the two modes and dropped
// only when neither needs it.
type Scanner struct {
	client subscriber
	qos    byte

	mu       sync.Mutex
	scanning bool
	bg       bool
	pub      discovery.Publisher
}

// NewScanner creates an MQTT announcement scanner using the given client.
func NewScanner(client subscriber, qos byte) *Scanner {
	return &Scanner{client: client, qos: qos}
}

// StartScan subscribes to the announcement topic. Retained announcements
// arrive immediately; new ones stream in until the scan stops.
func (s *Scanner) StartScan(p discovery.Publisher) error {
	return s.acquire(p, false)
}

// StopScan releases the active scan's interest in the subscription.
func (s *Scanner) StopScan() {
	s.release(false)
}

// StartBackground keeps the announcement subscription open until
// StopBackground is called.
func (s *Scanner) StartBackground(p discovery.Publisher) error {
	return s.acquire(p, true)
}

// StopBackground releases background discovery's interest in the
// subscription.
func (s *Scanner) StopBackground() error {
	s.release(true)
	return nil
}

// acquire marks one mode active and subscribes on the first.
func (s *Scanner) acquire(p discovery.Publisher, background bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasActive := s.scanning || s.bg
	if background {
		s.bg = true
	} else {
		s.scanning = true
	}
	s.pub = p

	if wasActive {
		return nil
	}

	topic := mqtt.Topics{}.AllAnnouncements()
	if err := s.client.Subscribe(topic, s.qos, s.handleMessage); err != nil {
		s.scanning = false
		s.bg = false
		s.pub = nil
		return fmt.Errorf("mqttbridge: subscribing to %s: %w", topic, err)
	}
	return nil
}

// release marks one mode inactive and unsubscribes on the last.
func (s *Scanner) release(background bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if background {
		s.bg = false
	} else {
		s.scanning = false
	}
	if s.scanning || s.bg {
		return
	}

	s.client.Unsubscribe(mqtt.Topics{}.AllAnnouncements())
	s.pub = nil
}

// handleMessage converts one announcement message into a discovery event.
func (s *Scanner) handleMessage(topic string, payload []byte) error {
	s.mu.Lock()
	pub := s.pub
	s.mu.Unlock()
	if pub == nil {
		return nil
	}

	bindingID, deviceID, ok := parseAnnounceTopic(topic)
	if !ok {
		return fmt.Errorf("mqttbridge: unexpected topic %q", topic)
	}

	// An empty retained payload clears the announcement.
	if len(payload) == 0 {
		pub.ThingRemoved(deviceUID(bindingID, "", deviceID))
		return nil
	}

	var ann Announcement
	if err := json.Unmarshal(payload, &ann); err != nil {
		return fmt.Errorf("mqttbridge: decoding announcement on %q: %w", topic, err)
	}

	uid := deviceUID(bindingID, ann.Type, deviceID)
	if ann.Status == statusOffline {
		pub.ThingRemoved(uid)
		return nil
	}

	result, err := toResult(uid, bindingID, deviceID, &ann)
	if err != nil {
		return fmt.Errorf("mqttbridge: building result for %q: %w", topic, err)
	}
	pub.ThingDiscovered(result)
	return nil
}

// toResult builds a discovery result from a parsed announcement.
func toResult(uid discovery.ThingUID, bindingID, deviceID string, ann *Announcement) (*discovery.Result, error) {
	label := ann.Label
	if label == "" {
		label = deviceID
	}

	builder := discovery.NewResultBuilder(uid).
		WithLabel(label).
		WithProperty("binding", bindingID).
		WithProperty("device_id", deviceID).
		WithProperties(ann.Properties).
		WithTTL(discovery.TTLUnlimited)

	if ann.RepresentationProperty != "" {
		builder.WithRepresentationProperty(ann.RepresentationProperty)
	} else {
		builder.WithRepresentationProperty("device_id")
	}

	return builder.Build()
}

// deviceUID builds the thing UID for an announced device. Devices that do
// not declare a type fall under the generic "device" type.
func deviceUID(bindingID, typeID, deviceID string) discovery.ThingUID {
	typeID = sanitizeSegment(typeID)
	if typeID == "" {
		typeID = ThingTypeDevice.TypeID()
	}
	typeUID := discovery.NewThingTypeUID(BindingID, typeID)
	return discovery.NewThingUID(typeUID, sanitizeSegment(bindingID), sanitizeSegment(deviceID))
}

// parseAnnounceTopic extracts binding and device from
// hearth/announce/{binding}/{device}.
func parseAnnounceTopic(topic string) (bindingID, deviceID string, ok bool) {
	suffix, found := strings.CutPrefix(topic, mqtt.TopicPrefixAnnounce+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(suffix, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// sanitizeSegment maps a topic segment to a valid UID segment.
func sanitizeSegment(segment string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(segment) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
