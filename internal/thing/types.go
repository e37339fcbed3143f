package thing

import (
	"fmt"
	"time"

	"github.com/hearth-home/hearth-core/internal/discovery"
)

// Thing is a registered device or service the hub talks to. Things are
// created either by approving an inbox entry or directly through the API.
type Thing struct {
	// UID uniquely identifies the thing, e.g. "hue:bulb:kitchen-1".
	UID discovery.ThingUID `json:"uid"`

	// ThingTypeUID is the type of the thing, e.g. "hue:bulb".
	ThingTypeUID discovery.ThingTypeUID `json:"thing_type_uid"`

	// BridgeUID points at the bridge thing this thing is reached through,
	// or is empty for directly reachable things.
	BridgeUID discovery.ThingUID `json:"bridge_uid,omitempty"`

	// Label is the human-readable name shown in UIs.
	Label string `json:"label"`

	// Properties are immutable attributes reported by the device
	// (serial number, firmware version, host address).
	Properties map[string]any `json:"properties,omitempty"`

	// Config holds user-editable configuration.
	Config map[string]any `json:"config,omitempty"`

	// Enabled controls whether the hub communicates with the thing.
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns a copy of the thing with its own property and config maps.
// Callers can safely modify the copy without affecting the original.
func (t *Thing) DeepCopy() *Thing {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Properties = copyMap(t.Properties)
	cp.Config = copyMap(t.Config)
	return &cp
}

// Validate checks that the thing is well-formed.
func (t *Thing) Validate() error {
	if err := t.UID.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidThing, err)
	}
	if err := t.ThingTypeUID.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidThing, err)
	}
	if t.ThingTypeUID.BindingID() != t.UID.BindingID() {
		return fmt.Errorf("%w: type %q does not match uid %q", ErrInvalidThing, t.ThingTypeUID, t.UID)
	}
	if t.BridgeUID != "" {
		if err := t.BridgeUID.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidThing, err)
		}
	}
	return nil
}

// Link connects an item (a named control surface, e.g. "LivingRoom_Light")
// to a thing channel (e.g. "hue:bulb:kitchen-1:brightness").
type Link struct {
	// ItemName is the name of the linked item.
	ItemName string `json:"item_name"`

	// ChannelUID identifies the linked channel.
	ChannelUID string `json:"channel_uid"`

	// Config holds link-specific configuration (profiles, transformations).
	Config map[string]any `json:"config,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that the link is well-formed.
func (l *Link) Validate() error {
	if l.ItemName == "" {
		return fmt.Errorf("%w: item name is required", ErrInvalidLink)
	}
	if l.ChannelUID == "" {
		return fmt.Errorf("%w: channel uid is required", ErrInvalidLink)
	}
	return nil
}

// DeepCopy returns a copy of the link with its own config map.
func (l *Link) DeepCopy() *Link {
	if l == nil {
		return nil
	}
	cp := *l
	cp.Config = copyMap(l.Config)
	return &cp
}

// copyMap returns a shallow copy of a map. Values are treated as immutable.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
