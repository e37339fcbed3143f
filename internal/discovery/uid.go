package discovery

import (
	"fmt"
	"strings"
)

// UID separator and segment constraints.
const (
	uidSeparator = ":"

	// minThingUIDSegments is the minimum number of segments in a thing UID:
	// binding, type and at least one ID segment.
	minThingUIDSegments = 3

	// thingTypeUIDSegments is the exact number of segments in a thing type UID.
	thingTypeUIDSegments = 2
)

// ThingTypeUID identifies a type of thing, e.g. "hue:bulb".
// The format is "binding:type".
type ThingTypeUID string

// NewThingTypeUID builds a thing type UID from its binding and type segments.
func NewThingTypeUID(bindingID, typeID string) ThingTypeUID {
	return ThingTypeUID(bindingID + uidSeparator + typeID)
}

// Validate checks that the UID has exactly two non-empty, well-formed segments.
func (u ThingTypeUID) Validate() error {
	segments := strings.Split(string(u), uidSeparator)
	if len(segments) != thingTypeUIDSegments {
		return fmt.Errorf("%w: %q must have form binding:type", ErrInvalidThingTypeUID, string(u))
	}
	for _, s := range segments {
		if !validUIDSegment(s) {
			return fmt.Errorf("%w: segment %q in %q", ErrInvalidThingTypeUID, s, string(u))
		}
	}
	return nil
}

// BindingID returns the binding segment of the UID.
func (u ThingTypeUID) BindingID() string {
	return segmentAt(string(u), 0)
}

// TypeID returns the type segment of the UID.
func (u ThingTypeUID) TypeID() string {
	return segmentAt(string(u), 1)
}

func (u ThingTypeUID) String() string {
	return string(u)
}

// ThingUID identifies a single thing, e.g. "hue:bulb:kitchen-1".
// The format is "binding:type:id" with at least three segments; bridged
// things may carry additional ID segments ("hue:bulb:bridge-1:kitchen-1").
type ThingUID string

// NewThingUID builds a thing UID from a thing type UID and one or more
// ID segments.
func NewThingUID(typeUID ThingTypeUID, ids ...string) ThingUID {
	parts := append([]string{string(typeUID)}, ids...)
	return ThingUID(strings.Join(parts, uidSeparator))
}

// Validate checks that the UID has at least three non-empty, well-formed segments.
func (u ThingUID) Validate() error {
	segments := strings.Split(string(u), uidSeparator)
	if len(segments) < minThingUIDSegments {
		return fmt.Errorf("%w: %q must have form binding:type:id", ErrInvalidThingUID, string(u))
	}
	for _, s := range segments {
		if !validUIDSegment(s) {
			return fmt.Errorf("%w: segment %q in %q", ErrInvalidThingUID, s, string(u))
		}
	}
	return nil
}

// BindingID returns the binding segment of the UID.
func (u ThingUID) BindingID() string {
	return segmentAt(string(u), 0)
}

// ThingTypeUID returns the thing type UID derived from the first two segments.
func (u ThingUID) ThingTypeUID() ThingTypeUID {
	segments := strings.Split(string(u), uidSeparator)
	if len(segments) < thingTypeUIDSegments {
		return ThingTypeUID(u)
	}
	return ThingTypeUID(strings.Join(segments[:thingTypeUIDSegments], uidSeparator))
}

// ID returns the identifier part of the UID (everything after binding and type).
func (u ThingUID) ID() string {
	segments := strings.Split(string(u), uidSeparator)
	if len(segments) <= thingTypeUIDSegments {
		return ""
	}
	return strings.Join(segments[thingTypeUIDSegments:], uidSeparator)
}

func (u ThingUID) String() string {
	return string(u)
}

// segmentAt returns segment i of a UID string, or "" if out of range.
func segmentAt(s string, i int) string {
	segments := strings.Split(s, uidSeparator)
	if i >= len(segments) {
		return ""
	}
	return segments[i]
}

// validUIDSegment reports whether a segment is non-empty and contains only
// letters, digits, underscores and hyphens.
func validUIDSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}
