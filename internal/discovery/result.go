package discovery

import "time"

// Flag marks how an inbox entry should be treated by the UI and by
// automatic processing.
type Flag string

// Result flags.
const (
	// FlagNew marks a result the operator has not dealt with yet.
	FlagNew Flag = "NEW"

	// FlagIgnored marks a result the operator chose to hide.
	FlagIgnored Flag = "IGNORED"
)

// Valid reports whether the flag is one of the known values.
func (f Flag) Valid() bool {
	return f == FlagNew || f == FlagIgnored
}

// TTLUnlimited is the TTL value for results that never expire.
const TTLUnlimited int64 = -1

// Result is a single discovery outcome: a candidate thing found by a
// discovery service. Its identity is the thing UID; two results with the
// same thing UID describe the same thing.
type Result struct {
	// ThingUID identifies the discovered thing and is the merge key for
	// repeated discoveries.
	ThingUID ThingUID `json:"thing_uid"`

	// ThingTypeUID is the type of the discovered thing. If empty it is
	// derived from the first two segments of ThingUID.
	ThingTypeUID ThingTypeUID `json:"thing_type_uid"`

	// BridgeUID is the UID of the bridge through which the thing was
	// discovered, or empty for directly reachable things.
	BridgeUID ThingUID `json:"bridge_uid,omitempty"`

	// Properties carries discovered attributes (serial number, firmware,
	// host address). Values must be JSON-serialisable.
	Properties map[string]any `json:"properties,omitempty"`

	// RepresentationProperty names the property whose value uniquely
	// represents the discovered thing (e.g. "serialNumber"). Used to match
	// results against already-registered things.
	RepresentationProperty string `json:"representation_property,omitempty"`

	// Label is a human-readable default name for the thing.
	Label string `json:"label"`

	// Flag is the inbox treatment marker, FlagNew by default.
	Flag Flag `json:"flag"`

	// Timestamp records when the result was produced.
	Timestamp time.Time `json:"timestamp"`

	// TTL is the number of seconds the result stays valid; TTLUnlimited
	// means it never expires.
	TTL int64 `json:"ttl"`
}

// DeepCopy returns a copy of the result with its own property map.
// Callers can safely modify the copy without affecting the original.
func (r *Result) DeepCopy() *Result {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Properties = copyProperties(r.Properties)
	return &cp
}

// Synchronize copies the volatile fields (properties, label, representation
// property, TTL and timestamp) from other into r, preserving r's flag.
// It is a no-op when other is nil or identifies a different thing.
func (r *Result) Synchronize(other *Result) {
	if other == nil || other.ThingUID != r.ThingUID {
		return
	}
	r.Properties = copyProperties(other.Properties)
	r.RepresentationProperty = other.RepresentationProperty
	r.Label = other.Label
	r.TTL = other.TTL
	r.Timestamp = other.Timestamp
}

// SetFlag sets the flag, normalising unknown or empty values to FlagNew.
func (r *Result) SetFlag(f Flag) {
	if !f.Valid() {
		f = FlagNew
	}
	r.Flag = f
}

// RepresentationValue returns the value of the representation property,
// or nil when the result has none.
func (r *Result) RepresentationValue() any {
	if r.RepresentationProperty == "" || r.Properties == nil {
		return nil
	}
	return r.Properties[r.RepresentationProperty]
}

// Expired reports whether the result's TTL has elapsed at the given time.
// Results with TTLUnlimited never expire.
func (r *Result) Expired(now time.Time) bool {
	if r.TTL == TTLUnlimited {
		return false
	}
	return r.Timestamp.Add(time.Duration(r.TTL) * time.Second).Before(now)
}

// copyProperties returns a shallow copy of a property map.
// Property values are treated as immutable once set.
func copyProperties(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	cp := make(map[string]any, len(props))
	for k, v := range props {
		cp[k] = v
	}
	return cp
}
