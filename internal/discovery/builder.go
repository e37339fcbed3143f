package discovery

import (
	"fmt"
	"time"
)

// ResultBuilder assembles discovery results. Use NewResultBuilder, chain
// the With* methods, and call Build to validate and obtain the result.
//
// The builder is not safe for concurrent use.
type ResultBuilder struct {
	result Result
}

// NewResultBuilder starts a builder for a result identifying the given thing.
func NewResultBuilder(thingUID ThingUID) *ResultBuilder {
	return &ResultBuilder{
		result: Result{
			ThingUID: thingUID,
			Flag:     FlagNew,
			TTL:      TTLUnlimited,
		},
	}
}

// WithThingType sets the thing type explicitly. When not set, Build derives
// the type from the thing UID.
func (b *ResultBuilder) WithThingType(typeUID ThingTypeUID) *ResultBuilder {
	b.result.ThingTypeUID = typeUID
	return b
}

// WithBridge records the bridge through which the thing was discovered.
func (b *ResultBuilder) WithBridge(bridgeUID ThingUID) *ResultBuilder {
	b.result.BridgeUID = bridgeUID
	return b
}

// WithProperty adds a single discovered property.
func (b *ResultBuilder) WithProperty(key string, value any) *ResultBuilder {
	if b.result.Properties == nil {
		b.result.Properties = make(map[string]any)
	}
	b.result.Properties[key] = value
	return b
}

// WithProperties adds all entries of the given map.
func (b *ResultBuilder) WithProperties(props map[string]any) *ResultBuilder {
	for k, v := range props {
		b.WithProperty(k, v)
	}
	return b
}

// WithRepresentationProperty names the property that uniquely represents
// the discovered thing.
func (b *ResultBuilder) WithRepresentationProperty(name string) *ResultBuilder {
	b.result.RepresentationProperty = name
	return b
}

// WithLabel sets the human-readable label.
func (b *ResultBuilder) WithLabel(label string) *ResultBuilder {
	b.result.Label = label
	return b
}

// WithTTL sets the number of seconds the result stays valid.
// Use TTLUnlimited for results that never expire.
func (b *ResultBuilder) WithTTL(seconds int64) *ResultBuilder {
	b.result.TTL = seconds
	return b
}

// Build validates the assembled result and returns a copy of it.
//
// Validation rules:
//   - the thing UID must be well-formed
//   - the bridge UID, when set, must be well-formed
//   - the thing type, when set, must be well-formed and consistent with
//     the thing UID's binding
//   - the TTL must be positive or TTLUnlimited
func (b *ResultBuilder) Build() (*Result, error) {
	if err := b.result.ThingUID.Validate(); err != nil {
		return nil, err
	}

	if b.result.BridgeUID != "" {
		if err := b.result.BridgeUID.Validate(); err != nil {
			return nil, err
		}
	}

	if b.result.ThingTypeUID == "" {
		b.result.ThingTypeUID = b.result.ThingUID.ThingTypeUID()
	} else {
		if err := b.result.ThingTypeUID.Validate(); err != nil {
			return nil, err
		}
		if b.result.ThingTypeUID.BindingID() != b.result.ThingUID.BindingID() {
			return nil, fmt.Errorf("%w: thing type %q does not match thing uid %q",
				ErrInvalidResult, b.result.ThingTypeUID, b.result.ThingUID)
		}
	}

	if b.result.TTL < TTLUnlimited || b.result.TTL == 0 {
		return nil, fmt.Errorf("%w: ttl must be positive or TTLUnlimited, got %d",
			ErrInvalidResult, b.result.TTL)
	}

	if b.result.Timestamp.IsZero() {
		b.result.Timestamp = time.Now().UTC()
	}

	return b.result.DeepCopy(), nil
}
