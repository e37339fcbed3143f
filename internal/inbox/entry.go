package inbox

import (
	"fmt"

	"github.com/hearth-home/hearth-core/internal/discovery"
)

// Entry is a discovery result held in the inbox, annotated with the
// identifier of the discovery service that produced it.
type Entry struct {
	// Result is the discovery result awaiting operator action. Its thing
	// UID is the entry's identity.
	Result discovery.Result `json:"result"`

	// Discoverer is the ID of the discovery service that produced the
	// result. Used to scope stale-result eviction to one service.
	Discoverer string `json:"discoverer,omitempty"`
}

// DeepCopy returns a copy of the entry with its own property map.
func (e *Entry) DeepCopy() *Entry {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Result = *e.Result.DeepCopy()
	return &cp
}

// Validate checks that the entry is well-formed.
func (e *Entry) Validate() error {
	if err := e.Result.ThingUID.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if err := e.Result.ThingTypeUID.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return nil
}
