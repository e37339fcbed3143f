package thing

import "errors"

// Domain errors for the thing package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, thing.ErrThingNotFound) {
//	    // handle not found case
//	}
var (
	// ErrThingNotFound is returned when a thing UID does not exist.
	ErrThingNotFound = errors.New("thing: not found")

	// ErrThingExists is returned when creating a thing with a UID that already exists.
	ErrThingExists = errors.New("thing: already exists")

	// ErrInvalidThing is returned when thing validation fails.
	ErrInvalidThing = errors.New("thing: invalid")

	// ErrLinkNotFound is returned when an item/channel link does not exist.
	ErrLinkNotFound = errors.New("thing: link not found")

	// ErrInvalidLink is returned when link validation fails.
	ErrInvalidLink = errors.New("thing: invalid link")
)
