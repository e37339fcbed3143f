package inbox

import "errors"

// Domain errors for the inbox package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, inbox.ErrNotInInbox) {
//	    // no entry with that thing UID
//	}
var (
	// ErrNotInInbox is returned when no inbox entry exists for the given
	// thing UID.
	ErrNotInInbox = errors.New("inbox: result not in inbox")

	// ErrInvalidEntry is returned when an entry fails validation.
	ErrInvalidEntry = errors.New("inbox: invalid entry")

	// ErrAlreadyStarted is returned when Start is called on a running inbox.
	ErrAlreadyStarted = errors.New("inbox: already started")
)
