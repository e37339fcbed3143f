package discovery

import "errors"

// Domain errors for the discovery package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, discovery.ErrScanAborted) {
//	    // scan was aborted by the operator
//	}
var (
	// ErrScanAborted is delivered to a scan listener's OnError when an
	// active scan is aborted. It is never returned from AbortScan itself.
	ErrScanAborted = errors.New("discovery: scan aborted")

	// ErrInvalidThingUID is returned when a thing UID does not have the
	// form "binding:type:id" with at least three non-empty segments.
	ErrInvalidThingUID = errors.New("discovery: invalid thing uid")

	// ErrInvalidThingTypeUID is returned when a thing type UID does not
	// have the form "binding:type".
	ErrInvalidThingTypeUID = errors.New("discovery: invalid thing type uid")

	// ErrInvalidResult is returned when result validation fails at build time.
	ErrInvalidResult = errors.New("discovery: invalid result")

	// ErrNegativeScanTimeout is returned when a service is constructed
	// with a negative scan timeout.
	ErrNegativeScanTimeout = errors.New("discovery: negative scan timeout")

	// ErrNilScanner is returned when a service is constructed without a scanner.
	ErrNilScanner = errors.New("discovery: nil scanner")

	// ErrMissingServiceID is returned when a service is constructed
	// without a binding identifier.
	ErrMissingServiceID = errors.New("discovery: missing service id")

	// ErrServiceExists is returned when registering a service whose ID is
	// already registered.
	ErrServiceExists = errors.New("discovery: service already registered")

	// ErrServiceNotFound is returned when no service with the given ID is
	// registered.
	ErrServiceNotFound = errors.New("discovery: service not found")
)
