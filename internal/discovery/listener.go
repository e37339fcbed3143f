package discovery

import "time"

// Listener receives discovery results from one or more services.
// The inbox is the primary listener; the WebSocket event hub is another.
//
// Callbacks may be invoked concurrently from different services. A panic
// in a callback is recovered and logged by the delivering service; it never
// affects other listeners.
type Listener interface {
	// ThingDiscovered is called for every produced result, including
	// repeated discoveries of the same thing.
	ThingDiscovered(source *Service, result *Result)

	// ThingRemoved is called when a service notices a previously
	// discovered thing has gone.
	ThingRemoved(source *Service, thingUID ThingUID)

	// RemoveOlderResults asks the listener to evict results of the given
	// thing types that were produced by source before the given time,
	// optionally restricted to one bridge (empty bridgeUID matches all).
	// It returns the UIDs the listener actually removed so the service
	// can purge its own cache.
	RemoveOlderResults(source *Service, before time.Time, thingTypes []ThingTypeUID, bridgeUID ThingUID) []ThingUID
}

// ScanListener is notified about the outcome of a single active scan.
type ScanListener interface {
	// OnFinished is called when the scan completes or is stopped.
	OnFinished()

	// OnError is called when the scan fails or is aborted. An aborted
	// scan receives ErrScanAborted.
	OnError(err error)
}

// Publisher is the surface a scanner uses to report what it finds.
// A Service passes itself as the publisher when invoking scanner hooks.
type Publisher interface {
	ThingDiscovered(result *Result)
	ThingRemoved(thingUID ThingUID)
}

// Scanner is the active-scan hook a binding implements. StartScan must
// return quickly; long-running work belongs in a goroutine owned by the
// scanner, reporting through the publisher.
type Scanner interface {
	StartScan(p Publisher) error
}

// StoppableScanner is implemented by scanners that can cut short an
// in-flight scan. StopScan is called on scan stop and abort.
type StoppableScanner interface {
	Scanner
	StopScan()
}

// InputScanner is implemented by scanners that accept operator input for
// a scan, e.g. a PIN or a network range.
type InputScanner interface {
	Scanner
	StartScanWithInput(p Publisher, input string) error
}

// BackgroundScanner is implemented by scanners that support continuous
// background discovery in addition to on-demand scans.
type BackgroundScanner interface {
	Scanner
	StartBackground(p Publisher) error
	StopBackground() error
}
