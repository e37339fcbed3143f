package discovery

import (
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the discovery package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config describes a discovery service.
type Config struct {
	// ID is the binding identifier, e.g. "mdns". Must be non-empty.
	ID string

	// ThingTypes lists the thing types the service can discover.
	ThingTypes []ThingTypeUID

	// ScanTimeoutSecs is how long an active scan runs before it is
	// stopped automatically. 0 disables the automatic stop; negative
	// values are rejected.
	ScanTimeoutSecs int

	// BackgroundDiscovery enables continuous discovery on Start().
	BackgroundDiscovery bool
}

// Service drives active scans and background discovery for one binding and
// fans results out to registered listeners.
//
// The service itself does no protocol work; the injected Scanner does.
// Scan-control methods return quickly, scanners run their work in their own
// goroutines and report through the Publisher interface.
//
// Concurrency: scan state (current scan listener, scheduled stop, last scan
// time) is guarded by scanMu; the result cache by cacheMu; the listener set
// is copy-on-write under listenersMu. Listener callbacks are never invoked
// while scanMu is held.
type Service struct {
	id          string
	thingTypes  []ThingTypeUID
	scanTimeout time.Duration
	scanner     Scanner

	sched    Scheduler
	logger   Logger
	localize func(label string) string

	scanMu       sync.Mutex
	scanListener ScanListener
	stopTask     ScheduledTask
	lastScan     time.Time

	bgMu      sync.Mutex
	bgEnabled bool
	bgRunning bool

	listenersMu sync.Mutex
	listeners   []Listener

	cacheMu sync.Mutex
	cache   map[ThingUID]*Result
}

// NewService creates a discovery service for the given scanner.
// It fails fast on a nil scanner, a missing ID or a negative scan timeout.
func NewService(cfg Config, scanner Scanner) (*Service, error) {
	if scanner == nil {
		return nil, ErrNilScanner
	}
	if cfg.ID == "" {
		return nil, ErrMissingServiceID
	}
	if cfg.ScanTimeoutSecs < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeScanTimeout, cfg.ScanTimeoutSecs)
	}

	types := make([]ThingTypeUID, len(cfg.ThingTypes))
	copy(types, cfg.ThingTypes)

	return &Service{
		id:          cfg.ID,
		thingTypes:  types,
		scanTimeout: time.Duration(cfg.ScanTimeoutSecs) * time.Second,
		scanner:     scanner,
		sched:       NewScheduler(),
		logger:      noopLogger{},
		bgEnabled:   cfg.BackgroundDiscovery,
		cache:       make(map[ThingUID]*Result),
	}, nil
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetScheduler replaces the scheduler used for the automatic scan stop.
// Must be called before the first scan.
func (s *Service) SetScheduler(sched Scheduler) {
	s.sched = sched
}

// SetLocalizer installs a label translation hook applied to every result
// before fan-out. Localization is best effort.
func (s *Service) SetLocalizer(fn func(label string) string) {
	s.localize = fn
}

// ID returns the binding identifier of the service.
func (s *Service) ID() string {
	return s.id
}

// ThingTypes returns the thing types the service can discover.
func (s *Service) ThingTypes() []ThingTypeUID {
	types := make([]ThingTypeUID, len(s.thingTypes))
	copy(types, s.thingTypes)
	return types
}

// SupportsThingType reports whether the service discovers things of the
// given type. A service with no declared types matches nothing.
func (s *Service) SupportsThingType(typeUID ThingTypeUID) bool {
	for _, t := range s.thingTypes {
		if t == typeUID {
			return true
		}
	}
	return false
}

// SupportsInput reports whether the service's scanner accepts scan input.
func (s *Service) SupportsInput() bool {
	_, ok := s.scanner.(InputScanner)
	return ok
}

// ScanTimeout returns the active-scan timeout. Zero means scans run until
// stopped explicitly.
func (s *Service) ScanTimeout() time.Duration {
	return s.scanTimeout
}

// LastScan returns when the most recent scan started, or the zero time if
// no scan has run yet.
func (s *Service) LastScan() time.Time {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	return s.lastScan
}

// ScanInProgress reports whether an active scan is running.
func (s *Service) ScanInProgress() bool {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	return s.scanListener != nil
}

// StartScan starts an active scan. Any in-flight scan is stopped first and
// its listener receives OnFinished before the new scan starts. The outcome
// of the new scan is reported through the given listener, which may be nil.
func (s *Service) StartScan(listener ScanListener) error {
	return s.startScan(listener, "", false)
}

// StartScanWithInput starts an active scan with operator-provided input
// (e.g. a PIN or address range). If the scanner does not accept input the
// request is logged and ignored.
func (s *Service) StartScanWithInput(input string, listener ScanListener) error {
	return s.startScan(listener, input, true)
}

func (s *Service) startScan(listener ScanListener, input string, withInput bool) error {
	inputScanner, supportsInput := s.scanner.(InputScanner)
	if withInput && !supportsInput {
		s.logger.Warn("scan input not supported, ignoring scan request", "service", s.id)
		return nil
	}

	s.scanMu.Lock()
	s.cancelScheduledStopLocked()
	prev := s.scanListener
	s.scanListener = listener
	s.lastScan = time.Now().UTC()
	if s.scanTimeout > 0 {
		s.stopTask = s.sched.Schedule(s.scanTimeout, s.StopScan)
	}
	s.scanMu.Unlock()

	// Finish the previous scan before the new one starts.
	if prev != nil {
		if stoppable, ok := s.scanner.(StoppableScanner); ok {
			stoppable.StopScan()
		}
		s.notifyScanFinished(prev)
	}

	s.logger.Debug("scan started", "service", s.id, "timeout", s.scanTimeout)

	var err error
	if withInput {
		err = inputScanner.StartScanWithInput(s, input)
	} else {
		err = s.scanner.StartScan(s)
	}
	if err != nil {
		// Roll back to idle: the scheduled stop and the listener must not
		// outlive a scan that never started.
		s.scanMu.Lock()
		s.cancelScheduledStopLocked()
		if s.scanListener == listener {
			s.scanListener = nil
		}
		s.scanMu.Unlock()
		return fmt.Errorf("discovery %s: starting scan: %w", s.id, err)
	}
	return nil
}

// StopScan stops the active scan, delivering OnFinished to its listener.
// Calling it with no scan in progress is a no-op.
func (s *Service) StopScan() {
	s.scanMu.Lock()
	s.cancelScheduledStopLocked()
	listener := s.scanListener
	s.scanListener = nil
	s.scanMu.Unlock()

	if listener == nil {
		return
	}
	if stoppable, ok := s.scanner.(StoppableScanner); ok {
		stoppable.StopScan()
	}
	s.notifyScanFinished(listener)
	s.logger.Debug("scan stopped", "service", s.id)
}

// AbortScan aborts the active scan. The scan listener receives
// ErrScanAborted through OnError. Aborting with no scan in progress is a
// no-op; AbortScan is safe to call repeatedly.
func (s *Service) AbortScan() {
	s.scanMu.Lock()
	s.cancelScheduledStopLocked()
	listener := s.scanListener
	s.scanListener = nil
	s.scanMu.Unlock()

	if listener == nil {
		return
	}
	if stoppable, ok := s.scanner.(StoppableScanner); ok {
		stoppable.StopScan()
	}
	s.notifyScanError(listener, ErrScanAborted)
	s.logger.Info("scan aborted", "service", s.id)
}

// cancelScheduledStopLocked cancels the pending automatic scan stop.
// Caller must hold scanMu.
func (s *Service) cancelScheduledStopLocked() {
	if s.stopTask != nil {
		s.stopTask.Cancel()
		s.stopTask = nil
	}
}

// Start brings the service up. When background discovery is enabled and the
// scanner supports it, continuous discovery begins.
func (s *Service) Start() error {
	s.bgMu.Lock()
	enabled := s.bgEnabled
	s.bgMu.Unlock()
	if !enabled {
		return nil
	}
	return s.startBackground()
}

// Stop shuts the service down: background discovery is stopped and any
// active scan is aborted.
func (s *Service) Stop() error {
	s.AbortScan()
	return s.stopBackground()
}

// BackgroundDiscoveryEnabled reports whether background discovery is
// currently enabled.
func (s *Service) BackgroundDiscoveryEnabled() bool {
	s.bgMu.Lock()
	defer s.bgMu.Unlock()
	return s.bgEnabled
}

// SetBackgroundDiscovery enables or disables background discovery at
// runtime, starting or stopping the scanner's background mode as needed.
func (s *Service) SetBackgroundDiscovery(enabled bool) error {
	s.bgMu.Lock()
	s.bgEnabled = enabled
	s.bgMu.Unlock()

	if enabled {
		return s.startBackground()
	}
	return s.stopBackground()
}

func (s *Service) startBackground() error {
	bs, ok := s.scanner.(BackgroundScanner)
	if !ok {
		s.logger.Debug("background discovery not supported", "service", s.id)
		return nil
	}

	s.bgMu.Lock()
	defer s.bgMu.Unlock()
	if s.bgRunning {
		return nil
	}
	if err := bs.StartBackground(s); err != nil {
		return fmt.Errorf("discovery %s: starting background discovery: %w", s.id, err)
	}
	s.bgRunning = true
	s.logger.Info("background discovery started", "service", s.id)
	return nil
}

func (s *Service) stopBackground() error {
	bs, ok := s.scanner.(BackgroundScanner)
	if !ok {
		return nil
	}

	s.bgMu.Lock()
	defer s.bgMu.Unlock()
	if !s.bgRunning {
		return nil
	}
	if err := bs.StopBackground(); err != nil {
		return fmt.Errorf("discovery %s: stopping background discovery: %w", s.id, err)
	}
	s.bgRunning = false
	s.logger.Info("background discovery stopped", "service", s.id)
	return nil
}

// AddListener registers a listener. Every cached result is replayed to the
// listener before it starts receiving new events, so a late-registered
// listener still sees the full discovery state exactly once.
func (s *Service) AddListener(listener Listener) {
	if listener == nil {
		return
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	for _, r := range s.cache {
		s.notifyDiscovered(listener, r.DeepCopy())
	}

	s.listenersMu.Lock()
	listeners := make([]Listener, 0, len(s.listeners)+1)
	listeners = append(listeners, s.listeners...)
	listeners = append(listeners, listener)
	s.listeners = listeners
	s.listenersMu.Unlock()
}

// RemoveListener unregisters a listener. Unknown listeners are ignored.
func (s *Service) RemoveListener(listener Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		if l != listener {
			listeners = append(listeners, l)
		}
	}
	s.listeners = listeners
}

// snapshotListeners returns the current listener slice. The slice is
// copy-on-write; callers may iterate it without holding the lock.
func (s *Service) snapshotListeners() []Listener {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	return s.listeners
}

// ThingDiscovered publishes a result: the label is localized, the result is
// fanned out to all listeners and then cached under its thing UID.
// A nil result is ignored.
func (s *Service) ThingDiscovered(result *Result) {
	if result == nil {
		return
	}

	r := result.DeepCopy()
	if s.localize != nil && r.Label != "" {
		r.Label = s.localize(r.Label)
	}

	for _, l := range s.snapshotListeners() {
		s.notifyDiscovered(l, r.DeepCopy())
	}

	s.cacheMu.Lock()
	s.cache[r.ThingUID] = r
	s.cacheMu.Unlock()

	s.logger.Debug("thing discovered", "service", s.id, "thing_uid", r.ThingUID)
}

// ThingRemoved publishes the disappearance of a previously discovered thing
// and drops it from the cache.
func (s *Service) ThingRemoved(thingUID ThingUID) {
	for _, l := range s.snapshotListeners() {
		s.notifyRemoved(l, thingUID)
	}

	s.cacheMu.Lock()
	delete(s.cache, thingUID)
	s.cacheMu.Unlock()

	s.logger.Debug("thing removed", "service", s.id, "thing_uid", thingUID)
}

// RemoveOlderResults asks all listeners to evict results of the given thing
// types produced by this service before the given time, optionally limited
// to one bridge. UIDs the listeners report as removed are purged from the
// service's own cache as well.
//
// Bindings call this after a completed scan to clear out things that were
// not rediscovered.
func (s *Service) RemoveOlderResults(before time.Time, thingTypes []ThingTypeUID, bridgeUID ThingUID) {
	var removed []ThingUID
	for _, l := range s.snapshotListeners() {
		removed = append(removed, s.notifyRemoveOlder(l, before, thingTypes, bridgeUID)...)
	}

	if len(removed) == 0 {
		return
	}

	s.cacheMu.Lock()
	for _, uid := range removed {
		delete(s.cache, uid)
	}
	s.cacheMu.Unlock()

	s.logger.Debug("older results removed", "service", s.id, "count", len(removed))
}

// CachedResults returns deep copies of all cached results.
func (s *Service) CachedResults() []Result {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	results := make([]Result, 0, len(s.cache))
	for _, r := range s.cache {
		results = append(results, *r.DeepCopy())
	}
	return results
}

// notifyDiscovered delivers a result to one listener, recovering panics so
// a misbehaving listener cannot affect the others.
func (s *Service) notifyDiscovered(l Listener, r *Result) {
	defer s.recoverListener("ThingDiscovered")
	l.ThingDiscovered(s, r)
}

func (s *Service) notifyRemoved(l Listener, uid ThingUID) {
	defer s.recoverListener("ThingRemoved")
	l.ThingRemoved(s, uid)
}

func (s *Service) notifyRemoveOlder(l Listener, before time.Time, thingTypes []ThingTypeUID, bridgeUID ThingUID) (removed []ThingUID) {
	defer s.recoverListener("RemoveOlderResults")
	return l.RemoveOlderResults(s, before, thingTypes, bridgeUID)
}

func (s *Service) notifyScanFinished(l ScanListener) {
	defer s.recoverListener("OnFinished")
	l.OnFinished()
}

func (s *Service) notifyScanError(l ScanListener, err error) {
	defer s.recoverListener("OnError")
	l.OnError(err)
}

// recoverListener logs a recovered listener panic. Used via defer.
func (s *Service) recoverListener(callback string) {
	if rec := recover(); rec != nil {
		s.logger.Error("discovery listener panicked",
			"service", s.id, "callback", callback, "panic", rec)
	}
}
