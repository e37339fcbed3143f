package discovery

import (
	"fmt"
	"sync"
)

// Registry aggregates all discovery services of the hub. Listeners added to
// the registry are forwarded to every service, present and future, so a
// consumer like the inbox subscribes once and sees results from all bindings.
//
// All public methods are thread-safe.
type Registry struct {
	mu        sync.RWMutex
	services  map[string]*Service
	listeners []Listener
	logger    Logger
}

// NewRegistry creates an empty discovery registry.
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[string]*Service),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// AddService registers a discovery service. Listeners already added to the
// registry are attached to it. Returns ErrServiceExists when a service with
// the same ID is already registered.
func (r *Registry) AddService(s *Service) error {
	r.mu.Lock()
	if _, ok := r.services[s.ID()]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrServiceExists, s.ID())
	}
	r.services[s.ID()] = s
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, l := range listeners {
		s.AddListener(l)
	}

	r.logger.Info("discovery service registered", "service", s.ID())
	return nil
}

// RemoveService unregisters a service and detaches the registry's listeners
// from it. Unknown IDs are ignored.
func (r *Registry) RemoveService(id string) {
	r.mu.Lock()
	s, ok := r.services[id]
	if ok {
		delete(r.services, id)
	}
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	if !ok {
		return
	}
	for _, l := range listeners {
		s.RemoveListener(l)
	}
	r.logger.Info("discovery service unregistered", "service", id)
}

// Service returns the service with the given binding ID.
func (r *Registry) Service(id string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.services[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, id)
	}
	return s, nil
}

// Services returns all registered services.
func (r *Registry) Services() []*Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	services := make([]*Service, 0, len(r.services))
	for _, s := range r.services {
		services = append(services, s)
	}
	return services
}

// AddListener attaches a listener to every registered service and remembers
// it for services registered later.
func (r *Registry) AddListener(listener Listener) {
	if listener == nil {
		return
	}

	r.mu.Lock()
	r.listeners = append(r.listeners, listener)
	services := make([]*Service, 0, len(r.services))
	for _, s := range r.services {
		services = append(services, s)
	}
	r.mu.Unlock()

	for _, s := range services {
		s.AddListener(listener)
	}
}

// RemoveListener detaches a listener from every registered service.
func (r *Registry) RemoveListener(listener Listener) {
	r.mu.Lock()
	listeners := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		if l != listener {
			listeners = append(listeners, l)
		}
	}
	r.listeners = listeners
	services := make([]*Service, 0, len(r.services))
	for _, s := range r.services {
		services = append(services, s)
	}
	r.mu.Unlock()

	for _, s := range services {
		s.RemoveListener(listener)
	}
}

// StartScan triggers an active scan on the service with the given binding ID.
func (r *Registry) StartScan(bindingID string, listener ScanListener) error {
	s, err := r.Service(bindingID)
	if err != nil {
		return err
	}
	return s.StartScan(listener)
}

// StartScanForThingType triggers an active scan on every service that
// supports the given thing type. Returns ErrServiceNotFound when no service
// supports it. The listener is notified once all triggered scans finished.
func (r *Registry) StartScanForThingType(typeUID ThingTypeUID, listener ScanListener) error {
	var matching []*Service
	for _, s := range r.Services() {
		if s.SupportsThingType(typeUID) {
			matching = append(matching, s)
		}
	}
	if len(matching) == 0 {
		return fmt.Errorf("%w: no service supports %s", ErrServiceNotFound, typeUID)
	}
	return r.startScans(matching, listener)
}

// StartScanAll triggers an active scan on every registered service.
// The listener is notified once all scans finished.
func (r *Registry) StartScanAll(listener ScanListener) error {
	return r.startScans(r.Services(), listener)
}

func (r *Registry) startScans(services []*Service, listener ScanListener) error {
	agg := newAggregateScanListener(len(services), listener)
	var firstErr error
	for _, s := range services {
		if err := s.StartScan(agg); err != nil {
			agg.OnFinished() // count the failed scan as finished
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// AbortScans aborts active scans on all registered services.
func (r *Registry) AbortScans() {
	for _, s := range r.Services() {
		s.AbortScan()
	}
}

// Start brings all registered services up.
func (r *Registry) Start() error {
	var firstErr error
	for _, s := range r.Services() {
		if err := s.Start(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stop shuts all registered services down.
func (r *Registry) Stop() error {
	var firstErr error
	for _, s := range r.Services() {
		if err := s.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// aggregateScanListener fans scan outcomes from several services into one
// listener. OnFinished fires once after the last service reports, and only
// when every scan succeeded. Only the first error is forwarded; the
// delegate hears either one OnFinished or one OnError, never both.
type aggregateScanListener struct {
	mu       sync.Mutex
	pending  int
	errored  bool
	delegate ScanListener
}

func newAggregateScanListener(count int, delegate ScanListener) *aggregateScanListener {
	return &aggregateScanListener{pending: count, delegate: delegate}
}

func (a *aggregateScanListener) OnFinished() {
	a.mu.Lock()
	a.pending--
	done := a.pending == 0 && !a.errored
	a.mu.Unlock()

	if done && a.delegate != nil {
		a.delegate.OnFinished()
	}
}

func (a *aggregateScanListener) OnError(err error) {
	a.mu.Lock()
	a.pending--
	first := !a.errored
	a.errored = true
	a.mu.Unlock()

	if first && a.delegate != nil {
		a.delegate.OnError(err)
	}
}
