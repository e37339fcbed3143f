package thing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/hearth-home/hearth-core/internal/discovery"
)

// Logger defines the logging interface used by the Registry.
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

// ChangeListener is notified about registry mutations. The inbox uses it to
// evict entries when a matching thing appears and to drop results when a
// bridge disappears.
type ChangeListener interface {
	ThingAdded(t *Thing)
	ThingUpdated(old, updated *Thing)
	ThingRemoved(t *Thing)
}

// Registry provides thing management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[discovery.ThingUID]*Thing
	cacheMu sync.RWMutex

	listenersMu sync.Mutex
	listeners   []ChangeListener

	logger Logger
}

// NewRegistry creates a new thing registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[discovery.ThingUID]*Thing),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// AddChangeListener registers a listener for registry mutations.
func (r *Registry) AddChangeListener(l ChangeListener) {
	if l == nil {
		return
	}
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	listeners := make([]ChangeListener, 0, len(r.listeners)+1)
	listeners = append(listeners, r.listeners...)
	listeners = append(listeners, l)
	r.listeners = listeners
}

// RemoveChangeListener unregisters a listener.
func (r *Registry) RemoveChangeListener(l ChangeListener) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	listeners := make([]ChangeListener, 0, len(r.listeners))
	for _, existing := range r.listeners {
		if existing != l {
			listeners = append(listeners, existing)
		}
	}
	r.listeners = listeners
}

func (r *Registry) snapshotListeners() []ChangeListener {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	return r.listeners
}

// RefreshCache reloads all things from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	things, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading things: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Clear and rebuild cache with deep copies
	r.cache = make(map[discovery.ThingUID]*Thing, len(things))
	for i := range things {
		t := things[i]
		r.cache[t.UID] = t.DeepCopy()
	}

	r.logger.Info("thing cache refreshed", "count", len(things))
	return nil
}

// Get retrieves a thing by UID.
// Returns ErrThingNotFound if the thing does not exist.
// The returned thing is a deep copy; callers can safely modify it.
func (r *Registry) Get(ctx context.Context, uid discovery.ThingUID) (*Thing, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[uid]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new thing not yet cached)
	t, err := r.repo.GetByUID(ctx, uid)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[uid] = t.DeepCopy()
	r.cacheMu.Unlock()

	return t, nil
}

// Exists reports whether a thing with the given UID is registered.
func (r *Registry) Exists(ctx context.Context, uid discovery.ThingUID) bool {
	_, err := r.Get(ctx, uid)
	return err == nil
}

// List retrieves all things.
// The returned things are deep copies; callers can safely modify them.
func (r *Registry) List(ctx context.Context) ([]Thing, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		things := make([]Thing, 0, len(r.cache))
		for _, t := range r.cache {
			things = append(things, *t.DeepCopy())
		}
		return things, nil
	}

	return r.repo.List(ctx)
}

// ListByBridge retrieves all things reached through the given bridge.
func (r *Registry) ListByBridge(ctx context.Context, bridgeUID discovery.ThingUID) ([]Thing, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		var things []Thing
		for _, t := range r.cache {
			if t.BridgeUID == bridgeUID {
				things = append(things, *t.DeepCopy())
			}
		}
		return things, nil
	}

	return r.repo.ListByBridge(ctx, bridgeUID)
}

// FindByProperty returns the first thing whose property key has the given
// value. Used to match discovery results against registered things by their
// representation property.
func (r *Registry) FindByProperty(key string, value any) (*Thing, bool) {
	if key == "" || value == nil {
		return nil, false
	}

	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	for _, t := range r.cache {
		if t.Properties == nil {
			continue
		}
		// Property values decoded from JSON may be maps or slices, which
		// would panic under ==.
		if v, ok := t.Properties[key]; ok && reflect.DeepEqual(v, value) {
			return t.DeepCopy(), true
		}
	}
	return nil, false
}

// Add registers a thing, replacing any existing thing with the same UID.
// The appropriate added/updated event is delivered to change listeners.
func (r *Registry) Add(ctx context.Context, t *Thing) error {
	if err := t.Validate(); err != nil {
		return err
	}

	existing, err := r.repo.GetByUID(ctx, t.UID)
	switch {
	case err == nil:
		if err := r.repo.Update(ctx, t); err != nil {
			return err
		}
		r.updateCache(t)
		for _, l := range r.snapshotListeners() {
			l.ThingUpdated(existing.DeepCopy(), t.DeepCopy())
		}
		r.logger.Info("thing replaced", "uid", t.UID)
		return nil

	case errors.Is(err, ErrThingNotFound):
		if err := r.repo.Create(ctx, t); err != nil {
			return err
		}
		r.updateCache(t)
		for _, l := range r.snapshotListeners() {
			l.ThingAdded(t.DeepCopy())
		}
		r.logger.Info("thing added", "uid", t.UID, "label", t.Label)
		return nil

	default:
		return err
	}
}

// Update modifies an existing thing and notifies change listeners.
func (r *Registry) Update(ctx context.Context, t *Thing) error {
	if err := t.Validate(); err != nil {
		return err
	}

	existing, err := r.repo.GetByUID(ctx, t.UID)
	if err != nil {
		return err
	}

	if err := r.repo.Update(ctx, t); err != nil {
		return err
	}
	r.updateCache(t)

	for _, l := range r.snapshotListeners() {
		l.ThingUpdated(existing.DeepCopy(), t.DeepCopy())
	}
	r.logger.Info("thing updated", "uid", t.UID)
	return nil
}

// Delete removes a thing and notifies change listeners.
// Returns the removed thing.
func (r *Registry) Delete(ctx context.Context, uid discovery.ThingUID) (*Thing, error) {
	existing, err := r.Get(ctx, uid)
	if err != nil {
		return nil, err
	}

	if err := r.repo.Delete(ctx, uid); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	delete(r.cache, uid)
	r.cacheMu.Unlock()

	for _, l := range r.snapshotListeners() {
		l.ThingRemoved(existing.DeepCopy())
	}
	r.logger.Info("thing deleted", "uid", uid)
	return existing, nil
}

// SetEnabled enables or disables a thing.
func (r *Registry) SetEnabled(ctx context.Context, uid discovery.ThingUID, enabled bool) error {
	t, err := r.Get(ctx, uid)
	if err != nil {
		return err
	}
	t.Enabled = enabled
	return r.Update(ctx, t)
}

// Count returns the number of cached things.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// updateCache stores a deep copy of the thing in the cache.
func (r *Registry) updateCache(t *Thing) {
	r.cacheMu.Lock()
	r.cache[t.UID] = t.DeepCopy()
	r.cacheMu.Unlock()
}
