package inbox

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/hearth-home/hearth-core/internal/discovery"
	"github.com/hearth-home/hearth-core/internal/thing"
)

// Logger defines the logging interface used by the inbox.
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

// Listener is notified about inbox mutations. The WebSocket event hub and
// the rule engine subscribe through this interface.
//
// Callbacks may be invoked concurrently. A panic in a callback is recovered
// and logged; it never affects other listeners.
type Listener interface {
	EntryAdded(e *Entry)
	EntryUpdated(e *Entry)
	EntryRemoved(e *Entry)
}

// Config controls inbox behaviour.
type Config struct {
	// AutoApprove approves every result as soon as it arrives.
	AutoApprove bool

	// AutoIgnore flags a result IGNORED when a registered thing already
	// carries the same representation property value.
	AutoIgnore bool

	// TTLCheckInterval is how often expired entries are swept.
	// Defaults to 30 seconds.
	TTLCheckInterval time.Duration
}

// Inbox is the durable holding area between "discovered" and "registered
// as a Thing". Entries are kept in memory for fast queries and written
// through to the repository for durability.
//
// All public methods are thread-safe.
type Inbox struct {
	repo   Repository
	things *thing.Registry
	cfg    Config

	mu      sync.RWMutex
	entries map[discovery.ThingUID]*Entry

	listenersMu sync.Mutex
	listeners   []Listener

	discoveryView *discoveryListener
	thingView     *thingChangeListener

	runMu       sync.Mutex
	janitorStop chan struct{}

	logger Logger
}

// NewInbox creates a new inbox backed by the given repository. The thing
// registry is consulted to skip results for already-registered things and
// to promote approved entries.
func NewInbox(repo Repository, things *thing.Registry, cfg Config) *Inbox {
	if cfg.TTLCheckInterval <= 0 {
		cfg.TTLCheckInterval = 30 * time.Second
	}
	i := &Inbox{
		repo:    repo,
		things:  things,
		cfg:     cfg,
		entries: make(map[discovery.ThingUID]*Entry),
		logger:  noopLogger{},
	}
	i.discoveryView = &discoveryListener{inbox: i}
	i.thingView = &thingChangeListener{inbox: i}
	return i
}

// SetLogger sets the logger for the inbox.
func (i *Inbox) SetLogger(logger Logger) {
	i.logger = logger
}

// DiscoveryListener returns the discovery-facing view of the inbox, for
// registration with the discovery registry.
func (i *Inbox) DiscoveryListener() discovery.Listener {
	return i.discoveryView
}

// ThingListener returns the thing-registry-facing view of the inbox, for
// registration as a change listener.
func (i *Inbox) ThingListener() thing.ChangeListener {
	return i.thingView
}

// AddListener registers a listener for inbox events.
func (i *Inbox) AddListener(l Listener) {
	if l == nil {
		return
	}
	i.listenersMu.Lock()
	defer i.listenersMu.Unlock()
	listeners := make([]Listener, 0, len(i.listeners)+1)
	listeners = append(listeners, i.listeners...)
	listeners = append(listeners, l)
	i.listeners = listeners
}

// RemoveListener unregisters a listener.
func (i *Inbox) RemoveListener(l Listener) {
	i.listenersMu.Lock()
	defer i.listenersMu.Unlock()
	listeners := make([]Listener, 0, len(i.listeners))
	for _, existing := range i.listeners {
		if existing != l {
			listeners = append(listeners, existing)
		}
	}
	i.listeners = listeners
}

// Start loads persisted entries into memory and starts the TTL janitor.
func (i *Inbox) Start(ctx context.Context) error {
	i.runMu.Lock()
	defer i.runMu.Unlock()

	if i.janitorStop != nil {
		return ErrAlreadyStarted
	}

	entries, err := i.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading inbox entries: %w", err)
	}

	i.mu.Lock()
	i.entries = make(map[discovery.ThingUID]*Entry, len(entries))
	for idx := range entries {
		e := entries[idx]
		i.entries[e.Result.ThingUID] = e.DeepCopy()
	}
	i.mu.Unlock()

	i.janitorStop = make(chan struct{})
	go i.janitor(i.janitorStop)

	i.logger.Info("inbox started", "entries", len(entries),
		"ttl_check_interval", i.cfg.TTLCheckInterval)
	return nil
}

// RefreshCache reloads the in-memory entry map from the repository.
// Used after bulk external changes to the inbox table.
func (i *Inbox) RefreshCache(ctx context.Context) error {
	entries, err := i.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading inbox entries: %w", err)
	}

	i.mu.Lock()
	i.entries = make(map[discovery.ThingUID]*Entry, len(entries))
	for idx := range entries {
		e := entries[idx]
		i.entries[e.Result.ThingUID] = e.DeepCopy()
	}
	i.mu.Unlock()

	i.logger.Info("inbox cache refreshed", "entries", len(entries))
	return nil
}

// Stop halts the TTL janitor. Entries remain persisted.
func (i *Inbox) Stop() {
	i.runMu.Lock()
	defer i.runMu.Unlock()

	if i.janitorStop == nil {
		return
	}
	close(i.janitorStop)
	i.janitorStop = nil
}

// janitor periodically sweeps expired entries until stop is closed.
func (i *Inbox) janitor(stop <-chan struct{}) {
	ticker := time.NewTicker(i.cfg.TTLCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			i.sweepExpired(context.Background(), now)
		}
	}
}

// Add inserts or merges a discovery result. A nil result is a silent no-op.
// Results for things already registered are skipped. An existing entry with
// the same thing UID is synchronized in place, preserving its flag, and an
// updated event is fired; otherwise the result is inserted as NEW and an
// added event is fired.
func (i *Inbox) Add(ctx context.Context, result *discovery.Result, discoverer string) error {
	if result == nil {
		return nil
	}
	if err := result.ThingUID.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if i.things.Exists(ctx, result.ThingUID) {
		i.logger.Debug("result skipped, thing already registered",
			"thing_uid", result.ThingUID)
		return nil
	}

	i.mu.Lock()
	existing, ok := i.entries[result.ThingUID]

	var updated *Entry
	var added *Entry
	if ok {
		merged := existing.DeepCopy()
		merged.Result.Synchronize(result)
		merged.Discoverer = discoverer
		if err := i.repo.Put(ctx, merged); err != nil {
			i.mu.Unlock()
			return err
		}
		i.entries[result.ThingUID] = merged
		updated = merged.DeepCopy()
	} else {
		e := &Entry{Result: *result.DeepCopy(), Discoverer: discoverer}
		if !e.Result.Flag.Valid() {
			e.Result.Flag = discovery.FlagNew
		}
		if e.Result.ThingTypeUID == "" {
			e.Result.ThingTypeUID = e.Result.ThingUID.ThingTypeUID()
		}
		if e.Result.Timestamp.IsZero() {
			e.Result.Timestamp = time.Now().UTC()
		}
		if err := i.repo.Put(ctx, e); err != nil {
			i.mu.Unlock()
			return err
		}
		i.entries[e.Result.ThingUID] = e
		added = e.DeepCopy()
	}
	i.mu.Unlock()

	if updated != nil {
		i.logger.Debug("inbox entry updated", "thing_uid", updated.Result.ThingUID)
		i.notify(func(l Listener) { l.EntryUpdated(updated) })
		return nil
	}

	i.logger.Info("inbox entry added", "thing_uid", added.Result.ThingUID,
		"discoverer", discoverer)
	i.notify(func(l Listener) { l.EntryAdded(added) })
	i.autoProcess(ctx, added)
	return nil
}

// autoProcess applies the configured automatic handling to a new entry.
func (i *Inbox) autoProcess(ctx context.Context, e *Entry) {
	if i.cfg.AutoIgnore {
		value := e.Result.RepresentationValue()
		if value != nil {
			if t, ok := i.things.FindByProperty(e.Result.RepresentationProperty, value); ok {
				i.logger.Info("auto-ignoring result, representation value already registered",
					"thing_uid", e.Result.ThingUID, "registered_uid", t.UID)
				if err := i.SetFlag(ctx, e.Result.ThingUID, discovery.FlagIgnored); err != nil {
					i.logger.Error("auto-ignore failed", "thing_uid", e.Result.ThingUID, "error", err)
				}
				return
			}
		}
	}

	if i.cfg.AutoApprove {
		if _, err := i.Approve(ctx, e.Result.ThingUID, "", ""); err != nil {
			i.logger.Error("auto-approve failed", "thing_uid", e.Result.ThingUID, "error", err)
		}
	}
}

// Get retrieves an entry by thing UID.
// Returns ErrNotInInbox if no entry exists.
func (i *Inbox) Get(uid discovery.ThingUID) (*Entry, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	e, ok := i.entries[uid]
	if !ok {
		return nil, ErrNotInInbox
	}
	return e.DeepCopy(), nil
}

// List returns all entries.
func (i *Inbox) List() []Entry {
	i.mu.RLock()
	defer i.mu.RUnlock()

	entries := make([]Entry, 0, len(i.entries))
	for _, e := range i.entries {
		entries = append(entries, *e.DeepCopy())
	}
	return entries
}

// ListByFlag returns all entries carrying the given flag.
func (i *Inbox) ListByFlag(flag discovery.Flag) []Entry {
	i.mu.RLock()
	defer i.mu.RUnlock()

	var entries []Entry
	for _, e := range i.entries {
		if e.Result.Flag == flag {
			entries = append(entries, *e.DeepCopy())
		}
	}
	return entries
}

// Count returns the number of entries.
func (i *Inbox) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Remove deletes an entry and fires a removed event. Removing an entry that
// other entries name as their bridge drops those entries too. Returns false
// without error if no entry exists.
func (i *Inbox) Remove(ctx context.Context, uid discovery.ThingUID) (bool, error) {
	i.mu.Lock()
	entry, ok := i.entries[uid]
	if !ok {
		i.mu.Unlock()
		return false, nil
	}

	removed := []*Entry{entry.DeepCopy()}
	if err := i.deleteLocked(ctx, uid); err != nil {
		i.mu.Unlock()
		return false, err
	}

	// Entries discovered through the removed entry's thing are unreachable.
	for childUID, child := range i.entries {
		if child.Result.BridgeUID != uid {
			continue
		}
		removed = append(removed, child.DeepCopy())
		if err := i.deleteLocked(ctx, childUID); err != nil {
			i.mu.Unlock()
			return false, err
		}
	}
	i.mu.Unlock()

	for _, e := range removed {
		e := e
		i.logger.Info("inbox entry removed", "thing_uid", e.Result.ThingUID)
		i.notify(func(l Listener) { l.EntryRemoved(e) })
	}
	return true, nil
}

// Clear removes every entry and fires a removed event for each. Returns
// the number of entries removed. Bindings may rediscover the things on
// their next scan.
func (i *Inbox) Clear(ctx context.Context) (int, error) {
	i.mu.Lock()
	var removed []*Entry
	for uid, e := range i.entries {
		if err := i.deleteLocked(ctx, uid); err != nil {
			i.mu.Unlock()
			return len(removed), err
		}
		removed = append(removed, e.DeepCopy())
	}
	i.mu.Unlock()

	for _, e := range removed {
		e := e
		i.logger.Info("inbox entry removed", "thing_uid", e.Result.ThingUID)
		i.notify(func(l Listener) { l.EntryRemoved(e) })
	}
	return len(removed), nil
}

// deleteLocked removes an entry from the repository and the cache.
// Callers must hold i.mu.
func (i *Inbox) deleteLocked(ctx context.Context, uid discovery.ThingUID) error {
	if err := i.repo.Delete(ctx, uid); err != nil {
		return err
	}
	delete(i.entries, uid)
	return nil
}

// SetFlag mutates an entry's flag in place. Invalid or empty flags are
// normalised to NEW. An updated event is fired.
func (i *Inbox) SetFlag(ctx context.Context, uid discovery.ThingUID, flag discovery.Flag) error {
	i.mu.Lock()
	entry, ok := i.entries[uid]
	if !ok {
		i.mu.Unlock()
		return ErrNotInInbox
	}

	changed := entry.DeepCopy()
	changed.Result.SetFlag(flag)
	if err := i.repo.Put(ctx, changed); err != nil {
		i.mu.Unlock()
		return err
	}
	i.entries[uid] = changed
	event := changed.DeepCopy()
	i.mu.Unlock()

	i.logger.Debug("inbox entry flag set", "thing_uid", uid, "flag", event.Result.Flag)
	i.notify(func(l Listener) { l.EntryUpdated(event) })
	return nil
}

// Approve promotes an entry to a registered thing and removes it from the
// inbox. An empty label keeps the entry's label; a non-empty newThingID
// re-addresses the thing as "<binding>:<type>:<newThingID>".
// Returns (nil, ErrNotInInbox) if no entry exists.
func (i *Inbox) Approve(ctx context.Context, uid discovery.ThingUID, label, newThingID string) (*thing.Thing, error) {
	i.mu.RLock()
	entry, ok := i.entries[uid]
	if !ok {
		i.mu.RUnlock()
		return nil, ErrNotInInbox
	}
	approved := entry.DeepCopy()
	i.mu.RUnlock()

	thingUID := approved.Result.ThingUID
	if newThingID != "" {
		thingUID = discovery.NewThingUID(approved.Result.ThingTypeUID, newThingID)
		if err := thingUID.Validate(); err != nil {
			return nil, fmt.Errorf("%w: new thing id: %v", ErrInvalidEntry, err)
		}
	}
	if label == "" {
		label = approved.Result.Label
	}

	t := &thing.Thing{
		UID:          thingUID,
		ThingTypeUID: approved.Result.ThingTypeUID,
		BridgeUID:    approved.Result.BridgeUID,
		Label:        label,
		Properties:   approved.Result.Properties,
		Config:       map[string]any{},
		Enabled:      true,
	}
	if err := i.things.Add(ctx, t); err != nil {
		return nil, fmt.Errorf("registering approved thing: %w", err)
	}

	// The thing-added event usually evicts the entry already; this covers
	// approvals under a new thing ID, where the UIDs differ.
	if _, err := i.Remove(ctx, uid); err != nil {
		i.logger.Error("removing approved entry", "thing_uid", uid, "error", err)
	}

	i.logger.Info("inbox entry approved", "thing_uid", uid, "registered_uid", thingUID)
	return t.DeepCopy(), nil
}

// sweepExpired removes entries whose TTL has elapsed at the given time.
func (i *Inbox) sweepExpired(ctx context.Context, now time.Time) {
	i.mu.Lock()
	var expired []*Entry
	for uid, e := range i.entries {
		if !e.Result.Expired(now) {
			continue
		}
		if err := i.deleteLocked(ctx, uid); err != nil {
			i.logger.Error("removing expired entry", "thing_uid", uid, "error", err)
			continue
		}
		expired = append(expired, e.DeepCopy())
	}
	i.mu.Unlock()

	for _, e := range expired {
		e := e
		i.logger.Info("inbox entry expired", "thing_uid", e.Result.ThingUID)
		i.notify(func(l Listener) { l.EntryRemoved(e) })
	}
}

// removeOlder evicts entries produced by the given discoverer before the
// given time, restricted to the given thing types and optionally to one
// bridge. Returns the UIDs of the removed entries.
func (i *Inbox) removeOlder(ctx context.Context, discoverer string, before time.Time, thingTypes []discovery.ThingTypeUID, bridgeUID discovery.ThingUID) []discovery.ThingUID {
	typeSet := make(map[discovery.ThingTypeUID]struct{}, len(thingTypes))
	for _, tt := range thingTypes {
		typeSet[tt] = struct{}{}
	}

	i.mu.Lock()
	var removed []*Entry
	for uid, e := range i.entries {
		if e.Discoverer != discoverer {
			continue
		}
		if !e.Result.Timestamp.Before(before) {
			continue
		}
		if len(typeSet) > 0 {
			if _, ok := typeSet[e.Result.ThingTypeUID]; !ok {
				continue
			}
		}
		if bridgeUID != "" && e.Result.BridgeUID != bridgeUID {
			continue
		}
		if err := i.deleteLocked(ctx, uid); err != nil {
			i.logger.Error("removing stale entry", "thing_uid", uid, "error", err)
			continue
		}
		removed = append(removed, e.DeepCopy())
	}
	i.mu.Unlock()

	uids := make([]discovery.ThingUID, 0, len(removed))
	for _, e := range removed {
		e := e
		uids = append(uids, e.Result.ThingUID)
		i.logger.Debug("stale inbox entry removed", "thing_uid", e.Result.ThingUID,
			"discoverer", discoverer)
		i.notify(func(l Listener) { l.EntryRemoved(e) })
	}
	return uids
}

// removeByBridge drops all entries discovered through the given bridge.
func (i *Inbox) removeByBridge(ctx context.Context, bridgeUID discovery.ThingUID) {
	i.mu.Lock()
	var removed []*Entry
	for uid, e := range i.entries {
		if e.Result.BridgeUID != bridgeUID {
			continue
		}
		if err := i.deleteLocked(ctx, uid); err != nil {
			i.logger.Error("removing bridged entry", "thing_uid", uid, "error", err)
			continue
		}
		removed = append(removed, e.DeepCopy())
	}
	i.mu.Unlock()

	for _, e := range removed {
		e := e
		i.logger.Info("inbox entry removed with bridge", "thing_uid", e.Result.ThingUID,
			"bridge_uid", bridgeUID)
		i.notify(func(l Listener) { l.EntryRemoved(e) })
	}
}

// unignoreMatching restores IGNORED entries whose representation value
// matches a property of the removed thing. The thing that caused the
// auto-ignore is gone, so the result is actionable again.
func (i *Inbox) unignoreMatching(ctx context.Context, t *thing.Thing) {
	if t.Properties == nil {
		return
	}

	i.mu.RLock()
	var restore []discovery.ThingUID
	for uid, e := range i.entries {
		if e.Result.Flag != discovery.FlagIgnored {
			continue
		}
		value := e.Result.RepresentationValue()
		if value == nil {
			continue
		}
		// DeepEqual, not ==: JSON-decoded property values may be maps or
		// slices.
		if v, ok := t.Properties[e.Result.RepresentationProperty]; ok && reflect.DeepEqual(v, value) {
			restore = append(restore, uid)
		}
	}
	i.mu.RUnlock()

	for _, uid := range restore {
		if err := i.SetFlag(ctx, uid, discovery.FlagNew); err != nil {
			i.logger.Error("restoring ignored entry", "thing_uid", uid, "error", err)
		}
	}
}

// notify fans an event out to all listeners with per-listener panic
// isolation.
func (i *Inbox) notify(fn func(Listener)) {
	i.listenersMu.Lock()
	listeners := i.listeners
	i.listenersMu.Unlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					i.logger.Error("inbox listener panicked", "panic", r)
				}
			}()
			fn(l)
		}()
	}
}

// discoveryListener adapts the inbox to the discovery listener contract.
type discoveryListener struct {
	inbox *Inbox
}

func (d *discoveryListener) ThingDiscovered(source *discovery.Service, result *discovery.Result) {
	if err := d.inbox.Add(context.Background(), result, source.ID()); err != nil {
		d.inbox.logger.Error("adding discovery result",
			"thing_uid", result.ThingUID, "error", err)
	}
}

func (d *discoveryListener) ThingRemoved(source *discovery.Service, thingUID discovery.ThingUID) {
	if _, err := d.inbox.Remove(context.Background(), thingUID); err != nil {
		d.inbox.logger.Error("removing discovery result",
			"thing_uid", thingUID, "error", err)
	}
}

func (d *discoveryListener) RemoveOlderResults(source *discovery.Service, before time.Time, thingTypes []discovery.ThingTypeUID, bridgeUID discovery.ThingUID) []discovery.ThingUID {
	return d.inbox.removeOlder(context.Background(), source.ID(), before, thingTypes, bridgeUID)
}

// thingChangeListener adapts the inbox to the thing registry's change
// listener contract.
type thingChangeListener struct {
	inbox *Inbox
}

func (a *thingChangeListener) ThingAdded(t *thing.Thing) {
	// A registered thing supersedes its inbox entry.
	if _, err := a.inbox.Remove(context.Background(), t.UID); err != nil {
		a.inbox.logger.Error("evicting entry for registered thing",
			"thing_uid", t.UID, "error", err)
	}
}

func (a *thingChangeListener) ThingUpdated(old, updated *thing.Thing) {}

func (a *thingChangeListener) ThingRemoved(t *thing.Thing) {
	ctx := context.Background()
	a.inbox.removeByBridge(ctx, t.UID)
	a.inbox.unignoreMatching(ctx, t)
}
