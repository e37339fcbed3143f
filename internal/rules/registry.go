package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry and Engine.
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

// Registry provides rule management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Rule
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new rule registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Rule),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all rules from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	all, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Clear and rebuild cache with deep copies
	r.cache = make(map[string]*Rule, len(all))
	for i := range all {
		rule := all[i]
		r.cache[rule.ID] = rule.DeepCopy()
	}

	r.logger.Info("rule cache refreshed", "count", len(all))
	return nil
}

// Get retrieves a rule by ID.
// The returned rule is a deep copy; callers can safely modify it.
func (r *Registry) Get(_ context.Context, id string) (*Rule, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}
	return nil, ErrRuleNotFound
}

// List retrieves all rules sorted by name.
// Returns deep copies; callers can safely modify them.
func (r *Registry) List(_ context.Context) ([]Rule, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	all := make([]Rule, 0, len(r.cache))
	for _, rule := range r.cache {
		all = append(all, *rule.DeepCopy())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}

// ListByTag retrieves all rules carrying the given tag.
func (r *Registry) ListByTag(_ context.Context, tag string) ([]Rule, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var matched []Rule
	for _, rule := range r.cache {
		for _, t := range rule.Tags {
			if t == tag {
				matched = append(matched, *rule.DeepCopy())
				break
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	return matched, nil
}

// Create validates, persists, and caches a new rule.
func (r *Registry) Create(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = GenerateID()
	}

	if err := rule.Validate(); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, rule); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[rule.ID] = rule.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("rule created", "id", rule.ID, "name", rule.Name)
	return nil
}

// Update validates, persists, and updates the cached rule.
func (r *Registry) Update(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, rule); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[rule.ID] = rule.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("rule updated", "id", rule.ID, "name", rule.Name)
	return nil
}

// Delete removes a rule from persistence and cache.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("rule deleted", "id", id)
	return nil
}

// SetEnabled enables or disables a rule.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	rule, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	rule.Enabled = enabled
	return r.Update(ctx, rule)
}

// Count returns the number of cached rules.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
