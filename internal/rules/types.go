package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxDescriptionLen = 500
	maxSourceLen      = 64 * 1024
	maxTags           = 20
)

// Rule is a Lua automation rule triggered by hub events.
type Rule struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Description (optional)
	Description string `json:"description,omitempty"`

	// Enabled controls whether the rule runs.
	Enabled bool `json:"enabled"`

	// TriggerPattern selects the events the rule reacts to, e.g.
	// "inbox.added", "thing.*" or "*".
	TriggerPattern string `json:"trigger_pattern"`

	// LuaSource is the script body. It defines an on_event(event)
	// function, or is executed as the handler itself.
	LuaSource string `json:"lua_source"`

	// Tags for grouping and filtering.
	Tags []string `json:"tags,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates an independent copy of the rule.
func (r *Rule) DeepCopy() *Rule {
	if r == nil {
		return nil
	}
	cpy := *r
	if r.Tags != nil {
		cpy.Tags = make([]string, len(r.Tags))
		copy(cpy.Tags, r.Tags)
	}
	return &cpy
}

// Validate performs validation on a rule.
// Returns an error describing the first validation failure found.
func (r *Rule) Validate() error {
	if r == nil {
		return ErrInvalidRule
	}

	trimmed := strings.TrimSpace(r.Name)
	if trimmed == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(r.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}

	if len(r.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidRule, maxDescriptionLen)
	}

	if err := ValidatePattern(r.TriggerPattern); err != nil {
		return err
	}

	if strings.TrimSpace(r.LuaSource) == "" {
		return ErrNoSource
	}
	if len(r.LuaSource) > maxSourceLen {
		return fmt.Errorf("%w: source exceeds %d bytes", ErrInvalidRule, maxSourceLen)
	}

	if len(r.Tags) > maxTags {
		return fmt.Errorf("%w: exceeds %d tags", ErrInvalidRule, maxTags)
	}

	return nil
}

// ValidatePattern checks a trigger pattern. Valid forms are "*", an exact
// event type like "inbox.added", or a namespace wildcard like "inbox.*".
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: pattern cannot be empty", ErrInvalidPattern)
	}
	if pattern == "*" {
		return nil
	}
	star := strings.Index(pattern, "*")
	if star == -1 {
		return nil
	}
	if star != len(pattern)-1 || !strings.HasSuffix(pattern, ".*") {
		return fmt.Errorf("%w: %q (wildcard only allowed as trailing \".*\")", ErrInvalidPattern, pattern)
	}
	return nil
}

// MatchPattern reports whether an event type matches a trigger pattern.
func MatchPattern(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return pattern == eventType
}

// GenerateID creates a new UUID for a rule.
func GenerateID() string {
	return uuid.New().String()
}
