package rules

import "errors"

// Domain errors for the rules package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, rules.ErrRuleNotFound) {
//	    // handle not found case
//	}
var (
	// ErrRuleNotFound is returned when a rule ID does not exist.
	ErrRuleNotFound = errors.New("rule: not found")

	// ErrRuleExists is returned when creating a rule with an ID that already exists.
	ErrRuleExists = errors.New("rule: already exists")

	// ErrRuleDisabled is returned when attempting to run a disabled rule.
	ErrRuleDisabled = errors.New("rule: disabled")

	// ErrInvalidRule is returned when rule validation fails.
	ErrInvalidRule = errors.New("rule: invalid")

	// ErrInvalidName is returned when a rule name is empty or too long.
	ErrInvalidName = errors.New("rule: invalid name")

	// ErrInvalidPattern is returned when a trigger pattern is malformed.
	ErrInvalidPattern = errors.New("rule: invalid trigger pattern")

	// ErrNoSource is returned when a rule has no Lua source.
	ErrNoSource = errors.New("rule: no source")
)
