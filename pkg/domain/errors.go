package domain

import "fmt"

// NotFoundError reports a referenced entity that is absent from the ledger.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// AlreadyExistsError reports a creation attempt for a key that is taken.
type AlreadyExistsError struct {
	Entity EntityType
	ID     string
}

func (e AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.ID)
}

// BusinessRuleError reports a transition rejected by a business invariant,
// such as insufficient remaining permits.
type BusinessRuleError struct {
	Reason string
}

func (e BusinessRuleError) Error() string { return e.Reason }

// ValidationError reports malformed or missing arguments, detected before any
// ledger access.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string { return e.Reason }
