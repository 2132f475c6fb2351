package protocol

import "fmt"

// NotFoundError reports a missing project, branch, or parent reference.
// It is propagated to callers, never recovered locally. List operations
// return empty slices instead of this error.
type NotFoundError struct {
	Kind string // "project", "branch", "mission", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// ValidationError reports a bad type, path, interval, or other input
// that fails a precondition before any write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SecurityViolationError reports an artifact path escaping the sandbox
// roots. Nothing is written when this is returned.
type SecurityViolationError struct {
	Path  string
	Roots []string
}

func (e *SecurityViolationError) Error() string {
	return fmt.Sprintf("security violation: artifact path %q must be within one of %v", e.Path, e.Roots)
}

// MissingCredentialsError distinguishes an unconfigured search provider
// from a generic failure, so the mission runner can mark a mission
// blocked instead of retrying it forever.
type MissingCredentialsError struct {
	Provider string
	EnvVar   string
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("%s credentials missing: %s not set", e.Provider, e.EnvVar)
}
