package habitat

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyShutdown is returned by Shutdown and ScopeInstance.Close
	// when called more than once.
	ErrAlreadyShutdown = errors.New("already shut down")

	// ErrNilProvider is returned when registering a nil provider.
	ErrNilProvider = errors.New("nil provider")

	// ErrValueEvicted is returned by an extracted-value provider whose
	// scope instance no longer holds the value.
	ErrValueEvicted = errors.New("extracted value no longer present in its scope")
)

// Phase names the step of the produce protocol that failed.
type Phase string

const (
	PhaseInstantiate Phase = "instantiate"
	PhaseScope       Phase = "scope"
	PhaseInject      Phase = "inject"
	PhasePost        Phase = "post-construct"
	PhaseExtract     Phase = "extract"
)

// NotFoundError represents a lookup with no matching provider.
type NotFoundError struct {
	Type string
	Name string
}

func (e *NotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("no provider found for type %s named %q", e.Type, e.Name)
	}
	return fmt.Sprintf("no provider found for type: %s", e.Type)
}

// InstantiationError represents a failure to create a bare instance.
type InstantiationError struct {
	Type string
	Err  error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("failed to create %s: %v", e.Type, e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// InjectionError represents an injection point that could not be satisfied.
type InjectionError struct {
	Type   string
	Point  string
	Reason string
	Err    error
}

func (e *InjectionError) Error() string {
	msg := fmt.Sprintf("cannot satisfy %s.%s: %s", e.Type, e.Point, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InjectionError) Unwrap() error {
	return e.Err
}

// ComponentError is the umbrella failure of the produce protocol.
type ComponentError struct {
	Type  string
	Phase Phase
	Err   error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("component %s failed during %s: %v", e.Type, e.Phase, e.Err)
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}

// ScopeError represents a custom scope with no active instance.
type ScopeError struct {
	Scope string
	Type  string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("scope %s returned no active instance for %s", e.Scope, e.Type)
}

// ExtractionError represents a failing or malformed extraction point.
type ExtractionError struct {
	Type   string
	Point  string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extraction failed on %s.%s: %s", e.Type, e.Point, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// CircularDependencyError represents a dependency cycle. Chain lists the
// providers from the first occurrence of the repeated one to its re-entry.
type CircularDependencyError struct {
	Chain []string
}

func (e *CircularDependencyError) Error() string {
	return "circular dependency detected: " + strings.Join(e.Chain, " -> ")
}

// TypeMismatchError represents a resolved value of an unexpected type.
type TypeMismatchError struct {
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, got %s", e.Expected, e.Got)
}
