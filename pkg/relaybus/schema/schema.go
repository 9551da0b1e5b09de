// Package schema implements the two-level event-type -> schema-version ->
// validator registry that gates publish and transact payloads.
package schema

import (
	"errors"
	"fmt"
	"sync"
)

// Validator checks a payload for a specific (event-type, schema-version).
// A nil error means the payload is acceptable.
type Validator interface {
	Validate(payload any) error
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc func(payload any) error

// Validate calls f.
func (f ValidatorFunc) Validate(payload any) error { return f(payload) }

// AcceptAny is a Validator that never rejects a payload. Useful for tests
// and for event types that carry no structural schema.
var AcceptAny Validator = ValidatorFunc(func(any) error { return nil })

// ErrSchemaMissing is returned when no validator is registered for the
// requested (event-type, schema-version) pair.
var ErrSchemaMissing = errors.New("schema: no validator registered for event-type/version")

// Registry is a concurrency-safe event-type -> schema-version -> Validator
// map. The zero value is not usable; construct with New.
type Registry struct {
	mu    sync.RWMutex
	types map[string]map[string]Validator
}

// New creates an empty registry. Passing an initial set is done via
// Register after construction.
func New() *Registry {
	return &Registry{types: make(map[string]map[string]Validator)}
}

// NewFromMap builds a registry from a pre-populated nested map, the shape
// most construction call sites already have on hand.
func NewFromMap(initial map[string]map[string]Validator) *Registry {
	r := New()
	for eventType, versions := range initial {
		for version, v := range versions {
			r.Register(eventType, version, v)
		}
	}
	return r
}

// Register adds or replaces the validator for (eventType, schemaVersion).
func (r *Registry) Register(eventType, schemaVersion string, v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions, ok := r.types[eventType]
	if !ok {
		versions = make(map[string]Validator)
		r.types[eventType] = versions
	}
	versions[schemaVersion] = v
}

// Get returns the validator for (eventType, schemaVersion), or
// ErrSchemaMissing if none is registered.
func (r *Registry) Get(eventType, schemaVersion string) (Validator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.types[eventType]
	if !ok {
		return nil, ErrSchemaMissing
	}
	v, ok := versions[schemaVersion]
	if !ok {
		return nil, ErrSchemaMissing
	}
	return v, nil
}

// Validate looks up (eventType, schemaVersion) and runs payload through it.
// Returns ErrSchemaMissing when absent, or the validator's own error when
// validation fails.
func (r *Registry) Validate(eventType, schemaVersion string, payload any) error {
	v, err := r.Get(eventType, schemaVersion)
	if err != nil {
		return err
	}
	if err := v.Validate(payload); err != nil {
		return fmt.Errorf("schema validation failed for %s/%s: %w", eventType, schemaVersion, err)
	}
	return nil
}

// Has reports whether a validator is registered for (eventType, schemaVersion).
func (r *Registry) Has(eventType, schemaVersion string) bool {
	_, err := r.Get(eventType, schemaVersion)
	return err == nil
}

// Types returns every registered event type, in no particular order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for t := range r.types {
		out = append(out, t)
	}
	return out
}

// Versions returns every schema version registered for eventType.
func (r *Registry) Versions(eventType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.types[eventType]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	return out
}
