package schema

import (
	"errors"
	"fmt"
	"sort"
)

// ErrRegistryFrozen is returned by Register once the registry is built.
var ErrRegistryFrozen = errors.New("schema registry is frozen")

// Registry maps action names to schemas.
//
// Registration happens while the registry is built; Freeze then makes it
// read-only and lookups run without locks.
type Registry struct {
	schemas map[string]ActionSchema
	frozen  bool
}

// NewRegistry creates an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]ActionSchema)}
}

// NewRegistryFromConfig builds a frozen registry from the static action list.
func NewRegistryFromConfig(actions []ActionSchema) (*Registry, error) {
	r := NewRegistry()
	for _, a := range actions {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	r.Freeze()
	return r, nil
}

// Register adds a schema. Fails if the name is already registered or the
// registry is frozen. Not safe for concurrent use.
func (r *Registry) Register(s ActionSchema) error {
	if r.frozen {
		return fmt.Errorf("register %q: %w", s.Name, ErrRegistryFrozen)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	if _, exists := r.schemas[s.Name]; exists {
		return &Error{Kind: KindDuplicateSchema, Action: s.Name}
	}
	r.schemas[s.Name] = s.clone()
	return nil
}

// Freeze ends registration. Call it before sharing the registry.
func (r *Registry) Freeze() { r.frozen = true }

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (ActionSchema, error) {
	s, ok := r.schemas[name]
	if !ok {
		return ActionSchema{}, unknownAction(name)
	}
	return s.clone(), nil
}

// Names returns all registered action names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int {
	return len(r.schemas)
}

// Validate checks raw against the named schema and returns a fresh ParameterSet.
//
// Required parameters are checked in declaration order and the first missing
// one is reported. Absent optional parameters get a copy of their default.
// Keys not declared by the schema are passed through unchanged.
func (r *Registry) Validate(name string, raw map[string]any) (ParameterSet, error) {
	s, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return ValidateAgainst(s, raw)
}

// ValidateAgainst validates raw against an already resolved schema.
func ValidateAgainst(s ActionSchema, raw map[string]any) (ParameterSet, error) {
	out := make(ParameterSet, len(raw)+len(s.Parameters))
	for k, v := range raw {
		out[k] = v
	}

	for _, p := range s.Parameters {
		v, present := raw[p.Name]
		if !present || v == nil {
			if p.Required {
				return nil, missingParameter(s.Name, p.Name)
			}
			if p.Default != nil {
				out[p.Name] = deepCopy(p.Default)
			} else {
				delete(out, p.Name)
			}
			continue
		}
		if !matchesType(v, p.Type) {
			return nil, typeMismatch(s.Name, p.Name, p.Type)
		}
	}
	return out, nil
}
