// Package schema holds the action registry and the parameter validator.
//
// DESIGN: An action is a named unit of work bound to a downstream handler:
//   - ActionSchema: name, ordered parameter specs, handler binding
//   - Registry:     name → schema, built once at startup, read-only afterwards
//   - Validate():   raw caller params → ParameterSet (defaults injected, extras kept)
//
// Adding an action is a config change only (see configs/*.yaml `actions:`).
package schema

import (
	"fmt"
	"strings"
	"time"
)

// ProviderServiceID is the reserved handler service id for actions served by
// the provider router instead of a plain downstream service.
const ProviderServiceID = "llm"

// ParamType is the declared type of a parameter.
type ParamType string

const (
	TypeAny     ParamType = "any"
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Valid reports whether t is a known parameter type. Empty means any.
func (t ParamType) Valid() bool {
	switch t {
	case "", TypeAny, TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

// Parameter describes one action parameter.
type Parameter struct {
	Name     string    `yaml:"name" json:"name"`
	Type     ParamType `yaml:"type" json:"type"`
	Required bool      `yaml:"required" json:"required"`
	Default  any       `yaml:"default,omitempty" json:"default,omitempty"`
}

// Handler binds an action to the downstream that serves it.
type Handler struct {
	ServiceID   string `yaml:"service_id" json:"service_id"`
	Endpoint    string `yaml:"endpoint" json:"endpoint"`
	TimeoutMs   int    `yaml:"timeout_ms" json:"timeout_ms"`
	Requirement string `yaml:"requirement,omitempty" json:"requirement,omitempty"` // provider-routed actions only
}

// Timeout returns the per-attempt timeout of the handler.
func (h Handler) Timeout() time.Duration {
	return time.Duration(h.TimeoutMs) * time.Millisecond
}

// ProviderRouted reports whether the action is served by the provider router.
func (h Handler) ProviderRouted() bool {
	return h.ServiceID == ProviderServiceID
}

// ActionSchema is the immutable definition of a callable action.
type ActionSchema struct {
	Name       string      `yaml:"name" json:"name"`
	Parameters []Parameter `yaml:"parameters" json:"parameters"`
	Handler    Handler     `yaml:"handler" json:"handler"`
}

// Prefix returns the namespace of the action ("research" for "research.search").
func (s ActionSchema) Prefix() string {
	if idx := strings.Index(s.Name, "."); idx > 0 {
		return s.Name[:idx]
	}
	return s.Name
}

// Validate checks the schema definition itself (not caller params).
func (s ActionSchema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("action name is required")
	}
	seen := make(map[string]bool, len(s.Parameters))
	for i, p := range s.Parameters {
		if p.Name == "" {
			return fmt.Errorf("action %q: parameters[%d].name is required", s.Name, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("action %q: duplicate parameter %q", s.Name, p.Name)
		}
		seen[p.Name] = true
		if !p.Type.Valid() {
			return fmt.Errorf("action %q: parameter %q has unknown type %q", s.Name, p.Name, p.Type)
		}
		if p.Default != nil && !matchesType(p.Default, p.Type) {
			return fmt.Errorf("action %q: default for %q is not a %s", s.Name, p.Name, p.Type)
		}
	}
	if s.Handler.ServiceID == "" {
		return fmt.Errorf("action %q: handler.service_id is required", s.Name)
	}
	if s.Handler.TimeoutMs <= 0 {
		return fmt.Errorf("action %q: handler.timeout_ms must be > 0", s.Name)
	}
	if !s.Handler.ProviderRouted() && s.Handler.Endpoint == "" {
		return fmt.Errorf("action %q: handler.endpoint is required", s.Name)
	}
	return nil
}

// clone returns a copy that shares no slices with s.
func (s ActionSchema) clone() ActionSchema {
	out := s
	out.Parameters = make([]Parameter, len(s.Parameters))
	for i, p := range s.Parameters {
		p.Default = deepCopy(p.Default)
		out.Parameters[i] = p
	}
	return out
}

// ParameterSet is a validated parameter map. Built fresh for every call.
type ParameterSet map[string]any

// String returns the value of key as a string, or "" when absent or not a string.
func (p ParameterSet) String(key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}

// Float returns the value of key as a float64.
func (p ParameterSet) Float(key string) (float64, bool) {
	return toFloat(p[key])
}
