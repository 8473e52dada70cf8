package providers

import (
	"fmt"
	"strings"
)

// RequirementTag is an abstract routing hint. The set is closed.
type RequirementTag int

const (
	TagDefault RequirementTag = iota
	TagRealtime
	TagComplex
	TagCheap
	TagReliable
)

// AllTags lists every tag, in declaration order.
var AllTags = []RequirementTag{TagDefault, TagRealtime, TagComplex, TagCheap, TagReliable}

func (t RequirementTag) String() string {
	switch t {
	case TagDefault:
		return "default"
	case TagRealtime:
		return "realtime"
	case TagComplex:
		return "complex"
	case TagCheap:
		return "cheap"
	case TagReliable:
		return "reliable"
	}
	return fmt.Sprintf("RequirementTag(%d)", int(t))
}

// ParseRequirementTag parses a tag name. Empty input is TagDefault.
func ParseRequirementTag(s string) (RequirementTag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default", "balanced":
		return TagDefault, nil
	case "realtime", "latency":
		return TagRealtime, nil
	case "complex", "reasoning":
		return TagComplex, nil
	case "cheap", "cost":
		return TagCheap, nil
	case "reliable", "reliability":
		return TagReliable, nil
	}
	return TagDefault, fmt.Errorf("unknown requirement %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t RequirementTag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *RequirementTag) UnmarshalText(b []byte) error {
	parsed, err := ParseRequirementTag(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
