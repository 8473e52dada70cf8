package normalize

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/compresr/action-gateway/internal/schema"
)

// Mapped is what a mapper extracts from a raw response.
type Mapped struct {
	Items   []Item
	Summary string
	Partial bool
	Errors  []string
}

// Mapper extracts canonical records from a parsed response. at is the
// normalization time, used when the response has no fetch timestamp.
type Mapper func(raw gjson.Result, at time.Time) Mapped

type rule struct {
	prefix string
	mapper Mapper
}

// Normalizer selects a Mapper by action-name prefix.
type Normalizer struct {
	rules    []rule
	fallback Mapper
	now      func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithMapper adds or replaces the mapper for prefix (e.g. "research.").
func WithMapper(prefix string, m Mapper) Option {
	return func(n *Normalizer) {
		for i := range n.rules {
			if n.rules[i].prefix == prefix {
				n.rules[i].mapper = m
				return
			}
		}
		n.rules = append(n.rules, rule{prefix: prefix, mapper: m})
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// New creates a normalizer with the research and chat mappers installed.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		rules: []rule{
			{prefix: "research.", mapper: MapResearch},
			{prefix: "chat.", mapper: MapChat},
		},
		fallback: MapGeneric,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var defaultNormalizer = New()

// Normalize runs the default normalizer.
func Normalize(action string, raw []byte, input schema.ParameterSet) *ActionResult {
	return defaultNormalizer.Normalize(action, raw, input)
}

// Normalize builds the ActionResult for one successful downstream response.
func (n *Normalizer) Normalize(action string, raw []byte, input schema.ParameterSet) *ActionResult {
	return n.NormalizeWith(n.mapperFor(action), action, raw, input)
}

// NormalizeWith is Normalize with an explicit mapper, for actions whose
// response shape is not implied by their name.
func (n *Normalizer) NormalizeWith(m Mapper, action string, raw []byte, input schema.ParameterSet) *ActionResult {
	at := n.now()
	r := newResult(action, input, at)

	if !gjson.ValidBytes(raw) {
		r.Status = StatusFailure
		r.Errors = append(r.Errors, "malformed response payload")
		return r
	}

	mapped := m(gjson.ParseBytes(raw), at)
	if mapped.Items != nil {
		r.Items = mapped.Items
	}
	r.Errors = append(r.Errors, mapped.Errors...)

	partial := mapped.Partial || len(mapped.Errors) > 0
	if s := strings.TrimSpace(mapped.Summary); s != "" {
		if IsFailureSentinel(s) {
			partial = true
			r.Errors = append(r.Errors, "summary: "+s)
		} else {
			r.Summary = &Summary{Text: s}
		}
	}

	switch {
	case partial:
		r.Status = StatusPartialSuccess
	case len(r.Items) > 0:
		r.Status = StatusSuccess
	default:
		r.Status = StatusFailure
		r.Errors = append(r.Errors, "no results")
	}
	return r
}

func (n *Normalizer) mapperFor(action string) Mapper {
	for _, r := range n.rules {
		if strings.HasPrefix(action, r.prefix) {
			return r.mapper
		}
	}
	return n.fallback
}

// Summary texts that downstreams emit when summarisation failed.
var failureSentinels = []string{
	"summary generation failed",
	"failed to generate summary",
	"summary unavailable",
	"no summary available",
}

// IsFailureSentinel reports whether a summary text is a known failure marker.
func IsFailureSentinel(s string) bool {
	s = strings.ToLower(strings.TrimRight(strings.TrimSpace(s), ".!"))
	for _, f := range failureSentinels {
		if s == f {
			return true
		}
	}
	return false
}
