package normalize_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/action-gateway/internal/normalize"
	"github.com/compresr/action-gateway/internal/schema"
)

var fixed = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newNormalizer() *normalize.Normalizer {
	return normalize.New(normalize.WithClock(func() time.Time { return fixed }))
}

func TestNormalize_ResearchSources(t *testing.T) {
	raw := []byte(`{
		"query": "go generics",
		"sources": [
			{"title": "Intro", "url": "https://go.dev/a", "snippet": "s1", "content": "full text", "name": "go.dev", "relevanceScore": 0.9},
			{"title": "Second", "url": "https://example.com/b"}
		],
		"summary": "Generics landed in 1.18."
	}`)
	input := schema.ParameterSet{"query": "go generics", "maxResultsPerSource": 5}

	r := newNormalizer().Normalize("research.web", raw, input)

	assert.Equal(t, normalize.StatusSuccess, r.Status)
	assert.Equal(t, "go generics", r.Query)
	require.Len(t, r.Items, 2)
	assert.Equal(t, normalize.Item{
		Title: "Intro", URL: "https://go.dev/a", Snippet: "s1", ExtractedText: "full text",
		SourceName: "go.dev", FetchedAt: fixed, Score: 0.9,
	}, r.Items[0])
	// Missing fields default to zero values.
	assert.Equal(t, "", r.Items[1].Snippet)
	assert.Equal(t, "", r.Items[1].SourceName)
	assert.Zero(t, r.Items[1].Score)
	require.NotNil(t, r.Summary)
	assert.Equal(t, "Generics landed in 1.18.", r.Summary.Text)
	assert.Empty(t, r.Errors)
	assert.Equal(t, fixed, r.Timestamp)
}

func TestNormalize_SummarySentinelIsPartial(t *testing.T) {
	raw := []byte(`{"query":"q","sources":[{"title":"t","url":"u"}],"summary":"Summary generation failed."}`)

	r := newNormalizer().Normalize("research.web", raw, schema.ParameterSet{"query": "q"})

	assert.Equal(t, normalize.StatusPartialSuccess, r.Status)
	assert.Nil(t, r.Summary)
	assert.Len(t, r.Items, 1)
	assert.NotEmpty(t, r.Errors)
}

func TestNormalize_PartialFlagAndErrors(t *testing.T) {
	r := newNormalizer().Normalize("research.web",
		[]byte(`{"sources":[{"title":"t"}],"partial":true}`), nil)
	assert.Equal(t, normalize.StatusPartialSuccess, r.Status)

	r = newNormalizer().Normalize("research.web",
		[]byte(`{"sources":[],"errors":[{"message":"source x down"},"source y down"]}`), nil)
	assert.Equal(t, normalize.StatusPartialSuccess, r.Status)
	assert.Equal(t, []string{"source x down", "source y down"}, r.Errors)
}

func TestNormalize_ZeroItemsNeverSuccess(t *testing.T) {
	for name, raw := range map[string]string{
		"empty sources":  `{"sources":[]}`,
		"no sources":     `{"query":"q"}`,
		"summary only":   `{"summary":"all good"}`,
		"sources object": `{"sources":{"title":"x"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			r := newNormalizer().Normalize("research.web", []byte(raw), nil)
			assert.NotEqual(t, normalize.StatusSuccess, r.Status)
			assert.Empty(t, r.Items)
			assert.NotNil(t, r.Items)
		})
	}
}

func TestNormalize_MalformedPayload(t *testing.T) {
	r := newNormalizer().Normalize("research.web", []byte(`{"sources":[`), schema.ParameterSet{"query": "q"})
	assert.Equal(t, normalize.StatusFailure, r.Status)
	assert.Contains(t, r.Errors, "malformed response payload")
}

func TestNormalize_Chat(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{"response": "hello", "providerId": "groq"})
	r := newNormalizer().Normalize("chat.ask", raw, schema.ParameterSet{"prompt": "hi"})

	assert.Equal(t, normalize.StatusSuccess, r.Status)
	assert.Equal(t, "hi", r.Query)
	require.Len(t, r.Items, 1)
	assert.Equal(t, "hello", r.Items[0].Snippet)
	assert.Equal(t, "groq", r.Items[0].SourceName)

}

func TestNormalize_EmptyCompletionIsFailure(t *testing.T) {
	for _, raw := range []string{
		`{"response":"","providerId":"openai"}`,
		`{"response":"  \n","providerId":"openai"}`,
		`{"providerId":"openai"}`,
	} {
		r := newNormalizer().NormalizeWith(normalize.MapChat, "chat.ask", []byte(raw), nil)
		assert.Equal(t, normalize.StatusFailure, r.Status, raw)
		assert.Empty(t, r.Items, raw)
		assert.Equal(t, []string{"no results"}, r.Errors, raw)
	}
}

func TestNormalize_Generic(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		items int
		first normalize.Item
	}{
		{
			name:  "results list",
			raw:   `{"results":[{"name":"a","link":"https://a","description":"da","score":2}]}`,
			items: 1,
			first: normalize.Item{Title: "a", URL: "https://a", Snippet: "da", SourceName: "a", FetchedAt: fixed, Score: 2},
		},
		{
			name:  "top-level array of strings",
			raw:   `["x","y"]`,
			items: 2,
			first: normalize.Item{Snippet: "x", FetchedAt: fixed},
		},
		{
			name:  "plain object",
			raw:   `{"id":7}`,
			items: 1,
			first: normalize.Item{Snippet: `{"id":7}`, FetchedAt: fixed},
		},
		{
			name:  "envelope only",
			raw:   `{"query":"q"}`,
			items: 0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newNormalizer().Normalize("weather.lookup", []byte(tc.raw), nil)
			require.Len(t, r.Items, tc.items)
			if tc.items == 0 {
				assert.Equal(t, normalize.StatusFailure, r.Status)
				return
			}
			assert.Equal(t, normalize.StatusSuccess, r.Status)
			assert.Equal(t, tc.first, r.Items[0])
		})
	}
}

func TestNormalize_CustomMapper(t *testing.T) {
	n := normalize.New(
		normalize.WithClock(func() time.Time { return fixed }),
		normalize.WithMapper("research.", normalize.MapGeneric),
	)
	r := n.Normalize("research.web", []byte(`{"items":[{"title":"t"}]}`), nil)
	require.Len(t, r.Items, 1)
	assert.Equal(t, "t", r.Items[0].Title)
}

func TestNormalize_InputIsCopied(t *testing.T) {
	in := schema.ParameterSet{"query": "q"}
	r := newNormalizer().Normalize("research.web", []byte(`{"sources":[{"title":"t"}]}`), in)
	in["query"] = "changed"
	assert.Equal(t, "q", r.Input["query"])
}

func TestFinalize_SetOnce(t *testing.T) {
	r := normalize.Failure("research.web", nil, []string{"a: down", "b: down"}, fixed)
	assert.False(t, r.Finalized())

	r.Finalize(time.Now().Add(-50 * time.Millisecond))
	first := r.ExecutionTimeMs
	assert.GreaterOrEqual(t, first, int64(50))
	assert.True(t, r.Finalized())

	r.Finalize(time.Now().Add(-time.Hour))
	assert.Equal(t, first, r.ExecutionTimeMs)
}

func TestFinalize_FutureStartClampsToZero(t *testing.T) {
	r := normalize.Failure("x", nil, nil, fixed)
	r.Finalize(time.Now().Add(time.Hour))
	assert.Zero(t, r.ExecutionTimeMs)
}

func TestFailure_Envelope(t *testing.T) {
	r := normalize.Failure("research.web", schema.ParameterSet{"query": "q"}, []string{"a: down", "b: down"}, fixed)
	assert.Equal(t, normalize.StatusFailure, r.Status)
	assert.Equal(t, []string{"a: down", "b: down"}, r.Errors)
	assert.Empty(t, r.Items)
	assert.Nil(t, r.Summary)
	assert.Equal(t, "q", r.Query)
}

func TestIsFailureSentinel(t *testing.T) {
	assert.True(t, normalize.IsFailureSentinel("Summary generation failed."))
	assert.True(t, normalize.IsFailureSentinel("  summary unavailable "))
	assert.False(t, normalize.IsFailureSentinel("Summary of results"))
}
