package normalize

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// MapResearch handles {query, sources:[{title,url,snippet,content,name,relevanceScore}], summary}.
func MapResearch(raw gjson.Result, at time.Time) Mapped {
	m := Mapped{
		Summary: raw.Get("summary").String(),
		Partial: raw.Get("partial").Bool(),
		Errors:  errorList(raw.Get("errors")),
	}
	raw.Get("sources").ForEach(func(_, src gjson.Result) bool {
		if !src.IsObject() {
			return true
		}
		m.Items = append(m.Items, Item{
			Title:         src.Get("title").String(),
			URL:           src.Get("url").String(),
			Snippet:       src.Get("snippet").String(),
			ExtractedText: src.Get("content").String(),
			SourceName:    src.Get("name").String(),
			FetchedAt:     fetchedAt(src, at),
			Score:         src.Get("relevanceScore").Float(),
		})
		return true
	})
	return m
}

// MapChat handles completion results of llm actions: one item carrying the
// response text, attributed to the provider. Empty text maps to no items.
func MapChat(raw gjson.Result, at time.Time) Mapped {
	var m Mapped
	text := raw.Get("response").String()
	if strings.TrimSpace(text) == "" {
		return m
	}
	m.Items = []Item{{
		Snippet:    text,
		SourceName: raw.Get("providerId").String(),
		FetchedAt:  at,
	}}
	return m
}

// Keys searched, in order, for a result list in responses of unknown shape.
var listKeys = []string{"items", "results", "data", "sources", "hits"}

// MapGeneric maps responses of unknown shape. A top-level array or the first
// list under a well-known key becomes the items. An object without a list
// becomes a single item.
func MapGeneric(raw gjson.Result, at time.Time) Mapped {
	m := Mapped{
		Summary: raw.Get("summary").String(),
		Partial: raw.Get("partial").Bool(),
		Errors:  errorList(raw.Get("errors")),
	}
	list := raw
	if !raw.IsArray() {
		list = gjson.Result{}
		for _, k := range listKeys {
			if v := raw.Get(k); v.IsArray() {
				list = v
				break
			}
		}
	}
	if list.IsArray() {
		list.ForEach(func(_, v gjson.Result) bool {
			m.Items = append(m.Items, genericItem(v, at))
			return true
		})
		return m
	}
	if raw.IsObject() && !onlyMeta(raw) {
		m.Items = []Item{genericItem(raw, at)}
	}
	return m
}

func genericItem(v gjson.Result, at time.Time) Item {
	if !v.IsObject() {
		return Item{Snippet: v.String(), FetchedAt: at}
	}
	it := Item{
		Title:         first(v, "title", "name"),
		URL:           first(v, "url", "link", "href"),
		Snippet:       first(v, "snippet", "description", "summary", "text"),
		ExtractedText: first(v, "content", "body"),
		SourceName:    first(v, "sourceName", "source", "name"),
		FetchedAt:     fetchedAt(v, at),
		Score:         firstFloat(v, "score", "relevanceScore", "relevance"),
	}
	if it.Title == "" && it.URL == "" && it.Snippet == "" && it.ExtractedText == "" {
		it.Snippet = v.Raw
	}
	return it
}

// onlyMeta reports whether an object carries nothing but envelope fields.
func onlyMeta(v gjson.Result) bool {
	meta := true
	v.ForEach(func(k, _ gjson.Result) bool {
		switch k.String() {
		case "summary", "partial", "errors", "query":
		default:
			meta = false
			return false
		}
		return true
	})
	return meta
}

func first(v gjson.Result, keys ...string) string {
	for _, k := range keys {
		if s := v.Get(k); s.Exists() && s.Type == gjson.String && s.Str != "" {
			return s.Str
		}
	}
	return ""
}

func firstFloat(v gjson.Result, keys ...string) float64 {
	for _, k := range keys {
		if s := v.Get(k); s.Type == gjson.Number {
			return s.Num
		}
	}
	return 0
}

func fetchedAt(v gjson.Result, at time.Time) time.Time {
	if s := v.Get("fetchedAt").String(); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return at
}

// errorList accepts ["msg", ...] or [{"message": "msg"}, ...].
func errorList(v gjson.Result) []string {
	var out []string
	v.ForEach(func(_, e gjson.Result) bool {
		msg := e.String()
		if e.IsObject() {
			msg = first(e, "message", "error")
		}
		if msg != "" {
			out = append(out, msg)
		}
		return true
	})
	return out
}
