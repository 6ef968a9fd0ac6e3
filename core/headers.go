package core

import (
	"net/http"
	"net/textproto"
	"sort"
	"strings"
)

// ResponseHeaders keeps token URL response headers in the order they were
// received. Names are stored in canonical MIME form.
type ResponseHeaders struct {
	names  []string
	values map[string][]string
}

func NewResponseHeaders() ResponseHeaders {
	return ResponseHeaders{values: map[string][]string{}}
}

// ResponseHeadersFromHTTP copies an http.Header. Go does not preserve wire
// order, so names are taken in the order given by names when provided and
// alphabetically otherwise.
func ResponseHeadersFromHTTP(header http.Header, names ...string) ResponseHeaders {
	out := NewResponseHeaders()
	seen := map[string]struct{}{}
	for _, name := range names {
		canonical := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))
		if _, ok := header[canonical]; !ok {
			continue
		}
		seen[canonical] = struct{}{}
		for _, value := range header[canonical] {
			out.Add(canonical, value)
		}
	}
	rest := make([]string, 0, len(header))
	for name := range header {
		if _, ok := seen[name]; ok {
			continue
		}
		rest = append(rest, name)
	}
	sort.Strings(rest)
	for _, name := range rest {
		for _, value := range header[name] {
			out.Add(name, value)
		}
	}
	return out
}

func (h *ResponseHeaders) Add(name string, value string) {
	canonical := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))
	if canonical == "" {
		return
	}
	if h.values == nil {
		h.values = map[string][]string{}
	}
	if _, exists := h.values[canonical]; !exists {
		h.names = append(h.names, canonical)
	}
	h.values[canonical] = append(h.values[canonical], value)
}

func (h ResponseHeaders) Get(name string) string {
	values := h.values[textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (h ResponseHeaders) Values(name string) []string {
	return append([]string(nil), h.values[textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))]...)
}

func (h ResponseHeaders) Names() []string {
	return append([]string(nil), h.names...)
}

func (h ResponseHeaders) Len() int {
	return len(h.names)
}

func (h ResponseHeaders) Clone() ResponseHeaders {
	if len(h.names) == 0 {
		return ResponseHeaders{}
	}
	out := ResponseHeaders{
		names:  append([]string(nil), h.names...),
		values: make(map[string][]string, len(h.values)),
	}
	for name, values := range h.values {
		out.values[name] = append([]string(nil), values...)
	}
	return out
}

func (h ResponseHeaders) HTTP() http.Header {
	out := make(http.Header, len(h.names))
	for _, name := range h.names {
		out[name] = append([]string(nil), h.values[name]...)
	}
	return out
}
