package connect

import "net/http"

// Headers is a case-insensitive, multi-valued metadata map. Lookup,
// insertion, and deletion are case-insensitive; iteration preserves the
// insertion order of keys (net/http's Header is case-insensitive but, being
// a plain map, doesn't preserve order on its own, so we track key order
// alongside it).
type Headers struct {
	raw   http.Header
	order []string
}

// NewHeaders returns an empty Headers map.
func NewHeaders() Headers {
	return Headers{raw: make(http.Header)}
}

// HeadersFromHTTP adapts an http.Header (as produced by net/http, whose
// trailer and header maps are already canonicalized) into Headers. The
// resulting order reflects Go's map iteration, which is the best net/http
// can offer once headers have passed through its own map; callers that need
// a guaranteed order should build Headers directly with Add/Set.
func HeadersFromHTTP(h http.Header) Headers {
	if h == nil {
		h = make(http.Header)
	}
	order := make([]string, 0, len(h))
	for key := range h {
		order = append(order, key)
	}
	return Headers{raw: h, order: order}
}

func (h *Headers) ensure() {
	if h.raw == nil {
		h.raw = make(http.Header)
	}
}

// Get returns the first value associated with key, or "" if absent.
func (h Headers) Get(key string) string {
	if h.raw == nil {
		return ""
	}
	return h.raw.Get(key)
}

// Values returns all values associated with key, in insertion order.
func (h Headers) Values(key string) []string {
	if h.raw == nil {
		return nil
	}
	return h.raw.Values(key)
}

// Set replaces any existing values for key.
func (h *Headers) Set(key, value string) {
	h.ensure()
	canonical := http.CanonicalHeaderKey(key)
	if _, ok := h.raw[canonical]; !ok {
		h.order = append(h.order, canonical)
	}
	h.raw.Set(key, value)
}

// Add appends value to any existing values for key.
func (h *Headers) Add(key, value string) {
	h.ensure()
	canonical := http.CanonicalHeaderKey(key)
	if _, ok := h.raw[canonical]; !ok {
		h.order = append(h.order, canonical)
	}
	h.raw.Add(key, value)
}

// Del removes all values for key.
func (h *Headers) Del(key string) {
	if h.raw == nil {
		return
	}
	canonical := http.CanonicalHeaderKey(key)
	delete(h.raw, canonical)
	for i, k := range h.order {
		if k == canonical {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Has reports whether key has at least one value.
func (h Headers) Has(key string) bool {
	if h.raw == nil {
		return false
	}
	_, ok := h.raw[http.CanonicalHeaderKey(key)]
	return ok
}

// Len returns the number of distinct keys.
func (h Headers) Len() int {
	return len(h.raw)
}

// Clone returns a deep copy. Used to freeze headers before handing them to a
// transport: once dispatch begins, interceptors must not observe mutations
// made by the transport, and vice versa.
func (h Headers) Clone() Headers {
	order := make([]string, len(h.order))
	copy(order, h.order)
	var raw http.Header
	if h.raw != nil {
		raw = h.raw.Clone()
	} else {
		raw = make(http.Header)
	}
	return Headers{raw: raw, order: order}
}

// HTTP returns the underlying http.Header, for direct use against net/http
// requests and responses. Mutations are visible through h but do not update
// key order tracked by h.
func (h Headers) HTTP() http.Header {
	if h.raw == nil {
		return make(http.Header)
	}
	return h.raw
}

// Merge copies every key/value pair from other into h, preserving other's
// relative order for any keys not already present in h.
func (h *Headers) Merge(other Headers) {
	other.Range(func(key string, values []string) {
		for _, value := range values {
			h.Add(key, value)
		}
	})
}

// Range calls fn once per key, in insertion order, with all of that key's
// values.
func (h Headers) Range(fn func(key string, values []string)) {
	for _, key := range h.order {
		if values, ok := h.raw[key]; ok {
			fn(key, values)
		}
	}
}
