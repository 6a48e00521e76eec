// Package value defines the Value type that flows between pipeline stages,
// and the truthiness/error rules the engine and control-flow operators use
// to interpret it.
package value

import (
	"sort"
	"strings"
)

// Header holds an ordered, case-insensitive mapping of header name to value.
// Insertion order is preserved for iteration (Names), matching the ordered
// mapping the data model calls for.
type Header struct {
	names  []string // canonical-cased, in insertion order
	lookup map[string]int
	values map[string]string
}

// NewHeader returns an empty Header ready for use.
func NewHeader() *Header {
	return &Header{lookup: make(map[string]int), values: make(map[string]string)}
}

// Set stores value under name, case-insensitively. The first insertion of a
// given name fixes its canonical casing and position for iteration; later
// Sets with different casing overwrite the value but not the position.
func (h *Header) Set(name, val string) {
	key := strings.ToLower(name)
	if _, ok := h.lookup[key]; !ok {
		h.lookup[key] = len(h.names)
		h.names = append(h.names, name)
	}
	h.values[key] = val
}

// Get returns the value stored under name (case-insensitive) and whether it
// was present.
func (h *Header) Get(name string) (string, bool) {
	v, ok := h.values[strings.ToLower(name)]
	return v, ok
}

// Names returns header names in insertion order.
func (h *Header) Names() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// Clone returns a deep copy of h.
func (h *Header) Clone() *Header {
	if h == nil {
		return NewHeader()
	}
	out := NewHeader()
	for _, n := range h.names {
		v, _ := h.Get(n)
		out.Set(n, v)
	}
	return out
}

// Merge copies every entry of other into h, overwriting on name collision
// but preserving h's existing ordering for names already present.
func (h *Header) Merge(other *Header) {
	if other == nil {
		return
	}
	for _, n := range other.Names() {
		v, _ := other.Get(n)
		h.Set(n, v)
	}
}

// sortedKeys is a test/debug helper; not used on the hot path.
func (h *Header) sortedKeys() []string {
	keys := append([]string(nil), h.names...)
	sort.Strings(keys)
	return keys
}

// Value is the payload flowing between pipeline stages: output bytes, a
// content type, an HTTP-style status code, and response headers.
type Value struct {
	Output      []byte
	ContentType string
	StatusCode  int // 0 means "no status yet"
	Headers     *Header
}

// Text constructs a Value from a UTF-8 string with the given content type
// and status. A zero status is left as 0 ("no status yet"); callers that
// want "200 unless overridden" should pass 200 explicitly.
func Text(s string, contentType string, status int) Value {
	return Value{
		Output:      []byte(s),
		ContentType: contentType,
		StatusCode:  status,
		Headers:     NewHeader(),
	}
}

// String returns Output decoded as UTF-8 best-effort (invalid sequences are
// preserved as-is by the Go string conversion, which never errors).
func (v Value) String() string {
	return string(v.Output)
}

// falsyLiterals are the case-insensitive string forms (after trimming no
// whitespace, per spec) that make a Value falsy regardless of status.
var falsyLiterals = map[string]bool{
	"":      true,
	"0":     true,
	"false": true,
	"null":  true,
	"none":  true,
}

// Truthy reports whether v is truthy per the rules in §4.2: a status >= 400
// is always falsy; otherwise the output string is falsy only for an exact
// (case-insensitive) match against "", "0", "false", "null", or "none" — no
// whitespace is trimmed, so " " is truthy. Binary payloads that don't
// round-trip as UTF-8 are truthy unless their status is an error.
func (v Value) Truthy() bool {
	return !v.Falsy()
}

// Falsy reports the negation of Truthy; exactly one of Truthy/Falsy holds
// for any Value (see TestTruthyFalsyExclusive).
func (v Value) Falsy() bool {
	if v.StatusCode >= 400 {
		return true
	}
	return falsyLiterals[strings.ToLower(string(v.Output))]
}

// IsError reports whether v represents an error value: status >= 400. The
// engine additionally treats caught exceptions as errors by synthesizing a
// 500-status Value (see internal/errors and internal/engine), so checking
// StatusCode alone is sufficient once a Value has been constructed.
func (v Value) IsError() bool {
	return v.StatusCode >= 400
}

// WithHeaders returns a copy of v with Headers replaced by h.
func (v Value) WithHeaders(h *Header) Value {
	v.Headers = h
	return v
}

// EffectiveStatus returns v.StatusCode, or 200 if it is 0 ("no status yet"),
// matching the HTTP response serialization rule in §6.
func (v Value) EffectiveStatus() int {
	if v.StatusCode == 0 {
		return 200
	}
	return v.StatusCode
}
