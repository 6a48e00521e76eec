// Package registry implements the Handler Registry component (spec §4.4):
// a name-to-Handler lookup table that the engine consults on every
// dispatch step, with read-only-mode enforcement for "writes"-class
// handlers.
package registry

import (
	"sync"

	"github.com/jgavinray/urlexec/internal/errors"
	"github.com/jgavinray/urlexec/internal/runctx"
)

// Registry is a concurrency-safe, in-process implementation of
// runctx.Registry. Handlers are registered once at startup (see
// cmd/urlexecd) and looked up many times per request; the mutex exists for
// the rare case a caller registers handlers after serving has started.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]runctx.Handler
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]runctx.Handler)}
}

// Register adds or replaces the handler bound to name.
func (r *Registry) Register(name string, h runctx.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Lookup implements runctx.Registry.
func (r *Registry) Lookup(name string) (runctx.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Authorize checks whether h may run under the given read-only mode,
// returning errors.ErrReadOnlyViolation when a "writes"-class handler is
// invoked while ec.ReadOnly is set (spec §4.4, §7).
func Authorize(h runctx.Handler, readOnly bool) error {
	if readOnly && h.SideEffect() == runctx.SideEffectWrites {
		return errors.ErrReadOnlyViolation
	}
	return nil
}
