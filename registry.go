package etp

import (
	"sync"

	"github.com/pkg/errors"
)

// CoreProtocol is the protocol number reserved for the control handler
// every session carries.
const CoreProtocol int32 = 0

// Registry maps protocol numbers to the single handler serving each one.
type Registry struct {
	mu       sync.RWMutex
	handlers map[int32]ProtocolHandler
	order    []int32
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[int32]ProtocolHandler)}
}

// Register adds h. A second handler for the same protocol is a wiring bug
// and is rejected with ErrDuplicateHandler.
func (r *Registry) Register(h ProtocolHandler) error {
	if h == nil {
		return errors.New("etp: nil handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p := h.Protocol()
	if existing, ok := r.handlers[p]; ok {
		return errors.Wrapf(ErrDuplicateHandler, "protocol %d: %s already registered, rejecting %s",
			p, existing.Role(), h.Role())
	}
	r.handlers[p] = h
	r.order = append(r.order, p)
	return nil
}

// Lookup returns the handler registered for protocol.
func (r *Registry) Lookup(protocol int32) (ProtocolHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[protocol]
	return h, ok
}

// Handlers returns every handler in registration order.
func (r *Registry) Handlers() []ProtocolHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProtocolHandler, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, r.handlers[p])
	}
	return out
}

// Protocols returns the registered protocol numbers in registration order.
func (r *Registry) Protocols() []int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int32, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// validateFactories builds one handler from each factory and checks that
// no two serve the same protocol, or the core protocol.
func validateFactories(factories []HandlerFactory) error {
	seen := map[int32]bool{CoreProtocol: true}
	for i, f := range factories {
		if f == nil {
			return errors.Errorf("etp: handler factory %d is nil", i)
		}
		h := f()
		if h == nil {
			return errors.Errorf("etp: handler factory %d returned nil", i)
		}
		if seen[h.Protocol()] {
			return errors.Wrapf(ErrDuplicateHandler, "protocol %d (%s)", h.Protocol(), h.Role())
		}
		seen[h.Protocol()] = true
	}
	return nil
}
