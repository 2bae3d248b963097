package etp

import "sync"

// Event carries one inbound message through the listeners and the reaction
// of a Hook. Context is the response being built for messages that are
// answered automatically; setting Cancel suppresses that answer and leaves
// responding to the caller.
type Event[M, C any] struct {
	Header  MessageHeader
	Message M
	Context C
	Cancel  bool
}

// Hook is the notification point for one inbound message type.
//
// Listeners attached with Listen run first, in the order they were added.
// The reaction set with Override runs after them. Both see the same Event,
// so either may fill the response context or cancel the default response.
type Hook[M, C any] struct {
	mu        sync.RWMutex
	listeners []func(*Event[M, C])
	react     func(*Event[M, C])
}

// Listen adds a listener.
func (h *Hook[M, C]) Listen(fn func(*Event[M, C])) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

// Override replaces the reaction that runs after the listeners.
func (h *Hook[M, C]) Override(fn func(*Event[M, C])) {
	h.mu.Lock()
	h.react = fn
	h.mu.Unlock()
}

// Len returns the number of listeners.
func (h *Hook[M, C]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

func (h *Hook[M, C]) fire(header MessageHeader, msg M, ctx C) *Event[M, C] {
	h.mu.RLock()
	listeners := h.listeners
	react := h.react
	h.mu.RUnlock()

	ev := &Event[M, C]{Header: header, Message: msg, Context: ctx}
	for _, fn := range listeners {
		fn(ev)
	}
	if react != nil {
		react(ev)
	}
	return ev
}
