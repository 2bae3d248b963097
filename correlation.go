package etp

import (
	"sync"

	"github.com/pkg/errors"
)

// ExchangeKey identifies one logical exchange within a session: the
// protocol plus the correlation id, or the message id of a message that
// starts an exchange.
type ExchangeKey struct {
	Protocol      int32
	CorrelationID int64
}

func exchangeKeyOf(h MessageHeader) ExchangeKey {
	id := h.CorrelationID
	if id == 0 {
		id = h.MessageID
	}
	return ExchangeKey{Protocol: h.Protocol, CorrelationID: id}
}

// Part is one decoded frame of an exchange.
type Part struct {
	Header MessageHeader
	Body   any
}

// Exchange is the ordered set of parts that make up one logical message.
type Exchange struct {
	Key   ExchangeKey
	Parts []Part
}

// Header returns the header of the first part.
func (e *Exchange) Header() MessageHeader {
	if len(e.Parts) == 0 {
		return MessageHeader{}
	}
	return e.Parts[0].Header
}

// MessageType returns the message type of the first part.
func (e *Exchange) MessageType() int32 {
	return e.Header().MessageType
}

// Bodies returns the bodies of ex that have type M, in arrival order.
func Bodies[M any](ex *Exchange) []M {
	out := make([]M, 0, len(ex.Parts))
	for _, p := range ex.Parts {
		if m, ok := p.Body.(M); ok {
			out = append(out, m)
		}
	}
	return out
}

// tracker classifies inbound messages into exchanges and remembers the
// requests this endpoint is still waiting on.
type tracker struct {
	strict   bool
	maxParts int

	mu       sync.Mutex
	pending  map[ExchangeKey]*Exchange
	requests map[ExchangeKey]struct{}
	dropped  map[ExchangeKey]struct{} // over the part limit, waiting for the final part
}

// errPartDropped marks a part of an exchange that was dropped for exceeding
// the part limit. Such parts are swallowed without delivery.
var errPartDropped = errors.New("etp: part of dropped exchange")

func newTracker(strict bool, maxParts int) *tracker {
	return &tracker{
		strict:   strict,
		maxParts: maxParts,
		pending:  make(map[ExchangeKey]*Exchange),
		requests: make(map[ExchangeKey]struct{}),
		dropped:  make(map[ExchangeKey]struct{}),
	}
}

// expect records an outgoing request so its answer is recognised.
func (t *tracker) expect(protocol int32, messageID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests[ExchangeKey{Protocol: protocol, CorrelationID: messageID}] = struct{}{}
}

// forget undoes expect for a request that never went out.
func (t *tracker) forget(protocol int32, messageID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.requests, ExchangeKey{Protocol: protocol, CorrelationID: messageID})
}

// track adds one inbound part and reports whether its exchange is complete.
// A complete exchange is removed from the pending table and returned with
// all of its parts in arrival order.
//
// An exchange that grows past maxParts fails with ErrTooManyParts. Its
// later parts, up to and including the final one, return errPartDropped.
func (t *tracker) track(h MessageHeader, body any) (*Exchange, bool, error) {
	key := exchangeKeyOf(h)
	final := h.MessageFlags.IsFinal()

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.dropped[key]; ok {
		if final {
			delete(t.dropped, key)
			delete(t.requests, key)
		}
		return nil, false, errPartDropped
	}

	ex, open := t.pending[key]
	if !open {
		if t.strict && h.CorrelationID != 0 {
			if _, ok := t.requests[key]; !ok {
				return nil, false, errors.Wrapf(ErrCorrelationMismatch,
					"protocol %d correlation %d", h.Protocol, h.CorrelationID)
			}
		}
		ex = &Exchange{Key: key}
	}
	ex.Parts = append(ex.Parts, Part{Header: h, Body: body})

	if t.maxParts > 0 && len(ex.Parts) > t.maxParts {
		delete(t.pending, key)
		if final {
			delete(t.requests, key)
		} else {
			t.dropped[key] = struct{}{}
		}
		return nil, false, errors.Wrapf(ErrTooManyParts,
			"protocol %d correlation %d: limit %d", key.Protocol, key.CorrelationID, t.maxParts)
	}
	if !final {
		t.pending[key] = ex
		return ex, false, nil
	}

	delete(t.pending, key)
	delete(t.requests, key)
	return ex, true, nil
}

// discard drops every pending exchange and outstanding request and returns
// how many pending exchanges were dropped.
func (t *tracker) discard() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.pending)
	t.pending = make(map[ExchangeKey]*Exchange)
	t.requests = make(map[ExchangeKey]struct{})
	t.dropped = make(map[ExchangeKey]struct{})
	return n
}

func (t *tracker) pendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *tracker) outstanding(protocol int32, messageID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.requests[ExchangeKey{Protocol: protocol, CorrelationID: messageID}]
	return ok
}
