package etp

import (
	"sync"

	"github.com/pkg/errors"
)

// ProtocolHandler is one role of one sub-protocol within a session.
// Concrete handlers embed *Handler, which implements every method.
type ProtocolHandler interface {
	// Protocol returns the protocol number the handler serves.
	Protocol() int32
	// Role returns the role this endpoint plays, e.g. "store".
	Role() string
	// CounterpartRole returns the role the peer plays, e.g. "customer".
	CounterpartRole() string
	// Session returns the session the handler is registered in, or nil.
	Session() *Session

	handler() *Handler
}

// HandlerFactory builds a fresh handler for one session.
type HandlerFactory func() ProtocolHandler

// Unknown is delivered for a message type the handler has no route for.
type Unknown struct {
	Header MessageHeader
	Raw    []byte
}

type route struct {
	name    string
	decode  func(c Codec, header MessageHeader, data []byte) (any, error)
	deliver func(header MessageHeader, body any) error
}

// Handler is the base every protocol handler embeds. It owns the route
// table that maps message types to hooks and the plumbing to build and
// send messages through the owning session.
type Handler struct {
	protocol    int32
	role        string
	counterpart string

	mu       sync.RWMutex
	session  *Session
	routes   map[int32]route
	complete []func(*Exchange)
	unknown  []func(Unknown)
	closed   []func(reason string)

	// OnProtocolException fires for every ProtocolException the peer sends on this protocol.
	OnProtocolException Hook[ProtocolException, struct{}]
	// OnAcknowledge fires for every Acknowledge the peer sends on this protocol.
	OnAcknowledge Hook[Acknowledge, struct{}]
}

// NewHandler creates the base for a handler of protocol playing role
// against counterpart.
func NewHandler(protocol int32, role, counterpart string) *Handler {
	h := &Handler{
		protocol:    protocol,
		role:        role,
		counterpart: counterpart,
		routes:      make(map[int32]route),
	}
	Handle(h, MessageTypeProtocolException, "ProtocolException", &h.OnProtocolException, nil, nil)
	Handle(h, MessageTypeAcknowledge, "Acknowledge", &h.OnAcknowledge, nil, nil)
	return h
}

// Handle binds messageType to hook on h.
//
// For each inbound message of that type the hook fires with a context
// built by newContext (the zero C when newContext is nil). Unless a
// listener or the reaction cancels the event, respond runs afterwards to
// send the default answer. A nil respond means the message has none.
func Handle[M, C any](h *Handler, messageType int32, name string, hook *Hook[M, C], newContext func() C, respond func(*Event[M, C]) error) {
	r := route{
		name: name,
		decode: func(c Codec, header MessageHeader, data []byte) (any, error) {
			var m M
			if header.MessageFlags.Has(NoData) {
				return m, nil
			}
			if err := c.DecodeBody(header.Key(), data, &m); err != nil {
				return nil, err
			}
			return m, nil
		},
		deliver: func(header MessageHeader, body any) error {
			var ctx C
			if newContext != nil {
				ctx = newContext()
			}
			msg, _ := body.(M)
			ev := hook.fire(header, msg, ctx)
			if ev.Cancel || respond == nil {
				return nil
			}
			return respond(ev)
		},
	}

	h.mu.Lock()
	h.routes[messageType] = r
	h.mu.Unlock()
}

func (h *Handler) Protocol() int32 { return h.protocol }

func (h *Handler) Role() string { return h.role }

func (h *Handler) CounterpartRole() string { return h.counterpart }

func (h *Handler) Session() *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session
}

func (h *Handler) handler() *Handler { return h }

// Logger returns the owning session's logger.
func (h *Handler) Logger() Logger {
	if s := h.Session(); s != nil {
		return s.logger
	}
	return defaultLogger()
}

// Supports reports whether the handler has a route for messageType.
func (h *Handler) Supports(messageType int32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.routes[messageType]
	return ok
}

// MessageName returns the name a message type was bound with.
func (h *Handler) MessageName(messageType int32) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.routes[messageType]; ok {
		return r.name
	}
	return "Unknown"
}

// OnComplete adds a listener for completed exchanges. It fires once per
// exchange, after its final part, with every part in arrival order.
func (h *Handler) OnComplete(fn func(*Exchange)) {
	h.mu.Lock()
	h.complete = append(h.complete, fn)
	h.mu.Unlock()
}

// OnUnknown adds a listener for message types the handler does not know.
func (h *Handler) OnUnknown(fn func(Unknown)) {
	h.mu.Lock()
	h.unknown = append(h.unknown, fn)
	h.mu.Unlock()
}

// OnClose adds a listener that runs when the owning session closes.
func (h *Handler) OnClose(fn func(reason string)) {
	h.mu.Lock()
	h.closed = append(h.closed, fn)
	h.mu.Unlock()
}

// CreateMessageHeader builds a header for messageType on this handler's
// protocol with a freshly allocated message id. Zero flags mean FinalPart.
func (h *Handler) CreateMessageHeader(messageType int32, correlationID int64, flags MessageFlags) (MessageHeader, error) {
	s := h.Session()
	if s == nil {
		return MessageHeader{}, ErrHandlerDetached
	}
	id, err := s.NextMessageID()
	if err != nil {
		return MessageHeader{}, err
	}
	if flags == FlagNone {
		flags = FinalPart
	}
	return MessageHeader{
		Protocol:      h.protocol,
		MessageType:   messageType,
		CorrelationID: correlationID,
		MessageID:     id,
		MessageFlags:  flags,
	}, nil
}

// SendMessage sends header and body through the owning session and returns
// the message id used.
func (h *Handler) SendMessage(header MessageHeader, body any) (int64, error) {
	s := h.Session()
	if s == nil {
		return 0, ErrHandlerDetached
	}
	return s.SendMessage(header, body)
}

// SendRequest is SendMessage for a message that expects an answer.
func (h *Handler) SendRequest(header MessageHeader, body any) (int64, error) {
	s := h.Session()
	if s == nil {
		return 0, ErrHandlerDetached
	}
	return s.SendRequest(header, body)
}

// Send creates a header for messageType and sends body with it.
func (h *Handler) Send(messageType int32, correlationID int64, flags MessageFlags, body any) (int64, error) {
	header, err := h.CreateMessageHeader(messageType, correlationID, flags)
	if err != nil {
		return 0, err
	}
	return h.SendMessage(header, body)
}

// Request creates a header for messageType and sends body as a request.
func (h *Handler) Request(messageType int32, body any) (int64, error) {
	header, err := h.CreateMessageHeader(messageType, 0, FinalPart)
	if err != nil {
		return 0, err
	}
	return h.SendRequest(header, body)
}

// ProtocolException sends an error to the peer, correlated to the message
// that caused it when correlationID is not 0.
func (h *Handler) ProtocolException(code int32, message string, correlationID int64) (int64, error) {
	return h.Send(MessageTypeProtocolException, correlationID, FinalPart, ProtocolException{
		ErrorCode:    code,
		ErrorMessage: message,
	})
}

// Acknowledge confirms receipt of the message with id correlationID.
func (h *Handler) Acknowledge(correlationID int64) (int64, error) {
	return h.Send(MessageTypeAcknowledge, correlationID, FinalPart|NoData, nil)
}

// NewMultiPartWriter returns a writer that sends one logical message of
// messageType as several parts. correlationID is the request being
// answered, or 0 for an unsolicited message.
func (h *Handler) NewMultiPartWriter(messageType int32, correlationID int64) *MultiPartWriter {
	return &MultiPartWriter{h: h, messageType: messageType, correlationID: correlationID}
}

func (h *Handler) attach(s *Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session != nil {
		return errors.Wrapf(ErrHandlerInUse, "protocol %d", h.protocol)
	}
	h.session = s
	return nil
}

func (h *Handler) detach(s *Session) {
	h.mu.Lock()
	if h.session == s {
		h.session = nil
	}
	h.mu.Unlock()
}

func (h *Handler) decode(c Codec, header MessageHeader, data []byte) (any, error) {
	h.mu.RLock()
	r, ok := h.routes[header.MessageType]
	h.mu.RUnlock()
	if !ok {
		return Unknown{Header: header, Raw: data}, nil
	}
	body, err := r.decode(c, header, data)
	if err != nil {
		return nil, errors.Wrapf(ErrBodyDecode, "%s (%s): %v", r.name, header, err)
	}
	return body, nil
}

func (h *Handler) dispatch(header MessageHeader, body any) error {
	if u, ok := body.(Unknown); ok {
		h.Logger().Debug("unknown message type ignored",
			"protocol", header.Protocol, "message_type", header.MessageType, "message_id", header.MessageID)
		h.mu.RLock()
		listeners := h.unknown
		h.mu.RUnlock()
		for _, fn := range listeners {
			fn(u)
		}
		return nil
	}

	h.mu.RLock()
	r, ok := h.routes[header.MessageType]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return r.deliver(header, body)
}

func (h *Handler) completed(ex *Exchange) {
	h.mu.RLock()
	listeners := h.complete
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn(ex)
	}
}

func (h *Handler) close(reason string) {
	h.mu.RLock()
	listeners := h.closed
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn(reason)
	}
}

// MultiPartWriter sends one logical message as a sequence of parts. The
// first part carries the caller's correlation id; when that is 0, later
// parts carry the first part's message id so the receiver keeps them
// together.
type MultiPartWriter struct {
	h             *Handler
	messageType   int32
	correlationID int64

	mu     sync.Mutex
	first  int64
	closed bool
}

// Write sends body as a non-final part.
func (w *MultiPartWriter) Write(body any) (int64, error) {
	return w.send(body, MultiPart)
}

// Close sends body as the final part. A nil body sends an empty final part.
func (w *MultiPartWriter) Close(body any) (int64, error) {
	flags := MultiPartAndFinalPart
	if body == nil {
		flags |= NoData
	}
	return w.send(body, flags)
}

// FirstID returns the message id of the first part, 0 before any was sent.
func (w *MultiPartWriter) FirstID() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.first
}

func (w *MultiPartWriter) send(body any, flags MessageFlags) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrWriterClosed
	}

	correlationID := w.correlationID
	if correlationID == 0 {
		correlationID = w.first
	}
	id, err := w.h.Send(w.messageType, correlationID, flags, body)
	if err != nil {
		return 0, err
	}
	if w.first == 0 {
		w.first = id
	}
	if flags.Has(FinalPart) {
		w.closed = true
	}
	return id, nil
}
