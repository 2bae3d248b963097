package etp

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// SessionState is the lifecycle state of a Session.
type SessionState int32

// Session states.
const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one logical ETP connection. It owns the handlers registered
// for the connection, allocates message ids, reassembles multi-part
// messages and moves frames between the handlers and its Sender.
//
// Inbound frames are processed one at a time. SendMessage may be called
// from any goroutine, including from within a handler while it reacts to
// an inbound message.
type Session struct {
	info   ConnInfo
	sender Sender
	codec  Codec
	logger Logger
	opts   options

	ids      *idAllocator
	tracker  *tracker
	registry *Registry

	state  atomic.Int32
	recvMu sync.Mutex
	sendMu sync.Mutex

	mu          sync.Mutex
	closeReason string
	onClose     []func(reason string)
}

// NewSession creates an open session on the connection described by info.
// core is the control handler and must serve CoreProtocol.
func NewSession(info ConnInfo, sender Sender, codec Codec, core ProtocolHandler, opt ...Option) (*Session, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	if codec == nil {
		return nil, ErrInvalidCodec
	}
	if sender == nil {
		return nil, errors.New("etp: nil sender")
	}
	if core == nil || core.Protocol() != CoreProtocol {
		return nil, ErrCoreHandler
	}

	s := &Session{
		info:     info,
		sender:   sender,
		codec:    codec,
		logger:   opts.logger,
		opts:     opts,
		ids:      newIDAllocator(opts.maxMessageID, opts.wrapMessageIDs),
		tracker:  newTracker(opts.strictCorrelation, opts.maxParts),
		registry: NewRegistry(),
	}
	s.state.Store(int32(StateConnecting))

	if err := s.register(core); err != nil {
		return nil, err
	}

	s.state.Store(int32(StateOpen))
	s.logger.Debug("session opened", "session", info.ID,
		"subprotocol", info.Subprotocol,
		"encoding", codec.Name(),
		"remote_addr", info.RemoteAddr)
	return s, nil
}

// Register adds feature handlers. The core protocol is taken by the
// control handler, so registering another handler for it fails.
func (s *Session) Register(handlers ...ProtocolHandler) error {
	for _, h := range handlers {
		if h == nil {
			return errors.New("etp: nil handler")
		}
		if h.Protocol() == CoreProtocol {
			return errors.Wrapf(ErrDuplicateHandler, "protocol %d is reserved for the core handler", CoreProtocol)
		}
		if err := s.register(h); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) register(h ProtocolHandler) error {
	base := h.handler()
	if err := base.attach(s); err != nil {
		return err
	}
	if err := s.registry.Register(h); err != nil {
		base.detach(s)
		return err
	}
	return nil
}

// ID returns the connection id.
func (s *Session) ID() string { return s.info.ID }

// Info returns the connection description.
func (s *Session) Info() ConnInfo { return s.info }

// Codec returns the codec frames are encoded with.
func (s *Session) Codec() Codec { return s.codec }

// Logger returns the session's logger.
func (s *Session) Logger() Logger { return s.logger }

// State returns the lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// IsOpen reports whether the session accepts sends.
func (s *Session) IsOpen() bool {
	return s.State() == StateOpen
}

// CloseReason returns the reason given to Close, empty while open.
func (s *Session) CloseReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeReason
}

// Handler returns the handler registered for protocol.
func (s *Session) Handler(protocol int32) (ProtocolHandler, bool) {
	return s.registry.Lookup(protocol)
}

// Handlers returns every handler, the control handler first.
func (s *Session) Handlers() []ProtocolHandler {
	return s.registry.Handlers()
}

// Protocols returns the protocol numbers with a registered handler.
func (s *Session) Protocols() []int32 {
	return s.registry.Protocols()
}

// NextMessageID allocates a message id.
func (s *Session) NextMessageID() (int64, error) {
	return s.ids.next()
}

// LastMessageID returns the last message id allocated, 0 if none.
func (s *Session) LastMessageID() int64 {
	return s.ids.peek()
}

// OnClose adds a listener that runs once when the session closes.
func (s *Session) OnClose(fn func(reason string)) {
	s.mu.Lock()
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

// SendMessage encodes header and body and writes them as one frame. A zero
// message id is replaced by a freshly allocated one; the id used is
// returned. A nil body is sent with the NoData flag.
//
// Sending on a session that is not open fails with ErrSessionClosed.
func (s *Session) SendMessage(header MessageHeader, body any) (int64, error) {
	return s.send(header, body, false)
}

// SendRequest is SendMessage for a message that expects an answer. The
// session remembers the request until the final part of its answer
// arrives.
func (s *Session) SendRequest(header MessageHeader, body any) (int64, error) {
	return s.send(header, body, true)
}

// compresses reports whether a body of n bytes goes out gzipped. The JSON
// encoding carries text frames, so only binary sessions compress.
func (s *Session) compresses(n int) bool {
	return s.opts.compressionThreshold > 0 &&
		n >= s.opts.compressionThreshold &&
		s.codec.Name() == EncodingBinary
}

func (s *Session) send(header MessageHeader, body any, request bool) (int64, error) {
	if !s.IsOpen() {
		return 0, ErrSessionClosed
	}

	if header.MessageID == 0 {
		id, err := s.ids.next()
		if err != nil {
			return 0, err
		}
		header.MessageID = id
	}
	if header.MessageFlags == FlagNone {
		header.MessageFlags = FinalPart
	}

	var data []byte
	if body == nil {
		header.MessageFlags |= NoData
	} else if !header.MessageFlags.Has(NoData) {
		var err error
		data, err = s.codec.EncodeBody(header.Key(), body)
		if err != nil {
			return 0, errors.Wrapf(err, "etp: encode body (%s)", header)
		}
		if s.compresses(len(data)) {
			if data, err = compress(data); err != nil {
				return 0, err
			}
			header.MessageFlags |= Compressed
		}
	}

	head, err := s.codec.EncodeHeader(header)
	if err != nil {
		return 0, errors.Wrapf(err, "etp: encode header (%s)", header)
	}
	frame := joinFrame(s.codec, head, data)

	if request {
		s.tracker.expect(header.Protocol, header.MessageID)
	}

	s.sendMu.Lock()
	if !s.IsOpen() {
		s.sendMu.Unlock()
		if request {
			s.tracker.forget(header.Protocol, header.MessageID)
		}
		return 0, ErrSessionClosed
	}
	err = s.sender.Send(frame)
	s.sendMu.Unlock()
	if err != nil {
		if request {
			s.tracker.forget(header.Protocol, header.MessageID)
		}
		return 0, errors.Wrapf(err, "etp: send (%s)", header)
	}

	s.logger.Debug("message sent", "session", s.info.ID,
		"protocol", header.Protocol,
		"message_type", header.MessageType,
		"message_id", header.MessageID,
		"correlation_id", header.CorrelationID,
		"flags", header.MessageFlags.String())
	return header.MessageID, nil
}

// OnMessageReceived processes one text frame.
func (s *Session) OnMessageReceived(message string) error {
	return s.OnDataReceived([]byte(message))
}

// OnDataReceived processes one frame.
//
// A frame whose header cannot be decoded closes the session. Any other
// problem with a frame is reported to the error callback and the frame is
// dropped. Messages for protocols or message types without a handler are
// ignored.
func (s *Session) OnDataReceived(data []byte) error {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	if !s.IsOpen() {
		return ErrSessionClosed
	}

	header, body, err := s.codec.DecodeHeader(data)
	if err != nil {
		err = errors.Wrapf(ErrFrameDecode, "session %s: %v", s.info.ID, err)
		s.opts.onError(err)
		_ = s.Close("frame decode error")
		return err
	}
	if err := validateHeader(header); err != nil {
		return s.fail(err)
	}

	s.logger.Debug("message received", "session", s.info.ID,
		"protocol", header.Protocol,
		"message_type", header.MessageType,
		"message_id", header.MessageID,
		"correlation_id", header.CorrelationID,
		"flags", header.MessageFlags.String())

	if header.MessageFlags.Has(Compressed) {
		if body, err = decompress(body); err != nil {
			return s.fail(errors.Wrapf(ErrBodyDecode, "%s: %v", header, err))
		}
	}

	ph, ok := s.registry.Lookup(header.Protocol)
	if !ok {
		s.logger.Debug("message for unsupported protocol ignored", "session", s.info.ID,
			"protocol", header.Protocol, "message_id", header.MessageID)
		return nil
	}
	h := ph.handler()

	value, err := h.decode(s.codec, header, body)
	if err != nil {
		return s.fail(err)
	}

	ex, complete, err := s.tracker.track(header, value)
	if errors.Is(err, errPartDropped) {
		s.logger.Debug("part of dropped message ignored", "session", s.info.ID,
			"protocol", header.Protocol, "message_id", header.MessageID)
		return nil
	}
	if err != nil {
		return s.fail(err)
	}

	if err := h.dispatch(header, value); err != nil {
		s.fail(errors.WithMessagef(err, "etp: handle %s", h.MessageName(header.MessageType)))
	}
	if complete {
		h.completed(ex)
	}
	return nil
}

func validateHeader(h MessageHeader) error {
	if h.MessageID <= 0 {
		return errors.Wrapf(ErrInvalidHeader, "message id %d", h.MessageID)
	}
	if h.CorrelationID < 0 {
		return errors.Wrapf(ErrInvalidHeader, "correlation id %d", h.CorrelationID)
	}
	if h.Protocol < 0 || h.MessageType < 0 {
		return errors.Wrapf(ErrInvalidHeader, "protocol %d message type %d", h.Protocol, h.MessageType)
	}
	return nil
}

// fail reports err and closes the session when the error callback asks to.
func (s *Session) fail(err error) error {
	s.logger.Warn("session error", "session", s.info.ID, "error", err)
	if s.opts.onError(err) == Disconnect {
		_ = s.Close(err.Error())
	}
	return err
}

// Close closes the session: pending multi-part messages are dropped, every
// handler is notified, and the connection is closed. Closing a session
// that is already closing or closed does nothing.
func (s *Session) Close(reason string) error {
	if !s.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) &&
		!s.state.CompareAndSwap(int32(StateConnecting), int32(StateClosing)) {
		return nil
	}

	s.mu.Lock()
	s.closeReason = reason
	listeners := s.onClose
	s.mu.Unlock()

	if n := s.tracker.discard(); n > 0 {
		s.logger.Debug("pending multi-part messages discarded", "session", s.info.ID, "count", n)
	}
	for _, h := range s.registry.Handlers() {
		h.handler().close(reason)
	}

	s.sendMu.Lock()
	err := s.sender.Close(reason)
	s.sendMu.Unlock()

	s.state.Store(int32(StateClosed))
	for _, fn := range listeners {
		fn(reason)
	}

	s.logger.Info("session closed", "session", s.info.ID, "reason", reason)
	if err != nil {
		return errors.Wrap(err, "etp: close connection")
	}
	return nil
}
