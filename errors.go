package etp

import "github.com/pkg/errors"

// Errors returned by sessions and handlers.
var (
	// ErrSessionClosed is returned when sending on a session that is closing or closed.
	// It is terminal: the caller must open a new session.
	ErrSessionClosed = errors.New("etp: session closed")
	// ErrFrameDecode is reported when a frame header cannot be read.
	// The session is closed because frame alignment is lost.
	ErrFrameDecode = errors.New("etp: frame decode error")
	// ErrInvalidHeader is reported when a header decodes but carries invalid values.
	ErrInvalidHeader = errors.New("etp: invalid message header")
	// ErrBodyDecode is reported when a body does not match its schema.
	ErrBodyDecode = errors.New("etp: body decode error")
	// ErrDuplicateHandler is returned when a protocol already has a handler.
	ErrDuplicateHandler = errors.New("etp: handler already registered for protocol")
	// ErrCoreHandler is returned when the control handler is missing or not on protocol 0.
	ErrCoreHandler = errors.New("etp: invalid core handler")
	// ErrMessageIDExhausted is returned when the id range is used up and wrapping is off.
	ErrMessageIDExhausted = errors.New("etp: message ids exhausted")
	// ErrCorrelationMismatch is reported in strict mode for a response to nothing.
	ErrCorrelationMismatch = errors.New("etp: correlation id matches no request")
	// ErrTooManyParts is reported when a multi-part exchange exceeds its part limit.
	ErrTooManyParts = errors.New("etp: too many parts in multi-part message")
	// ErrHandlerDetached is returned by a handler that is not registered in an open session.
	ErrHandlerDetached = errors.New("etp: handler not attached to a session")
	// ErrHandlerInUse is returned when a handler instance is registered a second time.
	ErrHandlerInUse = errors.New("etp: handler already attached to a session")
	// ErrWriterClosed is returned by a multi-part writer after its final part.
	ErrWriterClosed = errors.New("etp: multi-part writer closed")
	// ErrUnsupportedVersion is returned when no version matches a connection's sub-protocol.
	ErrUnsupportedVersion = errors.New("etp: unsupported protocol version")
	// ErrInvalidTransport is returned when a server is created without a transport.
	ErrInvalidTransport = errors.New("etp: invalid transport")
	// ErrInvalidCodec is returned when a session or version has no codec.
	ErrInvalidCodec = errors.New("etp: invalid codec")
)
