package etp

import (
	"fmt"
	"strings"
)

// MessageFlags is the bit set carried in every message header.
type MessageFlags int32

// Message flag bits.
const (
	// FlagNone marks a header with no flag set. Senders treat it as FinalPart.
	FlagNone MessageFlags = 0
	// MultiPart marks a part of a logical message split across several frames.
	MultiPart MessageFlags = 0x1
	// FinalPart marks a complete message, or the last part of a multi-part message.
	FinalPart MessageFlags = 0x2
	// MultiPartAndFinalPart marks the last part of a multi-part message.
	MultiPartAndFinalPart = MultiPart | FinalPart
	// NoData marks a message whose body carries no payload.
	NoData MessageFlags = 0x4
	// Compressed marks a body that is gzip compressed.
	Compressed MessageFlags = 0x8
)

// Has reports whether all bits of flag are set.
func (f MessageFlags) Has(flag MessageFlags) bool {
	return f&flag == flag
}

// IsFinal reports whether a message carrying f completes its exchange.
// A message is final when it carries FinalPart, or when it is not a part
// of a multi-part message at all.
func (f MessageFlags) IsFinal() bool {
	return f.Has(FinalPart) || !f.Has(MultiPart)
}

func (f MessageFlags) String() string {
	if f == FlagNone {
		return "None"
	}
	var parts []string
	for _, b := range []struct {
		flag MessageFlags
		name string
	}{
		{MultiPart, "MultiPart"},
		{FinalPart, "FinalPart"},
		{NoData, "NoData"},
		{Compressed, "Compressed"},
	} {
		if f.Has(b.flag) {
			parts = append(parts, b.name)
		}
	}
	if rest := f &^ (MultiPart | FinalPart | NoData | Compressed); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", int32(rest)))
	}
	return strings.Join(parts, "|")
}

// MessageHeader is the envelope header that precedes every message body.
type MessageHeader struct {
	Protocol      int32        `avro:"protocol" json:"protocol"`
	MessageType   int32        `avro:"messageType" json:"messageType"`
	CorrelationID int64        `avro:"correlationId" json:"correlationId"`
	MessageID     int64        `avro:"messageId" json:"messageId"`
	MessageFlags  MessageFlags `avro:"messageFlags" json:"messageFlags"`
}

// Key returns the schema key of the message the header describes.
func (h MessageHeader) Key() MessageKey {
	return MessageKey{Protocol: h.Protocol, MessageType: h.MessageType}
}

func (h MessageHeader) String() string {
	return fmt.Sprintf("protocol=%d type=%d id=%d correlation=%d flags=%s",
		h.Protocol, h.MessageType, h.MessageID, h.CorrelationID, h.MessageFlags)
}

// MessageKey identifies a body schema by protocol and message type.
type MessageKey struct {
	Protocol    int32
	MessageType int32
}

func (k MessageKey) String() string {
	return fmt.Sprintf("%d/%d", k.Protocol, k.MessageType)
}

// Message is one decoded frame: its header and its raw, still encoded body.
type Message struct {
	Header MessageHeader
	Body   []byte
}

// Message types every protocol accepts.
const (
	MessageTypeProtocolException int32 = 1000
	MessageTypeAcknowledge       int32 = 1001
)

// ProtocolException reports an error condition to the peer, optionally
// correlated to the message that caused it.
type ProtocolException struct {
	ErrorCode    int32  `avro:"errorCode" json:"errorCode"`
	ErrorMessage string `avro:"errorMessage" json:"errorMessage"`
}

func (e ProtocolException) Error() string {
	return fmt.Sprintf("etp: protocol exception %d: %s", e.ErrorCode, e.ErrorMessage)
}

// Acknowledge confirms receipt of a message.
type Acknowledge struct{}

// Error codes sent in ProtocolException messages.
const (
	ErrorCodeNoRole               int32 = 1
	ErrorCodeNoSupportedProtocols int32 = 2
	ErrorCodeInvalidMessageType   int32 = 3
	ErrorCodeUnsupportedProtocol  int32 = 4
	ErrorCodeInvalidArgument      int32 = 5
	ErrorCodePermissionDenied     int32 = 6
	ErrorCodeNotSupported         int32 = 7
	ErrorCodeInvalidState         int32 = 8
	ErrorCodeInvalidURI           int32 = 9
	ErrorCodeNotFound             int32 = 11
	ErrorCodeInvalidChannelID     int32 = 1002
)

// Codec encodes and decodes headers and typed bodies.
// Implementations must be safe for concurrent use by one or more sessions.
type Codec interface {
	// Name identifies the encoding, e.g. "binary" or "json".
	Name() string
	// EncodeHeader encodes a header.
	EncodeHeader(MessageHeader) ([]byte, error)
	// DecodeHeader decodes the header at the start of frame and returns the
	// undecoded body bytes that follow it.
	DecodeHeader(frame []byte) (MessageHeader, []byte, error)
	// EncodeBody encodes the body registered for key.
	EncodeBody(key MessageKey, v any) ([]byte, error)
	// DecodeBody decodes data into v, which must be a pointer.
	DecodeBody(key MessageKey, data []byte, v any) error
}

// Framer is implemented by codecs that need to control how an encoded
// header and body are joined into one frame. Codecs that do not implement
// it get the two concatenated.
type Framer interface {
	Join(header, body []byte) []byte
}

func joinFrame(c Codec, header, body []byte) []byte {
	if f, ok := c.(Framer); ok {
		return f.Join(header, body)
	}
	frame := make([]byte, 0, len(header)+len(body))
	frame = append(frame, header...)
	return append(frame, body...)
}
