// Package jsoncodec implements the ETP JSON encoding. A frame is a JSON
// array holding the header object and the body object.
package jsoncodec

import (
	"encoding/json"
	"math"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/Zereker/etp"
)

// Errors returned by the codec.
var (
	ErrInvalidFrame  = errors.New("jsoncodec: frame is not a [header, body] array")
	ErrInvalidHeader = errors.New("jsoncodec: invalid header")
)

// headerFields must all be present in a header object.
var headerFields = []string{"protocol", "messageType", "correlationId", "messageId", "messageFlags"}

// int32Fields are the header fields that must fit in 32 bits.
var int32Fields = map[string]bool{"protocol": true, "messageType": true, "messageFlags": true}

// Codec is an etp.Codec for the JSON encoding. Bodies are encoded with
// encoding/json using the json tags of the message types, so it needs no
// schema registry.
type Codec struct{}

// New returns a JSON codec.
func New() *Codec { return &Codec{} }

func (*Codec) Name() string { return etp.EncodingJSON }

func (*Codec) EncodeHeader(h etp.MessageHeader) ([]byte, error) {
	return json.Marshal(h)
}

// DecodeHeader reads the header object at index 0 and returns the raw body
// object at index 1, nil when the frame has no body.
func (*Codec) DecodeHeader(frame []byte) (etp.MessageHeader, []byte, error) {
	if !gjson.ValidBytes(frame) {
		return etp.MessageHeader{}, nil, ErrInvalidFrame
	}
	doc := gjson.ParseBytes(frame)
	if !doc.IsArray() {
		return etp.MessageHeader{}, nil, ErrInvalidFrame
	}

	head := doc.Get("0")
	if !head.IsObject() {
		return etp.MessageHeader{}, nil, errors.Wrap(ErrInvalidHeader, "not an object")
	}
	for _, field := range headerFields {
		v := head.Get(field)
		if v.Type != gjson.Number {
			return etp.MessageHeader{}, nil, errors.Wrapf(ErrInvalidHeader, "field %q", field)
		}
		if n := v.Int(); int32Fields[field] && (n < math.MinInt32 || n > math.MaxInt32) {
			return etp.MessageHeader{}, nil, errors.Wrapf(ErrInvalidHeader, "field %q out of range: %d", field, n)
		}
	}
	h := etp.MessageHeader{
		Protocol:      int32(head.Get("protocol").Int()),
		MessageType:   int32(head.Get("messageType").Int()),
		CorrelationID: head.Get("correlationId").Int(),
		MessageID:     head.Get("messageId").Int(),
		MessageFlags:  etp.MessageFlags(head.Get("messageFlags").Int()),
	}

	var body []byte
	if b := doc.Get("1"); b.Exists() && b.Type != gjson.Null {
		body = []byte(b.Raw)
	}
	return h, body, nil
}

func (*Codec) EncodeBody(_ etp.MessageKey, v any) ([]byte, error) {
	return json.Marshal(v)
}

func (*Codec) DecodeBody(key etp.MessageKey, data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "jsoncodec: decode %s", key)
	}
	return nil
}

// Join implements etp.Framer.
func (*Codec) Join(header, body []byte) []byte {
	if len(body) == 0 {
		body = []byte("{}")
	}
	frame := make([]byte, 0, len(header)+len(body)+3)
	frame = append(frame, '[')
	frame = append(frame, header...)
	frame = append(frame, ',')
	frame = append(frame, body...)
	return append(frame, ']')
}
