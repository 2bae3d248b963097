// Package avrocodec implements the ETP binary encoding: headers and bodies
// are Avro binary records, written back to back in one frame.
package avrocodec

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/hamba/avro/v2"
	"github.com/pkg/errors"

	"github.com/Zereker/etp"
)

// AnyProtocol registers a body schema for a message type in every protocol,
// as used by ProtocolException and Acknowledge.
const AnyProtocol int32 = -1

// HeaderSchema is the Avro schema of the message header.
const HeaderSchema = `{
  "type": "record",
  "name": "MessageHeader",
  "namespace": "Energistics.Etp.v12.Datatypes",
  "fields": [
    {"name": "protocol", "type": "int"},
    {"name": "messageType", "type": "int"},
    {"name": "correlationId", "type": "long"},
    {"name": "messageId", "type": "long"},
    {"name": "messageFlags", "type": "int"}
  ]
}`

// headerFields is the number of varint encoded fields in a header.
const headerFields = 5

// Errors returned by the codec.
var (
	ErrUnknownSchema   = errors.New("avrocodec: no schema for message")
	ErrTruncatedHeader = errors.New("avrocodec: truncated header")
	ErrMalformedHeader = errors.New("avrocodec: malformed header")
	ErrTruncatedBody   = errors.New("avrocodec: truncated body")
	ErrTrailingBytes   = errors.New("avrocodec: trailing bytes after body")
)

type wireHeader struct {
	Protocol      int32 `avro:"protocol"`
	MessageType   int32 `avro:"messageType"`
	CorrelationID int64 `avro:"correlationId"`
	MessageID     int64 `avro:"messageId"`
	MessageFlags  int32 `avro:"messageFlags"`
}

// Codec is an etp.Codec for the binary encoding.
type Codec struct {
	header avro.Schema

	mu      sync.RWMutex
	schemas map[etp.MessageKey]avro.Schema
}

// New returns a codec knowing the body schemas in schemas.
func New(schemas map[etp.MessageKey]string) (*Codec, error) {
	header, err := parse(HeaderSchema)
	if err != nil {
		return nil, errors.Wrap(err, "avrocodec: header schema")
	}
	c := &Codec{
		header:  header,
		schemas: make(map[etp.MessageKey]avro.Schema, len(schemas)),
	}
	for key, schema := range schemas {
		if err := c.Register(key, schema); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register parses schema and uses it for bodies of key. A key with
// protocol AnyProtocol applies to every protocol without its own schema.
func (c *Codec) Register(key etp.MessageKey, schema string) error {
	s, err := parse(schema)
	if err != nil {
		return errors.Wrapf(err, "avrocodec: schema for %s", key)
	}
	c.mu.Lock()
	c.schemas[key] = s
	c.mu.Unlock()
	return nil
}

// parse parses schema in isolation so that records with the same name in
// different message schemas do not clash.
func parse(schema string) (avro.Schema, error) {
	return avro.ParseWithCache(schema, "", &avro.SchemaCache{})
}

func (c *Codec) Name() string { return etp.EncodingBinary }

func (c *Codec) EncodeHeader(h etp.MessageHeader) ([]byte, error) {
	return avro.Marshal(c.header, wireHeader{
		Protocol:      h.Protocol,
		MessageType:   h.MessageType,
		CorrelationID: h.CorrelationID,
		MessageID:     h.MessageID,
		MessageFlags:  int32(h.MessageFlags),
	})
}

func (c *Codec) DecodeHeader(frame []byte) (etp.MessageHeader, []byte, error) {
	n, err := headerLen(frame)
	if err != nil {
		return etp.MessageHeader{}, nil, err
	}
	var w wireHeader
	if err := avro.Unmarshal(c.header, frame[:n], &w); err != nil {
		return etp.MessageHeader{}, nil, errors.Wrap(err, "avrocodec: decode header")
	}
	return etp.MessageHeader{
		Protocol:      w.Protocol,
		MessageType:   w.MessageType,
		CorrelationID: w.CorrelationID,
		MessageID:     w.MessageID,
		MessageFlags:  etp.MessageFlags(w.MessageFlags),
	}, frame[n:], nil
}

func (c *Codec) EncodeBody(key etp.MessageKey, v any) ([]byte, error) {
	s, err := c.schema(key)
	if err != nil {
		return nil, err
	}
	return avro.Marshal(s, v)
}

// DecodeBody decodes data into v. The body must fill data exactly: running
// out of bytes or leaving bytes unread are both errors.
func (c *Codec) DecodeBody(key etp.MessageKey, data []byte, v any) error {
	s, err := c.schema(key)
	if err != nil {
		return err
	}

	r := avro.NewReader(nil, 0).Reset(data)
	r.ReadVal(s, v)
	switch {
	case errors.Is(r.Error, io.EOF):
		return errors.Wrapf(ErrTruncatedBody, "%s", key)
	case r.Error != nil:
		return errors.Wrapf(r.Error, "avrocodec: decode %s", key)
	}

	var extra [1]byte
	r.Read(extra[:])
	if r.Error == nil {
		return errors.Wrapf(ErrTrailingBytes, "%s", key)
	}
	return nil
}

func (c *Codec) schema(key etp.MessageKey) (avro.Schema, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.schemas[key]; ok {
		return s, nil
	}
	if s, ok := c.schemas[etp.MessageKey{Protocol: AnyProtocol, MessageType: key.MessageType}]; ok {
		return s, nil
	}
	return nil, errors.Wrapf(ErrUnknownSchema, "%s", key)
}

// headerLen returns the length of the header at the start of frame. Every
// header field is a zig-zag varint, so the header ends after the fifth
// byte with a clear continuation bit.
func headerLen(frame []byte) (int, error) {
	off := 0
	for field := 0; field < headerFields; field++ {
		for i := 0; ; i++ {
			if i == binary.MaxVarintLen64 {
				return 0, ErrMalformedHeader
			}
			if off >= len(frame) {
				return 0, ErrTruncatedHeader
			}
			b := frame[off]
			off++
			if b < 0x80 {
				break
			}
		}
	}
	return off, nil
}
